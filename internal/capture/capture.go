// Package capture normalizes the failure signals of a host page into
// captured errors and notifies listeners synchronously, in registration
// order.
package capture

import (
	"errors"
	"fmt"
	"go/token"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bugshot/bugshot-go/internal/fingerprint"
	"github.com/bugshot/bugshot-go/internal/identity"
	"github.com/bugshot/bugshot-go/internal/ignore"
	"github.com/bugshot/bugshot-go/internal/interceptor"
	"github.com/bugshot/bugshot-go/internal/stacktrace"
	"github.com/bugshot/bugshot-go/pkg/event"
	"github.com/bugshot/bugshot-go/pkg/host"
)

const (
	TypeUnhandledRejection = "UnhandledPromiseRejection"
	TypeConsoleError       = "ConsoleError"

	unknownMessage = "Unknown error"
)

// Host is the part of a page that error capture observes.
type Host interface {
	URL() string
	UserAgent() string
	Viewport() event.Viewport
	ErrorSlot() *host.Slot[host.ErrorHandler]
	RejectionSlot() *host.Slot[host.RejectionHandler]
	ConsoleSlot() *host.Slot[host.ConsoleFunc]
}

// Listener receives every captured error that survived filtering.
type Listener func(captured event.CapturedError, ctx event.ErrorContext)

// BeforeSendFunc may rewrite a captured error. Returning nil cancels it.
type BeforeSendFunc func(captured event.CapturedError) *event.CapturedError

type Config struct {
	// AutoCapture installs the uncaught error and rejection interceptors.
	AutoCapture bool
	// Debug additionally intercepts the diagnostic error log.
	Debug      bool
	BeforeSend BeforeSendFunc
	Ignore     []ignore.Rule
	Logger     *slog.Logger
}

type Capture struct {
	host      Host
	cfg       Config
	log       *slog.Logger
	sessionID string

	mu        sync.Mutex
	listeners []Listener
	started   bool
	stack     interceptor.Stack

	// generation identifies the current installation. Wrappers installed by
	// an earlier Start stop notifying once it changes.
	generation atomic.Uint64
}

func New(h Host, cfg Config) *Capture {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		host:      h,
		cfg:       cfg,
		log:       logger,
		sessionID: identity.NewID(),
	}
}

// SessionID is generated at construction and never changes.
func (c *Capture) SessionID() string {
	return c.sessionID
}

// OnError registers a listener. Listeners are not de-duplicated.
func (c *Capture) OnError(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Start installs the interceptors. A second Start without Stop is a no-op.
func (c *Capture) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	if !c.cfg.AutoCapture {
		return
	}

	gen := c.generation.Add(1)

	interceptor.Wrap[host.ErrorHandler](&c.stack, c.host.ErrorSlot(), func(prev host.ErrorHandler, ok bool) host.ErrorHandler {
		return func(ev *host.ErrorEvent) bool {
			if c.active(gen) {
				c.captureErrorEvent(ev)
			}
			if ok {
				return prev(ev)
			}
			return false
		}
	})

	interceptor.Wrap[host.RejectionHandler](&c.stack, c.host.RejectionSlot(), func(prev host.RejectionHandler, ok bool) host.RejectionHandler {
		return func(ev *host.RejectionEvent) {
			if c.active(gen) {
				c.captureRejection(ev)
			}
			if ok {
				prev(ev)
			}
		}
	})

	if c.cfg.Debug {
		interceptor.Wrap[host.ConsoleFunc](&c.stack, c.host.ConsoleSlot(), func(prev host.ConsoleFunc, ok bool) host.ConsoleFunc {
			return func(args ...any) {
				if c.active(gen) {
					c.capture(errors.New(joinArgs(args)), &event.ErrorDetails{Type: TypeConsoleError}, 1)
				}
				if ok {
					prev(args...)
				}
			}
		})
	}
}

// Stop restores the handlers that were installed before Start, most recent
// first, and drops every registered listener.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.generation.Add(1)
	c.stack.Restore()
	c.listeners = nil
	c.started = false
}

func (c *Capture) active(gen uint64) bool {
	return c.generation.Load() == gen
}

// CaptureError captures err. Non-zero fields of details take precedence over
// what is derived from the error and its stack trace.
func (c *Capture) CaptureError(err error, details *event.ErrorDetails) {
	c.capture(err, details, 1)
}

// CaptureMessage captures a message with the capitalized level as its type.
func (c *Capture) CaptureMessage(message string, level event.Level) {
	c.capture(errors.New(message), &event.ErrorDetails{Type: level.Title()}, 1)
}

func (c *Capture) captureErrorEvent(ev *host.ErrorEvent) {
	err := ev.Err
	if err == nil {
		err = errors.New(ev.Message)
	}
	c.capture(err, &event.ErrorDetails{File: ev.Source, Line: ev.Line, Column: ev.Column}, 2)
}

func (c *Capture) captureRejection(ev *host.RejectionEvent) {
	if err, ok := ev.Reason.(error); ok {
		c.capture(err, nil, 2)
		return
	}
	c.capture(errors.New(fmt.Sprint(ev.Reason)), &event.ErrorDetails{Type: TypeUnhandledRejection}, 2)
}

func (c *Capture) capture(err error, details *event.ErrorDetails, skip int) {
	if err == nil {
		return
	}
	captured := c.build(err, skip+1).WithDetails(details)

	ignored, errs := ignore.ShouldIgnoreError(captured, c.cfg.Ignore)
	for _, e := range errs {
		c.log.Warn("ignore rule failed", "error", e)
	}
	if ignored {
		c.log.Debug("error ignored", "type", captured.Type, "message", captured.Message)
		return
	}

	if c.cfg.BeforeSend != nil {
		result, ok := c.beforeSend(captured)
		if !ok || result == nil {
			c.log.Debug("error dropped by BeforeSend", "type", captured.Type)
			return
		}
		captured = *result
	}

	ctx := c.Context()

	c.mu.Lock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		c.notify(l, captured, ctx)
	}
}

func (c *Capture) beforeSend(captured event.CapturedError) (result *event.CapturedError, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("BeforeSend panicked", "panic", r)
			ok = false
		}
	}()
	return c.cfg.BeforeSend(captured), true
}

func (c *Capture) notify(l Listener, captured event.CapturedError, ctx event.ErrorContext) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("error listener panicked", "panic", r)
		}
	}()
	l(captured, ctx)
}

func (c *Capture) build(err error, skip int) event.CapturedError {
	captured := event.CapturedError{
		Type:       errorName(err),
		Message:    errorMessage(err),
		StackTrace: stackOf(err, skip+1),
	}
	if captured.Message == "" {
		captured.Message = unknownMessage
	}
	loc := stacktrace.Parse(captured.StackTrace)
	captured.File = loc.File
	captured.Line = loc.Line
	captured.Column = loc.Column
	captured.Method = loc.Method
	return captured
}

// Context snapshots the page for an error captured now.
func (c *Capture) Context() event.ErrorContext {
	ua := c.host.UserAgent()
	browser := fingerprint.Browser(ua)
	device := fingerprint.Device(c.host.Viewport())
	return event.ErrorContext{
		URL:         c.host.URL(),
		HTTPMethod:  "GET",
		UserAgent:   ua,
		SessionID:   c.sessionID,
		Timestamp:   event.Timestamp(event.Clock()),
		BrowserInfo: &browser,
		DeviceInfo:  &device,
	}
}

// errorName names err after the exception it carries, or after its concrete
// type when that type is exported.
func errorName(err error) string {
	var exc *host.Exception
	if errors.As(err, &exc) {
		if exc.Name != "" {
			return exc.Name
		}
		return "Error"
	}
	var perr *host.PanicError
	if errors.As(err, &perr) {
		if inner := perr.Unwrap(); inner != nil {
			return errorName(inner)
		}
		return "Panic"
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" && token.IsExported(name) {
		return name
	}
	return "Error"
}

func errorMessage(err error) string {
	if exc, ok := err.(*host.Exception); ok {
		return exc.Message
	}
	return err.Error()
}

func stackOf(err error, skip int) string {
	var exc *host.Exception
	if errors.As(err, &exc) && exc.Stack != "" {
		return exc.Stack
	}
	var perr *host.PanicError
	if errors.As(err, &perr) && perr.Stack != "" {
		return perr.Stack
	}
	return stacktrace.Callers(skip + 1)
}

func joinArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, " ")
}
