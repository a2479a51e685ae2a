// Package host models the environment an agent is embedded in: the failure
// signals it can intercept, the interaction signals it can observe, the
// navigation entry points it can wrap, and durable key/value storage.
//
// A Page is safe for concurrent use. Handlers and listeners are always invoked
// outside of the Page's locks, in the order they were registered.
package host

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/bugshot/bugshot-go/pkg/event"
)

// Config describes the initial state of a Page.
type Config struct {
	URL       string
	Title     string
	UserAgent string
	Viewport  event.Viewport
	// Storage defaults to an in-memory store.
	Storage Storage
	// Stderr receives the output of the native console and of failures that
	// no handler claimed. Defaults to os.Stderr.
	Stderr io.Writer
}

// Page is one hosted application session.
type Page struct {
	mu        sync.RWMutex
	url       string
	title     string
	userAgent string
	viewport  event.Viewport
	storage   Storage
	stderr    io.Writer

	onError      Slot[ErrorHandler]
	onRejection  Slot[RejectionHandler]
	consoleError Slot[ConsoleFunc]
	pushState    Slot[HistoryFunc]
	replaceState Slot[HistoryFunc]

	document EventTarget
	window   EventTarget
}

func NewPage(cfg Config) *Page {
	p := &Page{
		url:       cfg.URL,
		title:     cfg.Title,
		userAgent: cfg.UserAgent,
		viewport:  cfg.Viewport,
		storage:   cfg.Storage,
		stderr:    cfg.Stderr,
	}
	if p.url == "" {
		p.url = "about:blank"
	}
	if p.userAgent == "" {
		p.userAgent = defaultUserAgent()
	}
	if p.viewport == (event.Viewport{}) {
		p.viewport = event.Viewport{Width: 1920, Height: 1080}
	}
	if p.storage == nil {
		p.storage = NewMemoryStorage()
	}
	if p.stderr == nil {
		p.stderr = os.Stderr
	}

	p.consoleError.Set(func(args ...any) {
		fmt.Fprintln(p.stderr, args...)
	})
	p.pushState.Set(func(state any, title, url string) {
		p.setLocation(url, title)
	})
	p.replaceState.Set(func(state any, title, url string) {
		p.setLocation(url, title)
	})
	return p
}

func defaultUserAgent() string {
	platform := runtime.GOOS
	switch runtime.GOOS {
	case "linux":
		platform = "X11; Linux " + runtime.GOARCH
	case "darwin":
		platform = "Macintosh; Mac OS X"
	case "windows":
		platform = "Windows NT 10.0"
	case "android":
		platform = "Linux; Android"
	}
	return fmt.Sprintf("Mozilla/5.0 (%s) Go/%s", platform, runtime.Version())
}

func (p *Page) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

func (p *Page) Title() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.title
}

func (p *Page) UserAgent() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userAgent
}

func (p *Page) Viewport() event.Viewport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.viewport
}

func (p *Page) SetViewport(v event.Viewport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewport = v
}

func (p *Page) Storage() Storage { return p.storage }

func (p *Page) ErrorSlot() *Slot[ErrorHandler]         { return &p.onError }
func (p *Page) RejectionSlot() *Slot[RejectionHandler] { return &p.onRejection }
func (p *Page) ConsoleSlot() *Slot[ConsoleFunc]        { return &p.consoleError }
func (p *Page) PushStateSlot() *Slot[HistoryFunc]      { return &p.pushState }
func (p *Page) ReplaceStateSlot() *Slot[HistoryFunc]   { return &p.replaceState }

func (p *Page) Document() *EventTarget { return &p.document }
func (p *Page) Window() *EventTarget   { return &p.window }

// Navigate loads a new location without going through the history entry points.
func (p *Page) Navigate(url, title string) {
	p.setLocation(url, title)
}

func (p *Page) setLocation(url, title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if url != "" {
		p.url = url
	}
	if title != "" {
		p.title = title
	}
}

// DispatchError raises an uncaught failure. Unclaimed failures are written to
// Stderr. It reports whether a handler claimed the failure.
func (p *Page) DispatchError(ev *ErrorEvent) bool {
	if h, ok := p.onError.Get(); ok && h(ev) {
		return true
	}
	if ev.Err != nil {
		fmt.Fprintln(p.stderr, "Uncaught", ev.Err)
	} else {
		fmt.Fprintln(p.stderr, "Uncaught", ev.Message)
	}
	return false
}

// Throw raises err as an uncaught failure.
func (p *Page) Throw(err error) bool {
	return p.DispatchError(&ErrorEvent{Message: err.Error(), Err: err})
}

// Reject raises an unhandled asynchronous failure.
func (p *Page) Reject(reason any) {
	if h, ok := p.onRejection.Get(); ok {
		h(&RejectionEvent{Reason: reason})
		return
	}
	fmt.Fprintln(p.stderr, "Uncaught (in promise)", reason)
}

// ConsoleError writes to the diagnostic error log.
func (p *Page) ConsoleError(args ...any) {
	if fn, ok := p.consoleError.Get(); ok {
		fn(args...)
	}
}

func (p *Page) PushState(state any, title, url string) {
	if fn, ok := p.pushState.Get(); ok {
		fn(state, title, url)
	}
}

func (p *Page) ReplaceState(state any, title, url string) {
	if fn, ok := p.replaceState.Get(); ok {
		fn(state, title, url)
	}
}

// Back moves to a previous history entry and fires popstate.
func (p *Page) Back(url, title string) {
	p.setLocation(url, title)
	p.window.Dispatch(&PopStateEvent{})
}

func (p *Page) Click(target Element, x, y int) {
	p.document.Dispatch(&MouseEvent{Target: target, ClientX: x, ClientY: y})
}

func (p *Page) Input(target Element) {
	p.document.Dispatch(&InputEvent{Target: target})
}

// Unload signals that the page is being torn down.
func (p *Page) Unload() {
	p.window.Dispatch(&PageHideEvent{})
}

// Do runs fn and raises a panic as an uncaught failure instead of crashing.
func (p *Page) Do(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			perr := NewPanicError(r, debug.Stack())
			p.DispatchError(&ErrorEvent{Message: perr.Error(), Err: perr})
		}
	}()
	fn()
}

// Go runs fn on its own goroutine. A returned error or a panic is raised as an
// unhandled rejection. The returned channel is closed when fn is done.
func (p *Page) Go(fn func() error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				p.Reject(NewPanicError(r, debug.Stack()))
			}
		}()
		if err := fn(); err != nil {
			p.Reject(err)
		}
	}()
	return done
}
