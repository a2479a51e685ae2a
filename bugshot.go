// Package bugshot reports the errors of a hosted page to the [BugShot]
// ingestion service.
//
// A [Client] intercepts uncaught errors and unhandled rejections raised on a
// [host.Page], records a bounded replay of the user's clicks, inputs and
// navigations, and posts both to the ingestion endpoint. Delivery is best
// effort: failures are retried a bounded number of times and then dropped,
// and nothing the client does ever panics into host code.
//
// [BugShot]: https://bugshot.dev
package bugshot

import (
	"context"
	"math"
	"runtime/debug"

	"github.com/bugshot/bugshot-go/internal/capture"
	"github.com/bugshot/bugshot-go/internal/identity"
	"github.com/bugshot/bugshot-go/internal/metrics"
	"github.com/bugshot/bugshot-go/internal/replay"
	"github.com/bugshot/bugshot-go/internal/sampler"
	"github.com/bugshot/bugshot-go/internal/transport"
	"github.com/bugshot/bugshot-go/pkg/event"
	"github.com/bugshot/bugshot-go/pkg/host"
	"golang.org/x/time/rate"
)

// SessionEndType is the error type of the report sent by Flush.
const SessionEndType = "SessionEnd"

// New creates a client for page. A nil page creates a headless page.
// An error is returned only if the configuration is invalid, in which case
// it is a *ConfigurationError.
func New(page *host.Page, o *Options) (*Client, error) {
	o, err := o.parse()
	if err != nil {
		return nil, err
	}
	if page == nil {
		page = host.NewPage(host.Config{})
	}

	c := &Client{
		page:    page,
		options: o,
		log:     o.Logger,
		sampler: sampler.New(nil),
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	if o.MaxEventsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(o.MaxEventsPerSecond), int(math.Max(1, o.MaxEventsPerSecond)))
	}

	c.metrics, err = metrics.New(o.MetricsRegisterer)
	if err != nil {
		return nil, &ConfigurationError{Field: "MetricsRegisterer", Message: "could not register metrics", Err: err}
	}

	c.transport, err = transport.New(transport.Config{
		Endpoint:   o.Endpoint,
		Client:     c.wrap(o.HTTPClient),
		RetryDelay: o.RetryDelay,
		Metrics:    c.metrics,
		Logger:     c.log,
		OnError:    o.OnError,
	})
	if err != nil {
		return nil, &ConfigurationError{Field: "Endpoint", Message: "invalid Endpoint " + o.Endpoint, Err: err}
	}

	var beforeSend capture.BeforeSendFunc
	if o.BeforeSend != nil {
		beforeSend = func(captured event.CapturedError) *event.CapturedError {
			result := o.BeforeSend(captured)
			if result == nil {
				c.metrics.RecordDiscard(metrics.ReasonBeforeSend)
			}
			return result
		}
	}
	c.capture = capture.New(page, capture.Config{
		AutoCapture: !o.DisableAutoCapture,
		Debug:       o.Debug,
		BeforeSend:  beforeSend,
		Ignore:      o.ignoreRules,
		Logger:      c.log,
	})

	c.anonymousID = identity.Anonymous(page.Storage(), c.log)
	if o.User != nil {
		user := *o.User
		c.user = &user
	}

	c.log.Debug("client created", "endpoint", o.Endpoint, "environment", o.Environment, "sessionId", c.capture.SessionID())
	return c, nil
}

// Init starts capturing errors and, unless disabled, recording the
// session. Calling Init on an initialized client only logs a warning.
func (c *Client) Init() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.initialized {
		c.log.Warn("bugshot: already initialized")
		return
	}
	c.initialized = true

	c.capture.OnError(c.handleError)
	c.capture.Start()

	if !c.options.DisableSessionReplay {
		c.recorder = replay.New(c.page, c.capture.SessionID(),
			replay.WithMaxEvents(c.options.MaxReplayEvents),
			replay.WithRedactedFields(c.options.RedactInputNames...),
			replay.WithClock(event.Clock),
			replay.WithLogger(c.log),
		)
		c.recorder.Start()
	}

	c.removePageHide = c.page.Window().AddEventListener(host.EventPageHide, func(host.Event) {
		c.Flush()
	})

	c.log.Debug("started", "userId", c.currentUserID(c.user))
}

// Close stops capturing and recording and restores the page's original
// handlers. Deliveries already scheduled for retry still run; use Wait to
// let them finish.
func (c *Client) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.initialized {
		return
	}
	c.capture.Stop()
	if c.recorder != nil {
		c.recorder.Stop()
	}
	if c.removePageHide != nil {
		c.removePageHide()
		c.removePageHide = nil
	}
	c.initialized = false
	c.log.Debug("closed")
}

// Wait blocks until every pending delivery has finished or ctx is done.
func (c *Client) Wait(ctx context.Context) error {
	return c.transport.Wait(ctx)
}

func (c *Client) handleError(captured event.CapturedError, ctx event.ErrorContext) {
	if !c.sampler.Keep(*c.options.SampleRate) {
		c.log.Debug("error not sampled", "sampleRate", *c.options.SampleRate)
		c.metrics.RecordDiscard(metrics.ReasonSampleRate)
		return
	}
	if !c.limiter.Allow() {
		c.log.Debug("error rate limited", "maxEventsPerSecond", c.options.MaxEventsPerSecond)
		c.metrics.RecordDiscard(metrics.ReasonRateLimit)
		return
	}

	payload := c.payload(captured, ctx)
	if payload == nil {
		return
	}
	c.transport.SendAsync(payload)
}

// payload assembles a report, or returns nil when the client is closed.
func (c *Client) payload(captured event.CapturedError, ctx event.ErrorContext) *event.IngestPayload {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.initialized {
		return nil
	}

	ctx.SessionID = c.capture.SessionID()
	ctx.UserID = c.currentUserID(c.user)
	ctx.Environment = c.options.Environment
	ctx.Release = c.options.Release
	ctx.Tags = c.tags.Clone()

	payload := &event.IngestPayload{
		APIKey:  c.options.APIKey,
		Error:   captured,
		Context: ctx,
	}
	if c.recorder != nil {
		snapshot := c.recorder.Snapshot()
		payload.SessionReplay = &snapshot
	}
	return payload
}

func (c *Client) currentUserID(user *event.User) string {
	if user != nil && user.ID != "" {
		return user.ID
	}
	return c.anonymousID
}

// CaptureError reports err. Non-zero fields of details override the location
// parsed from the error's stack trace.
func (c *Client) CaptureError(err error, details *event.ErrorDetails) {
	c.capture.CaptureError(err, details)
}

// CaptureMessage reports a message. Its type is the capitalized level.
func (c *Client) CaptureMessage(message string, level event.Level) {
	c.capture.CaptureMessage(message, level)
}

// SetUser sets the user attached to future reports. A nil user reverts to
// the anonymous id.
func (c *Client) SetUser(user *event.User) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if user == nil {
		c.user = nil
	} else {
		u := *user
		c.user = &u
	}
	c.log.Debug("user set", "userId", c.currentUserID(c.user))
}

// SetContext attaches a tag to future reports. Only strings, booleans and
// numbers are accepted.
func (c *Client) SetContext(key string, value any) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.tags == nil {
		c.tags = event.Tags{}
	}
	if err := c.tags.Set(key, value); err != nil {
		return err
	}
	c.log.Debug("context set", "key", key, "value", value)
	return nil
}

// ClearContext removes every tag set with SetContext.
func (c *Client) ClearContext() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.tags = nil
	c.log.Debug("context cleared")
}

// ClearReplay empties the session replay buffer.
func (c *Client) ClearReplay() {
	c.mutex.Lock()
	rec := c.recorder
	c.mutex.Unlock()
	if rec != nil {
		rec.Clear()
		c.log.Debug("session replay cleared")
	}
}

// Flush sends the current session replay on the beacon path, without
// waiting for a response. It is called automatically when the page is
// hidden. It reports whether a request was issued.
func (c *Client) Flush() bool {
	c.mutex.Lock()
	rec := c.recorder
	initialized := c.initialized
	user := c.user
	tags := c.tags.Clone()
	c.mutex.Unlock()
	if !initialized || rec == nil || !rec.Recording() {
		return false
	}

	ctx := c.capture.Context()
	ctx.UserID = c.currentUserID(user)
	ctx.Environment = c.options.Environment
	ctx.Release = c.options.Release
	ctx.Tags = tags

	snapshot := rec.Snapshot()
	return c.transport.SendBeacon(&event.IngestPayload{
		APIKey:        c.options.APIKey,
		Error:         event.CapturedError{Type: SessionEndType, Message: "Session ended"},
		Context:       ctx,
		SessionReplay: &snapshot,
	})
}

// SessionID identifies this client's page session.
func (c *Client) SessionID() string {
	return c.capture.SessionID()
}

// AnonymousID is the persistent id used when no user is set.
func (c *Client) AnonymousID() string {
	return c.anonymousID
}

// Recover reports a panic in the calling goroutine and swallows it. It must
// be called directly by a deferred function:
//
//	defer client.Recover()
func (c *Client) Recover() {
	if r := recover(); r != nil {
		c.capture.CaptureError(host.NewPanicError(r, debug.Stack()), nil)
	}
}
