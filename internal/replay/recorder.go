// Package replay records a bounded, ordered trail of user interaction for the
// current page session.
package replay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bugshot/bugshot-go/internal/interceptor"
	"github.com/bugshot/bugshot-go/internal/redact"
	"github.com/bugshot/bugshot-go/internal/shared"
	"github.com/bugshot/bugshot-go/pkg/event"
	"github.com/bugshot/bugshot-go/pkg/host"
)

// Host is the part of a page the recorder observes.
type Host interface {
	URL() string
	Title() string
	Document() *host.EventTarget
	Window() *host.EventTarget
	PushStateSlot() *host.Slot[host.HistoryFunc]
	ReplaceStateSlot() *host.Slot[host.HistoryFunc]
}

type Option func(*Recorder)

// WithMaxEvents bounds the number of retained events. Values below one are
// ignored.
func WithMaxEvents(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxEvents = n
		}
	}
}

// WithRedactedFields records inputs whose name or id is listed as a digest
// of their value.
func WithRedactedFields(names ...string) Option {
	return func(r *Recorder) {
		r.redacted = redact.NewFields(names...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

type Recorder struct {
	host      Host
	sessionID string
	maxEvents int
	redacted  redact.Fields
	now       func() time.Time
	log       *slog.Logger

	mu        sync.Mutex
	events    *ring[event.SessionReplayEvent]
	startedAt time.Time
	last      int64
	recording bool
	removers  []func()
	history   interceptor.Stack
}

func New(h Host, sessionID string, opts ...Option) *Recorder {
	r := &Recorder{
		host:      h,
		sessionID: sessionID,
		maxEvents: shared.DefaultMaxReplayEvents,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.events = newRing[event.SessionReplayEvent](r.maxEvents)
	r.startedAt = r.now()
	return r
}

// Start begins recording and records a pageview. Starting a recorder that is
// already recording is a no-op.
func (r *Recorder) Start() {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return
	}
	r.recording = true
	r.startedAt = r.now()
	r.last = 0

	r.removers = append(r.removers,
		r.host.Document().AddEventListener(host.EventClick, r.handleClick),
		r.host.Document().AddEventListener(host.EventInput, r.handleInput),
		r.host.Window().AddEventListener(host.EventPopState, func(host.Event) { r.recordLocation(event.ReplayNavigation) }),
	)
	interceptor.Wrap[host.HistoryFunc](&r.history, r.host.PushStateSlot(), r.wrapHistory)
	interceptor.Wrap[host.HistoryFunc](&r.history, r.host.ReplaceStateSlot(), r.wrapHistory)
	r.mu.Unlock()

	r.log.Debug("session recording started", "sessionId", r.sessionID)
	r.recordLocation(event.ReplayPageview)
}

// Stop removes every listener and restores the navigation entry points.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.recording = false
	for _, remove := range r.removers {
		remove()
	}
	r.removers = nil
	r.history.Restore()
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *Recorder) wrapHistory(prev host.HistoryFunc, ok bool) host.HistoryFunc {
	return func(state any, title, url string) {
		if ok {
			prev(state, title, url)
		}
		r.recordLocation(event.ReplayNavigation)
	}
}

func (r *Recorder) handleClick(ev host.Event) {
	me, ok := ev.(*host.MouseEvent)
	if !ok {
		return
	}
	r.record(event.ReplayClick, map[string]any{
		"tagName":   me.Target.TagName,
		"id":        me.Target.ID,
		"className": me.Target.ClassName,
		"text":      event.Truncate(me.Target.Text, shared.ReplayTextLimit),
		"x":         me.ClientX,
		"y":         me.ClientY,
	})
}

func (r *Recorder) handleInput(ev host.Event) {
	ie, ok := ev.(*host.InputEvent)
	if !ok {
		return
	}
	target := ie.Target
	if target.Type == "password" {
		return
	}
	value := event.Truncate(target.Value, shared.ReplayTextLimit)
	if r.redacted.Match(target.Name, target.ID) {
		value = redact.Value(target.Value)
	}
	r.record(event.ReplayInput, map[string]any{
		"tagName": target.TagName,
		"id":      target.ID,
		"name":    target.Name,
		"type":    target.Type,
		"value":   value,
	})
}

func (r *Recorder) recordLocation(typ event.ReplayEventType) {
	r.record(typ, map[string]any{
		"url":   r.host.URL(),
		"title": r.host.Title(),
	})
}

func (r *Recorder) record(typ event.ReplayEventType, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	ts := r.now().Sub(r.startedAt).Milliseconds()
	if ts < r.last {
		ts = r.last
	}
	r.last = ts
	r.events.push(event.SessionReplayEvent{Type: typ, Timestamp: ts, Data: data})
}

// Events returns the retained events in insertion order.
func (r *Recorder) Events() []event.SessionReplayEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events.items()
}

// Duration is the time in milliseconds since recording started or was last
// cleared.
func (r *Recorder) Duration() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now().Sub(r.startedAt).Milliseconds()
}

func (r *Recorder) SessionID() string {
	return r.sessionID
}

// Clear empties the buffer and resets the duration clock. Recording
// continues.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events.reset()
	r.startedAt = r.now()
	r.last = 0
}

func (r *Recorder) Snapshot() event.SessionReplay {
	r.mu.Lock()
	defer r.mu.Unlock()
	return event.SessionReplay{
		SessionID:  r.sessionID,
		DurationMs: r.now().Sub(r.startedAt).Milliseconds(),
		Events:     r.events.items(),
	}
}
