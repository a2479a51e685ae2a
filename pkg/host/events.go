package host

import (
	"fmt"
	"sync"
)

const (
	EventClick    = "click"
	EventInput    = "input"
	EventPopState = "popstate"
	EventPageHide = "pagehide"
)

// Event is anything dispatched through an EventTarget.
type Event interface {
	EventType() string
}

// Element describes the target of an interaction.
type Element struct {
	TagName   string
	ID        string
	ClassName string
	Name      string
	// Type is the input type, "password" marks a secret field.
	Type  string
	Value string
	Text  string
}

type MouseEvent struct {
	Target  Element
	ClientX int
	ClientY int
}

func (*MouseEvent) EventType() string { return EventClick }

type InputEvent struct {
	Target Element
}

func (*InputEvent) EventType() string { return EventInput }

type PopStateEvent struct {
	State any
}

func (*PopStateEvent) EventType() string { return EventPopState }

type PageHideEvent struct{}

func (*PageHideEvent) EventType() string { return EventPageHide }

// ErrorEvent carries an uncaught failure to the error slot.
type ErrorEvent struct {
	Message string
	Source  string
	Line    int
	Column  int
	Err     error
}

// RejectionEvent carries an unhandled asynchronous failure.
type RejectionEvent struct {
	Reason any
}

type (
	// ErrorHandler returns true when it fully handled the failure.
	ErrorHandler     func(ev *ErrorEvent) bool
	RejectionHandler func(ev *RejectionEvent)
	ConsoleFunc      func(args ...any)
	HistoryFunc      func(state any, title, url string)
	Listener         func(ev Event)
)

// Exception is a named failure raised by host code.
type Exception struct {
	Name    string
	Message string
	Stack   string
}

func (e *Exception) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

type listenerEntry struct {
	id int
	fn Listener
}

// EventTarget dispatches events to listeners in registration order.
type EventTarget struct {
	mu        sync.Mutex
	nextID    int
	listeners map[string][]listenerEntry
}

// AddEventListener registers fn for events of the given type and returns a
// function that removes it again.
func (t *EventTarget) AddEventListener(typ string, fn Listener) (remove func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listeners == nil {
		t.listeners = map[string][]listenerEntry{}
	}
	t.nextID++
	id := t.nextID
	t.listeners[typ] = append(t.listeners[typ], listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { t.remove(typ, id) })
	}
}

func (t *EventTarget) remove(typ string, id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := t.listeners[typ]
	for i, e := range entries {
		if e.id == id {
			t.listeners[typ] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// ListenerCount reports how many listeners are registered for typ.
func (t *EventTarget) ListenerCount(typ string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners[typ])
}

// Dispatch calls every listener registered for ev's type. Listeners run
// outside the lock so they may add or remove listeners themselves.
func (t *EventTarget) Dispatch(ev Event) {
	t.mu.Lock()
	entries := append([]listenerEntry(nil), t.listeners[ev.EventType()]...)
	t.mu.Unlock()
	for _, e := range entries {
		e.fn(ev)
	}
}
