// Package interceptor installs call-through wrappers around replaceable
// handlers and restores the originals exactly, in reverse installation order.
package interceptor

// Slot is a replaceable handler. ok reports whether a handler is installed.
type Slot[T any] interface {
	Get() (fn T, ok bool)
	Set(fn T)
	Clear()
}

// Stack records every wrapper installed through it.
type Stack struct {
	restores []func()
}

// Wrap replaces the handler in slot with wrap(prev, ok), where prev is the
// handler that was installed before (ok == false when there was none).
// The wrapper is expected to call prev when ok is true.
func Wrap[T any](s *Stack, slot Slot[T], wrap func(prev T, ok bool) T) {
	prev, ok := slot.Get()
	slot.Set(wrap(prev, ok))
	s.restores = append(s.restores, func() {
		if ok {
			slot.Set(prev)
		} else {
			slot.Clear()
		}
	})
}

// Restore puts back every saved handler, most recently installed first.
func (s *Stack) Restore() {
	for i := len(s.restores) - 1; i >= 0; i-- {
		s.restores[i]()
	}
	s.restores = nil
}

// Len returns the number of installed wrappers.
func (s *Stack) Len() int {
	return len(s.restores)
}
