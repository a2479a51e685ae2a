package host

import "sync"

// Slot holds one replaceable handler, the equivalent of an assignable global
// hook. A Slot that was never set, or was cleared, reports ok == false.
type Slot[T any] struct {
	mu  sync.RWMutex
	fn  T
	set bool
}

func (s *Slot[T]) Get() (fn T, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fn, s.set
}

func (s *Slot[T]) Set(fn T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
	s.set = true
}

func (s *Slot[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.fn = zero
	s.set = false
}
