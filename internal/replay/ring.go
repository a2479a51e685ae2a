package replay

// ring is a fixed-capacity buffer evicting its oldest entry first. It is not
// safe for concurrent use.
type ring[T any] struct {
	entries  []T
	head     int
	capacity int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{entries: make([]T, 0, capacity), capacity: capacity}
}

func (r *ring[T]) push(v T) {
	if len(r.entries) < r.capacity {
		r.entries = append(r.entries, v)
		return
	}
	r.entries[r.head] = v
	r.head = (r.head + 1) % r.capacity
}

// items returns the retained entries, oldest first.
func (r *ring[T]) items() []T {
	out := make([]T, 0, len(r.entries))
	out = append(out, r.entries[r.head:]...)
	out = append(out, r.entries[:r.head]...)
	return out
}

func (r *ring[T]) len() int { return len(r.entries) }

func (r *ring[T]) reset() {
	r.entries = r.entries[:0]
	r.head = 0
}
