package buffer

import "sync"

// Ring is a fixed-capacity circular buffer. When full, a push evicts the
// oldest element (strict FIFO eviction).
//
// Read methods return elements newest-first: consumers of the message bus
// ask for "recent messages", so index 0 is always the most recent element.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//     Broker callbacks and query callers run on different goroutines.
type Ring[T any] struct {
	mu    sync.RWMutex
	items []T
	cap   int
	write int // next write position
	size  int
}

// NewRing creates a ring buffer with the given capacity.
// A capacity below 1 is treated as 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		items: make([]T, capacity),
		cap:   capacity,
	}
}

// Push appends an item, evicting the oldest when the buffer is full.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.write] = item
	r.write = (r.write + 1) % r.cap
	if r.size < r.cap {
		r.size++
	}
}

// All returns every buffered item, newest-first.
func (r *Ring[T]) All() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot()
}

// snapshot builds the newest-first view. Caller must hold at least a
// read lock.
func (r *Ring[T]) snapshot() []T {
	if r.size == 0 {
		return nil
	}

	out := make([]T, 0, r.size)

	// Walk backwards from the slot most recently written, wrapping once
	// when the buffer is full.
	for i := r.write - 1; i >= 0; i-- {
		out = append(out, r.items[i])
	}
	if r.size == r.cap {
		for i := r.cap - 1; i >= r.write; i-- {
			out = append(out, r.items[i])
		}
	}
	return out
}

// Recent returns the n most recent items, newest-first.
// If n exceeds the current size, all items are returned.
func (r *Ring[T]) Recent(n int) []T {
	all := r.All()
	if n < len(all) {
		return all[:n]
	}
	return all
}

// Filter returns all items matching the predicate, newest-first.
func (r *Ring[T]) Filter(pred func(T) bool) []T {
	all := r.All()
	out := make([]T, 0, len(all))
	for _, item := range all {
		if pred(item) {
			out = append(out, item)
		}
	}
	return out
}

// Latest returns the most recently pushed item.
// The second return value is false when the buffer is empty.
func (r *Ring[T]) Latest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}

	idx := r.write - 1
	if idx < 0 {
		idx = r.cap - 1
	}
	return r.items[idx], true
}

// Oldest returns the least recently pushed item still in the buffer.
// The second return value is false when the buffer is empty.
func (r *Ring[T]) Oldest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	if r.size < r.cap {
		return r.items[0], true
	}
	return r.items[r.write], true
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return r.cap
}

// IsEmpty reports whether the buffer holds no items.
func (r *Ring[T]) IsEmpty() bool {
	return r.Len() == 0
}

// IsFull reports whether the buffer is at capacity.
func (r *Ring[T]) IsFull() bool {
	return r.Len() == r.cap
}

// Clear empties the buffer without changing its capacity.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = make([]T, r.cap)
	r.write = 0
	r.size = 0
}
