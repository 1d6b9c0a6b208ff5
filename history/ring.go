// Package history provides a fixed-capacity, oldest-first buffer that is safe to read while
// it is being written.
//
// Every mutation publishes a new immutable snapshot, so readers never lock and never see
// a partially applied change. Writers are serialized. This suits a buffer that is written
// a few times a minute and read by every status request.
package history

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 100

type snapshot[T any] struct {
	items    []T
	capacity int
}

// Ring retains the most recently added items up to its capacity, evicting the oldest.
type Ring[T comparable] struct {
	mu    sync.Mutex // serializes writers
	state atomic.Pointer[snapshot[T]]
}

// New creates an empty ring with the given capacity.
func New[T comparable](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Ring[T]{}
	r.state.Store(&snapshot[T]{capacity: capacity})
	return r
}

// Add appends item, evicting the oldest item if the ring is full.
func (r *Ring[T]) Add(item T) {
	r.AddAll(item)
}

// AddAll appends items in order, evicting the oldest items as needed.
func (r *Ring[T]) AddAll(items ...T) {
	if len(items) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state.Load()
	next := make([]T, 0, min(len(cur.items)+len(items), cur.capacity))
	next = append(next, cur.items...)
	next = append(next, items...)
	r.state.Store(&snapshot[T]{items: tail(next, cur.capacity), capacity: cur.capacity})
}

// Remove deletes the first occurrence of item and reports whether it was present.
func (r *Ring[T]) Remove(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state.Load()
	for i, existing := range cur.items {
		if existing != item {
			continue
		}
		next := make([]T, 0, len(cur.items)-1)
		next = append(next, cur.items[:i]...)
		next = append(next, cur.items[i+1:]...)
		r.state.Store(&snapshot[T]{items: next, capacity: cur.capacity})
		return true
	}
	return false
}

// Contains reports whether item is retained.
func (r *Ring[T]) Contains(item T) bool {
	for _, existing := range r.state.Load().items {
		if existing == item {
			return true
		}
	}
	return false
}

// Items returns the retained items, oldest first. The returned slice is owned by the caller.
func (r *Ring[T]) Items() []T {
	items := r.state.Load().items
	result := make([]T, len(items))
	copy(result, items)
	return result
}

// Len returns the number of retained items.
func (r *Ring[T]) Len() int {
	return len(r.state.Load().items)
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return r.state.Load().capacity
}

// Resize changes the capacity. When shrinking, the newest items are kept.
func (r *Ring[T]) Resize(capacity int) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state.Load()
	r.state.Store(&snapshot[T]{items: tail(cur.items, capacity), capacity: capacity})
}

// Clear removes all items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.Store(&snapshot[T]{capacity: r.state.Load().capacity})
}

// tail returns the last n items of s. The result may share memory with s, which is fine
// because published snapshots are never written to.
func tail[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
