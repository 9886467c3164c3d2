// Package tevring provides a fixed-capacity ring of recent values.
package tevring

import "sync"

// Ring is a fixed-capacity FIFO collection of recent values. Adding to a
// full ring evicts the oldest value.
type Ring[T any] struct {
	mtx  sync.Mutex
	buf  []T
	head int // index of the oldest value
	size int
}

// New returns an empty ring with the given capacity, minimum 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf: make([]T, capacity),
	}
}

// Add the value to the ring. If the ring was full, the evicted oldest value
// is returned with true.
func (r *Ring[T]) Add(val T) (evicted T, ok bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	tail := r.head + r.size
	if tail >= len(r.buf) {
		tail -= len(r.buf)
	}

	if r.size == len(r.buf) {
		evicted, ok = r.buf[r.head], true
		r.head++
		if r.head >= len(r.buf) {
			r.head = 0
		}
		r.buf[tail] = val
		return evicted, ok
	}

	r.buf[tail] = val
	r.size++
	return evicted, false
}

// Walk calls fn for each value, oldest first, stopping at the first error.
// The ring is locked for the duration, which blocks Add.
func (r *Ring[T]) Walk(fn func(T) error) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for i := 0; i < r.size; i++ {
		idx := r.head + i
		if idx >= len(r.buf) {
			idx -= len(r.buf)
		}
		if err := fn(r.buf[idx]); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of values currently held.
func (r *Ring[T]) Len() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.size
}

// Cap returns the ring's fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}
