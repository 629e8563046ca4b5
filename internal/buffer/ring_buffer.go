// Package buffer provides a bounded ring buffer used as the client outbox.
package buffer

import (
	"sync"
)

// RingBuffer is a thread-safe circular buffer that keeps the most recent
// items up to a fixed capacity. When the buffer is full, the oldest item is
// discarded to make room for the new one.
//
// The sync agent queues strokes drawn while offline here and resends them
// after reconnecting.
type RingBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	dropped  int
	mu       sync.RWMutex
}

// NewRingBuffer creates a new RingBuffer with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends v. It reports whether the oldest item had to be discarded.
func (rb *RingBuffer[T]) Push(v T) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	tail := (rb.head + rb.size) % rb.capacity
	rb.items[tail] = v
	if rb.size < rb.capacity {
		rb.size++
		return false
	}

	// Full: the write overwrote the oldest slot.
	rb.head = (rb.head + 1) % rb.capacity
	rb.dropped++
	return true
}

// Items returns a copy of the buffered items, oldest first.
func (rb *RingBuffer[T]) Items() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.copyLocked()
}

// Drain returns the buffered items, oldest first, and empties the buffer.
func (rb *RingBuffer[T]) Drain() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := rb.copyLocked()
	rb.resetLocked()
	return out
}

func (rb *RingBuffer[T]) copyLocked() []T {
	if rb.size == 0 {
		return nil
	}
	out := make([]T, rb.size)
	for i := range out {
		out[i] = rb.items[(rb.head+i)%rb.capacity]
	}
	return out
}

func (rb *RingBuffer[T]) resetLocked() {
	var zero T
	for i := range rb.items {
		rb.items[i] = zero
	}
	rb.head = 0
	rb.size = 0
}

// Clear removes all items from the buffer.
func (rb *RingBuffer[T]) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.resetLocked()
}

// Len returns the current number of items in the buffer.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer[T]) Cap() int {
	return rb.capacity
}

// Dropped returns how many items were discarded because the buffer was full.
func (rb *RingBuffer[T]) Dropped() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.dropped
}
