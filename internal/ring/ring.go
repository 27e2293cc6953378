// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ring provides a bounded drop-oldest buffer shared by the
// write-ahead queue, the flight recorder, and pattern history.
//
// # Ownership Model
//
// A Buffer owns its backing array. Items are stored by value; callers
// keep no aliases into the buffer after Push returns.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Operations are serialized
// by a single mutex, which is acceptable at the call rates these
// consumers see (flush batches, diagnostic snapshots).
package ring

import (
	"sync"
	"sync/atomic"
)

// Buffer is a fixed-capacity circular buffer that overwrites the
// oldest item when full.
//
// # Description
//
// Buffer holds the most recent Cap() items pushed into it. When a
// Push arrives with the buffer at capacity, the oldest item is
// silently evicted and the dropped counter is incremented. This keeps
// memory bounded for producers that must never block.
//
// # Limitations
//
//   - Capacity is fixed at creation.
//   - Evicted items are unrecoverable; Dropped() only counts them.
type Buffer[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int
	tail    int
	size    int
	dropped atomic.Int64
}

// New creates an empty buffer holding at most capacity items.
// Panics if capacity <= 0; a zero-capacity ring cannot hold the
// item being pushed into it.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends an item, evicting the oldest when full.
//
// # Outputs
//
//   - bool: true when an item was evicted to make room.
func (b *Buffer[T]) Push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	evicted := false
	if b.size == len(b.items) {
		b.head = (b.head + 1) % len(b.items)
		b.size--
		b.dropped.Add(1)
		evicted = true
	}

	b.items[b.tail] = item
	b.tail = (b.tail + 1) % len(b.items)
	b.size++
	return evicted
}

// Pop removes and returns the oldest item. The second return is
// false when the buffer is empty.
func (b *Buffer[T]) Pop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if b.size == 0 {
		return zero, false
	}
	item := b.items[b.head]
	b.items[b.head] = zero
	b.head = (b.head + 1) % len(b.items)
	b.size--
	return item, true
}

// PopN removes and returns up to n oldest items, oldest first.
// Returns nil when n <= 0 or the buffer is empty.
func (b *Buffer[T]) PopN(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || b.size == 0 {
		return nil
	}
	if n > b.size {
		n = b.size
	}

	out := make([]T, n)
	var zero T
	for i := range out {
		out[i] = b.items[b.head]
		b.items[b.head] = zero
		b.head = (b.head + 1) % len(b.items)
		b.size--
	}
	return out
}

// Drain removes and returns every buffered item, oldest first.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return nil
	}
	out := make([]T, b.size)
	var zero T
	for i := range out {
		out[i] = b.items[b.head]
		b.items[b.head] = zero
		b.head = (b.head + 1) % len(b.items)
	}
	b.size = 0
	return out
}

// Snapshot returns a copy of the buffered items, oldest first,
// without consuming them. Returns nil when empty.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return nil
	}
	out := make([]T, b.size)
	idx := b.head
	for i := range out {
		out[i] = b.items[idx]
		idx = (idx + 1) % len(b.items)
	}
	return out
}

// Len returns the current number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Dropped returns the total number of items evicted since creation
// or the last Clear.
func (b *Buffer[T]) Dropped() int64 {
	return b.dropped.Load()
}

// Clear empties the buffer and resets the dropped counter.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head, b.tail, b.size = 0, 0, 0
	b.dropped.Store(0)
}
