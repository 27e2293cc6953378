// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ring

import (
	"sync"
	"testing"
)

// =============================================================================
// Constructor Tests
// =============================================================================

// TestNew verifies initial state of a fresh buffer.
func TestNew(t *testing.T) {
	b := New[int](10)

	if b.Cap() != 10 {
		t.Errorf("Cap() = %d, want 10", b.Cap())
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
	if b.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", b.Dropped())
	}
}

// TestNew_PanicsOnNonPositiveCapacity verifies the capacity guard.
func TestNew_PanicsOnNonPositiveCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("New(%d) should panic", capacity)
				}
			}()
			New[int](capacity)
		}()
	}
}

// =============================================================================
// Push and Pop Tests
// =============================================================================

// TestBuffer_PushEvictsOldest verifies overflow drops the oldest item.
func TestBuffer_PushEvictsOldest(t *testing.T) {
	b := New[int](3)

	for i := 1; i <= 3; i++ {
		if evicted := b.Push(i); evicted {
			t.Errorf("Push(%d) should not have evicted", i)
		}
	}
	if evicted := b.Push(4); !evicted {
		t.Error("Push(4) should have evicted the oldest item")
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}

	// Oldest surviving item is now 2.
	got, ok := b.Pop()
	if !ok || got != 2 {
		t.Errorf("Pop() = %d, %v, want 2, true", got, ok)
	}
}

// TestBuffer_PopOrder verifies FIFO order and empty handling.
func TestBuffer_PopOrder(t *testing.T) {
	b := New[string](4)

	if _, ok := b.Pop(); ok {
		t.Error("Pop() from empty buffer should return false")
	}

	b.Push("a")
	b.Push("b")
	b.Push("c")

	want := []string{"a", "b", "c"}
	for _, w := range want {
		got, ok := b.Pop()
		if !ok || got != w {
			t.Errorf("Pop() = %q, %v, want %q, true", got, ok, w)
		}
	}
	if _, ok := b.Pop(); ok {
		t.Error("Pop() after draining should return false")
	}
}

// =============================================================================
// Batch Tests
// =============================================================================

// TestBuffer_PopN verifies batch removal clamps to available items.
func TestBuffer_PopN(t *testing.T) {
	b := New[int](8)
	for i := 0; i < 5; i++ {
		b.Push(i)
	}

	if got := b.PopN(0); got != nil {
		t.Errorf("PopN(0) = %v, want nil", got)
	}

	batch := b.PopN(3)
	if len(batch) != 3 || batch[0] != 0 || batch[2] != 2 {
		t.Errorf("PopN(3) = %v, want [0 1 2]", batch)
	}

	batch = b.PopN(10)
	if len(batch) != 2 || batch[0] != 3 || batch[1] != 4 {
		t.Errorf("PopN(10) = %v, want [3 4]", batch)
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d after full drain, want 0", b.Len())
	}
}

// TestBuffer_Drain verifies Drain empties the buffer in order.
func TestBuffer_Drain(t *testing.T) {
	b := New[int](3)
	b.Push(1)
	b.Push(2)
	b.Push(3)
	b.Push(4) // evicts 1

	got := b.Drain()
	if len(got) != 3 || got[0] != 2 || got[1] != 3 || got[2] != 4 {
		t.Errorf("Drain() = %v, want [2 3 4]", got)
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d after Drain, want 0", b.Len())
	}
	if b.Drain() != nil {
		t.Error("Drain() on empty buffer should return nil")
	}
}

// TestBuffer_Snapshot verifies Snapshot copies without consuming.
func TestBuffer_Snapshot(t *testing.T) {
	b := New[int](4)
	if b.Snapshot() != nil {
		t.Error("Snapshot() on empty buffer should return nil")
	}

	b.Push(7)
	b.Push(8)

	snap := b.Snapshot()
	if len(snap) != 2 || snap[0] != 7 || snap[1] != 8 {
		t.Errorf("Snapshot() = %v, want [7 8]", snap)
	}
	if b.Len() != 2 {
		t.Errorf("Len() = %d after Snapshot, want 2", b.Len())
	}
}

// TestBuffer_Clear verifies Clear resets contents and counters.
func TestBuffer_Clear(t *testing.T) {
	b := New[int](2)
	b.Push(1)
	b.Push(2)
	b.Push(3)

	b.Clear()
	if b.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", b.Len())
	}
	if b.Dropped() != 0 {
		t.Errorf("Dropped() = %d after Clear, want 0", b.Dropped())
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

// TestBuffer_ConcurrentPushPop hammers the buffer from multiple
// goroutines and checks the accounting stays consistent.
func TestBuffer_ConcurrentPushPop(t *testing.T) {
	const (
		writers       = 8
		itemsPerWrite = 1000
	)
	b := New[int](64)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < itemsPerWrite; i++ {
				b.Push(base + i)
			}
		}(w * itemsPerWrite)
	}

	var consumed int64
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < writers*itemsPerWrite/2; i++ {
			if _, ok := b.Pop(); ok {
				consumed++
			}
		}
	}()
	wg.Wait()

	remaining := int64(b.Len())
	total := consumed + remaining + b.Dropped()
	if total != writers*itemsPerWrite {
		t.Errorf("consumed(%d) + remaining(%d) + dropped(%d) = %d, want %d",
			consumed, remaining, b.Dropped(), total, writers*itemsPerWrite)
	}
}
