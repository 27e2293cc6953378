// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stream

import (
	"encoding/binary"
	"runtime"
	"sync/atomic"
)

// hotBuffer is the lock-free ring under the stream.
//
// Each slot carries a sequence word implementing a per-slot seqlock:
//
//	0                 never written
//	(pos << 1) + 1    write in flight for global position pos
//	(pos << 1) + 2    stable, holding the event written at pos
//
// Writers claim a global position with one fetch-add (wait-free claim),
// then CAS the slot from its last stable value to the in-flight marker.
// The CAS only contends when a writer laps a slot whose previous write
// is still in flight; the spin is bounded by that single slot update.
//
// Readers load the sequence, copy the payload, and load again: any
// change in between means the copy is torn and must be discarded. A
// stable sequence that encodes a different position means the slot was
// overwritten after the reader chose it; the copy is valid but belongs
// to a newer event, so position-addressed reads reject it.
//
// The payload is held as word-atomic lanes, not plain bytes: a reader
// may copy a slot while a lapping writer is mid-store, and under the
// Go memory model that overlap must go through atomics even though
// the sequence recheck discards every torn copy. Lane loads and
// stores are Relaxed-equivalent in cost; ordering comes from the
// sequence word alone.
type hotBuffer struct {
	slots  []eventSlot
	cursor atomic.Uint64 // next global write position
}

// slotWords is the payload width in 64-bit lanes.
const slotWords = EventSize / 8

type eventSlot struct {
	seq  atomic.Uint64
	data [slotWords]atomic.Uint64
}

func newHotBuffer(capacity int) *hotBuffer {
	if capacity <= 0 {
		panic("stream: capacity must be positive")
	}
	return &hotBuffer{slots: make([]eventSlot, capacity)}
}

func (b *hotBuffer) capacity() int { return len(b.slots) }

// written returns the count of completed and in-flight writes.
func (b *hotBuffer) written() uint64 { return b.cursor.Load() }

// stableSeq is the sequence word for a completed write at pos.
func stableSeq(pos uint64) uint64 { return pos<<1 + 2 }

// posOf inverts stableSeq.
func posOf(seq uint64) uint64 { return (seq - 2) >> 1 }

// write claims the next position, stamps the event's Sequence with it,
// and publishes the 128-byte image. Reports the claimed position and
// whether an older event was evicted.
func (b *hotBuffer) write(e *Event) (pos uint64, evicted bool) {
	pos = b.cursor.Add(1) - 1
	s := &b.slots[pos%uint64(len(b.slots))]

	inflight := stableSeq(pos) - 1
	for {
		cur := s.seq.Load()
		if cur&1 == 0 && s.seq.CompareAndSwap(cur, inflight) {
			evicted = cur != 0
			break
		}
		// A lapped writer still owns the slot; its update is bounded.
		runtime.Gosched()
	}

	e.Sequence = uint32(pos)
	var image [EventSize]byte
	e.encode(image[:])
	for i := range s.data {
		s.data[i].Store(binary.LittleEndian.Uint64(image[i*8:]))
	}
	s.seq.Store(stableSeq(pos))
	return pos, evicted
}

// read copies the event written at pos. ok reports a good copy; torn
// reports a discarded copy due to a concurrent overwrite mid-read
// (callers may resample). Not-ok with torn false means the slot was
// empty, in flight, or already held a newer position.
func (b *hotBuffer) read(pos uint64, out *Event) (ok, torn bool) {
	s := &b.slots[pos%uint64(len(b.slots))]

	s1 := s.seq.Load()
	if s1 == 0 || s1&1 == 1 {
		return false, false
	}
	var image [EventSize]byte
	for i := range s.data {
		binary.LittleEndian.PutUint64(image[i*8:], s.data[i].Load())
	}
	if s.seq.Load() != s1 {
		return false, true
	}
	if posOf(s1) != pos {
		return false, false
	}

	// The image is a complete published record; decoding cannot fail.
	_ = out.UnmarshalBinary(image[:])
	return true, false
}
