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
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/axon/wal"
)

// seqEvent builds a valid event whose Lo identifies its write order.
func seqEvent(lo uint64) *Event {
	return &Event{
		ID:        EventID{Hi: 1, Lo: lo},
		Timestamp: 1,
		Type:      EventObservation,
	}
}

// fill writes events with Lo = 0..n-1.
func fill(t *testing.T, s *Stream, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.WriteEvent(seqEvent(uint64(i))))
	}
}

func TestNewClampsWindow(t *testing.T) {
	assert.Equal(t, 100, New(100, 0).WindowSize())
	assert.Equal(t, 100, New(100, 500).WindowSize())
	assert.Equal(t, 10, New(100, 10).WindowSize())
	assert.Equal(t, 100, New(100, 10).Capacity())
}

func TestNewPanicsOnBadCapacity(t *testing.T) {
	assert.Panics(t, func() { New(0, 0) })
	assert.Panics(t, func() { New(-5, 0) })
}

func TestWriteEventRejectsMalformed(t *testing.T) {
	s := New(8, 8)

	require.ErrorIs(t, s.WriteEvent(nil), ErrInvalidEvent)

	zero := &Event{Type: EventObservation}
	require.ErrorIs(t, s.WriteEvent(zero), ErrInvalidEvent)

	bad := seqEvent(1)
	bad.Type = NumEventTypes
	require.ErrorIs(t, s.WriteEvent(bad), ErrInvalidEvent)

	assert.Zero(t, s.Stats().Written)
	assert.Zero(t, s.Retained())
}

func TestWriteEventAssignsSequence(t *testing.T) {
	s := New(8, 8)

	for want := uint32(0); want < 3; want++ {
		e := seqEvent(uint64(want))
		require.NoError(t, s.WriteEvent(e))
		assert.Equal(t, want, e.Sequence)
	}
}

func TestWriteEventStampsTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 42)
	s := New(8, 8, WithClock(func() time.Time { return now }))

	e := seqEvent(1)
	e.Timestamp = 0
	require.NoError(t, s.WriteEvent(e))
	assert.Equal(t, uint64(now.UnixNano()), e.Timestamp)

	// An explicit producer timestamp is kept.
	e2 := seqEvent(2)
	e2.Timestamp = 777
	require.NoError(t, s.WriteEvent(e2))
	assert.Equal(t, uint64(777), e2.Timestamp)
}

func TestRetentionEvictsOldest(t *testing.T) {
	// 250 writes into 100 slots: only the last 100 stay observable.
	s := New(100, 100)
	fill(t, s, 250)

	assert.Equal(t, 100, s.Retained())
	st := s.Stats()
	assert.Equal(t, int64(250), st.Written)
	assert.Equal(t, int64(150), st.Overwritten)

	for i := 0; i < 20; i++ {
		batch, err := s.SampleBatch(100, Uniform)
		require.NoError(t, err)
		require.NotEmpty(t, batch)
		for _, e := range batch {
			assert.GreaterOrEqual(t, e.ID.Lo, uint64(150),
				"evicted event leaked into a sample")
		}
	}
}

func TestSamplingWindowBoundsDraw(t *testing.T) {
	// Window 10 narrows sampling to the 10 most recent events even
	// though 100 remain retained.
	s := New(100, 10)
	fill(t, s, 250)

	for i := 0; i < 20; i++ {
		batch, err := s.SampleBatch(10, Uniform)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(batch), 10)
		for _, e := range batch {
			assert.GreaterOrEqual(t, e.ID.Lo, uint64(240))
		}
	}
}

func TestSampleBatchSizeBounds(t *testing.T) {
	s := New(100, 100)

	// Empty buffer: empty batch, no error.
	batch, err := s.SampleBatch(10, Uniform)
	require.NoError(t, err)
	assert.Empty(t, batch)

	fill(t, s, 5)

	batch, err = s.SampleBatch(10, Uniform)
	require.NoError(t, err)
	assert.Len(t, batch, 5)

	batch, err = s.SampleBatch(0, Uniform)
	require.NoError(t, err)
	assert.Empty(t, batch)

	batch, err = s.SampleBatch(3, Uniform)
	require.NoError(t, err)
	assert.Len(t, batch, 3)
}

func TestSampleUniformWithoutReplacement(t *testing.T) {
	s := New(50, 50)
	fill(t, s, 50)

	batch, err := s.SampleBatch(50, Uniform)
	require.NoError(t, err)
	require.Len(t, batch, 50)

	seen := make(map[uint64]struct{}, len(batch))
	for _, e := range batch {
		_, dup := seen[e.ID.Lo]
		assert.False(t, dup, "event %d drawn twice in one call", e.ID.Lo)
		seen[e.ID.Lo] = struct{}{}
	}
}

func TestSampleRecency(t *testing.T) {
	s := New(100, 100)
	fill(t, s, 20)

	batch, err := s.SampleBatch(5, Recency)
	require.NoError(t, err)
	require.Len(t, batch, 5)

	for i, e := range batch {
		assert.Equal(t, uint64(19-i), e.ID.Lo, "newest first")
	}
}

func TestSampleStratifiedSpansWindow(t *testing.T) {
	s := New(100, 100)
	fill(t, s, 100)

	batch, err := s.SampleBatch(10, Stratified)
	require.NoError(t, err)
	require.Len(t, batch, 10)

	// One draw per decile, oldest span first.
	for i, e := range batch {
		assert.GreaterOrEqual(t, e.ID.Lo, uint64(i*10))
		assert.Less(t, e.ID.Lo, uint64((i+1)*10))
	}
}

func TestSampleUnknownStrategy(t *testing.T) {
	s := New(8, 8)
	fill(t, s, 4)

	_, err := s.SampleBatch(2, Strategy(47))
	require.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestSampleCountsInStats(t *testing.T) {
	s := New(16, 16)
	fill(t, s, 16)

	batch, err := s.SampleBatch(4, Uniform)
	require.NoError(t, err)
	assert.Equal(t, int64(len(batch)), s.Stats().Sampled)
}

// -----------------------------------------------------------------------------
// WAL Forwarding
// -----------------------------------------------------------------------------

type captureWAL struct {
	mu      sync.Mutex
	entries []wal.Entry
}

func (w *captureWAL) AppendGraphMutation(_ context.Context, e wal.Entry) error {
	return w.AppendEvent(context.Background(), e)
}

func (w *captureWAL) AppendEvent(_ context.Context, e wal.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, e)
	return nil
}

func (w *captureWAL) Close() error { return nil }

func TestWriteEventForwardsToWAL(t *testing.T) {
	w := &captureWAL{}
	s := New(8, 8, WithWAL(w))
	fill(t, s, 3)

	require.Len(t, w.entries, 3)
	for i, entry := range w.entries {
		assert.Equal(t, wal.KindExperience, entry.Kind)
		require.Len(t, entry.Payload, EventSize)

		var e Event
		require.NoError(t, e.UnmarshalBinary(entry.Payload))
		assert.Equal(t, uint64(i), e.ID.Lo)
		assert.Equal(t, uint32(i), e.Sequence)
	}
}

// -----------------------------------------------------------------------------
// Concurrency
// -----------------------------------------------------------------------------

func TestConcurrentWritersAndSamplers(t *testing.T) {
	const (
		writers   = 4
		perWriter = 2000
	)
	s := New(64, 64)

	var wg sync.WaitGroup
	done := make(chan struct{})

	for g := 0; g < writers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				lo := uint64(g*100000 + i)
				e := seqEvent(lo)
				// Mirror the id at both ends of the state vector; a
				// torn copy that escaped validation would break this.
				e.State[0] = float32(lo)
				e.State[StateDim-1] = float32(lo)
				assert.NoError(t, s.WriteEvent(e))
			}
		}(g)
	}

	var samplerWG sync.WaitGroup
	for r := 0; r < 2; r++ {
		samplerWG.Add(1)
		go func() {
			defer samplerWG.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				batch, err := s.SampleBatch(16, Uniform)
				assert.NoError(t, err)
				for _, e := range batch {
					assert.NoError(t, e.Validate())
					assert.Equal(t, float32(e.ID.Lo), e.State[0])
					assert.Equal(t, e.State[0], e.State[StateDim-1])
				}
			}
		}()
	}

	wg.Wait()
	close(done)
	samplerWG.Wait()

	st := s.Stats()
	assert.Equal(t, int64(writers*perWriter), st.Written)
	assert.Equal(t, int64(writers*perWriter-64), st.Overwritten)
	assert.Equal(t, 64, s.Retained())
}

func TestConcurrentSamplersSeeRecentWindow(t *testing.T) {
	// Writers race ahead while samplers check the eviction floor: no
	// sampled event may be older than written-minus-capacity at the
	// moment the sample completes.
	s := New(32, 32)
	fill(t, s, 32)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	next := uint64(32)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			assert.NoError(t, s.WriteEvent(seqEvent(next)))
			next++
		}
	}()

	for i := 0; i < 200; i++ {
		floorBefore := s.Stats().Written - 32
		batch, err := s.SampleBatch(8, Uniform)
		require.NoError(t, err)
		for _, e := range batch {
			if floorBefore > 0 {
				assert.GreaterOrEqual(t, e.ID.Lo, uint64(floorBefore),
					"sample older than the retention floor at call start")
			}
		}
	}
	close(stop)
	wg.Wait()

	if torn := s.Stats().TornReads; torn > 0 {
		t.Logf("torn reads detected and discarded: %d", torn)
	}
}

func TestHotBufferSlotStates(t *testing.T) {
	b := newHotBuffer(4)

	var e Event
	ok, torn := b.read(0, &e)
	assert.False(t, ok)
	assert.False(t, torn)

	in := seqEvent(7)
	pos, evicted := b.write(in)
	assert.Equal(t, uint64(0), pos)
	assert.False(t, evicted)

	ok, torn = b.read(0, &e)
	require.True(t, ok)
	assert.False(t, torn)
	assert.Equal(t, uint64(7), e.ID.Lo)

	// Fill the remaining fresh slots; nothing is evicted yet.
	for lo := uint64(8); lo < 11; lo++ {
		_, evicted := b.write(seqEvent(lo))
		assert.False(t, evicted)
	}

	// Lap the ring: position 4 reclaims slot 0 and the old read
	// address goes stale.
	_, evicted = b.write(seqEvent(11))
	assert.True(t, evicted)

	ok, _ = b.read(0, &e)
	assert.False(t, ok, "stale position must not read")
	ok, _ = b.read(4, &e)
	require.True(t, ok)
	assert.Equal(t, uint64(11), e.ID.Lo)
}

func TestHotBufferLappedReadsNeverTear(t *testing.T) {
	// A two-slot ring laps on every other write, so readers overlap
	// in-flight stores constantly. Every copy that survives the
	// sequence recheck must be internally consistent: the id is
	// mirrored across the full payload and any mixture of two writes
	// would break the mirror.
	const writes = 20000
	b := newHotBuffer(2)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(0); i < writes; i++ {
			e := seqEvent(i)
			e.SourceID = uint32(i)
			e.Reward = float32(i)
			e.State[0] = float32(i)
			e.State[StateDim-1] = float32(i)
			b.write(e)
		}
	}()

	var reads, torn int
	var e Event
	for b.written() < writes {
		pos := b.written()
		if pos == 0 {
			continue
		}
		ok, wasTorn := b.read(pos-1, &e)
		if wasTorn {
			torn++
		}
		if !ok {
			continue
		}
		reads++
		lo := e.ID.Lo
		assert.Equal(t, uint32(lo), e.SourceID)
		assert.Equal(t, float32(lo), e.Reward)
		assert.Equal(t, float32(lo), e.State[0])
		assert.Equal(t, float32(lo), e.State[StateDim-1])
		assert.Equal(t, uint32(lo), e.Sequence)
	}
	wg.Wait()

	// Quiescent read: the final write is stable and must verify.
	ok, wasTorn := b.read(writes-1, &e)
	require.True(t, ok)
	assert.False(t, wasTorn)
	assert.Equal(t, uint64(writes-1), e.ID.Lo)
	assert.Equal(t, float32(writes-1), e.State[StateDim-1])

	t.Logf("good copies %d, torn discards %d", reads, torn)
}

func TestRecencySkipsNothingWhenQuiet(t *testing.T) {
	// With no concurrent writers every recency draw is complete.
	s := New(16, 8)
	fill(t, s, 100)

	batch, err := s.SampleBatch(8, Recency)
	require.NoError(t, err)
	require.Len(t, batch, 8)

	los := make([]uint64, len(batch))
	for i, e := range batch {
		los[i] = e.ID.Lo
	}
	sort.Slice(los, func(i, j int) bool { return los[i] < los[j] })
	assert.Equal(t, []uint64{92, 93, 94, 95, 96, 97, 98, 99}, los)
}
