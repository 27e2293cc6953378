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

import "math/rand/v2"

// The strategies below draw from the position range [lo, hi). Reads
// that lose a race with a concurrent overwrite are skipped; uniform
// sampling keeps walking its shuffled candidates, so short batches only
// happen when the whole window churns during the call.
//
// math/rand/v2 top-level functions are safe for concurrent use, which
// keeps samplers lock-free alongside writers.

// sampleUniform draws up to n distinct positions with equal probability.
func (s *Stream) sampleUniform(lo, hi uint64, n int) []Event {
	window := int(hi - lo)
	positions := make([]uint64, window)
	for i := range positions {
		positions[i] = lo + uint64(i)
	}
	rand.Shuffle(window, func(i, j int) {
		positions[i], positions[j] = positions[j], positions[i]
	})

	if n > window {
		n = window
	}
	batch := make([]Event, 0, n)
	var e Event
	for _, pos := range positions {
		if len(batch) == n {
			break
		}
		if s.readAt(pos, &e) {
			batch = append(batch, e)
		}
	}
	return batch
}

// sampleRecency collects the newest events first.
func (s *Stream) sampleRecency(lo, hi uint64, n int) []Event {
	if w := int(hi - lo); n > w {
		n = w
	}
	batch := make([]Event, 0, n)
	var e Event
	for pos := hi; pos > lo && len(batch) < n; pos-- {
		if s.readAt(pos-1, &e) {
			batch = append(batch, e)
		}
	}
	return batch
}

// sampleStratified splits [lo, hi) into n equal spans and draws one
// position uniformly inside each, oldest span first.
func (s *Stream) sampleStratified(lo, hi uint64, n int) []Event {
	window := hi - lo
	if uint64(n) > window {
		n = int(window)
	}
	batch := make([]Event, 0, n)
	var e Event
	for i := 0; i < n; i++ {
		start := lo + uint64(i)*window/uint64(n)
		end := lo + uint64(i+1)*window/uint64(n)
		pos := start + rand.Uint64N(end-start)
		if s.readAt(pos, &e) {
			batch = append(batch, e)
		}
	}
	return batch
}
