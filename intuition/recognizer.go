// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intuition

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/axon/stream"
)

// IdentifiedPattern is one regularity extracted from a sampled batch.
type IdentifiedPattern struct {
	// ID is a fresh identifier for this identification.
	ID uuid.UUID

	// Kind is the recognizer-defined pattern label.
	Kind string

	// EventType is the event class the pattern is about.
	EventType stream.EventType

	// Support is the number of batch events backing the pattern.
	Support int

	// Share is Support divided by the batch size.
	Share float64

	// MeanReward is the average reward across supporting events.
	MeanReward float64

	// MeanNovelty is the average novelty across supporting events.
	MeanNovelty float64

	// DetectedAt is when the pattern was identified.
	DetectedAt time.Time
}

// PatternRecognizer turns a sampled batch into identified patterns.
//
// Description:
//
//	The recognizer is the collaborator boundary of the engine: the
//	engine owns sampling and pacing, the recognizer owns what counts
//	as a pattern. Implementations must not retain the batch slice.
//
// Thread Safety:
//
//	Recognize may be called concurrently when multiple engines share
//	one recognizer; implementations must be safe for that or be given
//	to a single engine.
type PatternRecognizer interface {
	// Name identifies the recognizer in logs and spans.
	Name() string

	// Recognize extracts patterns from a non-empty batch.
	Recognize(ctx context.Context, batch []stream.Event) ([]IdentifiedPattern, error)
}

// DefaultFrequencyThreshold is the batch share at which an event type
// becomes a frequency pattern.
const DefaultFrequencyThreshold = 0.25

// FrequencyRecognizer reports event types that dominate a batch.
//
// It is the reference implementation of the mechanical extraction step:
// count events per type, and every type holding at least Threshold of
// the batch becomes one pattern carrying its support, share, and mean
// appraisal signals.
type FrequencyRecognizer struct {
	// Threshold is the minimum batch share. Zero or negative means
	// DefaultFrequencyThreshold.
	Threshold float64
}

func (FrequencyRecognizer) Name() string { return "frequency" }

// Recognize counts batch composition by event type.
func (r FrequencyRecognizer) Recognize(_ context.Context, batch []stream.Event) ([]IdentifiedPattern, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	threshold := r.Threshold
	if threshold <= 0 {
		threshold = DefaultFrequencyThreshold
	}

	var (
		counts  [stream.NumEventTypes]int
		rewards [stream.NumEventTypes]float64
		novelty [stream.NumEventTypes]float64
	)
	for i := range batch {
		e := &batch[i]
		if !e.Type.Valid() {
			continue
		}
		counts[e.Type]++
		rewards[e.Type] += float64(e.Reward)
		novelty[e.Type] += float64(e.Novelty)
	}

	now := time.Now()
	var found []IdentifiedPattern
	for t, n := range counts {
		if n == 0 {
			continue
		}
		share := float64(n) / float64(len(batch))
		if share < threshold {
			continue
		}
		found = append(found, IdentifiedPattern{
			ID:          uuid.New(),
			Kind:        "event_frequency",
			EventType:   stream.EventType(t),
			Support:     n,
			Share:       share,
			MeanReward:  rewards[t] / float64(n),
			MeanNovelty: novelty[t] / float64(n),
			DetectedAt:  now,
		})
	}
	return found, nil
}

// Compile-time interface check.
var _ PatternRecognizer = FrequencyRecognizer{}
