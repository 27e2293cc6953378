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
	"log/slog"
	"time"

	"github.com/AleutianAI/axon/diagnostics"
	"github.com/AleutianAI/axon/stream"
)

// Builder constructs an engine with validation.
//
// Description:
//
//	Builder provides a fluent API over Config. Every setter returns the
//	builder for chaining; Build validates the accumulated config and
//	fails when no experience stream was attached, so a misassembled
//	engine never reaches its first cycle.
//
// Thread Safety:
//
//	Builder is NOT safe for concurrent use. Assemble the engine in a
//	single goroutine.
//
// Example:
//
//	engine, err := intuition.NewBuilder().
//	    WithExperience(s).
//	    WithBatchSize(64).
//	    WithStrategy(stream.Stratified).
//	    Build()
type Builder struct {
	cfg Config
}

// NewBuilder creates a builder seeded with the engine defaults.
func NewBuilder() *Builder {
	return &Builder{cfg: DefaultConfig()}
}

// WithExperience attaches the shared experience stream.
func (b *Builder) WithExperience(s stream.ExperienceReader) *Builder {
	b.cfg.Stream = s
	return b
}

// WithBatchSize sets how many events each cycle requests.
func (b *Builder) WithBatchSize(n int) *Builder {
	b.cfg.BatchSize = n
	return b
}

// WithStrategy selects the sampling strategy.
func (b *Builder) WithStrategy(s stream.Strategy) *Builder {
	b.cfg.Strategy = s
	return b
}

// WithCycleInterval sets the pacing interval for Run.
func (b *Builder) WithCycleInterval(d time.Duration) *Builder {
	b.cfg.CycleInterval = d
	return b
}

// WithMaxCyclesPerSecond caps the Run loop rate, overriding the
// interval when positive.
func (b *Builder) WithMaxCyclesPerSecond(limit float64) *Builder {
	b.cfg.MaxCyclesPerSecond = limit
	return b
}

// WithRecognizer replaces the pattern recognizer.
func (b *Builder) WithRecognizer(r PatternRecognizer) *Builder {
	b.cfg.Recognizer = r
	return b
}

// WithHistorySize bounds the retained pattern ring.
func (b *Builder) WithHistorySize(n int) *Builder {
	b.cfg.HistorySize = n
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.cfg.Logger = l
	return b
}

// WithMetrics sets the metrics sink.
func (b *Builder) WithMetrics(m diagnostics.Metrics) *Builder {
	b.cfg.Metrics = m
	return b
}

// Build validates the config and constructs the engine.
//
// Outputs:
//
//	*Engine - The constructed engine.
//	error - ErrNoExperienceStream when no stream was attached, or
//	ErrInvalidConfig for out-of-range values.
func (b *Builder) Build() (*Engine, error) {
	return NewEngine(b.cfg)
}
