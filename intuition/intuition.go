// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package intuition runs the sampling loop over a shared experience
stream: draw a batch, hand it to a pattern recognizer, keep what it
finds.

The engine never owns the stream exclusively; any number of producers
and other consumers hold the same handle concurrently. A build without
a stream fails at construction, never at first use. Failed or empty
samples yield an empty cycle result; the engine does not retry inside a
cycle, it just waits for the next one.

# Thread Safety

An engine is safe for concurrent Cycle calls, though the intended shape
is one Run loop per engine. History and Stats may be read at any time.
*/
package intuition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/axon/diagnostics"
	"github.com/AleutianAI/axon/internal/ring"
	"github.com/AleutianAI/axon/stream"
)

var (
	// ErrNoExperienceStream is returned by Build/NewEngine when no
	// stream handle was supplied.
	ErrNoExperienceStream = errors.New("intuition: experience stream is required")

	// ErrInvalidConfig is returned for out-of-range configuration.
	ErrInvalidConfig = errors.New("intuition: invalid configuration")
)

// Configuration defaults.
const (
	DefaultBatchSize     = 32
	DefaultCycleInterval = 100 * time.Millisecond
	DefaultHistorySize   = 256
)

// Config parameterizes an engine.
type Config struct {
	// Stream is the shared experience handle. Required.
	Stream stream.ExperienceReader

	// BatchSize is how many events each cycle requests.
	// Default: 32.
	BatchSize int

	// Strategy selects how batches are drawn.
	// Default: Uniform.
	Strategy stream.Strategy

	// CycleInterval paces Run when MaxCyclesPerSecond is unset.
	// Default: 100ms.
	CycleInterval time.Duration

	// MaxCyclesPerSecond caps the Run loop rate. Zero defers to
	// CycleInterval.
	MaxCyclesPerSecond float64

	// Recognizer extracts patterns from batches.
	// Default: FrequencyRecognizer.
	Recognizer PatternRecognizer

	// HistorySize bounds the retained pattern ring.
	// Default: 256.
	HistorySize int

	// Logger receives lifecycle records. Defaults to slog.Default.
	Logger *slog.Logger

	// Metrics receives cycle timings and counts. Defaults to the
	// no-op implementation.
	Metrics diagnostics.Metrics
}

// DefaultConfig returns the engine defaults. The stream must still be
// supplied by the caller.
func DefaultConfig() Config {
	return Config{
		BatchSize:     DefaultBatchSize,
		Strategy:      stream.Uniform,
		CycleInterval: DefaultCycleInterval,
		Recognizer:    FrequencyRecognizer{},
		HistorySize:   DefaultHistorySize,
	}
}

// Validate reports configuration errors. Zero values that have defaults
// are legal; only contradictions are rejected.
func (c Config) Validate() error {
	if c.Stream == nil {
		return ErrNoExperienceStream
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.CycleInterval < 0 {
		return fmt.Errorf("%w: cycle interval %v", ErrInvalidConfig, c.CycleInterval)
	}
	if c.MaxCyclesPerSecond < 0 {
		return fmt.Errorf("%w: max cycles per second %v", ErrInvalidConfig, c.MaxCyclesPerSecond)
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("%w: history size %d", ErrInvalidConfig, c.HistorySize)
	}
	if !c.Strategy.Valid() {
		return fmt.Errorf("%w: strategy %d", ErrInvalidConfig, uint8(c.Strategy))
	}
	return nil
}

// Engine is the cyclic sampler.
type Engine struct {
	stream     stream.ExperienceReader
	batchSize  int
	strategy   stream.Strategy
	recognizer PatternRecognizer
	limiter    *rate.Limiter
	history    *ring.Buffer[IdentifiedPattern]
	logger     *slog.Logger
	metrics    diagnostics.Metrics

	cycles      atomic.Int64
	emptyCycles atomic.Int64
	patterns    atomic.Int64
}

// NewEngine validates the config, fills defaults, and builds an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.CycleInterval == 0 {
		cfg.CycleInterval = DefaultCycleInterval
	}
	if cfg.Recognizer == nil {
		cfg.Recognizer = FrequencyRecognizer{}
	}
	if cfg.HistorySize == 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = diagnostics.NewNoOpMetrics()
	}

	pace := rate.Every(cfg.CycleInterval)
	if cfg.MaxCyclesPerSecond > 0 {
		pace = rate.Limit(cfg.MaxCyclesPerSecond)
	}

	return &Engine{
		stream:     cfg.Stream,
		batchSize:  cfg.BatchSize,
		strategy:   cfg.Strategy,
		recognizer: cfg.Recognizer,
		limiter:    rate.NewLimiter(pace, 1),
		history:    ring.New[IdentifiedPattern](cfg.HistorySize),
		logger:     cfg.Logger.With(slog.String("component", "intuition")),
		metrics:    cfg.Metrics,
	}, nil
}

// Cycle samples one batch and runs the recognizer over it.
//
// Description:
//
//	An empty buffer is a normal quiet period: the cycle returns an
//	empty result with no error and no retry. Sample and recognizer
//	failures are returned to the caller; Run logs them and keeps
//	going.
//
// Outputs:
//
//	[]IdentifiedPattern - Patterns found this cycle, appended to the
//	engine history. Nil when the batch was empty.
//	error - Non-nil when sampling or recognition failed.
func (e *Engine) Cycle(ctx context.Context) ([]IdentifiedPattern, error) {
	ctx, span := otel.Tracer("axon/intuition").Start(ctx, "intuition.Cycle")
	defer span.End()

	start := time.Now()
	e.cycles.Add(1)

	batch, err := e.stream.SampleBatch(e.batchSize, e.strategy)
	if err != nil {
		e.metrics.RecordCycleError("sample")
		span.RecordError(err)
		span.SetStatus(codes.Error, "sample failed")
		return nil, fmt.Errorf("intuition: sample batch: %w", err)
	}
	span.SetAttributes(attribute.Int("batch.size", len(batch)))

	if len(batch) == 0 {
		e.emptyCycles.Add(1)
		e.metrics.RecordCycle(time.Since(start).Seconds(), 0)
		return nil, nil
	}

	found, err := e.recognizer.Recognize(ctx, batch)
	if err != nil {
		e.metrics.RecordCycleError("recognize")
		span.RecordError(err)
		span.SetStatus(codes.Error, "recognize failed")
		return nil, fmt.Errorf("intuition: recognize (%s): %w", e.recognizer.Name(), err)
	}

	for _, p := range found {
		e.history.Push(p)
	}
	e.patterns.Add(int64(len(found)))
	span.SetAttributes(attribute.Int("patterns.found", len(found)))
	e.metrics.RecordCycle(time.Since(start).Seconds(), len(found))
	return found, nil
}

// Run cycles until ctx ends, paced by the configured limiter. Cycle
// errors are logged and counted, never fatal; the only exit is context
// cancellation, whose cause is returned.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("intuition engine running",
		slog.Int("batch_size", e.batchSize),
		slog.String("strategy", e.strategy.String()),
		slog.String("recognizer", e.recognizer.Name()))

	for {
		if err := e.limiter.Wait(ctx); err != nil {
			e.logger.Info("intuition engine stopped", slog.Any("cause", context.Cause(ctx)))
			return err
		}
		if _, err := e.Cycle(ctx); err != nil {
			e.logger.Warn("cycle failed", slog.Any("error", err))
		}
	}
}

// History returns a copy of the retained patterns, oldest first.
func (e *Engine) History() []IdentifiedPattern {
	return e.history.Snapshot()
}

// Stats is a point-in-time summary of engine activity.
type Stats struct {
	// Cycles counts Cycle invocations.
	Cycles int64

	// EmptyCycles counts cycles that sampled nothing.
	EmptyCycles int64

	// Patterns counts identifications across all cycles.
	Patterns int64

	// HistoryLen is the current retained pattern count.
	HistoryLen int
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Cycles:      e.cycles.Load(),
		EmptyCycles: e.emptyCycles.Load(),
		Patterns:    e.patterns.Load(),
		HistoryLen:  e.history.Len(),
	}
}
