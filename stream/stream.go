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
Package stream is the bounded concurrent experience buffer of the Axon
substrate: producers write fixed 128-byte events, consumers draw sampled
batches, and neither side blocks the other for longer than one slot
update.

The buffer is a ring of `capacity` slots with drop-oldest overwrite. A
full buffer is expected steady state, not an error; durability belongs
to the write-ahead-log collaborator, which receives every accepted event
fire-and-forget.

# Ownership Model

The stream owns its slots. WriteEvent copies the event image in (the
stream stamps Sequence on the caller's event as a side effect) and
SampleBatch copies images out, so no caller ever holds a reference into
the ring. The stream handle itself is shared by reference: producers
and any number of consumers hold the same *Stream, and the buffer lives
as long as any holder does.

# Thread Safety

All methods are safe for concurrent use by multiple producers and
multiple consumers. There is no whole-buffer lock: writers coordinate
through one atomic cursor and per-slot sequence words, and readers
validate those words around each copy, discarding torn snapshots.
*/
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/axon/diagnostics"
	"github.com/AleutianAI/axon/wal"
)

// Strategy selects how SampleBatch draws from the window.
type Strategy uint8

const (
	// Uniform draws with equal probability, without replacement
	// within a single call.
	Uniform Strategy = iota

	// Recency returns the most recent events, newest first.
	Recency

	// Stratified splits the window into equal spans and draws one
	// event from each, preserving temporal spread.
	Stratified
)

// Valid reports whether s names a defined strategy.
func (s Strategy) Valid() bool {
	return s <= Stratified
}

func (s Strategy) String() string {
	switch s {
	case Uniform:
		return "uniform"
	case Recency:
		return "recency"
	case Stratified:
		return "stratified"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// ErrUnknownStrategy rejects sampling with an undefined strategy value.
var ErrUnknownStrategy = fmt.Errorf("stream: unknown sampling strategy")

// ExperienceWriter is the producer-side surface of a stream.
type ExperienceWriter interface {
	// WriteEvent publishes one event, overwriting the oldest slot
	// when the buffer is full.
	WriteEvent(e *Event) error
}

// ExperienceReader is the consumer-side surface of a stream.
type ExperienceReader interface {
	// SampleBatch draws up to n retained events per the strategy.
	SampleBatch(n int, strategy Strategy) ([]Event, error)

	// Retained reports how many events are currently observable.
	Retained() int
}

// Options configure a Stream beyond its two capacities.
type Options struct {
	// Logger receives lifecycle records. Defaults to slog.Default.
	Logger *slog.Logger

	// Metrics receives write/sample/torn-read counts. Defaults to
	// the no-op implementation.
	Metrics diagnostics.Metrics

	// WAL receives every accepted event fire-and-forget. Nil disables
	// forwarding.
	WAL wal.Writer

	// Clock supplies timestamps for events written without one.
	// Defaults to time.Now.
	Clock func() time.Time
}

// Option mutates Options.
type Option func(*Options)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m diagnostics.Metrics) Option { return func(o *Options) { o.Metrics = m } }

// WithWAL forwards accepted events to a write-ahead log.
func WithWAL(w wal.Writer) Option { return func(o *Options) { o.WAL = w } }

// WithClock overrides the timestamp source.
func WithClock(fn func() time.Time) Option { return func(o *Options) { o.Clock = fn } }

// Stream is the hot experience buffer.
type Stream struct {
	buf    *hotBuffer
	window int

	logger  *slog.Logger
	metrics diagnostics.Metrics
	wal     wal.Writer
	clock   func() time.Time

	written     atomic.Int64
	overwritten atomic.Int64
	sampled     atomic.Int64
	torn        atomic.Int64
}

// Compile-time interface checks.
var (
	_ ExperienceWriter = (*Stream)(nil)
	_ ExperienceReader = (*Stream)(nil)
)

// New creates a stream with capacity ring slots. windowSize bounds how
// many of the most recent events a sampling call draws from; values
// outside (0, capacity] clamp to capacity. Panics if capacity is not
// positive: sizing is a construction-time contract.
func New(capacity, windowSize int, opts ...Option) *Stream {
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Metrics == nil {
		options.Metrics = diagnostics.NewNoOpMetrics()
	}
	if options.Clock == nil {
		options.Clock = time.Now
	}
	if windowSize <= 0 || windowSize > capacity {
		windowSize = capacity
	}

	return &Stream{
		buf:     newHotBuffer(capacity),
		window:  windowSize,
		logger:  options.Logger.With(slog.String("component", "stream")),
		metrics: options.Metrics,
		wal:     options.WAL,
		clock:   options.Clock,
	}
}

// Capacity returns the ring slot count.
func (s *Stream) Capacity() int { return s.buf.capacity() }

// WindowSize returns the default sampling window.
func (s *Stream) WindowSize() int { return s.window }

// Retained reports how many events are currently observable.
func (s *Stream) Retained() int {
	written := s.buf.written()
	if c := uint64(s.buf.capacity()); written > c {
		return int(c)
	}
	return int(written)
}

// WriteEvent publishes one event into the ring.
//
// The stream stamps Sequence (and Timestamp, when zero) on the caller's
// event before copying its image in. Overwriting the oldest event is
// success; the only failure is malformed input.
func (s *Stream) WriteEvent(e *Event) error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Timestamp == 0 {
		e.Timestamp = uint64(s.clock().UnixNano())
	}

	_, evicted := s.buf.write(e)

	s.written.Add(1)
	s.metrics.RecordEventWritten(e.Type.String())
	if evicted {
		s.overwritten.Add(1)
		s.metrics.RecordEventOverwritten()
	}
	if s.wal != nil {
		_ = s.wal.AppendEvent(context.Background(), wal.NewEntry(wal.KindExperience, e.AppendBinary(nil)))
	}
	return nil
}

// SampleBatch draws up to n events from the sampling window.
//
// The window is the most recent min(windowSize, retained) events at the
// moment the call starts. Slots overwritten or in flight while the
// sample runs are skipped, so a batch can come up short under heavy
// write pressure. Cost is bounded by the window size, never by lifetime
// writes. An empty buffer yields an empty batch, not an error.
func (s *Stream) SampleBatch(n int, strategy Strategy) ([]Event, error) {
	if n <= 0 {
		return nil, nil
	}

	hi := s.buf.written()
	window := hi
	if c := uint64(s.buf.capacity()); window > c {
		window = c
	}
	if w := uint64(s.window); window > w {
		window = w
	}
	if window == 0 {
		return nil, nil
	}
	lo := hi - window

	var batch []Event
	switch strategy {
	case Uniform:
		batch = s.sampleUniform(lo, hi, n)
	case Recency:
		batch = s.sampleRecency(lo, hi, n)
	case Stratified:
		batch = s.sampleStratified(lo, hi, n)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, uint8(strategy))
	}

	s.sampled.Add(int64(len(batch)))
	s.metrics.RecordSample(strategy.String(), len(batch))
	return batch, nil
}

// readAt copies the event at pos, counting torn snapshots. A torn copy
// is retried against the republished slot; the position check then
// rejects it if the slot moved on, so the loop stays short.
func (s *Stream) readAt(pos uint64, out *Event) bool {
	for attempt := 0; attempt < 4; attempt++ {
		ok, torn := s.buf.read(pos, out)
		if !torn {
			return ok
		}
		s.torn.Add(1)
		s.metrics.RecordTornRead()
	}
	return false
}

// Stats is a point-in-time summary of stream activity.
type Stats struct {
	// Capacity is the ring slot count.
	Capacity int

	// WindowSize is the default sampling window.
	WindowSize int

	// Retained is the observable event count.
	Retained int

	// Written counts accepted events.
	Written int64

	// Overwritten counts evictions of unconsumed slots.
	Overwritten int64

	// Sampled counts events returned by SampleBatch.
	Sampled int64

	// TornReads counts snapshots discarded mid-copy.
	TornReads int64
}

// Stats returns current counters.
func (s *Stream) Stats() Stats {
	return Stats{
		Capacity:    s.buf.capacity(),
		WindowSize:  s.window,
		Retained:    s.Retained(),
		Written:     s.written.Load(),
		Overwritten: s.overwritten.Load(),
		Sampled:     s.sampled.Load(),
		TornReads:   s.torn.Load(),
	}
}
