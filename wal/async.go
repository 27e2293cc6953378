// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package wal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/axon/diagnostics"
	"github.com/AleutianAI/axon/internal/ring"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// AsyncConfig configures the buffered writer.
type AsyncConfig struct {
	// Backend receives flushed batches. Required.
	Backend Backend

	// QueueSize bounds the in-memory entry queue. When the queue is
	// full the oldest unflushed entry is shed. Default: 4096.
	QueueSize int

	// FlushBatch is the maximum entries per backend write. A full
	// batch also wakes the flusher early. Default: 256.
	FlushBatch int

	// FlushInterval is how often the flusher drains the queue even
	// when no batch threshold was reached. Default: 50ms.
	FlushInterval time.Duration

	// Logger for flush failures. Default: slog.Default().
	Logger *slog.Logger

	// Metrics recorder. Default: NoOpMetrics.
	Metrics diagnostics.Metrics
}

// DefaultAsyncConfig returns production defaults over the given backend.
func DefaultAsyncConfig(backend Backend) AsyncConfig {
	return AsyncConfig{
		Backend:       backend,
		QueueSize:     4096,
		FlushBatch:    256,
		FlushInterval: 50 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c *AsyncConfig) Validate() error {
	if c.Backend == nil {
		return errors.New("backend must not be nil")
	}
	if c.QueueSize < 0 {
		return errors.New("queue_size must be non-negative")
	}
	if c.FlushBatch < 0 {
		return errors.New("flush_batch must be non-negative")
	}
	if c.FlushInterval < 0 {
		return errors.New("flush_interval must be non-negative")
	}
	return nil
}

// -----------------------------------------------------------------------------
// AsyncWriter
// -----------------------------------------------------------------------------

// AsyncWriter buffers entries in a bounded drop-oldest queue and
// flushes them to a Backend from a single background goroutine.
//
// # Description
//
// Append never performs I/O: it copies the entry into the queue and
// returns. Under sustained pressure the queue sheds its oldest entries
// rather than growing or blocking the caller; the shed count is
// observable through Stats and the metrics recorder. Close drains
// whatever remains and closes the backend.
//
// # Thread Safety
//
// Safe for concurrent appends from any number of goroutines.
type AsyncWriter struct {
	backend Backend
	queue   *ring.Buffer[Entry]
	logger  *slog.Logger
	metrics diagnostics.Metrics

	flushBatch    int
	flushInterval time.Duration

	flushed     atomic.Int64
	writeErrors atomic.Int64

	kick   chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// AsyncStats contains writer-side accounting.
type AsyncStats struct {
	// Queued is the number of entries waiting to be flushed.
	Queued int

	// Flushed is the total entries handed to the backend.
	Flushed int64

	// Dropped is the total entries shed under queue pressure.
	Dropped int64

	// WriteErrors is the total failed backend flushes.
	WriteErrors int64
}

// NewAsyncWriter starts the flusher and returns a ready writer.
func NewAsyncWriter(cfg AsyncConfig) (*AsyncWriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 4096
	}
	if cfg.FlushBatch == 0 {
		cfg.FlushBatch = 256
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 50 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = diagnostics.NewNoOpMetrics()
	}

	w := &AsyncWriter{
		backend:       cfg.Backend,
		queue:         ring.New[Entry](cfg.QueueSize),
		logger:        cfg.Logger.With(slog.String("component", "wal")),
		metrics:       cfg.Metrics,
		flushBatch:    cfg.FlushBatch,
		flushInterval: cfg.FlushInterval,
		kick:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
	}

	w.wg.Add(1)
	go w.flushLoop()
	return w, nil
}

// AppendGraphMutation enqueues a structural or learning mutation.
func (w *AsyncWriter) AppendGraphMutation(ctx context.Context, e Entry) error {
	return w.append(ctx, e)
}

// AppendEvent enqueues an experience event.
func (w *AsyncWriter) AppendEvent(ctx context.Context, e Entry) error {
	return w.append(ctx, e)
}

func (w *AsyncWriter) append(ctx context.Context, e Entry) error {
	if w.closed.Load() {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if w.queue.Push(e) {
		w.metrics.RecordWALDrop()
	}
	w.metrics.RecordWALAppend(e.Kind.String())

	if w.queue.Len() >= w.flushBatch {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// flushLoop drains the queue on a timer and on batch-threshold kicks.
func (w *AsyncWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			// Final drain. The queue is closed to new entries by now.
			for w.queue.Len() > 0 {
				w.flushOnce(context.Background())
			}
			return
		case <-ticker.C:
			w.flushOnce(context.Background())
		case <-w.kick:
			w.flushOnce(context.Background())
		}
	}
}

// flushOnce writes at most one batch.
func (w *AsyncWriter) flushOnce(ctx context.Context) {
	batch := w.queue.PopN(w.flushBatch)
	if len(batch) == 0 {
		return
	}

	ctx, span := otel.Tracer("axon/wal").Start(ctx, "wal.Flush")
	span.SetAttributes(attribute.Int("batch", len(batch)))
	defer span.End()

	if err := w.backend.WriteBatch(ctx, batch); err != nil {
		w.writeErrors.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "flush failed")
		w.logger.Error("flush failed",
			slog.Int("batch", len(batch)),
			slog.String("error", err.Error()))
		return
	}

	w.flushed.Add(int64(len(batch)))
	w.metrics.RecordWALFlush(len(batch))
}

// Stats reports writer-side accounting.
func (w *AsyncWriter) Stats() AsyncStats {
	return AsyncStats{
		Queued:      w.queue.Len(),
		Flushed:     w.flushed.Load(),
		Dropped:     w.queue.Dropped(),
		WriteErrors: w.writeErrors.Load(),
	}
}

// Close stops the flusher, drains remaining entries, and closes the
// backend. Idempotent.
func (w *AsyncWriter) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(w.stop)
	w.wg.Wait()
	return w.backend.Close()
}

// Compile-time interface check.
var _ Writer = (*AsyncWriter)(nil)
