// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/AleutianAI/axon/stream"
)

// Config configures a segment writer.
type Config struct {
	// Dir is the directory segments are written into. Created when
	// missing.
	Dir string

	// Logger receives per-segment records. Defaults to slog.Default.
	Logger *slog.Logger
}

// DefaultConfig returns a config writing into dir.
func DefaultConfig(dir string) Config {
	return Config{Dir: dir}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return errors.New("dir must not be empty")
	}
	return nil
}

// Writer archives event batches as immutable segment files.
//
// Each batch becomes one segment written under a temporary name and
// renamed into place, so a reader listing the directory never observes
// a partial segment. Safe for concurrent use; batches never share a
// file.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	segments atomic.Int64
	events   atomic.Int64
	bytes    atomic.Int64
}

// WriterStats reports writer accounting.
type WriterStats struct {
	// Segments is how many segment files were written.
	Segments int64

	// Events is how many events those segments hold.
	Events int64

	// Bytes is the total on-disk size of written segments.
	Bytes int64
}

// NewWriter creates the segment directory and returns a writer.
func NewWriter(cfg Config) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Writer{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "archive")),
	}, nil
}

// ArchiveBatch writes one batch as a new segment and returns its path.
// The payload is zstd-compressed unless compression fails to shrink
// it, in which case the images are stored raw and InfoCompressed stays
// clear.
func (w *Writer) ArchiveBatch(ctx context.Context, events []stream.Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "", ErrEmptyBatch
	}

	payload := make([]byte, 0, len(events)*stream.EventSize)
	for i := range events {
		payload = events[i].AppendBinary(payload)
	}

	flags := InfoCompressed
	body := segmentEncoder.EncodeAll(payload, make([]byte, 0, len(payload)/2))
	if len(body) >= len(payload) {
		flags = 0
		body = payload
	}

	var header [headerSize]byte
	encodeHeader(header[:], flags, uint32(len(events)))

	path := filepath.Join(w.cfg.Dir, uuid.NewString()+SegmentExt)
	if err := w.writeSegment(path, header[:], body); err != nil {
		return "", err
	}

	size := int64(headerSize + len(body))
	w.segments.Add(1)
	w.events.Add(int64(len(events)))
	w.bytes.Add(size)

	w.logger.Debug("segment written",
		slog.String("segment", filepath.Base(path)),
		slog.Int("events", len(events)),
		slog.Int64("bytes", size),
		slog.Bool("compressed", flags&InfoCompressed != 0))
	return path, nil
}

// writeSegment lands header+body at path via a temp file and rename.
func (w *Writer) writeSegment(path string, header, body []byte) (err error) {
	tmp, err := os.CreateTemp(w.cfg.Dir, ".segment-*")
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(header); err != nil {
		return fmt.Errorf("write segment header: %w", err)
	}
	if _, err = tmp.Write(body); err != nil {
		return fmt.Errorf("write segment payload: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync segment: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close segment: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish segment: %w", err)
	}
	return nil
}

// Stats reports writer accounting.
func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Segments: w.segments.Load(),
		Events:   w.events.Load(),
		Bytes:    w.bytes.Load(),
	}
}
