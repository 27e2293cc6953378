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
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// segmentExt marks the files this backend owns inside its directory.
const segmentExt = ".wal"

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// FileConfig configures the segment-file backend.
type FileConfig struct {
	// Dir is the directory holding segment files. Required.
	Dir string

	// MaxSegmentBytes rotates to a fresh segment once the current one
	// exceeds this size. Default: 64MB. Set to 0 to never rotate.
	MaxSegmentBytes int64

	// SyncWrites fsyncs after every batch. Slower, stronger. Default: false.
	SyncWrites bool

	// SkipCorrupt continues replay past corrupted frames instead of
	// failing. Corrupted frames are counted and logged. Default: false.
	SkipCorrupt bool

	// Logger for segment lifecycle events. Default: slog.Default().
	Logger *slog.Logger
}

// maxFrameLen bounds a replayed frame. Entries carry record images of
// at most a few hundred bytes; a length prefix beyond this is corrupt,
// and honoring it would attempt an allocation of up to 4GiB before the
// CRC ever ran.
const maxFrameLen = 1 << 20

// DefaultFileConfig returns production defaults for the given directory.
func DefaultFileConfig(dir string) FileConfig {
	return FileConfig{
		Dir:             dir,
		MaxSegmentBytes: 64 << 20,
	}
}

// Validate checks the configuration.
func (c *FileConfig) Validate() error {
	if c.Dir == "" {
		return errors.New("dir must not be empty")
	}
	if c.MaxSegmentBytes < 0 {
		return errors.New("max_segment_bytes must be non-negative")
	}
	return nil
}

// -----------------------------------------------------------------------------
// FileBackend
// -----------------------------------------------------------------------------

// FileBackend persists entries to length-prefixed frames in rotating
// segment files.
//
// Segment names embed a zero-padded creation timestamp so a lexical
// sort of the directory reproduces append order across restarts. On
// disk each record is [4-byte frame length][frame]; a short record at
// the tail of the newest segment is treated as a torn final write and
// ignored.
type FileBackend struct {
	cfg    FileConfig
	logger *slog.Logger

	mu           sync.Mutex
	f            *os.File
	w            *bufio.Writer
	segmentBytes int64

	seq       atomic.Uint64
	entries   atomic.Int64
	bytes     atomic.Int64
	corrupted atomic.Int64
	closed    atomic.Bool
}

// NewFileBackend opens (or creates) the segment directory and resumes
// the sequence counter from whatever previous segments contain.
func NewFileBackend(cfg FileConfig) (*FileBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create wal dir: %w", err)
	}

	b := &FileBackend{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "wal_file")),
	}

	// Resume the sequence counter. The scan is tolerant: a corrupted
	// historical frame must not prevent new writes.
	var last uint64
	err := b.replaySegments(context.Background(), true, func(e Entry) error {
		if e.Seq > last {
			last = e.Seq
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan segments: %w", err)
	}
	b.seq.Store(last)

	b.logger.Info("wal directory opened",
		slog.String("dir", cfg.Dir),
		slog.Uint64("last_seq", last))
	return b, nil
}

// segmentName builds a lexically sortable unique segment file name.
func segmentName() string {
	return fmt.Sprintf("%020d-%s%s", time.Now().UnixNano(), uuid.NewString()[:8], segmentExt)
}

// openSegmentLocked starts a fresh segment. Caller holds mu.
func (b *FileBackend) openSegmentLocked() error {
	if b.w != nil {
		if err := b.w.Flush(); err != nil {
			return err
		}
		if err := b.f.Close(); err != nil {
			return err
		}
	}

	name := filepath.Join(b.cfg.Dir, segmentName())
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open segment: %w", err)
	}

	b.f = f
	b.w = bufio.NewWriter(f)
	b.segmentBytes = 0
	b.logger.Debug("segment opened", slog.String("segment", filepath.Base(name)))
	return nil
}

// WriteBatch assigns sequence numbers and appends framed entries.
func (b *FileBackend) WriteBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if b.closed.Load() {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.w == nil {
		if err := b.openSegmentLocked(); err != nil {
			return err
		}
	}

	var lenBuf [4]byte
	var written int64
	for i := range entries {
		entries[i].Seq = b.seq.Add(1)
		frame := encodeEntry(entries[i])

		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
		if _, err := b.w.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("write frame length: %w", err)
		}
		if _, err := b.w.Write(frame); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		written += int64(4 + len(frame))
	}

	if err := b.w.Flush(); err != nil {
		return fmt.Errorf("flush segment: %w", err)
	}
	if b.cfg.SyncWrites {
		if err := b.f.Sync(); err != nil {
			return fmt.Errorf("sync segment: %w", err)
		}
	}

	b.entries.Add(int64(len(entries)))
	b.bytes.Add(written)
	b.segmentBytes += written

	if b.cfg.MaxSegmentBytes > 0 && b.segmentBytes >= b.cfg.MaxSegmentBytes {
		if err := b.openSegmentLocked(); err != nil {
			return fmt.Errorf("rotate segment: %w", err)
		}
	}
	return nil
}

// Replay invokes fn for every frame across all segments in order.
func (b *FileBackend) Replay(ctx context.Context, fn func(Entry) error) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.mu.Lock()
	if b.w != nil {
		if err := b.w.Flush(); err != nil {
			b.mu.Unlock()
			return fmt.Errorf("flush before replay: %w", err)
		}
	}
	b.mu.Unlock()

	return b.replaySegments(ctx, b.cfg.SkipCorrupt, fn)
}

// replaySegments walks segment files in name order. When tolerant is
// true, corrupted frames are counted and skipped; otherwise the first
// one aborts the replay. A truncated record at the tail of the last
// segment is always treated as a torn write and ignored.
func (b *FileBackend) replaySegments(ctx context.Context, tolerant bool, fn func(Entry) error) error {
	names, err := b.listSegments()
	if err != nil {
		return err
	}

	for si, name := range names {
		lastSegment := si == len(names)-1
		if err := b.replayOne(ctx, name, lastSegment, tolerant, fn); err != nil {
			return err
		}
	}
	return nil
}

func (b *FileBackend) listSegments() ([]string, error) {
	dirents, err := os.ReadDir(b.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("read wal dir: %w", err)
	}
	var names []string
	for _, d := range dirents {
		if !d.IsDir() && strings.HasSuffix(d.Name(), segmentExt) {
			names = append(names, filepath.Join(b.cfg.Dir, d.Name()))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (b *FileBackend) replayOne(ctx context.Context, name string, lastSegment, tolerant bool, fn func(Entry) error) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var lenBuf [4]byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			// Torn length prefix at the tail.
			if errors.Is(err, io.ErrUnexpectedEOF) && lastSegment {
				b.logger.Warn("torn frame at segment tail, ignoring",
					slog.String("segment", filepath.Base(name)))
				return nil
			}
			return fmt.Errorf("read frame length: %w", err)
		}

		flen := binary.BigEndian.Uint32(lenBuf[:])
		if flen > maxFrameLen {
			// The prefix itself is garbage; the frame boundary is
			// lost, so the rest of the segment is unrecoverable.
			b.corrupted.Add(1)
			if tolerant || lastSegment {
				b.logger.Warn("oversized frame length, abandoning segment",
					slog.String("segment", filepath.Base(name)),
					slog.Uint64("length", uint64(flen)))
				return nil
			}
			return fmt.Errorf("%w: frame length %d exceeds %d",
				ErrCorruptEntry, flen, maxFrameLen)
		}

		frame := make([]byte, flen)
		if _, err := io.ReadFull(r, frame); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) && lastSegment {
				b.logger.Warn("torn frame at segment tail, ignoring",
					slog.String("segment", filepath.Base(name)))
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		e, err := decodeEntry(frame)
		if err != nil {
			b.corrupted.Add(1)
			if tolerant {
				b.logger.Warn("skipping corrupted frame",
					slog.String("segment", filepath.Base(name)),
					slog.String("error", err.Error()))
				continue
			}
			return err
		}

		if err := fn(e); err != nil {
			return err
		}
	}
}

// Stats reports backend accounting.
func (b *FileBackend) Stats() BackendStats {
	return BackendStats{
		Entries:   b.entries.Load(),
		Bytes:     b.bytes.Load(),
		LastSeq:   b.seq.Load(),
		Corrupted: b.corrupted.Load(),
	}
}

// Close flushes and closes the active segment. Idempotent.
func (b *FileBackend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.w == nil {
		return nil
	}
	if err := b.w.Flush(); err != nil {
		return err
	}
	if b.cfg.SyncWrites {
		if err := b.f.Sync(); err != nil {
			return err
		}
	}
	return b.f.Close()
}

// Compile-time interface check.
var _ Backend = (*FileBackend)(nil)
