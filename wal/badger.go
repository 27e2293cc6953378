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
	"os"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// BadgerConfig configures the BadgerDB backend.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Required unless InMemory.
	Path string

	// InMemory uses an in-memory BadgerDB (for testing).
	InMemory bool

	// SyncWrites enables synchronous writes. Durable, slower.
	SyncWrites bool

	// NumVersionsToKeep for each key. Entries are never rewritten, so 1.
	NumVersionsToKeep int

	// GCInterval between value-log GC passes. 0 disables GC.
	GCInterval time.Duration

	// GCDiscardRatio for value-log GC.
	GCDiscardRatio float64

	// SkipCorrupt continues replay past corrupted entries.
	SkipCorrupt bool

	// Logger for database lifecycle events. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultBadgerConfig returns production defaults for the given path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:              path,
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
		GCDiscardRatio:    0.5,
	}
}

// InMemoryBadgerConfig returns a configuration for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{
		InMemory:          true,
		NumVersionsToKeep: 1,
	}
}

// Validate checks the configuration.
func (c *BadgerConfig) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("path is required for persistent backend")
	}
	if c.GCDiscardRatio < 0 || c.GCDiscardRatio > 1 {
		return errors.New("gc_discard_ratio must be in [0, 1]")
	}
	return nil
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------
// BadgerBackend
// -----------------------------------------------------------------------------

// entryKeyPrefix namespaces log entries inside the database.
const entryKeyPrefix = "entry:"

// BadgerBackend persists framed entries under sequence-ordered keys.
//
// Key format: "entry:{seq:020d}"
// Value format: [4-byte CRC32][header][payload]
//
// Iterating the prefix in key order reproduces append order, which is
// what Replay relies on.
type BadgerBackend struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger

	seq       atomic.Uint64
	entries   atomic.Int64
	bytes     atomic.Int64
	corrupted atomic.Int64
	closed    atomic.Bool

	gcStop chan struct{}
	gcDone chan struct{}
}

// NewBadgerBackend opens the database and resumes the sequence counter
// from the highest existing key.
func NewBadgerBackend(cfg BadgerConfig) (*BadgerBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With(slog.String("component", "wal_badger"))

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(cfg.NumVersionsToKeep)
	opts = opts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	b := &BadgerBackend{
		db:     db,
		cfg:    cfg,
		logger: logger,
		gcStop: make(chan struct{}),
		gcDone: make(chan struct{}),
	}

	if err := b.initSeq(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sequence number: %w", err)
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		go b.gcLoop()
	} else {
		close(b.gcDone)
	}

	b.logger.Info("wal database opened",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory),
		slog.Bool("sync_writes", cfg.SyncWrites),
		slog.Uint64("last_seq", b.seq.Load()))
	return b, nil
}

// entryKey builds the key for a sequence number. 20 digits covers the
// full uint64 range while keeping lexical order equal to numeric order.
func entryKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", entryKeyPrefix, seq))
}

// initSeq scans backwards for the highest existing sequence number.
func (b *BadgerBackend) initSeq() error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(entryKeyPrefix), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		it.Seek(seek)

		if it.ValidForPrefix([]byte(entryKeyPrefix)) {
			key := it.Item().Key()
			var seq uint64
			if _, err := fmt.Sscanf(string(key[len(entryKeyPrefix):]), "%020d", &seq); err == nil {
				b.seq.Store(seq)
			}
		}
		return nil
	})
}

// gcLoop runs value-log GC at the configured interval.
func (b *BadgerBackend) gcLoop() {
	defer close(b.gcDone)

	ticker := time.NewTicker(b.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.gcStop:
			return
		case <-ticker.C:
			// ErrNoRewrite means no GC was needed, not a failure.
			if err := b.db.RunValueLogGC(b.cfg.GCDiscardRatio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				b.logger.Warn("value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// WriteBatch assigns sequence numbers and persists entries in one
// transaction.
func (b *BadgerBackend) WriteBatch(ctx context.Context, entries []Entry) error {
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

	var written int64
	err := b.db.Update(func(txn *badger.Txn) error {
		for i := range entries {
			entries[i].Seq = b.seq.Add(1)
			data := encodeEntry(entries[i])
			if err := txn.Set(entryKey(entries[i].Seq), data); err != nil {
				return err
			}
			written += int64(len(data))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write entries: %w", err)
	}

	b.entries.Add(int64(len(entries)))
	b.bytes.Add(written)
	return nil
}

// Replay invokes fn for every persisted entry in sequence order.
func (b *BadgerBackend) Replay(ctx context.Context, fn func(Entry) error) error {
	if b.closed.Load() {
		return ErrClosed
	}

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(entryKeyPrefix)); it.ValidForPrefix([]byte(entryKeyPrefix)); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var e Entry
			err := it.Item().Value(func(val []byte) error {
				var derr error
				e, derr = decodeEntry(val)
				return derr
			})
			if err != nil {
				b.corrupted.Add(1)
				if b.cfg.SkipCorrupt {
					b.logger.Warn("skipping corrupted entry",
						slog.String("key", string(it.Item().Key())),
						slog.String("error", err.Error()))
					continue
				}
				return err
			}

			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats reports backend accounting.
func (b *BadgerBackend) Stats() BackendStats {
	return BackendStats{
		Entries:   b.entries.Load(),
		Bytes:     b.bytes.Load(),
		LastSeq:   b.seq.Load(),
		Corrupted: b.corrupted.Load(),
	}
}

// Close stops GC and closes the database. Idempotent.
func (b *BadgerBackend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.gcStop)
	<-b.gcDone
	return b.db.Close()
}

// Compile-time interface check.
var _ Backend = (*BadgerBackend)(nil)
