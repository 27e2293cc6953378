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
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadgerBackend(t *testing.T) *BadgerBackend {
	t.Helper()
	cfg := InMemoryBadgerConfig()
	cfg.Logger = slog.Default()

	b, err := NewBadgerBackend(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBadgerBackendWriteReplay(t *testing.T) {
	b := newTestBadgerBackend(t)

	writeTestBatch(t, b, KindNodeAdded, KindEdgeInserted)
	writeTestBatch(t, b, KindConfidenceUpdated, KindExperience)

	got := collectEntries(t, b)
	require.Len(t, got, 4)
	for i, e := range got {
		assert.Equal(t, uint64(i+1), e.Seq, "entries replay in append order")
	}
	assert.Equal(t, KindExperience, got[3].Kind)
	assert.Equal(t, []byte{1}, got[3].Payload)

	stats := b.Stats()
	assert.Equal(t, int64(4), stats.Entries)
	assert.Equal(t, uint64(4), stats.LastSeq)
	assert.Positive(t, stats.Bytes)
}

func TestBadgerBackendPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultBadgerConfig(dir)
	cfg.GCInterval = 0 // keep the test free of background goroutines

	b, err := NewBadgerBackend(cfg)
	require.NoError(t, err)
	writeTestBatch(t, b, KindNodeAdded, KindNodeAdded, KindNodeAdded)
	require.NoError(t, b.Close())

	b2, err := NewBadgerBackend(cfg)
	require.NoError(t, err)
	defer b2.Close()

	assert.Equal(t, uint64(3), b2.Stats().LastSeq, "sequence resumes from stored keys")

	writeTestBatch(t, b2, KindEdgeInserted)
	got := collectEntries(t, b2)
	require.Len(t, got, 4)
	assert.Equal(t, uint64(4), got[3].Seq)
}

func TestBadgerBackendReplayStopsOnCallbackError(t *testing.T) {
	b := newTestBadgerBackend(t)
	writeTestBatch(t, b, KindNodeAdded, KindNodeAdded)

	seen := 0
	err := b.Replay(context.Background(), func(Entry) error {
		seen++
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, seen)
}

func TestBadgerBackendClosedRejectsOperations(t *testing.T) {
	cfg := InMemoryBadgerConfig()
	b, err := NewBadgerBackend(cfg)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	err = b.WriteBatch(context.Background(), []Entry{NewEntry(KindNodeAdded, nil)})
	require.ErrorIs(t, err, ErrClosed)
	err = b.Replay(context.Background(), func(Entry) error { return nil })
	require.ErrorIs(t, err, ErrClosed)

	// Close again is a no-op.
	require.NoError(t, b.Close())
}

func TestBadgerConfigValidate(t *testing.T) {
	cfg := BadgerConfig{}
	require.Error(t, cfg.Validate(), "persistent mode requires a path")

	cfg = BadgerConfig{Path: "x", GCDiscardRatio: 1.5}
	require.Error(t, cfg.Validate())

	cfg = InMemoryBadgerConfig()
	require.NoError(t, cfg.Validate())
}

func TestBadgerBackendEndToEndWithAsyncWriter(t *testing.T) {
	backend := newTestBadgerBackend(t)

	cfg := DefaultAsyncConfig(backend)
	cfg.FlushInterval = 5 * time.Millisecond

	w, err := NewAsyncWriter(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, w.AppendGraphMutation(ctx, NewEntry(KindEdgeActivated, []byte{byte(i)})))
	}

	require.Eventually(t, func() bool {
		return w.Stats().Flushed == 25
	}, time.Second, 5*time.Millisecond)

	got := collectEntries(t, backend)
	require.Len(t, got, 25)
	assert.Equal(t, []byte{24}, got[24].Payload)

	require.NoError(t, w.Close())
}
