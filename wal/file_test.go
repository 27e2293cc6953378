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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestBatch(t *testing.T, b Backend, kinds ...EntryKind) {
	t.Helper()
	entries := make([]Entry, len(kinds))
	for i, k := range kinds {
		entries[i] = NewEntry(k, []byte{byte(i)})
	}
	require.NoError(t, b.WriteBatch(context.Background(), entries))
}

func collectEntries(t *testing.T, b Backend) []Entry {
	t.Helper()
	var out []Entry
	require.NoError(t, b.Replay(context.Background(), func(e Entry) error {
		out = append(out, e)
		return nil
	}))
	return out
}

func TestFileBackendWriteReplay(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(DefaultFileConfig(dir))
	require.NoError(t, err)

	writeTestBatch(t, b, KindNodeAdded, KindEdgeInserted)
	writeTestBatch(t, b, KindEdgeActivated)

	got := collectEntries(t, b)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, uint64(3), got[2].Seq)
	assert.Equal(t, KindEdgeActivated, got[2].Kind)

	stats := b.Stats()
	assert.Equal(t, int64(3), stats.Entries)
	assert.Equal(t, uint64(3), stats.LastSeq)
	require.NoError(t, b.Close())
}

func TestFileBackendResumesSequence(t *testing.T) {
	dir := t.TempDir()

	b, err := NewFileBackend(DefaultFileConfig(dir))
	require.NoError(t, err)
	writeTestBatch(t, b, KindNodeAdded, KindNodeAdded)
	require.NoError(t, b.Close())

	b2, err := NewFileBackend(DefaultFileConfig(dir))
	require.NoError(t, err)
	defer b2.Close()

	writeTestBatch(t, b2, KindEdgeInserted)

	got := collectEntries(t, b2)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[2].Seq, "sequence must continue across restarts")
}

func TestFileBackendToleratesTornTail(t *testing.T) {
	dir := t.TempDir()

	b, err := NewFileBackend(DefaultFileConfig(dir))
	require.NoError(t, err)
	writeTestBatch(t, b, KindExperience, KindExperience)
	require.NoError(t, b.Close())

	// Simulate a crash mid-write: a length prefix promising more bytes
	// than the file holds.
	segments, err := filepath.Glob(filepath.Join(dir, "*"+segmentExt))
	require.NoError(t, err)
	require.Len(t, segments, 1)

	f, err := os.OpenFile(segments[0], os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x00, 0x00, 0x01, 0x00, 0xAA, 0xBB})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	b2, err := NewFileBackend(DefaultFileConfig(dir))
	require.NoError(t, err, "open must tolerate a torn tail")
	defer b2.Close()

	got := collectEntries(t, b2)
	assert.Len(t, got, 2, "the torn record is discarded, intact ones survive")
}

func TestFileBackendBoundsFrameLength(t *testing.T) {
	dir := t.TempDir()

	b, err := NewFileBackend(DefaultFileConfig(dir))
	require.NoError(t, err)
	writeTestBatch(t, b, KindNodeAdded, KindEdgeInserted)
	require.NoError(t, b.Close())

	// A corrupted prefix promising a ~4GiB frame. Honoring it would
	// attempt the allocation before any CRC ran; the bound rejects it.
	segments, err := filepath.Glob(filepath.Join(dir, "*"+segmentExt))
	require.NoError(t, err)
	require.Len(t, segments, 1)

	f, err := os.OpenFile(segments[0], os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xAA, 0xBB, 0xCC})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	b2, err := NewFileBackend(DefaultFileConfig(dir))
	require.NoError(t, err, "open must treat an oversized prefix as a torn tail")
	defer b2.Close()

	got := collectEntries(t, b2)
	assert.Len(t, got, 2, "intact frames before the bad prefix survive")
	assert.Positive(t, b2.Stats().Corrupted)
}

func TestFileBackendCorruptionStrictAndTolerant(t *testing.T) {
	dir := t.TempDir()

	b, err := NewFileBackend(DefaultFileConfig(dir))
	require.NoError(t, err)
	writeTestBatch(t, b, KindNodeAdded, KindEdgeInserted, KindEdgeActivated)
	require.NoError(t, b.Close())

	// Flip a byte inside the first frame's payload region.
	segments, err := filepath.Glob(filepath.Join(dir, "*"+segmentExt))
	require.NoError(t, err)
	require.Len(t, segments, 1)

	data, err := os.ReadFile(segments[0])
	require.NoError(t, err)
	data[4+4+frameHeaderLen] ^= 0xFF // outer len + CRC + header = first payload byte
	require.NoError(t, os.WriteFile(segments[0], data, 0o644))

	strict, err := NewFileBackend(DefaultFileConfig(dir))
	require.NoError(t, err)
	err = strict.Replay(context.Background(), func(Entry) error { return nil })
	require.ErrorIs(t, err, ErrCorruptEntry)
	require.NoError(t, strict.Close())

	cfg := DefaultFileConfig(dir)
	cfg.SkipCorrupt = true
	tolerant, err := NewFileBackend(cfg)
	require.NoError(t, err)
	defer tolerant.Close()

	got := collectEntries(t, tolerant)
	require.Len(t, got, 2, "tolerant replay yields only the intact frames")
	assert.Positive(t, tolerant.Stats().Corrupted)
}

func TestFileBackendRotatesSegments(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultFileConfig(dir)
	cfg.MaxSegmentBytes = 1 // rotate after every batch

	b, err := NewFileBackend(cfg)
	require.NoError(t, err)
	writeTestBatch(t, b, KindNodeAdded)
	writeTestBatch(t, b, KindNodeAdded)
	writeTestBatch(t, b, KindNodeAdded)
	require.NoError(t, b.Close())

	segments, err := filepath.Glob(filepath.Join(dir, "*"+segmentExt))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(segments), 3)

	b2, err := NewFileBackend(DefaultFileConfig(dir))
	require.NoError(t, err)
	defer b2.Close()

	got := collectEntries(t, b2)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, uint64(3), got[2].Seq, "replay preserves order across segments")
}

func TestFileConfigValidate(t *testing.T) {
	cfg := FileConfig{}
	require.Error(t, cfg.Validate())

	cfg = FileConfig{Dir: "x", MaxSegmentBytes: -1}
	require.Error(t, cfg.Validate())
}

func TestFileBackendClosedRejectsOperations(t *testing.T) {
	b, err := NewFileBackend(DefaultFileConfig(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	err = b.WriteBatch(context.Background(), []Entry{NewEntry(KindNodeAdded, nil)})
	require.ErrorIs(t, err, ErrClosed)
	err = b.Replay(context.Background(), func(Entry) error { return nil })
	require.ErrorIs(t, err, ErrClosed)
}
