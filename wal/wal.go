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
Package wal is the write-ahead-log collaborator for the Axon substrate.

The graph and the experience stream hand mutation entries to a Writer
fire-and-forget: the core never waits for durability and never fails an
operation because the log is slow or down. Durability is therefore
eventually consistent with live state by design of the collaborator
boundary, not a correctness input to it.

# Ownership Model

Callers own the Entry payload until Append returns; the writer copies
what it keeps. Backends own their storage handles and sequence counters.
Sequence numbers are assigned by the backend at write time, so entries
shed under queue pressure never consume one.

# Thread Safety

All exported types are safe for concurrent use.

Value format: [4-byte CRC32][fixed header][payload]. The checksum covers
everything after itself.
*/
package wal

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrClosed is returned when operations are called on a closed writer
	// or backend.
	ErrClosed = errors.New("wal is closed")

	// ErrCorruptEntry is returned when an entry fails its integrity check.
	ErrCorruptEntry = errors.New("wal entry corrupted (CRC mismatch)")

	// ErrShortEntry is returned when an entry is too small to carry a frame.
	ErrShortEntry = errors.New("wal entry truncated")
)

// -----------------------------------------------------------------------------
// Entry
// -----------------------------------------------------------------------------

// EntryKind identifies what a log entry describes.
type EntryKind uint8

const (
	KindUnknown EntryKind = iota
	KindNodeAdded
	KindEdgeInserted
	KindEdgeActivated
	KindConfidenceUpdated
	KindGraphCleared
	KindExperience
)

var kindNames = [...]string{
	KindUnknown:           "unknown",
	KindNodeAdded:         "node_added",
	KindEdgeInserted:      "edge_inserted",
	KindEdgeActivated:     "edge_activated",
	KindConfidenceUpdated: "confidence_updated",
	KindGraphCleared:      "graph_cleared",
	KindExperience:        "experience",
}

// String returns the snake_case name used as a metric label.
func (k EntryKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Entry is one durable record.
//
// Seq is zero until a backend accepts the entry; Replay yields entries
// with Seq populated in append order.
type Entry struct {
	Seq       uint64
	Kind      EntryKind
	Timestamp int64 // unix nanoseconds
	Payload   []byte
}

// NewEntry stamps an entry with the current time.
func NewEntry(kind EntryKind, payload []byte) Entry {
	return Entry{
		Kind:      kind,
		Timestamp: time.Now().UnixNano(),
		Payload:   payload,
	}
}

// frame layout after the 4-byte CRC prefix.
const (
	frameSeqOff     = 0
	frameTsOff      = 8
	frameKindOff    = 16
	framePayloadLen = 17
	frameHeaderLen  = 21
)

// encodeEntry frames an entry as [4-byte CRC32][header][payload].
func encodeEntry(e Entry) []byte {
	body := make([]byte, frameHeaderLen+len(e.Payload))
	binary.LittleEndian.PutUint64(body[frameSeqOff:], e.Seq)
	binary.LittleEndian.PutUint64(body[frameTsOff:], uint64(e.Timestamp))
	body[frameKindOff] = byte(e.Kind)
	binary.LittleEndian.PutUint32(body[framePayloadLen:], uint32(len(e.Payload)))
	copy(body[frameHeaderLen:], e.Payload)

	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], crc32.ChecksumIEEE(body))
	copy(out[4:], body)
	return out
}

// decodeEntry validates the checksum and unpacks the frame.
func decodeEntry(data []byte) (Entry, error) {
	if len(data) < 4+frameHeaderLen {
		return Entry{}, fmt.Errorf("%w: got %d bytes", ErrShortEntry, len(data))
	}

	stored := binary.BigEndian.Uint32(data[:4])
	body := data[4:]
	if computed := crc32.ChecksumIEEE(body); computed != stored {
		return Entry{}, fmt.Errorf("%w: stored=%08x computed=%08x", ErrCorruptEntry, stored, computed)
	}

	plen := binary.LittleEndian.Uint32(body[framePayloadLen:])
	if int(plen) != len(body)-frameHeaderLen {
		return Entry{}, fmt.Errorf("%w: payload length %d does not match frame", ErrCorruptEntry, plen)
	}

	e := Entry{
		Seq:       binary.LittleEndian.Uint64(body[frameSeqOff:]),
		Timestamp: int64(binary.LittleEndian.Uint64(body[frameTsOff:])),
		Kind:      EntryKind(body[frameKindOff]),
	}
	if plen > 0 {
		e.Payload = make([]byte, plen)
		copy(e.Payload, body[frameHeaderLen:])
	}
	return e, nil
}

// -----------------------------------------------------------------------------
// Writer and Backend Interfaces
// -----------------------------------------------------------------------------

// Writer is the surface the graph and the stream log through.
//
// Append calls must not block on I/O. Implementations either buffer
// (AsyncWriter) or discard (NopWriter); the only error a live writer
// reports is ErrClosed.
type Writer interface {
	// AppendGraphMutation logs a structural or learning mutation.
	AppendGraphMutation(ctx context.Context, e Entry) error

	// AppendEvent logs an experience event.
	AppendEvent(ctx context.Context, e Entry) error

	// Close flushes buffered entries and releases resources.
	Close() error
}

// Backend persists framed entries and replays them for recovery tooling.
type Backend interface {
	// WriteBatch assigns sequence numbers and persists entries in order.
	WriteBatch(ctx context.Context, entries []Entry) error

	// Replay invokes fn for every persisted entry in sequence order.
	// fn returning an error stops the replay.
	Replay(ctx context.Context, fn func(Entry) error) error

	// Stats reports backend-side accounting.
	Stats() BackendStats

	// Close releases storage resources.
	Close() error
}

// BackendStats contains backend accounting.
type BackendStats struct {
	// Entries is the count of entries persisted by this process.
	Entries int64

	// Bytes is the approximate size of persisted frames.
	Bytes int64

	// LastSeq is the most recent assigned sequence number.
	LastSeq uint64

	// Corrupted is the number of corrupted entries encountered on replay.
	Corrupted int64
}

// -----------------------------------------------------------------------------
// NopWriter
// -----------------------------------------------------------------------------

// NopWriter discards everything. It is the default when no log is
// configured.
type NopWriter struct{}

func (NopWriter) AppendGraphMutation(context.Context, Entry) error { return nil }
func (NopWriter) AppendEvent(context.Context, Entry) error         { return nil }
func (NopWriter) Close() error                                     { return nil }

// Compile-time interface check.
var _ Writer = NopWriter{}
