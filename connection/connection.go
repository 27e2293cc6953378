// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package connection defines the directed, typed, learning-capable edge
// record between two tokens.
//
// A Connection is a 64-byte, pointer-free record. Like token.Token, the
// layout is a wire contract shared with non-Go readers: field order, size,
// and alignment are frozen within a major version. The trailing 16 bytes
// are reserved for V4 fields and must encode as zero.
//
// # Binary Layout (little-endian, 64 bytes)
//
//	off  size  field
//	0    4     FromID          uint32, immutable
//	4    4     ToID            uint32, immutable
//	8    1     Type            ConnectionType
//	9    1     Flags           flag bitset
//	10   1     Mutability      update policy (Plastic/Annealed/Frozen)
//	11   1     reserved
//	12   4     Weight          float32
//	16   4     Confidence      float32, always within [0, 1]
//	20   4     Eligibility     float32, decaying activation trace in [0, 1]
//	24   4     ActivationCount uint32
//	28   4     SuccessCount    uint32
//	32   4     FailureCount    uint32
//	36   4     CreatedAt       uint32 unix seconds
//	40   4     LastActivated   uint32 unix seconds
//	44   4     LastUpdated     uint32 unix seconds
//	48   16    reserved
//
// # Thread Safety
//
// A Connection is NOT safe for concurrent mutation; owning collections are
// single-writer or externally serialized (the Graph serializes for you).
package connection

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// Size is the exact encoded size of a Connection in bytes.
const Size = 64

// Confidence mechanics. The numeric policy that decides when to call
// UpdateConfidence belongs to the learning collaborator; these constants
// fix only the mechanical step applied per call.
const (
	// ConfidenceStep is the base adjustment coefficient per update.
	ConfidenceStep = 0.1

	// EligibilityBump is added to the eligibility trace per activation.
	EligibilityBump = 0.25

	// InitialConfidence is the neutral prior assigned at creation.
	InitialConfidence = 0.5
)

var (
	// ErrInvalidSize is returned when decoding a buffer that is not
	// exactly Size bytes long.
	ErrInvalidSize = errors.New("connection: invalid record size")

	// ErrFrozen is returned when a confidence update is applied to a
	// connection whose mutability is Frozen.
	ErrFrozen = errors.New("connection: confidence is frozen")
)

// Connection is a directed, typed, weighted edge between two token ids.
//
// FromID and ToID are fixed for the life of the record. Confidence moves
// only through UpdateConfidence and never leaves [0, 1].
type Connection struct {
	// FromID is the source token id. Immutable.
	FromID uint32

	// ToID is the target token id. Immutable.
	ToID uint32

	// Type is the closed edge classification.
	Type ConnectionType

	// Flags is the connection flag bitset. See the Flag* constants.
	Flags uint8

	// Mutability is the confidence update policy.
	Mutability Mutability

	_ uint8

	// Weight is the propagation weight. Unconstrained, freely mutable.
	Weight float32

	// Confidence is the learned reliability in [0, 1]. Mutate via
	// UpdateConfidence only.
	Confidence float32

	// Eligibility is a decaying activation trace in [0, 1], bumped by
	// Activate and decayed by the learning collaborator.
	Eligibility float32

	// ActivationCount counts Activate calls.
	ActivationCount uint32

	// SuccessCount counts successful confidence updates.
	SuccessCount uint32

	// FailureCount counts failed confidence updates.
	FailureCount uint32

	// CreatedAt is the creation time in unix seconds.
	CreatedAt uint32

	// LastActivated is the unix time of the most recent Activate.
	LastActivated uint32

	// LastUpdated is the unix time of the most recent confidence update.
	LastUpdated uint32

	_ [16]byte
}

// Connection flag bits.
const (
	// FlagMirrored marks the reverse record of a bidirectional insert.
	FlagMirrored uint8 = 1 << 0

	// FlagSeeded marks a connection created by a bootstrap library.
	FlagSeeded uint8 = 1 << 1
)

// New creates a connection between two token ids with the neutral
// confidence prior, zero weight, and Plastic mutability. Endpoints are
// fixed for the life of the record.
func New(from, to uint32) Connection {
	return NewAt(from, to, uint32(time.Now().Unix()))
}

// NewAt is New with an explicit creation timestamp (unix seconds).
func NewAt(from, to, unixSec uint32) Connection {
	return Connection{
		FromID:     from,
		ToID:       to,
		Confidence: InitialConfidence,
		Mutability: Plastic,
		CreatedAt:  unixSec,
	}
}

// SetConnectionType replaces the edge classification.
func (c *Connection) SetConnectionType(t ConnectionType) {
	c.Type = t
}

// Activate records that the edge fired.
//
// Exactly one activation is recorded per call: the counter increments, the
// eligibility trace is bumped (clamped to 1), and LastActivated is set.
// Activation is observational and is permitted on Frozen connections.
func (c *Connection) Activate() {
	c.ActivateAt(uint32(time.Now().Unix()))
}

// ActivateAt is Activate with an explicit timestamp, for replay and
// deterministic tests.
func (c *Connection) ActivateAt(unixSec uint32) {
	c.ActivationCount++
	c.Eligibility = clamp01(c.Eligibility + EligibilityBump)
	c.LastActivated = unixSec
}

// UpdateConfidence applies one bounded, monotone confidence adjustment.
//
// Description:
//
//	On success, confidence moves toward 1 by a step proportional to the
//	remaining headroom; on failure it moves toward 0 proportionally to the
//	current value. The step shrinks as confidence approaches either bound
//	(diminishing returns), and the result is clamped to [0, 1] regardless
//	of call sequence. Annealed connections apply half steps; Frozen
//	connections reject the update.
//
// Inputs:
//
//	success - Whether the edge's last firing was judged successful.
//
// Outputs:
//
//	error - ErrFrozen when Mutability is Frozen, nil otherwise.
func (c *Connection) UpdateConfidence(success bool) error {
	return c.UpdateConfidenceAt(success, uint32(time.Now().Unix()))
}

// UpdateConfidenceAt is UpdateConfidence with an explicit timestamp.
func (c *Connection) UpdateConfidenceAt(success bool, unixSec uint32) error {
	if c.Mutability == Frozen {
		return ErrFrozen
	}

	step := float32(ConfidenceStep)
	if c.Mutability == Annealed {
		step /= 2
	}

	if success {
		c.Confidence += step * (1 - c.Confidence)
		c.SuccessCount++
	} else {
		c.Confidence -= step * c.Confidence
		c.FailureCount++
	}
	c.Confidence = clamp01(c.Confidence)
	c.LastUpdated = unixSec
	return nil
}

// HasFlag reports whether every bit in mask is set.
func (c *Connection) HasFlag(mask uint8) bool {
	return c.Flags&mask == mask
}

// SetFlag sets the bits in mask.
func (c *Connection) SetFlag(mask uint8) {
	c.Flags |= mask
}

// ClearFlag clears the bits in mask.
func (c *Connection) ClearFlag(mask uint8) {
	c.Flags &^= mask
}

// AppendBinary appends the 64-byte encoding of the connection to dst and
// returns the extended slice.
func (c *Connection) AppendBinary(dst []byte) []byte {
	var buf [Size]byte
	c.encode(buf[:])
	return append(dst, buf[:]...)
}

// MarshalBinary returns the 64-byte little-endian encoding.
func (c *Connection) MarshalBinary() ([]byte, error) {
	buf := make([]byte, Size)
	c.encode(buf)
	return buf, nil
}

// UnmarshalBinary decodes a connection from exactly Size bytes. Reserved
// bytes are ignored.
func (c *Connection) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSize, len(data), Size)
	}
	c.FromID = binary.LittleEndian.Uint32(data[0:4])
	c.ToID = binary.LittleEndian.Uint32(data[4:8])
	c.Type = ConnectionType(data[8])
	c.Flags = data[9]
	c.Mutability = Mutability(data[10])
	c.Weight = math.Float32frombits(binary.LittleEndian.Uint32(data[12:16]))
	c.Confidence = math.Float32frombits(binary.LittleEndian.Uint32(data[16:20]))
	c.Eligibility = math.Float32frombits(binary.LittleEndian.Uint32(data[20:24]))
	c.ActivationCount = binary.LittleEndian.Uint32(data[24:28])
	c.SuccessCount = binary.LittleEndian.Uint32(data[28:32])
	c.FailureCount = binary.LittleEndian.Uint32(data[32:36])
	c.CreatedAt = binary.LittleEndian.Uint32(data[36:40])
	c.LastActivated = binary.LittleEndian.Uint32(data[40:44])
	c.LastUpdated = binary.LittleEndian.Uint32(data[44:48])
	return nil
}

func (c *Connection) encode(buf []byte) {
	_ = buf[Size-1]
	binary.LittleEndian.PutUint32(buf[0:4], c.FromID)
	binary.LittleEndian.PutUint32(buf[4:8], c.ToID)
	buf[8] = uint8(c.Type)
	buf[9] = c.Flags
	buf[10] = uint8(c.Mutability)
	buf[11] = 0
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(c.Weight))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(c.Confidence))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(c.Eligibility))
	binary.LittleEndian.PutUint32(buf[24:28], c.ActivationCount)
	binary.LittleEndian.PutUint32(buf[28:32], c.SuccessCount)
	binary.LittleEndian.PutUint32(buf[32:36], c.FailureCount)
	binary.LittleEndian.PutUint32(buf[36:40], c.CreatedAt)
	binary.LittleEndian.PutUint32(buf[40:44], c.LastActivated)
	binary.LittleEndian.PutUint32(buf[44:48], c.LastUpdated)
	for i := 48; i < Size; i++ {
		buf[i] = 0
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
