// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package token defines the atomic knowledge record of the substrate.
//
// A Token is a 64-byte, pointer-free record holding identity, a packed
// classification byte, a salience weight, field parameters, and positions
// in eight independent coordinate spaces. The layout is part of the wire
// contract: records are stored in contiguous arenas, written to the WAL,
// and read by non-Go clients, so field order, size, and alignment must
// never change within a major version.
//
// # Binary Layout (little-endian, 64 bytes)
//
//	off  size  field
//	0    4     ID            uint32, immutable after creation
//	4    4     Timestamp     uint32, unix seconds at creation
//	8    4     Weight        float32, unconstrained salience
//	12   1     Class         entity type (low nibble) | domain (high nibble)
//	13   1     Flags         flag bitset
//	14   1     FieldRadius   0.01 units per step (0 - 2.55)
//	15   1     FieldStrength 1/255 units per step (0 - 1.0)
//	16   48    Coords        [8][3]int16 fixed-point coordinates
//
// # Ownership Model
//
// Tokens are plain values with no internal synchronization. Collections of
// tokens are single-writer structures: one owner mutates, or the owning
// collection is guarded externally. The package never allocates on the
// accessor paths.
//
// # Thread Safety
//
// A Token is NOT safe for concurrent mutation. Concurrent reads of an
// unchanging Token are safe.
package token

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// Size is the exact encoded size of a Token in bytes.
const Size = 64

// ErrInvalidSize is returned when decoding a buffer that is not exactly
// Size bytes long.
var ErrInvalidSize = errors.New("token: invalid record size")

// Token is the atomic unit of knowledge.
//
// All fields are exported for arena and codec use, but two carry contracts
// the type system cannot enforce:
//
//   - ID is immutable after creation and never reused while the token is
//     live. Mutating it breaks edge identity across the graph.
//   - Coords holds raw fixed-point values; use SetCoordinates/Coordinates
//     so the per-space scale factors are applied.
type Token struct {
	// ID is the caller-assigned 32-bit identifier. Immutable.
	ID uint32

	// Timestamp is the creation time in unix seconds.
	Timestamp uint32

	// Weight is the salience scalar. Unconstrained range, freely mutable.
	Weight float32

	// Class packs the entity type (low nibble) and domain (high nibble).
	Class uint8

	// Flags is the token flag bitset. See the Flag* constants.
	Flags uint8

	// FieldRadius is the influence radius in steps of 0.01 units.
	FieldRadius uint8

	// FieldStrength is the influence strength in steps of 1/255.
	FieldStrength uint8

	// Coords holds the fixed-point position in each coordinate space.
	Coords [NumSpaces][3]int16
}

// Token flag bits.
const (
	// FlagActive marks a token as participating in propagation.
	FlagActive uint8 = 1 << 0

	// FlagPinned exempts a token from decay sweeps.
	FlagPinned uint8 = 1 << 1

	// FlagArchived marks a token whose experience history was archived.
	FlagArchived uint8 = 1 << 2

	// FlagEphemeral marks a token that collaborators may discard freely.
	FlagEphemeral uint8 = 1 << 3
)

// New creates a token with the given identifier, default classification,
// zero weight, and zero coordinates in all spaces.
//
// The identifier is owned by the caller and must not be reused while this
// token is live.
func New(id uint32) Token {
	return NewAt(id, uint32(time.Now().Unix()))
}

// NewAt is New with an explicit creation timestamp (unix seconds). Useful
// for replay and deterministic tests.
func NewAt(id, unixSec uint32) Token {
	return Token{ID: id, Timestamp: unixSec}
}

// EntityType returns the classification tag packed into Class.
func (t *Token) EntityType() EntityType {
	return EntityType(t.Class & 0x0F)
}

// SetEntityType replaces the classification tag. The identifier and domain
// are untouched.
func (t *Token) SetEntityType(et EntityType) {
	t.Class = (t.Class & 0xF0) | (uint8(et) & 0x0F)
}

// Domain returns the domain tag packed into Class.
func (t *Token) Domain() Domain {
	return Domain(t.Class >> 4)
}

// SetDomain replaces the domain tag.
func (t *Token) SetDomain(d Domain) {
	t.Class = (t.Class & 0x0F) | (uint8(d) << 4)
}

// HasFlag reports whether every bit in mask is set.
func (t *Token) HasFlag(mask uint8) bool {
	return t.Flags&mask == mask
}

// SetFlag sets the bits in mask.
func (t *Token) SetFlag(mask uint8) {
	t.Flags |= mask
}

// ClearFlag clears the bits in mask.
func (t *Token) ClearFlag(mask uint8) {
	t.Flags &^= mask
}

// SetCoordinates places the token in the given space.
//
// Description:
//
//	Quantizes (x, y, z) with the space's scale factor and stores the
//	fixed-point triple. Values beyond the representable range saturate.
//	Other spaces are untouched.
//
// Inputs:
//
//	space - One of the eight defined coordinate spaces.
//	x, y, z - Position in space units.
//
// Panics: if space is not one of the eight defined spaces. Passing an
// undefined space is a programmer error, not a runtime condition.
//
// Complexity: O(1), no allocation.
func (t *Token) SetCoordinates(space CoordinateSpace, x, y, z float32) {
	space.mustValid()
	s := ScaleFactors[space]
	t.Coords[space][0] = quantize(x, s)
	t.Coords[space][1] = quantize(y, s)
	t.Coords[space][2] = quantize(z, s)
}

// Coordinates returns the token's position in the given space.
//
// Values on the space's quantization grid round-trip exactly through
// SetCoordinates; others return the nearest grid point.
//
// Panics: if space is not one of the eight defined spaces.
func (t *Token) Coordinates(space CoordinateSpace) (x, y, z float32) {
	space.mustValid()
	s := ScaleFactors[space]
	return dequantize(t.Coords[space][0], s),
		dequantize(t.Coords[space][1], s),
		dequantize(t.Coords[space][2], s)
}

// SetFieldRadius stores the influence radius, clamped to [0, 2.55] and
// quantized to 0.01-unit steps.
func (t *Token) SetFieldRadius(r float32) {
	t.FieldRadius = quantizeUnit(r, 100, 2.55)
}

// FieldRadiusValue returns the influence radius in units.
func (t *Token) FieldRadiusValue() float32 {
	return float32(t.FieldRadius) / 100
}

// SetFieldStrength stores the influence strength, clamped to [0, 1] and
// quantized to 1/255 steps.
func (t *Token) SetFieldStrength(s float32) {
	t.FieldStrength = quantizeUnit(s, 255, 1)
}

// FieldStrengthValue returns the influence strength in [0, 1].
func (t *Token) FieldStrengthValue() float32 {
	return float32(t.FieldStrength) / 255
}

// AppendBinary appends the 64-byte encoding of the token to dst and
// returns the extended slice.
func (t *Token) AppendBinary(dst []byte) []byte {
	var buf [Size]byte
	t.encode(buf[:])
	return append(dst, buf[:]...)
}

// MarshalBinary returns the 64-byte little-endian encoding of the token.
func (t *Token) MarshalBinary() ([]byte, error) {
	buf := make([]byte, Size)
	t.encode(buf)
	return buf, nil
}

// UnmarshalBinary decodes a token from exactly Size bytes.
func (t *Token) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSize, len(data), Size)
	}
	t.ID = binary.LittleEndian.Uint32(data[0:4])
	t.Timestamp = binary.LittleEndian.Uint32(data[4:8])
	t.Weight = math.Float32frombits(binary.LittleEndian.Uint32(data[8:12]))
	t.Class = data[12]
	t.Flags = data[13]
	t.FieldRadius = data[14]
	t.FieldStrength = data[15]
	for s := 0; s < NumSpaces; s++ {
		base := 16 + s*6
		t.Coords[s][0] = int16(binary.LittleEndian.Uint16(data[base : base+2]))
		t.Coords[s][1] = int16(binary.LittleEndian.Uint16(data[base+2 : base+4]))
		t.Coords[s][2] = int16(binary.LittleEndian.Uint16(data[base+4 : base+6]))
	}
	return nil
}

func (t *Token) encode(buf []byte) {
	_ = buf[Size-1]
	binary.LittleEndian.PutUint32(buf[0:4], t.ID)
	binary.LittleEndian.PutUint32(buf[4:8], t.Timestamp)
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(t.Weight))
	buf[12] = t.Class
	buf[13] = t.Flags
	buf[14] = t.FieldRadius
	buf[15] = t.FieldStrength
	for s := 0; s < NumSpaces; s++ {
		base := 16 + s*6
		binary.LittleEndian.PutUint16(buf[base:base+2], uint16(t.Coords[s][0]))
		binary.LittleEndian.PutUint16(buf[base+2:base+4], uint16(t.Coords[s][1]))
		binary.LittleEndian.PutUint16(buf[base+4:base+6], uint16(t.Coords[s][2]))
	}
}

// quantizeUnit clamps v to [0, max] and quantizes with the given scale.
func quantizeUnit(v, scale, max float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > max {
		v = max
	}
	return uint8(v*scale + 0.5)
}
