// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Event is one fixed 128-byte experience record.
//
// Little-endian layout, byte-identical across process boundaries:
//
//	off  size  field           notes
//	0    16    EventID         hi/lo uint64 pair, caller-assigned
//	16   8     Timestamp       unix nanoseconds
//	24   1     Type            EventType
//	25   1     Flags           EventFlags bitset
//	26   1     Appraiser       appraisal channel
//	27   1     reserved
//	28   4     SourceID        originating token or action id
//	32   80    State           [20]float32 snapshot vector
//	112  4     Reward          float32
//	116  4     Novelty         float32
//	120  4     Sequence        write position, assigned by the stream
//	124  4     reserved
//
// An event is written once and never mutated after publish; eviction is
// by ring overwrite only. Uniqueness of ID is the producer's
// responsibility, not enforced here.
type Event struct {
	// ID is the caller-assigned 128-bit identifier.
	ID EventID

	// Timestamp is the production time in unix nanoseconds.
	Timestamp uint64

	// Type classifies what happened.
	Type EventType

	// Flags is an EventFlags bitset.
	Flags uint8

	// Appraiser names the channel that scored Reward and Novelty.
	Appraiser AppraiserType

	_ uint8

	// SourceID is the originating token or action id, zero when none.
	SourceID uint32

	// State is the fixed numeric snapshot vector.
	State [StateDim]float32

	// Reward is the scalar outcome signal.
	Reward float32

	// Novelty is the scalar surprise signal.
	Novelty float32

	// Sequence is the global write position, assigned by WriteEvent.
	Sequence uint32

	_ uint32
}

const (
	// EventSize is the exact marshaled size of an Event.
	EventSize = 128

	// StateDim is the length of the state snapshot vector.
	StateDim = 20
)

// ErrInvalidEvent rejects malformed events at the write boundary.
var ErrInvalidEvent = errors.New("stream: invalid event")

// EventID is a 128-bit event identifier.
//
// Ids from NewEventID carry time-ordered high bits, so numeric
// comparison of Hi (then Lo) follows production order.
type EventID struct {
	Hi uint64
	Lo uint64
}

// IsZero reports whether the id is unassigned.
func (id EventID) IsZero() bool {
	return id.Hi == 0 && id.Lo == 0
}

func (id EventID) String() string {
	return fmt.Sprintf("%016x%016x", id.Hi, id.Lo)
}

// NewEventID derives a fresh time-ordered identifier (UUIDv7 bits).
func NewEventID() EventID {
	u, err := uuid.NewV7()
	if err != nil {
		// v7 only fails when the entropy source does; fall back to v4.
		u = uuid.New()
	}
	return EventID{
		Hi: binary.BigEndian.Uint64(u[:8]),
		Lo: binary.BigEndian.Uint64(u[8:]),
	}
}

// EventType classifies an experience event.
type EventType uint8

const (
	EventUnknown EventType = iota
	EventObservation
	EventAction
	EventOutcome
	EventSignal
	EventReward
	EventSystemHealth
	EventCustom

	// NumEventTypes is the size of the closed event type set.
	NumEventTypes
)

var eventTypeNames = [NumEventTypes]string{
	"Unknown", "Observation", "Action", "Outcome",
	"Signal", "Reward", "SystemHealth", "Custom",
}

// Valid reports whether t is within the closed set.
func (t EventType) Valid() bool {
	return t < NumEventTypes
}

func (t EventType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("event_type(%d)", uint8(t))
	}
	return eventTypeNames[t]
}

// Event flag bits.
const (
	// EventFlagTerminal marks the last event of an episode.
	EventFlagTerminal uint8 = 1 << 0

	// EventFlagSynthetic marks events produced by replay or simulation
	// rather than live observation.
	EventFlagSynthetic uint8 = 1 << 1
)

// AppraiserType names the channel that scored an event.
type AppraiserType uint8

const (
	AppraiserNone AppraiserType = iota
	AppraiserHomeostatic
	AppraiserCuriosity
	AppraiserExternal
)

func (a AppraiserType) String() string {
	switch a {
	case AppraiserNone:
		return "None"
	case AppraiserHomeostatic:
		return "Homeostatic"
	case AppraiserCuriosity:
		return "Curiosity"
	case AppraiserExternal:
		return "External"
	default:
		return fmt.Sprintf("appraiser(%d)", uint8(a))
	}
}

// NewEvent creates an event with a fresh id and the given type. The
// caller fills state and appraisal fields before writing it.
func NewEvent(t EventType, timestampNanos uint64) Event {
	return Event{
		ID:        NewEventID(),
		Timestamp: timestampNanos,
		Type:      t,
	}
}

// Validate reports whether the event may enter a stream.
func (e *Event) Validate() error {
	if e.ID.IsZero() {
		return fmt.Errorf("%w: zero event id", ErrInvalidEvent)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown event type %d", ErrInvalidEvent, uint8(e.Type))
	}
	return nil
}

// AppendBinary appends the 128-byte image to dst.
func (e *Event) AppendBinary(dst []byte) []byte {
	var buf [EventSize]byte
	e.encode(buf[:])
	return append(dst, buf[:]...)
}

// MarshalBinary returns the 128-byte image.
func (e *Event) MarshalBinary() ([]byte, error) {
	buf := make([]byte, EventSize)
	e.encode(buf)
	return buf, nil
}

// UnmarshalBinary decodes a 128-byte image.
func (e *Event) UnmarshalBinary(data []byte) error {
	if len(data) != EventSize {
		return fmt.Errorf("stream: event image must be %d bytes, got %d", EventSize, len(data))
	}
	e.ID.Hi = binary.LittleEndian.Uint64(data[0:])
	e.ID.Lo = binary.LittleEndian.Uint64(data[8:])
	e.Timestamp = binary.LittleEndian.Uint64(data[16:])
	e.Type = EventType(data[24])
	e.Flags = data[25]
	e.Appraiser = AppraiserType(data[26])
	e.SourceID = binary.LittleEndian.Uint32(data[28:])
	for i := 0; i < StateDim; i++ {
		e.State[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[32+4*i:]))
	}
	e.Reward = math.Float32frombits(binary.LittleEndian.Uint32(data[112:]))
	e.Novelty = math.Float32frombits(binary.LittleEndian.Uint32(data[116:]))
	e.Sequence = binary.LittleEndian.Uint32(data[120:])
	return nil
}

// encode writes the image into buf, which must hold EventSize bytes.
// Reserved bytes encode as zero.
func (e *Event) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:], e.ID.Hi)
	binary.LittleEndian.PutUint64(buf[8:], e.ID.Lo)
	binary.LittleEndian.PutUint64(buf[16:], e.Timestamp)
	buf[24] = uint8(e.Type)
	buf[25] = e.Flags
	buf[26] = uint8(e.Appraiser)
	buf[27] = 0
	binary.LittleEndian.PutUint32(buf[28:], e.SourceID)
	for i := 0; i < StateDim; i++ {
		binary.LittleEndian.PutUint32(buf[32+4*i:], math.Float32bits(e.State[i]))
	}
	binary.LittleEndian.PutUint32(buf[112:], math.Float32bits(e.Reward))
	binary.LittleEndian.PutUint32(buf[116:], math.Float32bits(e.Novelty))
	binary.LittleEndian.PutUint32(buf[120:], e.Sequence)
	binary.LittleEndian.PutUint32(buf[124:], 0)
}
