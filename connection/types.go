// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package connection

import "fmt"

// ConnectionType is the closed edge classification. It is stored in one
// byte and indexes per-type secondary structures, so the set is fixed at
// NumConnectionTypes values.
type ConnectionType uint8

const (
	Unknown ConnectionType = iota
	AssociatedWith
	IsA
	PartOf
	Causes
	Precedes
	LocatedAt
	OwnedBy
	SimilarTo
	Opposes
	Enables
	Inhibits
	DerivedFrom
	RespondsTo
	Reserved14
	Custom
)

// NumConnectionTypes is the size of the closed connection type set.
const NumConnectionTypes = 16

var typeNames = [NumConnectionTypes]string{
	"Unknown", "AssociatedWith", "IsA", "PartOf", "Causes", "Precedes",
	"LocatedAt", "OwnedBy", "SimilarTo", "Opposes", "Enables", "Inhibits",
	"DerivedFrom", "RespondsTo", "Reserved14", "Custom",
}

// Valid reports whether t is within the closed set.
func (t ConnectionType) Valid() bool {
	return t < NumConnectionTypes
}

func (t ConnectionType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("connection_type(%d)", uint8(t))
	}
	return typeNames[t]
}

// ParseConnectionType resolves a name as returned by String.
func ParseConnectionType(name string) (ConnectionType, error) {
	for i, n := range typeNames {
		if n == name {
			return ConnectionType(i), nil
		}
	}
	return 0, fmt.Errorf("connection: unknown connection type %q", name)
}

// Mutability is the confidence update policy of a connection.
type Mutability uint8

const (
	// Plastic connections apply the full confidence step.
	Plastic Mutability = iota

	// Annealed connections apply half steps, damping late-stage drift.
	Annealed

	// Frozen connections reject confidence updates entirely.
	Frozen
)

func (m Mutability) String() string {
	switch m {
	case Plastic:
		return "Plastic"
	case Annealed:
		return "Annealed"
	case Frozen:
		return "Frozen"
	default:
		return fmt.Sprintf("mutability(%d)", uint8(m))
	}
}

// Proposal is a request to create a connection, shaped for pre-insertion
// validation by the guardian collaborator. The `validate` tags carry the
// structural rules; semantic rules (self-loop policy, weight finiteness,
// rate limits) live in the guardian itself.
type Proposal struct {
	// FromID is the proposed source token id.
	FromID uint32 `validate:"required"`

	// ToID is the proposed target token id.
	ToID uint32 `validate:"required"`

	// Type is the proposed edge classification.
	Type ConnectionType `validate:"lt=16"`

	// Weight is the proposed propagation weight.
	Weight float32

	// Bidirectional requests a mirrored reverse edge.
	Bidirectional bool
}
