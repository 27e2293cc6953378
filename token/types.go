// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package token

import "fmt"

// EntityType is the closed classification tag of a token. It occupies the
// low nibble of Token.Class, so values are limited to 0-15.
type EntityType uint8

const (
	EntityUnknown EntityType = iota
	EntityConcept
	EntityObject
	EntityAgent
	EntityAction
	EntityAttribute
	EntityRelation
	EntityEvent
	EntityPlace
	EntityMoment
	EntitySignal
	EntityPattern
	EntityGoal
	EntityMemory
	EntityRule
	EntityCustom
)

// NumEntityTypes is the size of the closed entity type set.
const NumEntityTypes = 16

var entityNames = [NumEntityTypes]string{
	"Unknown", "Concept", "Object", "Agent", "Action", "Attribute",
	"Relation", "Event", "Place", "Moment", "Signal", "Pattern", "Goal",
	"Memory", "Rule", "Custom",
}

// Valid reports whether t is within the closed set.
func (t EntityType) Valid() bool {
	return t < NumEntityTypes
}

func (t EntityType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("entity_type(%d)", uint8(t))
	}
	return entityNames[t]
}

// ParseEntityType resolves a name as returned by String.
func ParseEntityType(name string) (EntityType, error) {
	for i, n := range entityNames {
		if n == name {
			return EntityType(i), nil
		}
	}
	return 0, fmt.Errorf("token: unknown entity type %q", name)
}

// Domain is the coarse knowledge domain of a token, packed into the high
// nibble of Token.Class. Domains 1-8 mirror the coordinate spaces; the
// remaining values are reserved.
type Domain uint8

const (
	DomainGeneral Domain = iota
	DomainPhysical
	DomainSensory
	DomainMotor
	DomainEmotional
	DomainCognitive
	DomainSocial
	DomainTemporal
	DomainAbstract
)

// NumDomains is the count of named domains; values up to 15 encode but
// have no assigned meaning yet.
const NumDomains = 9

var domainNames = [NumDomains]string{
	"General", "Physical", "Sensory", "Motor", "Emotional", "Cognitive",
	"Social", "Temporal", "Abstract",
}

func (d Domain) String() string {
	if d >= NumDomains {
		return fmt.Sprintf("domain(%d)", uint8(d))
	}
	return domainNames[d]
}

// ParseDomain resolves a name as returned by String.
func ParseDomain(name string) (Domain, error) {
	for i, n := range domainNames {
		if n == name {
			return Domain(i), nil
		}
	}
	return 0, fmt.Errorf("token: unknown domain %q", name)
}

// ID packing helpers.
//
// External language clients pack a 24-bit local identifier together with
// the entity type and domain nibbles into the 32-bit token id. These
// helpers keep that convention available without ever mutating a live
// token's ID: classification changes go through SetEntityType/SetDomain on
// the Class byte instead.

// ComposeID packs a 24-bit local id with classification nibbles.
func ComposeID(local uint32, et EntityType, d Domain) uint32 {
	return (local & 0x00FFFFFF) | (uint32(et&0x0F) << 24) | (uint32(d&0x0F) << 28)
}

// LocalID extracts the 24-bit local identifier from a packed id.
func LocalID(id uint32) uint32 {
	return id & 0x00FFFFFF
}

// IDEntityType extracts the entity type nibble from a packed id.
func IDEntityType(id uint32) EntityType {
	return EntityType((id >> 24) & 0x0F)
}

// IDDomain extracts the domain nibble from a packed id.
func IDDomain(id uint32) Domain {
	return Domain(id >> 28)
}
