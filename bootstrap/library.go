// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bootstrap seeds a graph and grid from a YAML concept library.
//
// A library declares named concepts with their classification, weight,
// and per-space coordinates, plus the relations between them. Names are
// the human-facing identity; token ids derive deterministically from
// name and classification, so re-applying the same library is a no-op
// and edits converge instead of duplicating.
package bootstrap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/axon/connection"
	"github.com/AleutianAI/axon/graph"
	"github.com/AleutianAI/axon/token"
)

var (
	// ErrInvalidLibrary wraps structural problems in a library document.
	ErrInvalidLibrary = errors.New("bootstrap: invalid library")

	// ErrUnknownConcept reports a relation target no concept declares.
	ErrUnknownConcept = errors.New("bootstrap: relation references unknown concept")
)

// Library is the root of a seed document.
type Library struct {
	// Version is the document format version. Only 1 is defined.
	Version int `yaml:"version"`

	// Concepts are the seeded tokens.
	Concepts []Concept `yaml:"concepts"`
}

// Concept declares one seeded token and its outgoing relations.
type Concept struct {
	// Name is the unique human-facing identity of the concept.
	Name string `yaml:"name"`

	// Entity is the entity type name. Empty means Concept.
	Entity string `yaml:"entity"`

	// Domain is the knowledge domain name. Empty means General.
	Domain string `yaml:"domain"`

	// Weight is the token salience. Zero means 1.0.
	Weight float32 `yaml:"weight"`

	// Coordinates maps coordinate space names (l1_physical …
	// l8_abstract) to [x, y, z] positions. Unlisted spaces stay at
	// the origin.
	Coordinates map[string][]float32 `yaml:"coordinates"`

	// Relations are edges from this concept to other concepts in the
	// same library.
	Relations []Relation `yaml:"relations"`
}

// Relation declares one seeded edge.
type Relation struct {
	// To names the target concept. Must be declared in the library.
	To string `yaml:"to"`

	// Type is the connection type name. Empty means AssociatedWith.
	Type string `yaml:"type"`

	// Weight is the propagation weight. Zero means 1.0.
	Weight float32 `yaml:"weight"`

	// Bidirectional requests a mirrored reverse edge.
	Bidirectional bool `yaml:"bidirectional"`
}

// Load reads and validates a library file.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: read library: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a library document. Decoding is strict:
// a key the schema does not know is a typo in the library, not data to
// ignore.
func Parse(data []byte) (*Library, error) {
	var lib Library
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&lib); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLibrary, err)
	}
	if err := lib.Validate(); err != nil {
		return nil, err
	}
	return &lib, nil
}

// Validate checks the document without touching any graph.
func (l *Library) Validate() error {
	_, _, err := l.compile()
	return err
}

// ConceptID derives the deterministic token id for a named concept: a
// 24-bit hash of the name packed with the classification nibbles. Two
// concepts collide only if their name hashes and classifications both
// coincide.
func ConceptID(name string, et token.EntityType, d token.Domain) uint32 {
	local := uint32(xxhash.Sum64String(name)) & 0x00FFFFFF
	if local == 0 {
		local = 1
	}
	return token.ComposeID(local, et, d)
}

// conceptSpec is a concept resolved to binary-level values.
type conceptSpec struct {
	name   string
	id     uint32
	entity token.EntityType
	domain token.Domain
	weight float32
	coords map[token.CoordinateSpace][3]float32
}

// edgeSpec is a relation resolved to endpoint ids.
type edgeSpec struct {
	fromName, toName string
	from, to         uint32
	ctype            connection.ConnectionType
	weight           float32
	bidirectional    bool
}

// compile resolves every name in the document, reporting the first
// problem with enough context to fix the YAML.
func (l *Library) compile() ([]conceptSpec, []edgeSpec, error) {
	if l.Version != 0 && l.Version != 1 {
		return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidLibrary, l.Version)
	}
	if len(l.Concepts) == 0 {
		return nil, nil, fmt.Errorf("%w: no concepts", ErrInvalidLibrary)
	}

	ids := make(map[string]uint32, len(l.Concepts))
	concepts := make([]conceptSpec, 0, len(l.Concepts))

	for i := range l.Concepts {
		c := &l.Concepts[i]
		if c.Name == "" {
			return nil, nil, fmt.Errorf("%w: concept %d has no name", ErrInvalidLibrary, i)
		}
		if _, dup := ids[c.Name]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate concept %q", ErrInvalidLibrary, c.Name)
		}

		spec := conceptSpec{
			name:   c.Name,
			entity: token.EntityConcept,
			domain: token.DomainGeneral,
			weight: 1,
		}
		var err error
		if c.Entity != "" {
			if spec.entity, err = token.ParseEntityType(c.Entity); err != nil {
				return nil, nil, fmt.Errorf("%w: concept %q: %v", ErrInvalidLibrary, c.Name, err)
			}
		}
		if c.Domain != "" {
			if spec.domain, err = token.ParseDomain(c.Domain); err != nil {
				return nil, nil, fmt.Errorf("%w: concept %q: %v", ErrInvalidLibrary, c.Name, err)
			}
		}
		if c.Weight != 0 {
			if !finite(c.Weight) {
				return nil, nil, fmt.Errorf("%w: concept %q: weight %v", ErrInvalidLibrary, c.Name, c.Weight)
			}
			spec.weight = c.Weight
		}
		if len(c.Coordinates) > 0 {
			spec.coords = make(map[token.CoordinateSpace][3]float32, len(c.Coordinates))
			for spaceName, v := range c.Coordinates {
				space, err := token.ParseCoordinateSpace(spaceName)
				if err != nil {
					return nil, nil, fmt.Errorf("%w: concept %q: %v", ErrInvalidLibrary, c.Name, err)
				}
				if len(v) != 3 {
					return nil, nil, fmt.Errorf("%w: concept %q: space %s needs [x, y, z], got %d values",
						ErrInvalidLibrary, c.Name, space, len(v))
				}
				for _, coord := range v {
					if !finite(coord) {
						return nil, nil, fmt.Errorf("%w: concept %q: space %s: coordinate %v",
							ErrInvalidLibrary, c.Name, space, coord)
					}
				}
				spec.coords[space] = [3]float32{v[0], v[1], v[2]}
			}
		}

		spec.id = ConceptID(spec.name, spec.entity, spec.domain)
		ids[c.Name] = spec.id
		concepts = append(concepts, spec)
	}

	var edges []edgeSpec
	for i := range l.Concepts {
		c := &l.Concepts[i]
		for j, r := range c.Relations {
			if r.To == "" {
				return nil, nil, fmt.Errorf("%w: concept %q relation %d has no target", ErrInvalidLibrary, c.Name, j)
			}
			to, ok := ids[r.To]
			if !ok {
				return nil, nil, fmt.Errorf("%w: %q -> %q", ErrUnknownConcept, c.Name, r.To)
			}

			spec := edgeSpec{
				fromName:      c.Name,
				toName:        r.To,
				from:          ids[c.Name],
				to:            to,
				ctype:         connection.AssociatedWith,
				weight:        1,
				bidirectional: r.Bidirectional,
			}
			var err error
			if r.Type != "" {
				if spec.ctype, err = connection.ParseConnectionType(r.Type); err != nil {
					return nil, nil, fmt.Errorf("%w: concept %q relation %q: %v", ErrInvalidLibrary, c.Name, r.To, err)
				}
			}
			if r.Weight != 0 {
				if !finite(r.Weight) {
					return nil, nil, fmt.Errorf("%w: concept %q relation %q: weight %v",
						ErrInvalidLibrary, c.Name, r.To, r.Weight)
				}
				spec.weight = r.Weight
			}
			edges = append(edges, spec)
		}
	}

	if err := checkIDCollisions(concepts); err != nil {
		return nil, nil, err
	}
	return concepts, edges, nil
}

// checkIDCollisions rejects libraries where two distinct names hash to
// the same packed id. Rare, but silent merging would corrupt the seed.
func checkIDCollisions(concepts []conceptSpec) error {
	byID := make(map[uint32]string, len(concepts))
	for _, c := range concepts {
		if prev, clash := byID[c.id]; clash {
			return fmt.Errorf("%w: concepts %q and %q share id %08x; rename one",
				ErrInvalidLibrary, prev, c.name, c.id)
		}
		byID[c.id] = c.name
	}
	return nil
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// EdgeIDs returns the deterministic edge identities the library will
// produce, forward edges first. Useful for audit tooling.
func (l *Library) EdgeIDs() ([]graph.EdgeID, error) {
	_, edges, err := l.compile()
	if err != nil {
		return nil, err
	}
	out := make([]graph.EdgeID, 0, len(edges))
	for _, e := range edges {
		out = append(out, graph.ComputeEdgeID(e.from, e.to, e.ctype))
	}
	return out, nil
}
