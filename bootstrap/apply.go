// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/axon/connection"
	"github.com/AleutianAI/axon/graph"
	"github.com/AleutianAI/axon/grid"
	"github.com/AleutianAI/axon/token"
)

// ErrNilGraph rejects Apply without a graph.
var ErrNilGraph = errors.New("bootstrap: graph is required")

// Result summarizes one application of a library.
type Result struct {
	// Concepts is the number of concepts processed.
	Concepts int

	// NodesAdded counts node registrations that were new to the graph.
	NodesAdded int

	// TokensIndexed counts grid insertions. Zero when no grid given.
	TokensIndexed int

	// EdgesAdded counts newly inserted edge records, mirrors included.
	EdgesAdded int

	// EdgesExisting counts edge records skipped because an identical
	// identity was already present. Non-zero on re-application.
	EdgesExisting int
}

// Apply registers the library's concepts and relations.
//
// Apply is idempotent: ids derive from names, node registration is a
// no-op for known ids, and duplicate edge identities are counted in
// EdgesExisting instead of failing. It is not transactional; a failed
// apply leaves earlier inserts in place, and a retry converges.
//
// The grid is optional. When present, each concept's token is indexed
// at its declared coordinates, pinned and active.
func (l *Library) Apply(g *graph.Graph, gr *grid.Grid) (Result, error) {
	if g == nil {
		return Result{}, ErrNilGraph
	}
	concepts, edges, err := l.compile()
	if err != nil {
		return Result{}, err
	}

	var res Result
	now := uint32(time.Now().Unix())

	for _, cs := range concepts {
		res.Concepts++

		known := g.HasNode(cs.id)
		if err := g.AddNode(cs.id); err != nil {
			return res, fmt.Errorf("bootstrap: register %q: %w", cs.name, err)
		}
		if !known {
			res.NodesAdded++
		}

		if gr != nil {
			tok := token.NewAt(cs.id, now)
			tok.SetEntityType(cs.entity)
			tok.SetDomain(cs.domain)
			tok.Weight = cs.weight
			tok.SetFlag(token.FlagActive | token.FlagPinned)
			for space, xyz := range cs.coords {
				tok.SetCoordinates(space, xyz[0], xyz[1], xyz[2])
			}
			if err := gr.Insert(&tok); err != nil {
				return res, fmt.Errorf("bootstrap: index %q: %w", cs.name, err)
			}
			res.TokensIndexed++
		}
	}

	for _, es := range edges {
		n, err := applyEdge(g, es, now)
		res.EdgesAdded += n
		if err != nil {
			return res, fmt.Errorf("bootstrap: relate %q -> %q: %w", es.fromName, es.toName, err)
		}
		res.EdgesExisting += edgeRecords(es) - n
	}
	return res, nil
}

// edgeRecords is how many records a spec produces when nothing exists.
func edgeRecords(es edgeSpec) int {
	if es.bidirectional && es.from != es.to {
		return 2
	}
	return 1
}

// applyEdge inserts the forward record and, when requested, the mirror.
// Duplicates are skipped, not errors. Returns how many records were
// actually inserted.
func applyEdge(g *graph.Graph, es edgeSpec, now uint32) (int, error) {
	inserted := 0

	fwd := connection.NewAt(es.from, es.to, now)
	fwd.SetConnectionType(es.ctype)
	fwd.Weight = es.weight
	fwd.SetFlag(connection.FlagSeeded)

	switch err := g.InsertEdge(graph.ComputeEdgeID(es.from, es.to, es.ctype), &fwd); {
	case err == nil:
		inserted++
	case errors.Is(err, graph.ErrDuplicateEdge):
	default:
		return inserted, err
	}

	if !es.bidirectional || es.from == es.to {
		return inserted, nil
	}

	rev := connection.NewAt(es.to, es.from, now)
	rev.SetConnectionType(es.ctype)
	rev.Weight = es.weight
	rev.SetFlag(connection.FlagSeeded | connection.FlagMirrored)

	switch err := g.InsertEdge(graph.ComputeEdgeID(es.to, es.from, es.ctype), &rev); {
	case err == nil:
		inserted++
	case errors.Is(err, graph.ErrDuplicateEdge):
	default:
		return inserted, err
	}
	return inserted, nil
}
