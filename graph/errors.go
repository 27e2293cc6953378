// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph stores the knowledge substrate: registered token ids and
// the connection records between them, addressed by deterministic edge
// identity.
//
// The graph package contains the mutation surface (AddNode, AddEdge,
// ActivateEdge, UpdateEdgeConfidence), secondary indexes for type- and
// adjacency-scoped queries, and signal propagation over the stored
// weights.
//
// # Ownership Model
//
// The graph owns its connection records. AddEdge and InsertEdge copy the
// record into contiguous storage; callers keep no alias into the graph.
// Reads return copies. Token payloads are NOT stored here — the graph
// tracks node ids only, and an edge may legally reference an id that was
// never registered (a dangling endpoint).
//
// # Thread Safety
//
// All methods are safe for concurrent use. Structure and records are
// guarded by a single RWMutex: queries run concurrently, mutations
// serialize. The design assumes one authoritative writer; concurrent
// writers are correct but their observer hooks may interleave.
//
// ComputeEdgeID is pure and safe without any lock.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrDuplicateEdge is returned when an edge with the same
	// (from, to, type) identity already exists. Duplicate insertion is
	// rejected; callers merge or overwrite explicitly via UpdateEdge.
	ErrDuplicateEdge = errors.New("connection already exists for this identity")

	// ErrGraphFull is returned when the graph has reached its configured
	// maximum edge capacity.
	ErrGraphFull = errors.New("maximum edge count exceeded")

	// ErrNodeLimit is returned when the graph has reached its configured
	// maximum node capacity.
	ErrNodeLimit = errors.New("maximum node count exceeded")

	// ErrUnknownNode is returned when an operation requires a registered
	// node id, such as the source of a propagation.
	ErrUnknownNode = errors.New("node id not registered")

	// ErrUnknownEdge is returned when an edge id does not resolve to a
	// stored connection.
	ErrUnknownEdge = errors.New("edge id not found")

	// ErrNilConnection is returned when a nil record is offered for
	// insertion.
	ErrNilConnection = errors.New("connection must not be nil")

	// ErrEdgeIdentity is returned when a supplied edge id does not match
	// the identity derived from the record's endpoints and type.
	ErrEdgeIdentity = errors.New("edge id does not match connection identity")

	// ErrInvalidEdgeType is returned when a connection type is outside
	// the closed set.
	ErrInvalidEdgeType = errors.New("connection type out of range")
)
