// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/axon/connection"
	"github.com/AleutianAI/axon/diagnostics"
	"github.com/AleutianAI/axon/wal"
)

// Graph holds registered node ids and connection records in contiguous
// storage, with secondary indexes by type and adjacency.
//
// Records live in an append-only arena; an EdgeID resolves to an arena
// slot through the identity index. Mutations update records in place,
// so an edge keeps its slot for the life of the graph (Clear resets
// everything).
type Graph struct {
	mu sync.RWMutex

	nodes map[uint32]struct{}
	edges []connection.Connection
	ids   []EdgeID // parallel to edges: slot → identity
	index map[EdgeID]int32

	// Secondary indexes, all holding arena slots.
	out    map[uint32][]int32
	in     map[uint32][]int32
	byType [connection.NumConnectionTypes][]int32

	opts     Options
	logger   *slog.Logger
	metrics  diagnostics.Metrics
	observer Observer
	wal      wal.Writer
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Metrics == nil {
		options.Metrics = diagnostics.NewNoOpMetrics()
	}

	return &Graph{
		nodes:    make(map[uint32]struct{}),
		index:    make(map[EdgeID]int32),
		out:      make(map[uint32][]int32),
		in:       make(map[uint32][]int32),
		opts:     options,
		logger:   options.Logger.With(slog.String("component", "graph")),
		metrics:  options.Metrics,
		observer: options.Observer,
		wal:      options.WAL,
	}
}

// -----------------------------------------------------------------------------
// Nodes
// -----------------------------------------------------------------------------

// AddNode registers a node id. Adding an id that is already registered
// is a successful no-op.
func (g *Graph) AddNode(id uint32) error {
	g.mu.Lock()
	if _, ok := g.nodes[id]; ok {
		g.mu.Unlock()
		return nil
	}
	if g.opts.MaxNodes > 0 && len(g.nodes) >= g.opts.MaxNodes {
		g.mu.Unlock()
		return ErrNodeLimit
	}
	g.nodes[id] = struct{}{}
	nodes, edges := len(g.nodes), len(g.edges)
	g.mu.Unlock()

	g.metrics.SetGraphSize(nodes, edges)
	g.logMutation(wal.KindNodeAdded, nodePayload(id))
	return nil
}

// HasNode reports whether a node id is registered.
func (g *Graph) HasNode(id uint32) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// NodeCount returns the number of registered node ids.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// -----------------------------------------------------------------------------
// Edges
// -----------------------------------------------------------------------------

// AddEdge creates a connection and stores it under its derived identity.
//
// When bidirectional is set, a mirrored record (to → from, same type and
// weight, FlagMirrored) is stored under its own identity in the same
// call; if either identity already exists nothing is inserted. Endpoints
// need not be registered nodes.
//
// Returns the forward edge id.
func (g *Graph) AddEdge(from, to uint32, t connection.ConnectionType, weight float32, bidirectional bool) (EdgeID, error) {
	if !t.Valid() {
		return 0, ErrInvalidEdgeType
	}
	fwd := ComputeEdgeID(from, to, t)
	rev := ComputeEdgeID(to, from, t)
	mirrored := bidirectional && rev != fwd

	g.mu.Lock()
	if _, ok := g.index[fwd]; ok {
		g.mu.Unlock()
		g.metrics.RecordEdgeConflict()
		return 0, ErrDuplicateEdge
	}
	if mirrored {
		if _, ok := g.index[rev]; ok {
			g.mu.Unlock()
			g.metrics.RecordEdgeConflict()
			return 0, ErrDuplicateEdge
		}
	}

	needed := 1
	if mirrored {
		needed = 2
	}
	if g.opts.MaxEdges > 0 && len(g.edges)+needed > g.opts.MaxEdges {
		g.mu.Unlock()
		return 0, ErrGraphFull
	}

	now := uint32(time.Now().Unix())
	c := connection.NewAt(from, to, now)
	c.SetConnectionType(t)
	c.Weight = weight
	g.insertLocked(fwd, c)

	var m connection.Connection
	if mirrored {
		m = connection.NewAt(to, from, now)
		m.SetConnectionType(t)
		m.Weight = weight
		m.SetFlag(connection.FlagMirrored)
		g.insertLocked(rev, m)
	}
	nodes, edges := len(g.nodes), len(g.edges)
	g.mu.Unlock()

	g.metrics.SetGraphSize(nodes, edges)
	g.logMutation(wal.KindEdgeInserted, edgePayload(fwd, &c))
	if mirrored {
		g.logMutation(wal.KindEdgeInserted, edgePayload(rev, &m))
	}
	return fwd, nil
}

// InsertEdge stores a prebuilt record under an explicit id. This is the
// replay and seeding path: the id must equal the identity derived from
// the record, and duplicates are rejected like AddEdge.
func (g *Graph) InsertEdge(id EdgeID, c *connection.Connection) error {
	if c == nil {
		return ErrNilConnection
	}
	if !c.Type.Valid() {
		return ErrInvalidEdgeType
	}
	if ComputeEdgeID(c.FromID, c.ToID, c.Type) != id {
		return ErrEdgeIdentity
	}

	g.mu.Lock()
	if _, ok := g.index[id]; ok {
		g.mu.Unlock()
		g.metrics.RecordEdgeConflict()
		return ErrDuplicateEdge
	}
	if g.opts.MaxEdges > 0 && len(g.edges) >= g.opts.MaxEdges {
		g.mu.Unlock()
		return ErrGraphFull
	}
	g.insertLocked(id, *c)
	nodes, edges := len(g.nodes), len(g.edges)
	g.mu.Unlock()

	g.metrics.SetGraphSize(nodes, edges)
	g.logMutation(wal.KindEdgeInserted, edgePayload(id, c))
	return nil
}

// UpdateEdge overwrites the stored record for an existing id. Identity
// fields must match; this is the explicit merge path after a duplicate
// rejection.
func (g *Graph) UpdateEdge(id EdgeID, c *connection.Connection) error {
	if c == nil {
		return ErrNilConnection
	}
	if !c.Type.Valid() {
		return ErrInvalidEdgeType
	}
	if ComputeEdgeID(c.FromID, c.ToID, c.Type) != id {
		return ErrEdgeIdentity
	}

	g.mu.Lock()
	slot, ok := g.index[id]
	if !ok {
		g.mu.Unlock()
		return ErrUnknownEdge
	}
	g.edges[slot] = *c
	g.mu.Unlock()

	g.logMutation(wal.KindEdgeInserted, edgePayload(id, c))
	return nil
}

// insertLocked appends a record and wires the indexes. Caller holds mu.
func (g *Graph) insertLocked(id EdgeID, c connection.Connection) {
	slot := int32(len(g.edges))
	g.edges = append(g.edges, c)
	g.ids = append(g.ids, id)
	g.index[id] = slot
	g.out[c.FromID] = append(g.out[c.FromID], slot)
	g.in[c.ToID] = append(g.in[c.ToID], slot)
	g.byType[c.Type] = append(g.byType[c.Type], slot)
}

// GetEdge returns a copy of the stored record.
func (g *Graph) GetEdge(id EdgeID) (connection.Connection, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	slot, ok := g.index[id]
	if !ok {
		return connection.Connection{}, false
	}
	return g.edges[slot], true
}

// HasEdge reports whether an edge id resolves to a stored record.
func (g *Graph) HasEdge(id EdgeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.index[id]
	return ok
}

// EdgeCount returns the number of stored connections.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// EdgesByType returns the ids of all connections with the given type,
// in insertion order.
func (g *Graph) EdgesByType(t connection.ConnectionType) []EdgeID {
	if !t.Valid() {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	slots := g.byType[t]
	if len(slots) == 0 {
		return nil
	}
	ids := make([]EdgeID, len(slots))
	for i, s := range slots {
		ids[i] = g.ids[s]
	}
	return ids
}

// OutEdges returns the ids of connections leaving a node, in insertion
// order.
func (g *Graph) OutEdges(node uint32) []EdgeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.idsForSlots(g.out[node])
}

// InEdges returns the ids of connections arriving at a node, in
// insertion order.
func (g *Graph) InEdges(node uint32) []EdgeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.idsForSlots(g.in[node])
}

// idsForSlots copies slot ids. Caller holds mu (read or write).
func (g *Graph) idsForSlots(slots []int32) []EdgeID {
	if len(slots) == 0 {
		return nil
	}
	ids := make([]EdgeID, len(slots))
	for i, s := range slots {
		ids[i] = g.ids[s]
	}
	return ids
}

// -----------------------------------------------------------------------------
// Learning Mutations
// -----------------------------------------------------------------------------

// ActivateEdge records one traversal of the edge: activation count,
// eligibility trace, and last-activated time. The observer hook fires
// exactly once after the mutation commits.
func (g *Graph) ActivateEdge(id EdgeID) error {
	g.mu.Lock()
	slot, ok := g.index[id]
	if !ok {
		g.mu.Unlock()
		return ErrUnknownEdge
	}
	g.edges[slot].Activate()
	snap := g.edges[slot]
	g.mu.Unlock()

	g.metrics.RecordActivation(snap.Type.String())
	if g.observer != nil {
		g.observer.EdgeActivated(id, &snap)
	}
	g.logMutation(wal.KindEdgeActivated, edgePayload(id, &snap))
	return nil
}

// UpdateEdgeConfidence applies one confidence step to the edge. Frozen
// records reject the update and no hook fires. The observer hook fires
// exactly once after a successful mutation.
func (g *Graph) UpdateEdgeConfidence(id EdgeID, success bool) error {
	g.mu.Lock()
	slot, ok := g.index[id]
	if !ok {
		g.mu.Unlock()
		return ErrUnknownEdge
	}
	if err := g.edges[slot].UpdateConfidence(success); err != nil {
		g.mu.Unlock()
		return err
	}
	snap := g.edges[slot]
	g.mu.Unlock()

	outcome := "failure"
	if success {
		outcome = "success"
	}
	g.metrics.RecordConfidenceUpdate(outcome)
	if g.observer != nil {
		g.observer.EdgeConfidenceUpdated(id, &snap, success)
	}
	g.logMutation(wal.KindConfidenceUpdated, edgePayload(id, &snap))
	return nil
}

// -----------------------------------------------------------------------------
// Whole-Structure Operations
// -----------------------------------------------------------------------------

// Stats is a point-in-time summary of graph contents.
type Stats struct {
	// Nodes is the registered node id count.
	Nodes int

	// Edges is the stored connection count.
	Edges int

	// ByType counts connections per ConnectionType.
	ByType [connection.NumConnectionTypes]int

	// Dangling counts connections with at least one unregistered
	// endpoint.
	Dangling int

	// AvgConfidence is the mean confidence across all connections.
	AvgConfidence float64

	// AvgWeight is the mean weight across all connections.
	AvgWeight float64
}

// Stats computes a summary under the read lock. O(E).
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{
		Nodes: len(g.nodes),
		Edges: len(g.edges),
	}
	var confSum, weightSum float64
	for i := range g.edges {
		c := &g.edges[i]
		s.ByType[c.Type]++
		confSum += float64(c.Confidence)
		weightSum += float64(c.Weight)
		if _, ok := g.nodes[c.FromID]; !ok {
			s.Dangling++
			continue
		}
		if _, ok := g.nodes[c.ToID]; !ok {
			s.Dangling++
		}
	}
	if s.Edges > 0 {
		s.AvgConfidence = confSum / float64(s.Edges)
		s.AvgWeight = weightSum / float64(s.Edges)
	}
	return s
}

// Subgraph extracts the members of ids and every connection whose two
// endpoints are both in ids. The extract is a plain data copy: no
// observer, WAL, or metrics are attached, and capacity limits are
// inherited from the source.
func (g *Graph) Subgraph(ids []uint32) *Graph {
	member := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		member[id] = struct{}{}
	}

	sub := New(WithMaxNodes(g.opts.MaxNodes), WithMaxEdges(g.opts.MaxEdges), WithLogger(g.logger))

	g.mu.RLock()
	defer g.mu.RUnlock()

	for id := range member {
		if _, ok := g.nodes[id]; ok {
			sub.nodes[id] = struct{}{}
		}
	}
	for id := range member {
		for _, slot := range g.out[id] {
			c := g.edges[slot]
			if _, ok := member[c.ToID]; !ok {
				continue
			}
			sub.insertLocked(g.ids[slot], c)
		}
	}
	return sub
}

// Clear resets the graph to empty, keeping configuration and
// collaborators attached.
func (g *Graph) Clear() {
	g.mu.Lock()
	g.nodes = make(map[uint32]struct{})
	g.edges = nil
	g.ids = nil
	g.index = make(map[EdgeID]int32)
	g.out = make(map[uint32][]int32)
	g.in = make(map[uint32][]int32)
	for i := range g.byType {
		g.byType[i] = nil
	}
	g.mu.Unlock()

	g.metrics.SetGraphSize(0, 0)
	g.logMutation(wal.KindGraphCleared, nil)
	g.logger.Info("graph cleared")
}

// EdgeRecord pairs an identity with a copy of its record.
type EdgeRecord struct {
	ID         EdgeID
	Connection connection.Connection
}

// Snapshot is a stable copy of graph contents for read-only consumers
// (archival, persistence collaborators).
type Snapshot struct {
	// TakenAt is when the copy was made.
	TakenAt time.Time

	// Nodes holds registered ids in ascending order.
	Nodes []uint32

	// Edges holds records in insertion order.
	Edges []EdgeRecord
}

// Snapshot copies the whole structure under the read lock. O(V + E).
func (g *Graph) Snapshot() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := &Snapshot{
		TakenAt: time.Now(),
		Nodes:   make([]uint32, 0, len(g.nodes)),
		Edges:   make([]EdgeRecord, len(g.edges)),
	}
	for id := range g.nodes {
		snap.Nodes = append(snap.Nodes, id)
	}
	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i] < snap.Nodes[j] })
	for i := range g.edges {
		snap.Edges[i] = EdgeRecord{ID: g.ids[i], Connection: g.edges[i]}
	}
	return snap
}

// -----------------------------------------------------------------------------
// WAL plumbing
// -----------------------------------------------------------------------------

// logMutation forwards an entry fire-and-forget. Append errors are
// ignored: durability is eventually consistent with live state.
func (g *Graph) logMutation(kind wal.EntryKind, payload []byte) {
	if g.wal == nil {
		return
	}
	_ = g.wal.AppendGraphMutation(context.Background(), wal.NewEntry(kind, payload))
}

// nodePayload encodes a node id for the log.
func nodePayload(id uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, id)
	return buf
}

// edgePayload encodes an edge id and its record image for the log.
func edgePayload(id EdgeID, c *connection.Connection) []byte {
	buf := make([]byte, 8, 8+connection.Size)
	binary.LittleEndian.PutUint64(buf, uint64(id))
	return c.AppendBinary(buf)
}
