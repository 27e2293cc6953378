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
	"sort"
	"time"

	"github.com/AleutianAI/axon/connection"
)

// Direction selects which adjacency a propagation walks.
type Direction uint8

const (
	// DirectionOutgoing follows edges from → to.
	DirectionOutgoing Direction = iota

	// DirectionIncoming follows edges to → from.
	DirectionIncoming

	// DirectionBoth follows both adjacencies.
	DirectionBoth
)

// AccumulationMode controls how signal arriving over multiple paths
// combines at a node.
type AccumulationMode uint8

const (
	// AccumulateSum adds contributions, clamped to 1.
	AccumulateSum AccumulationMode = iota

	// AccumulateMax keeps the strongest single contribution.
	AccumulateMax

	// AccumulateDecay behaves like AccumulateMax with an extra
	// per-hop attenuation factor.
	AccumulateDecay
)

// Propagation defaults, applied when SignalConfig fields are zero.
const (
	DefaultSignalMaxHops  = 4
	DefaultSignalMaxNodes = 4096
	DefaultSignalStrength = 1.0
	DefaultSignalDecay    = 0.5
)

// SignalConfig parameterizes one propagation.
type SignalConfig struct {
	// InitialStrength is the signal at the source node. Zero means
	// DefaultSignalStrength. Clamped to [0, 1].
	InitialStrength float32

	// MaxHops bounds traversal depth. The source sits at hop 0; nodes
	// discovered at hop MaxHops are recorded but not expanded. Zero
	// means DefaultSignalMaxHops.
	MaxHops int

	// MaxNodes bounds the number of distinct activated nodes,
	// including the source. Zero means DefaultSignalMaxNodes.
	MaxNodes int

	// MinStrength prunes contributions below the threshold before
	// they accumulate.
	MinStrength float32

	// Types restricts traversal to the listed connection types.
	// Empty means all types.
	Types []connection.ConnectionType

	// Direction selects the adjacency to walk.
	Direction Direction

	// Mode selects how multi-path signal combines.
	Mode AccumulationMode

	// Decay is the per-hop attenuation for AccumulateDecay. Zero
	// means DefaultSignalDecay. Clamped to [0, 1]: signal never amplifies.
	Decay float32
}

// DefaultSignalConfig returns a sum-mode outgoing walk with the
// package defaults filled in.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		InitialStrength: DefaultSignalStrength,
		MaxHops:         DefaultSignalMaxHops,
		MaxNodes:        DefaultSignalMaxNodes,
		Mode:            AccumulateSum,
		Direction:       DirectionOutgoing,
		Decay:           DefaultSignalDecay,
	}
}

// normalize fills zero fields and clamps ranges.
func (c SignalConfig) normalize() SignalConfig {
	if c.InitialStrength == 0 {
		c.InitialStrength = DefaultSignalStrength
	}
	c.InitialStrength = clamp01(c.InitialStrength)
	if c.MaxHops <= 0 {
		c.MaxHops = DefaultSignalMaxHops
	}
	if c.MaxNodes <= 0 {
		c.MaxNodes = DefaultSignalMaxNodes
	}
	if c.MinStrength < 0 {
		c.MinStrength = 0
	}
	if c.Decay == 0 {
		c.Decay = DefaultSignalDecay
	}
	c.Decay = clamp01(c.Decay)
	return c
}

// ActivatedNode is one node reached by a propagation.
type ActivatedNode struct {
	ID       uint32
	Strength float32
	Hops     int
}

// ActivationResult describes everything a propagation reached.
type ActivationResult struct {
	// Source is the node the signal started from.
	Source uint32

	// Activated lists reached nodes sorted by descending strength,
	// ascending id on ties. The source is included at hop 0.
	Activated []ActivatedNode

	// NodesVisited is len(Activated).
	NodesVisited int

	// EdgesTraversed counts edges that passed the type filter during
	// expansion, whether or not their contribution survived pruning.
	EdgesTraversed int

	// Truncated reports that MaxHops or MaxNodes halted expansion
	// while candidates remained.
	Truncated bool
}

// Propagate spreads a signal outward from source across the graph.
//
// Traversal is breadth-first under the read lock: each node is expanded
// at most once, at the hop where it is first discovered, using the
// strength accumulated up to that point. Later arrivals at an
// already-discovered node still combine per the accumulation mode but
// do not re-expand it, which keeps cycles and self-loops terminating.
//
// The per-edge transfer factor is clamp01(weight); with AccumulateDecay
// each hop additionally multiplies by cfg.Decay. Strength never exceeds
// the source strength along any single path.
//
// Returns ErrUnknownNode when source is not a registered node.
func (g *Graph) Propagate(source uint32, cfg SignalConfig) (*ActivationResult, error) {
	cfg = cfg.normalize()
	start := time.Now()

	var typeMask uint16
	for _, t := range cfg.Types {
		if !t.Valid() {
			continue
		}
		typeMask |= 1 << uint8(t)
	}
	if typeMask == 0 {
		typeMask = ^uint16(0)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[source]; !ok {
		return nil, ErrUnknownNode
	}

	res := &ActivationResult{Source: source}
	strength := map[uint32]float32{source: cfg.InitialStrength}
	hops := map[uint32]int{source: 0}
	frontier := []uint32{source}

	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= cfg.MaxHops {
			res.Truncated = true
			break
		}
		var next []uint32
		for _, node := range frontier {
			parent := strength[node]

			walk := func(slots []int32, incoming bool) {
				for _, slot := range slots {
					c := &g.edges[slot]
					if typeMask&(1<<uint8(c.Type)) == 0 {
						continue
					}
					// Self-loops sit in both adjacency lists; walk
					// them once per expansion.
					if incoming && cfg.Direction == DirectionBoth && c.FromID == c.ToID {
						continue
					}
					res.EdgesTraversed++

					neighbor := c.ToID
					if incoming {
						neighbor = c.FromID
					}
					contrib := parent * clamp01(c.Weight)
					if cfg.Mode == AccumulateDecay {
						contrib *= cfg.Decay
					}
					if contrib < cfg.MinStrength || contrib == 0 {
						continue
					}

					if prev, seen := strength[neighbor]; seen {
						switch cfg.Mode {
						case AccumulateSum:
							strength[neighbor] = clamp01(prev + contrib)
						default:
							if contrib > prev {
								strength[neighbor] = contrib
							}
						}
						continue
					}
					if len(strength) >= cfg.MaxNodes {
						res.Truncated = true
						continue
					}
					strength[neighbor] = contrib
					hops[neighbor] = depth + 1
					next = append(next, neighbor)
				}
			}

			switch cfg.Direction {
			case DirectionOutgoing:
				walk(g.out[node], false)
			case DirectionIncoming:
				walk(g.in[node], true)
			case DirectionBoth:
				walk(g.out[node], false)
				walk(g.in[node], true)
			}
		}
		frontier = next
	}

	res.Activated = make([]ActivatedNode, 0, len(strength))
	for id, s := range strength {
		res.Activated = append(res.Activated, ActivatedNode{ID: id, Strength: s, Hops: hops[id]})
	}
	sort.Slice(res.Activated, func(i, j int) bool {
		a, b := res.Activated[i], res.Activated[j]
		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		return a.ID < b.ID
	})
	res.NodesVisited = len(res.Activated)

	g.metrics.RecordPropagation(time.Since(start).Seconds(), res.NodesVisited)
	return res, nil
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
