// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package grid maintains a uniform cell index over one token coordinate
// space so that radius queries scan a handful of buckets instead of
// every token.
package grid

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/AleutianAI/axon/token"
)

var (
	// ErrInvalidCellSize rejects non-positive or non-finite cell sizes.
	ErrInvalidCellSize = errors.New("grid: cell size must be positive and finite")

	// ErrInvalidSpace rejects coordinate spaces outside the defined set.
	ErrInvalidSpace = errors.New("grid: undefined coordinate space")

	// ErrNilToken rejects nil token arguments.
	ErrNilToken = errors.New("grid: nil token")

	// ErrUnknownToken reports an id the index has never seen.
	ErrUnknownToken = errors.New("grid: unknown token")
)

// DefaultCellSize is the bucket edge length, in space units, used when
// a config leaves CellSize zero.
const DefaultCellSize float32 = 1.0

// Cell is the integer coordinate of one spatial bucket. Tokens whose
// positions floor-divide to the same triple share a bucket.
type Cell struct {
	X, Y, Z int32
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// Config parameterizes a grid.
type Config struct {
	// CellSize is the bucket edge length in space units. Zero means
	// DefaultCellSize; negative, NaN, and Inf are rejected.
	CellSize float32

	// Space is the single coordinate space this grid indexes.
	Space token.CoordinateSpace
}

// DefaultConfig indexes physical space at unit cells.
func DefaultConfig() Config {
	return Config{CellSize: DefaultCellSize, Space: token.L1Physical}
}

// entry remembers where a token was indexed so moves and removals do
// not depend on the token's current (possibly changed) coordinates.
type entry struct {
	cell    Cell
	x, y, z float32
}

// Grid is a uniform spatial hash over one coordinate space.
//
// # Description
//
// Grid buckets tokens by the integer cell their position falls into.
// Radius queries scan only the buckets overlapping the query sphere's
// bounding box and then filter candidates by exact Euclidean distance,
// so results carry no false positives from the coarse cell scan.
//
// The grid stores positions captured at Insert/Update time; it does not
// observe later mutations of the token record. Callers move a token by
// updating its coordinates and calling Update.
//
// # Thread Safety
//
// This type is safe for concurrent use.
type Grid struct {
	cfg    Config
	cells  map[Cell][]uint32 // bucket → token ids, insertion order
	tokens map[uint32]entry
	mu     sync.RWMutex
}

// New creates a grid for the configured space.
//
// # Outputs
//
//   - *Grid: The empty index.
//   - error: ErrInvalidCellSize or ErrInvalidSpace for bad configs.
func New(cfg Config) (*Grid, error) {
	if cfg.CellSize == 0 {
		cfg.CellSize = DefaultCellSize
	}
	if cfg.CellSize < 0 || math.IsNaN(float64(cfg.CellSize)) || math.IsInf(float64(cfg.CellSize), 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCellSize, cfg.CellSize)
	}
	if !cfg.Space.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSpace, uint8(cfg.Space))
	}

	return &Grid{
		cfg:    cfg,
		cells:  make(map[Cell][]uint32),
		tokens: make(map[uint32]entry),
	}, nil
}

// Config returns the grid parameters.
func (g *Grid) Config() Config {
	return g.cfg
}

// CellOf returns the bucket a position falls into. Indices saturate at
// the int32 range for positions far beyond any representable token.
func (g *Grid) CellOf(x, y, z float32) Cell {
	cs := float64(g.cfg.CellSize)
	return Cell{
		X: cellIndex(float64(x) / cs),
		Y: cellIndex(float64(y) / cs),
		Z: cellIndex(float64(z) / cs),
	}
}

func cellIndex(v float64) int32 {
	f := math.Floor(v)
	if f <= math.MinInt32 {
		return math.MinInt32
	}
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(f)
}

// Insert indexes a token at its current position in the grid's space.
// Re-inserting a known id relocates it.
func (g *Grid) Insert(t *token.Token) error {
	if t == nil {
		return ErrNilToken
	}
	x, y, z := t.Coordinates(g.cfg.Space)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.placeLocked(t.ID, x, y, z)
	return nil
}

// Update relocates a known token to its current position. Unlike
// Insert it fails for ids the grid has never seen.
func (g *Grid) Update(t *token.Token) error {
	if t == nil {
		return ErrNilToken
	}
	x, y, z := t.Coordinates(g.cfg.Space)

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tokens[t.ID]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownToken, t.ID)
	}
	g.placeLocked(t.ID, x, y, z)
	return nil
}

// placeLocked binds id to its bucket, unbinding any previous placement.
// Caller must hold the write lock.
func (g *Grid) placeLocked(id uint32, x, y, z float32) {
	if old, ok := g.tokens[id]; ok {
		g.removeFromCellLocked(old.cell, id)
	}
	cell := g.CellOf(x, y, z)
	g.tokens[id] = entry{cell: cell, x: x, y: y, z: z}
	g.cells[cell] = append(g.cells[cell], id)
}

// Remove drops a token from the index. The return reports whether the
// id was present.
func (g *Grid) Remove(id uint32) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.tokens[id]
	if !ok {
		return false
	}
	g.removeFromCellLocked(e.cell, id)
	delete(g.tokens, id)
	return true
}

// removeFromCellLocked filters id out of a bucket, deleting the bucket
// when it empties. Caller must hold the write lock.
func (g *Grid) removeFromCellLocked(c Cell, id uint32) {
	bucket := g.cells[c]
	filtered := bucket[:0]
	for _, got := range bucket {
		if got != id {
			filtered = append(filtered, got)
		}
	}
	if len(filtered) > 0 {
		g.cells[c] = filtered
	} else {
		delete(g.cells, c)
	}
}

// Contains reports whether an id is indexed.
func (g *Grid) Contains(id uint32) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.tokens[id]
	return ok
}

// Position returns the coordinates an id was indexed at.
func (g *Grid) Position(id uint32) (x, y, z float32, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.tokens[id]
	return e.x, e.y, e.z, ok
}

// Len returns the number of indexed tokens.
func (g *Grid) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tokens)
}

// QueryCell returns the ids bucketed in one cell, ascending.
func (g *Grid) QueryCell(c Cell) []uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	bucket := g.cells[c]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]uint32, len(bucket))
	copy(out, bucket)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// QueryRadius returns the ids within radius of a center point,
// ascending.
//
// # Description
//
// Candidates come from the buckets overlapping the sphere's bounding
// box; each is then distance-checked so the result is exact, boundary
// inclusive. When the bounding box covers more buckets than exist, the
// scan walks the occupied buckets instead.
func (g *Grid) QueryRadius(x, y, z, radius float32) []uint32 {
	if radius < 0 || math.IsNaN(float64(radius)) {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	lo := g.CellOf(x-radius, y-radius, z-radius)
	hi := g.CellOf(x+radius, y+radius, z+radius)

	var out []uint32
	collect := func(bucket []uint32) {
		for _, id := range bucket {
			e := g.tokens[id]
			dx := float64(e.x) - float64(x)
			dy := float64(e.y) - float64(y)
			dz := float64(e.z) - float64(z)
			if dx*dx+dy*dy+dz*dz <= float64(radius)*float64(radius) {
				out = append(out, id)
			}
		}
	}

	// Per-axis spans can each reach 2^32, so the product is compared
	// in float64 rather than risked in int64.
	span := (float64(hi.X) - float64(lo.X) + 1) *
		(float64(hi.Y) - float64(lo.Y) + 1) *
		(float64(hi.Z) - float64(lo.Z) + 1)
	if span > float64(len(g.cells)) {
		for c, bucket := range g.cells {
			if c.X < lo.X || c.X > hi.X || c.Y < lo.Y || c.Y > hi.Y || c.Z < lo.Z || c.Z > hi.Z {
				continue
			}
			collect(bucket)
		}
	} else {
		for cx := lo.X; cx <= hi.X; cx++ {
			for cy := lo.Y; cy <= hi.Y; cy++ {
				for cz := lo.Z; cz <= hi.Z; cz++ {
					collect(g.cells[Cell{X: cx, Y: cy, Z: cz}])
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clear empties the index, keeping the configuration.
func (g *Grid) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cells = make(map[Cell][]uint32)
	g.tokens = make(map[uint32]entry)
}

// Stats returns occupancy statistics.
func (g *Grid) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	maxPerCell := 0
	for _, bucket := range g.cells {
		if len(bucket) > maxPerCell {
			maxPerCell = len(bucket)
		}
	}
	return Stats{
		Tokens:        len(g.tokens),
		OccupiedCells: len(g.cells),
		MaxPerCell:    maxPerCell,
		CellSize:      g.cfg.CellSize,
		Space:         g.cfg.Space,
	}
}

// Stats describes grid occupancy at one instant.
type Stats struct {
	// Tokens is the number of indexed ids.
	Tokens int

	// OccupiedCells is the number of non-empty buckets.
	OccupiedCells int

	// MaxPerCell is the population of the fullest bucket.
	MaxPerCell int

	// CellSize echoes the configured bucket edge length.
	CellSize float32

	// Space echoes the indexed coordinate space.
	Space token.CoordinateSpace
}
