// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grid

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/AleutianAI/axon/token"
)

// placedToken builds a token positioned in physical space. Coordinates
// must sit on the 0.01 quantization grid to survive the round trip.
func placedToken(id uint32, x, y, z float32) *token.Token {
	tok := token.New(id)
	tok.SetCoordinates(token.L1Physical, x, y, z)
	return &tok
}

func mustGrid(t *testing.T, cfg Config) *Grid {
	t.Helper()
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v) failed: %v", cfg, err)
	}
	return g
}

// =============================================================================
// Construction
// =============================================================================

func TestGrid_NewValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want error
	}{
		{"negative cell size", Config{CellSize: -1, Space: token.L1Physical}, ErrInvalidCellSize},
		{"nan cell size", Config{CellSize: float32(math.NaN()), Space: token.L1Physical}, ErrInvalidCellSize},
		{"inf cell size", Config{CellSize: float32(math.Inf(1)), Space: token.L1Physical}, ErrInvalidCellSize},
		{"undefined space", Config{CellSize: 1, Space: token.CoordinateSpace(99)}, ErrInvalidSpace},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); !errors.Is(err, tc.want) {
				t.Fatalf("New error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestGrid_NewDefaultsCellSize(t *testing.T) {
	g := mustGrid(t, Config{Space: token.L5Cognitive})
	if got := g.Config().CellSize; got != DefaultCellSize {
		t.Fatalf("CellSize = %v, want %v", got, DefaultCellSize)
	}
	if got := g.Config().Space; got != token.L5Cognitive {
		t.Fatalf("Space = %v, want %v", got, token.L5Cognitive)
	}
}

func TestGrid_CellOfFloorsNegatives(t *testing.T) {
	g := mustGrid(t, DefaultConfig())
	if got := g.CellOf(-0.1, -1.0, -1.5); got != (Cell{X: -1, Y: -1, Z: -2}) {
		t.Fatalf("CellOf(-0.1,-1.0,-1.5) = %v, want (-1,-1,-2)", got)
	}
	if got := g.CellOf(0.99, 1.0, 2.5); got != (Cell{X: 0, Y: 1, Z: 2}) {
		t.Fatalf("CellOf(0.99,1.0,2.5) = %v, want (0,1,2)", got)
	}
}

// =============================================================================
// Indexing
// =============================================================================

func TestGrid_InsertAndLookup(t *testing.T) {
	g := mustGrid(t, DefaultConfig())

	if err := g.Insert(placedToken(7, 1.5, 2.25, -0.75)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if !g.Contains(7) {
		t.Fatal("Contains(7) = false after insert")
	}
	if g.Len() != 1 {
		t.Fatalf("Len = %d, want 1", g.Len())
	}
	x, y, z, ok := g.Position(7)
	if !ok || x != 1.5 || y != 2.25 || z != -0.75 {
		t.Fatalf("Position(7) = (%v,%v,%v,%v), want (1.5,2.25,-0.75,true)", x, y, z, ok)
	}
}

func TestGrid_NilTokenRejected(t *testing.T) {
	g := mustGrid(t, DefaultConfig())
	if err := g.Insert(nil); !errors.Is(err, ErrNilToken) {
		t.Fatalf("Insert(nil) error = %v, want ErrNilToken", err)
	}
	if err := g.Update(nil); !errors.Is(err, ErrNilToken) {
		t.Fatalf("Update(nil) error = %v, want ErrNilToken", err)
	}
}

func TestGrid_InsertRelocatesExistingID(t *testing.T) {
	g := mustGrid(t, DefaultConfig())
	tok := placedToken(1, 0.5, 0.5, 0.5)

	if err := g.Insert(tok); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	tok.SetCoordinates(token.L1Physical, 5.5, 5.5, 5.5)
	if err := g.Insert(tok); err != nil {
		t.Fatalf("re-Insert failed: %v", err)
	}

	if g.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after relocating insert", g.Len())
	}
	if ids := g.QueryCell(Cell{X: 0, Y: 0, Z: 0}); len(ids) != 0 {
		t.Fatalf("old cell still holds %v", ids)
	}
	if ids := g.QueryCell(Cell{X: 5, Y: 5, Z: 5}); len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("new cell holds %v, want [1]", ids)
	}
}

func TestGrid_UpdateRequiresKnownID(t *testing.T) {
	g := mustGrid(t, DefaultConfig())
	tok := placedToken(9, 1, 1, 1)

	if err := g.Update(tok); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("Update of unseen id error = %v, want ErrUnknownToken", err)
	}

	if err := g.Insert(tok); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	tok.SetCoordinates(token.L1Physical, -3, -3, -3)
	if err := g.Update(tok); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	x, y, z, _ := g.Position(9)
	if x != -3 || y != -3 || z != -3 {
		t.Fatalf("Position after update = (%v,%v,%v), want (-3,-3,-3)", x, y, z)
	}
}

func TestGrid_Remove(t *testing.T) {
	g := mustGrid(t, DefaultConfig())
	if err := g.Insert(placedToken(4, 0, 0, 0)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if !g.Remove(4) {
		t.Fatal("Remove(4) = false for indexed id")
	}
	if g.Contains(4) || g.Len() != 0 {
		t.Fatal("token still visible after removal")
	}
	if g.Remove(4) {
		t.Fatal("Remove(4) = true for already-removed id")
	}
}

// =============================================================================
// Queries
// =============================================================================

func TestGrid_QueryCell(t *testing.T) {
	g := mustGrid(t, DefaultConfig())
	for _, tok := range []*token.Token{
		placedToken(2, 0.7, 0.7, 0.7),
		placedToken(1, 0.2, 0.2, 0.2),
		placedToken(3, 1.2, 0.2, 0.2),
	} {
		if err := g.Insert(tok); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got := g.QueryCell(Cell{X: 0, Y: 0, Z: 0})
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("QueryCell origin = %v, want [1 2]", got)
	}
	if got := g.QueryCell(Cell{X: 9, Y: 9, Z: 9}); got != nil {
		t.Fatalf("QueryCell empty bucket = %v, want nil", got)
	}
}

func TestGrid_QueryRadiusExactFilter(t *testing.T) {
	g := mustGrid(t, DefaultConfig())
	for _, tok := range []*token.Token{
		placedToken(1, 0, 0, 0),
		placedToken(2, 0.9, 0, 0),
		placedToken(3, 2.0, 0, 0),
		placedToken(4, 1.0, 0, 0),
		placedToken(5, -0.5, 0, 0),
	} {
		if err := g.Insert(tok); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	// Radius 1 around the origin: 0.9 and -0.5 are inside, 1.0 sits
	// exactly on the boundary, 2.0 shares no qualifying cell distance.
	got := g.QueryRadius(0, 0, 0, 1.0)
	want := []uint32{1, 2, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("QueryRadius = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("QueryRadius = %v, want %v", got, want)
		}
	}
}

func TestGrid_QueryRadiusZero(t *testing.T) {
	g := mustGrid(t, DefaultConfig())
	if err := g.Insert(placedToken(2, 0.9, 0, 0)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := g.Insert(placedToken(3, 0.91, 0, 0)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got := g.QueryRadius(0.9, 0, 0, 0)
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("QueryRadius zero = %v, want [2]", got)
	}
}

func TestGrid_QueryRadiusRejectsBadRadius(t *testing.T) {
	g := mustGrid(t, DefaultConfig())
	if err := g.Insert(placedToken(1, 0, 0, 0)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if got := g.QueryRadius(0, 0, 0, -1); got != nil {
		t.Fatalf("negative radius returned %v", got)
	}
	if got := g.QueryRadius(0, 0, 0, float32(math.NaN())); got != nil {
		t.Fatalf("NaN radius returned %v", got)
	}
}

func TestGrid_QueryRadiusHugeRadiusScansOccupied(t *testing.T) {
	g := mustGrid(t, Config{CellSize: 0.25, Space: token.L1Physical})
	for id := uint32(1); id <= 5; id++ {
		if err := g.Insert(placedToken(id, float32(id)*3, 0, 0)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	// The bounding box covers billions of cells; only the occupied
	// buckets may be walked.
	got := g.QueryRadius(0, 0, 0, 1e6)
	if len(got) != 5 {
		t.Fatalf("QueryRadius huge = %v, want all 5 ids", got)
	}
	for i, id := range got {
		if id != uint32(i+1) {
			t.Fatalf("QueryRadius huge = %v, want ascending ids", got)
		}
	}
}

func TestGrid_QueryRadiusEmptyGrid(t *testing.T) {
	g := mustGrid(t, DefaultConfig())
	if got := g.QueryRadius(0, 0, 0, 10); len(got) != 0 {
		t.Fatalf("QueryRadius on empty grid = %v", got)
	}
}

// =============================================================================
// Maintenance
// =============================================================================

func TestGrid_Stats(t *testing.T) {
	g := mustGrid(t, DefaultConfig())
	for _, tok := range []*token.Token{
		placedToken(1, 0.1, 0.1, 0.1),
		placedToken(2, 0.9, 0.9, 0.9),
		placedToken(3, 4, 4, 4),
	} {
		if err := g.Insert(tok); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	s := g.Stats()
	if s.Tokens != 3 || s.OccupiedCells != 2 || s.MaxPerCell != 2 {
		t.Fatalf("Stats = %+v, want 3 tokens in 2 cells, max 2", s)
	}
	if s.CellSize != DefaultCellSize || s.Space != token.L1Physical {
		t.Fatalf("Stats config echo = %+v", s)
	}
}

func TestGrid_Clear(t *testing.T) {
	g := mustGrid(t, DefaultConfig())
	if err := g.Insert(placedToken(1, 1, 1, 1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	g.Clear()

	if g.Len() != 0 || g.Contains(1) {
		t.Fatal("grid not empty after Clear")
	}
	if err := g.Insert(placedToken(2, 2, 2, 2)); err != nil {
		t.Fatalf("Insert after Clear failed: %v", err)
	}
	if g.Len() != 1 {
		t.Fatalf("Len after reuse = %d, want 1", g.Len())
	}
}

func TestGrid_ConcurrentReadersAndWriters(t *testing.T) {
	g := mustGrid(t, DefaultConfig())

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				id := uint32(w*1000 + i)
				pos := float32(id%100) * 0.25
				if err := g.Insert(placedToken(id, pos, pos, pos)); err != nil {
					t.Errorf("Insert(%d) failed: %v", id, err)
					return
				}
			}
		}(w)
	}
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				g.QueryRadius(10, 10, 10, 5)
				g.Stats()
				g.Contains(uint32(i))
			}
		}()
	}
	wg.Wait()

	if g.Len() != 1000 {
		t.Fatalf("Len = %d, want 1000", g.Len())
	}
}
