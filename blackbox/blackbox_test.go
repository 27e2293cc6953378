// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package blackbox

import (
	"strings"
	"sync"
	"testing"

	"github.com/AleutianAI/axon/connection"
	"github.com/AleutianAI/axon/graph"
)

// =============================================================================
// Recording
// =============================================================================

func TestRecorder_NoteAndSnapshot(t *testing.T) {
	r := New(8)

	r.Note("bench", "phase %s started", "graph")
	r.Note("console", "cleared %d edges", 42)

	got := r.Snapshot()
	if len(got) != 2 {
		t.Fatalf("Snapshot() len = %d, want 2", len(got))
	}
	if got[0].Seq != 1 || got[1].Seq != 2 {
		t.Errorf("sequence = %d, %d, want 1, 2", got[0].Seq, got[1].Seq)
	}
	if got[0].Source != "bench" || got[0].Message != "phase graph started" {
		t.Errorf("entry 0 = %q %q", got[0].Source, got[0].Message)
	}
	if got[1].Message != "cleared 42 edges" {
		t.Errorf("entry 1 message = %q", got[1].Message)
	}
	if got[0].At.IsZero() {
		t.Error("entry time not stamped")
	}
}

func TestRecorder_BoundedEviction(t *testing.T) {
	r := New(3)
	for i := 0; i < 5; i++ {
		r.Note("test", "entry %d", i)
	}

	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	if r.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", r.Dropped())
	}

	got := r.Snapshot()
	if got[0].Seq != 3 || got[2].Seq != 5 {
		t.Errorf("retained sequences %d..%d, want 3..5", got[0].Seq, got[2].Seq)
	}
}

func TestRecorder_ClampsCapacity(t *testing.T) {
	r := New(0)
	for i := 0; i < DefaultCapacity+1; i++ {
		r.Note("test", "entry %d", i)
	}
	if r.Len() != DefaultCapacity {
		t.Errorf("Len() = %d, want %d", r.Len(), DefaultCapacity)
	}
	if r.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", r.Dropped())
	}
}

func TestRecorder_ClearKeepsSequence(t *testing.T) {
	r := New(8)
	r.Note("test", "one")
	r.Note("test", "two")
	r.Clear()

	if r.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", r.Len())
	}

	r.Note("test", "three")
	got := r.Snapshot()
	if len(got) != 1 || got[0].Seq != 3 {
		t.Errorf("post-clear entry seq = %d, want 3", got[0].Seq)
	}
}

func TestRecorder_ConcurrentNotes(t *testing.T) {
	r := New(64)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Note("worker", "w%d i%d", w, i)
			}
		}(w)
	}
	wg.Wait()

	if r.Len() != 64 {
		t.Errorf("Len() = %d, want 64", r.Len())
	}
	if r.Dropped() != 400-64 {
		t.Errorf("Dropped() = %d, want %d", r.Dropped(), 400-64)
	}

	got := r.Snapshot()
	var maxSeq uint64
	for _, e := range got {
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
	}
	if maxSeq != 400 {
		t.Errorf("max seq = %d, want 400", maxSeq)
	}
}

// =============================================================================
// Dump
// =============================================================================

func TestRecorder_Dump(t *testing.T) {
	r := New(2)
	r.Note("bench", "phase started")
	r.Note("graph", "edge inserted")
	r.Note("graph", "edge activated")

	var sb strings.Builder
	if err := r.Dump(&sb); err != nil {
		t.Fatalf("Dump() error = %v", err)
	}

	out := sb.String()
	if !strings.HasPrefix(out, "blackbox: 2 entries retained, 1 dropped\n") {
		t.Errorf("summary line missing: %q", out)
	}
	if !strings.Contains(out, "[graph] edge inserted") {
		t.Errorf("entry line missing: %q", out)
	}
	if strings.Contains(out, "phase started") {
		t.Errorf("evicted entry leaked into dump: %q", out)
	}
}

// =============================================================================
// Graph observer
// =============================================================================

func TestRecorder_ObservesGraphMutations(t *testing.T) {
	r := New(16)
	g := graph.New(graph.WithObserver(r.Observer()))

	if err := g.AddNode(1); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := g.AddNode(2); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	id, err := g.AddEdge(1, 2, connection.Causes, 0.5, false)
	if err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := g.ActivateEdge(id); err != nil {
		t.Fatalf("ActivateEdge: %v", err)
	}
	if err := g.UpdateEdgeConfidence(id, true); err != nil {
		t.Fatalf("UpdateEdgeConfidence: %v", err)
	}

	got := r.Snapshot()
	if len(got) != 2 {
		t.Fatalf("Snapshot() len = %d, want 2", len(got))
	}
	if got[0].Source != "graph" || !strings.Contains(got[0].Message, "activated") {
		t.Errorf("entry 0 = %q %q", got[0].Source, got[0].Message)
	}
	if !strings.Contains(got[0].Message, id.String()) {
		t.Errorf("activation entry missing edge id: %q", got[0].Message)
	}
	if !strings.Contains(got[1].Message, "confidence") || !strings.Contains(got[1].Message, "success true") {
		t.Errorf("entry 1 = %q", got[1].Message)
	}
}
