// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package blackbox keeps a bounded flight recorder of recent substrate
// activity. When a bench run or console session goes sideways, the
// recorder's tail is the post-mortem: what mutated, in what order,
// right before the problem.
//
// Recording must never hurt the host, so the recorder clamps its
// capacity instead of panicking, drops the oldest entries instead of
// blocking, and formats messages only once at Note time.
package blackbox

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/AleutianAI/axon/connection"
	"github.com/AleutianAI/axon/graph"
	"github.com/AleutianAI/axon/internal/ring"
)

// DefaultCapacity is the entry count used when New gets no usable one.
const DefaultCapacity = 512

// Entry is one recorded line of activity.
type Entry struct {
	// Seq is the recorder-local sequence number, 1-based.
	Seq uint64

	// At is when the entry was recorded.
	At time.Time

	// Source names the subsystem that reported the activity.
	Source string

	// Message is the formatted description.
	Message string
}

// Recorder is the bounded flight recorder. Safe for concurrent use.
type Recorder struct {
	mu  sync.Mutex
	buf *ring.Buffer[Entry]
	seq uint64
}

// New creates a recorder holding the most recent capacity entries.
// Non-positive capacities fall back to DefaultCapacity.
func New(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{buf: ring.New[Entry](capacity)}
}

// Note records one formatted entry.
func (r *Recorder) Note(source, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.buf.Push(Entry{
		Seq:     r.seq,
		At:      time.Now(),
		Source:  source,
		Message: msg,
	})
}

// Len returns how many entries are currently retained.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Len()
}

// Dropped returns how many entries were evicted to make room.
func (r *Recorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Dropped()
}

// Snapshot copies the retained entries, oldest first.
func (r *Recorder) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Snapshot()
}

// Clear discards every retained entry. Sequence numbers keep counting.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf.Clear()
}

// Dump writes the retained entries to w, oldest first, with a summary
// head line. The output is meant for humans reading a post-mortem.
func (r *Recorder) Dump(w io.Writer) error {
	entries := r.Snapshot()
	dropped := r.Dropped()

	if _, err := fmt.Fprintf(w, "blackbox: %d entries retained, %d dropped\n", len(entries), dropped); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "#%d %s [%s] %s\n",
			e.Seq, e.At.Format("15:04:05.000"), e.Source, e.Message); err != nil {
			return err
		}
	}
	return nil
}

// Observer adapts the recorder to the graph's mutation hooks.
func (r *Recorder) Observer() graph.Observer {
	return graphObserver{rec: r}
}

type graphObserver struct {
	rec *Recorder
}

func (o graphObserver) EdgeActivated(id graph.EdgeID, c *connection.Connection) {
	o.rec.Note("graph", "edge %s activated (%d -> %d, count %d)",
		id, c.FromID, c.ToID, c.ActivationCount)
}

func (o graphObserver) EdgeConfidenceUpdated(id graph.EdgeID, c *connection.Connection, success bool) {
	o.rec.Note("graph", "edge %s confidence %.3f (success %t)",
		id, c.Confidence, success)
}

var _ graph.Observer = graphObserver{}
