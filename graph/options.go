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
	"log/slog"

	"github.com/AleutianAI/axon/connection"
	"github.com/AleutianAI/axon/diagnostics"
	"github.com/AleutianAI/axon/wal"
)

// Default capacity limits.
const (
	// DefaultMaxNodes is the default maximum node count.
	DefaultMaxNodes = 1_000_000

	// DefaultMaxEdges is the default maximum edge count.
	DefaultMaxEdges = 10_000_000
)

// Observer receives learning mutations as they commit. It is the
// boundary the hybrid-learning collaborator attaches to.
//
// Hooks fire exactly once per successful mutation, after the record is
// stored. The *Connection argument points at a snapshot; mutating it
// has no effect on the graph. Implementations must not call back into
// the mutating surface of the same graph from inside a hook.
type Observer interface {
	// EdgeActivated fires after ActivateEdge commits.
	EdgeActivated(id EdgeID, c *connection.Connection)

	// EdgeConfidenceUpdated fires after UpdateEdgeConfidence commits.
	EdgeConfidenceUpdated(id EdgeID, c *connection.Connection, success bool)
}

// Options configures Graph behavior and limits.
type Options struct {
	// MaxNodes is the maximum number of node ids the graph can hold.
	// Default: 1,000,000
	MaxNodes int

	// MaxEdges is the maximum number of connections the graph can hold.
	// Default: 10,000,000
	MaxEdges int

	// Logger for structural events. Default: slog.Default().
	Logger *slog.Logger

	// Metrics recorder. Default: NoOpMetrics.
	Metrics diagnostics.Metrics

	// Observer receives mutation hooks. Optional.
	Observer Observer

	// WAL receives mutation entries fire-and-forget. Optional.
	WAL wal.Writer
}

// DefaultOptions returns sensible defaults for graph configuration.
func DefaultOptions() Options {
	return Options{
		MaxNodes: DefaultMaxNodes,
		MaxEdges: DefaultMaxEdges,
	}
}

// Option is a functional option for configuring Graph.
type Option func(*Options)

// WithMaxNodes sets the maximum number of node ids the graph can hold.
func WithMaxNodes(n int) Option {
	return func(o *Options) {
		o.MaxNodes = n
	}
}

// WithMaxEdges sets the maximum number of connections the graph can hold.
func WithMaxEdges(n int) Option {
	return func(o *Options) {
		o.MaxEdges = n
	}
}

// WithLogger sets the structural event logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m diagnostics.Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithObserver attaches a mutation observer.
func WithObserver(obs Observer) Option {
	return func(o *Options) {
		o.Observer = obs
	}
}

// WithWAL attaches a write-ahead-log writer.
func WithWAL(w wal.Writer) Option {
	return func(o *Options) {
		o.WAL = w
	}
}
