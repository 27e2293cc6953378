// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package diagnostics provides Prometheus metrics and OpenTelemetry wiring
for the Axon substrate.

The core packages (graph, stream, intuition, wal) accept a Metrics
recorder through their options and remain import-free of any exporter;
this package supplies the implementations.

# Open Core Architecture

This follows the Open Core model:

  - FOSS (NoOpMetrics): Records counters in memory, no export
  - Enterprise (PrometheusMetrics): Full Prometheus export with labels

The interface is public; the implementation dictates the value.

# Metrics Exported

Graph metrics (graph subsystem):

  - axon_graph_nodes: Gauge of registered node ids
  - axon_graph_edges: Gauge of stored connections
  - axon_graph_edge_conflicts_total: Counter of rejected duplicate edges
  - axon_graph_activations_total: Counter by connection type
  - axon_graph_confidence_updates_total: Counter by outcome
  - axon_graph_propagation_seconds: Histogram of propagation latency
  - axon_graph_propagation_nodes: Histogram of nodes reached per call

Stream metrics (stream subsystem):

  - axon_stream_events_written_total: Counter by event type
  - axon_stream_events_overwritten_total: Counter of lapped slots
  - axon_stream_samples_total: Counter by strategy
  - axon_stream_torn_reads_total: Counter of discarded torn slot copies

Intuition metrics (intuition subsystem):

  - axon_intuition_cycles_total: Counter of completed cycles
  - axon_intuition_cycle_seconds: Histogram of cycle latency
  - axon_intuition_patterns_total: Counter of recognized patterns
  - axon_intuition_errors_total: Counter by error type

WAL metrics (wal subsystem):

  - axon_wal_appends_total: Counter by entry kind
  - axon_wal_dropped_total: Counter of entries shed under pressure
  - axon_wal_flush_batch: Histogram of flush batch sizes
*/
package diagnostics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

// Metric namespace and subsystems.
const (
	metricsNamespace = "axon"

	metricsSubsystemGraph     = "graph"
	metricsSubsystemStream    = "stream"
	metricsSubsystemIntuition = "intuition"
	metricsSubsystemWAL       = "wal"
)

// -----------------------------------------------------------------------------
// Metrics Interface
// -----------------------------------------------------------------------------

// Metrics is the recorder the substrate packages report into.
//
// # Description
//
// Every method must be cheap and non-blocking; recorders are called on
// graph hot paths. Implementations must be safe for concurrent use.
//
// # Assumptions
//
//   - Label values are low-cardinality (connection type names, event
//     type names, strategy names, coarse error classes)
type Metrics interface {
	// SetGraphSize updates the node and edge gauges.
	SetGraphSize(nodes, edges int)

	// RecordEdgeConflict counts a rejected duplicate edge.
	RecordEdgeConflict()

	// RecordActivation counts an edge activation by connection type.
	RecordActivation(connType string)

	// RecordConfidenceUpdate counts a confidence update. Outcome is
	// "success" or "failure".
	RecordConfidenceUpdate(outcome string)

	// RecordPropagation records one propagation call.
	RecordPropagation(seconds float64, nodesReached int)

	// RecordEventWritten counts an experience write by event type.
	RecordEventWritten(eventType string)

	// RecordEventOverwritten counts a slot lapped before it was read.
	RecordEventOverwritten()

	// RecordSample counts a sampling call by strategy.
	RecordSample(strategy string, batch int)

	// RecordTornRead counts a slot copy discarded mid-write.
	RecordTornRead()

	// RecordCycle records one completed intuition cycle.
	RecordCycle(seconds float64, patterns int)

	// RecordCycleError counts a failed cycle by error class.
	RecordCycleError(errorType string)

	// RecordWALAppend counts an accepted append by entry kind.
	RecordWALAppend(kind string)

	// RecordWALDrop counts an entry shed because the queue was full.
	RecordWALDrop()

	// RecordWALFlush records the size of one flushed batch.
	RecordWALFlush(batch int)

	// Register attaches any collectors to their registry. Safe to call
	// more than once.
	Register() error
}

// -----------------------------------------------------------------------------
// NoOpMetrics Implementation (FOSS Tier)
// -----------------------------------------------------------------------------

// NoOpMetrics records totals in memory without exporting them.
//
// # Description
//
// The FOSS-tier recorder. Tracks coarse counters with atomics so tests
// and air-gapped deployments can still assert on activity, but exports
// nothing.
//
// # Thread Safety
//
// NoOpMetrics is safe for concurrent use.
type NoOpMetrics struct {
	nodes              atomic.Int64
	edges              atomic.Int64
	edgeConflicts      atomic.Int64
	activations        atomic.Int64
	confidenceUpdates  atomic.Int64
	propagations       atomic.Int64
	eventsWritten      atomic.Int64
	eventsOverwritten  atomic.Int64
	samples            atomic.Int64
	tornReads          atomic.Int64
	cycles             atomic.Int64
	patternsRecognized atomic.Int64
	cycleErrors        atomic.Int64
	walAppends         atomic.Int64
	walDrops           atomic.Int64
	walFlushes         atomic.Int64
}

// NewNoOpMetrics creates a FOSS-tier metrics recorder.
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (m *NoOpMetrics) SetGraphSize(nodes, edges int) {
	m.nodes.Store(int64(nodes))
	m.edges.Store(int64(edges))
}

func (m *NoOpMetrics) RecordEdgeConflict() { m.edgeConflicts.Add(1) }

func (m *NoOpMetrics) RecordActivation(connType string) { m.activations.Add(1) }

func (m *NoOpMetrics) RecordConfidenceUpdate(outcome string) { m.confidenceUpdates.Add(1) }

func (m *NoOpMetrics) RecordPropagation(seconds float64, nodesReached int) {
	m.propagations.Add(1)
}

func (m *NoOpMetrics) RecordEventWritten(eventType string) { m.eventsWritten.Add(1) }

func (m *NoOpMetrics) RecordEventOverwritten() { m.eventsOverwritten.Add(1) }

func (m *NoOpMetrics) RecordSample(strategy string, batch int) { m.samples.Add(1) }

func (m *NoOpMetrics) RecordTornRead() { m.tornReads.Add(1) }

func (m *NoOpMetrics) RecordCycle(seconds float64, patterns int) {
	m.cycles.Add(1)
	m.patternsRecognized.Add(int64(patterns))
}

func (m *NoOpMetrics) RecordCycleError(errorType string) { m.cycleErrors.Add(1) }

func (m *NoOpMetrics) RecordWALAppend(kind string) { m.walAppends.Add(1) }

func (m *NoOpMetrics) RecordWALDrop() { m.walDrops.Add(1) }

func (m *NoOpMetrics) RecordWALFlush(batch int) { m.walFlushes.Add(1) }

// Register is a no-op; there are no collectors to attach.
func (m *NoOpMetrics) Register() error { return nil }

// Accessors for tests. Only available on NoOpMetrics.

func (m *NoOpMetrics) GetEdgeConflicts() int64     { return m.edgeConflicts.Load() }
func (m *NoOpMetrics) GetActivations() int64       { return m.activations.Load() }
func (m *NoOpMetrics) GetConfidenceUpdates() int64 { return m.confidenceUpdates.Load() }
func (m *NoOpMetrics) GetPropagations() int64      { return m.propagations.Load() }
func (m *NoOpMetrics) GetEventsWritten() int64     { return m.eventsWritten.Load() }
func (m *NoOpMetrics) GetEventsOverwritten() int64 { return m.eventsOverwritten.Load() }
func (m *NoOpMetrics) GetSamples() int64           { return m.samples.Load() }
func (m *NoOpMetrics) GetTornReads() int64         { return m.tornReads.Load() }
func (m *NoOpMetrics) GetCycles() int64            { return m.cycles.Load() }
func (m *NoOpMetrics) GetCycleErrors() int64       { return m.cycleErrors.Load() }
func (m *NoOpMetrics) GetWALAppends() int64        { return m.walAppends.Load() }
func (m *NoOpMetrics) GetWALDrops() int64          { return m.walDrops.Load() }

// -----------------------------------------------------------------------------
// PrometheusMetrics Implementation (Enterprise Tier)
// -----------------------------------------------------------------------------

// PrometheusMetrics exports substrate metrics to the default Prometheus
// registry.
//
// # Description
//
// Full-fidelity recorder with per-type labels and latency histograms.
// Register() must be called once before the metrics appear on the
// scrape endpoint; recording before registration is harmless.
//
// # Thread Safety
//
// PrometheusMetrics is safe for concurrent use.
type PrometheusMetrics struct {
	graphNodes         prometheus.Gauge
	graphEdges         prometheus.Gauge
	edgeConflicts      prometheus.Counter
	activations        *prometheus.CounterVec
	confidenceUpdates  *prometheus.CounterVec
	propagationSeconds prometheus.Histogram
	propagationNodes   prometheus.Histogram

	eventsWritten     *prometheus.CounterVec
	eventsOverwritten prometheus.Counter
	samples           *prometheus.CounterVec
	tornReads         prometheus.Counter

	cycles       prometheus.Counter
	cycleSeconds prometheus.Histogram
	patterns     prometheus.Counter
	cycleErrors  *prometheus.CounterVec

	walAppends   *prometheus.CounterVec
	walDropped   prometheus.Counter
	walFlushSize prometheus.Histogram

	mu         sync.Mutex
	registered bool
}

// NewPrometheusMetrics creates an Enterprise-tier metrics recorder.
//
// # Limitations
//
//   - Register() must be called before scraping sees anything
//   - Uses the process-global default registry
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		graphNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystemGraph,
			Name:      "nodes",
			Help:      "Current number of registered node ids",
		}),
		graphEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystemGraph,
			Name:      "edges",
			Help:      "Current number of stored connections",
		}),
		edgeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystemGraph,
			Name:      "edge_conflicts_total",
			Help:      "Total duplicate edge insertions rejected",
		}),
		activations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystemGraph,
				Name:      "activations_total",
				Help:      "Total edge activations by connection type",
			},
			[]string{"connection_type"},
		),
		confidenceUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystemGraph,
				Name:      "confidence_updates_total",
				Help:      "Total confidence updates by outcome",
			},
			[]string{"outcome"},
		),
		propagationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystemGraph,
			Name:      "propagation_seconds",
			Help:      "Latency of activation propagation calls",
			Buckets:   []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}),
		propagationNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystemGraph,
			Name:      "propagation_nodes",
			Help:      "Nodes reached per propagation call",
			Buckets:   []float64{1, 4, 16, 64, 256, 1024, 4096},
		}),

		eventsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystemStream,
				Name:      "events_written_total",
				Help:      "Total experience events written by event type",
			},
			[]string{"event_type"},
		),
		eventsOverwritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystemStream,
			Name:      "events_overwritten_total",
			Help:      "Total slots lapped by the writer before being read",
		}),
		samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystemStream,
				Name:      "samples_total",
				Help:      "Total sampling calls by strategy",
			},
			[]string{"strategy"},
		),
		tornReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystemStream,
			Name:      "torn_reads_total",
			Help:      "Total slot copies discarded because a write was in flight",
		}),

		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystemIntuition,
			Name:      "cycles_total",
			Help:      "Total completed intuition cycles",
		}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystemIntuition,
			Name:      "cycle_seconds",
			Help:      "Latency of intuition cycles",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
		}),
		patterns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystemIntuition,
			Name:      "patterns_total",
			Help:      "Total patterns recognized across cycles",
		}),
		cycleErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystemIntuition,
				Name:      "errors_total",
				Help:      "Total failed cycles by error class",
			},
			[]string{"error_type"},
		),

		walAppends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystemWAL,
				Name:      "appends_total",
				Help:      "Total accepted WAL appends by entry kind",
			},
			[]string{"kind"},
		),
		walDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystemWAL,
			Name:      "dropped_total",
			Help:      "Total WAL entries shed because the queue was full",
		}),
		walFlushSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystemWAL,
			Name:      "flush_batch",
			Help:      "Entries per WAL flush batch",
			Buckets:   []float64{1, 8, 32, 128, 512, 2048},
		}),
	}
}

func (m *PrometheusMetrics) SetGraphSize(nodes, edges int) {
	m.graphNodes.Set(float64(nodes))
	m.graphEdges.Set(float64(edges))
}

func (m *PrometheusMetrics) RecordEdgeConflict() { m.edgeConflicts.Inc() }

func (m *PrometheusMetrics) RecordActivation(connType string) {
	m.activations.WithLabelValues(connType).Inc()
}

func (m *PrometheusMetrics) RecordConfidenceUpdate(outcome string) {
	m.confidenceUpdates.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) RecordPropagation(seconds float64, nodesReached int) {
	m.propagationSeconds.Observe(seconds)
	m.propagationNodes.Observe(float64(nodesReached))
}

func (m *PrometheusMetrics) RecordEventWritten(eventType string) {
	m.eventsWritten.WithLabelValues(eventType).Inc()
}

func (m *PrometheusMetrics) RecordEventOverwritten() { m.eventsOverwritten.Inc() }

func (m *PrometheusMetrics) RecordSample(strategy string, batch int) {
	m.samples.WithLabelValues(strategy).Inc()
}

func (m *PrometheusMetrics) RecordTornRead() { m.tornReads.Inc() }

func (m *PrometheusMetrics) RecordCycle(seconds float64, patterns int) {
	m.cycles.Inc()
	m.cycleSeconds.Observe(seconds)
	m.patterns.Add(float64(patterns))
}

func (m *PrometheusMetrics) RecordCycleError(errorType string) {
	m.cycleErrors.WithLabelValues(errorType).Inc()
}

func (m *PrometheusMetrics) RecordWALAppend(kind string) {
	m.walAppends.WithLabelValues(kind).Inc()
}

func (m *PrometheusMetrics) RecordWALDrop() { m.walDropped.Inc() }

func (m *PrometheusMetrics) RecordWALFlush(batch int) {
	m.walFlushSize.Observe(float64(batch))
}

// Register attaches all collectors to the default registry. Calling it
// again after a successful registration is a no-op.
func (m *PrometheusMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.graphNodes,
		m.graphEdges,
		m.edgeConflicts,
		m.activations,
		m.confidenceUpdates,
		m.propagationSeconds,
		m.propagationNodes,
		m.eventsWritten,
		m.eventsOverwritten,
		m.samples,
		m.tornReads,
		m.cycles,
		m.cycleSeconds,
		m.patterns,
		m.cycleErrors,
		m.walAppends,
		m.walDropped,
		m.walFlushSize,
	}

	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			return err
		}
	}

	m.registered = true
	return nil
}

// -----------------------------------------------------------------------------
// Factory Function
// -----------------------------------------------------------------------------

// NewMetrics returns a PrometheusMetrics when export is enabled and a
// NoOpMetrics otherwise.
func NewMetrics(enablePrometheus bool) Metrics {
	if enablePrometheus {
		return NewPrometheusMetrics()
	}
	return NewNoOpMetrics()
}

// Compile-time interface checks.
var (
	_ Metrics = (*NoOpMetrics)(nil)
	_ Metrics = (*PrometheusMetrics)(nil)
)
