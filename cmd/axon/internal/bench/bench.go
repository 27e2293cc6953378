// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bench drives the substrate through its hot paths at a chosen
// scale and reports per-phase throughput.
//
// The suite exercises every core surface in dependency order: token
// records, connection learning updates, graph construction and signal
// propagation, the concurrent experience stream under parallel
// producers and samplers, intuition engine cycles, and the cold-path
// archive round trip. Phases share one substrate instance so later
// phases run against realistically populated structures.
package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/axon/archive"
	"github.com/AleutianAI/axon/blackbox"
	"github.com/AleutianAI/axon/connection"
	"github.com/AleutianAI/axon/diagnostics"
	"github.com/AleutianAI/axon/graph"
	"github.com/AleutianAI/axon/intuition"
	"github.com/AleutianAI/axon/stream"
	"github.com/AleutianAI/axon/token"
	"github.com/AleutianAI/axon/wal"
)

// Options configures a suite run.
type Options struct {
	// Scale is the entity count per phase: tokens created,
	// connections updated, edges inserted, events written.
	// Default: 100_000.
	Scale int

	// Producers is the concurrent writer count for the stream phase.
	// Default: runtime.NumCPU().
	Producers int

	// Cycles is the intuition engine cycle count. Default: 100.
	Cycles int

	// WALDir enables a file-backed write-ahead log under the graph
	// and stream when non-empty.
	WALDir string

	// ArchiveDir enables the archive round-trip phase when non-empty.
	ArchiveDir string

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to NoOpMetrics.
	Metrics diagnostics.Metrics
}

func (o *Options) normalize() {
	if o.Scale <= 0 {
		o.Scale = 100_000
	}
	if o.Producers <= 0 {
		o.Producers = runtime.NumCPU()
	}
	if o.Cycles <= 0 {
		o.Cycles = 100
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = diagnostics.NewNoOpMetrics()
	}
}

// Phase is one timed section of the suite.
type Phase struct {
	// Name identifies the phase in the report.
	Name string

	// Ops is the operation count the duration covers.
	Ops int64

	// Duration is the wall time the phase took.
	Duration time.Duration

	// Note carries a phase-specific observation (reached nodes, torn
	// reads, segment size).
	Note string
}

// PerOp returns the mean per-operation latency.
func (p Phase) PerOp() time.Duration {
	if p.Ops == 0 {
		return 0
	}
	return p.Duration / time.Duration(p.Ops)
}

// OpsPerSecond returns the phase throughput.
func (p Phase) OpsPerSecond() float64 {
	secs := p.Duration.Seconds()
	if secs == 0 {
		return 0
	}
	return float64(p.Ops) / secs
}

// Report is the outcome of one suite run.
type Report struct {
	// Scale echoes Options.Scale.
	Scale int

	// Phases lists results in execution order.
	Phases []Phase

	// GraphStats is the final graph summary.
	GraphStats graph.Stats

	// StreamStats is the final stream summary.
	StreamStats stream.Stats

	// WALStats is the async writer summary; zero when no WAL ran.
	WALStats wal.AsyncStats

	// PeakRSSBytes is the process peak resident set, zero when the
	// platform cannot report it.
	PeakRSSBytes int64

	// Total is the wall time across all phases.
	Total time.Duration
}

// Suite owns the substrate instances a run exercises.
type Suite struct {
	opts     Options
	graph    *graph.Graph
	stream   *stream.Stream
	recorder *blackbox.Recorder
	walw     *wal.AsyncWriter
}

// New assembles a suite. When opts.WALDir is set the graph and stream
// share one async file-backed WAL.
func New(opts Options) (*Suite, error) {
	opts.normalize()

	s := &Suite{
		opts:     opts,
		recorder: blackbox.New(blackbox.DefaultCapacity),
	}

	graphOpts := []graph.Option{
		graph.WithLogger(opts.Logger),
		graph.WithMetrics(opts.Metrics),
		graph.WithObserver(s.recorder.Observer()),
	}
	streamOpts := []stream.Option{
		stream.WithLogger(opts.Logger),
		stream.WithMetrics(opts.Metrics),
	}

	if opts.WALDir != "" {
		backend, err := wal.NewFileBackend(wal.DefaultFileConfig(opts.WALDir))
		if err != nil {
			return nil, fmt.Errorf("bench: open wal: %w", err)
		}
		cfg := wal.DefaultAsyncConfig(backend)
		cfg.Logger = opts.Logger
		cfg.Metrics = opts.Metrics
		writer, err := wal.NewAsyncWriter(cfg)
		if err != nil {
			return nil, fmt.Errorf("bench: start wal writer: %w", err)
		}
		s.walw = writer
		graphOpts = append(graphOpts, graph.WithWAL(writer))
		streamOpts = append(streamOpts, stream.WithWAL(writer))
	}

	s.graph = graph.New(graphOpts...)

	// Ring capacity tracks scale but stays bounded; the sampling
	// window covers a tenth of the ring.
	capacity := opts.Scale
	if capacity > 1_000_000 {
		capacity = 1_000_000
	}
	if capacity < 1024 {
		capacity = 1024
	}
	window := capacity / 10
	if window < 128 {
		window = 128
	}
	s.stream = stream.New(capacity, window, streamOpts...)

	return s, nil
}

// Recorder exposes the flight recorder for post-run dumps.
func (s *Suite) Recorder() *blackbox.Recorder { return s.recorder }

// Run executes every phase and returns the report. The context aborts
// between phases; a phase in progress runs to completion.
func (s *Suite) Run(ctx context.Context) (*Report, error) {
	report := &Report{Scale: s.opts.Scale}
	start := time.Now()

	phases := []func(context.Context) (Phase, error){
		s.phaseTokens,
		s.phaseConnections,
		s.phaseGraph,
		s.phasePropagate,
		s.phaseStream,
		s.phaseEngine,
	}
	if s.opts.ArchiveDir != "" {
		phases = append(phases, s.phaseArchive)
	}

	for _, run := range phases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		phase, err := run(ctx)
		if err != nil {
			return nil, err
		}
		s.recorder.Note("bench", "%s: %d ops in %s", phase.Name, phase.Ops, phase.Duration)
		report.Phases = append(report.Phases, phase)
	}

	report.Total = time.Since(start)
	report.GraphStats = s.graph.Stats()
	report.StreamStats = s.stream.Stats()
	if s.walw != nil {
		report.WALStats = s.walw.Stats()
	}
	report.PeakRSSBytes = peakRSS()
	return report, nil
}

// Close releases the WAL writer. Safe when no WAL was configured.
func (s *Suite) Close() error {
	if s.walw != nil {
		return s.walw.Close()
	}
	return nil
}

// phaseTokens creates tokens and touches every coordinate space.
func (s *Suite) phaseTokens(context.Context) (Phase, error) {
	n := s.opts.Scale
	tokens := make([]token.Token, n)

	started := time.Now()
	var ops int64
	for i := range tokens {
		t := token.New(uint32(i + 1))
		t.SetEntityType(token.EntityConcept)
		t.Weight = float32(i%100) / 100
		for space := token.CoordinateSpace(0); space < token.NumSpaces; space++ {
			v := float32(i%50) / 10
			t.SetCoordinates(space, v, -v, v/2)
			x, y, z := t.Coordinates(space)
			_ = x + y + z
			ops += 2
		}
		tokens[i] = t
		ops++
	}
	return Phase{
		Name:     "tokens",
		Ops:      ops,
		Duration: time.Since(started),
		Note:     fmt.Sprintf("%d records, 8 spaces each", n),
	}, nil
}

// phaseConnections runs the learning update contract on one arena of
// connections.
func (s *Suite) phaseConnections(context.Context) (Phase, error) {
	n := s.opts.Scale
	conns := make([]connection.Connection, n)
	for i := range conns {
		c := connection.New(uint32(i+1), uint32(i+2))
		c.SetConnectionType(connection.AssociatedWith)
		conns[i] = c
	}

	started := time.Now()
	var ops int64
	for i := range conns {
		conns[i].Activate()
		if err := conns[i].UpdateConfidence(i%3 != 0); err != nil {
			return Phase{}, fmt.Errorf("bench: update confidence: %w", err)
		}
		ops += 2
	}
	return Phase{
		Name:     "connections",
		Ops:      ops,
		Duration: time.Since(started),
		Note:     "activate + confidence per record",
	}, nil
}

// phaseGraph registers nodes and inserts a sparse random edge set.
func (s *Suite) phaseGraph(context.Context) (Phase, error) {
	n := s.opts.Scale
	rng := rand.New(rand.NewPCG(42, uint64(n)))

	started := time.Now()
	var ops int64
	for i := 1; i <= n; i++ {
		if err := s.graph.AddNode(uint32(i)); err != nil {
			return Phase{}, fmt.Errorf("bench: add node %d: %w", i, err)
		}
		ops++
	}
	inserted := 0
	for inserted < n {
		from := uint32(rng.IntN(n) + 1)
		to := uint32(rng.IntN(n) + 1)
		if from == to {
			continue
		}
		_, err := s.graph.AddEdge(from, to, connection.AssociatedWith, rng.Float32(), false)
		if err != nil {
			// Random pairs collide; duplicates are the documented
			// reject case, everything else is fatal.
			if errors.Is(err, graph.ErrDuplicateEdge) {
				continue
			}
			return Phase{}, fmt.Errorf("bench: add edge: %w", err)
		}
		inserted++
		ops++
	}
	return Phase{
		Name:     "graph",
		Ops:      ops,
		Duration: time.Since(started),
		Note:     fmt.Sprintf("%d nodes, %d edges", n, inserted),
	}, nil
}

// phasePropagate spreads signals from a sample of sources.
func (s *Suite) phasePropagate(context.Context) (Phase, error) {
	n := s.opts.Scale
	sources := 64
	if sources > n {
		sources = n
	}
	cfg := graph.DefaultSignalConfig()

	started := time.Now()
	var ops, reached int64
	for i := 0; i < sources; i++ {
		source := uint32(i*(n/sources) + 1)
		result, err := s.graph.Propagate(source, cfg)
		if err != nil {
			return Phase{}, fmt.Errorf("bench: propagate from %d: %w", source, err)
		}
		reached += int64(result.NodesVisited)
		ops++
	}
	return Phase{
		Name:     "propagate",
		Ops:      ops,
		Duration: time.Since(started),
		Note:     fmt.Sprintf("%d nodes reached across %d sources", reached, sources),
	}, nil
}

// phaseStream runs parallel producers against parallel samplers.
func (s *Suite) phaseStream(ctx context.Context) (Phase, error) {
	n := s.opts.Scale
	producers := s.opts.Producers
	perProducer := n / producers
	if perProducer == 0 {
		perProducer = 1
	}

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	var producing sync.WaitGroup
	producing.Add(producers)
	for p := 0; p < producers; p++ {
		p := p
		g.Go(func() error {
			defer producing.Done()
			for i := 0; i < perProducer; i++ {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e := stream.NewEvent(stream.EventObservation, uint64(time.Now().UnixNano()))
				e.SourceID = uint32(p*perProducer + i + 1)
				e.State[0] = float32(i)
				e.Reward = float32(i%10) / 10
				if err := s.stream.WriteEvent(&e); err != nil {
					return fmt.Errorf("bench: write event: %w", err)
				}
			}
			return nil
		})
	}

	// Two samplers race the producers until the last write lands.
	sampleDone := make(chan struct{})
	go func() {
		producing.Wait()
		close(sampleDone)
	}()
	for r := 0; r < 2; r++ {
		g.Go(func() error {
			for {
				select {
				case <-sampleDone:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				if _, err := s.stream.SampleBatch(64, stream.Uniform); err != nil {
					return fmt.Errorf("bench: sample: %w", err)
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return Phase{}, err
	}

	stats := s.stream.Stats()
	return Phase{
		Name:     "stream",
		Ops:      stats.Written,
		Duration: time.Since(started),
		Note: fmt.Sprintf("%d producers, overwritten=%d torn=%d",
			producers, stats.Overwritten, stats.TornReads),
	}, nil
}

// phaseEngine runs intuition cycles over the populated stream.
func (s *Suite) phaseEngine(ctx context.Context) (Phase, error) {
	engine, err := intuition.NewBuilder().
		WithExperience(s.stream).
		WithBatchSize(64).
		WithStrategy(stream.Uniform).
		WithLogger(s.opts.Logger).
		WithMetrics(s.opts.Metrics).
		Build()
	if err != nil {
		return Phase{}, fmt.Errorf("bench: build engine: %w", err)
	}

	started := time.Now()
	var patterns int64
	for i := 0; i < s.opts.Cycles; i++ {
		found, err := engine.Cycle(ctx)
		if err != nil {
			return Phase{}, fmt.Errorf("bench: cycle %d: %w", i, err)
		}
		patterns += int64(len(found))
	}
	return Phase{
		Name:     "engine",
		Ops:      int64(s.opts.Cycles),
		Duration: time.Since(started),
		Note:     fmt.Sprintf("%d patterns identified", patterns),
	}, nil
}

// phaseArchive round-trips one sampled batch through a cold segment.
func (s *Suite) phaseArchive(ctx context.Context) (Phase, error) {
	writer, err := archive.NewWriter(archive.Config{
		Dir:    s.opts.ArchiveDir,
		Logger: s.opts.Logger,
	})
	if err != nil {
		return Phase{}, fmt.Errorf("bench: open archive: %w", err)
	}

	batch, err := s.stream.SampleBatch(s.stream.WindowSize(), stream.Recency)
	if err != nil {
		return Phase{}, fmt.Errorf("bench: sample for archive: %w", err)
	}
	if len(batch) == 0 {
		return Phase{Name: "archive", Note: "empty stream, nothing archived"}, nil
	}

	started := time.Now()
	name, err := writer.ArchiveBatch(ctx, batch)
	if err != nil {
		return Phase{}, fmt.Errorf("bench: archive batch: %w", err)
	}

	reader, err := archive.NewReader(s.opts.ArchiveDir)
	if err != nil {
		return Phase{}, fmt.Errorf("bench: open archive reader: %w", err)
	}
	events, info, err := reader.Read(filepath.Base(name))
	if err != nil {
		return Phase{}, fmt.Errorf("bench: read segment: %w", err)
	}
	if len(events) != len(batch) {
		return Phase{}, fmt.Errorf("bench: segment round trip lost events: wrote %d read %d",
			len(batch), len(events))
	}

	return Phase{
		Name:     "archive",
		Ops:      int64(len(batch) * 2),
		Duration: time.Since(started),
		Note: fmt.Sprintf("segment %s, %d events, compressed=%v",
			name, len(events), info.Flags&archive.InfoCompressed != 0),
	}, nil
}
