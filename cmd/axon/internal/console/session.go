// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package console is the interactive REPL over a live substrate.
//
// A Session owns one graph, one experience stream, one spatial grid,
// and one intuition engine, all sharing a guardian-vetted mutation
// path. Execute parses a command line and applies it; the Run loop in
// this package wires Execute to an input reader with history.
package console

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/axon/blackbox"
	"github.com/AleutianAI/axon/bootstrap"
	"github.com/AleutianAI/axon/connection"
	"github.com/AleutianAI/axon/diagnostics"
	"github.com/AleutianAI/axon/graph"
	"github.com/AleutianAI/axon/grid"
	"github.com/AleutianAI/axon/guardian"
	"github.com/AleutianAI/axon/intuition"
	"github.com/AleutianAI/axon/stream"
	"github.com/AleutianAI/axon/token"
)

// Default substrate sizing for an interactive session.
const (
	defaultStreamCapacity = 4096
	defaultStreamWindow   = 512
	defaultBatchSize      = 32
)

// Config assembles a session.
type Config struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to NoOpMetrics.
	Metrics diagnostics.Metrics

	// SeedLibrary is an optional bootstrap YAML applied at startup.
	SeedLibrary string
}

// Session is one interactive substrate instance.
type Session struct {
	// ID names this session in logs.
	ID string

	logger   *slog.Logger
	graph    *graph.Graph
	stream   *stream.Stream
	grid     *grid.Grid
	guardian *guardian.Guardian
	engine   *intuition.Engine
	recorder *blackbox.Recorder

	tokens map[uint32]*token.Token
}

// NewSession builds the substrate and its collaborators. Construction
// fails only when the engine cannot be assembled or the seed library
// cannot be applied.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = diagnostics.NewNoOpMetrics()
	}

	recorder := blackbox.New(blackbox.DefaultCapacity)
	g := graph.New(
		graph.WithLogger(cfg.Logger),
		graph.WithMetrics(cfg.Metrics),
		graph.WithObserver(recorder.Observer()),
	)
	st := stream.New(defaultStreamCapacity, defaultStreamWindow,
		stream.WithLogger(cfg.Logger),
		stream.WithMetrics(cfg.Metrics),
	)
	gr, err := grid.New(grid.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("console: build grid: %w", err)
	}

	engine, err := intuition.NewBuilder().
		WithExperience(st).
		WithBatchSize(defaultBatchSize).
		WithStrategy(stream.Uniform).
		WithLogger(cfg.Logger).
		WithMetrics(cfg.Metrics).
		Build()
	if err != nil {
		return nil, fmt.Errorf("console: build engine: %w", err)
	}

	s := &Session{
		ID:       uuid.NewString(),
		logger:   cfg.Logger,
		graph:    g,
		stream:   st,
		grid:     gr,
		guardian: guardian.New(guardian.DefaultConfig()),
		engine:   engine,
		recorder: recorder,
		tokens:   make(map[uint32]*token.Token),
	}

	if cfg.SeedLibrary != "" {
		if _, err := s.seed(cfg.SeedLibrary); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Recorder exposes the flight recorder for dumps.
func (s *Session) Recorder() *blackbox.Recorder { return s.recorder }

// Execute parses and applies one command line. The returned string is
// the transcript output; an error means the command failed but the
// session remains usable.
func (s *Session) Execute(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}

	switch fields[0] {
	case "help":
		return helpText, nil
	case "token":
		return s.cmdToken(fields[1:])
	case "edge":
		return s.cmdEdge(fields[1:])
	case "propagate":
		return s.cmdPropagate(fields[1:])
	case "near":
		return s.cmdNear(fields[1:])
	case "emit":
		return s.cmdEmit(fields[1:])
	case "sample":
		return s.cmdSample(fields[1:])
	case "patterns":
		return s.cmdPatterns(ctx)
	case "stats":
		return s.cmdStats(), nil
	case "seed":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: seed <library.yaml>")
		}
		return s.seed(fields[1])
	case "blackbox":
		return s.cmdBlackbox(), nil
	case "clear":
		s.Clear()
		return "substrate cleared", nil
	default:
		return "", fmt.Errorf("unknown command %q (try help)", fields[0])
	}
}

const helpText = `commands:
  token new <id> [entity_type]          create a token
  token set <id> <space> <x> <y> <z>    place a token in a coordinate space
  token show <id>                       print a token
  edge add <from> <to> [type] [weight] [bidi]
  edge fire <from> <to> [type]          activate an edge
  edge reward|penalize <from> <to> [type]
  propagate <id> [sum|max|decay]        spread a signal from a node
  near <x> <y> <z> <radius>             spatial query (physical space)
  emit <event_type> [reward]            write an experience event
  sample <n> [uniform|recency|stratified]
  patterns                              run one intuition cycle
  stats                                 substrate counters
  seed <library.yaml>                   apply a concept library
  blackbox                              dump the flight recorder
  clear                                 reset graph, stream, and grid
  exit                                  leave the console`

func (s *Session) cmdToken(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("usage: token new|set|show ...")
	}
	switch args[0] {
	case "new":
		if len(args) < 2 {
			return "", fmt.Errorf("usage: token new <id> [entity_type]")
		}
		id, err := parseID(args[1])
		if err != nil {
			return "", err
		}
		et := token.EntityConcept
		if len(args) > 2 {
			et, err = token.ParseEntityType(args[2])
			if err != nil {
				return "", err
			}
		}
		if err := s.guardian.CheckNode(guardian.NodeProposal{ID: id, EntityType: et}); err != nil {
			return "", err
		}
		if _, exists := s.tokens[id]; exists {
			return "", fmt.Errorf("token %d already exists", id)
		}
		t := token.New(id)
		t.SetEntityType(et)
		s.tokens[id] = &t
		if err := s.graph.AddNode(id); err != nil {
			return "", err
		}
		return fmt.Sprintf("token %d created (%s)", id, et), nil

	case "set":
		if len(args) != 6 {
			return "", fmt.Errorf("usage: token set <id> <space> <x> <y> <z>")
		}
		t, err := s.lookup(args[1])
		if err != nil {
			return "", err
		}
		space, err := token.ParseCoordinateSpace(args[2])
		if err != nil {
			return "", err
		}
		coords, err := parseFloats(args[3:6])
		if err != nil {
			return "", err
		}
		t.SetCoordinates(space, coords[0], coords[1], coords[2])
		if space == s.grid.Config().Space {
			if err := s.grid.Insert(t); err != nil {
				return "", err
			}
		}
		x, y, z := t.Coordinates(space)
		return fmt.Sprintf("token %d @ %s = (%g, %g, %g)", t.ID, space, x, y, z), nil

	case "show":
		if len(args) != 2 {
			return "", fmt.Errorf("usage: token show <id>")
		}
		t, err := s.lookup(args[1])
		if err != nil {
			return "", err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "token %d  entity=%s domain=%s weight=%g flags=%#02x\n",
			t.ID, t.EntityType(), t.Domain(), t.Weight, t.Flags)
		for space := token.CoordinateSpace(0); space < token.NumSpaces; space++ {
			x, y, z := t.Coordinates(space)
			if x != 0 || y != 0 || z != 0 {
				fmt.Fprintf(&b, "  %-12s (%g, %g, %g)\n", space, x, y, z)
			}
		}
		return strings.TrimRight(b.String(), "\n"), nil

	default:
		return "", fmt.Errorf("unknown token subcommand %q", args[0])
	}
}

func (s *Session) cmdEdge(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("usage: edge add|fire|reward|penalize ...")
	}
	switch args[0] {
	case "add":
		if len(args) < 3 {
			return "", fmt.Errorf("usage: edge add <from> <to> [type] [weight] [bidi]")
		}
		from, err := parseID(args[1])
		if err != nil {
			return "", err
		}
		to, err := parseID(args[2])
		if err != nil {
			return "", err
		}
		ct := connection.AssociatedWith
		if len(args) > 3 {
			ct, err = connection.ParseConnectionType(args[3])
			if err != nil {
				return "", err
			}
		}
		weight := float32(1.0)
		if len(args) > 4 {
			w, err := strconv.ParseFloat(args[4], 32)
			if err != nil {
				return "", fmt.Errorf("weight: %w", err)
			}
			weight = float32(w)
		}
		bidi := len(args) > 5 && args[5] == "bidi"

		proposal := connection.Proposal{
			FromID: from, ToID: to, Type: ct,
			Weight: weight, Bidirectional: bidi,
		}
		if err := s.guardian.CheckEdge(proposal); err != nil {
			return "", err
		}
		id, err := s.graph.AddEdge(from, to, ct, weight, bidi)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("edge %d→%d (%s) id=%#x", from, to, ct, uint64(id)), nil

	case "fire", "reward", "penalize":
		if len(args) < 3 {
			return "", fmt.Errorf("usage: edge %s <from> <to> [type]", args[0])
		}
		from, err := parseID(args[1])
		if err != nil {
			return "", err
		}
		to, err := parseID(args[2])
		if err != nil {
			return "", err
		}
		ct := connection.AssociatedWith
		if len(args) > 3 {
			ct, err = connection.ParseConnectionType(args[3])
			if err != nil {
				return "", err
			}
		}
		id := graph.ComputeEdgeID(from, to, ct)
		switch args[0] {
		case "fire":
			if err := s.graph.ActivateEdge(id); err != nil {
				return "", err
			}
		case "reward":
			if err := s.graph.UpdateEdgeConfidence(id, true); err != nil {
				return "", err
			}
		case "penalize":
			if err := s.graph.UpdateEdgeConfidence(id, false); err != nil {
				return "", err
			}
		}
		c, ok := s.graph.GetEdge(id)
		if !ok {
			return "", graph.ErrUnknownEdge
		}
		return fmt.Sprintf("edge %d→%d confidence=%.3f activations=%d",
			from, to, c.Confidence, c.ActivationCount), nil

	default:
		return "", fmt.Errorf("unknown edge subcommand %q", args[0])
	}
}

func (s *Session) cmdPropagate(args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("usage: propagate <id> [sum|max|decay]")
	}
	source, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	cfg := graph.DefaultSignalConfig()
	if len(args) > 1 {
		switch args[1] {
		case "sum":
			cfg.Mode = graph.AccumulateSum
		case "max":
			cfg.Mode = graph.AccumulateMax
		case "decay":
			cfg.Mode = graph.AccumulateDecay
		default:
			return "", fmt.Errorf("unknown accumulation mode %q", args[1])
		}
	}

	result, err := s.graph.Propagate(source, cfg)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "propagated from %d: %d nodes, %d edges traversed",
		result.Source, result.NodesVisited, result.EdgesTraversed)
	if result.Truncated {
		b.WriteString(" (truncated)")
	}
	limit := 10
	for i, n := range result.Activated {
		if i >= limit {
			fmt.Fprintf(&b, "\n  ... %d more", len(result.Activated)-limit)
			break
		}
		fmt.Fprintf(&b, "\n  node %-8d strength=%.4f hops=%d", n.ID, n.Strength, n.Hops)
	}
	return b.String(), nil
}

func (s *Session) cmdNear(args []string) (string, error) {
	if len(args) != 4 {
		return "", fmt.Errorf("usage: near <x> <y> <z> <radius>")
	}
	vals, err := parseFloats(args)
	if err != nil {
		return "", err
	}
	ids := s.grid.QueryRadius(vals[0], vals[1], vals[2], vals[3])
	if len(ids) == 0 {
		return "no tokens in range", nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return fmt.Sprintf("%d tokens: %s", len(ids), strings.Join(parts, " ")), nil
}

func (s *Session) cmdEmit(args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("usage: emit <event_type> [reward]")
	}
	et, err := parseEventType(args[0])
	if err != nil {
		return "", err
	}
	e := stream.NewEvent(et, uint64(time.Now().UnixNano()))
	if len(args) > 1 {
		r, err := strconv.ParseFloat(args[1], 32)
		if err != nil {
			return "", fmt.Errorf("reward: %w", err)
		}
		e.Reward = float32(r)
	}
	if err := s.stream.WriteEvent(&e); err != nil {
		return "", err
	}
	return fmt.Sprintf("event %s written (%s)", e.Type, e.ID), nil
}

func (s *Session) cmdSample(args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("usage: sample <n> [uniform|recency|stratified]")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return "", fmt.Errorf("invalid batch size %q", args[0])
	}
	strategy := stream.Uniform
	if len(args) > 1 {
		switch args[1] {
		case "uniform":
			strategy = stream.Uniform
		case "recency":
			strategy = stream.Recency
		case "stratified":
			strategy = stream.Stratified
		default:
			return "", fmt.Errorf("unknown strategy %q", args[1])
		}
	}

	batch, err := s.stream.SampleBatch(n, strategy)
	if err != nil {
		return "", err
	}
	if len(batch) == 0 {
		return "stream is empty", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d events:", len(batch))
	for _, e := range batch {
		fmt.Fprintf(&b, "\n  seq=%-6d type=%-12s reward=%.2f novelty=%.2f",
			e.Sequence, e.Type, e.Reward, e.Novelty)
	}
	return b.String(), nil
}

func (s *Session) cmdPatterns(ctx context.Context) (string, error) {
	patterns, err := s.engine.Cycle(ctx)
	if err != nil {
		return "", err
	}
	if len(patterns) == 0 {
		return "no patterns this cycle", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d patterns:", len(patterns))
	for _, p := range patterns {
		fmt.Fprintf(&b, "\n  %s %s support=%d share=%.2f reward=%.2f",
			p.Kind, p.EventType, p.Support, p.Share, p.MeanReward)
	}
	return b.String(), nil
}

func (s *Session) cmdStats() string {
	gs := s.graph.Stats()
	ss := s.stream.Stats()
	es := s.engine.Stats()
	gds := s.guardian.Stats()
	grs := s.grid.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, "graph     nodes=%d edges=%d dangling=%d avg_confidence=%.3f\n",
		gs.Nodes, gs.Edges, gs.Dangling, gs.AvgConfidence)
	fmt.Fprintf(&b, "stream    retained=%d/%d written=%d overwritten=%d sampled=%d torn=%d\n",
		ss.Retained, ss.Capacity, ss.Written, ss.Overwritten, ss.Sampled, ss.TornReads)
	fmt.Fprintf(&b, "engine    cycles=%d empty=%d patterns=%d history=%d\n",
		es.Cycles, es.EmptyCycles, es.Patterns, es.HistoryLen)
	fmt.Fprintf(&b, "guardian  accepted=%d rejected=%d throttled=%d\n",
		gds.Accepted, gds.Rejected, gds.Throttled)
	fmt.Fprintf(&b, "grid      tokens=%d cells=%d", grs.Tokens, grs.OccupiedCells)
	return b.String()
}

func (s *Session) seed(path string) (string, error) {
	lib, err := bootstrap.Load(path)
	if err != nil {
		return "", err
	}
	result, err := lib.Apply(s.graph, s.grid)
	if err != nil {
		return "", err
	}
	s.recorder.Note("console", "seeded %s: +%d nodes +%d edges", path,
		result.NodesAdded, result.EdgesAdded)
	return fmt.Sprintf("seeded %s: nodes+%d indexed+%d edges+%d existing=%d",
		path, result.NodesAdded, result.TokensIndexed,
		result.EdgesAdded, result.EdgesExisting), nil
}

func (s *Session) cmdBlackbox() string {
	entries := s.recorder.Snapshot()
	if len(entries) == 0 {
		return "flight recorder is empty"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d entries (dropped=%d):", len(entries), s.recorder.Dropped())
	for _, e := range entries {
		fmt.Fprintf(&b, "\n  [%d] %s %s: %s",
			e.Seq, e.At.Format("15:04:05.000"), e.Source, e.Message)
	}
	return b.String()
}

// Clear resets the graph, stream contents, grid, and token arena. The
// engine keeps its history; the recorder keeps its tail.
func (s *Session) Clear() {
	s.graph.Clear()
	s.grid.Clear()
	s.tokens = make(map[uint32]*token.Token)
	s.recorder.Note("console", "substrate cleared")
}

func (s *Session) lookup(arg string) (*token.Token, error) {
	id, err := parseID(arg)
	if err != nil {
		return nil, err
	}
	t, ok := s.tokens[id]
	if !ok {
		return nil, fmt.Errorf("token %d does not exist", id)
	}
	return t, nil
}

func parseID(arg string) (uint32, error) {
	v, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return uint32(v), nil
}

func parseEventType(name string) (stream.EventType, error) {
	for t := stream.EventType(0); t < stream.NumEventTypes; t++ {
		if strings.EqualFold(t.String(), name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown event type %q", name)
}

func parseFloats(args []string) ([]float32, error) {
	out := make([]float32, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", a)
		}
		out[i] = float32(v)
	}
	return out, nil
}
