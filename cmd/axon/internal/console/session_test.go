// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package console

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/axon/pkg/logging"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(Config{Logger: logging.Nop()})
	require.NoError(t, err)
	return s
}

func run(t *testing.T, s *Session, line string) string {
	t.Helper()
	out, err := s.Execute(context.Background(), line)
	require.NoError(t, err, "command %q", line)
	return out
}

func TestSessionTokenLifecycle(t *testing.T) {
	s := newTestSession(t)

	out := run(t, s, "token new 1 Concept")
	assert.Contains(t, out, "token 1 created")

	out = run(t, s, "token set 1 l1_physical 1.5 -2 0.25")
	assert.Contains(t, out, "l1_physical")

	out = run(t, s, "token show 1")
	assert.Contains(t, out, "entity=Concept")
	assert.Contains(t, out, "l1_physical")

	_, err := s.Execute(context.Background(), "token new 1")
	assert.Error(t, err, "duplicate id must be rejected")

	_, err = s.Execute(context.Background(), "token show 99")
	assert.Error(t, err)
}

func TestSessionEdgeCommands(t *testing.T) {
	s := newTestSession(t)
	run(t, s, "token new 1")
	run(t, s, "token new 2")

	out := run(t, s, "edge add 1 2 Causes 0.8")
	assert.Contains(t, out, "1→2")

	out = run(t, s, "edge fire 1 2 Causes")
	assert.Contains(t, out, "activations=1")

	out = run(t, s, "edge reward 1 2 Causes")
	assert.Contains(t, out, "confidence=")

	_, err := s.Execute(context.Background(), "edge fire 1 2 IsA")
	assert.Error(t, err, "no edge of that type exists")

	// Self-loops fail the guardian's structural rules.
	_, err = s.Execute(context.Background(), "edge add 1 1")
	assert.Error(t, err)
}

func TestSessionPropagate(t *testing.T) {
	s := newTestSession(t)
	run(t, s, "token new 1")
	run(t, s, "token new 2")
	run(t, s, "token new 3")
	run(t, s, "edge add 1 2 Causes 1.0")
	run(t, s, "edge add 2 3 Causes 0.5")

	out := run(t, s, "propagate 1")
	assert.Contains(t, out, "propagated from 1")
	assert.Contains(t, out, "3 nodes")

	out = run(t, s, "propagate 1 max")
	assert.Contains(t, out, "propagated from 1")

	_, err := s.Execute(context.Background(), "propagate 1 sideways")
	assert.Error(t, err)
}

func TestSessionNear(t *testing.T) {
	s := newTestSession(t)
	run(t, s, "token new 1")
	run(t, s, "token new 2")
	run(t, s, "token set 1 l1_physical 0 0 0")
	run(t, s, "token set 2 l1_physical 100 100 100")

	out := run(t, s, "near 0 0 0 5")
	assert.Contains(t, out, "1 tokens: 1")

	out = run(t, s, "near 500 500 500 1")
	assert.Equal(t, "no tokens in range", out)
}

func TestSessionStreamAndPatterns(t *testing.T) {
	s := newTestSession(t)

	for i := 0; i < 8; i++ {
		run(t, s, "emit Outcome 0.9")
	}
	out := run(t, s, "sample 4 recency")
	assert.Contains(t, out, "4 events")

	out = run(t, s, "patterns")
	assert.Contains(t, out, "patterns")

	out = run(t, s, "stats")
	assert.Contains(t, out, "written=8")

	_, err := s.Execute(context.Background(), "emit Daydream")
	assert.Error(t, err)
}

func TestSessionSeedAndClear(t *testing.T) {
	s := newTestSession(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "library.yaml")
	lib := `version: 1
concepts:
  - name: water
    entity: Concept
    coordinates:
      l1_physical: [0, 0, 0]
    relations:
      - to: ice
        type: SimilarTo
  - name: ice
`
	require.NoError(t, os.WriteFile(path, []byte(lib), 0o644))

	out := run(t, s, "seed "+path)
	assert.Contains(t, out, "nodes+2")

	run(t, s, "clear")
	out = run(t, s, "stats")
	assert.Contains(t, out, "nodes=0")
}

func TestSessionUnknownCommand(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Execute(context.Background(), "transmogrify 7")
	assert.ErrorContains(t, err, "unknown command")

	out := run(t, s, "   ")
	assert.Empty(t, out)
}

func TestRunScripted(t *testing.T) {
	s := newTestSession(t)
	reader := &scriptReader{lines: []string{
		"token new 1",
		"token new 2",
		"edge add 1 2",
		"bogus",
		"",
		"exit",
		"never reached",
	}}

	var buf bytes.Buffer
	err := Run(context.Background(), s, reader, &buf)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "token 1 created")
	assert.Contains(t, out, "error: unknown command")
	assert.NotContains(t, out, "never reached")
}

func TestRunEOF(t *testing.T) {
	s := newTestSession(t)
	var buf bytes.Buffer
	err := Run(context.Background(), s, &scriptReader{}, &buf)
	require.NoError(t, err)
}

func TestRunCancelledContext(t *testing.T) {
	s := newTestSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := Run(ctx, s, &scriptReader{lines: []string{"stats"}}, &buf)
	assert.ErrorIs(t, err, context.Canceled)
}
