// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.name); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(42), slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := tt.level.toSlogLevel(); got != tt.want {
			t.Errorf("toSlogLevel(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo {
		t.Errorf("default level = %v, want LevelInfo", cfg.Level)
	}
	if cfg.Service != "axon" {
		t.Errorf("default service = %q, want axon", cfg.Service)
	}
	if cfg.LogDir != "" || cfg.JSON || cfg.Quiet || cfg.Exporter != nil {
		t.Error("default config enables optional destinations")
	}
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{
		Level:   LevelDebug,
		LogDir:  dir,
		Service: "bench",
		Quiet:   true,
	})
	logger.Info("ring wrapped", "slot", 7)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	name := "bench_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `"msg":"ring wrapped"`) {
		t.Errorf("log file missing message: %s", text)
	}
	if !strings.Contains(text, `"service":"bench"`) {
		t.Errorf("log file missing service attribute: %s", text)
	}
	if !strings.Contains(text, `"slot":7`) {
		t.Errorf("log file missing attribute: %s", text)
	}
}

func TestNew_UnwritableLogDirSkipsFile(t *testing.T) {
	// Construction must not fail even when the directory cannot exist.
	logger := New(Config{LogDir: string([]byte{0}), Quiet: true})
	logger.Info("still alive")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestLogger_With(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Service: "axon", Quiet: true})
	defer logger.Close()

	child := logger.With("session", "s-1")
	child.Info("child message")

	if child.file != logger.file {
		t.Error("child logger does not share the file handle")
	}
}

func TestLogger_Exporter(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Service:  "console",
		Quiet:    true,
		Exporter: exporter,
	})

	logger.Debug("filtered out")
	logger.Info("first", "k", 1)
	logger.Error("second")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Export is async; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	var entries []LogEntry
	for time.Now().Before(deadline) {
		entries = exporter.Entries()
		if len(entries) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(entries) != 2 {
		t.Fatalf("exported %d entries, want 2", len(entries))
	}
	found := map[string]bool{}
	for _, e := range entries {
		found[e.Message] = true
		if e.Service != "console" {
			t.Errorf("entry service = %q, want console", e.Service)
		}
	}
	if !found["first"] || !found["second"] {
		t.Errorf("unexpected entry set: %v", found)
	}
}

func TestBufferedExporter_Drain(t *testing.T) {
	exporter := NewBufferedExporter()
	for i := 0; i < 3; i++ {
		if err := exporter.Export(context.Background(), LogEntry{Message: "m"}); err != nil {
			t.Fatalf("Export: %v", err)
		}
	}
	if got := len(exporter.Drain()); got != 3 {
		t.Errorf("Drain returned %d entries, want 3", got)
	}
	if got := len(exporter.Entries()); got != 0 {
		t.Errorf("buffer holds %d entries after Drain, want 0", got)
	}
}

func TestBufferedExporter_Concurrent(t *testing.T) {
	exporter := NewBufferedExporter()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = exporter.Export(context.Background(), LogEntry{Message: "m"})
			}
		}()
	}
	wg.Wait()
	if got := len(exporter.Entries()); got != 800 {
		t.Errorf("collected %d entries, want 800", got)
	}
}

func TestNop(t *testing.T) {
	// Must accept records at every level without output or panic.
	logger := Nop()
	logger.Debug("d")
	logger.Info("i", "k", "v")
	logger.Warn("w")
	logger.Error("e")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/logs"); got != filepath.Join(home, "logs") {
		t.Errorf("expandPath(~/logs) = %q", got)
	}
	if got := expandPath("/var/log/axon"); got != "/var/log/axon" {
		t.Errorf("expandPath left absolute path changed: %q", got)
	}
}

func TestArgsToMap(t *testing.T) {
	m := argsToMap([]any{"a", 1, "b", "two", 3, "dangling-key-skipped", "c"})
	if m["a"] != 1 || m["b"] != "two" {
		t.Errorf("argsToMap = %v", m)
	}
	if _, ok := m["c"]; ok {
		t.Error("trailing key without value should be dropped")
	}
}
