// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bootstrap

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/axon/graph"
	"github.com/AleutianAI/axon/grid"
)

// ApplyHandler observes each reload attempt. err is non-nil when the
// file failed to load or apply; res is the partial result in that case.
type ApplyHandler func(res Result, err error)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// DebounceWindow is how long to wait for further writes before
	// reloading. Editors often emit several events per save.
	// Default: 250ms.
	DebounceWindow time.Duration

	// OnApply is called after every reload attempt. Optional.
	OnApply ApplyHandler

	// Logger receives reload records. Defaults to slog.Default.
	Logger *slog.Logger
}

// DefaultWatcherOptions returns sensible defaults.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{DebounceWindow: 250 * time.Millisecond}
}

// Watcher reapplies a library file whenever it changes on disk.
//
// # Description
//
// The watcher observes the file's parent directory (editors replace
// files by rename, which a direct file watch would lose), debounces
// bursts of events, and then runs Load + Apply. Apply's idempotency
// makes reloads converge: unchanged concepts are no-ops, edits land.
//
// # Thread Safety
//
// Safe for concurrent use. Reloads run on a single goroutine.
type Watcher struct {
	path     string
	graph    *graph.Graph
	grid     *grid.Grid
	debounce time.Duration
	onApply  ApplyHandler
	logger   *slog.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool

	reloads  atomic.Int64
	failures atomic.Int64
}

// NewWatcher creates a watcher for one library file. The grid is
// optional, matching Apply.
func NewWatcher(path string, g *graph.Graph, gr *grid.Grid, opts *WatcherOptions) (*Watcher, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if opts == nil {
		defaults := DefaultWatcherOptions()
		opts = &defaults
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = 250 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		path:     abs,
		graph:    g,
		grid:     gr,
		debounce: opts.DebounceWindow,
		onApply:  opts.OnApply,
		logger:   logger.With(slog.String("component", "bootstrap")),
		watcher:  fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. It returns once the directory watch is
// registered; reloads happen on a background goroutine until the
// context ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

// Reloads returns how many reloads completed, successful or not.
func (w *Watcher) Reloads() int64 { return w.reloads.Load() }

// Failures returns how many reloads failed to load or apply.
func (w *Watcher) Failures() int64 { return w.failures.Load() }

func (w *Watcher) run(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("library watch error", slog.Any("error", err))

		case <-fire:
			timer = nil
			fire = nil
			w.reload()
		}
	}
}

// reload loads and applies the current file contents.
func (w *Watcher) reload() {
	w.reloads.Add(1)

	lib, err := Load(w.path)
	var res Result
	if err == nil {
		res, err = lib.Apply(w.graph, w.grid)
	}

	if err != nil {
		w.failures.Add(1)
		w.logger.Warn("library reload failed",
			slog.String("path", w.path),
			slog.Any("error", err))
	} else {
		w.logger.Info("library reloaded",
			slog.String("path", w.path),
			slog.Int("concepts", res.Concepts),
			slog.Int("nodes_added", res.NodesAdded),
			slog.Int("edges_added", res.EdgesAdded))
	}

	if w.onApply != nil {
		w.onApply(res, err)
	}
}
