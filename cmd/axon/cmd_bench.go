// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/axon/cmd/axon/internal/bench"
	"github.com/AleutianAI/axon/diagnostics"
	"github.com/AleutianAI/axon/pkg/ux"
)

// --- Bench Command Variables ---
var (
	benchScale       int
	benchProducers   int
	benchCycles      int
	benchWALDir      string
	benchArchiveDir  string
	benchMetricsAddr string
	benchTrace       bool
	benchBlackbox    bool

	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Run the substrate benchmark suite",
		Long: `Exercises every layer at the configured scale: token encode and
coordinate round-trips, connection learning updates, graph assembly
and signal propagation, concurrent stream writes under sampling,
intuition cycles, and (when an archive dir is set) a cold-storage
round-trip. Prints a per-phase latency and throughput report.`,
		RunE: runBench,
	}
)

func init() {
	benchCmd.Flags().IntVar(&benchScale, "scale", 100_000,
		"Entity count per phase")
	benchCmd.Flags().IntVar(&benchProducers, "producers", runtime.NumCPU(),
		"Concurrent stream writers")
	benchCmd.Flags().IntVar(&benchCycles, "cycles", 100,
		"Intuition engine cycles")
	benchCmd.Flags().StringVar(&benchWALDir, "wal-dir", "",
		"Enable the write-ahead log under this directory (overrides config)")
	benchCmd.Flags().StringVar(&benchArchiveDir, "archive-dir", "",
		"Enable the archive round-trip phase (overrides config)")
	benchCmd.Flags().StringVar(&benchMetricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address during the run (e.g. :9090)")
	benchCmd.Flags().BoolVar(&benchTrace, "trace", false,
		"Initialize OpenTelemetry per the config's telemetry section")
	benchCmd.Flags().BoolVar(&benchBlackbox, "blackbox", false,
		"Dump the flight recorder after the run")
}

func runBench(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var metrics diagnostics.Metrics = diagnostics.NewNoOpMetrics()
	if benchTrace || benchMetricsAddr != "" {
		tcfg := config.Telemetry
		if benchMetricsAddr != "" {
			tcfg.MetricExporter = "prometheus"
		}
		if !benchTrace {
			tcfg.TraceExporter = "none"
		}
		shutdown, err := diagnostics.Init(ctx, tcfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
		metrics = diagnostics.NewMetrics(benchMetricsAddr != "")
	}

	if benchMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", diagnostics.MetricsHandler())
		srv := &http.Server{Addr: benchMetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", benchMetricsAddr)
	}

	walDir := benchWALDir
	if walDir == "" {
		walDir = config.WALDir
	}
	archiveDir := benchArchiveDir
	if archiveDir == "" {
		archiveDir = config.ArchiveDir
	}

	suite, err := bench.New(bench.Options{
		Scale:      benchScale,
		Producers:  benchProducers,
		Cycles:     benchCycles,
		WALDir:     walDir,
		ArchiveDir: archiveDir,
		Logger:     logger.Slog(),
		Metrics:    metrics,
	})
	if err != nil {
		return err
	}
	defer func() { _ = suite.Close() }()

	ux.Title(fmt.Sprintf("axon bench  scale=%d producers=%d", benchScale, benchProducers))

	report, err := suite.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println(report.Render())

	if benchBlackbox {
		ux.Title("flight recorder")
		if err := suite.Recorder().Dump(os.Stdout); err != nil {
			return err
		}
	}
	return nil
}
