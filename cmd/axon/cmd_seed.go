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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/axon/bootstrap"
	"github.com/AleutianAI/axon/graph"
	"github.com/AleutianAI/axon/grid"
	"github.com/AleutianAI/axon/pkg/ux"
)

// --- Seed Command Variables ---
var (
	seedWatch bool

	seedCmd = &cobra.Command{
		Use:   "seed <library.yaml>",
		Short: "Validate and apply a concept library",
		Long: `Loads a concept library, applies it to a fresh substrate, and
reports what it would contribute. With --watch, stays running and
re-applies the library whenever the file changes, which is the loop
used when authoring libraries.`,
		Args: cobra.ExactArgs(1),
		RunE: runSeed,
	}
)

func init() {
	seedCmd.Flags().BoolVar(&seedWatch, "watch", false,
		"Re-apply the library on every file change until interrupted")
}

func runSeed(cmd *cobra.Command, args []string) error {
	path := args[0]

	g := graph.New(graph.WithLogger(logger.Slog()))
	gr, err := grid.New(grid.DefaultConfig())
	if err != nil {
		return err
	}

	lib, err := bootstrap.Load(path)
	if err != nil {
		return err
	}
	result, err := lib.Apply(g, gr)
	if err != nil {
		return err
	}
	printSeedResult(path, result)

	if !seedWatch {
		return nil
	}

	watcher, err := bootstrap.NewWatcher(path, g, gr, &bootstrap.WatcherOptions{
		Logger: logger.Slog(),
		OnApply: func(res bootstrap.Result, err error) {
			if err != nil {
				ux.Error(fmt.Sprintf("reload %s: %v", path, err))
				return
			}
			printSeedResult(path, res)
		},
	})
	if err != nil {
		return err
	}
	defer watcher.Stop()

	ux.Info("watching " + path + " (ctrl-c to stop)")
	if err := watcher.Start(cmd.Context()); err != nil {
		return err
	}
	<-cmd.Context().Done()
	return nil
}

func printSeedResult(path string, res bootstrap.Result) {
	ux.Success(fmt.Sprintf("%s: %d concepts, %d nodes added, %d indexed, %d edges added, %d existing",
		path, res.Concepts, res.NodesAdded, res.TokensIndexed,
		res.EdgesAdded, res.EdgesExisting))
}
