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
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/axon/cmd/axon/internal/console"
)

// --- Console Command Variables ---
var (
	consoleSeed string

	consoleCmd = &cobra.Command{
		Use:   "console",
		Short: "Interactive console over a live substrate",
		Long: `Opens a REPL with one in-memory substrate: create tokens, wire
edges through the guardian, propagate signals, emit and sample
experience events, and run intuition cycles. Input history is
available on a TTY; piped input runs as a script.`,
		RunE: runConsole,
	}
)

func init() {
	consoleCmd.Flags().StringVar(&consoleSeed, "seed", "",
		"Concept library YAML applied before the first prompt (overrides config)")
}

func runConsole(cmd *cobra.Command, args []string) error {
	seed := consoleSeed
	if seed == "" {
		seed = config.SeedLibrary
	}

	session, err := console.NewSession(console.Config{
		Logger:      logger.Slog(),
		SeedLibrary: seed,
	})
	if err != nil {
		return err
	}

	reader := console.NewInputReader(100)
	return console.Run(cmd.Context(), session, reader, os.Stdout)
}
