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

	"github.com/AleutianAI/axon/pkg/logging"
	"github.com/AleutianAI/axon/pkg/ux"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	logDir     string
	plainMode  bool

	config Config
	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "axon",
		Short: "An in-memory spatial knowledge substrate",
		Long: `Axon is a fixed-layout graph of token records connected by
learning-capable edges, overlaid with a concurrent experience stream
that the intuition engine samples for patterns. This CLI benchmarks
the substrate, drives it interactively, and seeds it from concept
libraries.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if plainMode {
				ux.SetPlain(true)
			}

			// --config makes the file mandatory; the default
			// axon.yaml is best-effort.
			required := cmd.Flags().Changed("config") ||
				cmd.InheritedFlags().Changed("config")
			var err error
			config, err = loadConfig(configPath, required)
			if err != nil {
				return err
			}

			if logLevel != "" {
				config.Log.Level = logLevel
			}
			if logDir != "" {
				config.Log.Dir = logDir
			}
			logger = logging.New(logging.Config{
				Level:   logging.ParseLevel(config.Log.Level),
				LogDir:  config.Log.Dir,
				Service: "axon",
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the axon version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("axon %s\n", version)
		},
	}
)

// init wires flags and the command tree.
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "axon.yaml",
		"Path to the axon configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, or error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"Directory for JSON log files (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&plainMode, "plain", false,
		"Disable colored and boxed output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(seedCmd)
}
