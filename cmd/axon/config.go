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
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/axon/diagnostics"
)

// Config is the optional axon.yaml configuration. Flags override file
// values; the file overrides built-in defaults.
type Config struct {
	// Log configures the process logger.
	Log struct {
		// Level is debug, info, warn, or error.
		Level string `yaml:"level"`

		// Dir enables JSON file logging when set.
		Dir string `yaml:"dir"`
	} `yaml:"log"`

	// WALDir enables the file-backed write-ahead log when set.
	WALDir string `yaml:"wal_dir"`

	// ArchiveDir is where cold experience segments land.
	ArchiveDir string `yaml:"archive_dir"`

	// SeedLibrary is a bootstrap YAML applied at console startup.
	SeedLibrary string `yaml:"seed_library"`

	// Telemetry configures tracing and metrics export.
	Telemetry diagnostics.TelemetryConfig `yaml:"telemetry"`
}

// defaultAppConfig returns the built-in defaults: stderr logging at
// info, no WAL, no archive, telemetry off.
func defaultAppConfig() Config {
	var cfg Config
	cfg.Log.Level = "info"
	cfg.Telemetry = diagnostics.DefaultTelemetryConfig()
	cfg.Telemetry.TraceExporter = "none"
	cfg.Telemetry.MetricExporter = "none"
	return cfg
}

// loadConfig reads path over the defaults. A missing file at the
// default location is not an error; an unreadable or malformed file is.
func loadConfig(path string, required bool) (Config, error) {
	cfg := defaultAppConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
