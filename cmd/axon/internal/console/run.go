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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/axon/pkg/ux"
)

// Run drives the read-eval-print loop until exit, EOF, or context
// cancellation. Output goes to w; input comes from reader, which may
// be a scripted reader in tests.
func Run(ctx context.Context, s *Session, reader InputReader, w io.Writer) error {
	ux.Box("axon console",
		"session "+s.ID+"\ntype help for commands, exit to leave")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("console: read input: %w", err)
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "exit", "quit":
			return nil
		case "clear":
			// Destructive; ask first when a human is attached.
			if !confirmClear() {
				fmt.Fprintln(w, "kept")
				continue
			}
		}

		out, err := s.Execute(ctx, line)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			continue
		}
		if out != "" {
			fmt.Fprintln(w, out)
		}
	}
}

// confirmClear prompts on a TTY; scripted input clears unconditionally.
func confirmClear() bool {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return true
	}
	confirmed := false
	err := huh.NewConfirm().
		Title("Clear the substrate?").
		Description("Drops every node, edge, and grid entry in this session.").
		Affirmative("Clear").
		Negative("Keep").
		Value(&confirmed).
		Run()
	if err != nil {
		return false
	}
	return confirmed
}
