// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the axon CLI.
//
// Output degrades to plain, prefix-tagged text when stdout is not a
// terminal or NO_COLOR is set, so bench reports and console transcripts
// stay grep-able in pipes and CI logs.
package ux

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text
	ColorWarningGold = lipgloss.Color("#F4D03F")
	ColorErrorRed    = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorTealBright),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarningGold),
	Error:     lipgloss.NewStyle().Foreground(ColorErrorRed),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon provides themed status glyphs.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with its semantic styling applied.
func (i Icon) Render() string {
	if IsPlain() {
		return string(i)
	}
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// plainMode: 0 = auto-detect on first use, 1 = plain, 2 = styled.
var plainMode atomic.Int32

// SetPlain forces plain (true) or styled (false) output, overriding
// terminal detection. The cmd layer wires this to --plain.
func SetPlain(plain bool) {
	if plain {
		plainMode.Store(1)
	} else {
		plainMode.Store(2)
	}
}

// IsPlain reports whether output should avoid color and box drawing.
// Defaults to plain when stdout is not a TTY or NO_COLOR is set.
func IsPlain() bool {
	switch plainMode.Load() {
	case 1:
		return true
	case 2:
		return false
	}
	plain := detectPlain()
	if plain {
		plainMode.Store(1)
	} else {
		plainMode.Store(2)
	}
	return plain
}

func detectPlain() bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return true
	}
	fd := os.Stdout.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// Title prints a styled heading.
func Title(text string) {
	if IsPlain() {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a success message with a checkmark.
func Success(text string) {
	if IsPlain() {
		fmt.Printf("OK: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message to stderr in plain mode, styled to
// stdout otherwise.
func Warning(text string) {
	if IsPlain() {
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message.
func Error(text string) {
	if IsPlain() {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational line.
func Info(text string) {
	if IsPlain() {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text; suppressed entirely in plain mode to
// keep machine output minimal.
func Muted(text string) {
	if IsPlain() {
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// Box prints titled content in a rounded box, or as "title: content"
// lines in plain mode.
func Box(title, content string) {
	if IsPlain() {
		fmt.Printf("%s:\n%s\n", title, content)
		return
	}
	boxStyle := Styles.Box.Width(64)
	fmt.Println(boxStyle.Render(Styles.Title.Render(title) + "\n" + content))
}

// KeyValue formats an aligned "key  value" row for report bodies.
func KeyValue(key, value string) string {
	if IsPlain() {
		return fmt.Sprintf("%-24s %s", key, value)
	}
	return fmt.Sprintf("%s %s", Styles.Muted.Render(fmt.Sprintf("%-24s", key)), value)
}
