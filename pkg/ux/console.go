// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides styled terminal output for the Scout CLI.
//
// Unlike package-level print helpers, all output goes through an
// explicitly constructed Console so components can be tested against
// a buffer and never write to process-wide state.
package ux

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Scout palette - a narrow slice of the Aleutian ocean theme.
var (
	ColorTeal    = lipgloss.Color("#20B9B4") // brand, headings
	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#2C4A54")
	ColorPrivate = lipgloss.Color("#E74C3C") // private repos in tables
	ColorPublic  = lipgloss.Color("#2CD7C7") // public repos in tables
)

// Styles provides the pre-configured lipgloss styles used across commands.
var Styles = struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Info    lipgloss.Style
	Private lipgloss.Style
	Public  lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTeal),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Info:    lipgloss.NewStyle().Foreground(ColorTeal),
	Private: lipgloss.NewStyle().Bold(true).Foreground(ColorPrivate),
	Public:  lipgloss.NewStyle().Bold(true).Foreground(ColorPublic),
}

// Console writes styled, user-facing status output.
//
// Console is distinct from the structured logger: the logger is the
// diagnostic record, the Console is what a human at the terminal sees.
type Console struct {
	w io.Writer
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Stdout returns a Console writing to os.Stdout.
func Stdout() *Console {
	return NewConsole(os.Stdout)
}

// Print writes a plain line.
func (c *Console) Print(format string, args ...any) {
	fmt.Fprintf(c.w, format+"\n", args...)
}

// Success writes a green checkmarked line.
func (c *Console) Success(format string, args ...any) {
	fmt.Fprintln(c.w, Styles.Success.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Warn writes an amber line.
func (c *Console) Warn(format string, args ...any) {
	fmt.Fprintln(c.w, Styles.Warning.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// Error writes a red line.
func (c *Console) Error(format string, args ...any) {
	fmt.Fprintln(c.w, Styles.Error.Render("✗ "+fmt.Sprintf(format, args...)))
}

// Info writes a teal informational line.
func (c *Console) Info(format string, args ...any) {
	fmt.Fprintln(c.w, Styles.Info.Render(fmt.Sprintf(format, args...)))
}

// Title writes a bold heading.
func (c *Console) Title(text string) {
	fmt.Fprintln(c.w, Styles.Title.Render(text))
}

// Muted writes a dimmed line, used for legends and footnotes.
func (c *Console) Muted(text string) {
	fmt.Fprintln(c.w, Styles.Muted.Render(text))
}

// Writer exposes the underlying writer for table rendering.
func (c *Console) Writer() io.Writer {
	return c.w
}
