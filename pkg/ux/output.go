// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the CohortIQ CLI.
package ux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Palette. Retention shades run from cold (low) to bright (high).
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorDeepSea     = lipgloss.Color("#104855")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Header    lipgloss.Style
	Cell      lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Header:    lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary).Padding(0, 1),
	Cell:      lipgloss.NewStyle().Padding(0, 1),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
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

// Title prints a styled title. Silent in machine mode.
func Title(text string) {
	if GetPersonality() == PersonalityMachine {
		return
	}
	fmt.Fprintln(stdout(), Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func Success(text string) {
	switch GetPersonality() {
	case PersonalityMachine:
		fmt.Fprintf(stdout(), "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(stdout(), "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(stdout(), "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message to stderr
func Warning(text string) {
	switch GetPersonality() {
	case PersonalityMachine:
		fmt.Fprintf(stderr(), "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(stderr(), "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(stderr(), "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message to stderr
func Error(text string) {
	switch GetPersonality() {
	case PersonalityMachine:
		fmt.Fprintf(stderr(), "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(stderr(), "%s %s\n", IconError, text)
	default:
		fmt.Fprintf(stderr(), "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func Info(text string) {
	if GetPersonality() == PersonalityMachine {
		fmt.Fprintln(stdout(), text)
		return
	}
	fmt.Fprintf(stdout(), "%s %s\n", Styles.Muted.Render("│"), text)
}

// KeyValue prints aligned label/value pairs. Machine mode emits
// key=value lines.
func KeyValue(pairs [][2]string) {
	if GetPersonality() == PersonalityMachine {
		for _, p := range pairs {
			fmt.Fprintf(stdout(), "%s=%s\n", p[0], p[1])
		}
		return
	}
	width := 0
	for _, p := range pairs {
		width = max(width, lipgloss.Width(p[0]))
	}
	label := Styles.Muted.Width(width + 2)
	for _, p := range pairs {
		fmt.Fprintf(stdout(), "%s%s\n", label.Render(p[0]), Styles.Bold.Render(p[1]))
	}
}

// Box prints text in a rounded box
func Box(title, content string) {
	if GetPersonality() == PersonalityMachine {
		fmt.Fprintf(stdout(), "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(stdout(), Styles.Box.Render(Styles.Title.Render(title)+"\n"+content))
}

// CellStyler styles one body cell. row and col are zero-based body
// coordinates.
type CellStyler func(row, col int, value string) lipgloss.Style

// Table prints rows under headers.
//
// Full mode draws a rounded lipgloss table and applies styler to body
// cells when non-nil. Minimal mode draws the table without shading.
// Machine mode writes tab-separated lines, header first.
func Table(headers []string, rows [][]string, styler CellStyler) {
	fmt.Fprintln(stdout(), RenderTable(headers, rows, styler))
}

// RenderTable returns what Table prints, without the trailing newline.
func RenderTable(headers []string, rows [][]string, styler CellStyler) string {
	level := GetPersonality()
	if level == PersonalityMachine {
		var b strings.Builder
		b.WriteString(strings.Join(headers, "\t"))
		for _, row := range rows {
			b.WriteByte('\n')
			b.WriteString(strings.Join(row, "\t"))
		}
		return b.String()
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorTealDeep)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return Styles.Header
			}
			if styler == nil || level != PersonalityFull || row >= len(rows) || col >= len(rows[row]) {
				return Styles.Cell
			}
			return styler(row, col, rows[row][col]).Padding(0, 1)
		})
	return t.Render()
}

// RetentionStyle shades a retention percentage from deep sea (low) to
// bright teal (high).
func RetentionStyle(pct float64) lipgloss.Style {
	switch {
	case pct >= 60:
		return lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true)
	case pct >= 40:
		return lipgloss.NewStyle().Foreground(ColorTealPrimary)
	case pct >= 20:
		return lipgloss.NewStyle().Foreground(ColorTealDeep)
	default:
		return lipgloss.NewStyle().Foreground(ColorSlate)
	}
}

// RiskStyle colors a churn risk level name.
func RiskStyle(level string) lipgloss.Style {
	switch level {
	case "CRITICAL":
		return Styles.Error.Bold(true)
	case "HIGH":
		return Styles.Error
	case "MEDIUM":
		return Styles.Warning
	default:
		return Styles.Success
	}
}
