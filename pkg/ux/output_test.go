// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

// capture runs f at level with stdout and stderr redirected.
func capture(t *testing.T, level PersonalityLevel, f func()) (string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	prev := GetPersonality()
	SetPersonality(level)
	SetOutput(&out, &errOut)
	t.Cleanup(func() {
		SetPersonality(prev)
		SetOutput(nil, nil)
	})
	f()
	return out.String(), errOut.String()
}

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconBullet} {
		if !strings.Contains(icon.Render(), string(icon)) {
			t.Errorf("%q.Render() lost the glyph", icon)
		}
	}
}

// =============================================================================
// Message Tests
// =============================================================================

func TestMessages_Machine(t *testing.T) {
	out, errOut := capture(t, PersonalityMachine, func() {
		Title("Cohort retention")
		Success("analysis complete")
		Info("3 cohorts")
		Warning("few users")
		Error("bad file")
	})

	assert.Equal(t, "OK: analysis complete\n3 cohorts\n", out)
	assert.Equal(t, "WARN: few users\nERROR: bad file\n", errOut)
}

func TestMessages_Minimal(t *testing.T) {
	out, errOut := capture(t, PersonalityMinimal, func() {
		Success("done")
		Warning("careful")
	})

	assert.Equal(t, "✓ done\n", out)
	assert.Equal(t, "⚠ careful\n", errOut)
}

func TestMessages_FullWritesTitle(t *testing.T) {
	out, _ := capture(t, PersonalityFull, func() {
		Title("Cohort retention")
		Box("Health", "Grade B")
	})
	assert.Contains(t, out, "Cohort retention")
	assert.Contains(t, out, "Grade B")
}

func TestKeyValue(t *testing.T) {
	pairs := [][2]string{{"cohorts", "16"}, {"health score", "72"}}

	out, _ := capture(t, PersonalityMachine, func() { KeyValue(pairs) })
	assert.Equal(t, "cohorts=16\nhealth score=72\n", out)

	out, _ = capture(t, PersonalityMinimal, func() { KeyValue(pairs) })
	assert.Contains(t, out, "health score")
	assert.Contains(t, out, "72")
}

// =============================================================================
// Table Tests
// =============================================================================

func TestRenderTable_Machine(t *testing.T) {
	_, _ = capture(t, PersonalityMachine, func() {})

	got := RenderTable([]string{"cohort", "w0", "w1"}, [][]string{
		{"2024-01-01", "100.0", "50.0"},
		{"2024-01-08", "100.0", ""},
	}, nil)

	want := "cohort\tw0\tw1\n2024-01-01\t100.0\t50.0\n2024-01-08\t100.0\t"
	assert.Equal(t, want, got)
}

func TestRenderTable_Full(t *testing.T) {
	_, _ = capture(t, PersonalityFull, func() {})

	var styled [][2]int
	got := RenderTable([]string{"cohort", "w0"}, [][]string{{"2024-01-01", "100.0"}},
		func(row, col int, value string) lipgloss.Style {
			styled = append(styled, [2]int{row, col})
			return RetentionStyle(100)
		})

	assert.Contains(t, got, "cohort")
	assert.Contains(t, got, "2024-01-01")
	assert.Contains(t, got, "╭")
	assert.NotEmpty(t, styled)
}

func TestTable_WritesToOutput(t *testing.T) {
	out, _ := capture(t, PersonalityMachine, func() {
		Table([]string{"a"}, [][]string{{"1"}}, nil)
	})
	assert.Equal(t, "a\n1\n", out)
}

func TestRiskStyle_KnownLevels(t *testing.T) {
	for _, level := range []string{"CRITICAL", "HIGH", "MEDIUM", "LOW"} {
		if RiskStyle(level).Render(level) == "" {
			t.Errorf("RiskStyle(%q) rendered nothing", level)
		}
	}
}
