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
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel defines the richness of CLI output
type PersonalityLevel string

const (
	// PersonalityFull enables colors, boxes, heat-shaded tables and spinners
	PersonalityFull PersonalityLevel = "full"

	// PersonalityMinimal keeps icons and plain tables, no color shading
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine outputs tab-separated text for scripts
	PersonalityMachine PersonalityLevel = "machine"
)

// EnvPersonality overrides the detected level.
const EnvPersonality = "COHORTIQ_PERSONALITY"

var (
	currentLevel  = PersonalityFull
	currentOut    io.Writer = os.Stdout
	currentErr    io.Writer = os.Stderr
	personalityMu sync.RWMutex
)

// GetPersonality returns the current level
func GetPersonality() PersonalityLevel {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return currentLevel
}

// SetPersonality updates the current level
func SetPersonality(level PersonalityLevel) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentLevel = level
}

// SetOutput redirects stdout and stderr output. Nil restores the
// process streams.
func SetOutput(out, errOut io.Writer) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	currentOut = out
	currentErr = errOut
}

func stdout() io.Writer {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return currentOut
}

func stderr() io.Writer {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return currentErr
}

// ParsePersonalityLevel converts a string to PersonalityLevel. Unknown
// values select PersonalityFull.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal", "min", "m", "plain":
		return PersonalityMinimal
	case "machine", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityFull
	}
}

// InitPersonality picks the level from COHORTIQ_PERSONALITY, falling
// back to machine output when stdout is not a terminal.
func InitPersonality() {
	if envLevel := os.Getenv(EnvPersonality); envLevel != "" {
		SetPersonality(ParsePersonalityLevel(envLevel))
		return
	}
	if !IsTerminal(os.Stdout) {
		SetPersonality(PersonalityMachine)
		return
	}
	SetPersonality(PersonalityFull)
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive reports whether prompts may be shown.
func IsInteractive() bool {
	return GetPersonality() != PersonalityMachine && IsTerminal(os.Stdin) && IsTerminal(os.Stdout)
}

// ShouldShowProgress reports whether spinners and progress bars render.
func ShouldShowProgress() bool {
	return GetPersonality() != PersonalityMachine
}
