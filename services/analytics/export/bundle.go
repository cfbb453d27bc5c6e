// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes analysis results out of the process: as an
// indented JSON report on disk, or as time series points in InfluxDB.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/CohortIQ/services/analytics/ingest"
	"github.com/AleutianAI/CohortIQ/services/analytics/pipeline"
)

// ReportName is the base name of exported reports.
const ReportName = "cohort-summary"

// ErrNoPayload indicates an export without an analysis.
var ErrNoPayload = errors.New("nothing to export")

// Bundle is the exported report.
type Bundle struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Validation  *ingest.Stats     `json:"validation,omitempty"`
	Warnings    []ingest.Warning  `json:"warnings,omitempty"`
	Analysis    *pipeline.Payload `json:"analysis"`
}

// NewBundle wraps a payload. validation may be nil.
func NewBundle(p *pipeline.Payload, validation *ingest.Result, now time.Time) Bundle {
	b := Bundle{GeneratedAt: now.UTC(), Analysis: p}
	if validation != nil {
		stats := validation.Stats
		b.Validation = &stats
		b.Warnings = validation.Warnings
	}
	return b
}

// WriteJSON encodes b as indented JSON.
func WriteJSON(w io.Writer, b Bundle) error {
	if b.Analysis == nil {
		return ErrNoPayload
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// TimestampedFilename returns dir/{name}_{YYYYMMDD_HHMMSS}.json.
func TimestampedFilename(dir, name string, at time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.json", name, at.Format("20060102_150405")))
}

// WriteFile writes b to path, creating parent directories.
func WriteFile(path string, b Bundle) error {
	if b.Analysis == nil {
		return ErrNoPayload
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := WriteJSON(f, b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
