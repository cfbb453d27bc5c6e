// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/CohortIQ/services/analytics/export"
	"github.com/AleutianAI/CohortIQ/services/analytics/ingest"
	"github.com/AleutianAI/CohortIQ/services/analytics/pipeline"
)

// ErrNoValidRows indicates a file in which every row was rejected.
var ErrNoValidRows = errors.New("no valid rows")

// Processor turns one CSV file into a JSON report.
type Processor struct {
	Analyzer *pipeline.Analyzer

	// OutDir receives reports. Empty means next to the input file.
	OutDir string

	// Now stamps reports and bounds future dates. Nil means time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Process reads, validates, analyzes and exports path.
//
// Outputs:
//   - string: The report path.
//   - error: A read, validation or export failure.
func (p *Processor) Process(ctx context.Context, path string) (string, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("file", filepath.Base(path)))

	records, err := ingest.ReadCSVFile(path)
	if err != nil {
		return "", err
	}
	v := ingest.ValidateRecords(records, now())
	if !v.Usable() {
		return "", fmt.Errorf("%s: %w (%d rejected)", path, ErrNoValidRows, v.Stats.Invalid)
	}
	if v.Stats.Invalid > 0 {
		logger.Warn("rows rejected", "invalid", v.Stats.Invalid, "total", v.Stats.Total)
	}

	payload, err := p.Analyzer.Analyze(ctx, v.Rows)
	if err != nil {
		return "", fmt.Errorf("analyze %s: %w", path, err)
	}

	dir := p.OutDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := export.TimestampedFilename(dir, name+"_"+export.ReportName, now())
	if err := export.WriteFile(out, export.NewBundle(payload, &v, now())); err != nil {
		return "", err
	}
	logger.Info("report written", "report", out, "rows", v.Stats.Valid)
	return out, nil
}

// Handle processes each path and logs failures. It is a Handler.
func (p *Processor) Handle(ctx context.Context, paths []string) {
	for _, path := range paths {
		if _, err := p.Process(ctx, path); err != nil {
			logger := p.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Error("process file", "file", path, "error", err)
		}
	}
}
