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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/CohortIQ/pkg/ux"
	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/AleutianAI/CohortIQ/services/analytics/export"
	"github.com/AleutianAI/CohortIQ/services/analytics/ingest"
	"github.com/AleutianAI/CohortIQ/services/analytics/ltv"
	"github.com/AleutianAI/CohortIQ/services/analytics/pipeline"
	"github.com/AleutianAI/CohortIQ/services/analytics/source"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	errNoInput = errors.New("no input: pass CSV files or --from-sql")

	errNoValidRows = errors.New("no valid rows")
)

// dataset is one validated input.
type dataset struct {
	name       string
	validation ingest.Result
}

// loadCSV reads and validates one file, reporting row problems.
func loadCSV(path string, now time.Time) (dataset, error) {
	records, err := ingest.ReadCSVFile(path)
	if err != nil {
		return dataset{}, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return validated(name, records, now)
}

func validated(name string, records []ingest.RawRecord, now time.Time) (dataset, error) {
	v := ingest.ValidateRecords(records, now)
	reportValidation(name, &v)
	if !v.Usable() {
		return dataset{}, fmt.Errorf("%s: %w", name, errNoValidRows)
	}
	return dataset{name: name, validation: v}, nil
}

func reportValidation(name string, v *ingest.Result) {
	if v.Stats.Invalid > 0 {
		ux.Warning(fmt.Sprintf("%s: %d of %d rows rejected", name, v.Stats.Invalid, v.Stats.Total))
		for i, e := range v.Errors {
			if i == 5 {
				ux.Warning(fmt.Sprintf("%s: ... %d more", name, len(v.Errors)-i))
				break
			}
			codes := make([]string, len(e.Codes))
			for j, c := range e.Codes {
				codes[j] = string(c)
			}
			ux.Warning(fmt.Sprintf("%s: row %d: %s", name, e.Row, strings.Join(codes, ", ")))
		}
	}
	for _, w := range v.Warnings {
		ux.Warning(fmt.Sprintf("%s: %s (%d users)", name, w.Code, w.Users))
	}
}

// loadSQL reads the configured event table.
func loadSQL(ctx context.Context, since string, now time.Time) (dataset, error) {
	if !appCfg.Source.Enabled() {
		return dataset{}, fmt.Errorf("--from-sql: %w", source.ErrNoDSN)
	}
	var from time.Time
	if since != "" {
		t, err := ingest.ParseDate(since)
		if err != nil {
			return dataset{}, fmt.Errorf("--since: %w", err)
		}
		from = t
	}

	src, err := source.Open(appCfg.Source)
	if err != nil {
		return dataset{}, err
	}
	defer src.Close()

	spin := ux.NewSpinner("loading events from " + appCfg.Source.Table)
	spin.Start()
	records, err := src.Load(ctx, from)
	spin.Stop()
	if err != nil {
		return dataset{}, err
	}
	logger.Info("loaded events from sql", "driver", appCfg.Source.Driver, "rows", len(records))
	return validated(appCfg.Source.Table, records, now)
}

// =============================================================================
// analyze
// =============================================================================

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	now := nowFunc()

	var inputs []dataset
	switch {
	case analyzeFromSQL:
		d, err := loadSQL(ctx, analyzeSince, now)
		if err != nil {
			return err
		}
		inputs = append(inputs, d)
	case len(args) == 0:
		return errNoInput
	default:
		for _, path := range args {
			d, err := loadCSV(path, now)
			if err != nil {
				return err
			}
			inputs = append(inputs, d)
		}
	}

	var sink *export.InfluxSink
	if analyzeInflux {
		s, err := export.NewInfluxSink(appCfg.Influx, logger.Slog())
		if err != nil {
			return err
		}
		defer s.Close()
		sink = s
	}

	analyzer := pipeline.NewAnalyzer(appCfg.AnalyzerConfig(func() time.Time { return now }), nil)

	var bar *progressbar.ProgressBar
	if len(inputs) > 1 && ux.ShouldShowProgress() && !analyzeJSON {
		bar = progressbar.NewOptions(len(inputs),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("analyzing"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	bundles := make([]export.Bundle, 0, len(inputs))
	for _, in := range inputs {
		payload, err := analyzer.Analyze(ctx, in.validation.Rows)
		if err != nil {
			return fmt.Errorf("%s: %w", in.name, err)
		}
		b := export.NewBundle(payload, &in.validation, now)
		bundles = append(bundles, b)

		if analyzeOut != "" {
			path := export.TimestampedFilename(analyzeOut, in.name+"_"+export.ReportName, now)
			if err := export.WriteFile(path, b); err != nil {
				return err
			}
			if !analyzeJSON {
				ux.Success("report written to " + path)
			}
		}
		if sink != nil {
			write := func() error {
				_, err := sink.Write(ctx, payload)
				return err
			}
			if analyzeJSON {
				err = write()
			} else {
				err = ux.WithSpinner("writing "+in.name+" retention to InfluxDB", write)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", in.name, err)
			}
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	out := cmd.OutOrStdout()
	if analyzeJSON {
		if len(bundles) == 1 {
			return export.WriteJSON(out, bundles[0])
		}
		return writeJSON(out, bundles)
	}
	for i, b := range bundles {
		renderReport(inputs[i].name, b)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// ltv
// =============================================================================

func runLTV(cmd *cobra.Command, args []string) error {
	d, err := loadCSV(args[0], nowFunc())
	if err != nil {
		return err
	}

	opts := ltv.Options{ARPU: appCfg.Analysis.ARPU, MaxWeek: appCfg.Analysis.MaxWeek}
	if ltvARPU != 0 {
		opts.ARPU = ltvARPU
	}
	if ltvMaxWeek != 0 {
		opts.MaxWeek = ltvMaxWeek
	}
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("ltv: %w", err)
	}

	matrix := cohort.AnalyzeCohort(d.validation.Rows).RetentionMatrix
	result := ltv.NewEngine(appCfg.Policy.LTV).Predict(matrix, opts)

	if ltvJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	renderLTV(result)
	return nil
}
