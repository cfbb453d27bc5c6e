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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/AleutianAI/CohortIQ/pkg/secrets"
	"github.com/AleutianAI/CohortIQ/pkg/ux"
	"github.com/AleutianAI/CohortIQ/services/analytics"
	"github.com/AleutianAI/CohortIQ/services/analytics/ingest"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var errNoSecret = errors.New("no JWT secret configured: set server.jwt_secret or COHORTIQ_JWT_SECRET")

// =============================================================================
// generate
// =============================================================================

func runGenerate(cmd *cobra.Command, args []string) error {
	opts := ingest.SampleOptions{Seed: generateSeed}
	if generateStart != "" {
		start, err := ingest.ParseDate(generateStart)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		opts.Start = start
	}

	toStdout := generateOut == "-"
	if !toStdout && ux.ShouldShowProgress() {
		bar := progressbar.NewOptions(len(ingest.SampleCohortSizes),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("generating cohorts"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		opts.OnCohort = func(done int) { _ = bar.Set(done) }
		defer bar.Finish()
	}

	records := ingest.GenerateSample(opts)

	if toStdout {
		return ingest.WriteCSV(cmd.OutOrStdout(), records)
	}
	if err := writeCSVFile(generateOut, records); err != nil {
		return err
	}

	users := make(map[string]struct{})
	for _, r := range records {
		users[r.UserID] = struct{}{}
	}
	ux.Success(fmt.Sprintf("generated %d rows for %d users across %d cohorts: %s",
		len(records), len(users), len(ingest.SampleCohortSizes), generateOut))
	return nil
}

func writeCSVFile(path string, records []ingest.RawRecord) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return ingest.WriteCSV(f, records)
}

// =============================================================================
// token
// =============================================================================

func runToken(cmd *cobra.Command, args []string) error {
	secret := secrets.New(appCfg.Server.JWTSecret)
	if secret.IsZero() {
		return errNoSecret
	}
	var token string
	err := secret.Use(func(key []byte) error {
		var err error
		token, err = analytics.IssueToken(tokenSubject, tokenTTL, key)
		return err
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}

// =============================================================================
// version
// =============================================================================

func runVersion(cmd *cobra.Command, args []string) {
	printVersion(cmd.OutOrStdout())
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "cohortiq %s (%s %s/%s)\n", analytics.ServiceVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
