// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command cohortiq analyzes user retention by signup cohort.
//
// Usage:
//
//	cohortiq generate -o sample.csv
//	cohortiq analyze sample.csv
//	cohortiq analyze sample.csv --json > report.json
//	cohortiq ltv sample.csv --arpu 4.99
//	cohortiq abtest sample.csv --target-week 4 --delta 5
//	cohortiq serve --addr :8080
//	cohortiq watch ./drop
//
// Configuration is read from ~/.cohortiq/config.yaml (created on first
// run) or --config, with COHORTIQ_* environment overrides.
package main

import (
	"os"

	"github.com/AleutianAI/CohortIQ/pkg/ux"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
}
