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
	"strconv"
	"strings"

	"github.com/AleutianAI/CohortIQ/pkg/ux"
	"github.com/AleutianAI/CohortIQ/services/analytics/abtest"
	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var errNotInteractive = errors.New("--interactive needs a terminal")

func runABTest(cmd *cobra.Command, args []string) error {
	d, err := loadCSV(args[0], nowFunc())
	if err != nil {
		return err
	}
	curve := cohort.AverageCurve(cohort.AnalyzeCohort(d.validation.Rows).RetentionMatrix)

	params := abtest.Params{
		RetentionCurve: curve,
		TargetWeek:     abTargetWeek,
		Delta:          abDelta,
		Alpha:          abAlpha,
		Power:          abPower,
		ARPU:           abARPU,
	}
	if abInteractive {
		if !ux.IsInteractive() {
			return errNotInteractive
		}
		if err := promptABTest(&params); err != nil {
			return err
		}
	}

	params = appCfg.ABTestParams(params)
	if err := params.Validate(); err != nil {
		return err
	}
	result := abtest.RunABTestSimulation(params)

	if abJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	renderABTest(result)
	return nil
}

// promptABTest asks for the simulation parameters, prefilled with the
// flag values.
func promptABTest(p *abtest.Params) error {
	week := strconv.Itoa(p.TargetWeek)
	delta := formatFloat(p.Delta)
	alpha := formatFloat(firstNonZero(p.Alpha, appCfg.Policy.ABTest.Alpha))
	power := formatFloat(firstNonZero(p.Power, appCfg.Policy.ABTest.Power))

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Target week").
				Description("Week whose retention the treatment lifts").
				Value(&week).
				Validate(validateInt(0, len(p.RetentionCurve)-1)),
			huh.NewInput().
				Title("Retention lift (percentage points)").
				Value(&delta).
				Validate(validateFloat(0, 100)),
			huh.NewInput().
				Title("Significance level").
				Value(&alpha).
				Validate(validateFloat(0, 1)),
			huh.NewInput().
				Title("Power").
				Value(&power).
				Validate(validateFloat(0, 1)),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	p.TargetWeek, _ = strconv.Atoi(strings.TrimSpace(week))
	p.Delta, _ = strconv.ParseFloat(strings.TrimSpace(delta), 64)
	p.Alpha, _ = strconv.ParseFloat(strings.TrimSpace(alpha), 64)
	p.Power, _ = strconv.ParseFloat(strings.TrimSpace(power), 64)
	return nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func firstNonZero(v, fallback float64) float64 {
	if v != 0 {
		return v
	}
	return fallback
}

// validateInt accepts integers in [lo, hi].
func validateInt(lo, hi int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return errors.New("enter a whole number")
		}
		if n < lo || n > hi {
			return fmt.Errorf("must be between %d and %d", lo, hi)
		}
		return nil
	}
}

// validateFloat accepts numbers in the open interval (lo, hi).
func validateFloat(lo, hi float64) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return errors.New("enter a number")
		}
		if v <= lo || v >= hi {
			return fmt.Errorf("must be between %s and %s", formatFloat(lo), formatFloat(hi))
		}
		return nil
	}
}
