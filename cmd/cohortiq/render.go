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
	"fmt"
	"strconv"

	"github.com/AleutianAI/CohortIQ/pkg/ux"
	"github.com/AleutianAI/CohortIQ/services/analytics/abtest"
	"github.com/AleutianAI/CohortIQ/services/analytics/churn"
	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/AleutianAI/CohortIQ/services/analytics/export"
	"github.com/AleutianAI/CohortIQ/services/analytics/ltv"
	"github.com/charmbracelet/lipgloss"
)

// maxTableWeeks caps the retention table width.
const maxTableWeeks = 12

func pct(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// retentionTable lays the matrix out as one row per cohort and one
// column per week. Weeks a cohort has not reached are blank.
func retentionTable(matrix []cohort.RetentionRow, weeks int) ([]string, [][]string) {
	lastWeek := 0
	var order []string
	cells := map[string]map[int]float64{}
	totals := map[string]int{}
	for _, r := range matrix {
		if _, ok := cells[r.Cohort]; !ok {
			order = append(order, r.Cohort)
			cells[r.Cohort] = map[int]float64{}
		}
		cells[r.Cohort][r.Week] = r.Retention
		totals[r.Cohort] = r.Total
		lastWeek = max(lastWeek, r.Week)
	}
	lastWeek = min(lastWeek, weeks-1)

	headers := []string{"cohort", "users"}
	for w := 0; w <= lastWeek; w++ {
		headers = append(headers, "W"+strconv.Itoa(w))
	}
	rows := make([][]string, 0, len(order))
	for _, key := range order {
		row := []string{key, strconv.Itoa(totals[key])}
		for w := 0; w <= lastWeek; w++ {
			if v, ok := cells[key][w]; ok {
				row = append(row, pct(v))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return headers, rows
}

// shadeRetention colors week cells by value.
func shadeRetention(_, col int, value string) lipgloss.Style {
	if col < 2 || value == "" {
		return lipgloss.NewStyle()
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return lipgloss.NewStyle()
	}
	return ux.RetentionStyle(v)
}

func riskTable(s churn.SegmentSummary) ([]string, [][]string) {
	share := func(n int) string {
		if s.Total == 0 {
			return "0"
		}
		return strconv.Itoa(n * 100 / s.Total)
	}
	return []string{"risk", "users", "%"}, [][]string{
		{string(churn.RiskCritical), strconv.Itoa(s.Critical), strconv.Itoa(s.CriticalPercentage)},
		{string(churn.RiskHigh), strconv.Itoa(s.High), strconv.Itoa(s.HighPercentage)},
		{string(churn.RiskMedium), strconv.Itoa(s.Medium), share(s.Medium)},
		{string(churn.RiskLow), strconv.Itoa(s.Low), share(s.Low)},
	}
}

func shadeRisk(_, col int, value string) lipgloss.Style {
	if col != 0 {
		return lipgloss.NewStyle()
	}
	return ux.RiskStyle(value)
}

func ltvTable(r *ltv.Result) ([]string, [][]string) {
	rows := make([][]string, 0, len(r.CohortLTVs))
	for _, c := range r.CohortLTVs {
		rows = append(rows, []string{
			c.Cohort,
			strconv.Itoa(c.CohortSize),
			money(c.ObservedLTV),
			money(c.ProjectedLTV),
			fmt.Sprintf("%d/%d", c.ObservedWeeks, c.TotalWeeks),
			string(c.Confidence),
		})
	}
	return []string{"cohort", "users", "observed", "projected", "weeks", "confidence"}, rows
}

func ranked(r *ltv.RankedCohort) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", r.Cohort, money(r.LTV))
}

func pValue(p float64, significant bool) string {
	s := strconv.FormatFloat(p, 'f', 4, 64)
	if significant {
		s += " *"
	}
	return s
}

// renderReport prints the console form of one analysis.
func renderReport(name string, b export.Bundle) {
	p := b.Analysis
	sum := p.Summary

	ux.Title(fmt.Sprintf("%s: cohort analysis", name))
	ux.KeyValue([][2]string{
		{"cohorts", strconv.Itoa(sum.Metadata.TotalCohorts)},
		{"users", strconv.Itoa(p.Cohort.CohortInfo.UserCount())},
		{"date range", sum.Metadata.DateRange.From + " .. " + sum.Metadata.DateRange.To},
		{"health", fmt.Sprintf("%d (%s)", sum.KeyMetrics.HealthScore, sum.KeyMetrics.Grade)},
		{"retention w1-w4", fmt.Sprintf("%d%% %d%% %d%% %d%%",
			sum.KeyMetrics.Week1Retention, sum.KeyMetrics.Week2Retention,
			sum.KeyMetrics.Week3Retention, sum.KeyMetrics.Week4Retention)},
	})

	headers, rows := retentionTable(p.Cohort.RetentionMatrix, maxTableWeeks)
	ux.Table(headers, rows, shadeRetention)

	ux.Title("Churn risk")
	headers, rows = riskTable(p.Churn.RiskSegments.Summary)
	ux.Table(headers, rows, shadeRisk)
	for _, in := range sum.Insights {
		line := fmt.Sprintf("%s %s: %d users (%d%%)", in.Type, in.Code, in.AffectedUsers, in.Percentage)
		if in.Cohort != "" {
			line += " in " + in.Cohort
		}
		ux.Info(line)
	}

	ux.Title("Lifetime value")
	ux.KeyValue([][2]string{
		{"average", money(p.LTV.Summary.AverageLTV)},
		{"median", money(p.LTV.Summary.MedianLTV)},
		{"best", ranked(p.LTV.Summary.BestCohort)},
		{"worst", ranked(p.LTV.Summary.WorstCohort)},
		{"trend", string(p.LTV.Summary.LTVTrend)},
	})

	median := "not reached"
	if m := p.Stats.KaplanMeier.MedianSurvival; m != nil {
		median = fmt.Sprintf("week %d", *m)
	}
	ux.Title("Statistics")
	ux.KeyValue([][2]string{
		{"chi-square p", pValue(p.Stats.ChiSquare.PValue, p.Stats.ChiSquare.Significant)},
		{"log-rank p", pValue(p.Stats.LogRank.PValue, p.Stats.LogRank.Significant)},
		{"median survival", median},
	})
}

func renderLTV(r *ltv.Result) {
	ux.Title(fmt.Sprintf("Lifetime value at ARPU %s", money(r.ARPU)))
	headers, rows := ltvTable(r)
	ux.Table(headers, rows, nil)
	ux.KeyValue([][2]string{
		{"average", money(r.Summary.AverageLTV)},
		{"median", money(r.Summary.MedianLTV)},
		{"best", ranked(r.Summary.BestCohort)},
		{"worst", ranked(r.Summary.WorstCohort)},
		{"trend", string(r.Summary.LTVTrend)},
		{"projected revenue", money(r.Summary.TotalProjectedRevenue)},
	})
}

func sampleSize(n int, infinite bool) string {
	if infinite {
		return "infinite"
	}
	return strconv.Itoa(n)
}

func renderABTest(r *abtest.Result) {
	pa := r.PowerAnalysis
	ux.Title(fmt.Sprintf("A/B test: +%s pts at week %d", pct(r.Retention.Delta), r.Retention.TargetWeek))
	baseline := pct(pa.BaselineRate * 100)
	if pa.BaselineAssumed {
		baseline += " (assumed)"
	}
	ux.KeyValue([][2]string{
		{"baseline", baseline},
		{"treatment", pct(pa.TreatmentRate * 100)},
		{"per group", sampleSize(pa.SampleSize, pa.Infinite)},
		{"total", sampleSize(pa.TotalSampleSize, pa.Infinite)},
		{"alpha / power", fmt.Sprintf("%.2f / %.2f", pa.Alpha, pa.Power)},
		{"ltv delta", fmt.Sprintf("%s (%s%%)", money(r.LTVImpact.LTVDelta), pct(r.LTVImpact.LTVDeltaPct))},
		{"monthly impact", strconv.Itoa(r.LTVImpact.MonthlyRevenueImpact)},
	})

	rows := make([][]string, 0, len(r.Scenarios))
	for _, s := range r.Scenarios {
		rows = append(rows, []string{
			s.Name, pct(s.Delta), sampleSize(s.SampleSize, s.Infinite), money(s.LTVDelta), strconv.Itoa(s.MonthlyROI),
		})
	}
	ux.Table([]string{"scenario", "delta", "per group", "ltv delta", "monthly roi"}, rows, nil)
}
