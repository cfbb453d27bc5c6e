// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package summary condenses cohort and churn results into an executive
// summary: early-week retention, a 0-100 health score with a letter
// grade, the leading insights and timing totals.
package summary

import (
	"time"

	"github.com/AleutianAI/CohortIQ/services/analytics/churn"
	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/AleutianAI/CohortIQ/services/analytics/statmath"
)

const (
	// TopInsights is the number of insights carried into the summary.
	TopInsights = 3

	// healthy reference points: full retention marks at this week-4
	// retention, full churn marks at this LOW-risk share.
	week4Target   = 80.0
	lowRiskTarget = 60.0

	noDate = "-"
)

// Grade is a letter grade of the health score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// HealthGrade maps a health score to its grade.
func HealthGrade(score int) Grade {
	switch {
	case score >= 80:
		return GradeA
	case score >= 60:
		return GradeB
	case score >= 40:
		return GradeC
	default:
		return GradeD
	}
}

// DateRange spans the oldest and newest cohort.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Metadata describes the summarized analysis.
type Metadata struct {
	GeneratedAt  time.Time `json:"generatedAt"`
	AnalysisDate string    `json:"analysisDate"`
	TotalCohorts int       `json:"totalCohorts"`
	DateRange    DateRange `json:"dateRange"`
}

// KeyMetrics are the headline numbers.
type KeyMetrics struct {
	Week1Retention int   `json:"week1Retention"`
	Week2Retention int   `json:"week2Retention"`
	Week3Retention int   `json:"week3Retention"`
	Week4Retention int   `json:"week4Retention"`
	HealthScore    int   `json:"healthScore"`
	Grade          Grade `json:"grade"`
}

// ChurnRisk repeats the high-severity segment counts.
type ChurnRisk struct {
	Critical           int `json:"critical"`
	CriticalPercentage int `json:"criticalPercentage"`
	High               int `json:"high"`
	HighPercentage     int `json:"highPercentage"`
	Total              int `json:"total"`
}

// Performance totals the analysis durations in milliseconds.
type Performance struct {
	CohortAnalysis int64 `json:"cohortAnalysis"`
	ChurnAnalysis  int64 `json:"churnAnalysis"`
	TotalDuration  int64 `json:"totalDuration"`
}

// Summary is the executive summary of one analysis.
type Summary struct {
	Metadata    Metadata        `json:"metadata"`
	KeyMetrics  KeyMetrics      `json:"keyMetrics"`
	ChurnRisk   ChurnRisk       `json:"churnRisk"`
	Insights    []churn.Insight `json:"insights"`
	Performance Performance     `json:"performance"`
}

func empty(now time.Time) Summary {
	return Summary{
		Metadata: Metadata{
			GeneratedAt:  now,
			AnalysisDate: now.Format(cohort.KeyLayout),
			DateRange:    DateRange{From: noDate, To: noDate},
		},
		KeyMetrics: KeyMetrics{Grade: HealthGrade(0)},
		Insights:   []churn.Insight{},
	}
}

// Prepare builds the summary of a cohort and churn analysis.
//
// Description:
//
//	Nil results yield the zero summary. With no cohorts only the timing
//	totals are filled. The date range runs from the first to the last
//	cohort of the cohort result.
//
// Inputs:
//   - cohorts: Output of cohort.AnalyzeCohort.
//   - churnRes: Output of churn.AnalyzeChurn.
//   - now: Generation time.
//
// Outputs:
//   - Summary: Never carries a nil Insights slice.
func Prepare(cohorts *cohort.Analysis, churnRes *churn.Analysis, now time.Time) Summary {
	s := empty(now)
	if cohorts == nil || churnRes == nil {
		return s
	}

	s.Performance = Performance{
		CohortAnalysis: cohorts.Performance.DurationMs,
		ChurnAnalysis:  churnRes.Performance.DurationMs,
		TotalDuration:  cohorts.Performance.DurationMs + churnRes.Performance.DurationMs,
	}
	if len(cohorts.Cohorts) == 0 {
		return s
	}

	s.Metadata.TotalCohorts = len(cohorts.Cohorts)
	s.Metadata.DateRange = DateRange{
		From: cohorts.Cohorts[0],
		To:   cohorts.Cohorts[len(cohorts.Cohorts)-1],
	}

	risk := churnRes.RiskSegments.Summary
	w4 := weekAverage(cohorts.RetentionMatrix, 4)
	score := HealthScore(w4, risk)
	s.KeyMetrics = KeyMetrics{
		Week1Retention: weekAverage(cohorts.RetentionMatrix, 1),
		Week2Retention: weekAverage(cohorts.RetentionMatrix, 2),
		Week3Retention: weekAverage(cohorts.RetentionMatrix, 3),
		Week4Retention: w4,
		HealthScore:    score,
		Grade:          HealthGrade(score),
	}

	s.ChurnRisk = ChurnRisk{
		Critical:           risk.Critical,
		CriticalPercentage: risk.CriticalPercentage,
		High:               risk.High,
		HighPercentage:     risk.HighPercentage,
		Total:              risk.Total,
	}

	n := len(churnRes.Insights)
	if n > TopInsights {
		n = TopInsights
	}
	s.Insights = append(s.Insights, churnRes.Insights[:n]...)
	return s
}

// weekAverage is the rounded mean retention of week across cohorts that
// report it, or 0.
func weekAverage(matrix []cohort.RetentionRow, week int) int {
	var sum float64
	n := 0
	for _, r := range matrix {
		if r.Week == week {
			sum += r.Retention
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return statmath.RoundInt(sum / float64(n))
}

// HealthScore combines week-4 retention and the LOW-risk share into a
// 0-100 score. Each half is worth up to 50 points.
func HealthScore(week4Retention int, risk churn.SegmentSummary) int {
	retention := min(50, float64(week4Retention)/week4Target*50)

	var lowShare float64
	if risk.Total > 0 {
		lowShare = float64(risk.Low) / float64(risk.Total) * 100
	}
	churnPart := min(50, lowShare/lowRiskTarget*50)

	return int(statmath.Clamp(float64(statmath.RoundInt(retention+churnPart)), 0, 100))
}
