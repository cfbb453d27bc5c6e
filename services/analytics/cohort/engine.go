// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cohort

import (
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/CohortIQ/services/analytics/statmath"
)

// GroupByCohort assigns every row's user to the Monday-aligned week of the
// row's signup date.
//
// Description:
//
//	Each row adds its user to the cohort of its own signup week. The first
//	row seen for a user fixes that user's Membership for the run.
//
// Inputs:
//   - rows: Validated event rows. May be empty.
//
// Outputs:
//   - *CohortInfo: Never nil.
func GroupByCohort(rows []EventRow) *CohortInfo {
	info := NewCohortInfo()
	for _, row := range rows {
		info.Add(Key(row.SignupDate), row.UserID, row.SignupDate)
	}
	return info
}

// CalculateRetention builds the retention matrix.
//
// Description:
//
//	Week 0 of each cohort is its full member set. Every row whose user
//	belongs to the cohort adds that user to the active set of week
//	WeeksBetween(eventDate, cohortMonday) when that week is positive. Rows
//	are emitted for weeks 0..max observed week with zero-filled gaps, in
//	cohort insertion order.
//
// Inputs:
//   - rows: Validated event rows.
//   - info: Result of GroupByCohort over the same rows.
//
// Outputs:
//   - []RetentionRow: Never nil. Retention is rounded to one decimal.
func CalculateRetention(rows []EventRow, info *CohortInfo) []RetentionRow {
	matrix := make([]RetentionRow, 0)
	if info == nil {
		return matrix
	}

	mondays := make(map[string]time.Time, info.Len())
	weekly := make(map[string]map[int]map[string]struct{}, info.Len())
	for _, key := range info.Keys() {
		monday, err := ParseKey(key)
		if err != nil {
			continue
		}
		mondays[key] = monday
		weekly[key] = map[int]map[string]struct{}{0: nil}
	}

	for _, row := range rows {
		m, ok := info.Lookup(row.UserID)
		if !ok {
			continue
		}
		weeks, ok := weekly[m.Cohort]
		if !ok {
			continue
		}
		w := WeeksBetween(row.EventDate, mondays[m.Cohort])
		if w <= 0 {
			continue
		}
		set := weeks[w]
		if set == nil {
			set = make(map[string]struct{})
			weeks[w] = set
		}
		set[row.UserID] = struct{}{}
	}

	for _, key := range info.Keys() {
		weeks, ok := weekly[key]
		if !ok {
			continue
		}
		size := info.Size(key)
		maxWeek := 0
		for w := range weeks {
			if w > maxWeek {
				maxWeek = w
			}
		}

		for week := 0; week <= maxWeek; week++ {
			active := len(weeks[week])
			if week == 0 {
				active = size
			}
			rate := 0.0
			if size > 0 {
				rate = float64(active) / float64(size) * 100
			}
			matrix = append(matrix, RetentionRow{
				Cohort:    key,
				Week:      week,
				Users:     active,
				Total:     size,
				Retention: statmath.Round(rate, 1),
			})
		}
	}

	return matrix
}

// FormatForHeatmap converts a retention matrix into matrix-plot cells.
// Cohorts are indexed by their position in the ascending cohort list.
func FormatForHeatmap(matrix []RetentionRow) Heatmap {
	seen := make(map[string]struct{})
	cohortList := make([]string, 0)
	maxWeek := 0
	for _, r := range matrix {
		if _, ok := seen[r.Cohort]; !ok {
			seen[r.Cohort] = struct{}{}
			cohortList = append(cohortList, r.Cohort)
		}
		if r.Week > maxWeek {
			maxWeek = r.Week
		}
	}
	sort.Strings(cohortList)

	index := make(map[string]int, len(cohortList))
	for i, c := range cohortList {
		index[c] = i
	}

	data := make([]HeatmapPoint, 0, len(matrix))
	for _, r := range matrix {
		data = append(data, HeatmapPoint{
			X:     r.Week,
			Y:     index[r.Cohort],
			V:     r.Retention,
			Label: fmt.Sprintf("%s - Week %d", r.Cohort, r.Week),
			Users: r.Users,
			Total: r.Total,
		})
	}

	return Heatmap{
		Data:       data,
		CohortList: cohortList,
		MaxWeek:    maxWeek,
		Summary: HeatmapSummary{
			TotalCohorts: len(cohortList),
			TotalWeeks:   maxWeek + 1,
		},
	}
}

// EmptyAnalysis returns the result shape used for empty input.
func EmptyAnalysis() *Analysis {
	return &Analysis{
		Cohorts:         []string{},
		RetentionMatrix: []RetentionRow{},
		Heatmap: Heatmap{
			Data:       []HeatmapPoint{},
			CohortList: []string{},
		},
		CohortInfo: NewCohortInfo(),
	}
}

// AnalyzeCohort runs grouping, retention and heatmap formatting.
//
// Description:
//
//	Empty input yields EmptyAnalysis, never an error. The returned
//	CohortInfo feeds the churn and statistical-test engines.
//
// Inputs:
//   - rows: Validated event rows.
//
// Outputs:
//   - *Analysis: Never nil.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func AnalyzeCohort(rows []EventRow) *Analysis {
	if len(rows) == 0 {
		return EmptyAnalysis()
	}

	start := time.Now()

	info := GroupByCohort(rows)
	matrix := CalculateRetention(rows, info)
	heatmap := FormatForHeatmap(matrix)

	return &Analysis{
		Cohorts:         info.Keys(),
		RetentionMatrix: matrix,
		Heatmap:         heatmap,
		CohortInfo:      info,
		Performance: Performance{
			DurationMs:     time.Since(start).Milliseconds(),
			RowsProcessed:  len(rows),
			CohortsCreated: info.Len(),
		},
	}
}

// AverageCurve averages retention per week across all cohorts that report
// the week. The result is week-ascending and rounded to one decimal.
func AverageCurve(matrix []RetentionRow) []CurvePoint {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, r := range matrix {
		sums[r.Week] += r.Retention
		counts[r.Week]++
	}

	weeks := make([]int, 0, len(counts))
	for w := range counts {
		weeks = append(weeks, w)
	}
	sort.Ints(weeks)

	curve := make([]CurvePoint, 0, len(weeks))
	for _, w := range weeks {
		curve = append(curve, CurvePoint{
			Week:      w,
			Retention: statmath.Round(sums[w]/float64(counts[w]), 1),
		})
	}
	return curve
}
