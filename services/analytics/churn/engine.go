// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package churn

import (
	"sort"
	"time"

	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/AleutianAI/CohortIQ/services/analytics/statmath"
)

// Engine scores churn risk under a Policy.
//
// Thread Safety: Safe for concurrent use once constructed.
type Engine struct {
	policy Policy
	now    func() time.Time
}

// NewEngine creates an Engine. A nil now defaults to time.Now.
func NewEngine(policy Policy, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{policy: policy, now: now}
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// AnalyzeUserActivity accumulates events per user.
//
// Description:
//
//	Users missing from info are skipped. Active weeks are measured from
//	the user's own signup date, so a week-0 event counts as active.
//
// Inputs:
//   - rows: Validated event rows.
//   - info: Cohort membership from GroupByCohort.
//
// Outputs:
//   - *ActivityMap: Never nil. Users appear in first-row order.
func AnalyzeUserActivity(rows []cohort.EventRow, info *cohort.CohortInfo) *ActivityMap {
	activity := NewActivityMap()
	for _, row := range rows {
		m, ok := info.Lookup(row.UserID)
		if !ok {
			continue
		}

		a, ok := activity.Get(row.UserID)
		if !ok {
			a = &UserActivity{
				Cohort:      m.Cohort,
				SignupDate:  m.SignupDate,
				Events:      make([]time.Time, 0, 4),
				ActiveWeeks: make(map[int]struct{}),
			}
			activity.Put(row.UserID, a)
		}

		event := cohort.DateOf(row.EventDate)
		a.Events = append(a.Events, event)
		a.TotalEvents++
		if event.After(a.LastEventDate) {
			a.LastEventDate = event
		}
		a.ActiveWeeks[cohort.WeeksBetween(event, m.SignupDate)] = struct{}{}
	}
	return activity
}

// CalculateChurnRisk scores every user with the default policy.
func CalculateChurnRisk(activity *ActivityMap, ref time.Time) []Record {
	return NewEngine(DefaultPolicy(), nil).CalculateRisk(activity, ref)
}

// CalculateRisk scores every user relative to ref.
//
// Description:
//
//	Score = recency + inverted density + consecutive inactivity. Records
//	are returned sorted by score descending; ties keep activity order.
//
// Inputs:
//   - activity: Output of AnalyzeUserActivity.
//   - ref: Reference "now" date. Zero means the engine clock.
//
// Outputs:
//   - []Record: Never nil.
func (e *Engine) CalculateRisk(activity *ActivityMap, ref time.Time) []Record {
	if ref.IsZero() {
		ref = e.now()
	}
	records := make([]Record, 0, activity.Len())

	activity.Each(func(userID string, a *UserActivity) {
		m := e.metrics(a, ref)

		score := atLeast(e.policy.Recency, float64(m.WeeksSinceLastActivity)) +
			below(e.policy.Density, m.ActivityDensity) +
			atLeast(e.policy.Inactivity, float64(m.ConsecutiveInactiveWeeks))

		m.ActivityDensity = statmath.Round(m.ActivityDensity, 1)

		records = append(records, Record{
			UserID:        userID,
			Cohort:        a.Cohort,
			RiskScore:     score,
			RiskLevel:     e.policy.Level(score),
			Metrics:       m,
			LastEventDate: a.LastEventDate,
		})
	})

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].RiskScore > records[j].RiskScore
	})
	return records
}

// metrics derives the raw signals. ActivityDensity is left unrounded.
func (e *Engine) metrics(a *UserActivity, ref time.Time) Metrics {
	sinceLast := NoActivityWeeks
	if a.HasEvents() {
		sinceLast = cohort.WeeksBetween(ref, a.LastEventDate)
	}

	activeWeeks := len(a.ActiveWeeks)
	sinceSignup := cohort.WeeksBetween(ref, a.SignupDate)

	var density float64
	if sinceSignup == 0 {
		if activeWeeks > 0 {
			density = 100
		}
	} else {
		density = statmath.Clamp(float64(activeWeeks)/float64(sinceSignup)*100, 0, 100)
	}

	maxWeek := 0
	for w := range a.ActiveWeeks {
		if w > maxWeek {
			maxWeek = w
		}
	}
	inactive := 0
	for w := maxWeek; w >= 0; w-- {
		if _, ok := a.ActiveWeeks[w]; ok {
			break
		}
		inactive++
	}

	return Metrics{
		WeeksSinceLastActivity:   sinceLast,
		TotalActiveWeeks:         activeWeeks,
		WeeksSinceSignup:         sinceSignup,
		ActivityDensity:          density,
		ConsecutiveInactiveWeeks: inactive,
		TotalEvents:              a.TotalEvents,
	}
}

// SegmentByRisk groups records by level and summarizes the counts.
func SegmentByRisk(records []Record) Segmentation {
	seg := Segments{
		Critical: []Record{},
		High:     []Record{},
		Medium:   []Record{},
		Low:      []Record{},
	}
	for _, r := range records {
		switch r.RiskLevel {
		case RiskCritical:
			seg.Critical = append(seg.Critical, r)
		case RiskHigh:
			seg.High = append(seg.High, r)
		case RiskMedium:
			seg.Medium = append(seg.Medium, r)
		default:
			seg.Low = append(seg.Low, r)
		}
	}

	total := len(records)
	summary := SegmentSummary{
		Total:    total,
		Critical: len(seg.Critical),
		High:     len(seg.High),
		Medium:   len(seg.Medium),
		Low:      len(seg.Low),
	}
	if total > 0 {
		summary.CriticalPercentage = percent(summary.Critical, total)
		summary.HighPercentage = percent(summary.High, total)
	}
	return Segmentation{Segments: seg, Summary: summary}
}

func percent(n, total int) int {
	return statmath.RoundInt(float64(n) / float64(total) * 100)
}

// EmptyAnalysis returns the result shape used for empty input.
func EmptyAnalysis() *Analysis {
	return &Analysis{
		ChurnRiskData: []Record{},
		RiskSegments:  SegmentByRisk(nil),
		Insights:      []Insight{},
		Activity:      NewActivityMap(),
	}
}

// AnalyzeChurn runs the full churn pipeline with the default policy and
// the current time as reference.
func AnalyzeChurn(rows []cohort.EventRow, info *cohort.CohortInfo) *Analysis {
	return NewEngine(DefaultPolicy(), nil).Analyze(rows, info)
}

// Analyze runs activity, scoring, segmentation and insights.
//
// Description:
//
//	Empty rows or a nil info yield EmptyAnalysis. The reference date is
//	the engine clock.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) Analyze(rows []cohort.EventRow, info *cohort.CohortInfo) *Analysis {
	if len(rows) == 0 || info == nil {
		return EmptyAnalysis()
	}

	start := time.Now()

	activity := AnalyzeUserActivity(rows, info)
	records := e.CalculateRisk(activity, e.now())
	segments := SegmentByRisk(records)
	insights := e.Insights(segments)

	return &Analysis{
		ChurnRiskData: records,
		RiskSegments:  segments,
		Insights:      insights,
		Performance: Performance{
			DurationMs:    time.Since(start).Milliseconds(),
			UsersAnalyzed: activity.Len(),
		},
		Activity: activity,
	}
}
