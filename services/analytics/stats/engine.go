// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/AleutianAI/CohortIQ/services/analytics/churn"
	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/AleutianAI/CohortIQ/services/analytics/statmath"
)

// Engine runs the tests under a Policy.
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

// =============================================================================
// Chi-Square
// =============================================================================

func chiSquareFallback() ChiSquareResult {
	return ChiSquareResult{
		PValue:           1,
		ContingencyTable: [][]int{},
		Expected:         [][]float64{},
	}
}

// ChiSquareTest runs the independence test with the default policy.
func ChiSquareTest(info *cohort.CohortInfo, records []churn.Record) ChiSquareResult {
	return NewEngine(DefaultPolicy(), nil).ChiSquare(info, records)
}

// ChiSquare tests whether risk level is independent of cohort.
//
// Description:
//
//	Rows are cohorts in ascending key order, columns are the four risk
//	levels. Cells with zero expected count are skipped and all-zero rows
//	or columns do not contribute degrees of freedom. Fewer than two
//	cohorts or no records yield the fallback {0, 0, 1, false}.
//
// Inputs:
//   - info: Cohort membership. When empty, cohorts are taken from records.
//   - records: Churn risk records.
//
// Outputs:
//   - ChiSquareResult: Chi2 rounded to 3 decimals, PValue to 4.
func (e *Engine) ChiSquare(info *cohort.CohortInfo, records []churn.Record) ChiSquareResult {
	if len(records) == 0 {
		return chiSquareFallback()
	}

	labels := cohortLabels(info, records)
	if len(labels) < 2 {
		return chiSquareFallback()
	}

	rowOf := make(map[string]int, len(labels))
	for i, l := range labels {
		rowOf[l] = i
	}
	levels := churn.Levels
	colOf := make(map[churn.RiskLevel]int, len(levels))
	for j, l := range levels {
		colOf[l] = j
	}
	nRows, nCols := len(labels), len(levels)

	observed := make([][]int, nRows)
	for i := range observed {
		observed[i] = make([]int, nCols)
	}
	for _, r := range records {
		i, okRow := rowOf[r.Cohort]
		j, okCol := colOf[r.RiskLevel]
		if !okRow || !okCol {
			continue
		}
		observed[i][j]++
	}

	rowTotals := make([]int, nRows)
	colTotals := make([]int, nCols)
	grand := 0
	for i, row := range observed {
		for j, v := range row {
			rowTotals[i] += v
			colTotals[j] += v
			grand += v
		}
	}
	if grand == 0 {
		res := chiSquareFallback()
		res.ContingencyTable = observed
		return res
	}

	expected := make([][]float64, nRows)
	var chi2 float64
	for i := range expected {
		expected[i] = make([]float64, nCols)
		for j := range expected[i] {
			ex := float64(rowTotals[i]) * float64(colTotals[j]) / float64(grand)
			expected[i][j] = ex
			if ex > 0 {
				diff := float64(observed[i][j]) - ex
				chi2 += diff * diff / ex
			}
		}
	}

	df := (nonZero(rowTotals) - 1) * (nonZero(colTotals) - 1)
	if df < 0 {
		df = 0
	}
	p := 1.0
	if df > 0 {
		p = statmath.Chi2PValue(chi2, df)
	}

	return ChiSquareResult{
		Chi2:             statmath.Round(chi2, 3),
		DF:               df,
		PValue:           statmath.Round(p, 4),
		Significant:      p < e.policy.Alpha,
		ContingencyTable: observed,
		Expected:         expected,
		CohortLabels:     labels,
		RiskLevels:       append([]churn.RiskLevel(nil), levels...),
	}
}

func cohortLabels(info *cohort.CohortInfo, records []churn.Record) []string {
	if info.Len() > 0 {
		return info.SortedKeys()
	}
	seen := make(map[string]struct{})
	labels := make([]string, 0)
	for _, r := range records {
		if _, ok := seen[r.Cohort]; ok {
			continue
		}
		seen[r.Cohort] = struct{}{}
		labels = append(labels, r.Cohort)
	}
	sort.Strings(labels)
	return labels
}

func nonZero(totals []int) int {
	n := 0
	for _, t := range totals {
		if t > 0 {
			n++
		}
	}
	return n
}

// =============================================================================
// Survival
// =============================================================================

// floorWeeks returns whole weeks from earlier to later, rounded toward
// negative infinity.
func floorWeeks(later, earlier time.Time) int {
	days := cohort.DaysBetween(later, earlier)
	w := days / 7
	if days%7 != 0 && days < 0 {
		w--
	}
	return w
}

// subjectOf converts activity into a survival observation. Survival time
// is weeks from signup to the last event. A user seen within CensorWeeks
// of ref is censored.
func (e *Engine) subjectOf(a *churn.UserActivity, ref time.Time) subject {
	last := a.LastEventDate
	if last.IsZero() {
		last = a.SignupDate
	}
	t := floorWeeks(last, a.SignupDate)
	if t < 0 {
		t = 0
	}
	return subject{
		time:  t,
		event: floorWeeks(ref, last) >= e.policy.CensorWeeks,
	}
}

// KaplanMeier estimates survival with the default policy.
func KaplanMeier(activity *churn.ActivityMap, ref time.Time) KaplanMeierResult {
	return NewEngine(DefaultPolicy(), nil).KaplanMeier(activity, ref)
}

// KaplanMeier runs the product-limit estimator relative to ref.
//
// Description:
//
//	The curve starts at {0, 1.0}. Each distinct survival time adds a
//	point; survival drops by the share of at-risk users that churned at
//	that time. Censored and churned users leave the risk set after their
//	time. A zero ref uses the engine clock.
//
// Outputs:
//   - KaplanMeierResult: Survival is non-increasing, rounded to 4 decimals.
func (e *Engine) KaplanMeier(activity *churn.ActivityMap, ref time.Time) KaplanMeierResult {
	if activity.Len() == 0 {
		return KaplanMeierResult{SurvivalFunction: []SurvivalPoint{}}
	}
	if ref.IsZero() {
		ref = e.now()
	}

	subjects := make([]subject, 0, activity.Len())
	activity.Each(func(_ string, a *churn.UserActivity) {
		subjects = append(subjects, e.subjectOf(a, ref))
	})

	type tally struct{ events, censored int }
	byTime := make(map[int]*tally)
	for _, s := range subjects {
		t, ok := byTime[s.time]
		if !ok {
			t = &tally{}
			byTime[s.time] = t
		}
		if s.event {
			t.events++
		} else {
			t.censored++
		}
	}
	times := make([]int, 0, len(byTime))
	for t := range byTime {
		times = append(times, t)
	}
	sort.Ints(times)

	nRisk := len(subjects)
	survival := 1.0
	curve := []SurvivalPoint{{Time: 0, Survival: 1, NRisk: nRisk}}

	for _, t := range times {
		tl := byTime[t]
		if tl.events > 0 && nRisk > 0 {
			survival *= 1 - float64(tl.events)/float64(nRisk)
		}
		curve = append(curve, SurvivalPoint{
			Time:      t,
			Survival:  statmath.Round(survival, 4),
			NRisk:     nRisk,
			NEvent:    tl.events,
			NCensored: tl.censored,
		})
		nRisk -= tl.events + tl.censored
		if nRisk <= 0 {
			break
		}
	}

	res := KaplanMeierResult{SurvivalFunction: curve}
	for _, p := range curve {
		if p.Survival <= 0.5 {
			median := p.Time
			res.MedianSurvival = &median
			break
		}
	}
	return res
}

// =============================================================================
// Log-Rank
// =============================================================================

// LogRankTest compares early and late cohorts with the default policy.
func LogRankTest(activity *churn.ActivityMap, labels []string, ref time.Time) LogRankResult {
	return NewEngine(DefaultPolicy(), nil).LogRank(activity, labels, ref)
}

// LogRank runs the Mantel-Haenszel log-rank test between the first
// ceil(n/2) cohorts and the rest.
//
// Description:
//
//	At every distinct event time t, subjects with time < t have left the
//	risk set. O1 and E1 accumulate observed and expected events of the
//	early group; V accumulates the hypergeometric variance. The statistic
//	(O1-E1)²/V is referred to chi-square with one degree of freedom.
//
// Inputs:
//   - activity: Per-user activity.
//   - labels: Cohort keys in ascending order.
//   - ref: Reference date for censoring. Zero uses the engine clock.
//
// Outputs:
//   - LogRankResult: Fallback {0, 1, false} when either group is empty,
//     fewer than two cohorts exist, or no churn event was observed.
func (e *Engine) LogRank(activity *churn.ActivityMap, labels []string, ref time.Time) LogRankResult {
	fallback := LogRankResult{PValue: 1}
	if activity.Len() == 0 || len(labels) < 2 {
		return fallback
	}
	if ref.IsZero() {
		ref = e.now()
	}

	mid := (len(labels) + 1) / 2
	early := make(map[string]struct{}, mid)
	late := make(map[string]struct{}, len(labels)-mid)
	for i, l := range labels {
		if i < mid {
			early[l] = struct{}{}
		} else {
			late[l] = struct{}{}
		}
	}
	fallback.Group1Label = fmt.Sprintf("%s ~ %s", labels[0], labels[mid-1])
	fallback.Group2Label = fmt.Sprintf("%s ~ %s", labels[mid], labels[len(labels)-1])

	var g1, g2 []subject
	activity.Each(func(_ string, a *churn.UserActivity) {
		if _, ok := early[a.Cohort]; ok {
			g1 = append(g1, e.subjectOf(a, ref))
		} else if _, ok := late[a.Cohort]; ok {
			g2 = append(g2, e.subjectOf(a, ref))
		}
	})
	if len(g1) == 0 || len(g2) == 0 {
		return fallback
	}

	eventSet := make(map[int]struct{})
	for _, s := range append(append([]subject(nil), g1...), g2...) {
		if s.event {
			eventSet[s.time] = struct{}{}
		}
	}
	if len(eventSet) == 0 {
		return fallback
	}
	eventTimes := make([]int, 0, len(eventSet))
	for t := range eventSet {
		eventTimes = append(eventTimes, t)
	}
	sort.Ints(eventTimes)

	byTime := func(g []subject) {
		sort.SliceStable(g, func(i, j int) bool { return g[i].time < g[j].time })
	}
	byTime(g1)
	byTime(g2)

	var o1, e1, v float64
	n1, n2 := len(g1), len(g2)
	i1, i2 := 0, 0

	for _, t := range eventTimes {
		for i1 < len(g1) && g1[i1].time < t {
			n1--
			i1++
		}
		for i2 < len(g2) && g2[i2].time < t {
			n2--
			i2++
		}

		d1 := eventsAt(g1[i1:], t)
		d2 := eventsAt(g2[i2:], t)
		d := float64(d1 + d2)
		n := float64(n1 + n2)

		if n > 0 && d > 0 {
			o1 += float64(d1)
			e1 += float64(n1) * d / n
			if n > 1 {
				v += float64(n1) * float64(n2) * d * (n - d) / (n * n * (n - 1))
			}
		}

		for i1 < len(g1) && g1[i1].time == t {
			n1--
			i1++
		}
		for i2 < len(g2) && g2[i2].time == t {
			n2--
			i2++
		}
	}

	var stat float64
	if v > 0 {
		stat = math.Pow(o1-e1, 2) / v
	}
	p := 1.0
	if stat > 0 {
		p = statmath.Chi2PValue(stat, 1)
	}

	return LogRankResult{
		TestStatistic: statmath.Round(stat, 3),
		PValue:        statmath.Round(p, 4),
		Significant:   p < e.policy.Alpha,
		Group1Label:   fallback.Group1Label,
		Group2Label:   fallback.Group2Label,
	}
}

// eventsAt counts churn events at time t in a time-sorted slice whose
// head has time >= t.
func eventsAt(sorted []subject, t int) int {
	n := 0
	for _, s := range sorted {
		if s.time != t {
			break
		}
		if s.event {
			n++
		}
	}
	return n
}

// =============================================================================
// Pipeline
// =============================================================================

// RunStatisticalTests runs all three tests with the default policy.
func RunStatisticalTests(info *cohort.CohortInfo, churnResult *churn.Analysis, activity *churn.ActivityMap) Result {
	return NewEngine(DefaultPolicy(), nil).Run(info, churnResult, activity)
}

// Run computes chi-square from the churn records and, when activity is
// available, Kaplan-Meier and log-rank relative to the latest event in
// the data set.
//
// Description:
//
//	The reference date is the maximum LastEventDate across users, which
//	keeps results reproducible on historical data. Without activity the
//	survival tests return their empty and fallback shapes.
func (e *Engine) Run(info *cohort.CohortInfo, churnResult *churn.Analysis, activity *churn.ActivityMap) Result {
	var records []churn.Record
	if churnResult != nil {
		records = churnResult.ChurnRiskData
	}
	res := Result{ChiSquare: e.ChiSquare(info, records)}

	if activity.Len() == 0 {
		res.KaplanMeier = KaplanMeierResult{SurvivalFunction: []SurvivalPoint{}}
		res.LogRank = LogRankResult{PValue: 1}
		return res
	}

	var ref time.Time
	activity.Each(func(_ string, a *churn.UserActivity) {
		if a.LastEventDate.After(ref) {
			ref = a.LastEventDate
		}
	})
	if ref.IsZero() {
		ref = e.now()
	}

	res.KaplanMeier = e.KaplanMeier(activity, ref)
	res.LogRank = e.LogRank(activity, info.SortedKeys(), ref)
	return res
}
