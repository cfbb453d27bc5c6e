// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ltv

import (
	"math"
	"sort"
	"time"

	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/AleutianAI/CohortIQ/services/analytics/statmath"
)

// Engine projects LTV under a Policy.
//
// Thread Safety: Safe for concurrent use once constructed.
type Engine struct {
	policy Policy
}

// NewEngine creates an Engine.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// GetRetentionCurves splits a retention matrix into per-cohort curves,
// each sorted by week ascending.
func GetRetentionCurves(matrix []cohort.RetentionRow) map[string][]cohort.CurvePoint {
	curves := make(map[string][]cohort.CurvePoint)
	for _, row := range matrix {
		curves[row.Cohort] = append(curves[row.Cohort], cohort.CurvePoint{
			Week:      row.Week,
			Retention: row.Retention,
			Total:     row.Total,
		})
	}
	for _, curve := range curves {
		sort.SliceStable(curve, func(i, j int) bool {
			return curve[i].Week < curve[j].Week
		})
	}
	return curves
}

// EstimateDecayRate fits λ from the last two points with week > 0 and
// positive retention.
//
// Description:
//
//	With a single valid point λ is 0 and that point is the extrapolation
//	anchor. With none, the zero Decay is returned. Negative fits (retention
//	upticks) clamp to 0.
func EstimateDecayRate(curve []cohort.CurvePoint) Decay {
	valid := make([]cohort.CurvePoint, 0, len(curve))
	for _, p := range curve {
		if p.Week > 0 && p.Retention > 0 {
			valid = append(valid, p)
		}
	}

	switch len(valid) {
	case 0:
		return Decay{}
	case 1:
		return Decay{
			LastWeek:      valid[0].Week,
			LastRetention: valid[0].Retention / 100,
		}
	}

	last := valid[len(valid)-1]
	prev := valid[len(valid)-2]

	lambda := 0.0
	if span := last.Week - prev.Week; span > 0 {
		lambda = -math.Log(last.Retention/prev.Retention) / float64(span)
	}
	if lambda < 0 || math.IsNaN(lambda) {
		lambda = 0
	}

	return Decay{
		Lambda:        lambda,
		LastWeek:      last.Week,
		LastRetention: last.Retention / 100,
	}
}

// ExtrapolateRetention projects retention with the default floor.
func ExtrapolateRetention(d Decay, maxWeek int) []ProjectedPoint {
	return NewEngine(DefaultPolicy()).Extrapolate(d, maxWeek)
}

// Extrapolate projects r(t) = LastRetention * e^(-λt) for t = 1, 2, ...
// while LastWeek+t <= maxWeek and r(t) >= MinRetention.
func (e *Engine) Extrapolate(d Decay, maxWeek int) []ProjectedPoint {
	out := make([]ProjectedPoint, 0)
	if d.Lambda <= 0 || d.LastRetention <= 0 || d.LastWeek <= 0 {
		return out
	}

	for t := 1; d.LastWeek+t <= maxWeek; t++ {
		r := d.LastRetention * math.Exp(-d.Lambda*float64(t))
		if r < e.policy.MinRetention {
			break
		}
		out = append(out, ProjectedPoint{Week: d.LastWeek + t, Retention: r})
	}
	return out
}

// CalculateCohortLTV computes the LTV of one curve with the default policy.
func CalculateCohortLTV(curve []cohort.CurvePoint, arpu float64, maxWeek int) CurveLTV {
	return NewEngine(DefaultPolicy()).CurveLTV(curve, arpu, maxWeek)
}

// CurveLTV computes observed and projected LTV of one retention curve.
//
// Description:
//
//	Observed LTV sums every observed point including week 0. Projected LTV
//	adds the extrapolated tail. Both are rounded to two decimals. An empty
//	curve yields an all-zero, low-confidence result.
//
// Inputs:
//   - curve: Week-ascending points on the 0-100 scale.
//   - arpu: Average revenue per user per week.
//   - maxWeek: Extrapolation horizon.
//
// Outputs:
//   - CurveLTV: ProjectedLTV >= ObservedLTV.
func (e *Engine) CurveLTV(curve []cohort.CurvePoint, arpu float64, maxWeek int) CurveLTV {
	if len(curve) == 0 {
		return CurveLTV{
			Confidence:     ConfidenceLow,
			RetentionCurve: []TypedPoint{},
		}
	}

	var observedSum float64
	combined := make([]TypedPoint, 0, len(curve))
	for _, p := range curve {
		observedSum += p.Retention / 100
		combined = append(combined, TypedPoint{
			Week:      p.Week,
			Retention: p.Retention / 100,
			Type:      PointObserved,
		})
	}

	projected := e.Extrapolate(EstimateDecayRate(curve), maxWeek)
	var projectedSum float64
	for _, p := range projected {
		projectedSum += p.Retention
		combined = append(combined, TypedPoint{
			Week:      p.Week,
			Retention: p.Retention,
			Type:      PointProjected,
		})
	}

	return CurveLTV{
		ObservedLTV:    statmath.Round(observedSum*arpu, 2),
		ProjectedLTV:   statmath.Round((observedSum+projectedSum)*arpu, 2),
		TotalWeeks:     len(combined),
		ObservedWeeks:  len(curve),
		Confidence:     e.confidence(len(curve)),
		RetentionCurve: combined,
	}
}

func (e *Engine) confidence(observedWeeks int) Confidence {
	switch {
	case observedWeeks >= e.policy.HighConfidenceAt:
		return ConfidenceHigh
	case observedWeeks >= e.policy.MediumConfidenceAt:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// PredictLTV projects LTV for every cohort with the default policy.
func PredictLTV(matrix []cohort.RetentionRow, opts Options) *Result {
	return NewEngine(DefaultPolicy()).Predict(matrix, opts)
}

// Predict projects LTV for every cohort of a retention matrix.
//
// Description:
//
//	Cohorts are reported in ascending key order, which is chronological
//	for cohort keys. Cohort size is the total of the first curve point.
//
// Inputs:
//   - matrix: Output of cohort.CalculateRetention.
//   - opts: ARPU and horizon. Zero values select the defaults.
//
// Outputs:
//   - *Result: Never nil.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) Predict(matrix []cohort.RetentionRow, opts Options) *Result {
	start := time.Now()
	opts = opts.withDefaults()

	curves := GetRetentionCurves(matrix)
	keys := make([]string, 0, len(curves))
	for k := range curves {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cohorts := make([]CohortLTV, 0, len(keys))
	for _, key := range keys {
		curve := curves[key]
		res := e.CurveLTV(curve, opts.ARPU, opts.MaxWeek)
		cohorts = append(cohorts, CohortLTV{
			Cohort:        key,
			ObservedLTV:   res.ObservedLTV,
			ProjectedLTV:  res.ProjectedLTV,
			ObservedWeeks: res.ObservedWeeks,
			TotalWeeks:    res.TotalWeeks,
			Confidence:    res.Confidence,
			CohortSize:    curve[0].Total,
		})
	}

	return &Result{
		CohortLTVs:  cohorts,
		Summary:     e.summarize(cohorts),
		ARPU:        opts.ARPU,
		Performance: Performance{DurationMs: time.Since(start).Milliseconds()},
	}
}

func (e *Engine) summarize(cohorts []CohortLTV) Summary {
	if len(cohorts) == 0 {
		return Summary{LTVTrend: TrendStable}
	}

	values := make([]float64, len(cohorts))
	var sum, revenue float64
	best, worst := cohorts[0], cohorts[0]
	for i, c := range cohorts {
		values[i] = c.ProjectedLTV
		sum += c.ProjectedLTV
		revenue += c.ProjectedLTV * float64(c.CohortSize)
		if c.ProjectedLTV > best.ProjectedLTV {
			best = c
		}
		if c.ProjectedLTV < worst.ProjectedLTV {
			worst = c
		}
	}

	return Summary{
		AverageLTV:            statmath.Round(sum/float64(len(values)), 2),
		MedianLTV:             median(values),
		BestCohort:            &RankedCohort{Cohort: best.Cohort, LTV: best.ProjectedLTV},
		WorstCohort:           &RankedCohort{Cohort: worst.Cohort, LTV: worst.ProjectedLTV},
		LTVTrend:              e.trend(values),
		TotalProjectedRevenue: statmath.Round(revenue, 2),
	}
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return statmath.Round((sorted[mid-1]+sorted[mid])/2, 2)
	}
	return sorted[mid]
}

// trend compares the mean of the first half of cohorts with the mean of
// the second half. The odd middle cohort belongs to the second half.
func (e *Engine) trend(values []float64) Trend {
	if len(values) < 2 {
		return TrendStable
	}
	mid := len(values) / 2
	first, second := mean(values[:mid]), mean(values[mid:])
	if first == 0 {
		return TrendStable
	}

	change := (second - first) / first
	switch {
	case change > e.policy.TrendThreshold:
		return TrendImproving
	case change < -e.policy.TrendThreshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
