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

import "github.com/AleutianAI/CohortIQ/services/analytics/statmath"

// GenerateInsights derives insights with the default policy.
func GenerateInsights(s Segmentation) []Insight {
	return NewEngine(DefaultPolicy(), nil).Insights(s)
}

// Insights applies the insight rules in order. Each rule is gated
// independently, so zero to four insights are returned:
//
//  1. critical users present
//  2. high-risk users present
//  3. overall health below HealthyAlertBelow, or at least HealthySuccessAt
//  4. the worst cohort's (critical+high) share above CohortRiskRate
func (e *Engine) Insights(s Segmentation) []Insight {
	insights := make([]Insight, 0, 4)
	sum := s.Summary

	if sum.Critical > 0 {
		insights = append(insights, Insight{
			Type:          InsightAlert,
			Severity:      RiskCritical,
			Code:          CodeCriticalUsers,
			AffectedUsers: sum.Critical,
			Percentage:    sum.CriticalPercentage,
		})
	}

	if sum.High > 0 {
		insights = append(insights, Insight{
			Type:          InsightWarning,
			Severity:      RiskHigh,
			Code:          CodeHighRiskUsers,
			AffectedUsers: sum.High,
			Percentage:    sum.HighPercentage,
		})
	}

	healthy := 100 - sum.CriticalPercentage - sum.HighPercentage
	switch {
	case float64(healthy) < e.policy.HealthyAlertBelow:
		insights = append(insights, Insight{
			Type:          InsightAlert,
			Severity:      RiskHigh,
			Code:          CodeLowHealth,
			AffectedUsers: sum.Critical + sum.High,
			Percentage:    100 - healthy,
		})
	case float64(healthy) >= e.policy.HealthySuccessAt:
		insights = append(insights, Insight{
			Type:          InsightSuccess,
			Severity:      RiskLow,
			Code:          CodeHealthyBase,
			AffectedUsers: sum.Low,
			Percentage:    healthy,
		})
	}

	if hotspot, ok := e.worstCohort(s.Segments); ok {
		insights = append(insights, hotspot)
	}

	return insights
}

type cohortRisk struct {
	critical, high, total int
}

// worstCohort finds the cohort with the highest (critical+high) share.
// Cohorts are visited in the order they first appear across the
// CRITICAL, HIGH, MEDIUM, LOW segments; the first maximum wins.
func (e *Engine) worstCohort(seg Segments) (Insight, bool) {
	order := make([]string, 0)
	stats := make(map[string]*cohortRisk)

	for _, level := range Levels {
		for _, r := range seg.ByLevel(level) {
			st, ok := stats[r.Cohort]
			if !ok {
				st = &cohortRisk{}
				stats[r.Cohort] = st
				order = append(order, r.Cohort)
			}
			st.total++
			switch r.RiskLevel {
			case RiskCritical:
				st.critical++
			case RiskHigh:
				st.high++
			}
		}
	}

	var (
		worst     string
		worstRate float64
		found     bool
	)
	for _, c := range order {
		st := stats[c]
		rate := float64(st.critical+st.high) / float64(st.total) * 100
		if rate > worstRate {
			worst, worstRate, found = c, rate, true
		}
	}

	if !found || worstRate <= e.policy.CohortRiskRate {
		return Insight{}, false
	}

	st := stats[worst]
	return Insight{
		Type:          InsightWarning,
		Severity:      RiskMedium,
		Code:          CodeCohortHotspot,
		AffectedUsers: st.critical + st.high,
		Percentage:    statmath.RoundInt(worstRate),
		Cohort:        worst,
	}, true
}
