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

// Default level thresholds on the 0-100 risk score.
const (
	DefaultCriticalScore = 70
	DefaultHighScore     = 50
	DefaultMediumScore   = 30
)

// NoActivityWeeks is the recency assigned to a user without events.
const NoActivityWeeks = 999

// Default insight gates, in percent.
const (
	DefaultHealthyAlertBelow = 50.0
	DefaultHealthySuccessAt  = 80.0
	DefaultCohortRiskRate    = 50.0
)

// ScoreBand awards Points when a signal crosses Threshold. Bands are
// evaluated in order and the first match wins.
type ScoreBand struct {
	Threshold float64 `yaml:"threshold" json:"threshold"`
	Points    int     `yaml:"points" json:"points"`
}

// Policy holds every tunable constant of the churn engine.
type Policy struct {
	// Recency bands match when weeksSinceLastActivity >= Threshold.
	Recency []ScoreBand `yaml:"recency" json:"recency"`

	// Density bands match when activityDensity < Threshold.
	Density []ScoreBand `yaml:"density" json:"density"`

	// Inactivity bands match when consecutiveInactiveWeeks >= Threshold.
	Inactivity []ScoreBand `yaml:"inactivity" json:"inactivity"`

	CriticalScore int `yaml:"critical_score" json:"criticalScore"`
	HighScore     int `yaml:"high_score" json:"highScore"`
	MediumScore   int `yaml:"medium_score" json:"mediumScore"`

	// HealthyAlertBelow and HealthySuccessAt gate the overall-health insight.
	HealthyAlertBelow float64 `yaml:"healthy_alert_below" json:"healthyAlertBelow"`
	HealthySuccessAt  float64 `yaml:"healthy_success_at" json:"healthySuccessAt"`

	// CohortRiskRate is the (critical+high) share above which a cohort is
	// called out.
	CohortRiskRate float64 `yaml:"cohort_risk_rate" json:"cohortRiskRate"`
}

// DefaultPolicy returns the standard scoring policy.
func DefaultPolicy() Policy {
	return Policy{
		Recency: []ScoreBand{
			{Threshold: 4, Points: 40},
			{Threshold: 3, Points: 30},
			{Threshold: 2, Points: 20},
			{Threshold: 1, Points: 10},
		},
		Density: []ScoreBand{
			{Threshold: 25, Points: 30},
			{Threshold: 50, Points: 20},
			{Threshold: 75, Points: 10},
		},
		Inactivity: []ScoreBand{
			{Threshold: 4, Points: 30},
			{Threshold: 3, Points: 20},
			{Threshold: 2, Points: 10},
		},
		CriticalScore:     DefaultCriticalScore,
		HighScore:         DefaultHighScore,
		MediumScore:       DefaultMediumScore,
		HealthyAlertBelow: DefaultHealthyAlertBelow,
		HealthySuccessAt:  DefaultHealthySuccessAt,
		CohortRiskRate:    DefaultCohortRiskRate,
	}
}

// atLeast returns the points of the first band whose threshold v reaches.
func atLeast(bands []ScoreBand, v float64) int {
	for _, b := range bands {
		if v >= b.Threshold {
			return b.Points
		}
	}
	return 0
}

// below returns the points of the first band whose threshold v is under.
func below(bands []ScoreBand, v float64) int {
	for _, b := range bands {
		if v < b.Threshold {
			return b.Points
		}
	}
	return 0
}

// Level maps a score to its risk level.
func (p Policy) Level(score int) RiskLevel {
	switch {
	case score >= p.CriticalScore:
		return RiskCritical
	case score >= p.HighScore:
		return RiskHigh
	case score >= p.MediumScore:
		return RiskMedium
	default:
		return RiskLow
	}
}
