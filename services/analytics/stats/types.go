// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats runs the classical tests over churn results: chi-square
// independence of cohort and risk level, the Kaplan-Meier survival
// estimator and a log-rank comparison of early and late cohorts.
package stats

import "github.com/AleutianAI/CohortIQ/services/analytics/churn"

const (
	// DefaultAlpha is the significance level of every test.
	DefaultAlpha = 0.05

	// DefaultCensorWeeks is the inactivity window below which a user is
	// treated as still active (right-censored).
	DefaultCensorWeeks = 2
)

// Policy holds the tunable constants of the tests.
type Policy struct {
	Alpha       float64 `yaml:"alpha" json:"alpha"`
	CensorWeeks int     `yaml:"censor_weeks" json:"censorWeeks"`
}

// DefaultPolicy returns the standard policy.
func DefaultPolicy() Policy {
	return Policy{Alpha: DefaultAlpha, CensorWeeks: DefaultCensorWeeks}
}

// ChiSquareResult is the cohort × risk level independence test.
type ChiSquareResult struct {
	Chi2             float64           `json:"chi2"`
	DF               int               `json:"df"`
	PValue           float64           `json:"pValue"`
	Significant      bool              `json:"significant"`
	ContingencyTable [][]int           `json:"contingencyTable"`
	Expected         [][]float64       `json:"expected"`
	CohortLabels     []string          `json:"cohortLabels,omitempty"`
	RiskLevels       []churn.RiskLevel `json:"riskLevels,omitempty"`
}

// SurvivalPoint is one step of the Kaplan-Meier curve.
type SurvivalPoint struct {
	Time      int     `json:"time"`
	Survival  float64 `json:"survival"`
	NRisk     int     `json:"nRisk"`
	NEvent    int     `json:"nEvent"`
	NCensored int     `json:"nCensored"`
}

// KaplanMeierResult is the product-limit survival estimate.
// MedianSurvival is nil when survival never reaches 0.5.
type KaplanMeierResult struct {
	SurvivalFunction []SurvivalPoint `json:"survivalFunction"`
	MedianSurvival   *int            `json:"medianSurvival"`
}

// LogRankResult compares early and late cohort groups.
type LogRankResult struct {
	TestStatistic float64 `json:"testStatistic"`
	PValue        float64 `json:"pValue"`
	Significant   bool    `json:"significant"`
	Group1Label   string  `json:"group1Label"`
	Group2Label   string  `json:"group2Label"`
}

// Result bundles all three tests.
type Result struct {
	ChiSquare   ChiSquareResult   `json:"chiSquare"`
	KaplanMeier KaplanMeierResult `json:"kaplanMeier"`
	LogRank     LogRankResult     `json:"logRank"`
}

// subject is one survival observation.
type subject struct {
	time  int
	event bool
}
