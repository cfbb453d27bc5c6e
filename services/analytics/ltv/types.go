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

import "errors"

var (
	// ErrInvalidARPU indicates a negative ARPU.
	ErrInvalidARPU = errors.New("arpu must not be negative")

	// ErrInvalidMaxWeek indicates a negative projection horizon.
	ErrInvalidMaxWeek = errors.New("max week must not be negative")
)

// Defaults for the LTV model.
const (
	DefaultARPU           = 1.0
	DefaultMaxWeek        = 52
	DefaultMinRetention   = 0.01
	ConfidenceHighWeeks   = 8
	ConfidenceMediumWeeks = 4
	DefaultTrendThreshold = 0.1
)

// Confidence grades how much observed data backs a projection.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Trend describes how projected LTV moves across cohorts.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// PointType marks a curve point as observed or projected.
type PointType string

const (
	PointObserved  PointType = "observed"
	PointProjected PointType = "projected"
)

// Policy holds the tunable constants of the model.
type Policy struct {
	MinRetention       float64 `yaml:"min_retention" json:"minRetention"`
	HighConfidenceAt   int     `yaml:"high_confidence_weeks" json:"highConfidenceWeeks"`
	MediumConfidenceAt int     `yaml:"medium_confidence_weeks" json:"mediumConfidenceWeeks"`
	TrendThreshold     float64 `yaml:"trend_threshold" json:"trendThreshold"`
}

// DefaultPolicy returns the standard LTV policy.
func DefaultPolicy() Policy {
	return Policy{
		MinRetention:       DefaultMinRetention,
		HighConfidenceAt:   ConfidenceHighWeeks,
		MediumConfidenceAt: ConfidenceMediumWeeks,
		TrendThreshold:     DefaultTrendThreshold,
	}
}

// Decay is a fitted exponential decay. LastRetention is on the 0-1 scale.
type Decay struct {
	Lambda        float64 `json:"lambda"`
	LastWeek      int     `json:"lastWeek"`
	LastRetention float64 `json:"lastRetention"`
}

// ProjectedPoint is an extrapolated retention value on the 0-1 scale.
type ProjectedPoint struct {
	Week      int     `json:"week"`
	Retention float64 `json:"retention"`
}

// TypedPoint is a point of the combined observed + projected curve on the
// 0-1 scale.
type TypedPoint struct {
	Week      int       `json:"week"`
	Retention float64   `json:"retention"`
	Type      PointType `json:"type"`
}

// CurveLTV is the LTV of a single retention curve.
type CurveLTV struct {
	ObservedLTV    float64      `json:"observedLTV"`
	ProjectedLTV   float64      `json:"projectedLTV"`
	TotalWeeks     int          `json:"totalWeeks"`
	ObservedWeeks  int          `json:"observedWeeks"`
	Confidence     Confidence   `json:"confidence"`
	RetentionCurve []TypedPoint `json:"retentionCurve"`
}

// CohortLTV is the LTV of one cohort.
type CohortLTV struct {
	Cohort        string     `json:"cohort"`
	ObservedLTV   float64    `json:"observedLTV"`
	ProjectedLTV  float64    `json:"projectedLTV"`
	ObservedWeeks int        `json:"observedWeeks"`
	TotalWeeks    int        `json:"totalWeeks"`
	Confidence    Confidence `json:"confidence"`
	CohortSize    int        `json:"cohortSize"`
}

// RankedCohort names a cohort and its projected LTV.
type RankedCohort struct {
	Cohort string  `json:"cohort"`
	LTV    float64 `json:"ltv"`
}

// Summary aggregates projected LTV across cohorts.
type Summary struct {
	AverageLTV            float64       `json:"averageLTV"`
	MedianLTV             float64       `json:"medianLTV"`
	BestCohort            *RankedCohort `json:"bestCohort"`
	WorstCohort           *RankedCohort `json:"worstCohort"`
	LTVTrend              Trend         `json:"ltvTrend"`
	TotalProjectedRevenue float64       `json:"totalProjectedRevenue"`
}

// Performance reports LTV timing. Duration is informational.
type Performance struct {
	DurationMs int64 `json:"duration"`
}

// Result is the full output of PredictLTV.
type Result struct {
	CohortLTVs  []CohortLTV `json:"cohortLTVs"`
	Summary     Summary     `json:"summary"`
	ARPU        float64     `json:"arpu"`
	Performance Performance `json:"performance"`
}

// Options configures PredictLTV. Zero values select the defaults.
// Predict substitutes the defaults for negative values too, so callers
// taking user input should Validate first.
type Options struct {
	ARPU    float64
	MaxWeek int
}

// Validate rejects negative ARPU and MaxWeek.
func (o Options) Validate() error {
	if o.ARPU < 0 {
		return ErrInvalidARPU
	}
	if o.MaxWeek < 0 {
		return ErrInvalidMaxWeek
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.ARPU <= 0 {
		o.ARPU = DefaultARPU
	}
	if o.MaxWeek <= 0 {
		o.MaxWeek = DefaultMaxWeek
	}
	return o
}
