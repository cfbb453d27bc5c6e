// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package abtest

import (
	"errors"
	"math"

	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrEmptyCurve indicates a simulation request without a retention curve.
	ErrEmptyCurve = errors.New("retention curve is empty")

	// ErrInvalidTargetWeek indicates a negative target week.
	ErrInvalidTargetWeek = errors.New("target week must be non-negative")

	// ErrInvalidDelta indicates a non-positive improvement.
	ErrInvalidDelta = errors.New("delta must be positive")

	// ErrInvalidAlpha indicates alpha outside (0, 1).
	ErrInvalidAlpha = errors.New("alpha must be in (0, 1)")

	// ErrInvalidPower indicates power outside (0, 1).
	ErrInvalidPower = errors.New("power must be in (0, 1)")

	// ErrInvalidARPU indicates a non-positive ARPU.
	ErrInvalidARPU = errors.New("arpu must be positive")

	// ErrInvalidDecayRate indicates a negative decay rate.
	ErrInvalidDecayRate = errors.New("decay rate must be non-negative")
)

// -----------------------------------------------------------------------------
// Defaults
// -----------------------------------------------------------------------------

const (
	DefaultAlpha     = 0.05
	DefaultPower     = 0.80
	DefaultARPU      = 1.0
	DefaultDecayRate = 0.5

	// NoDecay keeps the lift constant from the target week on. Zero
	// cannot express this because it selects DefaultDecayRate.
	NoDecay = math.SmallestNonzeroFloat64

	// DefaultBaselineRate is assumed when the target week is not on the
	// curve.
	DefaultBaselineRate = 0.5

	// InfiniteSampleSize marks a sample size that does not exist.
	InfiniteSampleSize = -1

	// MonthlyUsers scales an LTV delta into a monthly revenue impact.
	MonthlyUsers = 1000
)

// PowerCurveSizes are the per-group sample sizes of the power curve.
var PowerCurveSizes = []int{10, 20, 30, 50, 75, 100, 150, 200, 300, 400, 500, 750, 1000, 1500, 2000}

// Scenarios lists the what-if multipliers in output order.
var Scenarios = []ScenarioFactor{
	{Name: "conservative", Factor: 0.5},
	{Name: "baseline", Factor: 1.0},
	{Name: "aggressive", Factor: 1.5},
	{Name: "optimal", Factor: 2.0},
}

// ScenarioFactor scales the requested delta for a what-if scenario.
type ScenarioFactor struct {
	Name   string
	Factor float64
}

// -----------------------------------------------------------------------------
// Inputs
// -----------------------------------------------------------------------------

// SampleSizeParams configures RequiredSampleSize. Zero Alpha and Power
// select the defaults.
type SampleSizeParams struct {
	BaselineRate float64
	MDE          float64
	Alpha        float64
	Power        float64
}

// PowerParams configures CalculatePower. Zero Alpha selects the default.
type PowerParams struct {
	BaselineRate float64
	MDE          float64
	SampleSize   int
	Alpha        float64
}

// SimulateParams configures SimulateRetention. A non-positive DecayRate
// selects the default. Use NoDecay for a permanent lift.
type SimulateParams struct {
	RetentionCurve []cohort.CurvePoint
	TargetWeek     int
	Delta          float64
	DecayRate      float64
}

// Params configures RunABTestSimulation. Zero Alpha, Power, ARPU and
// DecayRate select the defaults. Use NoDecay for a permanent lift.
type Params struct {
	RetentionCurve []cohort.CurvePoint `json:"retentionCurve"`
	TargetWeek     int                 `json:"targetWeek"`
	Delta          float64             `json:"delta"`
	Alpha          float64             `json:"alpha,omitempty"`
	Power          float64             `json:"power,omitempty"`
	ARPU           float64             `json:"arpu,omitempty"`
	DecayRate      float64             `json:"decayRate,omitempty"`
}

// WithDefaults returns p with zero optional fields replaced by defaults.
func (p Params) WithDefaults() Params {
	if p.Alpha == 0 {
		p.Alpha = DefaultAlpha
	}
	if p.Power == 0 {
		p.Power = DefaultPower
	}
	if p.ARPU == 0 {
		p.ARPU = DefaultARPU
	}
	if p.DecayRate == 0 {
		p.DecayRate = DefaultDecayRate
	}
	return p
}

// Validate rejects requests the simulation cannot answer meaningfully.
// Call it on defaulted params.
func (p Params) Validate() error {
	switch {
	case len(p.RetentionCurve) == 0:
		return ErrEmptyCurve
	case p.TargetWeek < 0:
		return ErrInvalidTargetWeek
	case p.Delta <= 0:
		return ErrInvalidDelta
	case p.Alpha <= 0 || p.Alpha >= 1:
		return ErrInvalidAlpha
	case p.Power <= 0 || p.Power >= 1:
		return ErrInvalidPower
	case p.ARPU <= 0:
		return ErrInvalidARPU
	case p.DecayRate < 0:
		return ErrInvalidDecayRate
	}
	return nil
}

// -----------------------------------------------------------------------------
// Outputs
// -----------------------------------------------------------------------------

// SampleSizeResult is the per-group sample size of a test.
type SampleSizeResult struct {
	// SampleSize is InfiniteSampleSize when Infinite is set.
	SampleSize    int     `json:"sampleSize"`
	Infinite      bool    `json:"infinite"`
	TreatmentRate float64 `json:"treatmentRate"`
	EffectSize    float64 `json:"effectSize"`
}

// PowerPoint is one point of the power curve.
type PowerPoint struct {
	N     int     `json:"n"`
	Power float64 `json:"power"`
}

// PowerAnalysis sizes the experiment.
type PowerAnalysis struct {
	SampleSize      int          `json:"sampleSize"`
	TotalSampleSize int          `json:"totalSampleSize"`
	Infinite        bool         `json:"infinite"`
	MDE             float64      `json:"mde"`
	BaselineRate    float64      `json:"baselineRate"`
	BaselineAssumed bool         `json:"baselineAssumed"`
	TreatmentRate   float64      `json:"treatmentRate"`
	Alpha           float64      `json:"alpha"`
	Power           float64      `json:"power"`
	PowerCurve      []PowerPoint `json:"powerCurve"`
}

// RetentionComparison holds the control and simulated treatment curves.
type RetentionComparison struct {
	Control    []cohort.CurvePoint `json:"control"`
	Treatment  []cohort.CurvePoint `json:"treatment"`
	TargetWeek int                 `json:"targetWeek"`
	Delta      float64             `json:"delta"`
}

// LTVImpact compares projected LTV of control and treatment.
type LTVImpact struct {
	ControlLTV           float64 `json:"controlLTV"`
	TreatmentLTV         float64 `json:"treatmentLTV"`
	LTVDelta             float64 `json:"ltvDelta"`
	LTVDeltaPct          float64 `json:"ltvDeltaPct"`
	MonthlyRevenueImpact int     `json:"monthlyRevenueImpact"`
}

// ScenarioResult is one what-if scenario.
type ScenarioResult struct {
	Name       string  `json:"name"`
	Delta      float64 `json:"delta"`
	SampleSize int     `json:"sampleSize"`
	Infinite   bool    `json:"infinite"`
	LTVDelta   float64 `json:"ltvDelta"`
	MonthlyROI int     `json:"monthlyROI"`
}

// Result is the full output of RunABTestSimulation.
type Result struct {
	PowerAnalysis PowerAnalysis       `json:"powerAnalysis"`
	Retention     RetentionComparison `json:"retention"`
	LTVImpact     LTVImpact           `json:"ltvImpact"`
	Scenarios     []ScenarioResult    `json:"scenarios"`
}
