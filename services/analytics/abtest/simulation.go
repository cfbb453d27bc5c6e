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
	"math"

	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/AleutianAI/CohortIQ/services/analytics/ltv"
	"github.com/AleutianAI/CohortIQ/services/analytics/statmath"
)

// -----------------------------------------------------------------------------
// Power Analysis
// -----------------------------------------------------------------------------

// RequiredSampleSize computes the per-group sample size of a
// two-proportion z-test.
//
// Description:
//
//	The treatment rate is capped at 1. When mde is non-positive, or the
//	cap removes the effect, no finite sample size exists and the result
//	is marked Infinite.
//
// Inputs:
//   - params: Baseline rate and absolute MDE on the 0-1 scale.
//
// Outputs:
//   - SampleSizeResult: SampleSize rounded up to a whole user.
func RequiredSampleSize(params SampleSizeParams) SampleSizeResult {
	alpha, power := params.Alpha, params.Power
	if alpha == 0 {
		alpha = DefaultAlpha
	}
	if power == 0 {
		power = DefaultPower
	}

	p1 := params.BaselineRate
	if params.MDE <= 0 {
		return SampleSizeResult{SampleSize: InfiniteSampleSize, Infinite: true, TreatmentRate: p1}
	}

	p2 := math.Min(1, p1+params.MDE)
	diff := p2 - p1
	if diff <= 0 {
		return SampleSizeResult{SampleSize: InfiniteSampleSize, Infinite: true, TreatmentRate: p2}
	}

	zAlpha := statmath.NormalPPF(1 - alpha/2)
	zBeta := statmath.NormalPPF(power)
	variance := p1*(1-p1) + p2*(1-p2)
	n := math.Ceil(math.Pow(zAlpha+zBeta, 2) * variance / (diff * diff))
	// Both groups are summed downstream, so half of MaxInt is the ceiling.
	if math.IsNaN(n) || math.IsInf(n, 0) || n >= float64(math.MaxInt/2) {
		return SampleSizeResult{SampleSize: InfiniteSampleSize, Infinite: true, TreatmentRate: p2, EffectSize: diff}
	}

	return SampleSizeResult{
		SampleSize:    int(n),
		TreatmentRate: p2,
		EffectSize:    diff,
	}
}

// CalculatePower returns the power of a two-proportion z-test with
// sampleSize users per group.
//
// Outputs:
//   - float64: In [0, 1]. Zero for a non-positive effect or sample size,
//     one when the standard error vanishes.
func CalculatePower(params PowerParams) float64 {
	alpha := params.Alpha
	if alpha == 0 {
		alpha = DefaultAlpha
	}
	if params.MDE <= 0 || params.SampleSize <= 0 {
		return 0
	}

	p1 := params.BaselineRate
	p2 := math.Min(1, p1+params.MDE)
	diff := p2 - p1
	if diff <= 0 {
		return 0
	}

	zAlpha := statmath.NormalPPF(1 - alpha/2)
	se := math.Sqrt((p1*(1-p1) + p2*(1-p2)) / float64(params.SampleSize))
	if se <= 0 {
		return 1
	}
	return statmath.NormalCDF(diff/se - zAlpha)
}

// powerCurve evaluates power at every PowerCurveSizes entry.
func powerCurve(baseline, mde, alpha float64) []PowerPoint {
	points := make([]PowerPoint, 0, len(PowerCurveSizes))
	for _, n := range PowerCurveSizes {
		pw := CalculatePower(PowerParams{BaselineRate: baseline, MDE: mde, SampleSize: n, Alpha: alpha})
		points = append(points, PowerPoint{N: n, Power: statmath.Round(pw, 3)})
	}
	return points
}

// -----------------------------------------------------------------------------
// Retention Simulation
// -----------------------------------------------------------------------------

// SimulateRetention applies a fading treatment effect to a curve.
//
// Description:
//
//	Weeks before TargetWeek are copied unchanged. From TargetWeek on,
//	retention gains Delta·e^(-DecayRate·(week-TargetWeek)), clamped to
//	[0, 100] and rounded to two decimals.
//
// Outputs:
//   - []cohort.CurvePoint: A new curve. The input is not modified.
func SimulateRetention(params SimulateParams) []cohort.CurvePoint {
	decay := params.DecayRate
	if decay <= 0 {
		decay = DefaultDecayRate
	}

	out := make([]cohort.CurvePoint, 0, len(params.RetentionCurve))
	for _, p := range params.RetentionCurve {
		if p.Week < params.TargetWeek {
			out = append(out, p)
			continue
		}
		effect := params.Delta * math.Exp(-decay*float64(p.Week-params.TargetWeek))
		p.Retention = statmath.Round(statmath.Clamp(p.Retention+effect, 0, 100), 2)
		out = append(out, p)
	}
	return out
}

// -----------------------------------------------------------------------------
// Full Simulation
// -----------------------------------------------------------------------------

// RunABTestSimulation sizes an experiment and estimates its LTV impact.
//
// Description:
//
//	The baseline rate is the curve's retention at TargetWeek. When that
//	week is missing, DefaultBaselineRate is used and BaselineAssumed is
//	set. Control and treatment LTV use the default LTV policy and
//	horizon.
//
// Inputs:
//   - params: Simulation request. Zero optional fields take defaults.
//
// Outputs:
//   - *Result: Nil when the curve is empty or TargetWeek is negative.
//     Exactly four scenarios, ordered conservative, baseline, aggressive,
//     optimal.
//
// Thread Safety: Safe for concurrent use.
func RunABTestSimulation(params Params) *Result {
	if len(params.RetentionCurve) == 0 || params.TargetWeek < 0 {
		return nil
	}
	p := params.WithDefaults()

	baseline, assumed := DefaultBaselineRate, true
	for _, pt := range p.RetentionCurve {
		if pt.Week == p.TargetWeek {
			baseline, assumed = pt.Retention/100, false
			break
		}
	}
	mde := p.Delta / 100

	size := RequiredSampleSize(SampleSizeParams{BaselineRate: baseline, MDE: mde, Alpha: p.Alpha, Power: p.Power})
	total := InfiniteSampleSize
	if !size.Infinite {
		total = size.SampleSize * 2
	}

	control := append([]cohort.CurvePoint(nil), p.RetentionCurve...)
	treatment := SimulateRetention(SimulateParams{
		RetentionCurve: p.RetentionCurve,
		TargetWeek:     p.TargetWeek,
		Delta:          p.Delta,
		DecayRate:      p.DecayRate,
	})

	controlLTV := projectedLTV(control, p.ARPU)
	treatmentLTV := projectedLTV(treatment, p.ARPU)
	ltvDelta := statmath.Round(treatmentLTV-controlLTV, 2)
	var ltvDeltaPct float64
	if controlLTV > 0 {
		ltvDeltaPct = statmath.Round((treatmentLTV-controlLTV)/controlLTV*100, 2)
	}

	return &Result{
		PowerAnalysis: PowerAnalysis{
			SampleSize:      size.SampleSize,
			TotalSampleSize: total,
			Infinite:        size.Infinite,
			MDE:             mde,
			BaselineRate:    baseline,
			BaselineAssumed: assumed,
			TreatmentRate:   size.TreatmentRate,
			Alpha:           p.Alpha,
			Power:           p.Power,
			PowerCurve:      powerCurve(baseline, mde, p.Alpha),
		},
		Retention: RetentionComparison{
			Control:    control,
			Treatment:  treatment,
			TargetWeek: p.TargetWeek,
			Delta:      p.Delta,
		},
		LTVImpact: LTVImpact{
			ControlLTV:           controlLTV,
			TreatmentLTV:         treatmentLTV,
			LTVDelta:             ltvDelta,
			LTVDeltaPct:          ltvDeltaPct,
			MonthlyRevenueImpact: statmath.RoundInt(ltvDelta * MonthlyUsers),
		},
		Scenarios: scenarios(p, baseline, controlLTV),
	}
}

func scenarios(p Params, baseline, controlLTV float64) []ScenarioResult {
	out := make([]ScenarioResult, 0, len(Scenarios))
	for _, sf := range Scenarios {
		delta := p.Delta * sf.Factor
		size := RequiredSampleSize(SampleSizeParams{
			BaselineRate: baseline,
			MDE:          delta / 100,
			Alpha:        p.Alpha,
			Power:        p.Power,
		})
		treatment := SimulateRetention(SimulateParams{
			RetentionCurve: p.RetentionCurve,
			TargetWeek:     p.TargetWeek,
			Delta:          delta,
			DecayRate:      p.DecayRate,
		})
		ltvDelta := statmath.Round(projectedLTV(treatment, p.ARPU)-controlLTV, 2)

		out = append(out, ScenarioResult{
			Name:       sf.Name,
			Delta:      delta,
			SampleSize: size.SampleSize,
			Infinite:   size.Infinite,
			LTVDelta:   ltvDelta,
			MonthlyROI: statmath.RoundInt(ltvDelta * MonthlyUsers),
		})
	}
	return out
}

func projectedLTV(curve []cohort.CurvePoint, arpu float64) float64 {
	return ltv.CalculateCohortLTV(curve, arpu, ltv.DefaultMaxWeek).ProjectedLTV
}
