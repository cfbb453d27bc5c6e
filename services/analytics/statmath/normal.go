// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package statmath

import "math"

// -----------------------------------------------------------------------------
// Normal Distribution
// -----------------------------------------------------------------------------

// Abramowitz & Stegun 26.2.17 coefficients.
const (
	asP  = 0.2316419
	asB1 = 0.319381530
	asB2 = -0.356563782
	asB3 = 1.781477937
	asB4 = -1.821255978
	asB5 = 1.330274429
)

// Acklam inverse-normal coefficients.
var (
	acklamA = [6]float64{
		-3.969683028665376e1, 2.209460984245205e2, -2.759285104469687e2,
		1.383577518672690e2, -3.066479806614716e1, 2.506628277459239e0,
	}
	acklamB = [5]float64{
		-5.447609879822406e1, 1.615858368580409e2, -1.556989798598866e2,
		6.680131188771972e1, -1.328068155288572e1,
	}
	acklamC = [6]float64{
		-7.784894002430293e-3, -3.223964580411365e-1, -2.400758277161838e0,
		-2.549732539343734e0, 4.374664141464968e0, 2.938163982698783e0,
	}
	acklamD = [4]float64{
		7.784695709041462e-3, 3.224671290700398e-1, 2.445134137142996e0,
		3.754408661907416e0,
	}
)

// Tail boundaries for the three-region PPF approximation.
const (
	ppfLow  = 0.02425
	ppfHigh = 1 - ppfLow
)

// NormalCDF returns the standard normal cumulative distribution Phi(x).
//
// Description:
//
//	Uses the Abramowitz-Stegun rational approximation 26.2.17. The upper
//	half is computed directly and the lower half by reflection, so
//	NormalCDF(x) + NormalCDF(-x) == 1 holds exactly in float64.
//
// Inputs:
//   - x: Any finite value.
//
// Outputs:
//   - float64: Phi(x) in [0, 1]. NormalCDF(0) is exactly 0.5.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func NormalCDF(x float64) float64 {
	if x == 0 {
		return 0.5
	}
	ax := math.Abs(x)

	t := 1.0 / (1.0 + asP*ax)
	t2 := t * t
	t3 := t2 * t
	t4 := t3 * t
	t5 := t4 * t

	phi := math.Exp(-0.5*ax*ax) / math.Sqrt(2*math.Pi)
	cdf := 1.0 - phi*(asB1*t+asB2*t2+asB3*t3+asB4*t4+asB5*t5)

	if x > 0 {
		return cdf
	}
	return 1.0 - cdf
}

// NormalPPF returns the inverse standard normal CDF Phi^-1(p).
//
// Description:
//
//	Peter Acklam's rational approximation, split into a low tail
//	(p < 0.02425), a central region and a high tail (p > 0.97575).
//
// Inputs:
//   - p: Probability. Values outside (0, 1) saturate.
//
// Outputs:
//   - float64: The quantile. -Inf for p <= 0, +Inf for p >= 1, exactly 0
//     for p == 0.5.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func NormalPPF(p float64) float64 {
	switch {
	case p <= 0:
		return math.Inf(-1)
	case p >= 1:
		return math.Inf(1)
	case p == 0.5:
		return 0
	}

	a, b, c, d := acklamA, acklamB, acklamC, acklamD

	if p < ppfLow {
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	}

	if p <= ppfHigh {
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}

	q := math.Sqrt(-2 * math.Log(1-p))
	return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
		((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
}
