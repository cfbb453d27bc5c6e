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

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// -----------------------------------------------------------------------------
// Normal CDF / PPF
// -----------------------------------------------------------------------------

func TestNormalCDF_KnownValues(t *testing.T) {
	tests := []struct {
		x    float64
		want float64
	}{
		{0, 0.5},
		{1, 0.8413447},
		{-1, 0.1586553},
		{1.959964, 0.975},
		{-1.959964, 0.025},
		{3, 0.9986501},
	}

	for _, tt := range tests {
		got := NormalCDF(tt.x)
		assert.InDelta(t, tt.want, got, 2e-7, "NormalCDF(%v)", tt.x)
	}
}

func TestNormalCDF_ZeroIsExactlyHalf(t *testing.T) {
	assert.Equal(t, 0.5, NormalCDF(0))
}

func TestNormalCDF_Symmetry(t *testing.T) {
	for _, x := range []float64{0.001, 0.1, 0.5, 1, 1.5, 2.33, 3.7, 6, 10} {
		assert.InDelta(t, 1.0, NormalCDF(x)+NormalCDF(-x), 1e-15, "x=%v", x)
	}
}

func TestNormalPPF_Edges(t *testing.T) {
	assert.True(t, math.IsInf(NormalPPF(0), -1))
	assert.True(t, math.IsInf(NormalPPF(-0.5), -1))
	assert.True(t, math.IsInf(NormalPPF(1), 1))
	assert.True(t, math.IsInf(NormalPPF(1.2), 1))
	assert.Equal(t, 0.0, NormalPPF(0.5))
}

func TestNormalPPF_KnownQuantiles(t *testing.T) {
	tests := []struct {
		p    float64
		want float64
	}{
		{0.975, 1.959963985},
		{0.025, -1.959963985},
		{0.8, 0.841621234},
		{0.01, -2.326347874},
		{0.99, 2.326347874},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalPPF(tt.p), 1e-8, "NormalPPF(%v)", tt.p)
	}
}

func TestNormalPPF_RoundTrip(t *testing.T) {
	for _, p := range []float64{0.01, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99} {
		assert.InDelta(t, p, NormalCDF(NormalPPF(p)), 1e-6, "p=%v", p)
	}
}

// -----------------------------------------------------------------------------
// Gamma / Chi-Square
// -----------------------------------------------------------------------------

func TestLnGamma(t *testing.T) {
	tests := []struct {
		name string
		z    float64
		want float64
	}{
		{"one", 1, 0},
		{"two", 2, 0},
		{"five", 5, math.Log(24)},
		{"half", 0.5, 0.5 * math.Log(math.Pi)},
		{"reflection", 0.3, 1.0957979948180756},
		{"large", 50, 144.56574394634488},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, LnGamma(tt.z), 1e-9)
		})
	}
}

func TestChi2PValue_CriticalValues(t *testing.T) {
	assert.InDelta(t, 0.05, Chi2PValue(3.841, 1), 1e-3)
	assert.InDelta(t, 0.05, Chi2PValue(5.991, 2), 1e-3)
	assert.InDelta(t, 0.01, Chi2PValue(6.635, 1), 1e-3)
	assert.InDelta(t, 0.05, Chi2PValue(16.919, 9), 1e-3)
}

func TestChi2PValue_Degenerate(t *testing.T) {
	assert.Equal(t, 1.0, Chi2PValue(3, 0))
	assert.Equal(t, 1.0, Chi2PValue(3, -2))
	assert.Equal(t, 1.0, Chi2PValue(-0.1, 3))
	assert.Equal(t, 1.0, Chi2PValue(0, 3))
}

func TestChi2PValue_Monotonic(t *testing.T) {
	prev := 1.0
	for _, x := range []float64{0.5, 1, 2, 4, 8, 16, 32} {
		p := Chi2PValue(x, 3)
		assert.Less(t, p, prev, "x=%v", x)
		assert.GreaterOrEqual(t, p, 0.0)
		prev = p
	}
}

// -----------------------------------------------------------------------------
// Rounding
// -----------------------------------------------------------------------------

func TestRound(t *testing.T) {
	tests := []struct {
		x        float64
		decimals int
		want     float64
	}{
		{66.66666, 1, 66.7},
		{50, 1, 50},
		{0.12344, 4, 0.1234},
		{2.5, 0, 3},
		{-2.5, 0, -2},
		{1.005, 2, 1.0},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, Round(tt.x, tt.decimals), 1e-12, "Round(%v, %d)", tt.x, tt.decimals)
	}
}

func TestRoundInt(t *testing.T) {
	assert.Equal(t, 3, RoundInt(2.5))
	assert.Equal(t, 2, RoundInt(2.49))
	assert.Equal(t, -2, RoundInt(-2.5))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-5, 0, 100))
	assert.Equal(t, 100.0, Clamp(150, 0, 100))
	assert.Equal(t, 42.0, Clamp(42, 0, 100))
}
