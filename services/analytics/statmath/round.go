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

// Round rounds x to the given number of decimals, with halves rounded
// toward positive infinity.
//
// Round(2.45, 1) == 2.5 and Round(-2.5, 0) == -2.
func Round(x float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Floor(x*scale+0.5) / scale
}

// RoundInt rounds x to the nearest integer with halves toward positive infinity.
func RoundInt(x float64) int {
	return int(math.Floor(x + 0.5))
}

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, x))
}
