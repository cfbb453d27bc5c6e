// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package statmath provides the special-function primitives used by the
// cohort analytics engines.
//
// # Functions
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│ NormalCDF    Abramowitz-Stegun 26.2.17, |err| < 1.5e-7           │
//	│ NormalPPF    Acklam rational approximation, |err| < 1.15e-9      │
//	│ Chi2PValue   Q(df/2, chi2/2) via series / modified Lentz CF      │
//	│ LnGamma      Lanczos (g=7, 9 coefficients) + reflection          │
//	│ Round        half-up rounding to a fixed number of decimals      │
//	└──────────────────────────────────────────────────────────────────┘
//
// All functions are pure and assume finite input. Degenerate inputs
// (p outside (0,1), negative statistics, df <= 0) return well-defined
// sentinel values rather than errors.
//
// # Thread Safety
//
// Every function in this package is stateless and safe for concurrent use.
package statmath
