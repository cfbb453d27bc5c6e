// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ltv projects per-cohort lifetime value by extrapolating observed
// retention with a single exponential decay rate.
//
// # Model
//
//	observed:   LTV_obs  = ARPU * Σ r(w)/100              for observed weeks
//	decay:      λ        = -ln(R_last / R_prev) / Δweek     last two points, λ >= 0
//	projection: r(t)     = R_last * e^(-λ t)                until maxWeek or r < 1%
//	projected:  LTV_proj = LTV_obs + ARPU * Σ r(t)
//
// Retention upticks give λ = 0 and are never extrapolated, so
// LTV_proj >= LTV_obs always holds.
package ltv
