// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package churn scores every user's churn risk from their activity pattern
// and turns the scores into segments and insights.
//
// # Scoring
//
// The risk score is the sum of three independent buckets:
//
//	┌────────────────────────┬────────┬───────────────────────────────────┐
//	│ Signal                 │ Points │ Bands (default policy)            │
//	├────────────────────────┼────────┼───────────────────────────────────┤
//	│ Recency                │  0-40  │ >=4w:40  >=3w:30  >=2w:20  >=1w:10 │
//	│ Activity density       │  0-30  │ <25%:30  <50%:20  <75%:10          │
//	│ Consecutive inactivity │  0-30  │ >=4:30   >=3:20   >=2:10           │
//	└────────────────────────┴────────┴───────────────────────────────────┘
//
// Levels: score >= 70 CRITICAL, >= 50 HIGH, >= 30 MEDIUM, else LOW.
//
// Every band is part of Policy and can be recalibrated through
// configuration without touching the scoring code.
//
// # Insights
//
// GenerateInsights emits machine-readable codes with counts and
// percentages. It carries no display text; callers localize.
package churn
