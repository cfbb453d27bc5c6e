// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cohort groups validated event rows into weekly signup cohorts and
// computes the retention matrix every other engine builds on.
//
// # Data Flow
//
//	EventRow[] ──► GroupByCohort ──► CohortInfo ─┬─► CalculateRetention ──► []RetentionRow
//	                                             │                              │
//	                                             │                              ▼
//	                                             │                      FormatForHeatmap
//	                                             └─► churn / stats engines
//
// # Week Arithmetic
//
// All dates are reduced to calendar days. A cohort key is the Monday of the
// signup week formatted as "2006-01-02". Week differences are whole weeks of
// elapsed calendar days, truncated toward zero (WeeksBetween).
//
// # Cohort Assignment
//
// The first row seen for a user fixes the user's cohort and signup date for
// the run. Later rows for the same user with a different signup date are
// still added to the cohort of their own signup week, which mirrors how the
// membership sets are built. Ingest flags such inputs with a warning.
//
// # Thread Safety
//
// Functions are pure. A CohortInfo is safe for concurrent reads once built.
package cohort
