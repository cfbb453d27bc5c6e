// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
)

// SampleSeed is the default generator seed.
const SampleSeed = 42

// SampleCohortSizes is the number of users signing up in each weekly
// cohort of the sample data set.
var SampleCohortSizes = []int{65, 70, 55, 60, 75, 68, 72, 58, 80, 62, 50, 65, 70, 55, 60, 45}

// sampleBaseRetention is the week-by-week activity probability in
// percent before seasonality, maturity and noise.
var sampleBaseRetention = []float64{100, 72, 55, 44, 37, 32, 28, 25, 22, 20, 18, 17, 16, 15, 14, 13}

const (
	sampleNoiseSigma    = 0.08
	sampleMinProb       = 0.02
	sampleMaxProb       = 0.98
	sampleReengageProb  = 0.05
	sampleMaturityStart = 4
	sampleMaturityStep  = 0.02
)

// SampleOptions configures GenerateSample.
type SampleOptions struct {
	// Start is the first cohort week. It is moved back to its Monday.
	// Zero means 2025-09-01.
	Start time.Time

	// Seed drives the random source. Zero means SampleSeed.
	Seed uint64

	// OnCohort is called after each cohort is generated, with the number
	// of cohorts done so far.
	OnCohort func(done int)
}

// GenerateSample builds a realistic synthetic data set of weekly cohorts.
//
// Description:
//
//	Every user has a signup event. For each following week the user is
//	active with the base probability scaled by a seasonal factor (0.85
//	from the ninth cohort, 0.7 from the thirteenth), a maturity bonus
//	for later cohorts and gaussian noise, clamped to [0.02, 0.98]. The
//	first inactive week ends the user's activity, except for a 5% chance
//	of one re-engagement event one to three weeks later. Event dates
//	carry a random 0-6 day offset within their week.
//
// Outputs:
//   - []RawRecord: Sorted by signup date, user ID, then event date. User
//     IDs are U0001, U0002, ... in cohort order.
func GenerateSample(opts SampleOptions) []RawRecord {
	start := opts.Start
	if start.IsZero() {
		start = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	}
	start = cohort.WeekStart(start)
	seed := opts.Seed
	if seed == 0 {
		seed = SampleSeed
	}
	rng := rand.New(rand.NewPCG(seed, 0))

	total := 0
	for _, n := range SampleCohortSizes {
		total += n
	}
	records := make([]RawRecord, 0, total*3)
	userID := 1

	for ci, size := range SampleCohortSizes {
		cohortDate := start.AddDate(0, 0, 7*ci)
		signup := cohortDate.Format(cohort.KeyLayout)

		season := 1.0
		if ci >= 8 {
			season = 0.85
		}
		if ci >= 12 {
			season = 0.7
		}
		maturity := max(0, float64(ci-sampleMaturityStart)*sampleMaturityStep)

		for range size {
			uid := fmt.Sprintf("U%04d", userID)
			userID++
			records = append(records, RawRecord{UserID: uid, SignupDate: signup, EventDate: signup})

			for week := 1; week < len(sampleBaseRetention); week++ {
				prob := min(sampleBaseRetention[week]/100*season*(1+maturity), sampleMaxProb)
				prob += rng.NormFloat64() * sampleNoiseSigma
				prob = max(sampleMinProb, min(sampleMaxProb, prob))

				if rng.Float64() < prob {
					event := cohortDate.AddDate(0, 0, 7*week+rng.IntN(7))
					records = append(records, RawRecord{UserID: uid, SignupDate: signup, EventDate: event.Format(cohort.KeyLayout)})
					continue
				}
				if rng.Float64() < sampleReengageProb {
					back := week + 1 + rng.IntN(3)
					event := cohortDate.AddDate(0, 0, 7*back+rng.IntN(7))
					records = append(records, RawRecord{UserID: uid, SignupDate: signup, EventDate: event.Format(cohort.KeyLayout)})
				}
				break
			}
		}
		if opts.OnCohort != nil {
			opts.OnCohort(ci + 1)
		}
	}

	slices.SortFunc(records, func(a, b RawRecord) int {
		return cmp.Or(
			cmp.Compare(a.SignupDate, b.SignupDate),
			cmp.Compare(a.UserID, b.UserID),
			cmp.Compare(a.EventDate, b.EventDate),
		)
	})
	return records
}
