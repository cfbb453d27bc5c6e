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
	"bytes"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSample_Deterministic(t *testing.T) {
	a := GenerateSample(SampleOptions{})
	b := GenerateSample(SampleOptions{Seed: SampleSeed})
	assert.Equal(t, a, b)

	c := GenerateSample(SampleOptions{Seed: 7})
	assert.NotEqual(t, a, c)
}

func TestGenerateSample_Shape(t *testing.T) {
	var progress []int
	records := GenerateSample(SampleOptions{OnCohort: func(done int) { progress = append(progress, done) }})

	assert.Len(t, progress, len(SampleCohortSizes))
	assert.Equal(t, len(SampleCohortSizes), progress[len(progress)-1])
	assert.Equal(t, RawRecord{UserID: "U0001", SignupDate: "2025-09-01", EventDate: "2025-09-01"}, records[0])

	users := map[string]string{}
	signups := map[string]bool{}
	for _, r := range records {
		users[r.UserID] = r.SignupDate
		signups[r.SignupDate] = true
		assert.LessOrEqual(t, r.SignupDate, r.EventDate)
	}
	assert.Len(t, users, 1010)
	assert.Len(t, signups, 16)
	assert.True(t, signups["2025-12-15"])
	assert.Less(t, len(records), MaxRows)

	sorted := slices.IsSortedFunc(records, func(a, b RawRecord) int {
		if a.SignupDate != b.SignupDate {
			return strings.Compare(a.SignupDate, b.SignupDate)
		}
		if a.UserID != b.UserID {
			return strings.Compare(a.UserID, b.UserID)
		}
		return strings.Compare(a.EventDate, b.EventDate)
	})
	assert.True(t, sorted)
}

func TestGenerateSample_StartAlignsToMonday(t *testing.T) {
	// 2024-01-03 is a Wednesday.
	records := GenerateSample(SampleOptions{Start: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)})
	assert.Equal(t, "2024-01-01", records[0].SignupDate)
}

func TestGenerateSample_ValidatesAndAnalyzes(t *testing.T) {
	records := GenerateSample(SampleOptions{})

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))
	decoded, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, records, decoded)

	res := ValidateRecords(decoded, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC))
	require.True(t, res.Valid)
	assert.Empty(t, res.Warnings)

	analysis := cohort.AnalyzeCohort(res.Rows)
	assert.Len(t, analysis.Cohorts, 16)

	// Retention decays: week 1 averages well below week 0.
	curve := cohort.AverageCurve(analysis.RetentionMatrix)
	require.GreaterOrEqual(t, len(curve), 2)
	assert.Equal(t, 100.0, curve[0].Retention)
	assert.Less(t, curve[1].Retention, 90.0)
	assert.Greater(t, curve[1].Retention, 30.0)
}
