// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cohort

import "time"

// KeyLayout is the layout of cohort keys.
const KeyLayout = "2006-01-02"

// DateOf returns the calendar day of t as UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeekStart returns the Monday of the week containing t.
func WeekStart(t time.Time) time.Time {
	d := DateOf(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// Key returns the cohort key for a signup date.
func Key(signup time.Time) string {
	return WeekStart(signup).Format(KeyLayout)
}

// ParseKey parses a cohort key back into its Monday date.
func ParseKey(key string) (time.Time, error) {
	return time.Parse(KeyLayout, key)
}

// DaysBetween returns the number of calendar days from earlier to later.
// The result is negative when later precedes earlier.
func DaysBetween(later, earlier time.Time) int {
	return int(DateOf(later).Sub(DateOf(earlier)).Hours() / 24)
}

// WeeksBetween returns the number of whole weeks from earlier to later,
// truncated toward zero.
func WeeksBetween(later, earlier time.Time) int {
	return DaysBetween(later, earlier) / 7
}
