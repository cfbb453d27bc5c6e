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

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// Event Rows
// =============================================================================

// EventRow is one validated activity record.
//
// SignupDate <= EventDate holds for every row produced by ingest. Only the
// calendar day of each date is significant.
type EventRow struct {
	UserID     string    `json:"userId"`
	SignupDate time.Time `json:"signupDate"`
	EventDate  time.Time `json:"eventDate"`
}

// =============================================================================
// Cohort Membership
// =============================================================================

// Membership is the permanent cohort assignment of a user.
type Membership struct {
	Cohort     string    `json:"cohort"`
	SignupDate time.Time `json:"signupDate"`
}

// CohortInfo holds cohort membership sets and the user-to-cohort map.
//
// Description:
//
//	Cohorts keep insertion order, which is the order their first member
//	appeared in the input. Members of a cohort are a set. The user map
//	holds the first-seen assignment of each user.
//
// Thread Safety: Not safe for concurrent mutation. Safe for concurrent
// reads once GroupByCohort has returned.
type CohortInfo struct {
	order   []string
	members map[string]map[string]struct{}
	users   map[string]Membership
}

// NewCohortInfo returns an empty CohortInfo.
func NewCohortInfo() *CohortInfo {
	return &CohortInfo{
		order:   make([]string, 0),
		members: make(map[string]map[string]struct{}),
		users:   make(map[string]Membership),
	}
}

// Add records userID as a member of cohort key. The first call for a user
// fixes its Membership.
func (ci *CohortInfo) Add(key, userID string, signup time.Time) {
	set, ok := ci.members[key]
	if !ok {
		set = make(map[string]struct{})
		ci.members[key] = set
		ci.order = append(ci.order, key)
	}
	set[userID] = struct{}{}

	if _, seen := ci.users[userID]; !seen {
		ci.users[userID] = Membership{Cohort: key, SignupDate: DateOf(signup)}
	}
}

// Keys returns cohort keys in insertion order.
func (ci *CohortInfo) Keys() []string {
	if ci == nil {
		return []string{}
	}
	out := make([]string, len(ci.order))
	copy(out, ci.order)
	return out
}

// SortedKeys returns cohort keys in ascending (chronological) order.
func (ci *CohortInfo) SortedKeys() []string {
	keys := ci.Keys()
	sort.Strings(keys)
	return keys
}

// Len returns the number of cohorts.
func (ci *CohortInfo) Len() int {
	if ci == nil {
		return 0
	}
	return len(ci.order)
}

// Size returns the number of members of cohort key.
func (ci *CohortInfo) Size(key string) int {
	if ci == nil {
		return 0
	}
	return len(ci.members[key])
}

// Members returns the sorted member IDs of cohort key.
func (ci *CohortInfo) Members(key string) []string {
	if ci == nil {
		return []string{}
	}
	set := ci.members[key]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the Membership of userID.
func (ci *CohortInfo) Lookup(userID string) (Membership, bool) {
	if ci == nil {
		return Membership{}, false
	}
	m, ok := ci.users[userID]
	return m, ok
}

// UserCount returns the number of distinct users.
func (ci *CohortInfo) UserCount() int {
	if ci == nil {
		return 0
	}
	return len(ci.users)
}

type cohortInfoJSON struct {
	Cohorts       map[string][]string   `json:"cohorts"`
	Order         []string              `json:"order"`
	UserCohortMap map[string]Membership `json:"userCohortMap"`
}

// MarshalJSON encodes membership sets as sorted arrays.
func (ci *CohortInfo) MarshalJSON() ([]byte, error) {
	out := cohortInfoJSON{
		Cohorts:       make(map[string][]string, ci.Len()),
		Order:         ci.Keys(),
		UserCohortMap: make(map[string]Membership),
	}
	if ci != nil {
		for _, key := range ci.order {
			out.Cohorts[key] = ci.Members(key)
		}
		for id, m := range ci.users {
			out.UserCohortMap[id] = m
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a CohortInfo written by MarshalJSON. When the
// order field is absent, cohorts are restored in ascending key order.
func (ci *CohortInfo) UnmarshalJSON(data []byte) error {
	var in cohortInfoJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode cohort info: %w", err)
	}

	order := in.Order
	if len(order) == 0 {
		for key := range in.Cohorts {
			order = append(order, key)
		}
		sort.Strings(order)
	}

	*ci = *NewCohortInfo()
	for _, key := range order {
		set := make(map[string]struct{}, len(in.Cohorts[key]))
		for _, id := range in.Cohorts[key] {
			set[id] = struct{}{}
		}
		ci.members[key] = set
		ci.order = append(ci.order, key)
	}
	for id, m := range in.UserCohortMap {
		ci.users[id] = m
	}
	return nil
}

// =============================================================================
// Retention
// =============================================================================

// RetentionRow is one (cohort, week) cell of the retention matrix.
type RetentionRow struct {
	Cohort    string  `json:"cohort"`
	Week      int     `json:"week"`
	Users     int     `json:"users"`
	Total     int     `json:"total"`
	Retention float64 `json:"retention"`
}

// CurvePoint is a single point on a retention curve. Retention is on the
// 0-100 scale.
type CurvePoint struct {
	Week      int     `json:"week"`
	Retention float64 `json:"retention"`
	Total     int     `json:"total,omitempty"`
}

// HeatmapPoint is one matrix-plot cell.
type HeatmapPoint struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	V     float64 `json:"v"`
	Label string  `json:"label"`
	Users int     `json:"users"`
	Total int     `json:"total"`
}

// HeatmapSummary describes the heatmap dimensions.
type HeatmapSummary struct {
	TotalCohorts int `json:"totalCohorts"`
	TotalWeeks   int `json:"totalWeeks"`
}

// Heatmap is the plot-ready form of a retention matrix.
type Heatmap struct {
	Data       []HeatmapPoint `json:"data"`
	CohortList []string       `json:"cohortList"`
	MaxWeek    int            `json:"maxWeek"`
	Summary    HeatmapSummary `json:"summary"`
}

// Performance reports cohort analysis timing. Duration is informational.
type Performance struct {
	DurationMs     int64 `json:"duration"`
	RowsProcessed  int   `json:"rowsProcessed"`
	CohortsCreated int   `json:"cohortsCreated"`
}

// Analysis is the full result of AnalyzeCohort.
type Analysis struct {
	Cohorts         []string       `json:"cohorts"`
	RetentionMatrix []RetentionRow `json:"retentionMatrix"`
	Heatmap         Heatmap        `json:"heatmapData"`
	CohortInfo      *CohortInfo    `json:"cohortInfo"`
	Performance     Performance    `json:"performance"`
}
