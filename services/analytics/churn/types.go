// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package churn

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// RiskLevel represents the severity of churn risk.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Levels lists risk levels from most to least severe.
var Levels = []RiskLevel{RiskCritical, RiskHigh, RiskMedium, RiskLow}

// ParseRiskLevel parses a string to RiskLevel. Unknown input maps to LOW.
func ParseRiskLevel(s string) RiskLevel {
	switch strings.ToLower(s) {
	case "critical":
		return RiskCritical
	case "high":
		return RiskHigh
	case "medium":
		return RiskMedium
	default:
		return RiskLow
	}
}

// Order returns the numeric order of this risk level (LOW = 0).
func (r RiskLevel) Order() int {
	switch r {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// =============================================================================
// User Activity
// =============================================================================

// UserActivity accumulates one user's events.
type UserActivity struct {
	Cohort        string
	SignupDate    time.Time
	Events        []time.Time
	LastEventDate time.Time
	TotalEvents   int

	// ActiveWeeks holds weeks since the user's own signup date with at
	// least one event.
	ActiveWeeks map[int]struct{}
}

// HasEvents reports whether any event was recorded.
func (a *UserActivity) HasEvents() bool {
	return !a.LastEventDate.IsZero()
}

// ActiveWeekList returns the active weeks in ascending order.
func (a *UserActivity) ActiveWeekList() []int {
	out := make([]int, 0, len(a.ActiveWeeks))
	for w := range a.ActiveWeeks {
		out = append(out, w)
	}
	sort.Ints(out)
	return out
}

// MarshalJSON encodes ActiveWeeks as a sorted array.
func (a *UserActivity) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Cohort        string      `json:"cohort"`
		SignupDate    time.Time   `json:"signupDate"`
		Events        []time.Time `json:"events"`
		LastEventDate time.Time   `json:"lastEventDate"`
		TotalEvents   int         `json:"totalEvents"`
		ActiveWeeks   []int       `json:"activeWeeks"`
	}{a.Cohort, a.SignupDate, a.Events, a.LastEventDate, a.TotalEvents, a.ActiveWeekList()})
}

// ActivityMap is an insertion-ordered map of user ID to activity.
type ActivityMap struct {
	order  []string
	byUser map[string]*UserActivity
}

// NewActivityMap returns an empty ActivityMap.
func NewActivityMap() *ActivityMap {
	return &ActivityMap{byUser: make(map[string]*UserActivity)}
}

// Get returns the activity of userID.
func (m *ActivityMap) Get(userID string) (*UserActivity, bool) {
	if m == nil {
		return nil, false
	}
	a, ok := m.byUser[userID]
	return a, ok
}

// Put inserts or replaces the activity of userID.
func (m *ActivityMap) Put(userID string, a *UserActivity) {
	if _, ok := m.byUser[userID]; !ok {
		m.order = append(m.order, userID)
	}
	m.byUser[userID] = a
}

// Len returns the number of users.
func (m *ActivityMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// UserIDs returns user IDs in insertion order.
func (m *ActivityMap) UserIDs() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Each calls fn for every user in insertion order.
func (m *ActivityMap) Each(fn func(userID string, a *UserActivity)) {
	if m == nil {
		return
	}
	for _, id := range m.order {
		fn(id, m.byUser[id])
	}
}

// =============================================================================
// Risk Records
// =============================================================================

// Metrics are the raw signals behind a risk score.
type Metrics struct {
	WeeksSinceLastActivity   int     `json:"weeksSinceLastActivity"`
	TotalActiveWeeks         int     `json:"totalActiveWeeks"`
	WeeksSinceSignup         int     `json:"weeksSinceSignup"`
	ActivityDensity          float64 `json:"activityDensity"`
	ConsecutiveInactiveWeeks int     `json:"consecutiveInactiveWeeks"`
	TotalEvents              int     `json:"totalEvents"`
}

// Record is the churn risk assessment of one user.
type Record struct {
	UserID        string    `json:"userId"`
	Cohort        string    `json:"cohort"`
	RiskScore     int       `json:"riskScore"`
	RiskLevel     RiskLevel `json:"riskLevel"`
	Metrics       Metrics   `json:"metrics"`
	LastEventDate time.Time `json:"lastEventDate"`
}

// Segments groups records by risk level.
type Segments struct {
	Critical []Record `json:"CRITICAL"`
	High     []Record `json:"HIGH"`
	Medium   []Record `json:"MEDIUM"`
	Low      []Record `json:"LOW"`
}

// ByLevel returns the records of one level.
func (s *Segments) ByLevel(level RiskLevel) []Record {
	switch level {
	case RiskCritical:
		return s.Critical
	case RiskHigh:
		return s.High
	case RiskMedium:
		return s.Medium
	default:
		return s.Low
	}
}

// SegmentSummary holds counts and rounded percentages per level.
type SegmentSummary struct {
	Total              int `json:"total"`
	Critical           int `json:"critical"`
	High               int `json:"high"`
	Medium             int `json:"medium"`
	Low                int `json:"low"`
	CriticalPercentage int `json:"criticalPercentage"`
	HighPercentage     int `json:"highPercentage"`
}

// Segmentation is the result of SegmentByRisk.
type Segmentation struct {
	Segments Segments       `json:"segments"`
	Summary  SegmentSummary `json:"summary"`
}

// =============================================================================
// Insights
// =============================================================================

// InsightType classifies an insight.
type InsightType string

const (
	InsightAlert   InsightType = "ALERT"
	InsightWarning InsightType = "WARNING"
	InsightSuccess InsightType = "SUCCESS"
)

// Insight codes. Callers map codes to display text.
const (
	CodeCriticalUsers = "CRITICAL_USERS"
	CodeHighRiskUsers = "HIGH_RISK_USERS"
	CodeLowHealth     = "LOW_HEALTH"
	CodeHealthyBase   = "HEALTHY_BASE"
	CodeCohortHotspot = "COHORT_HOTSPOT"
)

// Insight is one rule-based finding.
type Insight struct {
	Type          InsightType `json:"type"`
	Severity      RiskLevel   `json:"severity"`
	Code          string      `json:"code"`
	AffectedUsers int         `json:"affectedUsers"`
	Percentage    int         `json:"percentage"`
	Cohort        string      `json:"cohort,omitempty"`
}

// =============================================================================
// Analysis
// =============================================================================

// Performance reports churn analysis timing. Duration is informational.
type Performance struct {
	DurationMs    int64 `json:"duration"`
	UsersAnalyzed int   `json:"usersAnalyzed"`
}

// Analysis is the full result of AnalyzeChurn.
type Analysis struct {
	ChurnRiskData []Record     `json:"churnRiskData"`
	RiskSegments  Segmentation `json:"riskSegments"`
	Insights      []Insight    `json:"insights"`
	Performance   Performance  `json:"performance"`

	// Activity is the per-user activity the scores were computed from.
	Activity *ActivityMap `json:"-"`
}
