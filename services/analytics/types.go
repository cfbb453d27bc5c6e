// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analytics

import (
	"time"

	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/AleutianAI/CohortIQ/services/analytics/ingest"
	"github.com/AleutianAI/CohortIQ/services/analytics/pipeline"
	"github.com/go-openapi/strfmt"
)

// ServiceVersion is the API version reported by /health.
const ServiceVersion = "0.1.0"

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeTooManyRows      = "TOO_MANY_ROWS"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeQueueFull        = "QUEUE_FULL"
	CodeAnalysisFailed   = "ANALYSIS_FAILED"
	CodeJobActive        = "JOB_ACTIVE"
)

// =============================================================================
// Requests
// =============================================================================

// EventRowRequest is one event row of a JSON submission.
type EventRowRequest struct {
	UserID     string      `json:"userId"`
	SignupDate strfmt.Date `json:"signupDate"`
	EventDate  strfmt.Date `json:"eventDate"`
}

// record renders the row for ingest validation. Absent dates become empty
// strings so they are reported as invalid rather than as year one.
func (r EventRowRequest) record() ingest.RawRecord {
	return ingest.RawRecord{
		UserID:     r.UserID,
		SignupDate: dateString(r.SignupDate),
		EventDate:  dateString(r.EventDate),
	}
}

func dateString(d strfmt.Date) string {
	if time.Time(d).IsZero() {
		return ""
	}
	return d.String()
}

// AnalyzeRequest is the JSON body of /v1/analyze, /v1/jobs and
// /v1/validate. The same endpoints also accept text/csv.
type AnalyzeRequest struct {
	Rows []EventRowRequest `json:"rows" binding:"required"`
}

// LTVRequest recomputes LTV for an existing retention matrix.
type LTVRequest struct {
	RetentionMatrix []cohort.RetentionRow `json:"retentionMatrix" binding:"required"`
	ARPU            float64               `json:"arpu" binding:"omitempty,gt=0"`
	MaxWeek         int                   `json:"maxWeek" binding:"omitempty,gte=1,lte=520"`
}

// =============================================================================
// Responses
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`

	// Rows lists rejected rows on VALIDATION_FAILED.
	Rows []ingest.RowError `json:"rows,omitempty"`
}

// JobAccepted is the body of POST /v1/jobs.
type JobAccepted struct {
	Job        pipeline.Job     `json:"job"`
	Validation ingest.Stats     `json:"validation"`
	Warnings   []ingest.Warning `json:"warnings"`
}

// JobList is the body of GET /v1/jobs. Jobs carry no results.
type JobList struct {
	Jobs  []pipeline.Job `json:"jobs"`
	Count int            `json:"count"`
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
