// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"errors"
	"time"

	"github.com/AleutianAI/CohortIQ/services/analytics/churn"
	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/AleutianAI/CohortIQ/services/analytics/ltv"
	"github.com/AleutianAI/CohortIQ/services/analytics/stats"
	"github.com/AleutianAI/CohortIQ/services/analytics/summary"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNoRows indicates a submission without rows.
	ErrNoRows = errors.New("no rows to analyze")

	// ErrQueueFull indicates the worker queue cannot take another request.
	ErrQueueFull = errors.New("analysis queue is full")

	// ErrClosed indicates a submission after Close.
	ErrClosed = errors.New("worker is closed")

	// ErrJobNotFound indicates an unknown job ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobActive indicates a delete of a job that has not finished.
	ErrJobActive = errors.New("job has not finished")
)

// =============================================================================
// Worker Messages
// =============================================================================

// ResponseType tags a worker response.
type ResponseType string

const (
	ResponseSuccess ResponseType = "SUCCESS"
	ResponseError   ResponseType = "ERROR"
)

// Payload is the full result bundle of one analysis.
type Payload struct {
	Cohort         *cohort.Analysis    `json:"cohortAnalysis"`
	Churn          *churn.Analysis     `json:"churnAnalysis"`
	LTV            *ltv.Result         `json:"ltvAnalysis"`
	Stats          stats.Result        `json:"statisticalTests"`
	RetentionCurve []cohort.CurvePoint `json:"retentionCurve"`
	Summary        summary.Summary     `json:"summary"`
}

// Response is the single message a Worker sends per submission.
type Response struct {
	Type    ResponseType `json:"type"`
	Payload *Payload     `json:"payload,omitempty"`
	Error   string       `json:"error,omitempty"`

	// Err is the underlying error of an ERROR response, for errors.Is.
	Err error `json:"-"`
}

func success(p *Payload) Response {
	return Response{Type: ResponseSuccess, Payload: p}
}

func failure(err error) Response {
	return Response{Type: ResponseError, Error: err.Error(), Err: err}
}

// =============================================================================
// Jobs
// =============================================================================

// JobStatus is the lifecycle state of an asynchronous analysis.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Done reports whether the status is terminal.
func (s JobStatus) Done() bool {
	return s == JobSucceeded || s == JobFailed
}

// Job is one asynchronous analysis and, once finished, its outcome.
type Job struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	Rows       int        `json:"rows"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
	Result     *Payload   `json:"result,omitempty"`
}
