// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analytics serves the cohort analysis pipeline over HTTP.
package analytics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/CohortIQ/services/analytics/abtest"
	"github.com/AleutianAI/CohortIQ/services/analytics/export"
	"github.com/AleutianAI/CohortIQ/services/analytics/ingest"
	"github.com/AleutianAI/CohortIQ/services/analytics/ltv"
	"github.com/AleutianAI/CohortIQ/services/analytics/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// errInvalidBody marks a request body that could not be decoded.
var errInvalidBody = errors.New("invalid request body")

// Handlers contains the HTTP handlers for the analysis API.
type Handlers struct {
	worker  *pipeline.Worker
	jobs    *pipeline.Jobs
	ltv     *ltv.Engine
	maxRows int
	now     func() time.Time
	logger  *slog.Logger

	// abDefaults fills unset simulation parameters.
	abDefaults func(abtest.Params) abtest.Params

	upgrader websocket.Upgrader
}

// NewHandlers creates handlers around a worker and its job tracker.
// jobs may be nil, in which case the /v1/jobs endpoints answer 404.
func NewHandlers(worker *pipeline.Worker, jobs *pipeline.Jobs) *Handlers {
	return &Handlers{
		worker:  worker,
		jobs:    jobs,
		ltv:     ltv.NewEngine(ltv.DefaultPolicy()),
		maxRows: ingest.MaxRows,
		now:     time.Now,
		logger:  slog.Default(),

		abDefaults: abtest.Params.WithDefaults,

		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// WithLTVPolicy replaces the policy used by /v1/ltv.
func (h *Handlers) WithLTVPolicy(p ltv.Policy) *Handlers {
	h.ltv = ltv.NewEngine(p)
	return h
}

// WithABTestDefaults replaces how /v1/abtest fills unset parameters.
// fill must return params with every optional field set.
func (h *Handlers) WithABTestDefaults(fill func(abtest.Params) abtest.Params) *Handlers {
	if fill != nil {
		h.abDefaults = fill
	}
	return h
}

// WithMaxRows lowers the per-request row cap. Values outside
// (0, ingest.MaxRows] are ignored.
func (h *Handlers) WithMaxRows(n int) *Handlers {
	if n > 0 && n <= ingest.MaxRows {
		h.maxRows = n
	}
	return h
}

// WithClock sets the clock that bounds future dates.
func (h *Handlers) WithClock(now func() time.Time) *Handlers {
	if now != nil {
		h.now = now
	}
	return h
}

// WithLogger sets the base logger.
func (h *Handlers) WithLogger(logger *slog.Logger) *Handlers {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// requestLogger returns the request-scoped logger.
func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return h.logger.With("request_id", getOrCreateRequestID(c), "handler", handler)
}

func abortError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

// =============================================================================
// Row intake
// =============================================================================

// readRows decodes and validates the rows of a submission.
//
// Description:
//
//	text/csv bodies go through ingest.ReadCSV; anything else is bound as
//	AnalyzeRequest JSON. The row cap is checked before validation.
//	Decoding failures are written to the response here.
//
// Outputs:
//   - ingest.Result: The validation outcome.
//   - bool: False when a response was already written.
func (h *Handlers) readRows(c *gin.Context, logger *slog.Logger) (ingest.Result, bool) {
	var records []ingest.RawRecord
	if c.ContentType() == "text/csv" {
		var err error
		records, err = ingest.ReadCSV(c.Request.Body)
		if err != nil {
			if errors.Is(err, ingest.ErrTooManyRows) {
				abortError(c, http.StatusRequestEntityTooLarge, CodeTooManyRows, err.Error())
				return ingest.Result{}, false
			}
			logger.Warn("Invalid CSV body", "error", err)
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
				Error:   errInvalidBody.Error(),
				Code:    CodeInvalidRequest,
				Details: err.Error(),
			})
			return ingest.Result{}, false
		}
	} else {
		var req AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Invalid request body", "error", err)
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
				Error:   errInvalidBody.Error(),
				Code:    CodeInvalidRequest,
				Details: err.Error(),
			})
			return ingest.Result{}, false
		}
		records = make([]ingest.RawRecord, len(req.Rows))
		for i, r := range req.Rows {
			records[i] = r.record()
		}
	}

	if len(records) > h.maxRows {
		abortError(c, http.StatusRequestEntityTooLarge, CodeTooManyRows, ingest.ErrTooManyRows.Error())
		return ingest.Result{}, false
	}
	return ingest.ValidateRecords(records, h.now()), true
}

// usableRows rejects submissions in which no row survived validation.
func usableRows(c *gin.Context, v *ingest.Result) bool {
	if v.Usable() {
		return true
	}
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ErrorResponse{
		Error: "no valid rows",
		Code:  CodeValidationFailed,
		Rows:  v.Errors,
	})
	return false
}

// =============================================================================
// Analysis
// =============================================================================

// HandleAnalyze handles POST /v1/analyze.
//
// Description:
//
//	Validates the rows and runs the full analysis synchronously through
//	the worker. Invalid rows are dropped; the response reports them in
//	the validation stats.
//
// Response:
//
//	200 OK: export.Bundle
//	400 Bad Request: Undecodable body
//	413 Request Entity Too Large: Row cap exceeded
//	422 Unprocessable Entity: No valid rows
//	503 Service Unavailable: Queue full
//	500 Internal Server Error: Analysis failure
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	logger := h.requestLogger(c, "HandleAnalyze")

	v, ok := h.readRows(c, logger)
	if !ok || !usableRows(c, &v) {
		return
	}

	resp := <-h.worker.Submit(c.Request.Context(), v.Rows)
	if resp.Type != pipeline.ResponseSuccess {
		status, code := analysisFailure(resp.Err)
		logger.Error("Analysis failed", "error", resp.Error)
		abortError(c, status, code, resp.Error)
		return
	}

	logger.Info("Analysis complete", "rows", v.Stats.Valid, "cohorts", resp.Payload.Summary.Metadata.TotalCohorts)
	c.JSON(http.StatusOK, export.NewBundle(resp.Payload, &v, h.now()))
}

func analysisFailure(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrQueueFull), errors.Is(err, pipeline.ErrClosed):
		return http.StatusServiceUnavailable, CodeQueueFull
	case errors.Is(err, pipeline.ErrNoRows):
		return http.StatusUnprocessableEntity, CodeValidationFailed
	default:
		return http.StatusInternalServerError, CodeAnalysisFailed
	}
}

// HandleValidate handles POST /v1/validate.
//
// Validation findings are the answer here, so 200 is returned even when
// every row is rejected.
func (h *Handlers) HandleValidate(c *gin.Context) {
	logger := h.requestLogger(c, "HandleValidate")

	v, ok := h.readRows(c, logger)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, v)
}

// HandleLTV handles POST /v1/ltv.
//
// Recomputes LTV for an already computed retention matrix, typically
// with a different ARPU. No worker hop.
func (h *Handlers) HandleLTV(c *gin.Context) {
	logger := h.requestLogger(c, "HandleLTV")

	var req LTVRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Error:   errInvalidBody.Error(),
			Code:    CodeInvalidRequest,
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, h.ltv.Predict(req.RetentionMatrix, ltv.Options{ARPU: req.ARPU, MaxWeek: req.MaxWeek}))
}

// HandleABTest handles POST /v1/abtest.
//
// Response:
//
//	200 OK: abtest.Result
//	400 Bad Request: Undecodable body
//	422 Unprocessable Entity: Parameters out of range
func (h *Handlers) HandleABTest(c *gin.Context) {
	logger := h.requestLogger(c, "HandleABTest")

	var req abtest.Params
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Error:   errInvalidBody.Error(),
			Code:    CodeInvalidRequest,
			Details: err.Error(),
		})
		return
	}

	params := h.abDefaults(req)
	if err := params.Validate(); err != nil {
		abortError(c, http.StatusUnprocessableEntity, CodeValidationFailed, err.Error())
		return
	}
	c.JSON(http.StatusOK, abtest.RunABTestSimulation(params))
}

// =============================================================================
// Jobs
// =============================================================================

// HandleCreateJob handles POST /v1/jobs.
//
// Response:
//
//	202 Accepted: JobAccepted
//	422 Unprocessable Entity: No valid rows
func (h *Handlers) HandleCreateJob(c *gin.Context) {
	logger := h.requestLogger(c, "HandleCreateJob")
	if h.jobs == nil {
		abortError(c, http.StatusNotFound, CodeNotFound, "jobs are disabled")
		return
	}

	v, ok := h.readRows(c, logger)
	if !ok || !usableRows(c, &v) {
		return
	}

	job := h.jobs.Create(c.Request.Context(), v.Rows)
	logger.Info("Job created", "job_id", job.ID, "rows", job.Rows)
	c.Header("Location", "/v1/jobs/"+job.ID)
	c.JSON(http.StatusAccepted, JobAccepted{
		Job:        job,
		Validation: v.Stats,
		Warnings:   v.Warnings,
	})
}

// HandleListJobs handles GET /v1/jobs.
//
// Lists queued, running and finished jobs, newest first, without
// results.
func (h *Handlers) HandleListJobs(c *gin.Context) {
	logger := h.requestLogger(c, "HandleListJobs")
	if h.jobs == nil {
		abortError(c, http.StatusNotFound, CodeNotFound, "jobs are disabled")
		return
	}

	jobs, err := h.jobs.List(c.Request.Context())
	if err != nil {
		logger.Error("List jobs failed", "error", err)
		abortError(c, http.StatusInternalServerError, CodeAnalysisFailed, err.Error())
		return
	}
	c.JSON(http.StatusOK, JobList{Jobs: jobs, Count: len(jobs)})
}

// HandleDeleteJob handles DELETE /v1/jobs/:id.
//
// Response:
//
//	204 No Content: Deleted
//	404 Not Found: Unknown job
//	409 Conflict: Job is still queued or running
func (h *Handlers) HandleDeleteJob(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDeleteJob")
	if h.jobs == nil {
		abortError(c, http.StatusNotFound, CodeNotFound, "jobs are disabled")
		return
	}

	id := c.Param("id")
	err := h.jobs.Delete(c.Request.Context(), id)
	switch {
	case err == nil:
		logger.Info("Job deleted", "job_id", id)
		c.Status(http.StatusNoContent)
	case pipeline.IsNotFound(err):
		abortError(c, http.StatusNotFound, CodeNotFound, "job not found")
	case errors.Is(err, pipeline.ErrJobActive):
		abortError(c, http.StatusConflict, CodeJobActive, err.Error())
	default:
		logger.Error("Delete job failed", "job_id", id, "error", err)
		abortError(c, http.StatusInternalServerError, CodeAnalysisFailed, err.Error())
	}
}

// HandleGetJob handles GET /v1/jobs/:id.
func (h *Handlers) HandleGetJob(c *gin.Context) {
	logger := h.requestLogger(c, "HandleGetJob")
	if h.jobs == nil {
		abortError(c, http.StatusNotFound, CodeNotFound, "jobs are disabled")
		return
	}

	id := c.Param("id")
	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		if pipeline.IsNotFound(err) {
			abortError(c, http.StatusNotFound, CodeNotFound, "job not found")
			return
		}
		logger.Error("Load job failed", "job_id", id, "error", err)
		abortError(c, http.StatusInternalServerError, CodeAnalysisFailed, err.Error())
		return
	}
	c.JSON(http.StatusOK, job)
}

// HandleJobStream handles GET /v1/jobs/:id/stream.
//
// Description:
//
//	Upgrades to a websocket and writes one JSON pipeline.Job per status
//	change, starting with the current one. The server closes the socket
//	normally after the terminal status. Snapshots carry no result; fetch
//	it from GET /v1/jobs/:id.
func (h *Handlers) HandleJobStream(c *gin.Context) {
	logger := h.requestLogger(c, "HandleJobStream")
	if h.jobs == nil {
		abortError(c, http.StatusNotFound, CodeNotFound, "jobs are disabled")
		return
	}

	id := c.Param("id")
	events, cancel, err := h.jobs.Subscribe(c.Request.Context(), id)
	if err != nil {
		if pipeline.IsNotFound(err) {
			abortError(c, http.StatusNotFound, CodeNotFound, "job not found")
			return
		}
		abortError(c, http.StatusInternalServerError, CodeAnalysisFailed, err.Error())
		return
	}
	defer cancel()

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	// Drain client frames so close and ping control messages are handled.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			logger.Info("Stream client disconnected", "job_id", id)
			return
		case job, ok := <-events:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
					time.Now().Add(time.Second))
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := ws.WriteJSON(job); err != nil {
				logger.Warn("Stream write failed", "job_id", id, "error", err)
				return
			}
		}
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: ServiceVersion})
}
