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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/CohortIQ/pkg/secrets"
	"github.com/AleutianAI/CohortIQ/services/analytics/ingest"
	"github.com/AleutianAI/CohortIQ/services/analytics/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC)

type testServer struct {
	router *gin.Engine
	jobs   *pipeline.Jobs
	worker *pipeline.Worker
}

func newTestServer(t *testing.T, cfg RouterConfig, opts ...func(*Handlers)) *testServer {
	t.Helper()
	acfg := pipeline.DefaultConfig()
	acfg.Now = func() time.Time { return testNow }
	worker := pipeline.NewWorker(pipeline.NewAnalyzer(acfg, nil), nil, pipeline.WorkerConfig{Workers: 2})
	jobs := pipeline.NewJobs(worker, nil, nil)
	t.Cleanup(func() {
		jobs.Wait()
		worker.Close()
	})

	h := NewHandlers(worker, jobs).WithClock(func() time.Time { return testNow })
	for _, opt := range opts {
		opt(h)
	}
	return &testServer{router: NewRouter(h, cfg), jobs: jobs, worker: worker}
}

func (s *testServer) do(method, path, contentType, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

const rowsJSON = `{"rows":[
	{"userId":"A","signupDate":"2024-01-01","eventDate":"2024-01-01"},
	{"userId":"A","signupDate":"2024-01-01","eventDate":"2024-01-08"},
	{"userId":"B","signupDate":"2024-01-01","eventDate":"2024-01-01"},
	{"userId":"C","signupDate":"2024-01-08","eventDate":"2024-01-08"},
	{"userId":"C","signupDate":"2024-01-08","eventDate":"2024-01-15"},
	{"userId":"D","signupDate":"2024-01-10","eventDate":"2024-01-09"}
]}`

const rowsCSV = "user_id,signup_date,event_date\n" +
	"A,2024-01-01,2024-01-01\n" +
	"A,2024-01-01,2024-01-08\n" +
	"B,2024-01-08,2024-01-08\n"

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type bundleBody struct {
	Validation *ingest.Stats `json:"validation"`
	Analysis   struct {
		Cohort struct {
			Cohorts []string `json:"cohorts"`
		} `json:"cohortAnalysis"`
		Summary struct {
			Metadata struct {
				TotalCohorts int `json:"totalCohorts"`
			} `json:"metadata"`
		} `json:"summary"`
	} `json:"analysis"`
}

// =============================================================================
// Health
// =============================================================================

func TestHandlers_HandleHealth(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	w := s.do(http.MethodGet, "/health", "", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestID_Echo(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	w := s.do(http.MethodGet, "/health", "", "", "X-Request-ID", "req-123")
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

// =============================================================================
// Analyze / Validate
// =============================================================================

func TestHandlers_HandleAnalyze(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		cohorts     []string
		invalid     int
	}{
		{"json", "application/json", rowsJSON, []string{"2024-01-01", "2024-01-08"}, 1},
		{"csv", "text/csv", rowsCSV, []string{"2024-01-01", "2024-01-08"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, RouterConfig{})
			w := s.do(http.MethodPost, "/v1/analyze", tt.contentType, tt.body)

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			resp := decode[bundleBody](t, w)
			assert.Equal(t, tt.cohorts, resp.Analysis.Cohort.Cohorts)
			assert.Equal(t, len(tt.cohorts), resp.Analysis.Summary.Metadata.TotalCohorts)
			require.NotNil(t, resp.Validation)
			assert.Equal(t, tt.invalid, resp.Validation.Invalid)
		})
	}
}

func TestHandlers_HandleAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantCode    string
	}{
		{"malformed json", "application/json", `{"rows":`, http.StatusBadRequest, CodeInvalidRequest},
		{"missing rows", "application/json", `{}`, http.StatusBadRequest, CodeInvalidRequest},
		{"bad date", "application/json", `{"rows":[{"userId":"A","signupDate":"01/02/2024","eventDate":"2024-01-02"}]}`, http.StatusBadRequest, CodeInvalidRequest},
		{"csv missing column", "text/csv", "user_id,signup_date\nA,2024-01-01\n", http.StatusBadRequest, CodeInvalidRequest},
		{"no valid rows", "application/json", `{"rows":[{"userId":"","signupDate":"2024-01-01","eventDate":"2024-01-01"}]}`, http.StatusUnprocessableEntity, CodeValidationFailed},
		{"empty rows", "application/json", `{"rows":[]}`, http.StatusUnprocessableEntity, CodeValidationFailed},
		{"future dates", "application/json", `{"rows":[{"userId":"A","signupDate":"2030-01-01","eventDate":"2030-01-01"}]}`, http.StatusUnprocessableEntity, CodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, RouterConfig{})
			w := s.do(http.MethodPost, "/v1/analyze", tt.contentType, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestHandlers_HandleAnalyze_RowErrorsReported(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	w := s.do(http.MethodPost, "/v1/analyze", "application/json",
		`{"rows":[{"userId":"A","signupDate":"2024-01-09","eventDate":"2024-01-02"}]}`)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode[ErrorResponse](t, w)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, 2, resp.Rows[0].Row)
	assert.Contains(t, resp.Rows[0].Codes, ingest.CodeEventBeforeSignup)
}

func TestHandlers_HandleAnalyze_TooManyRows(t *testing.T) {
	s := newTestServer(t, RouterConfig{}, func(h *Handlers) { h.WithMaxRows(2) })
	w := s.do(http.MethodPost, "/v1/analyze", "text/csv", rowsCSV)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, CodeTooManyRows, decode[ErrorResponse](t, w).Code)
}

func TestHandlers_HandleValidate(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	w := s.do(http.MethodPost, "/v1/validate", "application/json", rowsJSON)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ingest.Result](t, w)
	assert.False(t, resp.Valid)
	assert.Equal(t, ingest.Stats{Total: 6, Valid: 5, Invalid: 1, UniqueUsers: 4}, resp.Stats)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, 7, resp.Errors[0].Row)
}

// =============================================================================
// LTV / AB test
// =============================================================================

func TestHandlers_HandleLTV(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	body := `{"retentionMatrix":[
		{"cohort":"2024-01-01","week":0,"users":10,"total":10,"retention":100},
		{"cohort":"2024-01-01","week":1,"users":5,"total":10,"retention":50},
		{"cohort":"2024-01-01","week":2,"users":4,"total":10,"retention":40}
	],"arpu":2.5,"maxWeek":12}`
	w := s.do(http.MethodPost, "/v1/ltv", "application/json", body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		ARPU       float64 `json:"arpu"`
		CohortLTVs []struct {
			Cohort     string `json:"cohort"`
			CohortSize int    `json:"cohortSize"`
		} `json:"cohortLTVs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2.5, resp.ARPU)
	require.Len(t, resp.CohortLTVs, 1)
	assert.Equal(t, 10, resp.CohortLTVs[0].CohortSize)

	w = s.do(http.MethodPost, "/v1/ltv", "application/json", `{"retentionMatrix":[],"arpu":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_HandleABTest(t *testing.T) {
	curve := `"retentionCurve":[{"week":0,"retention":100},{"week":1,"retention":50},{"week":2,"retention":40}]`
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"ok", `{` + curve + `,"targetWeek":1,"delta":5}`, http.StatusOK},
		{"negative delta", `{` + curve + `,"targetWeek":1,"delta":-5}`, http.StatusUnprocessableEntity},
		{"negative week", `{` + curve + `,"targetWeek":-1,"delta":5}`, http.StatusUnprocessableEntity},
		{"empty curve", `{"retentionCurve":[],"targetWeek":1,"delta":5}`, http.StatusUnprocessableEntity},
		{"alpha out of range", `{` + curve + `,"targetWeek":1,"delta":5,"alpha":1.5}`, http.StatusUnprocessableEntity},
		{"malformed", `{"targetWeek":"one"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, RouterConfig{})
			w := s.do(http.MethodPost, "/v1/abtest", "application/json", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp struct {
				Scenarios     []json.RawMessage `json:"scenarios"`
				PowerAnalysis struct {
					BaselineRate    float64 `json:"baselineRate"`
					BaselineAssumed bool    `json:"baselineAssumed"`
				} `json:"powerAnalysis"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Len(t, resp.Scenarios, 4)
			assert.Equal(t, 0.5, resp.PowerAnalysis.BaselineRate)
			assert.False(t, resp.PowerAnalysis.BaselineAssumed)
		})
	}
}

// =============================================================================
// Jobs
// =============================================================================

func TestHandlers_Jobs(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	w := s.do(http.MethodPost, "/v1/jobs", "application/json", rowsJSON)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	accepted := decode[JobAccepted](t, w)
	require.NotEmpty(t, accepted.Job.ID)
	assert.Equal(t, 5, accepted.Job.Rows)
	assert.Equal(t, 1, accepted.Validation.Invalid)
	assert.Equal(t, "/v1/jobs/"+accepted.Job.ID, w.Header().Get("Location"))

	s.jobs.Wait()

	w = s.do(http.MethodGet, "/v1/jobs/"+accepted.Job.ID, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	job := decode[pipeline.Job](t, w)
	assert.Equal(t, pipeline.JobSucceeded, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, []string{"2024-01-01", "2024-01-08"}, job.Result.Cohort.Cohorts)
	assert.NotNil(t, job.FinishedAt)
}

func TestHandlers_ListAndDeleteJobs(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	w := s.do(http.MethodGet, "/v1/jobs", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[JobList](t, w).Count)

	w = s.do(http.MethodPost, "/v1/jobs", "text/csv", rowsCSV)
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decode[JobAccepted](t, w).Job.ID
	s.jobs.Wait()

	w = s.do(http.MethodGet, "/v1/jobs", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[JobList](t, w)
	require.Equal(t, 1, list.Count)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, id, list.Jobs[0].ID)
	assert.Equal(t, pipeline.JobSucceeded, list.Jobs[0].Status)
	assert.Nil(t, list.Jobs[0].Result)

	w = s.do(http.MethodDelete, "/v1/jobs/"+id, "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/v1/jobs/"+id, "", "").Code)
	w = s.do(http.MethodDelete, "/v1/jobs/"+id, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decode[ErrorResponse](t, w).Code)

	w = s.do(http.MethodGet, "/v1/jobs", "", "")
	assert.Equal(t, 0, decode[JobList](t, w).Count)
}

func TestHandlers_Jobs_NotFound(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	for _, path := range []string{"/v1/jobs/nope", "/v1/jobs/nope/stream"} {
		w := s.do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, CodeNotFound, decode[ErrorResponse](t, w).Code)
	}
}

func TestHandlers_Jobs_Disabled(t *testing.T) {
	h := NewHandlers(nil, nil)
	router := NewRouter(h, RouterConfig{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/jobs/x"},
		{http.MethodGet, "/v1/jobs"},
		{http.MethodDelete, "/v1/jobs/x"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code, tc.method+" "+tc.path)
	}
}

func TestHandlers_HandleJobStream(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	w := s.do(http.MethodPost, "/v1/jobs", "text/csv", rowsCSV)
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decode[JobAccepted](t, w).Job.ID
	s.jobs.Wait()

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/jobs/" + id + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var event pipeline.Job
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, id, event.ID)
	assert.Equal(t, pipeline.JobSucceeded, event.Status)
	assert.Nil(t, event.Result, "stream events carry no result")

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

// =============================================================================
// Middleware
// =============================================================================

func TestAuthRequired(t *testing.T) {
	const secret = "test-secret"
	s := newTestServer(t, RouterConfig{JWTSecret: secrets.New(secret)})

	good, err := IssueToken("analyst", time.Hour, []byte(secret))
	require.NoError(t, err)
	forged, err := IssueToken("analyst", time.Hour, []byte("other"))
	require.NoError(t, err)
	expired, err := IssueToken("analyst", -time.Hour, []byte(secret))
	require.NoError(t, err)

	tests := []struct {
		name       string
		path       string
		header     []string
		wantStatus int
	}{
		{"no token", "/v1/validate", nil, http.StatusUnauthorized},
		{"malformed header", "/v1/validate", []string{"Authorization", "Token abc"}, http.StatusUnauthorized},
		{"wrong key", "/v1/validate", []string{"Authorization", "Bearer " + forged}, http.StatusUnauthorized},
		{"expired", "/v1/validate", []string{"Authorization", "Bearer " + expired}, http.StatusUnauthorized},
		{"valid", "/v1/validate", []string{"Authorization", "Bearer " + good}, http.StatusOK},
		{"query token", "/v1/validate?access_token=" + good, nil, http.StatusOK},
		{"health is open", "/health", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if tt.path == "/health" {
				method = http.MethodGet
			}
			w := s.do(method, tt.path, "text/csv", rowsCSV, tt.header...)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, CodeUnauthorized, decode[ErrorResponse](t, w).Code)
			}
		})
	}
}

func TestValidateToken_RejectsNone(t *testing.T) {
	// alg=none token with an empty signature.
	token := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiJ4In0."
	_, err := ValidateToken(token, []byte("k"))
	assert.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, RouterConfig{RateLimit: 0.001, Burst: 1})

	first := s.do(http.MethodPost, "/v1/validate", "text/csv", rowsCSV)
	assert.Equal(t, http.StatusOK, first.Code)

	second := s.do(http.MethodPost, "/v1/validate", "text/csv", rowsCSV)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, CodeRateLimited, decode[ErrorResponse](t, second).Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))

	// Health is outside the limited group.
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", "").Code)
}

func TestRateLimit_PerClient(t *testing.T) {
	t.Run("clients by address", func(t *testing.T) {
		s := newTestServer(t, RouterConfig{RateLimit: 0.001, Burst: 1})
		from := func(addr string) int {
			req := httptest.NewRequest(http.MethodPost, "/v1/validate", strings.NewReader(rowsCSV))
			req.Header.Set("Content-Type", "text/csv")
			req.RemoteAddr = addr
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			return w.Code
		}

		assert.Equal(t, http.StatusOK, from("10.0.0.1:5000"))
		assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1:5001"))
		assert.Equal(t, http.StatusOK, from("10.0.0.2:5000"))
	})

	t.Run("clients by token subject", func(t *testing.T) {
		const secret = "rate-secret"
		s := newTestServer(t, RouterConfig{JWTSecret: secrets.New(secret), RateLimit: 0.001, Burst: 1})
		alice, err := IssueToken("alice", time.Hour, []byte(secret))
		require.NoError(t, err)
		bob, err := IssueToken("bob", time.Hour, []byte(secret))
		require.NoError(t, err)

		call := func(token string) int {
			return s.do(http.MethodPost, "/v1/validate", "text/csv", rowsCSV, "Authorization", "Bearer "+token).Code
		}
		assert.Equal(t, http.StatusOK, call(alice))
		assert.Equal(t, http.StatusTooManyRequests, call(alice))
		assert.Equal(t, http.StatusOK, call(bob))
	})
}

func TestClientLimiters_EvictsIdle(t *testing.T) {
	l := newClientLimiters(1, 1)
	start := l.lastSweep

	assert.True(t, l.allow("ip:a", start))
	assert.True(t, l.allow("ip:b", start.Add(time.Minute)))
	assert.Equal(t, 2, l.size())

	// a has been idle for a full TTL, b has not.
	assert.True(t, l.allow("ip:c", start.Add(clientIdleTTL)))
	assert.Equal(t, 2, l.size())
	_, kept := l.clients["ip:b"]
	assert.True(t, kept)
	_, evicted := l.clients["ip:a"]
	assert.False(t, evicted)
}

func TestMetricsRoute(t *testing.T) {
	stub := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "cohortiq_up 1\n")
	})
	s := newTestServer(t, RouterConfig{Metrics: stub})
	w := s.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte("cohortiq_up")))

	s = newTestServer(t, RouterConfig{})
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/metrics", "", "").Code)
}
