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
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// OpenTelemetry
// =============================================================================

// Package-level tracer and meter for analysis operations.
var (
	tracer = otel.Tracer("cohortiq.pipeline")
	meter  = otel.Meter("cohortiq.pipeline")
)

var (
	analysisLatency metric.Float64Histogram
	analysisTotal   metric.Int64Counter
	analysisRows    metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the otel instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		analysisLatency, err = meter.Float64Histogram(
			"analysis_duration_seconds",
			metric.WithDescription("Duration of full analyses"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analysisTotal, err = meter.Int64Counter(
			"analysis_total",
			metric.WithDescription("Total number of analyses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analysisRows, err = meter.Int64Histogram(
			"analysis_rows",
			metric.WithDescription("Rows per analysis"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Analyzer."+stage,
		trace.WithAttributes(attribute.String("analysis.stage", stage)),
	)
}

func recordAnalysisMetrics(ctx context.Context, d time.Duration, rows int, ok bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", ok))
	analysisLatency.Record(ctx, d.Seconds(), attrs)
	analysisTotal.Add(ctx, 1, attrs)
	analysisRows.Record(ctx, int64(rows))
}

// =============================================================================
// Prometheus
// =============================================================================

const (
	metricsNamespace = "cohortiq"
	metricsSubsystem = "pipeline"
)

// Metrics holds the Prometheus collectors of the pipeline.
//
// Thread Safety: All operations are thread-safe.
type Metrics struct {
	// JobsTotal counts finished submissions. Labels: status (success, error).
	JobsTotal *prometheus.CounterVec

	// StageDuration measures each analysis stage. Labels: stage.
	StageDuration *prometheus.HistogramVec

	// RowsProcessed counts rows of successful analyses.
	RowsProcessed prometheus.Counter

	// QueueDepth is the number of submissions waiting for a slot.
	QueueDepth prometheus.Gauge

	// InFlight is the number of running analyses.
	InFlight prometheus.Gauge
}

// NewMetrics creates and registers the collectors on reg. Use a fresh
// prometheus.NewRegistry() in tests; registering twice on the same
// registry panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JobsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "jobs_total",
				Help:      "Total analyses by outcome",
			},
			[]string{"status"},
		),

		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each analysis stage in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
			},
			[]string{"stage"},
		),

		RowsProcessed: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "rows_processed_total",
				Help:      "Total event rows analyzed",
			},
		),

		QueueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "queue_depth",
				Help:      "Submissions waiting for a worker slot",
			},
		),

		InFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "in_flight",
				Help:      "Analyses currently running",
			},
		),
	}
}

// RecordJob counts a finished submission.
func (m *Metrics) RecordJob(ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	m.JobsTotal.WithLabelValues(status).Inc()
}
