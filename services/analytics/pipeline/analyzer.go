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
	"time"

	"github.com/AleutianAI/CohortIQ/services/analytics/churn"
	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/AleutianAI/CohortIQ/services/analytics/ltv"
	"github.com/AleutianAI/CohortIQ/services/analytics/stats"
	"github.com/AleutianAI/CohortIQ/services/analytics/summary"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Stage names used in spans and metrics.
const (
	StageCohort  = "cohort"
	StageChurn   = "churn"
	StageLTV     = "ltv"
	StageStats   = "stats"
	StageSummary = "summary"
)

// Config holds the tunables of an Analyzer.
type Config struct {
	ChurnPolicy churn.Policy
	LTVPolicy   ltv.Policy
	StatsPolicy stats.Policy
	LTV         ltv.Options

	// Now is the churn reference clock. Nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default policies with default LTV options.
func DefaultConfig() Config {
	return Config{
		ChurnPolicy: churn.DefaultPolicy(),
		LTVPolicy:   ltv.DefaultPolicy(),
		StatsPolicy: stats.DefaultPolicy(),
	}
}

// Analyzer runs every engine over one set of rows.
//
// Thread Safety: Safe for concurrent use.
type Analyzer struct {
	churn   *churn.Engine
	ltv     *ltv.Engine
	stats   *stats.Engine
	opts    ltv.Options
	now     func() time.Time
	metrics *Metrics
}

// NewAnalyzer creates an Analyzer. A nil metrics disables Prometheus
// recording; tracing always goes through the global provider.
func NewAnalyzer(cfg Config, metrics *Metrics) *Analyzer {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Analyzer{
		churn:   churn.NewEngine(cfg.ChurnPolicy, now),
		ltv:     ltv.NewEngine(cfg.LTVPolicy),
		stats:   stats.NewEngine(cfg.StatsPolicy, now),
		opts:    cfg.LTV,
		now:     now,
		metrics: metrics,
	}
}

// Analyze runs the full analysis.
//
// Description:
//
//	Cohort and churn run in order since churn needs the cohort
//	assignment. LTV and the statistical tests are independent and run
//	concurrently. The summary is built last. The context is only
//	consulted between stages; a running stage is never interrupted.
//
// Inputs:
//   - ctx: Carries the parent span. Cancellation stops before the next stage.
//   - rows: Validated event rows.
//
// Outputs:
//   - *Payload: The full bundle.
//   - error: ErrNoRows for empty input or the context error.
func (a *Analyzer) Analyze(ctx context.Context, rows []cohort.EventRow) (*Payload, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	ctx, span := tracer.Start(ctx, "Analyzer.Analyze",
		trace.WithAttributes(attribute.Int("analysis.rows", len(rows))),
	)
	defer span.End()

	start := time.Now()
	p, err := a.run(ctx, rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordAnalysisMetrics(ctx, time.Since(start), len(rows), false)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("analysis.cohorts", len(p.Cohort.Cohorts)),
		attribute.Int("analysis.users", p.Churn.Performance.UsersAnalyzed),
	)
	recordAnalysisMetrics(ctx, time.Since(start), len(rows), true)
	if a.metrics != nil {
		a.metrics.RowsProcessed.Add(float64(len(rows)))
	}
	return p, nil
}

func (a *Analyzer) run(ctx context.Context, rows []cohort.EventRow) (*Payload, error) {
	p := &Payload{}

	if err := a.stage(ctx, StageCohort, func(context.Context) {
		p.Cohort = cohort.AnalyzeCohort(rows)
		p.RetentionCurve = cohort.AverageCurve(p.Cohort.RetentionMatrix)
	}); err != nil {
		return nil, err
	}

	if err := a.stage(ctx, StageChurn, func(context.Context) {
		p.Churn = a.churn.Analyze(rows, p.Cohort.CohortInfo)
	}); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.stage(gctx, StageLTV, func(context.Context) {
			p.LTV = a.ltv.Predict(p.Cohort.RetentionMatrix, a.opts)
		})
	})
	g.Go(func() error {
		return a.stage(gctx, StageStats, func(context.Context) {
			p.Stats = a.stats.Run(p.Cohort.CohortInfo, p.Churn, p.Churn.Activity)
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := a.stage(ctx, StageSummary, func(context.Context) {
		p.Summary = summary.Prepare(p.Cohort, p.Churn, a.now())
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// stage runs fn inside its own span unless ctx is already done.
func (a *Analyzer) stage(ctx context.Context, name string, fn func(context.Context)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := startStageSpan(ctx, name)
	defer span.End()

	start := time.Now()
	fn(ctx)
	if a.metrics != nil {
		a.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	return nil
}
