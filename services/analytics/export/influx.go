// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/CohortIQ/pkg/validation"
	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/AleutianAI/CohortIQ/services/analytics/pipeline"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementRetention = "cohort_retention"
	MeasurementLTV       = "cohort_ltv"
	MeasurementHealth    = "cohort_health"
)

// ErrInfluxDisabled indicates a sink without a URL.
var ErrInfluxDisabled = errors.New("influx sink is not configured")

// InfluxConfig locates the bucket that receives retention points.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`

	// Tags are added to every point, e.g. {"env": "prod"}.
	Tags map[string]string `yaml:"tags,omitempty"`
}

// Enabled reports whether a URL is set.
func (c InfluxConfig) Enabled() bool {
	return c.URL != ""
}

// InfluxSink writes analysis results to InfluxDB.
//
// Thread Safety: Safe for concurrent use.
type InfluxSink struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
	tags   map[string]string
	logger *slog.Logger
}

// NewInfluxSink connects a sink. Close it when done.
func NewInfluxSink(cfg InfluxConfig, logger *slog.Logger) (*InfluxSink, error) {
	if !cfg.Enabled() {
		return nil, ErrInfluxDisabled
	}
	if cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx org and bucket are required")
	}
	tags := make([]string, 0, 2*len(cfg.Tags))
	for k, v := range cfg.Tags {
		tags = append(tags, k, v)
	}
	if err := validation.ValidateTags(tags); err != nil {
		return nil, fmt.Errorf("influx.tags: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		tags:   cfg.Tags,
		logger: logger,
	}, nil
}

// Close releases the client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

// Write sends every point of p in one request.
func (s *InfluxSink) Write(ctx context.Context, p *pipeline.Payload) (int, error) {
	points, err := Points(p)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}
	for _, pt := range points {
		for k, v := range s.tags {
			pt.AddTag(k, v)
		}
	}
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return 0, fmt.Errorf("influx write failed: %w", err)
	}
	s.logger.Info("wrote analysis to InfluxDB", "points", len(points))
	return len(points), nil
}

// Points converts a payload into line-protocol points.
//
// Description:
//
//	Each retention matrix cell becomes a cohort_retention point stamped at
//	the cohort start plus its week offset. Each cohort LTV becomes a
//	cohort_ltv point at the cohort start. The summary becomes one
//	cohort_health point at its generation time. Cohort keys are checked
//	before use as tag values.
func Points(p *pipeline.Payload) ([]*write.Point, error) {
	if p == nil || p.Cohort == nil {
		return nil, ErrNoPayload
	}

	points := make([]*write.Point, 0, len(p.Cohort.RetentionMatrix)+len(p.Cohort.Cohorts)+1)
	for _, r := range p.Cohort.RetentionMatrix {
		start, err := cohortStart(r.Cohort)
		if err != nil {
			return nil, err
		}
		points = append(points, influxdb2.NewPoint(
			MeasurementRetention,
			map[string]string{"cohort": r.Cohort},
			map[string]interface{}{
				"week":      r.Week,
				"users":     r.Users,
				"total":     r.Total,
				"retention": r.Retention,
			},
			start.AddDate(0, 0, 7*r.Week),
		))
	}

	if p.LTV != nil {
		for _, c := range p.LTV.CohortLTVs {
			start, err := cohortStart(c.Cohort)
			if err != nil {
				return nil, err
			}
			points = append(points, influxdb2.NewPoint(
				MeasurementLTV,
				map[string]string{"cohort": c.Cohort, "confidence": string(c.Confidence)},
				map[string]interface{}{
					"observed_ltv":  c.ObservedLTV,
					"projected_ltv": c.ProjectedLTV,
					"cohort_size":   c.CohortSize,
				},
				start,
			))
		}
	}

	if len(p.Cohort.Cohorts) > 0 {
		km := p.Summary.KeyMetrics
		points = append(points, influxdb2.NewPoint(
			MeasurementHealth,
			map[string]string{"grade": string(km.Grade)},
			map[string]interface{}{
				"health_score":    km.HealthScore,
				"week1_retention": km.Week1Retention,
				"week4_retention": km.Week4Retention,
				"critical_users":  p.Summary.ChurnRisk.Critical,
				"total_users":     p.Summary.ChurnRisk.Total,
			},
			p.Summary.Metadata.GeneratedAt,
		))
	}
	return points, nil
}

func cohortStart(key string) (time.Time, error) {
	if err := validation.ValidateTag(key); err != nil {
		return time.Time{}, fmt.Errorf("cohort key: %w", err)
	}
	t, err := cohort.ParseKey(key)
	if err != nil {
		return time.Time{}, fmt.Errorf("cohort key %q: %w", key, err)
	}
	return t, nil
}
