// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/CohortIQ/pkg/logging"
	"github.com/AleutianAI/CohortIQ/services/analytics/abtest"
	"github.com/AleutianAI/CohortIQ/services/analytics/churn"
	"github.com/AleutianAI/CohortIQ/services/analytics/export"
	"github.com/AleutianAI/CohortIQ/services/analytics/ingest"
	"github.com/AleutianAI/CohortIQ/services/analytics/ltv"
	"github.com/AleutianAI/CohortIQ/services/analytics/pipeline"
	"github.com/AleutianAI/CohortIQ/services/analytics/source"
	"github.com/AleutianAI/CohortIQ/services/analytics/stats"
	"github.com/AleutianAI/CohortIQ/services/analytics/storage"
	"github.com/AleutianAI/CohortIQ/services/analytics/telemetry"
)

// CohortIQConfig is the on-disk configuration.
type CohortIQConfig struct {
	Server    ServerConfig        `yaml:"server"`
	Analysis  AnalysisConfig      `yaml:"analysis"`
	Policy    PolicyConfig        `yaml:"policy"`
	Storage   storage.Config      `yaml:"storage"`
	Influx    export.InfluxConfig `yaml:"influx"`
	Source    source.Config       `yaml:"source"`
	Logging   LoggingConfig       `yaml:"logging"`
	Telemetry telemetry.Config    `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`

	// JWTSecret enables bearer auth when set. Prefer COHORTIQ_JWT_SECRET
	// over writing it to disk.
	JWTSecret string `yaml:"jwt_secret,omitempty"`

	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"` // requests per second, 0 = off
	Burst     int     `yaml:"burst" validate:"gte=0"`
	MaxRows   int     `yaml:"max_rows" validate:"gte=1"`
}

type AnalysisConfig struct {
	ARPU      float64 `yaml:"arpu" validate:"gt=0"`
	MaxWeek   int     `yaml:"max_week" validate:"gte=1,lte=520"`
	Workers   int     `yaml:"workers" validate:"gte=1"`
	QueueSize int     `yaml:"queue_size"`
}

// PolicyConfig carries every threshold of the engines.
type PolicyConfig struct {
	Churn  churn.Policy `yaml:"churn"`
	LTV    ltv.Policy   `yaml:"ltv"`
	Stats  stats.Policy `yaml:"stats"`
	ABTest ABTestPolicy `yaml:"abtest"`
}

// ABTestPolicy holds the simulation defaults.
type ABTestPolicy struct {
	Alpha     float64 `yaml:"alpha" validate:"gt=0,lt=1"`
	Power     float64 `yaml:"power" validate:"gt=0,lt=1"`
	DecayRate float64 `yaml:"decay_rate" validate:"gt=0"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`

	// ExportFile receives a copy of every serve and watch record, one
	// line each, for log shippers that tail a single file.
	ExportFile string `yaml:"export_file,omitempty"`
}

// DefaultConfig returns the built-in configuration. The job store lives
// under ~/.cohortiq/jobs.
func DefaultConfig() CohortIQConfig {
	storePath := filepath.Join(".cohortiq", "jobs")
	if home, err := os.UserHomeDir(); err == nil {
		storePath = filepath.Join(home, storePath)
	}
	store := storage.DefaultConfig(storePath)
	store.GCInterval = 10 * time.Minute

	return CohortIQConfig{
		Server: ServerConfig{
			Addr:      ":8080",
			RateLimit: 20,
			Burst:     40,
			MaxRows:   ingest.MaxRows,
		},
		Analysis: AnalysisConfig{
			ARPU:      ltv.DefaultARPU,
			MaxWeek:   ltv.DefaultMaxWeek,
			Workers:   pipeline.DefaultWorkers,
			QueueSize: pipeline.DefaultQueueSize,
		},
		Policy: PolicyConfig{
			Churn: churn.DefaultPolicy(),
			LTV:   ltv.DefaultPolicy(),
			Stats: stats.DefaultPolicy(),
			ABTest: ABTestPolicy{
				Alpha:     abtest.DefaultAlpha,
				Power:     abtest.DefaultPower,
				DecayRate: abtest.DefaultDecayRate,
			},
		},
		Storage: store,
		Source:  source.Config{Driver: source.DriverPostgres, Table: "events"},
		Logging: LoggingConfig{Level: "info"},
		Telemetry: telemetry.Config{
			ServiceName:    "cohortiq",
			ServiceVersion: "dev",
			Environment:    "development",
			TraceExporter:  telemetry.ExporterNone,
			MetricExporter: telemetry.ExporterPrometheus,
			OTLPInsecure:   true,
		},
	}
}

// AnalyzerConfig builds the pipeline configuration. now may be nil.
func (c CohortIQConfig) AnalyzerConfig(now func() time.Time) pipeline.Config {
	return pipeline.Config{
		ChurnPolicy: c.Policy.Churn,
		LTVPolicy:   c.Policy.LTV,
		StatsPolicy: c.Policy.Stats,
		LTV:         ltv.Options{ARPU: c.Analysis.ARPU, MaxWeek: c.Analysis.MaxWeek},
		Now:         now,
	}
}

// ABTestParams fills the configured simulation defaults into p.
func (c CohortIQConfig) ABTestParams(p abtest.Params) abtest.Params {
	if p.Alpha == 0 {
		p.Alpha = c.Policy.ABTest.Alpha
	}
	if p.Power == 0 {
		p.Power = c.Policy.ABTest.Power
	}
	if p.DecayRate == 0 {
		p.DecayRate = c.Policy.ABTest.DecayRate
	}
	if p.ARPU == 0 {
		p.ARPU = c.Analysis.ARPU
	}
	return p.WithDefaults()
}

// LoggerConfig builds the logger configuration for service.
func (c CohortIQConfig) LoggerConfig(service string) (logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.Config{}, fmt.Errorf("logging.level: %w", err)
	}
	return logging.Config{
		Level:   level,
		LogDir:  c.Logging.Dir,
		Service: service,
		JSON:    c.Logging.JSON,
	}, nil
}
