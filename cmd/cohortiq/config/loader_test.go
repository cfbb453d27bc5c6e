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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/CohortIQ/pkg/logging"
	"github.com/AleutianAI/CohortIQ/services/analytics/abtest"
	"github.com/AleutianAI/CohortIQ/services/analytics/churn"
	"github.com/AleutianAI/CohortIQ/services/analytics/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

// TestCreateDefault verifies default config creation.
func TestCreateDefault(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "deep", ".cohortiq", "config.yaml")

	if err := createDefault(configPath); err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	var cfg CohortIQConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Policy.Churn.CriticalScore != churn.DefaultCriticalScore {
		t.Errorf("Policy.Churn.CriticalScore = %d, want %d", cfg.Policy.Churn.CriticalScore, churn.DefaultCriticalScore)
	}
	if cfg.Storage.GCInterval != 10*time.Minute {
		t.Errorf("Storage.GCInterval = %v, want 10m", cfg.Storage.GCInterval)
	}
}

func TestLoadFile_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
analysis:
  arpu: 4.5
policy:
  churn:
    critical_score: 80
logging:
  level: debug
source:
  driver: mysql
  dsn: "user:pass@tcp(localhost:3306)/app"
  table: signups
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 4.5, cfg.Analysis.ARPU)
	assert.Equal(t, 80, cfg.Policy.Churn.CriticalScore)
	// Untouched fields keep their defaults.
	assert.Equal(t, churn.DefaultHighScore, cfg.Policy.Churn.HighScore)
	assert.Len(t, cfg.Policy.Churn.Recency, 4)
	assert.Equal(t, source.DriverMySQL, cfg.Source.Driver)
	assert.Equal(t, "signups", cfg.Source.Table)

	logCfg, err := cfg.LoggerConfig("serve")
	require.NoError(t, err)
	assert.Equal(t, logging.LevelDebug, logCfg.Level)
	assert.Equal(t, "serve", logCfg.Service)
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9090\"\n")
	t.Setenv("COHORTIQ_ADDR", ":7070")
	t.Setenv("COHORTIQ_JWT_SECRET", "s3cret")
	t.Setenv("COHORTIQ_WORKERS", "4")
	t.Setenv("COHORTIQ_ARPU", "2.25")
	t.Setenv("COHORTIQ_STORAGE_IN_MEMORY", "true")
	t.Setenv("COHORTIQ_INFLUX_URL", "http://localhost:8086")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	t.Setenv("COHORTIQ_LOG_EXPORT_FILE", "/var/log/cohortiq/export.log")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "s3cret", cfg.Server.JWTSecret)
	assert.Equal(t, 4, cfg.Analysis.Workers)
	assert.Equal(t, 2.25, cfg.Analysis.ARPU)
	assert.True(t, cfg.Storage.InMemory)
	assert.True(t, cfg.Influx.Enabled())
	assert.Equal(t, "otlp", cfg.Telemetry.TraceExporter)
	assert.Equal(t, "/var/log/cohortiq/export.log", cfg.Logging.ExportFile)
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "bad yaml", body: "server: [\n"},
		{name: "zero arpu", body: "analysis:\n  arpu: 0\n"},
		{name: "no workers", body: "analysis:\n  workers: 0\n"},
		{name: "alpha out of range", body: "policy:\n  abtest:\n    alpha: 1.5\n"},
		{name: "unknown driver", body: "source:\n  driver: sqlite\n  dsn: file.db\n"},
		{name: "bad log level", body: "logging:\n  level: loud\n"},
		{name: "bad env int", body: "", env: map[string]string{"COHORTIQ_WORKERS": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestAnalyzerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analysis.ARPU = 3
	cfg.Analysis.MaxWeek = 26
	now := func() time.Time { return time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC) }

	pc := cfg.AnalyzerConfig(now)
	assert.Equal(t, 3.0, pc.LTV.ARPU)
	assert.Equal(t, 26, pc.LTV.MaxWeek)
	assert.Equal(t, cfg.Policy.Stats, pc.StatsPolicy)
	assert.Equal(t, now(), pc.Now())
}

func TestABTestParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.ABTest.Alpha = 0.01
	cfg.Analysis.ARPU = 9

	p := cfg.ABTestParams(abtest.Params{TargetWeek: 4, Delta: 5, Power: 0.9})
	assert.Equal(t, 0.01, p.Alpha)
	assert.Equal(t, 0.9, p.Power)
	assert.Equal(t, 9.0, p.ARPU)
	assert.Equal(t, abtest.DefaultDecayRate, p.DecayRate)
}

func TestValidate_Default(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}
