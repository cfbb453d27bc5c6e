// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/CohortIQ/cmd/cohortiq/config"
	"github.com/AleutianAI/CohortIQ/pkg/ux"
	"github.com/AleutianAI/CohortIQ/services/analytics"
	"github.com/AleutianAI/CohortIQ/services/analytics/churn"
	"github.com/AleutianAI/CohortIQ/services/analytics/cohort"
	"github.com/AleutianAI/CohortIQ/services/analytics/ltv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 12, 31, 12, 0, 0, 0, time.UTC)

// resetFlags restores every flag to its default so runs do not leak
// into each other through the package-level targets.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the CLI with a temporary config and machine output.
func execute(t *testing.T, cfgBody string, args ...string) (string, string, error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgBody), 0600))

	resetFlags(rootCmd)
	prevNow := nowFunc
	nowFunc = func() time.Time { return testNow }
	t.Cleanup(func() {
		nowFunc = prevNow
		ux.SetOutput(nil, nil)
		ux.SetPersonality(ux.PersonalityFull)
	})

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--config", cfgPath, "--personality", "machine"}, args...))
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// unsetEnv removes key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

const quietConfig = "logging:\n  level: error\n"

func generateSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.csv")
	stdout, _, err := execute(t, quietConfig, "generate", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "OK: generated")
	assert.Contains(t, stdout, "1010 users across 16 cohorts")
	return path
}

func TestGenerateCommand(t *testing.T) {
	path := generateSample(t)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "user_id,signup_date,event_date", lines[0])
	assert.Greater(t, len(lines), 1010)
}

func TestGenerateCommand_Stdout(t *testing.T) {
	stdout, _, err := execute(t, quietConfig, "generate", "--out", "-", "--seed", "7")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "user_id,signup_date,event_date\n"))
	assert.NotContains(t, stdout, "OK:")
}

func TestGenerateCommand_BadStart(t *testing.T) {
	_, _, err := execute(t, quietConfig, "generate", "--out", "-", "--start", "last week")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--start")
}

func TestAnalyzeCommand_JSON(t *testing.T) {
	path := generateSample(t)

	stdout, _, err := execute(t, quietConfig, "analyze", "--json", path)
	require.NoError(t, err)

	var report struct {
		Analysis struct {
			Cohort struct {
				RetentionMatrix []cohort.RetentionRow `json:"retentionMatrix"`
			} `json:"cohortAnalysis"`
			Churn struct {
				RiskSegments struct {
					Summary churn.SegmentSummary `json:"summary"`
				} `json:"riskSegments"`
			} `json:"churnAnalysis"`
		} `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	require.NotEmpty(t, report.Analysis.Cohort.RetentionMatrix)
	assert.Equal(t, 1010, report.Analysis.Churn.RiskSegments.Summary.Total)

	for _, row := range report.Analysis.Cohort.RetentionMatrix {
		if row.Week == 0 {
			assert.InDelta(t, 100.0, row.Retention, 1e-9, "cohort %s week 0", row.Cohort)
		}
	}
}

func TestAnalyzeCommand_NoInput(t *testing.T) {
	_, _, err := execute(t, quietConfig, "analyze")
	assert.ErrorIs(t, err, errNoInput)
}

func TestAnalyzeCommand_NoValidRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("user_id,signup_date,event_date\n,2025-01-01,2025-01-02\n"), 0600))

	_, stderr, err := execute(t, quietConfig, "analyze", path)
	assert.ErrorIs(t, err, errNoValidRows)
	assert.Contains(t, stderr, "WARN:")
}

func TestAnalyzeCommand_WritesReport(t *testing.T) {
	path := generateSample(t)
	outDir := t.TempDir()

	stdout, _, err := execute(t, quietConfig, "analyze", "--out", outDir, path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "OK: report written to")

	matches, err := filepath.Glob(filepath.Join(outDir, "events_*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestLTVCommand_JSON(t *testing.T) {
	path := generateSample(t)

	stdout, _, err := execute(t, quietConfig, "ltv", "--json", "--arpu", "3", path)
	require.NoError(t, err)

	var result struct {
		CohortLTVs []struct {
			Cohort       string  `json:"cohort"`
			ProjectedLTV float64 `json:"projectedLTV"`
		} `json:"cohortLTVs"`
		ARPU float64 `json:"arpu"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, 3.0, result.ARPU)
	assert.Len(t, result.CohortLTVs, 16)
	for _, c := range result.CohortLTVs {
		assert.GreaterOrEqual(t, c.ProjectedLTV, 3.0, c.Cohort)
	}
}

func TestLTVCommand_RejectsNegativeARPU(t *testing.T) {
	path := generateSample(t)

	_, _, err := execute(t, quietConfig, "ltv", "--json", "--arpu=-2", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ltv.ErrInvalidARPU)
}

func TestABTestCommand_JSON(t *testing.T) {
	path := generateSample(t)

	stdout, _, err := execute(t, quietConfig, "abtest", "--json", "--target-week", "2", "--delta", "5", path)
	require.NoError(t, err)

	var result struct {
		PowerAnalysis struct {
			SampleSize int     `json:"sampleSize"`
			Alpha      float64 `json:"alpha"`
			Power      float64 `json:"power"`
		} `json:"powerAnalysis"`
		Scenarios []struct {
			Name string `json:"name"`
		} `json:"scenarios"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Greater(t, result.PowerAnalysis.SampleSize, 0)
	assert.Equal(t, 0.05, result.PowerAnalysis.Alpha)
	assert.Equal(t, 0.8, result.PowerAnalysis.Power)
	assert.NotEmpty(t, result.Scenarios)
}

func TestABTestCommand_ConfiguredAlpha(t *testing.T) {
	path := generateSample(t)
	cfg := quietConfig + "policy:\n  abtest:\n    alpha: 0.01\n    power: 0.9\n    decay_rate: 0.03\n"

	stdout, _, err := execute(t, cfg, "abtest", "--json", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"alpha": 0.01`)
	assert.Contains(t, stdout, `"power": 0.9`)
}

func TestTokenCommand(t *testing.T) {
	t.Run("no secret", func(t *testing.T) {
		unsetEnv(t, "COHORTIQ_JWT_SECRET")
		_, _, err := execute(t, quietConfig, "token")
		assert.ErrorIs(t, err, errNoSecret)
	})

	t.Run("signed", func(t *testing.T) {
		unsetEnv(t, "COHORTIQ_JWT_SECRET")
		cfg := quietConfig + "server:\n  addr: \":9090\"\n  jwt_secret: test-secret\n  max_rows: 100\n"
		stdout, _, err := execute(t, cfg, "token", "--subject", "dashboard")
		require.NoError(t, err)

		claims, err := analytics.ValidateToken(strings.TrimSpace(stdout), []byte("test-secret"))
		require.NoError(t, err)
		assert.Equal(t, "dashboard", claims.Subject)
	})
}

func TestLogExporter(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LoggingConfig{ExportFile: filepath.Join(dir, "logs", "export.log")}

	t.Run("servers export", func(t *testing.T) {
		for _, name := range []string{"serve", "watch"} {
			exp, err := logExporter(name, cfg)
			require.NoError(t, err, name)
			require.NotNil(t, exp, name)
			require.NoError(t, exp.Close())
		}
		_, err := os.Stat(cfg.ExportFile)
		assert.NoError(t, err)
	})

	t.Run("one-shot commands do not", func(t *testing.T) {
		exp, err := logExporter("analyze", cfg)
		require.NoError(t, err)
		assert.Nil(t, exp)
	})

	t.Run("unset", func(t *testing.T) {
		exp, err := logExporter("serve", config.LoggingConfig{})
		require.NoError(t, err)
		assert.Nil(t, exp)
	})

	t.Run("unwritable path", func(t *testing.T) {
		blocker := filepath.Join(dir, "blocker")
		require.NoError(t, os.WriteFile(blocker, nil, 0600))
		_, err := logExporter("serve", config.LoggingConfig{ExportFile: filepath.Join(blocker, "x.log")})
		assert.ErrorContains(t, err, "logging.export_file")
	})
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "not: [valid", "version")
	require.NoError(t, err, "version must not load the config")
	assert.True(t, strings.HasPrefix(stdout, "cohortiq "+analytics.ServiceVersion))
}

func TestRetentionTable(t *testing.T) {
	matrix := []cohort.RetentionRow{
		{Cohort: "2025-W01", Week: 0, Users: 10, Total: 10, Retention: 100},
		{Cohort: "2025-W01", Week: 1, Users: 5, Total: 10, Retention: 50},
		{Cohort: "2025-W01", Week: 2, Users: 2, Total: 10, Retention: 20},
		{Cohort: "2025-W02", Week: 0, Users: 4, Total: 4, Retention: 100},
		{Cohort: "2025-W02", Week: 1, Users: 1, Total: 4, Retention: 25},
	}

	tests := []struct {
		name        string
		weeks       int
		wantHeaders []string
		wantRows    [][]string
	}{
		{
			name:        "all weeks",
			weeks:       12,
			wantHeaders: []string{"cohort", "users", "W0", "W1", "W2"},
			wantRows: [][]string{
				{"2025-W01", "10", "100.0", "50.0", "20.0"},
				{"2025-W02", "4", "100.0", "25.0", ""},
			},
		},
		{
			name:        "capped",
			weeks:       2,
			wantHeaders: []string{"cohort", "users", "W0", "W1"},
			wantRows: [][]string{
				{"2025-W01", "10", "100.0", "50.0"},
				{"2025-W02", "4", "100.0", "25.0"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers, rows := retentionTable(matrix, tt.weeks)
			assert.Equal(t, tt.wantHeaders, headers)
			assert.Equal(t, tt.wantRows, rows)
		})
	}
}

func TestRiskTable(t *testing.T) {
	s := churn.SegmentSummary{
		Total: 200, Critical: 20, High: 30, Medium: 50, Low: 100,
		CriticalPercentage: 10, HighPercentage: 15,
	}
	headers, rows := riskTable(s)

	assert.Equal(t, []string{"risk", "users", "%"}, headers)
	assert.Equal(t, [][]string{
		{"CRITICAL", "20", "10"},
		{"HIGH", "30", "15"},
		{"MEDIUM", "50", "25"},
		{"LOW", "100", "50"},
	}, rows)

	_, rows = riskTable(churn.SegmentSummary{})
	assert.Equal(t, "0", rows[2][2])
}

func TestValidateHelpers(t *testing.T) {
	tests := []struct {
		name    string
		check   func(string) error
		input   string
		wantErr bool
	}{
		{"int in range", validateInt(0, 10), "4", false},
		{"int bounds inclusive", validateInt(0, 10), "10", false},
		{"int out of range", validateInt(0, 10), "11", true},
		{"int not a number", validateInt(0, 10), "four", true},
		{"float inside", validateFloat(0, 1), "0.05", false},
		{"float bound excluded", validateFloat(0, 1), "1", true},
		{"float not a number", validateFloat(0, 1), "x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("check(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
