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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/AleutianAI/CohortIQ/services/analytics/source"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global CohortIQConfig
	once   sync.Once

	validate = validator.New()
)

// Load ensures the config is loaded into the Global variable. An empty
// path selects ~/.cohortiq/config.yaml, which is created on first run.
func Load(path string) error {
	var err error
	once.Do(func() {
		Global, err = loadInternal(path)
	})
	return err
}

// DefaultPath returns ~/.cohortiq/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".cohortiq", "config.yaml"), nil
}

func loadInternal(path string) (CohortIQConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return CohortIQConfig{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return CohortIQConfig{}, err
		}
		path = defaultPath
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, " First run detected, creating the config at %s\n", path)
			if err := createDefault(path); err != nil {
				return CohortIQConfig{}, err
			}
		}
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults, applies COHORTIQ_* environment
// overrides and validates the result.
func LoadFile(path string) (CohortIQConfig, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field ranges and the source driver.
func Validate(cfg CohortIQConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Source.Enabled() {
		switch cfg.Source.Driver {
		case source.DriverMySQL, source.DriverPostgres:
		default:
			return fmt.Errorf("invalid config: %w: %q", source.ErrUnsupportedDriver, cfg.Source.Driver)
		}
	}
	if _, err := cfg.LoggerConfig(""); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// =============================================================================
// Environment overrides
// =============================================================================

// applyEnv overrides file values from COHORTIQ_* variables. Secrets are
// expected to arrive this way.
func applyEnv(cfg *CohortIQConfig) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"COHORTIQ_ADDR", &cfg.Server.Addr},
		{"COHORTIQ_JWT_SECRET", &cfg.Server.JWTSecret},
		{"COHORTIQ_STORAGE_PATH", &cfg.Storage.Path},
		{"COHORTIQ_INFLUX_URL", &cfg.Influx.URL},
		{"COHORTIQ_INFLUX_TOKEN", &cfg.Influx.Token},
		{"COHORTIQ_INFLUX_ORG", &cfg.Influx.Org},
		{"COHORTIQ_INFLUX_BUCKET", &cfg.Influx.Bucket},
		{"COHORTIQ_SOURCE_DSN", &cfg.Source.DSN},
		{"COHORTIQ_SOURCE_TABLE", &cfg.Source.Table},
		{"COHORTIQ_LOG_LEVEL", &cfg.Logging.Level},
		{"COHORTIQ_LOG_DIR", &cfg.Logging.Dir},
		{"COHORTIQ_LOG_EXPORT_FILE", &cfg.Logging.ExportFile},
		{"OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint},
	}
	for _, s := range strs {
		if v, ok := os.LookupEnv(s.key); ok {
			*s.dst = v
		}
	}
	if v, ok := os.LookupEnv("COHORTIQ_SOURCE_DRIVER"); ok {
		cfg.Source.Driver = source.Driver(v)
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"COHORTIQ_WORKERS", &cfg.Analysis.Workers},
		{"COHORTIQ_QUEUE_SIZE", &cfg.Analysis.QueueSize},
		{"COHORTIQ_MAX_WEEK", &cfg.Analysis.MaxWeek},
		{"COHORTIQ_MAX_ROWS", &cfg.Server.MaxRows},
		{"COHORTIQ_BURST", &cfg.Server.Burst},
	}
	for _, i := range ints {
		if v, ok := os.LookupEnv(i.key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", i.key, err)
			}
			*i.dst = n
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"COHORTIQ_ARPU", &cfg.Analysis.ARPU},
		{"COHORTIQ_RATE_LIMIT", &cfg.Server.RateLimit},
	}
	for _, f := range floats {
		if v, ok := os.LookupEnv(f.key); ok {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
			*f.dst = x
		}
	}

	if v, ok := os.LookupEnv("COHORTIQ_STORAGE_IN_MEMORY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("COHORTIQ_STORAGE_IN_MEMORY: %w", err)
		}
		cfg.Storage.InMemory = b
	}
	if cfg.Telemetry.OTLPEndpoint != "" && cfg.Telemetry.TraceExporter == "none" {
		cfg.Telemetry.TraceExporter = "otlp"
	}
	return nil
}
