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
	"fmt"
	"time"

	"github.com/AleutianAI/CohortIQ/cmd/cohortiq/config"
	"github.com/AleutianAI/CohortIQ/pkg/logging"
	"github.com/AleutianAI/CohortIQ/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath       string
	personalityLevel string

	// appCfg and logger are set by the root PersistentPreRunE.
	appCfg config.CohortIQConfig
	logger *logging.Logger

	// nowFunc is the analysis clock; tests pin it.
	nowFunc = time.Now

	rootCmd = &cobra.Command{
		Use:   "cohortiq",
		Short: "Cohort retention, churn risk and LTV analytics",
		Long: `CohortIQ groups users into weekly signup cohorts and reports
retention, churn risk, projected lifetime value, survival statistics
and A/B test sizing, from the command line or over HTTP.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
				logger = nil
			}
		},
	}

	// --- Analysis ---
	analyzeCmd = &cobra.Command{
		Use:   "analyze [csv...]",
		Short: "Run the full cohort, churn, LTV and statistics analysis",
		RunE:  runAnalyze, // Defined in cmd_analyze.go
	}
	ltvCmd = &cobra.Command{
		Use:   "ltv [csv]",
		Short: "Project lifetime value per cohort",
		Args:  cobra.ExactArgs(1),
		RunE:  runLTV, // Defined in cmd_analyze.go
	}
	abtestCmd = &cobra.Command{
		Use:   "abtest [csv]",
		Short: "Size an A/B test that lifts retention at a target week",
		Args:  cobra.ExactArgs(1),
		RunE:  runABTest, // Defined in cmd_abtest.go
	}

	// --- Services ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP analysis API",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}
	watchCmd = &cobra.Command{
		Use:   "watch [dir]",
		Short: "Analyze CSV files as they are dropped into a directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch, // Defined in cmd_serve.go
	}

	// --- Utilities ---
	generateCmd = &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic sample data set",
		Args:  cobra.NoArgs,
		RunE:  runGenerate, // Defined in cmd_utils.go
	}
	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE:  runToken, // Defined in cmd_utils.go
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run:   runVersion, // Defined in cmd_utils.go
	}
)

// Flag targets.
var (
	analyzeJSON    bool
	analyzeOut     string
	analyzeInflux  bool
	analyzeFromSQL bool
	analyzeSince   string

	ltvARPU    float64
	ltvMaxWeek int
	ltvJSON    bool

	abTargetWeek  int
	abDelta       float64
	abAlpha       float64
	abPower       float64
	abARPU        float64
	abInteractive bool
	abJSON        bool

	serveAddr        string
	serveTraceStdout bool
	serveInMemory    bool

	watchOut           string
	watchDebounce      time.Duration
	watchMetricsStdout bool

	generateOut   string
	generateSeed  uint64
	generateStart string

	tokenSubject string
	tokenTTL     time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.cohortiq/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "", "output style: full, minimal or machine")

	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the report as JSON")
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "", "write a timestamped JSON report into this directory")
	analyzeCmd.Flags().BoolVar(&analyzeInflux, "influx", false, "write retention points to the configured InfluxDB bucket")
	analyzeCmd.Flags().BoolVar(&analyzeFromSQL, "from-sql", false, "read events from the configured SQL source instead of CSV files")
	analyzeCmd.Flags().StringVar(&analyzeSince, "since", "", "with --from-sql, only read events on or after this date (YYYY-MM-DD)")

	ltvCmd.Flags().Float64Var(&ltvARPU, "arpu", 0, "average revenue per active user per week (default from config)")
	ltvCmd.Flags().IntVar(&ltvMaxWeek, "max-week", 0, "projection horizon in weeks (default from config)")
	ltvCmd.Flags().BoolVar(&ltvJSON, "json", false, "print the result as JSON")

	abtestCmd.Flags().IntVar(&abTargetWeek, "target-week", 4, "week whose retention the treatment lifts")
	abtestCmd.Flags().Float64Var(&abDelta, "delta", 5, "retention lift in percentage points")
	abtestCmd.Flags().Float64Var(&abAlpha, "alpha", 0, "significance level (default from config)")
	abtestCmd.Flags().Float64Var(&abPower, "power", 0, "statistical power (default from config)")
	abtestCmd.Flags().Float64Var(&abARPU, "arpu", 0, "average revenue per active user per week (default from config)")
	abtestCmd.Flags().BoolVarP(&abInteractive, "interactive", "i", false, "prompt for the parameters")
	abtestCmd.Flags().BoolVar(&abJSON, "json", false, "print the result as JSON")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveTraceStdout, "trace-stdout", false, "print spans to stdout when no OTLP endpoint is set")
	serveCmd.Flags().BoolVar(&serveInMemory, "in-memory", false, "keep finished jobs in memory only")

	watchCmd.Flags().StringVarP(&watchOut, "out", "o", "", "report directory (default: next to each CSV)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "quiet period before a file is analyzed")
	watchCmd.Flags().BoolVar(&watchMetricsStdout, "metrics-stdout", false, "print pipeline metrics to stdout periodically")

	generateCmd.Flags().StringVarP(&generateOut, "out", "o", "sample_cohort_data.csv", "output CSV path, - for stdout")
	generateCmd.Flags().Uint64Var(&generateSeed, "seed", 0, "random seed (default 42)")
	generateCmd.Flags().StringVar(&generateStart, "start", "", "first cohort week (YYYY-MM-DD, default 2025-09-01)")

	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "cohortiq-client", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(analyzeCmd, ltvCmd, abtestCmd, serveCmd, watchCmd, generateCmd, tokenCmd, versionCmd)
}

// setup initializes output style, configuration and logging.
func setup(cmd *cobra.Command, args []string) error {
	if personalityLevel != "" {
		ux.SetPersonality(ux.ParsePersonalityLevel(personalityLevel))
	} else {
		ux.InitPersonality()
	}
	ux.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())

	if cmd.Name() == "version" {
		return nil
	}

	var err error
	if configPath != "" {
		appCfg, err = config.LoadFile(configPath)
	} else {
		err = config.Load("")
		appCfg = config.Global
	}
	if err != nil {
		return err
	}

	logCfg, err := appCfg.LoggerConfig(cmd.Name())
	if err != nil {
		return err
	}
	logCfg.Output = cmd.ErrOrStderr()
	// Interactive commands only show warnings; servers log at the
	// configured level.
	if !isLongRunning(cmd.Name()) && logCfg.Level < logging.LevelWarn {
		logCfg.Level = logging.LevelWarn
	}
	if logCfg.Exporter, err = logExporter(cmd.Name(), appCfg.Logging); err != nil {
		return err
	}
	logger = logging.New(logCfg)
	return nil
}

func isLongRunning(name string) bool {
	return name == "serve" || name == "watch"
}

// logExporter opens logging.export_file for serve and watch. Other
// commands export nothing.
func logExporter(name string, cfg config.LoggingConfig) (logging.LogExporter, error) {
	if cfg.ExportFile == "" || !isLongRunning(name) {
		return nil, nil
	}
	exp, err := logging.OpenFileExporter(cfg.ExportFile)
	if err != nil {
		return nil, fmt.Errorf("logging.export_file: %w", err)
	}
	return exp, nil
}
