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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/CohortIQ/pkg/secrets"
	"github.com/AleutianAI/CohortIQ/pkg/ux"
	"github.com/AleutianAI/CohortIQ/services/analytics"
	"github.com/AleutianAI/CohortIQ/services/analytics/abtest"
	"github.com/AleutianAI/CohortIQ/services/analytics/pipeline"
	"github.com/AleutianAI/CohortIQ/services/analytics/storage"
	"github.com/AleutianAI/CohortIQ/services/analytics/telemetry"
	"github.com/AleutianAI/CohortIQ/services/analytics/watch"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds graceful HTTP shutdown and telemetry flush.
const shutdownTimeout = 10 * time.Second

// =============================================================================
// serve
// =============================================================================

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logger.Slog()

	telCfg := appCfg.Telemetry
	telCfg.ServiceVersion = analytics.ServiceVersion
	if serveTraceStdout && telCfg.OTLPEndpoint == "" {
		telCfg.TraceExporter = telemetry.ExporterStdout
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	storeCfg := appCfg.Storage
	storeCfg.Logger = log.With("component", "badger")
	if serveInMemory {
		storeCfg.InMemory = true
	}
	store, err := storage.Open(storeCfg)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	metrics := pipeline.NewMetrics(prometheus.DefaultRegisterer)
	analyzer := pipeline.NewAnalyzer(appCfg.AnalyzerConfig(nil), metrics)
	worker := pipeline.NewWorker(analyzer, metrics, pipeline.WorkerConfig{
		Workers:   appCfg.Analysis.Workers,
		QueueSize: appCfg.Analysis.QueueSize,
		Logger:    log.With("component", "worker"),
	})
	jobs := pipeline.NewJobs(worker, store, log.With("component", "jobs"))

	handlers := analytics.NewHandlers(worker, jobs).
		WithLTVPolicy(appCfg.Policy.LTV).
		WithMaxRows(appCfg.Server.MaxRows).
		WithABTestDefaults(func(p abtest.Params) abtest.Params { return appCfg.ABTestParams(p) }).
		WithLogger(log)

	jwtSecret := secrets.New(appCfg.Server.JWTSecret)
	defer secrets.Purge()

	gin.SetMode(gin.ReleaseMode)
	router := analytics.NewRouter(handlers, analytics.RouterConfig{
		ServiceName: telCfg.ServiceName,
		JWTSecret:   jwtSecret,
		RateLimit:   appCfg.Server.RateLimit,
		Burst:       appCfg.Server.Burst,
		Metrics:     telemetry.MetricsHandler(),
	})

	addr := appCfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting CohortIQ server",
			slog.String("address", addr),
			slog.Bool("auth", !jwtSecret.IsZero()),
			slog.String("traces", telCfg.TraceExporter),
		)
		errCh <- srv.ListenAndServe()
	}()
	auth := "off"
	if !jwtSecret.IsZero() {
		auth = "bearer token"
	}
	ux.Box("CohortIQ API", fmt.Sprintf("listening on %s\nauth: %s\nmetrics: %s/metrics", addr, auth, addr))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down CohortIQ server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown failed", "error", err)
	}
	// Let running jobs finish and persist before the store closes.
	worker.Close()
	jobs.Wait()
	return nil
}

// =============================================================================
// watch
// =============================================================================

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logger.Slog()

	if watchMetricsStdout {
		telCfg := appCfg.Telemetry
		telCfg.ServiceVersion = analytics.ServiceVersion
		telCfg.MetricExporter = telemetry.ExporterStdout
		telCfg.Output = cmd.OutOrStdout()
		shutdownTelemetry, err := telemetry.Init(ctx, telCfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdownTelemetry(flushCtx); err != nil {
				log.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	processor := &watch.Processor{
		Analyzer: pipeline.NewAnalyzer(appCfg.AnalyzerConfig(nil), nil),
		OutDir:   watchOut,
		Logger:   log,
	}
	w, err := watch.New(args[0], processor.Handle, watch.Options{
		Debounce: watchDebounce,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	ux.Success("watching " + args[0] + " for CSV files")
	<-ctx.Done()
	return nil
}
