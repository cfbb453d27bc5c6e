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
	"net/http"

	"github.com/AleutianAI/CohortIQ/pkg/secrets"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RouterConfig configures the middleware stack of NewRouter.
type RouterConfig struct {
	// ServiceName names the server span source.
	ServiceName string

	// JWTSecret enables bearer auth on /v1 when non-empty.
	JWTSecret *secrets.Secret

	// RateLimit is requests per second per client on /v1. Zero disables it.
	RateLimit float64
	Burst     int

	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
}

// RegisterRoutes registers the /v1 endpoints with the router group.
//
// Endpoints:
//
//	POST /v1/analyze - Synchronous full analysis
//	POST /v1/validate - Validate rows without analyzing
//	POST /v1/ltv - Recompute LTV for a retention matrix
//	POST /v1/abtest - A/B test simulation
//	POST /v1/jobs - Queue an asynchronous analysis
//	GET  /v1/jobs - List jobs without results
//	GET  /v1/jobs/:id - Job status and result
//	DELETE /v1/jobs/:id - Delete a finished job
//	GET  /v1/jobs/:id/stream - Websocket status stream
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rg.POST("/analyze", handlers.HandleAnalyze)
	rg.POST("/validate", handlers.HandleValidate)
	rg.POST("/ltv", handlers.HandleLTV)
	rg.POST("/abtest", handlers.HandleABTest)

	jobs := rg.Group("/jobs")
	{
		jobs.POST("", handlers.HandleCreateJob)
		jobs.GET("", handlers.HandleListJobs)
		jobs.GET("/:id", handlers.HandleGetJob)
		jobs.DELETE("/:id", handlers.HandleDeleteJob)
		jobs.GET("/:id/stream", handlers.HandleJobStream)
	}
}

// NewRouter builds the gin engine with tracing, request IDs, auth and
// rate limiting. /health and /metrics bypass auth and limits.
func NewRouter(handlers *Handlers, cfg RouterConfig) *gin.Engine {
	name := cfg.ServiceName
	if name == "" {
		name = "cohortiq"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(name))
	router.Use(RequestID())

	router.GET("/health", handlers.HandleHealth)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	v1 := router.Group("/v1")
	v1.Use(AuthRequired(cfg.JWTSecret), RateLimit(cfg.RateLimit, cfg.Burst))
	RegisterRoutes(v1, handlers)
	return router
}
