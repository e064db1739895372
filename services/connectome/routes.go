// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package connectome

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
)

// RegisterRoutes registers the /connectome endpoints on rg.
//
// Endpoints:
//
//	GET  /v1/connectome/health - Liveness
//	GET  /v1/connectome/ready - Readiness (snapshot served)
//	GET  /v1/connectome/datasets - Dataset listing
//	GET  /v1/connectome/available-neurons - Neurons and classes of datasets
//	POST /v1/connectome/edges - Edge aggregation
//	GET  /v1/connectome/paths - All shortest paths
//	POST /v1/connectome/admin/reload - Reload records and snapshot
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	connectome := rg.Group("/connectome")
	{
		connectome.GET("/health", handlers.HandleHealth)
		connectome.GET("/ready", handlers.HandleReady)

		connectome.GET("/datasets", handlers.HandleDatasets)
		connectome.GET("/available-neurons", handlers.HandleAvailableNeurons)
		connectome.POST("/edges", handlers.HandleEdges)
		connectome.GET("/paths", handlers.HandlePaths)

		connectome.POST("/admin/reload", handlers.HandleReload)
	}
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// ServiceName names the otelgin spans. Empty disables tracing middleware.
	ServiceName string

	// RequestTimeout is the per-request deadline. 0 disables it.
	RequestTimeout time.Duration

	// RateLimit is requests per second. 0 disables limiting.
	RateLimit float64

	// RateBurst is the limiter burst. Defaults to 1 when limiting.
	RateBurst int

	// Metrics is served at /metrics when non-nil.
	Metrics http.Handler

	// Logger receives access log lines. Nil disables access logging.
	Logger *slog.Logger
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(handlers *Handlers, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(RequestID())
	if cfg.Logger != nil {
		r.Use(AccessLog(cfg.Logger))
	}

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	v1 := r.Group("/v1")
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		v1.Use(RateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)))
	}
	v1.Use(Timeout(cfg.RequestTimeout))
	RegisterRoutes(v1, handlers)
	return r
}
