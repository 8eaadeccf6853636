// Package httpserver exposes the operator plane: metrics, health probes,
// match search, allocation, webhook stats and DLQ operations, and the risk
// breaker controls. The tenant-facing business API lives outside this module.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/allocation"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/matching"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/risk"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/webhook"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/healthprobe"
)

// Server provides the operator HTTP endpoints.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config holds server dependencies. Nil components leave their routes
// unregistered.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker

	Engine    *matching.Engine
	Allocator *allocation.Allocator
	Webhooks  *webhook.Manager
	Risk      *risk.Orchestrator
}

// New creates the HTTP server.
func New(cfg *Config) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	if cfg.Engine != nil {
		mh := newMatchHandler(cfg.Engine, cfg.Allocator, cfg.Logger)
		r.Get("/api/matches/requirement/{id}", mh.handleRequirementMatches)
		r.Get("/api/matches/availability/{id}", mh.handleAvailabilityMatches)
		if cfg.Allocator != nil {
			r.Post("/api/allocations", mh.handleAllocate)
		}
	}

	if cfg.Webhooks != nil {
		wh := newWebhookHandler(cfg.Webhooks, cfg.Logger)
		r.Get("/api/webhooks/stats/{org}", wh.handleStats)
		r.Get("/api/webhooks/dlq/{org}", wh.handleDLQList)
		r.Post("/api/webhooks/dlq/{org}/{delivery}/retry", wh.handleDLQRetry)
	}

	if cfg.Risk != nil {
		rh := newRiskHandler(cfg.Risk, cfg.Logger)
		r.Get("/api/risk/breaker", rh.handleBreakerStatus)
		r.Post("/api/risk/breaker/reset", rh.handleBreakerReset)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{server: server, logger: cfg.Logger}
}

// Start blocks until the server stops or fails.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

// Shutdown gracefully drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("http-server-shutdown-complete")
	return nil
}
