// Package httpserver exposes metrics, health probes and a small
// read-only status API over HTTP.
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

	"github.com/mselser95/polymarket-updown/pkg/healthprobe"
)

// Server provides HTTP endpoints for metrics, health checks and
// operator status queries.
type Server struct {
	server        *http.Server
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
}

// Config holds server configuration.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker

	// Optional status API sources. Endpoints are registered only for
	// the sources provided.
	Positions  PositionSource
	History    HistorySource
	Markets    MarketSource
	Automation AutomationSource
	Strategies []StrategySource
}

// New creates a new HTTP server.
func New(cfg *Config) (*Server, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.HealthChecker == nil {
		return nil, fmt.Errorf("health checker is required")
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	status := newStatusHandler(cfg)
	r.Get("/api/status", status.handleStatus)
	if cfg.Positions != nil {
		r.Get("/api/positions", status.handlePositions)
	}
	if cfg.History != nil {
		r.Get("/api/history", status.handleHistory)
	}
	if cfg.Markets != nil {
		r.Get("/api/markets", status.handleMarkets)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		server:        server,
		logger:        cfg.Logger.With(zap.String("component", "httpserver")),
		healthChecker: cfg.HealthChecker,
	}, nil
}

// Handler returns the configured router, for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start starts the HTTP server. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
