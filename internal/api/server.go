// Package api provides the operational HTTP surface: service liveness,
// component status, metric health/chart reads, chart and threshold
// management, and the write path that feeds samples and collector
// reports into the engine.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/netpulse-io/netpulse-core/internal/chart"
	"github.com/netpulse-io/netpulse-core/internal/infrastructure/config"
	"github.com/netpulse-io/netpulse-core/internal/infrastructure/logging"
	"github.com/netpulse-io/netpulse-core/internal/metric"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is the probe surface of a backing component.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Metrics  metric.Repository
	Engine   *metric.Engine
	Charts   chart.Repository
	Renderer *chart.Renderer

	// Component probes reported by /api/v1/status. Database and
	// Timeseries are required; MQTT is nil when alerting is disabled.
	Database   HealthChecker
	Timeseries HealthChecker
	MQTT       HealthChecker

	Version string
}

// Server is the operational HTTP server.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	metrics  metric.Repository
	engine   *metric.Engine
	charts   chart.Repository
	renderer *chart.Renderer
	db       HealthChecker
	tsdb     HealthChecker
	mqtt     HealthChecker
	version  string
	server   *http.Server
}

// New creates an API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Metrics == nil {
		return nil, fmt.Errorf("metric repository is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("metric engine is required")
	}
	if deps.Charts == nil {
		return nil, fmt.Errorf("chart repository is required")
	}
	if deps.Database == nil || deps.Timeseries == nil {
		return nil, fmt.Errorf("database and timeseries health checkers are required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		engine:   deps.Engine,
		charts:   deps.Charts,
		renderer: deps.Renderer,
		db:       deps.Database,
		tsdb:     deps.Timeseries,
		mqtt:     deps.MQTT,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background
// goroutine. The server stops with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the server, waiting up to ten seconds
// for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
