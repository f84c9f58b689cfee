package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/netpulse-io/netpulse-core/internal/chart"
	"github.com/netpulse-io/netpulse-core/internal/metric"
	"github.com/netpulse-io/netpulse-core/internal/timeseries"
)

// statusProbeTimeout bounds each component probe so one hung backend
// cannot stall the whole status response.
const statusProbeTimeout = 5 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	// Liveness probe, no dependencies touched.
	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/metrics", func(r chi.Router) {
			r.Get("/", s.handleListMetrics)
			r.Post("/", s.handleCreateMetric)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetMetric)
				r.Post("/points", s.handleWritePoint)
				r.Get("/health", s.handleMetricHealth)
				r.Get("/chart", s.handleMetricChart)
				r.Get("/charts", s.handleListCharts)
				r.Post("/charts", s.handleCreateChart)
				r.Get("/thresholds", s.handleListThresholds)
				r.Put("/thresholds", s.handleSaveThreshold)
			})
		})

		r.Delete("/charts/{chartID}", s.handleDeleteChart)
		r.Delete("/thresholds/{thresholdID}", s.handleDeleteThreshold)

		r.Route("/reports", func(r chi.Router) {
			r.Post("/ping", s.handlePingReport)
			r.Post("/iperf3", s.handleIperfReport)
		})
	})

	return r
}

// handleHealthz returns the server liveness status.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// ComponentStatus reports one backing component's probe result.
type ComponentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// StatusResponse is the /api/v1/status payload.
type StatusResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Components map[string]ComponentStatus `json:"components"`
	Metrics    int                        `json:"metrics"`
}

// handleStatus probes every backing component and reports degraded
// instead of ok as soon as one fails. The endpoint itself always
// answers 200; consumers inspect the body.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statusProbeTimeout)
	defer cancel()

	resp := StatusResponse{
		Status:     "ok",
		Version:    s.version,
		Components: map[string]ComponentStatus{},
	}

	probe := func(name string, hc HealthChecker) {
		if hc == nil {
			resp.Components[name] = ComponentStatus{Status: "disabled"}
			return
		}
		if err := hc.HealthCheck(ctx); err != nil {
			resp.Components[name] = ComponentStatus{Status: "error", Error: err.Error()}
			resp.Status = "degraded"
			return
		}
		resp.Components[name] = ComponentStatus{Status: "ok"}
	}
	probe("database", s.db)
	probe("timeseries", s.tsdb)
	probe("mqtt", s.mqtt)

	if n, err := s.metrics.Count(ctx); err == nil {
		resp.Metrics = n
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleListMetrics returns all registered metrics.
func (s *Server) handleListMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.metrics.List(r.Context())
	if err != nil {
		s.logger.Error("list metrics failed", "error", err)
		writeInternalError(w, "failed to list metrics")
		return
	}
	if metrics == nil {
		metrics = []*metric.Metric{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics": metrics,
		"count":   len(metrics),
	})
}

// handleGetMetric returns a single metric.
func (s *Server) handleGetMetric(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookupMetric(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// MetricHealthResponse is the /metrics/{id}/health payload. Health
// fields are null for a metric that has never been evaluated.
type MetricHealthResponse struct {
	MetricID          string     `json:"metric_id"`
	IsHealthy         *bool      `json:"is_healthy"`
	IsHealthyTolerant *bool      `json:"is_healthy_tolerant"`
	FirstBreachAt     *time.Time `json:"first_breach_at,omitempty"`
}

// handleMetricHealth returns a metric's immediate and tolerant health
// state.
func (s *Server) handleMetricHealth(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookupMetric(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, MetricHealthResponse{
		MetricID:          m.ID,
		IsHealthy:         m.IsHealthy,
		IsHealthyTolerant: m.IsHealthyTolerant,
		FirstBreachAt:     m.FirstBreachAt,
	})
}

// handleMetricChart renders and executes the metric's chart.
//
// Query parameters: chart (a stored chart ID, whose configuration and
// description/unit overrides apply), type (chart type, defaults to the
// metric's own configuration), from/to (RFC3339, from defaults to
// 7 days ago), and any further parameters are passed through to the
// query template (ifname, organization_id, ...).
func (s *Server) handleMetricChart(w http.ResponseWriter, r *http.Request) {
	if s.renderer == nil {
		writeInternalError(w, "chart rendering not configured")
		return
	}
	m, ok := s.lookupMetric(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	chartType := q.Get("type")

	var stored *chart.Chart
	if chartID := q.Get("chart"); chartID != "" {
		c, err := s.charts.GetByID(r.Context(), chartID)
		if err == nil && c.MetricID != m.ID {
			err = chart.ErrNotFound
		}
		if errors.Is(err, chart.ErrNotFound) {
			writeNotFound(w, "chart not found")
			return
		}
		if err != nil {
			s.logger.Error("chart lookup failed", "chart_id", chartID, "error", err)
			writeInternalError(w, "failed to load chart")
			return
		}
		stored = c
		chartType = c.Configuration
	}
	if chartType == "" {
		chartType = m.Configuration
	}

	from := time.Now().UTC().Add(-7 * 24 * time.Hour)
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "from must be RFC3339")
			return
		}
		from = t
	}
	var to time.Time
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "to must be RFC3339")
			return
		}
		to = t
	}

	extra := map[string]string{}
	for k, vs := range q {
		switch k {
		case "type", "from", "to":
			continue
		}
		if len(vs) > 0 {
			extra[k] = vs[0]
		}
	}

	data, err := s.renderer.Read(r.Context(), chartType, m, from, to, extra)
	if err != nil {
		s.writeChartError(w, m.ID, chartType, err)
		return
	}
	if stored != nil {
		if stored.Description != "" {
			data.Description = stored.Description
		}
		if stored.Unit != "" {
			data.Unit = stored.Unit
		}
	}
	writeJSON(w, http.StatusOK, data)
}

// writeChartError maps a chart read failure onto the response: client
// mistakes are 400, a failing backend is 502, everything else is an
// opaque 500.
func (s *Server) writeChartError(w http.ResponseWriter, metricID, chartType string, err error) {
	switch {
	case errors.Is(err, chart.ErrUnknownChartType):
		writeBadRequest(w, fmt.Sprintf("unknown chart type %q", chartType))
	case errors.Is(err, chart.ErrMissingParameter):
		writeBadRequest(w, err.Error())
	case errors.Is(err, timeseries.ErrBackendUnavailable):
		s.logger.Error("chart read failed, backend unavailable",
			"metric_id", metricID, "chart_type", chartType, "error", err)
		writeBadGateway(w, "time-series backend unavailable")
	default:
		s.logger.Error("chart read failed",
			"metric_id", metricID, "chart_type", chartType, "error", err)
		writeInternalError(w, "failed to render chart")
	}
}

// lookupMetric resolves the {id} path parameter, writing the error
// response itself when the metric cannot be served.
func (s *Server) lookupMetric(w http.ResponseWriter, r *http.Request) (*metric.Metric, bool) {
	id := chi.URLParam(r, "id")
	m, err := s.metrics.GetByID(r.Context(), id)
	if errors.Is(err, metric.ErrNotFound) {
		writeNotFound(w, "metric not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("metric lookup failed", "metric_id", id, "error", err)
		writeInternalError(w, "failed to load metric")
		return nil, false
	}
	return m, true
}
