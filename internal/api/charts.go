package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/netpulse-io/netpulse-core/internal/chart"
	"github.com/netpulse-io/netpulse-core/internal/metric"
)

// ChartCreateRequest is the POST /metrics/{id}/charts payload.
// Description and Unit, when set, override the template's own when the
// chart is rendered.
type ChartCreateRequest struct {
	Configuration string `json:"configuration"`
	Description   string `json:"description,omitempty"`
	Unit          string `json:"unit,omitempty"`
}

// handleCreateChart attaches a stored chart to a metric.
func (s *Server) handleCreateChart(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookupMetric(w, r)
	if !ok {
		return
	}

	var req ChartCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}

	c := &chart.Chart{
		MetricID:      m.ID,
		Configuration: req.Configuration,
		Description:   req.Description,
		Unit:          req.Unit,
	}
	if err := s.charts.Create(r.Context(), c); err != nil {
		if errors.Is(err, chart.ErrUnknownChartType) {
			writeBadRequest(w, "unknown chart type "+req.Configuration)
			return
		}
		s.logger.Error("chart create failed", "metric_id", m.ID, "error", err)
		writeInternalError(w, "failed to create chart")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleListCharts returns a metric's stored charts.
func (s *Server) handleListCharts(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookupMetric(w, r)
	if !ok {
		return
	}

	charts, err := s.charts.ListByMetric(r.Context(), m.ID)
	if err != nil {
		s.logger.Error("chart list failed", "metric_id", m.ID, "error", err)
		writeInternalError(w, "failed to list charts")
		return
	}
	if charts == nil {
		charts = []*chart.Chart{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"charts": charts,
		"count":  len(charts),
	})
}

// handleDeleteChart removes a stored chart.
func (s *Server) handleDeleteChart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chartID")
	err := s.charts.Delete(r.Context(), id)
	if errors.Is(err, chart.ErrNotFound) {
		writeNotFound(w, "chart not found")
		return
	}
	if err != nil {
		s.logger.Error("chart delete failed", "chart_id", id, "error", err)
		writeInternalError(w, "failed to delete chart")
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// ThresholdRequest is the PUT /metrics/{id}/thresholds payload. The
// severity identifies the threshold: saving an existing severity
// replaces its definition.
type ThresholdRequest struct {
	Severity         string  `json:"severity"`
	Operator         string  `json:"operator"`
	Value            float64 `json:"value"`
	ToleranceSeconds int     `json:"tolerance_seconds"`
}

// handleSaveThreshold creates or replaces a metric's threshold for one
// severity.
func (s *Server) handleSaveThreshold(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookupMetric(w, r)
	if !ok {
		return
	}

	var req ThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}

	th := &metric.Threshold{
		MetricID:  m.ID,
		Severity:  req.Severity,
		Operator:  metric.Operator(req.Operator),
		Value:     req.Value,
		Tolerance: time.Duration(req.ToleranceSeconds) * time.Second,
	}
	if err := s.metrics.SaveThreshold(r.Context(), th); err != nil {
		if errors.Is(err, metric.ErrInvalidThreshold) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("threshold save failed", "metric_id", m.ID, "error", err)
		writeInternalError(w, "failed to save threshold")
		return
	}
	writeJSON(w, http.StatusOK, th)
}

// handleListThresholds returns a metric's thresholds, most urgent
// severity first.
func (s *Server) handleListThresholds(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookupMetric(w, r)
	if !ok {
		return
	}

	thresholds, err := s.metrics.Thresholds(r.Context(), m.ID)
	if err != nil {
		s.logger.Error("threshold list failed", "metric_id", m.ID, "error", err)
		writeInternalError(w, "failed to list thresholds")
		return
	}
	if thresholds == nil {
		thresholds = []metric.Threshold{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thresholds": thresholds,
		"count":      len(thresholds),
	})
}

// handleDeleteThreshold removes a threshold.
func (s *Server) handleDeleteThreshold(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "thresholdID")
	err := s.metrics.DeleteThreshold(r.Context(), id)
	if errors.Is(err, metric.ErrNotFound) {
		writeNotFound(w, "threshold not found")
		return
	}
	if err != nil {
		s.logger.Error("threshold delete failed", "threshold_id", id, "error", err)
		writeInternalError(w, "failed to delete threshold")
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
