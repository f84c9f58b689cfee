package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/netpulse-io/netpulse-core/internal/ingest"
	"github.com/netpulse-io/netpulse-core/internal/metric"
	"github.com/netpulse-io/netpulse-core/internal/timeseries"
)

// maxReportSize caps collector report bodies at 1 MiB.
const maxReportSize = 1 << 20

// MetricCreateRequest is the POST /metrics payload: the identity of a
// metric to resolve, creating it if absent.
type MetricCreateRequest struct {
	Name          string            `json:"name"`
	Key           string            `json:"key"`
	FieldName     string            `json:"field_name"`
	MainTags      map[string]string `json:"main_tags"`
	Configuration string            `json:"configuration,omitempty"`
}

// handleCreateMetric resolves a metric by identity. Answers 201 when
// the metric was created, 200 when it already existed.
func (s *Server) handleCreateMetric(w http.ResponseWriter, r *http.Request) {
	var req MetricCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}

	m, created, err := s.metrics.GetOrCreate(r.Context(), metric.Identity{
		Name:          req.Name,
		Key:           req.Key,
		FieldName:     req.FieldName,
		MainTags:      req.MainTags,
		Configuration: req.Configuration,
	})
	if errors.Is(err, metric.ErrInvalidIdentity) {
		writeBadRequest(w, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("metric create failed", "key", req.Key, "error", err)
		writeInternalError(w, "failed to create metric")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, m)
}

// WritePointRequest is the POST /metrics/{id}/points payload.
type WritePointRequest struct {
	Value           any               `json:"value"`
	Time            *time.Time        `json:"time,omitempty"`
	ExtraTags       map[string]string `json:"extra_tags,omitempty"`
	RetentionPolicy string            `json:"retention_policy,omitempty"`
}

// handleWritePoint stores one sample through the engine and reports
// the health state left by its evaluation.
func (s *Server) handleWritePoint(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookupMetric(w, r)
	if !ok {
		return
	}

	var req WritePointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	sample := metric.Sample{
		Value:           req.Value,
		ExtraTags:       req.ExtraTags,
		RetentionPolicy: req.RetentionPolicy,
	}
	if req.Time != nil {
		sample.Time = *req.Time
	}

	if err := s.engine.Write(r.Context(), m, sample); err != nil {
		s.writeSampleError(w, m.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, MetricHealthResponse{
		MetricID:          m.ID,
		IsHealthy:         m.IsHealthy,
		IsHealthyTolerant: m.IsHealthyTolerant,
		FirstBreachAt:     m.FirstBreachAt,
	})
}

// PingReportRequest is the POST /reports/ping payload: one ping check
// outcome for a monitored object.
type PingReportRequest struct {
	ObjectID    string     `json:"object_id"`
	ContentType string     `json:"content_type,omitempty"`
	Time        *time.Time `json:"time,omitempty"`

	Reachable bool    `json:"reachable"`
	Loss      float64 `json:"loss"`
	RTTMin    float64 `json:"rtt_min"`
	RTTAvg    float64 `json:"rtt_avg"`
	RTTMax    float64 `json:"rtt_max"`
}

// pingCharts names the chart configuration for each ping field.
var pingCharts = map[string]string{
	"reachable": "uptime",
	"loss":      "packet_loss",
	"rtt_avg":   "rtt",
}

// handlePingReport reduces a ping report to samples and writes them
// through the engine, creating the per-field metrics on first sight.
func (s *Server) handlePingReport(w http.ResponseWriter, r *http.Request) {
	var req PingReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body")
		return
	}
	if req.ObjectID == "" {
		writeBadRequest(w, "object_id is required")
		return
	}

	samples, err := ingest.PingResult{
		Reachable: req.Reachable,
		Loss:      req.Loss,
		RTTMin:    req.RTTMin,
		RTTAvg:    req.RTTAvg,
		RTTMax:    req.RTTMax,
	}.Samples()
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	at := time.Now().UTC()
	if req.Time != nil {
		at = *req.Time
	}
	written, err := s.writeReportSamples(r, "Ping", "ping",
		req.ObjectID, req.ContentType, pingCharts, samples, at)
	if err != nil {
		s.writeSampleError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"written": written})
}

// handleIperfReport reduces a raw iperf3 --json report to samples and
// writes them through the engine. The monitored object is named by the
// object_id and content_type query parameters, since the body is the
// unmodified iperf3 output.
func (s *Server) handleIperfReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	objectID := q.Get("object_id")
	if objectID == "" {
		writeBadRequest(w, "object_id is required")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxReportSize))
	if err != nil {
		writeBadRequest(w, "failed to read report body")
		return
	}
	result, err := ingest.ParseIperf(body)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	written, err := s.writeReportSamples(r, "Iperf3", "iperf3",
		objectID, q.Get("content_type"), nil, result.Samples(), time.Now().UTC())
	if err != nil {
		s.writeSampleError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"written":  written,
		"protocol": result.Protocol,
	})
}

// writeReportSamples resolves one metric per sample field under the
// shared measurement key and writes each sample at the shared
// timestamp. Returns how many samples were written before any failure.
func (s *Server) writeReportSamples(r *http.Request, name, key, objectID, contentType string,
	charts map[string]string, samples []ingest.Sample, at time.Time) (int, error) {

	tags := map[string]string{"object_id": objectID}
	if contentType != "" {
		tags["content_type"] = contentType
	}

	for i, sample := range samples {
		m, err := s.engine.GetOrCreate(r.Context(), metric.Identity{
			Name:          name,
			Key:           key,
			FieldName:     sample.Field,
			MainTags:      tags,
			Configuration: charts[sample.Field],
		})
		if err != nil {
			return i, err
		}
		if err := s.engine.Write(r.Context(), m, metric.Sample{Value: sample.Value, Time: at}); err != nil {
			return i, err
		}
	}
	return len(samples), nil
}

// writeSampleError maps an engine write failure onto the response.
func (s *Server) writeSampleError(w http.ResponseWriter, metricID string, err error) {
	switch {
	case errors.Is(err, metric.ErrInvalidValue),
		errors.Is(err, metric.ErrInvalidIdentity),
		errors.Is(err, timeseries.ErrInvalidPoint):
		writeBadRequest(w, err.Error())
	case errors.Is(err, timeseries.ErrBackendUnavailable):
		s.logger.Error("sample write failed, backend unavailable",
			"metric_id", metricID, "error", err)
		writeBadGateway(w, "time-series backend unavailable")
	default:
		s.logger.Error("sample write failed", "metric_id", metricID, "error", err)
		writeInternalError(w, "failed to write sample")
	}
}
