package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/netpulse-io/netpulse-core/internal/chart"
	"github.com/netpulse-io/netpulse-core/internal/infrastructure/config"
	"github.com/netpulse-io/netpulse-core/internal/infrastructure/database"
	"github.com/netpulse-io/netpulse-core/internal/infrastructure/logging"
	"github.com/netpulse-io/netpulse-core/internal/metric"
	"github.com/netpulse-io/netpulse-core/internal/timeseries"
	_ "github.com/netpulse-io/netpulse-core/migrations"
)

type okChecker struct{ err error }

func (c okChecker) HealthCheck(context.Context) error { return c.err }

// chartFake answers chart queries with a canned result set and can be
// told to fail.
type chartFake struct {
	result *timeseries.ResultSet
	err    error
}

func (f *chartFake) Query(context.Context, string) (*timeseries.ResultSet, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &timeseries.ResultSet{}, nil
	}
	return f.result, nil
}

func (f *chartFake) Write(context.Context, timeseries.Point, *timeseries.WriteOptions) error {
	return f.err
}

func (f *chartFake) QueryLatest(context.Context, string, map[string]string, int) ([]timeseries.Point, error) {
	return nil, timeseries.ErrNotFound
}

func (f *chartFake) HealthCheck(context.Context) error { return nil }
func (f *chartFake) Close() error                      { return nil }

type testServer struct {
	server  *Server
	handler http.Handler
	repo    *metric.SQLiteRepository
}

func newTestServer(t *testing.T, ts *chartFake, mqttProbe HealthChecker) *testServer {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "netpulse.db"),
		WALMode:     true,
		BusyTimeout: 5000,
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := metric.NewSQLiteRepository(db.DB)
	if ts == nil {
		ts = &chartFake{}
	}

	srv, err := New(Deps{
		Config:     config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger:     logging.Default(),
		Metrics:    repo,
		Engine:     metric.NewEngine(repo, ts, nil),
		Charts:     chart.NewSQLiteRepository(db.DB),
		Renderer:   chart.NewRenderer(ts, "influxdb", "1d"),
		Database:   okChecker{},
		Timeseries: ts,
		MQTT:       mqttProbe,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &testServer{server: srv, handler: srv.buildRouter(), repo: repo}
}

func (ts *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

// send issues a request with a JSON body. A string body is sent as-is,
// anything else is marshalled.
func (ts *testServer) send(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createMetric(t *testing.T) *metric.Metric {
	t.Helper()
	m, _, err := ts.repo.GetOrCreate(context.Background(), metric.Identity{
		Name:          "Ping",
		Key:           "ping",
		FieldName:     "reachable",
		MainTags:      map[string]string{"object_id": "dev-01", "content_type": "device"},
		Configuration: "uptime",
	})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	return m
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.get(t, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestStatusHealthy(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.createMetric(t)

	rec := ts.get(t, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
	if body.Components["database"].Status != "ok" ||
		body.Components["timeseries"].Status != "ok" {
		t.Errorf("components = %v", body.Components)
	}
	if body.Components["mqtt"].Status != "disabled" {
		t.Errorf("mqtt should report disabled, got %v", body.Components["mqtt"])
	}
	if body.Metrics != 1 {
		t.Errorf("metrics = %d, want 1", body.Metrics)
	}
}

func TestStatusDegraded(t *testing.T) {
	ts := newTestServer(t, nil, okChecker{err: errors.New("broker unreachable")})

	rec := ts.get(t, "/api/v1/status")
	var body StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if body.Components["mqtt"].Status != "error" {
		t.Errorf("mqtt = %v", body.Components["mqtt"])
	}
}

func TestListMetrics(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.createMetric(t)

	rec := ts.get(t, "/api/v1/metrics/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Metrics []metric.Metric `json:"metrics"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || len(body.Metrics) != 1 || body.Metrics[0].Key != "ping" {
		t.Errorf("body = %+v", body)
	}
}

func TestMetricHealth(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	m := ts.createMetric(t)

	rec := ts.get(t, "/api/v1/metrics/"+m.ID+"/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body MetricHealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.MetricID != m.ID {
		t.Errorf("metric_id = %q", body.MetricID)
	}
	if body.IsHealthy != nil || body.IsHealthyTolerant != nil {
		t.Error("unevaluated metric should report null health")
	}
}

func TestMetricNotFound(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.get(t, "/api/v1/metrics/does-not-exist/health")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestMetricChart(t *testing.T) {
	fake := &chartFake{result: &timeseries.ResultSet{
		Series: []timeseries.Series{{
			Name:    "ping",
			Columns: []string{"time", "uptime"},
			Values:  [][]any{{float64(1760000000), float64(99.4)}},
		}},
	}}
	ts := newTestServer(t, fake, nil)
	m := ts.createMetric(t)

	rec := ts.get(t, "/api/v1/metrics/"+m.ID+"/chart?from="+
		time.Now().UTC().Add(-24*time.Hour).Format(time.RFC3339))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var data chart.Data
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Type != "uptime" || len(data.Traces) != 1 {
		t.Errorf("data = %+v", data)
	}
}

func TestMetricChartBadTimeRange(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	m := ts.createMetric(t)

	rec := ts.get(t, "/api/v1/metrics/"+m.ID+"/chart?from=yesterday")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMetricChartUnknownType(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	m := ts.createMetric(t)

	rec := ts.get(t, "/api/v1/metrics/"+m.ID+"/chart?type=bogus")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body Error
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != ErrCodeBadRequest {
		t.Errorf("code = %q", body.Code)
	}
}

func TestMetricChartBackendUnavailable(t *testing.T) {
	fake := &chartFake{err: timeseries.ErrBackendUnavailable}
	ts := newTestServer(t, fake, nil)
	m := ts.createMetric(t)

	rec := ts.get(t, "/api/v1/metrics/"+m.ID+"/chart")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var body Error
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != ErrCodeUnavailable {
		t.Errorf("code = %q, want %q", body.Code, ErrCodeUnavailable)
	}
}

func TestCreateMetricEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	req := MetricCreateRequest{
		Name:      "CPU",
		Key:       "cpu",
		FieldName: "cpu_usage",
		MainTags:  map[string]string{"object_id": "dev-02"},
	}
	rec := ts.send(t, http.MethodPost, "/api/v1/metrics/", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body = %s", rec.Code, rec.Body.String())
	}
	var created metric.Metric
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Same identity resolves to the existing record.
	rec = ts.send(t, http.MethodPost, "/api/v1/metrics/", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var existing metric.Metric
	if err := json.Unmarshal(rec.Body.Bytes(), &existing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if existing.ID != created.ID {
		t.Errorf("resolved ID = %q, want %q", existing.ID, created.ID)
	}

	req.Key = "cpu usage"
	if rec := ts.send(t, http.MethodPost, "/api/v1/metrics/", req); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid identity status = %d, want 400", rec.Code)
	}
}

func TestWritePointEvaluatesThresholds(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	m := ts.createMetric(t)

	rec := ts.send(t, http.MethodPut, "/api/v1/metrics/"+m.ID+"/thresholds", ThresholdRequest{
		Severity: "critical",
		Operator: "<",
		Value:    1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("save threshold status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = ts.send(t, http.MethodPost, "/api/v1/metrics/"+m.ID+"/points",
		WritePointRequest{Value: 0.0})
	if rec.Code != http.StatusOK {
		t.Fatalf("write point status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var health MetricHealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.IsHealthy == nil || *health.IsHealthy {
		t.Error("breaching point should leave the metric unhealthy")
	}

	rec = ts.get(t, "/api/v1/metrics/"+m.ID+"/thresholds")
	if rec.Code != http.StatusOK {
		t.Fatalf("list thresholds status = %d", rec.Code)
	}
	var listed struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if listed.Count != 1 {
		t.Errorf("threshold count = %d, want 1", listed.Count)
	}
}

func TestWritePointRequiresValue(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	m := ts.createMetric(t)

	rec := ts.send(t, http.MethodPost, "/api/v1/metrics/"+m.ID+"/points", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWritePointBackendUnavailable(t *testing.T) {
	fake := &chartFake{err: timeseries.ErrBackendUnavailable}
	ts := newTestServer(t, fake, nil)
	m := ts.createMetric(t)

	rec := ts.send(t, http.MethodPost, "/api/v1/metrics/"+m.ID+"/points",
		WritePointRequest{Value: 1.0})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestPingReportWritesSamples(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.send(t, http.MethodPost, "/api/v1/reports/ping", PingReportRequest{
		ObjectID:    "dev-01",
		ContentType: "device",
		Reachable:   true,
		Loss:        0.5,
		RTTMin:      1.2,
		RTTAvg:      2.4,
		RTTMax:      4.8,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Written int `json:"written"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Written != 5 {
		t.Errorf("written = %d, want 5", body.Written)
	}

	// One metric per reduced field, with the chart configuration set
	// where the field has one.
	metrics, err := ts.repo.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metrics) != 5 {
		t.Fatalf("expected 5 metrics, got %d", len(metrics))
	}
	configs := map[string]string{}
	for _, m := range metrics {
		if m.Key != "ping" {
			t.Errorf("metric key = %q, want ping", m.Key)
		}
		configs[m.FieldName] = m.Configuration
	}
	if configs["reachable"] != "uptime" || configs["loss"] != "packet_loss" {
		t.Errorf("chart configurations = %v", configs)
	}
}

func TestPingReportUnreachableOmitsRTT(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.send(t, http.MethodPost, "/api/v1/reports/ping", PingReportRequest{
		ObjectID:  "dev-01",
		Reachable: false,
		Loss:      100,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Written int `json:"written"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Written != 2 {
		t.Errorf("written = %d, want 2 (reachable and loss only)", body.Written)
	}
}

func TestPingReportMalformed(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.send(t, http.MethodPost, "/api/v1/reports/ping", PingReportRequest{
		ObjectID: "dev-01",
		Loss:     150,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = ts.send(t, http.MethodPost, "/api/v1/reports/ping", PingReportRequest{Loss: 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing object_id status = %d, want 400", rec.Code)
	}
}

func TestIperfReportWritesSamples(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	report := `{
		"start": {"test_start": {"protocol": "TCP"}},
		"end": {
			"sum_sent": {"bits_per_second": 940000000, "bytes": 117000000, "retransmits": 3},
			"sum_received": {"bits_per_second": 935000000, "bytes": 116000000}
		}
	}`
	rec := ts.send(t, http.MethodPost,
		"/api/v1/reports/iperf3?object_id=dev-01&content_type=device", report)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Written  int    `json:"written"`
		Protocol string `json:"protocol"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Written != 5 || body.Protocol != "tcp" {
		t.Errorf("body = %+v", body)
	}

	metrics, err := ts.repo.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metrics) != 5 {
		t.Fatalf("expected 5 metrics, got %d", len(metrics))
	}
	for _, m := range metrics {
		if m.Key != "iperf3" {
			t.Errorf("metric key = %q, want iperf3", m.Key)
		}
	}
}

func TestIperfReportRejected(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.send(t, http.MethodPost, "/api/v1/reports/iperf3?object_id=dev-01",
		`{"error": "the server is busy running a test"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = ts.send(t, http.MethodPost, "/api/v1/reports/iperf3", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing object_id status = %d, want 400", rec.Code)
	}
}

func TestChartStorageLifecycle(t *testing.T) {
	fake := &chartFake{result: &timeseries.ResultSet{
		Series: []timeseries.Series{{
			Name:    "ping",
			Columns: []string{"time", "uptime"},
			Values:  [][]any{{float64(1760000000), float64(99.4)}},
		}},
	}}
	ts := newTestServer(t, fake, nil)
	m := ts.createMetric(t)

	rec := ts.send(t, http.MethodPost, "/api/v1/metrics/"+m.ID+"/charts", ChartCreateRequest{
		Configuration: "uptime",
		Description:   "WAN uplink uptime",
		Unit:          "percent",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created chart.Chart
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.MetricID != m.ID {
		t.Fatalf("created chart = %+v", created)
	}

	rec = ts.get(t, "/api/v1/metrics/"+m.ID+"/charts")
	var listed struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if listed.Count != 1 {
		t.Errorf("chart count = %d, want 1", listed.Count)
	}

	// Rendering through the stored chart applies its overrides.
	rec = ts.get(t, "/api/v1/metrics/"+m.ID+"/chart?chart="+created.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("render status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var data chart.Data
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Description != "WAN uplink uptime" || data.Unit != "percent" {
		t.Errorf("overrides not applied: description=%q unit=%q", data.Description, data.Unit)
	}

	rec = ts.send(t, http.MethodDelete, "/api/v1/charts/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	if rec := ts.get(t, "/api/v1/metrics/"+m.ID+"/chart?chart="+created.ID); rec.Code != http.StatusNotFound {
		t.Errorf("render after delete status = %d, want 404", rec.Code)
	}
}

func TestCreateChartUnknownType(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	m := ts.createMetric(t)

	rec := ts.send(t, http.MethodPost, "/api/v1/metrics/"+m.ID+"/charts",
		ChartCreateRequest{Configuration: "bogus"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
