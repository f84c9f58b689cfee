package chart

import (
	"context"
	"testing"
	"time"

	"github.com/netpulse-io/netpulse-core/internal/timeseries"
)

// queryFake returns a canned result set and records the query it was
// asked to run.
type queryFake struct {
	lastQuery string
	result    *timeseries.ResultSet
	err       error
}

func (f *queryFake) Query(_ context.Context, q string) (*timeseries.ResultSet, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *queryFake) Write(context.Context, timeseries.Point, *timeseries.WriteOptions) error {
	return nil
}

func (f *queryFake) QueryLatest(context.Context, string, map[string]string, int) ([]timeseries.Point, error) {
	return nil, timeseries.ErrNotFound
}

func (f *queryFake) HealthCheck(context.Context) error { return nil }
func (f *queryFake) Close() error                      { return nil }

func TestReadPostProcessing(t *testing.T) {
	fake := &queryFake{result: &timeseries.ResultSet{
		Series: []timeseries.Series{{
			Name:    "ping",
			Columns: []string{"time", "uptime"},
			Values: [][]any{
				{float64(1760000000), float64(99.4567)},
				{float64(1760086400), nil},
				{float64(1760172800), float64(98.21)},
			},
		}},
	}}
	r := NewRenderer(fake, "influxdb", "1d")

	data, err := r.Read(context.Background(), "uptime", pingMetric(),
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), time.Time{}, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if data.Type != "uptime" || data.Unit != "%" {
		t.Errorf("metadata wrong: type=%q unit=%q", data.Type, data.Unit)
	}
	if len(data.Traces) != 1 {
		t.Fatalf("expected 1 trace, got %d", len(data.Traces))
	}
	trace := data.Traces[0]
	if trace.Name != "uptime" {
		t.Errorf("trace name = %q", trace.Name)
	}
	if len(trace.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(trace.Points))
	}
	// Decimals: 1 for uptime.
	if trace.Points[0].Value == nil || *trace.Points[0].Value != 99.5 {
		t.Errorf("rounding wrong: %v", trace.Points[0].Value)
	}
	if trace.Points[1].Value != nil {
		t.Error("missing bucket should keep a nil value")
	}

	// Summary is the mean of 99.5 and 98.2, rounded.
	if got := data.Summary["uptime"]; got != 98.9 {
		t.Errorf("summary = %v, want 98.9", got)
	}
}

func TestReadSumSummaryAndMultipleColumns(t *testing.T) {
	fake := &queryFake{result: &timeseries.ResultSet{
		Series: []timeseries.Series{{
			Name:    "traffic",
			Columns: []string{"time", "upload", "download"},
			Values: [][]any{
				{float64(1760000000), float64(1.204), float64(10.107)},
				{float64(1760086400), float64(0.302), float64(5.001)},
			},
		}},
	}}
	r := NewRenderer(fake, "influxdb", "1d")
	m := pingMetric()
	m.Key = "traffic"

	data, err := r.Read(context.Background(), "traffic", m,
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), time.Time{},
		map[string]string{"ifname": "eth0"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if len(data.Traces) != 2 {
		t.Fatalf("expected 2 traces, got %d", len(data.Traces))
	}
	// Points are rounded before the sum: 1.2 + 0.3.
	if data.Summary["upload"] != 1.5 {
		t.Errorf("upload summary = %v, want 1.5", data.Summary["upload"])
	}
	if data.Summary["download"] != 15.11 {
		t.Errorf("download summary = %v, want 15.11", data.Summary["download"])
	}
}

func TestReadLastSummary(t *testing.T) {
	fake := &queryFake{result: &timeseries.ResultSet{
		Series: []timeseries.Series{{
			Name:    "wifi_clients",
			Columns: []string{"time", "wifi_clients"},
			Values: [][]any{
				{float64(1760000000), float64(12)},
				{float64(1760086400), float64(7)},
			},
		}},
	}}
	r := NewRenderer(fake, "influxdb", "1d")
	m := pingMetric()
	m.Key = "wifi_clients"
	m.FieldName = "clients"
	m.ExtraTags = map[string]string{"ifname": "wlan0"}

	data, err := r.Read(context.Background(), "wifi_clients", m,
		time.Now().Add(-24*time.Hour), time.Time{}, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if data.Summary["wifi_clients"] != 7 {
		t.Errorf("last summary = %v, want 7", data.Summary["wifi_clients"])
	}
}

func TestReadEmptyResult(t *testing.T) {
	fake := &queryFake{result: &timeseries.ResultSet{}}
	r := NewRenderer(fake, "influxdb", "1d")

	data, err := r.Read(context.Background(), "uptime", pingMetric(),
		time.Now().Add(-24*time.Hour), time.Time{}, nil)
	if err != nil {
		t.Fatalf("an empty result is not an error: %v", err)
	}
	if !data.Empty() {
		t.Error("expected empty data")
	}
	if len(data.Summary) != 0 {
		t.Errorf("empty data should have no summaries: %v", data.Summary)
	}
}

func TestReadQueryFailure(t *testing.T) {
	fake := &queryFake{err: timeseries.ErrQueryFailed}
	r := NewRenderer(fake, "influxdb", "1d")

	_, err := r.Read(context.Background(), "uptime", pingMetric(),
		time.Now().Add(-24*time.Hour), time.Time{}, nil)
	if err == nil {
		t.Fatal("expected query failure to propagate")
	}
}

func TestReadGroupedSeriesNames(t *testing.T) {
	fake := &queryFake{result: &timeseries.ResultSet{
		Series: []timeseries.Series{
			{
				Name:    "ping",
				Tags:    map[string]string{"object_id": "dev-01"},
				Columns: []string{"time", "uptime"},
				Values:  [][]any{{float64(1760000000), float64(100)}},
			},
			{
				Name:    "ping",
				Tags:    map[string]string{"object_id": "dev-02"},
				Columns: []string{"time", "uptime"},
				Values:  [][]any{{float64(1760000000), float64(50)}},
			},
		},
	}}
	r := NewRenderer(fake, "influxdb", "1d")

	data, err := r.Read(context.Background(), "uptime", pingMetric(),
		time.Now().Add(-24*time.Hour), time.Time{}, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(data.Traces) != 2 {
		t.Fatalf("expected 2 traces, got %d", len(data.Traces))
	}
	if data.Traces[0].Name != "uptime (dev-01)" || data.Traces[1].Name != "uptime (dev-02)" {
		t.Errorf("grouped trace names wrong: %q, %q",
			data.Traces[0].Name, data.Traces[1].Name)
	}
}
