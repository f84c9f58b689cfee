package chart

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/netpulse-io/netpulse-core/internal/metric"
	"github.com/netpulse-io/netpulse-core/internal/timeseries"
)

// Data is the post-processed result of a chart query: one trace per
// result column, scaled and rounded per the template, plus a summary
// value per trace.
type Data struct {
	Type        string             `json:"type"`
	Description string             `json:"description"`
	Unit        string             `json:"unit,omitempty"`
	Traces      []Trace            `json:"traces"`
	Summary     map[string]float64 `json:"summary"`
}

// Empty reports whether the query returned no points. An empty chart
// is a valid answer, distinct from a query failure.
func (d *Data) Empty() bool {
	for _, tr := range d.Traces {
		if len(tr.Points) > 0 {
			return false
		}
	}
	return true
}

// Trace is one named value series within a chart.
type Trace struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Point is a single charted value. Value is nil where the backend
// produced no data for the bucket.
type Point struct {
	Time  time.Time `json:"time"`
	Value *float64  `json:"value"`
}

// Renderer turns chart templates into backend queries, runs them and
// post-processes the results.
//
// Thread Safety: Renderer is safe for concurrent use.
type Renderer struct {
	ts       timeseries.Client
	backend  string
	interval string
}

// NewRenderer creates a renderer.
//
// Parameters:
//   - ts: time-series client to run queries against
//   - backend: backend name used to select template query text
//   - interval: GROUP BY time bucket (InfluxQL duration literal)
func NewRenderer(ts timeseries.Client, backend, interval string) *Renderer {
	return &Renderer{ts: ts, backend: backend, interval: interval}
}

// Render produces the executable query for a chart type and metric.
// An empty or "default" chart type uses the generic fallback, with the
// object filter only when the metric carries identifying tags.
func (r *Renderer) Render(chartType string, m *metric.Metric, from, to time.Time, extra map[string]string) (string, error) {
	params := r.buildParams(m, from, to, extra)

	tpl, err := r.resolve(chartType, params)
	if err != nil {
		return "", err
	}
	return tpl.render(r.backend, params)
}

// Read renders and executes a chart query, then applies the template's
// scaling, rounding and summary rules. A query that matches no points
// returns an empty Data, not an error.
func (r *Renderer) Read(ctx context.Context, chartType string, m *metric.Metric, from, to time.Time, extra map[string]string) (*Data, error) {
	params := r.buildParams(m, from, to, extra)

	tpl, err := r.resolve(chartType, params)
	if err != nil {
		return nil, err
	}
	query, err := tpl.render(r.backend, params)
	if err != nil {
		return nil, err
	}

	rs, err := r.ts.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", tpl.Type, err)
	}

	data := &Data{
		Type:        tpl.Type,
		Description: strings.ReplaceAll(tpl.Description, "{name}", m.Name),
		Unit:        tpl.Unit,
		Summary:     map[string]float64{},
	}
	for _, series := range rs.Series {
		r.appendSeries(data, tpl, series)
	}
	return data, nil
}

// ReadMetric charts a metric by its own configuration name.
func (r *Renderer) ReadMetric(ctx context.Context, m *metric.Metric, from, to time.Time, extra map[string]string) (*Data, error) {
	return r.Read(ctx, m.Configuration, m, from, to, extra)
}

func (r *Renderer) resolve(chartType string, params map[string]string) (Template, error) {
	if chartType == "" || chartType == "default" {
		_, hasObject := params["object_id"]
		return DefaultTemplate(hasObject), nil
	}
	return GetTemplate(chartType)
}

// buildParams assembles the placeholder values for one render: metric
// identity, time range and caller extras. Filter parameters become
// whole clauses so optional ones vanish when absent.
func (r *Renderer) buildParams(m *metric.Metric, from, to time.Time, extra map[string]string) map[string]string {
	params := map[string]string{
		"key":        m.Key,
		"field_name": m.FieldName,
		"name":       m.Name,
		"time":       from.UTC().Format(time.RFC3339),
		"interval":   r.interval,
	}
	if !to.IsZero() {
		params["end_date"] = fmt.Sprintf(" AND time <= '%s'", to.UTC().Format(time.RFC3339))
	}
	for k, v := range m.MainTags {
		params[k] = escapeStringLiteral(v)
	}
	for k, v := range m.ExtraTags {
		params[k] = escapeStringLiteral(v)
	}
	for k, v := range extra {
		params[k] = escapeStringLiteral(v)
	}
	for _, name := range filterClauseParams {
		if v, ok := params[name]; ok {
			params[name] = fmt.Sprintf(" AND %q = '%s'", name, v)
		}
	}
	return params
}

// appendSeries converts one backend series into traces. Columns other
// than time each become a trace; series tags disambiguate trace names
// when the query grouped by a tag.
func (r *Renderer) appendSeries(data *Data, tpl Template, series timeseries.Series) {
	timeIdx := series.ColumnIndex("time")
	if timeIdx < 0 {
		return
	}

	suffix := seriesSuffix(series.Tags)
	for i, col := range series.Columns {
		if i == timeIdx {
			continue
		}
		trace := Trace{Name: col + suffix}
		for _, row := range series.Values {
			if timeIdx >= len(row) || i >= len(row) {
				continue
			}
			ts, ok := asTimestamp(row[timeIdx])
			if !ok {
				continue
			}
			point := Point{Time: ts}
			if v, ok := asValue(row[i]); ok {
				scaled := tpl.scale(v)
				point.Value = &scaled
			}
			trace.Points = append(trace.Points, point)
		}
		data.Traces = append(data.Traces, trace)
		if summary, ok := summarize(tpl, trace); ok {
			data.Summary[trace.Name] = summary
		}
	}
}

func (t Template) scale(v float64) float64 {
	if t.Multiplier != 0 {
		v *= t.Multiplier
	}
	return roundTo(v, t.Decimals)
}

// summarize reduces a trace to its summary value using the template
// operation. Buckets with no data are skipped; a trace with no data at
// all has no summary.
func summarize(tpl Template, trace Trace) (float64, bool) {
	var values []float64
	for _, p := range trace.Points {
		if p.Value != nil {
			values = append(values, *p.Value)
		}
	}
	if len(values) == 0 {
		return 0, false
	}

	var out float64
	switch tpl.SummaryOperation {
	case "sum":
		for _, v := range values {
			out += v
		}
	case "last":
		out = values[len(values)-1]
	default: // mean
		for _, v := range values {
			out += v
		}
		out /= float64(len(values))
	}
	return roundTo(out, tpl.Decimals), true
}

func roundTo(v float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(v)
	}
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}

func seriesSuffix(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, tags[k])
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func asTimestamp(v any) (time.Time, bool) {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0).UTC(), true
	case int64:
		return time.Unix(n, 0).UTC(), true
	case string:
		t, err := time.Parse(time.RFC3339, n)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	}
	return time.Time{}, false
}

func asValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// escapeStringLiteral escapes single quotes for embedding in a query
// string literal.
func escapeStringLiteral(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
