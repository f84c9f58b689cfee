package chart

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Template defines a named chart type: the query text per time-series
// backend plus presentation hints for post-processing.
//
// Queries contain {placeholder} tokens. Every placeholder found in the
// query text is required unless listed in Optional; optional
// placeholders render as the empty string when no value is supplied.
// Filter placeholders (end_date, organization_id, location_id,
// floorplan_id) stand for whole "AND col = 'value'" clauses built by
// the renderer, which is what lets them disappear cleanly when absent.
type Template struct {
	// Type is the registration name, matched against a metric's
	// configuration.
	Type string

	Description string
	Unit        string

	// Queries maps time-series backend name to query text.
	Queries map[string]string

	// Optional lists placeholders that may render empty.
	Optional []string

	// SummaryOperation aggregates each trace into its summary value:
	// "mean", "sum" or "last". Empty means mean.
	SummaryOperation string

	// Multiplier scales every value after the query runs. Zero means
	// no scaling.
	Multiplier float64

	// Decimals is the rounding precision for values and summaries.
	Decimals int
}

// placeholderPattern matches {name} tokens in query text.
var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// Placeholders returns the sorted set of placeholder names used by the
// template's query for the given backend.
func (t Template) Placeholders(backend string) []string {
	seen := map[string]bool{}
	for _, match := range placeholderPattern.FindAllStringSubmatch(t.Queries[backend], -1) {
		seen[match[1]] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t Template) optional(name string) bool {
	for _, o := range t.Optional {
		if o == name {
			return true
		}
	}
	return false
}

// render substitutes params into the backend query. A required
// placeholder with no value is an error; an optional one renders
// empty.
func (t Template) render(backend string, params map[string]string) (string, error) {
	query, ok := t.Queries[backend]
	if !ok {
		return "", fmt.Errorf("%w: chart type %q has no query for backend %q",
			ErrUnknownChartType, t.Type, backend)
	}

	var missing []string
	rendered := placeholderPattern.ReplaceAllStringFunc(query, func(token string) string {
		name := token[1 : len(token)-1]
		if value, ok := params[name]; ok {
			return value
		}
		if !t.optional(name) {
			missing = append(missing, name)
		}
		return ""
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingParameter, strings.Join(missing, ", "))
	}
	return rendered, nil
}

// filterClauseParams are the parameters the renderer expands into full
// "AND col = 'value'" clauses rather than bare values.
var filterClauseParams = []string{"organization_id", "location_id", "floorplan_id"}

var (
	templatesMu sync.RWMutex
	templates   = map[string]Template{}
)

// RegisterTemplate adds or replaces a chart template. Replacement is
// deliberate so deployments can override the builtin definitions.
func RegisterTemplate(t Template) {
	templatesMu.Lock()
	defer templatesMu.Unlock()
	templates[t.Type] = t
}

// GetTemplate looks up a template by chart type.
func GetTemplate(chartType string) (Template, error) {
	templatesMu.RLock()
	defer templatesMu.RUnlock()
	t, ok := templates[chartType]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrUnknownChartType, chartType)
	}
	return t, nil
}

// TemplateNames returns the registered chart types, sorted.
func TemplateNames() []string {
	templatesMu.RLock()
	defer templatesMu.RUnlock()
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultTemplate builds the generic fallback chart for metrics whose
// configuration names no registered template. The query comes in two
// parts: the object filter is only appended when the metric carries
// identifying tags.
func DefaultTemplate(withObjectFilter bool) Template {
	query := `SELECT {field_name} FROM {key} WHERE time >= '{time}'{end_date}`
	if withObjectFilter {
		query += ` AND "content_type" = '{content_type}' AND "object_id" = '{object_id}'`
	}
	return Template{
		Type:             "default",
		Description:      "{name}",
		Queries:          map[string]string{"influxdb": query},
		Optional:         []string{"end_date"},
		SummaryOperation: "mean",
		Decimals:         2,
	}
}

func init() {
	for _, t := range builtinTemplates() {
		RegisterTemplate(t)
	}
}

// builtinTemplates defines the stock chart catalogue. All queries are
// InfluxQL; the filter placeholders follow the conventions documented
// on Template.
func builtinTemplates() []Template {
	const objectFilter = ` AND "content_type" = '{content_type}' AND "object_id" = '{object_id}'`

	return []Template{
		{
			Type:        "uptime",
			Description: "Uptime",
			Unit:        "%",
			Queries: map[string]string{
				"influxdb": `SELECT MEAN({field_name})*100 AS uptime FROM {key}` +
					` WHERE time >= '{time}'{end_date}` + objectFilter +
					` GROUP BY time({interval})`,
			},
			Optional:         []string{"end_date"},
			SummaryOperation: "mean",
			Decimals:         1,
		},
		{
			Type:        "packet_loss",
			Description: "Packet loss",
			Unit:        "%",
			Queries: map[string]string{
				"influxdb": `SELECT MEAN({field_name}) AS packet_loss FROM {key}` +
					` WHERE time >= '{time}'{end_date}` + objectFilter +
					` GROUP BY time({interval})`,
			},
			Optional:         []string{"end_date"},
			SummaryOperation: "mean",
			Decimals:         1,
		},
		{
			Type:        "rtt",
			Description: "Round trip time",
			Unit:        "ms",
			Queries: map[string]string{
				"influxdb": `SELECT MEAN(rtt_avg) AS RTT_average, MEAN(rtt_max) AS RTT_max,` +
					` MEAN(rtt_min) AS RTT_min FROM {key}` +
					` WHERE time >= '{time}'{end_date}` + objectFilter +
					` GROUP BY time({interval})`,
			},
			Optional:         []string{"end_date"},
			SummaryOperation: "mean",
			Decimals:         2,
		},
		{
			Type:        "traffic",
			Description: "Traffic",
			Unit:        "GB",
			Queries: map[string]string{
				"influxdb": `SELECT SUM(tx_bytes) / 1000000000 AS upload,` +
					` SUM(rx_bytes) / 1000000000 AS download FROM {key}` +
					` WHERE time >= '{time}'{end_date}` + objectFilter +
					` AND "ifname" = '{ifname}'` +
					` GROUP BY time({interval})`,
			},
			Optional:         []string{"end_date"},
			SummaryOperation: "sum",
			Decimals:         2,
		},
		{
			Type:        "wifi_clients",
			Description: "WiFi clients",
			Queries: map[string]string{
				"influxdb": `SELECT COUNT(DISTINCT({field_name})) AS wifi_clients FROM {key}` +
					` WHERE time >= '{time}'{end_date}` + objectFilter +
					` AND "ifname" = '{ifname}'` +
					` GROUP BY time({interval})`,
			},
			Optional:         []string{"end_date"},
			SummaryOperation: "last",
		},
		{
			Type:        "general_wifi_clients",
			Description: "General WiFi clients",
			Queries: map[string]string{
				"influxdb": `SELECT COUNT(DISTINCT({field_name})) AS wifi_clients FROM {key}` +
					` WHERE time >= '{time}'{end_date}` +
					`{organization_id}{location_id}{floorplan_id}` +
					` GROUP BY time({interval})`,
			},
			Optional: []string{
				"end_date", "organization_id", "location_id", "floorplan_id",
			},
			SummaryOperation: "last",
		},
		{
			Type:        "memory",
			Description: "Memory usage",
			Unit:        "%",
			Queries: map[string]string{
				"influxdb": `SELECT MEAN(percent_used) AS memory_usage FROM {key}` +
					` WHERE time >= '{time}'{end_date}` + objectFilter +
					` GROUP BY time({interval})`,
			},
			Optional:         []string{"end_date"},
			SummaryOperation: "mean",
			Decimals:         1,
		},
		{
			Type:        "cpu",
			Description: "CPU load",
			Unit:        "%",
			Queries: map[string]string{
				"influxdb": `SELECT MEAN(cpu_usage) AS CPU_load FROM {key}` +
					` WHERE time >= '{time}'{end_date}` + objectFilter +
					` GROUP BY time({interval})`,
			},
			Optional:         []string{"end_date"},
			SummaryOperation: "mean",
			Decimals:         1,
		},
		{
			Type:        "disk",
			Description: "Disk usage",
			Unit:        "%",
			Queries: map[string]string{
				"influxdb": `SELECT MEAN(used_disk) AS disk_usage FROM {key}` +
					` WHERE time >= '{time}'{end_date}` + objectFilter +
					` GROUP BY time({interval})`,
			},
			Optional:         []string{"end_date"},
			SummaryOperation: "mean",
			Decimals:         1,
		},
	}
}
