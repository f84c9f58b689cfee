package metric

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"
)

// Metric represents one observed quantity for one monitored object.
//
// The triple (Key, FieldName, MainTags) uniquely identifies the
// metric's time-series identity: Key is the backend measurement name,
// FieldName the value column within it, and MainTags the identifying
// labels of the monitored object. ExtraTags carry supplementary
// dimensions such as an interface name and do not participate in
// identity.
//
// Health fields are exclusively owned by the engine: IsHealthy tracks
// the immediate state of the last evaluated point, IsHealthyTolerant
// the debounced state used for alerting. Both are nil until the first
// threshold evaluation.
type Metric struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Key       string            `json:"key"`
	FieldName string            `json:"field_name"`
	MainTags  map[string]string `json:"main_tags"`
	ExtraTags map[string]string `json:"extra_tags,omitempty"`

	// Configuration selects the chart/threshold template that applies
	// (e.g. "ping", "traffic", "memory"). Empty means no template.
	Configuration string `json:"configuration,omitempty"`

	IsHealthy         *bool      `json:"is_healthy,omitempty"`
	IsHealthyTolerant *bool      `json:"is_healthy_tolerant,omitempty"`
	FirstBreachAt     *time.Time `json:"first_breach_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity is the creation key for a metric. Creation guarantees
// uniqueness on (Key, FieldName, MainTags): concurrent creators
// converge to exactly one record.
type Identity struct {
	Name          string
	Key           string
	FieldName     string
	MainTags      map[string]string
	Configuration string
}

// keyPattern restricts measurement keys and field names to identifier
// characters so they can be interpolated into backend queries safely.
var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Validate checks the identity is well formed.
func (id Identity) Validate() error {
	if id.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidIdentity)
	}
	if !keyPattern.MatchString(id.Key) {
		return fmt.Errorf("%w: key %q must match %s", ErrInvalidIdentity, id.Key, keyPattern)
	}
	if !keyPattern.MatchString(id.FieldName) {
		return fmt.Errorf("%w: field_name %q must match %s", ErrInvalidIdentity, id.FieldName, keyPattern)
	}
	for k, v := range id.MainTags {
		if k == "" || v == "" {
			return fmt.Errorf("%w: main_tags must have non-empty keys and values", ErrInvalidIdentity)
		}
	}
	return nil
}

// canonicalTagsJSON renders a tag map as deterministic JSON.
// encoding/json sorts map keys, which gives the unique index on
// (key, field_name, main_tags) its atomic get-or-create guarantee.
func canonicalTagsJSON(tags map[string]string) string {
	if tags == nil {
		tags = map[string]string{}
	}
	data, _ := json.Marshal(tags)
	return string(data)
}

// State returns the metric's current health state for transition
// evaluation.
func (m *Metric) State() State {
	return State{
		Healthy:         m.IsHealthy,
		HealthyTolerant: m.IsHealthyTolerant,
		FirstBreachAt:   m.FirstBreachAt,
	}
}

// applyState writes a transition result back onto the metric.
func (m *Metric) applyState(s State) {
	m.IsHealthy = s.Healthy
	m.IsHealthyTolerant = s.HealthyTolerant
	m.FirstBreachAt = s.FirstBreachAt
}

// Operator is a threshold comparison operator.
type Operator string

// Threshold comparison operators.
const (
	OperatorLessThan    Operator = "<"
	OperatorGreaterThan Operator = ">"
	OperatorEqual       Operator = "="
)

// Valid reports whether the operator is one of the recognised forms.
func (o Operator) Valid() bool {
	switch o {
	case OperatorLessThan, OperatorGreaterThan, OperatorEqual:
		return true
	}
	return false
}

// Threshold is an alerting policy attached to a metric. At most one
// threshold exists per (metric, severity); severities carry distinct
// tolerances.
//
// Tolerance is a wall-clock duration: the length of an unbroken breach
// streak that is forgiven before the tolerant state flips. Zero means
// the tolerant state tracks the immediate state exactly.
type Threshold struct {
	ID        string        `json:"id"`
	MetricID  string        `json:"metric_id"`
	Severity  string        `json:"severity"`
	Operator  Operator      `json:"operator"`
	Value     float64       `json:"value"`
	Tolerance time.Duration `json:"tolerance"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// severityRank orders the well-known severities most urgent first.
// Severity is free text, so unknown values rank after the known set
// and sort alphabetically among themselves.
var severityRank = map[string]int{
	"critical": 0,
	"error":    1,
	"warning":  2,
	"info":     3,
}

func severityOrder(severity string) int {
	if r, ok := severityRank[severity]; ok {
		return r
	}
	return len(severityRank)
}

// sortBySeverity orders thresholds most urgent first, so evaluation
// lets the highest severity among crossed thresholds drive the
// transition.
func sortBySeverity(thresholds []Threshold) {
	sort.SliceStable(thresholds, func(i, j int) bool {
		ri, rj := severityOrder(thresholds[i].Severity), severityOrder(thresholds[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return thresholds[i].Severity < thresholds[j].Severity
	})
}

// Validate checks the threshold configuration.
func (t Threshold) Validate() error {
	if t.MetricID == "" {
		return fmt.Errorf("%w: metric_id is required", ErrInvalidThreshold)
	}
	if !t.Operator.Valid() {
		return fmt.Errorf("%w: operator %q (want <, > or =)", ErrInvalidThreshold, t.Operator)
	}
	if t.Severity == "" {
		return fmt.Errorf("%w: severity is required", ErrInvalidThreshold)
	}
	if t.Tolerance < 0 {
		return fmt.Errorf("%w: tolerance must not be negative", ErrInvalidThreshold)
	}
	return nil
}

// IsCrossedBy reports whether a value breaches the threshold.
func (t Threshold) IsCrossedBy(value float64) bool {
	switch t.Operator {
	case OperatorLessThan:
		return value < t.Value
	case OperatorGreaterThan:
		return value > t.Value
	case OperatorEqual:
		return value == t.Value
	}
	return false
}

// Snapshot captures the threshold configuration at evaluation time for
// inclusion in an event payload.
func (t Threshold) Snapshot() ThresholdSnapshot {
	return ThresholdSnapshot{
		Severity:         t.Severity,
		Operator:         t.Operator,
		Value:            t.Value,
		ToleranceSeconds: int(t.Tolerance / time.Second),
	}
}

// ThresholdSnapshot is the immutable threshold view carried by events.
type ThresholdSnapshot struct {
	Severity         string   `json:"severity"`
	Operator         Operator `json:"operator"`
	Value            float64  `json:"value"`
	ToleranceSeconds int      `json:"tolerance_seconds"`
}
