package metric

import (
	"context"
	"time"
)

// Event describes a tolerant health transition. Events are the
// integration point for alerting: exactly one problem event fires per
// breach streak and exactly one recovery event per clear.
type Event struct {
	Type       EventType         `json:"type"`
	MetricID   string            `json:"metric_id"`
	MetricName string            `json:"metric_name"`
	Key        string            `json:"key"`
	FieldName  string            `json:"field_name"`
	Tags       map[string]string `json:"tags,omitempty"`
	Severity   string            `json:"severity"`
	Value      float64           `json:"value"`
	Threshold  ThresholdSnapshot `json:"threshold"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Notifier receives health transition events. Implementations own
// delivery; the engine logs and discards their errors so a broken
// alert channel never blocks metric writes.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, ev Event) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }
