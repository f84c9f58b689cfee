package metric

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/netpulse-io/netpulse-core/internal/timeseries"
)

// Logger abstracts structured logging for the engine, so the package
// does not depend on a concrete logging implementation.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sample is one observation handed to the engine for a metric.
type Sample struct {
	// Value is the field value. Numeric values are evaluated against
	// thresholds; other types are stored but skip evaluation.
	Value any

	// Time is the observation timestamp. Zero means now.
	Time time.Time

	// ExtraTags are merged over the metric's own extra tags for this
	// write only.
	ExtraTags map[string]string

	// RetentionPolicy overrides the backend's default retention
	// policy for this write.
	RetentionPolicy string
}

// Engine coordinates metric writes: it stores the sample in the
// time-series backend, evaluates thresholds, persists the resulting
// health state and emits transition events.
//
// Thread Safety: Engine is safe for concurrent use. Health evaluation
// is serialised per metric, so two writers for the same metric cannot
// interleave evaluate/persist and double-fire an event.
type Engine struct {
	repo     Repository
	ts       timeseries.Client
	notifier Notifier
	logger   Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates an engine. A nil logger disables engine logging.
func NewEngine(repo Repository, ts timeseries.Client, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		repo:   repo,
		ts:     ts,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// SetNotifier installs the event sink. Must be called before writes
// begin; events raised while no notifier is set are logged and
// dropped.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// GetOrCreate resolves a metric by identity, creating it on first
// observation.
func (e *Engine) GetOrCreate(ctx context.Context, id Identity) (*Metric, error) {
	m, created, err := e.repo.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	if created {
		e.logger.Info("metric created",
			"metric_id", m.ID, "key", m.Key, "field", m.FieldName)
	}
	return m, nil
}

// Write stores a sample and runs threshold evaluation.
//
// The time-series write happens first; if it fails the error is
// returned and no evaluation takes place, so health state only ever
// reflects stored points. Evaluation failures after a successful write
// are returned too, but the point is already durable, and the write is
// idempotent: retrying with the same timestamp overwrites rather than
// duplicates.
func (e *Engine) Write(ctx context.Context, m *Metric, s Sample) error {
	if m == nil {
		return fmt.Errorf("%w: nil metric", ErrInvalidValue)
	}
	at := s.Time
	if at.IsZero() {
		at = time.Now().UTC()
	}

	point := timeseries.Point{
		Measurement: m.Key,
		Tags:        timeseries.MergeTags(timeseries.MergeTags(m.MainTags, m.ExtraTags), s.ExtraTags),
		Fields:      map[string]any{m.FieldName: s.Value},
		Time:        at,
	}
	var opts *timeseries.WriteOptions
	if s.RetentionPolicy != "" {
		opts = &timeseries.WriteOptions{RetentionPolicy: s.RetentionPolicy}
	}
	if err := e.ts.Write(ctx, point, opts); err != nil {
		return fmt.Errorf("write %s.%s: %w", m.Key, m.FieldName, err)
	}

	return e.evaluate(ctx, m, s.Value, at)
}

// evaluate runs the health state machine for one stored sample,
// serialised per metric.
func (e *Engine) evaluate(ctx context.Context, m *Metric, value any, at time.Time) error {
	thresholds, err := e.repo.Thresholds(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("load thresholds: %w", err)
	}
	if len(thresholds) == 0 {
		e.logger.Debug("threshold evaluation skipped, no thresholds configured",
			"metric_id", m.ID, "key", m.Key, "field", m.FieldName)
		return nil
	}

	v, ok := asFloat(value)
	if !ok {
		e.logger.Warn("threshold evaluation skipped for non-numeric value",
			"metric_id", m.ID, "key", m.Key, "field", m.FieldName)
		return nil
	}

	lock := e.metricLock(m.ID)
	lock.Lock()
	defer lock.Unlock()

	// Reload the persisted state under the lock: concurrent writers
	// hold separate copies of the metric, and the transition must see
	// the state left by the previous evaluation.
	stored, err := e.repo.GetByID(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("load health state: %w", err)
	}

	// Thresholds arrive ranked most urgent first, so the first
	// crossed one carries the highest severity and drives the
	// transition; with nothing crossed the most urgent threshold
	// supplies the event snapshot for a potential recovery.
	breach := false
	active := thresholds[0]
	for _, t := range thresholds {
		if t.IsCrossedBy(v) {
			breach = true
			active = t
			break
		}
	}

	next, evType := Transition(stored.State(), breach, at, active.Tolerance)
	if err := e.repo.UpdateHealth(ctx, m.ID, next); err != nil {
		return fmt.Errorf("persist health: %w", err)
	}
	m.applyState(next)

	if evType != nil {
		e.emit(ctx, Event{
			Type:       *evType,
			MetricID:   m.ID,
			MetricName: m.Name,
			Key:        m.Key,
			FieldName:  m.FieldName,
			Tags:       m.MainTags,
			Severity:   active.Severity,
			Value:      v,
			Threshold:  active.Snapshot(),
			Timestamp:  at,
		})
	}
	return nil
}

// emit hands an event to the notifier. Delivery problems are logged,
// never propagated: a broken alert channel must not fail writes.
func (e *Engine) emit(ctx context.Context, ev Event) {
	e.logger.Info("health transition",
		"type", string(ev.Type), "metric_id", ev.MetricID,
		"key", ev.Key, "field", ev.FieldName, "severity", ev.Severity)
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, ev); err != nil {
		e.logger.Error("event delivery failed",
			"type", string(ev.Type), "metric_id", ev.MetricID, "error", err)
	}
}

// Latest returns the most recent stored points for a metric, newest
// first.
func (e *Engine) Latest(ctx context.Context, m *Metric, limit int) ([]timeseries.Point, error) {
	return e.ts.QueryLatest(ctx, m.Key, m.MainTags, limit)
}

// metricLock returns the serialisation mutex for one metric. Entries
// are never evicted: the map is bounded by the number of distinct
// metrics the process has evaluated, which is configuration-bounded
// cardinality and a single mutex per entry.
func (e *Engine) metricLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	return lock
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
