package metric

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists metric identity, health state and threshold
// configuration. The engine owns the health columns; threshold rows are
// configuration written by operators and read by the engine.
type Repository interface {
	// GetOrCreate returns the metric matching the identity, creating
	// it atomically if absent. The boolean reports whether a new
	// record was created. Concurrent callers with the same identity
	// all receive the same record.
	GetOrCreate(ctx context.Context, id Identity) (*Metric, bool, error)

	// GetByID fetches a metric by primary key.
	GetByID(ctx context.Context, id string) (*Metric, error)

	// List returns all metrics ordered by name.
	List(ctx context.Context) ([]*Metric, error)

	// Delete removes a metric and, via cascade, its thresholds and
	// chart rows. Time-series data is untouched.
	Delete(ctx context.Context, id string) error

	// UpdateHealth persists a health transition result.
	UpdateHealth(ctx context.Context, id string, s State) error

	// Thresholds returns a metric's thresholds ordered most urgent
	// severity first.
	Thresholds(ctx context.Context, metricID string) ([]Threshold, error)

	// SaveThreshold creates or replaces the threshold for the
	// metric/severity pair.
	SaveThreshold(ctx context.Context, t *Threshold) error

	// DeleteThreshold removes a threshold by primary key.
	DeleteThreshold(ctx context.Context, id string) error

	// Count returns the number of metrics.
	Count(ctx context.Context) (int, error)
}

// SQLiteRepository implements Repository on a SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open database
// handle. The schema must already be migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const metricColumns = `id, name, key, field_name, main_tags, extra_tags,
	configuration, is_healthy, is_healthy_tolerant, first_breach_at,
	created_at, updated_at`

// GetOrCreate inserts with ON CONFLICT DO NOTHING against the unique
// identity index, then reads the surviving row. main_tags is stored as
// canonical JSON so equal tag maps always collide on the index.
func (r *SQLiteRepository) GetOrCreate(ctx context.Context, id Identity) (*Metric, bool, error) {
	if err := id.Validate(); err != nil {
		return nil, false, err
	}

	mainTags := canonicalTagsJSON(id.MainTags)
	now := time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO metrics (id, name, key, field_name, main_tags, extra_tags,
			configuration, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '{}', ?, ?, ?)
		ON CONFLICT (key, field_name, main_tags) DO NOTHING`,
		uuid.NewString(), id.Name, id.Key, id.FieldName, mainTags,
		nullString(id.Configuration), formatTime(now), formatTime(now))
	if err != nil {
		return nil, false, fmt.Errorf("insert metric: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert metric: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+metricColumns+`
		FROM metrics
		WHERE key = ? AND field_name = ? AND main_tags = ?`,
		id.Key, id.FieldName, mainTags)
	m, err := scanMetric(row)
	if err != nil {
		return nil, false, err
	}
	return m, affected == 1, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Metric, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+metricColumns+`
		FROM metrics
		WHERE id = ?`, id)
	return scanMetric(row)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*Metric, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+metricColumns+`
		FROM metrics
		ORDER BY name, key, field_name`)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM metrics WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete metric: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) UpdateHealth(ctx context.Context, id string, s State) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE metrics
		SET is_healthy = ?, is_healthy_tolerant = ?, first_breach_at = ?,
			updated_at = ?
		WHERE id = ?`,
		nullBool(s.Healthy), nullBool(s.HealthyTolerant),
		nullTime(s.FirstBreachAt), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("update health: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Thresholds(ctx context.Context, metricID string) ([]Threshold, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, metric_id, severity, operator, value, tolerance_seconds,
			created_at, updated_at
		FROM thresholds
		WHERE metric_id = ?`, metricID)
	if err != nil {
		return nil, fmt.Errorf("list thresholds: %w", err)
	}
	defer rows.Close()

	var thresholds []Threshold
	for rows.Next() {
		var (
			t                    Threshold
			tolerance            int64
			createdAt, updatedAt string
		)
		if err := rows.Scan(&t.ID, &t.MetricID, &t.Severity, &t.Operator,
			&t.Value, &tolerance, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan threshold: %w", err)
		}
		t.Tolerance = time.Duration(tolerance) * time.Second
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		thresholds = append(thresholds, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Severity order is a ranking, not the column's collation order.
	sortBySeverity(thresholds)
	return thresholds, nil
}

func (r *SQLiteRepository) SaveThreshold(ctx context.Context, t *Threshold) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO thresholds (id, metric_id, severity, operator, value,
			tolerance_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (metric_id, severity) DO UPDATE SET
			operator = excluded.operator,
			value = excluded.value,
			tolerance_seconds = excluded.tolerance_seconds,
			updated_at = excluded.updated_at`,
		t.ID, t.MetricID, t.Severity, string(t.Operator), t.Value,
		int64(t.Tolerance/time.Second), formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("save threshold: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteThreshold(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM thresholds WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete threshold: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metrics`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count metrics: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMetric(row rowScanner) (*Metric, error) {
	var (
		m                    Metric
		mainTags, extraTags  string
		configuration        sql.NullString
		healthy, tolerant    sql.NullBool
		firstBreachAt        sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&m.ID, &m.Name, &m.Key, &m.FieldName, &mainTags,
		&extraTags, &configuration, &healthy, &tolerant, &firstBreachAt,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan metric: %w", err)
	}

	if err := json.Unmarshal([]byte(mainTags), &m.MainTags); err != nil {
		return nil, fmt.Errorf("decode main_tags: %w", err)
	}
	if err := json.Unmarshal([]byte(extraTags), &m.ExtraTags); err != nil {
		return nil, fmt.Errorf("decode extra_tags: %w", err)
	}
	m.Configuration = configuration.String
	if healthy.Valid {
		m.IsHealthy = boolPtr(healthy.Bool)
	}
	if tolerant.Valid {
		m.IsHealthyTolerant = boolPtr(tolerant.Bool)
	}
	if firstBreachAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, firstBreachAt.String); err == nil {
			m.FirstBreachAt = &t
		}
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &m, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(t.UTC())
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
