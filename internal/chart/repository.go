package chart

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chart is a persisted chart attached to a metric. Configuration names
// the template that renders it; Description and Unit, when set,
// override the template's own.
type Chart struct {
	ID            string    `json:"id"`
	MetricID      string    `json:"metric_id"`
	Configuration string    `json:"configuration"`
	Description   string    `json:"description,omitempty"`
	Unit          string    `json:"unit,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Repository persists chart definitions.
type Repository interface {
	// Create stores a chart. The configuration must name a registered
	// template.
	Create(ctx context.Context, c *Chart) error

	// GetByID fetches a chart by primary key.
	GetByID(ctx context.Context, id string) (*Chart, error)

	// ListByMetric returns a metric's charts in creation order.
	ListByMetric(ctx context.Context, metricID string) ([]*Chart, error)

	// Delete removes a chart.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on a SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open database
// handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, c *Chart) error {
	if _, err := GetTemplate(c.Configuration); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO charts (id, metric_id, configuration, description, unit,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.MetricID, c.Configuration, c.Description, c.Unit,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert chart: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Chart, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, metric_id, configuration, description, unit,
			created_at, updated_at
		FROM charts
		WHERE id = ?`, id)
	c, err := scanChart(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

func (r *SQLiteRepository) ListByMetric(ctx context.Context, metricID string) ([]*Chart, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, metric_id, configuration, description, unit,
			created_at, updated_at
		FROM charts
		WHERE metric_id = ?
		ORDER BY created_at, id`, metricID)
	if err != nil {
		return nil, fmt.Errorf("list charts: %w", err)
	}
	defer rows.Close()

	var charts []*Chart
	for rows.Next() {
		c, err := scanChart(rows)
		if err != nil {
			return nil, err
		}
		charts = append(charts, c)
	}
	return charts, rows.Err()
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM charts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chart: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChart(row rowScanner) (*Chart, error) {
	var (
		c                    Chart
		createdAt, updatedAt string
	)
	err := row.Scan(&c.ID, &c.MetricID, &c.Configuration, &c.Description,
		&c.Unit, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan chart: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &c, nil
}
