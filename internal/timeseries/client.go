package timeseries

import (
	"context"
)

// WriteOptions carries per-write settings.
type WriteOptions struct {
	// RetentionPolicy selects a retention policy for the write.
	// Empty uses the backend's default.
	RetentionPolicy string
}

// Client abstracts write and read access to the underlying time-series
// store. Implementations are provided per backend (see the influx
// subpackage) and resolved by name through the Registry.
//
// All methods must be safe for concurrent use. Writes are idempotent:
// a retried write with identical (timestamp, tags, fields) leaves the
// stored series with exactly one point at that timestamp.
type Client interface {
	// Write persists a single point. The write is synchronous so the
	// caller can retry on ErrBackendUnavailable without risking
	// duplicates (identical timestamp+tags upserts).
	Write(ctx context.Context, p Point, opts *WriteOptions) error

	// Query executes a backend-native query string (already rendered
	// by the chart renderer) and returns the grouped result rows.
	// Malformed queries return ErrQueryFailed and must not be retried.
	Query(ctx context.Context, q string) (*ResultSet, error)

	// QueryLatest returns the most recent points for a measurement
	// scoped by tag equality, newest first. Returns ErrNotFound when
	// the series is empty.
	QueryLatest(ctx context.Context, measurement string, tags map[string]string, limit int) ([]Point, error)

	// HealthCheck verifies the backend connection is alive.
	HealthCheck(ctx context.Context) error

	// Close releases the connection. Safe to call more than once.
	Close() error
}
