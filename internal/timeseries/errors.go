package timeseries

import "errors"

// Sentinel errors for time-series operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, timeseries.ErrBackendUnavailable) {
//	    // Retryable: connection or transport failure
//	}
var (
	// ErrBackendUnavailable indicates a connection or transport failure.
	// Callers may retry the same operation; writes are idempotent.
	ErrBackendUnavailable = errors.New("timeseries: backend unavailable")

	// ErrQueryFailed indicates the backend rejected a query. This is a
	// configuration bug, not a transient condition, and is never retried.
	ErrQueryFailed = errors.New("timeseries: query failed")

	// ErrNotFound indicates a lookup matched no points.
	ErrNotFound = errors.New("timeseries: no matching points")

	// ErrInvalidPoint indicates a point failed validation before write.
	ErrInvalidPoint = errors.New("timeseries: invalid point")

	// ErrUnknownBackend indicates the configured backend name is not registered.
	ErrUnknownBackend = errors.New("timeseries: unknown backend")

	// ErrMissingConfig indicates a backend's required configuration key is unset.
	ErrMissingConfig = errors.New("timeseries: missing configuration")

	// ErrClosed indicates the client has been closed.
	ErrClosed = errors.New("timeseries: client closed")
)
