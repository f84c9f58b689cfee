package metric

import "errors"

// Sentinel errors returned by the metric package. Callers match these
// with errors.Is.
var (
	// ErrNotFound indicates the requested metric does not exist.
	ErrNotFound = errors.New("metric not found")

	// ErrInvalidIdentity indicates a malformed metric identity.
	ErrInvalidIdentity = errors.New("invalid metric identity")

	// ErrInvalidThreshold indicates a malformed threshold definition.
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrInvalidValue indicates a sample value that cannot be written
	// or evaluated.
	ErrInvalidValue = errors.New("invalid metric value")
)
