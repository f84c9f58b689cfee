package chart

import "errors"

// Sentinel errors returned by the chart package.
var (
	// ErrUnknownChartType indicates a chart configuration name with
	// no registered template.
	ErrUnknownChartType = errors.New("unknown chart type")

	// ErrMissingParameter indicates a required query placeholder with
	// no value.
	ErrMissingParameter = errors.New("missing chart query parameter")

	// ErrNotFound indicates the requested chart does not exist.
	ErrNotFound = errors.New("chart not found")
)
