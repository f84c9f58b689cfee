// Package influx provides the built-in InfluxDB backend for the
// timeseries package.
//
// It wraps the official influxdb-client-go v2 library for point writes
// (blocking write API, username:password token for 1.8 compatibility)
// and executes InfluxQL reads through the 1.x /query HTTP endpoint,
// since the v2 Go client only speaks Flux and the chart templates are
// InfluxQL.
//
// # Registration
//
// Importing this package registers the backend under the name
// "influxdb":
//
//	import _ "github.com/netpulse-io/netpulse-core/internal/timeseries/influx"
//
//	client, err := timeseries.Open(cfg.Timeseries)
//
// # Idempotence
//
// InfluxDB overwrites a point that shares measurement, tag set and
// timestamp with an existing one. Writes here are synchronous, so a
// caller that retries after ErrBackendUnavailable cannot produce
// duplicate points.
//
// # Error Handling
//
// Transport failures map to timeseries.ErrBackendUnavailable; HTTP 4xx
// responses on /query map to timeseries.ErrQueryFailed and indicate a
// template or configuration bug.
package influx
