// Package timeseries abstracts the time-series store used by netpulse core.
//
// It defines the Point and ResultSet types, the Client interface for
// writes and reads, and a registry that resolves a logical backend name
// from configuration to a concrete implementation.
//
// # Purpose
//
// The metric engine is backend-agnostic: it writes tagged points,
// executes rendered query strings, and fetches most-recent points. The
// influx subpackage provides the built-in InfluxDB implementation;
// deployments can register custom backends via Register.
//
// # Usage
//
//	import _ "github.com/netpulse-io/netpulse-core/internal/timeseries/influx"
//
//	client, err := timeseries.Open(cfg.Timeseries)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Write(ctx, timeseries.Point{
//	    Measurement: "ping",
//	    Tags:        map[string]string{"object_id": "dev-01"},
//	    Fields:      map[string]any{"reachable": 1},
//	    Time:        time.Now(),
//	}, nil)
//
// # Idempotence
//
// Writes are upserts keyed by (timestamp, tag set): retrying a failed
// write with identical arguments never produces duplicate points. This
// is the property the engine's retry contract rests on.
//
// # Error Handling
//
// Transport failures surface as ErrBackendUnavailable and are safe to
// retry. Query errors are fatal for that call and indicate a
// configuration bug. Lookups with no matching points return ErrNotFound.
package timeseries
