// Package metric implements the monitoring core: metric identity and
// lifecycle, threshold evaluation and the debounced health state
// machine.
//
// A metric is identified by its measurement key, field name and main
// tags; creation is atomic under concurrent first observation. Every
// write flows through the Engine, which stores the sample in the
// time-series backend, evaluates the metric's thresholds and emits a
// single problem event per breach streak and a single recovery event
// per clear.
//
// Two health states are tracked. The immediate state mirrors the most
// recent point. The tolerant state debounces flapping: it only flips
// to unhealthy after the breach streak has lasted at least the
// threshold's tolerance, and events fire on tolerant transitions only.
package metric
