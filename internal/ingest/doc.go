// Package ingest reduces raw collector reports to the field/value
// samples the metric engine stores. Each reducer validates its input
// fully before emitting anything, so a malformed report never results
// in a partial write.
package ingest
