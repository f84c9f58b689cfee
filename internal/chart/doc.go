// Package chart renders time-series data into chart-ready form.
//
// A chart type is a registered Template: backend query text with
// {placeholder} tokens plus presentation hints. The Renderer fills the
// placeholders from a metric's identity and the caller's time range,
// runs the query and post-processes the raw series into named traces
// with scaled, rounded values and per-trace summaries.
//
// Metrics whose configuration names no registered template fall back
// to a generic single-field chart.
package chart
