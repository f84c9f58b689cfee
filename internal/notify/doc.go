// Package notify delivers health transition events over MQTT.
//
// The Client wraps paho.mqtt.golang with connection management, publish
// timeouts, automatic reconnection and a Last Will on the service
// status topic. The Dispatcher implements metric.Notifier on top of it,
// publishing each problem/recovery event as JSON to
// netpulse/alert/{severity}/{metric_key}.
//
// Delivery is best-effort from the engine's point of view: the write
// path logs dispatcher errors and carries on.
package notify
