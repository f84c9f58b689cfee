package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/netpulse-io/netpulse-core/internal/metric"
)

// publisher is the broker surface the dispatcher needs; satisfied by
// *Client and by fakes in tests.
type publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Dispatcher publishes health transition events to per-severity alert
// topics. It implements metric.Notifier; the engine handles (logs) any
// error it returns, so slow or broken delivery never blocks writes.
type Dispatcher struct {
	client publisher
	qos    byte
}

// NewDispatcher creates a dispatcher publishing through the given
// client at the given QoS.
func NewDispatcher(client *Client, qos byte) *Dispatcher {
	return &Dispatcher{client: client, qos: qos}
}

// Notify publishes the event as JSON to its alert topic.
func (d *Dispatcher) Notify(_ context.Context, ev metric.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	topic := Topics{}.Alert(ev.Severity, ev.Key)
	return d.client.Publish(topic, payload, d.qos, false)
}
