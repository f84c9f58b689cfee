package ingest

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// IperfResult is a reduced iperf3 speed-test report.
type IperfResult struct {
	Protocol string

	// TCP: end-of-test sums.
	SentBPS       float64
	SentBytes     float64
	ReceivedBPS   float64
	ReceivedBytes float64
	Retransmits   int64

	// UDP: jitter and loss.
	JitterMS     float64
	TotalPackets int64
	LostPackets  int64
	LostPercent  float64
}

// ParseIperf reduces an iperf3 --json report. A report carrying an
// "error" member (connection refused, busy server) is rejected with
// ErrMalformedReport wrapping the server's message.
func ParseIperf(report []byte) (*IperfResult, error) {
	if !gjson.ValidBytes(report) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedReport)
	}
	root := gjson.ParseBytes(report)

	if msg := root.Get("error"); msg.Exists() {
		return nil, fmt.Errorf("%w: iperf3 reported %q", ErrMalformedReport, msg.String())
	}

	protocol := root.Get("start.test_start.protocol").String()
	switch protocol {
	case "TCP":
		sent := root.Get("end.sum_sent")
		received := root.Get("end.sum_received")
		if !sent.Exists() || !received.Exists() {
			return nil, fmt.Errorf("%w: missing end sums", ErrMalformedReport)
		}
		return &IperfResult{
			Protocol:      "tcp",
			SentBPS:       sent.Get("bits_per_second").Float(),
			SentBytes:     sent.Get("bytes").Float(),
			ReceivedBPS:   received.Get("bits_per_second").Float(),
			ReceivedBytes: received.Get("bytes").Float(),
			Retransmits:   sent.Get("retransmits").Int(),
		}, nil
	case "UDP":
		sum := root.Get("end.sum")
		if !sum.Exists() {
			return nil, fmt.Errorf("%w: missing end sum", ErrMalformedReport)
		}
		return &IperfResult{
			Protocol:     "udp",
			SentBPS:      sum.Get("bits_per_second").Float(),
			SentBytes:    sum.Get("bytes").Float(),
			JitterMS:     sum.Get("jitter_ms").Float(),
			TotalPackets: sum.Get("packets").Int(),
			LostPackets:  sum.Get("lost_packets").Int(),
			LostPercent:  sum.Get("lost_percent").Float(),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown protocol %q", ErrMalformedReport, protocol)
	}
}

// Samples reduces the result for storage under the iperf3 measurement.
func (r *IperfResult) Samples() []Sample {
	if r.Protocol == "udp" {
		return []Sample{
			{Field: "sent_bps_udp", Value: r.SentBPS},
			{Field: "sent_bytes_udp", Value: r.SentBytes},
			{Field: "jitter", Value: r.JitterMS},
			{Field: "total_packets", Value: r.TotalPackets},
			{Field: "lost_packets", Value: r.LostPackets},
			{Field: "lost_percent", Value: r.LostPercent},
		}
	}
	return []Sample{
		{Field: "sent_bps_tcp", Value: r.SentBPS},
		{Field: "sent_bytes_tcp", Value: r.SentBytes},
		{Field: "received_bps_tcp", Value: r.ReceivedBPS},
		{Field: "received_bytes_tcp", Value: r.ReceivedBytes},
		{Field: "retransmits", Value: r.Retransmits},
	}
}
