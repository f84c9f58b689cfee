package ingest

import (
	"errors"
	"fmt"
)

// ErrMalformedReport indicates a collector report that cannot be
// reduced to samples.
var ErrMalformedReport = errors.New("malformed collector report")

// Sample is one reduced observation: the field it belongs to and its
// value. The caller resolves the owning metric and hands the sample to
// the engine.
type Sample struct {
	Field string
	Value any
}

// PingResult is the outcome of one ping check against a monitored
// object. RTT values are milliseconds and only meaningful when the
// target was reachable.
type PingResult struct {
	Reachable bool
	Loss      float64
	RTTMin    float64
	RTTAvg    float64
	RTTMax    float64
}

// Validate checks the result is internally consistent.
func (r PingResult) Validate() error {
	if r.Loss < 0 || r.Loss > 100 {
		return fmt.Errorf("%w: loss %.2f out of range", ErrMalformedReport, r.Loss)
	}
	if r.RTTMin < 0 || r.RTTAvg < 0 || r.RTTMax < 0 {
		return fmt.Errorf("%w: negative rtt", ErrMalformedReport)
	}
	if r.Reachable && r.RTTMin > r.RTTMax {
		return fmt.Errorf("%w: rtt_min %.2f exceeds rtt_max %.2f",
			ErrMalformedReport, r.RTTMin, r.RTTMax)
	}
	return nil
}

// Samples reduces the result for storage. Reachability is stored as
// 1/0 so uptime charts can average it; RTT fields are omitted for an
// unreachable target rather than written as zeros.
func (r PingResult) Samples() ([]Sample, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	reachable := 0
	if r.Reachable {
		reachable = 1
	}
	samples := []Sample{
		{Field: "reachable", Value: reachable},
		{Field: "loss", Value: r.Loss},
	}
	if r.Reachable {
		samples = append(samples,
			Sample{Field: "rtt_min", Value: r.RTTMin},
			Sample{Field: "rtt_avg", Value: r.RTTAvg},
			Sample{Field: "rtt_max", Value: r.RTTMax},
		)
	}
	return samples, nil
}
