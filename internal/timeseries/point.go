package timeseries

import (
	"fmt"
	"sort"
	"time"
)

// Point is a single timestamped observation destined for the
// time-series backend.
//
// Within one measurement the (Time, Tags) pair identifies a point:
// writing the same pair twice is an upsert, never a duplicate. Tags are
// low-cardinality identifying labels (object id, interface name);
// Fields carry the observed values.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Time        time.Time
}

// Validate checks the point is writable: non-empty measurement, at
// least one field, non-empty tag keys and values, and field values of
// a supported type (numeric, string or bool).
//
// Validation happens before the point reaches the backend so malformed
// tags are caught at write time rather than corrupting the series.
func (p Point) Validate() error {
	if p.Measurement == "" {
		return fmt.Errorf("%w: measurement is required", ErrInvalidPoint)
	}
	if len(p.Fields) == 0 {
		return fmt.Errorf("%w: at least one field is required", ErrInvalidPoint)
	}

	for k, v := range p.Tags {
		if k == "" {
			return fmt.Errorf("%w: empty tag key", ErrInvalidPoint)
		}
		if v == "" {
			return fmt.Errorf("%w: tag %q has empty value", ErrInvalidPoint, k)
		}
	}

	for k, v := range p.Fields {
		if k == "" {
			return fmt.Errorf("%w: empty field key", ErrInvalidPoint)
		}
		switch v.(type) {
		case float64, float32, int, int32, int64, uint, uint32, uint64, string, bool:
		default:
			return fmt.Errorf("%w: field %q has unsupported type %T", ErrInvalidPoint, k, v)
		}
	}

	return nil
}

// MergeTags combines two tag sets into a new map. Keys in extra
// override keys in main. Nil inputs are treated as empty.
func MergeTags(main, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(main)+len(extra))
	for k, v := range main {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// CanonicalTags renders a tag set as a deterministic
// "k1=v1,k2=v2" string with keys sorted. Used for per-metric lock
// keying and stable log output.
func CanonicalTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += k + "=" + tags[k]
	}
	return out
}
