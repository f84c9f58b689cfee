package timeseries

// ResultSet holds the rows returned by a raw query, grouped the way the
// backend groups them (one Series per measurement/tag-set/time-bucket
// grouping).
type ResultSet struct {
	Series []Series
}

// Series is one group of result rows: a measurement name, the tag set
// the group was keyed by, the column names, and the value rows. The
// first column is the timestamp by backend convention.
type Series struct {
	Name    string
	Tags    map[string]string
	Columns []string
	Values  [][]any
}

// Empty reports whether the result contains no rows at all. Callers
// use this to surface an explicit "no data" rather than a silent zero.
func (r *ResultSet) Empty() bool {
	if r == nil {
		return true
	}
	for _, s := range r.Series {
		if len(s.Values) > 0 {
			return false
		}
	}
	return true
}

// ColumnIndex returns the index of the named column in the series,
// or -1 if absent.
func (s *Series) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
