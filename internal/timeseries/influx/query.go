package influx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/netpulse-io/netpulse-core/internal/timeseries"
)

// maxResponseSize caps query response bodies to guard against
// accidentally unbounded result sets.
const maxResponseSize = 10 << 20 // 10 MB

// queryResponse mirrors the InfluxQL JSON response shape.
type queryResponse struct {
	Results []queryResult `json:"results"`
	Error   string        `json:"error"`
}

type queryResult struct {
	Series []querySeries `json:"series"`
	Error  string        `json:"error"`
}

type querySeries struct {
	Name    string            `json:"name"`
	Tags    map[string]string `json:"tags"`
	Columns []string          `json:"columns"`
	Values  [][]any           `json:"values"`
}

// Query executes a raw InfluxQL query string against the configured
// database and returns the grouped result rows.
//
// Timestamps come back as epoch seconds (epoch=s) so the renderer can
// bucket them without parsing RFC3339 strings.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - q: InfluxQL query string (already rendered)
//
// Returns:
//   - *timeseries.ResultSet: Grouped rows, possibly empty
//   - error: ErrQueryFailed for malformed queries (not retryable),
//     ErrBackendUnavailable for transport failures (retryable)
func (c *Client) Query(ctx context.Context, q string) (*timeseries.ResultSet, error) {
	if c.isClosed() {
		return nil, timeseries.ErrClosed
	}
	if strings.TrimSpace(q) == "" {
		return nil, fmt.Errorf("%w: empty query", timeseries.ErrQueryFailed)
	}

	params := url.Values{}
	params.Set("db", c.cfg.Name)
	params.Set("q", q)
	params.Set("epoch", "s")

	endpoint := c.url + "/query?" + params.Encode()

	queryCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(queryCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.cfg.User, c.cfg.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", timeseries.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", timeseries.ErrBackendUnavailable, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: HTTP %d", timeseries.ErrBackendUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d: %s", timeseries.ErrQueryFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return parseQueryResponse(body)
}

// parseQueryResponse decodes the InfluxQL JSON body into a ResultSet.
func parseQueryResponse(body []byte) (*timeseries.ResultSet, error) {
	var decoded queryResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", timeseries.ErrQueryFailed, err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("%w: %s", timeseries.ErrQueryFailed, decoded.Error)
	}

	result := &timeseries.ResultSet{}
	for _, r := range decoded.Results {
		if r.Error != "" {
			return nil, fmt.Errorf("%w: %s", timeseries.ErrQueryFailed, r.Error)
		}
		for _, s := range r.Series {
			result.Series = append(result.Series, timeseries.Series{
				Name:    s.Name,
				Tags:    s.Tags,
				Columns: s.Columns,
				Values:  s.Values,
			})
		}
	}
	return result, nil
}

// QueryLatest returns the most recent points for a measurement scoped
// by tag equality, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - measurement: The measurement name
//   - tags: Tag equality filters (all must match)
//   - limit: Maximum points to return (minimum 1)
//
// Returns:
//   - []timeseries.Point: Points newest first
//   - error: ErrNotFound when the series is empty
func (c *Client) QueryLatest(ctx context.Context, measurement string, tags map[string]string, limit int) ([]timeseries.Point, error) {
	if limit < 1 {
		limit = 1
	}

	q := fmt.Sprintf("SELECT * FROM %s%s ORDER BY time DESC LIMIT %d",
		quoteIdentifier(measurement), buildTagFilter(tags), limit)

	result, err := c.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if result.Empty() {
		return nil, fmt.Errorf("%w: %s %s", timeseries.ErrNotFound,
			measurement, timeseries.CanonicalTags(tags))
	}

	var points []timeseries.Point
	for _, s := range result.Series {
		timeIdx := s.ColumnIndex("time")
		for _, row := range s.Values {
			p := timeseries.Point{
				Measurement: s.Name,
				Tags:        s.Tags,
				Fields:      make(map[string]any, len(row)),
			}
			for i, col := range s.Columns {
				if i == timeIdx {
					if epoch, ok := row[i].(float64); ok {
						p.Time = time.Unix(int64(epoch), 0).UTC()
					}
					continue
				}
				if row[i] != nil {
					p.Fields[col] = row[i]
				}
			}
			points = append(points, p)
		}
	}
	return points, nil
}

// buildTagFilter renders a WHERE clause from tag equality filters,
// with keys sorted for deterministic queries. Returns "" for no tags.
func buildTagFilter(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(" WHERE ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(quoteIdentifier(k))
		b.WriteString(" = '")
		b.WriteString(escapeStringLiteral(tags[k]))
		b.WriteString("'")
	}
	return b.String()
}

// quoteIdentifier double-quotes an InfluxQL identifier, escaping any
// embedded quotes.
func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// escapeStringLiteral escapes single quotes in an InfluxQL string literal.
func escapeStringLiteral(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
