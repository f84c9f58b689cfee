package influx

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/netpulse-io/netpulse-core/internal/infrastructure/config"
	"github.com/netpulse-io/netpulse-core/internal/timeseries"
)

// Default timeouts for InfluxDB operations.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultOpTimeout      = 10 * time.Second
)

// Backend is the built-in InfluxDB backend. It registers itself under
// the name "influxdb" on package import.
type Backend struct{}

// Name returns the logical backend name used in configuration.
func (Backend) Name() string { return "influxdb" }

// RequiredKeys lists the configuration keys this backend needs.
func (Backend) RequiredKeys() []string {
	return []string{"NAME", "HOST", "PORT", "USER", "PASSWORD"}
}

// Open connects to the InfluxDB server and returns a ready client.
func (Backend) Open(cfg config.TimeseriesConfig) (timeseries.Client, error) {
	return Connect(cfg)
}

func init() {
	timeseries.Register(Backend{})
}

// Client implements timeseries.Client against InfluxDB.
//
// Point writes go through the official client's blocking write API so
// the engine's synchronous retry contract holds: a failed write
// surfaces immediately and a retry with identical arguments upserts
// rather than duplicates. Reads use the 1.x /query HTTP endpoint
// because the chart templates are InfluxQL and the v2 Go client only
// speaks Flux.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	client     influxdb2.Client
	httpClient *http.Client
	url        string
	cfg        config.TimeseriesConfig
	opTimeout  time.Duration

	// writeAPIs caches one blocking write API per retention policy.
	writeAPIs map[string]api.WriteAPIBlocking
	writeMu   sync.Mutex

	closed   bool
	closedMu sync.RWMutex
}

// Connect establishes a connection to the InfluxDB server.
//
// It performs the following setup:
//  1. Creates the client with username:password token authentication
//  2. Verifies connectivity with a ping
//  3. Prepares the blocking write API for the configured database
//
// Parameters:
//   - cfg: Timeseries configuration from config.yaml
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrBackendUnavailable if the server cannot be reached
func Connect(cfg config.TimeseriesConfig) (*Client, error) {
	url := fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)

	// username:password token selects the 1.8 compatibility auth mode.
	token := fmt.Sprintf("%s:%s", cfg.User, cfg.Password)
	client := influxdb2.NewClient(url, token)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", timeseries.ErrBackendUnavailable, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", timeseries.ErrBackendUnavailable)
	}

	opTimeout := defaultOpTimeout
	if cfg.Timeout > 0 {
		opTimeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &Client{
		client:     client,
		httpClient: &http.Client{Timeout: opTimeout},
		url:        url,
		cfg:        cfg,
		opTimeout:  opTimeout,
		writeAPIs:  make(map[string]api.WriteAPIBlocking),
	}, nil
}

// Write persists a single point synchronously.
//
// The retention policy from opts selects the target retention policy;
// empty uses the server default for the configured database. Writing
// the same (timestamp, tags) twice overwrites, so retries after
// ErrBackendUnavailable are safe.
func (c *Client) Write(ctx context.Context, p timeseries.Point, opts *timeseries.WriteOptions) error {
	if c.isClosed() {
		return timeseries.ErrClosed
	}
	if err := p.Validate(); err != nil {
		return err
	}

	rp := ""
	if opts != nil {
		rp = opts.RetentionPolicy
	}

	ts := p.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	point := write.NewPoint(p.Measurement, p.Tags, p.Fields, ts)

	if err := c.writeAPI(rp).WritePoint(ctx, point); err != nil {
		return fmt.Errorf("%w: writing point to %q: %w",
			timeseries.ErrBackendUnavailable, p.Measurement, err)
	}
	return nil
}

// writeAPI returns the blocking write API for a retention policy,
// creating and caching it on first use.
func (c *Client) writeAPI(retentionPolicy string) api.WriteAPIBlocking {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if w, ok := c.writeAPIs[retentionPolicy]; ok {
		return w
	}

	// In 1.8 compatibility mode the bucket is "database/retention_policy";
	// a bare database name selects the default retention policy.
	bucket := c.cfg.Name
	if retentionPolicy != "" {
		bucket = c.cfg.Name + "/" + retentionPolicy
	}

	w := c.client.WriteAPIBlocking("", bucket)
	c.writeAPIs[retentionPolicy] = w
	return w
}

// HealthCheck verifies the InfluxDB connection is alive and functioning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.isClosed() {
		return timeseries.ErrClosed
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("%w: %w", timeseries.ErrBackendUnavailable, err)
	}
	if !healthy {
		return fmt.Errorf("%w: server not healthy", timeseries.ErrBackendUnavailable)
	}
	return nil
}

// Close releases the underlying connection. Safe to call more than once.
func (c *Client) Close() error {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return nil
	}
	c.closed = true
	c.closedMu.Unlock()

	c.client.Close()
	return nil
}

func (c *Client) isClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}
