package timeseries

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/netpulse-io/netpulse-core/internal/infrastructure/config"
)

// Backend creates clients for one kind of time-series store.
//
// The built-in influxdb backend registers itself on import of the
// influx subpackage; deployments can register custom backends with
// Register before calling Open, without modifying the engine.
type Backend interface {
	// Name is the logical backend name used in configuration
	// (e.g. "influxdb").
	Name() string

	// RequiredKeys lists the configuration keys this backend needs
	// (subset of NAME, HOST, PORT, USER, PASSWORD). Open is not
	// attempted until all of them are set.
	RequiredKeys() []string

	// Open connects to the store and returns a ready client.
	Open(cfg config.TimeseriesConfig) (Client, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Backend)
)

// Register adds a backend to the registry. Registering a name twice
// replaces the previous entry, which lets tests install fakes.
func Register(b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[b.Name()] = b
}

// Backends returns the sorted names of all registered backends.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open resolves the configured backend name through the registry,
// validates its required configuration keys, and opens a client.
//
// Parameters:
//   - cfg: Timeseries configuration from config.yaml
//
// Returns:
//   - Client: Connected client ready for use
//   - error: ErrUnknownBackend if the name is not registered,
//     ErrMissingConfig if a required key is unset, or the backend's
//     own connection error
func Open(cfg config.TimeseriesConfig) (Client, error) {
	registryMu.RLock()
	backend, ok := registry[cfg.Backend]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)",
			ErrUnknownBackend, cfg.Backend, strings.Join(Backends(), ", "))
	}

	if err := checkRequiredKeys(backend, cfg); err != nil {
		return nil, err
	}

	return backend.Open(cfg)
}

// checkRequiredKeys verifies every key the backend declares is present
// in the configuration.
func checkRequiredKeys(b Backend, cfg config.TimeseriesConfig) error {
	values := map[string]string{
		"NAME":     cfg.Name,
		"HOST":     cfg.Host,
		"PORT":     strconv.Itoa(cfg.Port),
		"USER":     cfg.User,
		"PASSWORD": cfg.Password,
	}

	var missing []string
	for _, key := range b.RequiredKeys() {
		v, known := values[key]
		if !known || v == "" || (key == "PORT" && cfg.Port <= 0) {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: backend %q requires %s",
			ErrMissingConfig, b.Name(), strings.Join(missing, ", "))
	}
	return nil
}
