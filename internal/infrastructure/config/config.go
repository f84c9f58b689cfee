package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for netpulse core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Database   DatabaseConfig   `yaml:"database"`
	Timeseries TimeseriesConfig `yaml:"timeseries"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServiceConfig contains deployment-level identification.
type ServiceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings for metric,
// threshold and chart definitions.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// TimeseriesConfig contains time-series backend connection settings.
//
// Backend selects a registered backend by name ("influxdb" is built in;
// embedders may register additional backends via the timeseries package).
// The required keys differ per backend: the built-in influxdb backend
// requires Name, Host, Port, User and Password.
type TimeseriesConfig struct {
	Backend         string `yaml:"backend"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Name            string `yaml:"name"`             // database (1.x) or bucket name
	RetentionPolicy string `yaml:"retention_policy"` // empty uses the backend default
	Timeout         int    `yaml:"timeout"`          // per-operation timeout (seconds)
	GroupInterval   string `yaml:"group_interval"`   // chart aggregation bucket, e.g. "1d"
}

// MQTTConfig contains MQTT broker connection settings used by the
// alert notification dispatcher.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains settings for the read-only status HTTP server.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: NETPULSE_SECTION_KEY
// For example: NETPULSE_DATABASE_PATH, NETPULSE_TIMESERIES_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:       "netpulse-001",
			Name:     "netpulse",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/netpulse.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Timeseries: TimeseriesConfig{
			Backend:       "influxdb",
			Host:          "localhost",
			Port:          8086,
			Name:          "netpulse",
			Timeout:       10,
			GroupInterval: "1d",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "netpulse-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NETPULSE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("NETPULSE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Timeseries backend
	if v := os.Getenv("NETPULSE_TIMESERIES_BACKEND"); v != "" {
		cfg.Timeseries.Backend = v
	}
	if v := os.Getenv("NETPULSE_TIMESERIES_HOST"); v != "" {
		cfg.Timeseries.Host = v
	}
	if v := os.Getenv("NETPULSE_TIMESERIES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Timeseries.Port = port
		}
	}
	if v := os.Getenv("NETPULSE_TIMESERIES_USER"); v != "" {
		cfg.Timeseries.User = v
	}
	if v := os.Getenv("NETPULSE_TIMESERIES_PASSWORD"); v != "" {
		cfg.Timeseries.Password = v
	}
	if v := os.Getenv("NETPULSE_TIMESERIES_NAME"); v != "" {
		cfg.Timeseries.Name = v
	}

	// MQTT
	if v := os.Getenv("NETPULSE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("NETPULSE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NETPULSE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("NETPULSE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Timeseries.Backend == "" {
		errs = append(errs, "timeseries.backend is required")
	}
	if c.Timeseries.Name == "" {
		errs = append(errs, "timeseries.name is required")
	}
	if c.Timeseries.Port < 1 || c.Timeseries.Port > 65535 {
		errs = append(errs, "timeseries.port must be between 1 and 65535")
	}
	if c.Timeseries.GroupInterval != "" {
		if err := validateGroupInterval(c.Timeseries.GroupInterval); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateGroupInterval checks that the chart aggregation bucket is an
// InfluxQL duration literal such as "10m", "1h" or "1d".
func validateGroupInterval(interval string) error {
	if len(interval) < 2 {
		return fmt.Errorf("timeseries.group_interval %q is not a valid duration", interval)
	}
	unit := interval[len(interval)-1]
	switch unit {
	case 's', 'm', 'h', 'd', 'w':
	default:
		return fmt.Errorf("timeseries.group_interval %q has unsupported unit %q", interval, string(unit))
	}
	if n, err := strconv.Atoi(interval[:len(interval)-1]); err != nil || n <= 0 {
		return fmt.Errorf("timeseries.group_interval %q is not a valid duration", interval)
	}
	return nil
}

// QueryTimeout returns the time-series per-operation timeout as a Duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Timeseries.Timeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
