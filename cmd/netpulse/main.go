// NetPulse Core - network monitoring metric engine
//
// This is the main entry point for the NetPulse service: it stores
// device metrics in a time-series backend, evaluates thresholds with
// tolerance-based debouncing, publishes health transition alerts over
// MQTT and serves charts and status over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/netpulse-io/netpulse-core/migrations"

	"github.com/netpulse-io/netpulse-core/internal/api"
	"github.com/netpulse-io/netpulse-core/internal/chart"
	"github.com/netpulse-io/netpulse-core/internal/infrastructure/config"
	"github.com/netpulse-io/netpulse-core/internal/infrastructure/database"
	"github.com/netpulse-io/netpulse-core/internal/infrastructure/logging"
	"github.com/netpulse-io/netpulse-core/internal/metric"
	"github.com/netpulse-io/netpulse-core/internal/notify"
	"github.com/netpulse-io/netpulse-core/internal/timeseries"

	// Registers the influxdb backend with the timeseries registry.
	_ "github.com/netpulse-io/netpulse-core/internal/timeseries/influx"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting NetPulse Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Open the time-series backend through the registry.
	tsClient, err := timeseries.Open(cfg.Timeseries)
	if err != nil {
		return fmt.Errorf("opening time-series backend: %w", err)
	}
	defer func() {
		log.Info("closing time-series backend")
		if closeErr := tsClient.Close(); closeErr != nil {
			log.Error("error closing time-series backend", "error", closeErr)
		}
	}()
	log.Info("time-series backend connected",
		"backend", cfg.Timeseries.Backend,
		"host", fmt.Sprintf("%s:%d", cfg.Timeseries.Host, cfg.Timeseries.Port),
		"database", cfg.Timeseries.Name,
	)

	// Metric engine
	metricRepo := metric.NewSQLiteRepository(db.DB)
	engine := metric.NewEngine(metricRepo, tsClient, log)

	// Alert delivery over MQTT (optional)
	var mqttClient *notify.Client
	var mqttProbe api.HealthChecker
	if cfg.MQTT.Enabled {
		mqttClient, err = notify.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		engine.SetNotifier(notify.NewDispatcher(mqttClient, byte(cfg.MQTT.QoS)))
		mqttProbe = mqttClient
	} else {
		log.Info("MQTT disabled, health events will be logged only")
	}

	// Chart storage and rendering
	chartRepo := chart.NewSQLiteRepository(db.DB)
	renderer := chart.NewRenderer(tsClient, cfg.Timeseries.Backend, cfg.Timeseries.GroupInterval)

	// HTTP server: status reads plus the sample/report write path.
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		Logger:     log,
		Metrics:    metricRepo,
		Engine:     engine,
		Charts:     chartRepo,
		Renderer:   renderer,
		Database:   db,
		Timeseries: tsClient,
		MQTT:       mqttProbe,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("NetPulse Core running")

	// Block until shutdown signal
	<-ctx.Done()
	log.Info("shutdown signal received")

	return nil
}

// getConfigPath returns the config file path from args or the default.
func getConfigPath() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	if env := os.Getenv("NETPULSE_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath
}
