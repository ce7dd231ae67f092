// UWB Core - Real-time Resident Monitoring Service
//
// This is the main entry point for the UWB Core application: the
// message-bus backbone of a care-facility monitoring deployment. It
// connects to the facility's MQTT broker, subscribes to every
// registered UWB gateway's topics, and maintains in-memory stores of
// resident vitals, positions, and device health, optionally exporting
// telemetry to InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/carewatch/uwb-core/migrations"

	"github.com/carewatch/uwb-core/internal/bus"
	"github.com/carewatch/uwb-core/internal/gateway"
	"github.com/carewatch/uwb-core/internal/infrastructure/config"
	"github.com/carewatch/uwb-core/internal/infrastructure/database"
	"github.com/carewatch/uwb-core/internal/infrastructure/influxdb"
	"github.com/carewatch/uwb-core/internal/infrastructure/logging"
	"github.com/carewatch/uwb-core/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting UWB Core",
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

	// Gateway registry, reloaded from the repository so topic
	// subscriptions survive restarts.
	registry := gateway.NewRegistry()
	registry.SetLogger(log.With("component", "gateway"))

	repo := gateway.NewSQLiteRepository(db.DB)
	persisted, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading gateways: %w", err)
	}
	registry.RegisterAll(persisted)
	log.Info("gateway registry initialised", "gateways", len(persisted))

	// Keep the repository in sync with registration changes. Wired
	// after the initial reload so the reload itself is not re-saved.
	unsubPersist := registry.On(func(ev gateway.Event) {
		switch ev.Type {
		case gateway.EventAdded, gateway.EventUpdated:
			gw := ev.Gateway
			if saveErr := repo.Save(ctx, &gw); saveErr != nil {
				log.Error("persisting gateway", "gateway", gw.ID, "error", saveErr)
			}
		case gateway.EventRemoved:
			if delErr := repo.Delete(ctx, ev.Gateway.ID); delErr != nil {
				log.Error("deleting gateway", "gateway", ev.Gateway.ID, "error", delErr)
			}
		}
	})
	defer unsubPersist()

	// Connect to InfluxDB (optional telemetry export)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Message bus: connects to the broker and subscribes every
	// registered gateway's topics.
	b := bus.New(cfg.MQTT, registry, log.With("component", "bus"))
	b.OnStatus(func(status bus.Status) {
		log.Info("bus status changed", "status", string(status))
	})
	if startErr := b.Start(); startErr != nil {
		return fmt.Errorf("starting message bus: %w", startErr)
	}
	defer func() {
		log.Info("stopping message bus")
		b.Stop()
	}()
	log.Info("message bus started",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Domain stores, each subscribed to its channel patterns.
	healthStore := store.NewHealth(cfg.Stores.Health, log.With("component", "health-store"))
	locationStore := store.NewLocation(cfg.Stores.Location, log.With("component", "location-store"))
	deviceStore := store.NewDevice(cfg.Stores.Device, log.With("component", "device-store"))
	ackStore := store.NewAck(cfg.Stores.Ack, log.With("component", "ack-store"))
	tagStore := store.NewTag(cfg.Stores.Tag, log.With("component", "tag-store"))
	anchorStore := store.NewAnchor(cfg.Stores.Anchor, log.With("component", "anchor-store"))

	if influxClient != nil {
		healthStore.SetSink(influxClient)
		locationStore.SetSink(influxClient)
	}

	healthStore.Start(b)
	defer healthStore.Stop()
	locationStore.Start(b)
	defer locationStore.Stop()
	deviceStore.Start(b)
	defer deviceStore.Stop()
	ackStore.Start(b)
	defer ackStore.Stop()
	tagStore.Start(b)
	defer tagStore.Stop()
	anchorStore.Start(b)
	defer anchorStore.Stop()
	log.Info("stores started")

	// Verify infrastructure connections are healthy. The broker
	// connection is asynchronous and monitored via OnStatus, so it is
	// not part of this gate.
	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Stores unsubscribe
	// 2. Bus disconnects
	// 3. InfluxDB (if enabled)
	// 4. Database

	log.Info("UWB Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses UWBCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("UWBCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
// influxClient may be nil when telemetry export is disabled.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
