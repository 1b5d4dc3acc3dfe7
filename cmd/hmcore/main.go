// HomeMatic Core - CCU device integration service
//
// This is the main entry point for the HomeMatic Core application. It
// connects to a HomeMatic CCU (or compatible) backend, materialises the
// backend's devices into stable entities, caches their values and exposes
// them over MQTT, with an optional diagnostics HTTP API and InfluxDB
// value history.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hmccu/homematic-core/internal/api"
	"github.com/hmccu/homematic-core/internal/central"
	"github.com/hmccu/homematic-core/internal/entity"
	"github.com/hmccu/homematic-core/internal/infrastructure/config"
	"github.com/hmccu/homematic-core/internal/infrastructure/database"
	"github.com/hmccu/homematic-core/internal/infrastructure/influxdb"
	"github.com/hmccu/homematic-core/internal/infrastructure/logging"
	"github.com/hmccu/homematic-core/internal/infrastructure/mqtt"
	"github.com/hmccu/homematic-core/internal/rpc"
	"github.com/hmccu/homematic-core/internal/store"
	"github.com/hmccu/homematic-core/migrations"
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

// logoutTimeout bounds the backend logout during shutdown.
const logoutTimeout = 5 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting HomeMatic Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
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

	// Open descriptor database
	dbPath := resolveStoragePath(cfg.Storage.Folder, cfg.Storage.DescriptorDB)
	db, err := database.Open(database.Config{
		Path:        dbPath,
		WALMode:     true,
		BusyTimeout: 5,
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
	log.Info("database connected", "path", dbPath)

	// Run migrations
	if migrateErr := db.Migrate(ctx, migrations.Files()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Backend session over JSON-RPC
	transport := rpc.NewHTTPTransport(rpc.HTTPConfig{
		Host:      cfg.Backend.Host,
		Port:      cfg.Backend.Port,
		Path:      cfg.Backend.Path,
		TLS:       cfg.Backend.TLS.Enabled,
		VerifyTLS: cfg.Backend.TLS.VerifyTLS,
	})
	state := rpc.NewConnectionState()
	session := rpc.NewSessionManager(transport, rpc.Config{
		Username:       cfg.Backend.Auth.Username,
		Password:       cfg.Backend.Auth.Password,
		RenewThreshold: cfg.SessionRenewThreshold(),
		Workers:        int64(cfg.Session.Workers),
		ScriptDir:      cfg.Storage.ScriptDir,
	}, state, log.With("component", "rpc"))
	defer func() {
		logoutCtx, logoutCancel := context.WithTimeout(context.Background(), logoutTimeout)
		defer logoutCancel()
		if logoutErr := session.Logout(logoutCtx); logoutErr != nil {
			log.Warn("backend logout failed", "error", logoutErr)
		}
	}()
	log.Info("backend session configured",
		"host", cfg.Backend.Host,
		"port", cfg.Backend.Port,
		"tls", cfg.Backend.TLS.Enabled,
	)

	// Central orchestrator over the persisted descriptor store
	core, err := central.New(central.Options{
		InstanceID:   cfg.Instance.ID,
		MaxAge:       cfg.CacheMaxAge(),
		OverrideFile: resolveStoragePath(cfg.Storage.Folder, cfg.Storage.UnignoreFile),
	}, session, store.New(db), log.With("component", "central"))
	if err != nil {
		return fmt.Errorf("creating central: %w", err)
	}

	restored, err := core.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restoring devices: %w", err)
	}
	log.Info("devices restored", "count", restored)

	// Bulk-load current values for every known interface. A failure here
	// degrades to lazy per-parameter fetching, it does not abort startup.
	for _, interfaceID := range knownInterfaces(core) {
		loaded, loadErr := core.LoadAllDeviceData(ctx, interfaceID)
		if loadErr != nil {
			log.Warn("bulk value load failed", "interface", interfaceID, "error", loadErr)
			continue
		}
		log.Info("bulk value load complete", "interface", interfaceID, "values", loaded)
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	var publisher *mqtt.StatePublisher
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		publisher = mqtt.NewStatePublisher(
			mqttClient,
			mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix},
			byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2 by config
		)
		if listenErr := publisher.ListenCommands(ctx, core); listenErr != nil {
			return fmt.Errorf("subscribing to command topics: %w", listenErr)
		}
		publishAvailability(ctx, core, publisher, log)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Fan accepted value updates out to MQTT and the value recorder.
	core.OnUpdate(makeUpdateFanout(publisher, influxClient, log))

	// Diagnostics API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.With("component", "api"),
			Central: core,
			State:   state,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API, InfluxDB, MQTT, backend logout, database.

	log.Info("HomeMatic Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HMCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HMCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// resolveStoragePath joins a storage file name onto the base folder.
// Absolute names are used as-is.
func resolveStoragePath(folder, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(folder, name)
}

// knownInterfaces collects the distinct backend interface IDs of all
// managed devices.
func knownInterfaces(core *central.Central) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, d := range core.Devices() {
		if _, ok := seen[d.Interface]; ok {
			continue
		}
		seen[d.Interface] = struct{}{}
		out = append(out, d.Interface)
	}
	return out
}

// makeUpdateFanout builds the observer that forwards accepted value
// updates to the MQTT publisher and the InfluxDB recorder. Either sink
// may be nil.
func makeUpdateFanout(publisher *mqtt.StatePublisher, influxClient *influxdb.Client, log *logging.Logger) central.UpdateFunc {
	return func(record *entity.Record, value any) {
		if publisher != nil {
			var err error
			if record.IsEvent() {
				err = publisher.PublishEvent(record, value)
			} else {
				err = publisher.PublishState(record, value)
			}
			if err != nil {
				log.Warn("publishing update failed", "entity", record.UniqueID, "error", err)
			}
		}

		if influxClient != nil {
			if record.IsEvent() {
				influxClient.RecordEvent(record, value)
			} else {
				influxClient.RecordValue(record, value)
			}
		}
	}
}

// publishAvailability publishes the retained availability of every
// managed device so consumers start from a known state.
func publishAvailability(ctx context.Context, core *central.Central, publisher *mqtt.StatePublisher, log *logging.Logger) {
	for _, d := range core.Devices() {
		if err := publisher.PublishAvailability(d.Address, core.Available(ctx, d.Address)); err != nil {
			log.Warn("publishing availability failed", "device", d.Address, "error", err)
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
