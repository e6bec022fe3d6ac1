// Weft - functional endpoint runtime
//
// This is the main entry point for the Weft node. A node hosts functional
// endpoints, serves them to peers over the MQTT carrier, runs automation
// primitives, and exposes a REST/WebSocket API for user interfaces.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/weft-home/weft/internal/api"
	"github.com/weft-home/weft/internal/endpoint"
	"github.com/weft-home/weft/internal/history"
	"github.com/weft-home/weft/internal/infrastructure/config"
	"github.com/weft-home/weft/internal/infrastructure/database"
	"github.com/weft-home/weft/internal/infrastructure/influxdb"
	"github.com/weft-home/weft/internal/infrastructure/logging"
	"github.com/weft-home/weft/internal/infrastructure/mqtt"
	"github.com/weft-home/weft/internal/protocol"
	"github.com/weft-home/weft/internal/technology"
	"github.com/weft-home/weft/internal/technology/store"
	"github.com/weft-home/weft/internal/trait"
	"github.com/weft-home/weft/internal/transport"
	"github.com/weft-home/weft/migrations"
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

// stateSaveInterval is how often component state (groups, automation
// primitives) is snapshotted to the database.
const stateSaveInterval = 5 * time.Minute

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
func run(ctx context.Context) error { //nolint:gocognit // Sequential bootstrap; each step is a short block
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Weft",
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

	// Run migrations
	if migrateErr := db.Migrate(ctx, migrations.Files()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
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

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Create the technology hosting this node's endpoints
	tech := technology.New("weft", cfg.Node.ID)
	tech.SetLogger(log)
	defer func() {
		log.Info("closing technology")
		tech.Close(context.Background())
	}()

	// Host the node's own descriptor endpoint
	if _, hostErr := tech.Host(nodeEndpoint(cfg)); hostErr != nil {
		return fmt.Errorf("hosting node endpoint: %w", hostErr)
	}

	// Restore persisted component state (groups, automation primitives)
	stateStore := store.NewSQLiteStore(db.DB)
	snapshot, err := stateStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading component state: %w", err)
	}
	if len(snapshot) > 0 {
		if restoreErr := tech.RestoreState(snapshot); restoreErr != nil {
			log.Warn("component state restored with errors", "error", restoreErr)
		} else {
			log.Info("component state restored")
		}
	}

	// Serve the protocol over the MQTT carrier
	protoServer := protocol.NewServer(tech)
	protoServer.SetLogger(log)

	responder := transport.NewResponder(mqttClient, cfg.Node.ID, byte(cfg.MQTT.QoS), protoServer)
	responder.SetLogger(log)
	defer func() {
		log.Info("closing transport responder")
		responder.Close()
	}()
	if serveErr := responder.ServeDiscovery(); serveErr != nil {
		return fmt.Errorf("serving discovery: %w", serveErr)
	}
	for _, fe := range tech.Hosted() {
		if serveErr := responder.ServeEndpoint(fe.ID()); serveErr != nil {
			return fmt.Errorf("serving endpoint %s: %w", fe.ID(), serveErr)
		}
	}
	log.Info("transport responder serving", "endpoints", len(tech.Hosted()))

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

	// Start the API server
	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Handler: protoServer,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("closing API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Record property changes: WebSocket broadcast, plus InfluxDB when enabled
	sinks := history.MultiSink{apiServer.Hub()}
	if influxClient != nil {
		sinks = append(sinks, influxClient)
	}
	recorder := history.NewRecorder(sinks)
	defer recorder.Close()
	for _, fe := range tech.Hosted() {
		recorder.Watch(fe)
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Snapshot component state periodically and once more on shutdown
	go saveStateLoop(ctx, tech, stateStore, log)

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if saveErr := stateStore.Save(saveCtx, tech.CopyState()); saveErr != nil {
		log.Error("final state save failed", "error", saveErr)
	}

	log.Info("Weft stopped")
	return nil
}

// nodeEndpoint builds the functional endpoint describing this node.
func nodeEndpoint(cfg *config.Config) *endpoint.Local {
	keyName := trait.NewPropertyKey(trait.SectionMetadata, "node", "name", trait.TypeString)
	keyVersion := trait.NewPropertyKey(trait.SectionMetadata, "node", "version", trait.TypeString)
	keyTimezone := trait.NewPropertyKey(trait.SectionMetadata, "node", "timezone", trait.TypeString)

	node := endpoint.NewSimpleTrait("node", keyName, keyVersion, keyTimezone).
		Init(keyName, cfg.Node.Name).
		Init(keyVersion, version).
		Init(keyTimezone, cfg.Node.Timezone).
		MarkReadOnly(keyName, keyVersion, keyTimezone)

	return endpoint.NewLocal(cfg.Node.ID, node)
}

// saveStateLoop persists component state at a fixed interval until the
// context is cancelled. The final save happens during shutdown.
func saveStateLoop(ctx context.Context, tech *technology.Technology, stateStore store.Store, log *logging.Logger) {
	ticker := time.NewTicker(stateSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := stateStore.Save(ctx, tech.CopyState()); err != nil {
				log.Error("periodic state save failed", "error", err)
			}
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses WEFT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WEFT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
