// Airlink bridges Wi-Fi air purifiers, fans and heaters that speak the
// local MQTT link protocol into a home-automation accessory model.
//
// Each configured appliance gets its own broker session, correlation engine
// and accessory adapter. Last-known state is persisted to SQLite, link and
// correlation metrics optionally go to InfluxDB, and the accessory surface
// is served over HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/airlink-bridge/migrations"

	"github.com/nerrad567/airlink-bridge/internal/accessory"
	"github.com/nerrad567/airlink-bridge/internal/api"
	"github.com/nerrad567/airlink-bridge/internal/auth"
	"github.com/nerrad567/airlink-bridge/internal/bridges/purelink"
	"github.com/nerrad567/airlink-bridge/internal/infrastructure/config"
	"github.com/nerrad567/airlink-bridge/internal/infrastructure/database"
	"github.com/nerrad567/airlink-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/airlink-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/airlink-bridge/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// persisterQueueSize bounds state writes waiting for SQLite.
	persisterQueueSize = 128
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-secret" {
		if err := hashSecret(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled. Deferred
// cleanups run in reverse start order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting airlink bridge",
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

	log = logging.New(cfg.Logging, version)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	influxClient, err := connectInflux(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if influxClient != nil {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}
	}()

	states := store.NewStateRepository(db.DB)
	persister := store.NewPersister(states, persisterQueueSize, log)
	persister.Start()
	defer func() {
		persister.Stop()
		log.Info("state persister stopped", "written", persister.Written(), "dropped", persister.Dropped())
	}()

	hub := api.NewHub(cfg.WebSocket, log)

	opts := purelink.BridgeOptions{
		Config:    cfg,
		Logger:    log,
		Observers: []purelink.Observer{hub, persister},
	}
	if influxClient != nil {
		opts.Sink = influxClient
	}
	bridge, err := purelink.NewBridge(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	for _, inv := range bridge.Invalid() {
		log.Warn("appliance excluded from bridge",
			"display_name", inv.DisplayName,
			"serial_number", inv.SerialNumber,
			"reason", inv.Reason,
		)
	}

	// Appliance rows must exist before the persister writes state for them.
	if syncErr := store.NewApplianceRepository(db.DB).Sync(ctx, bridge); syncErr != nil {
		return fmt.Errorf("syncing appliance registry: %w", syncErr)
	}

	accessories, err := buildAccessories(ctx, bridge, store.NewUIRequestRepository(db.DB), log)
	if err != nil {
		return err
	}

	if startErr := bridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()
	for id, failure := range bridge.StartFailures() {
		log.Error("appliance session failed to start", "appliance", id, "error", failure)
	}
	log.Info("bridge started",
		"appliances", len(bridge.Appliances()),
		"invalid", len(bridge.Invalid()),
	)

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Security:    cfg.Security,
			Logger:      log,
			Bridge:      bridge,
			Accessories: accessories,
			States:      states,
			DB:          db.DB,
			Hub:         hub,
			Version:     version,
		}
		if influxClient != nil {
			deps.Metrics = influxClient
		}
		srv, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		go hub.Run(ctx)
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// getConfigPath returns AIRLINK_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("AIRLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInflux returns nil without error when metrics export is disabled.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Bridge.ID)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// buildAccessories creates one adapter per valid appliance, restoring the
// UI requests remembered from the previous run.
func buildAccessories(ctx context.Context, bridge *purelink.Bridge, ui accessory.UIStore, log *logging.Logger) ([]*accessory.Accessory, error) {
	appliances := bridge.Appliances()
	out := make([]*accessory.Accessory, 0, len(appliances))
	for _, a := range appliances {
		acc, err := accessory.NewAccessory(ctx, accessory.Options{
			Appliance: a,
			Store:     ui,
			Logger:    log.ForAppliance(a.ID(), a.Identity().Model),
		})
		if err != nil {
			return nil, fmt.Errorf("creating accessory for %s: %w", a.ID(), err)
		}
		log.Info("accessory ready",
			"appliance", a.ID(),
			"name", a.Name(),
			"characteristics", len(acc.Characteristics()),
		)
		out = append(out, acc)
	}
	return out, nil
}

// hashSecret prints the Argon2id form of a client secret for
// security.jwt.client_secret.
func hashSecret(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: airlink hash-secret <secret>")
	}
	hash, err := auth.HashSecret(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
