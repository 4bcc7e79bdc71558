// Gray Logic Sonos - Sonos zone player bridge
//
// This is the main entry point for the Gray Logic Sonos bridge. It
// discovers Sonos speakers on the local network, keeps a live model of
// each speaker's playback state, and exposes that model over MQTT and a
// REST/WebSocket API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-sonos/internal/adapter"
	"github.com/nerrad567/gray-logic-sonos/internal/albumart"
	"github.com/nerrad567/gray-logic-sonos/internal/api"
	"github.com/nerrad567/gray-logic-sonos/internal/bridge"
	"github.com/nerrad567/gray-logic-sonos/internal/discovery"
	"github.com/nerrad567/gray-logic-sonos/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sonos/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sonos/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sonos/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sonos/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sonos/internal/sonos"
	"github.com/nerrad567/gray-logic-sonos/internal/store"
	"github.com/nerrad567/gray-logic-sonos/migrations"
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

// shutdownTimeout bounds the stop sequence after a signal.
const shutdownTimeout = 15 * time.Second

var _ adapter.Client = (*sonos.Client)(nil)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Sonos",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	// Saved speakers
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
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	art, err := albumart.New(albumart.Options{
		Dir:    cfg.Sonos.MediaDir,
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("creating album art store: %w", err)
	}

	// UPnP event callbacks
	listener := sonos.NewListener(sonos.ListenerOptions{
		Host:                cfg.Sonos.Events.Host,
		Port:                cfg.Sonos.Events.Port,
		SubscriptionTimeout: time.Duration(cfg.Sonos.Events.SubscriptionTimeout) * time.Second,
		Logger:              log,
	})
	if err := listener.Start(ctx); err != nil {
		return fmt.Errorf("starting event listener: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := listener.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping event listener", "error", stopErr)
		}
	}()

	hub := api.NewHub(cfg.WebSocket, log)
	hosts := adapter.MultiHost{hub}
	checks := map[string]api.CheckFunc{"database": db.HealthCheck}

	// MQTT bridge (optional)
	var (
		mqttClient *mqtt.Client
		mqttBridge *bridge.Bridge
	)
	if cfg.MQTT.Enabled {
		mqttClient, mqttBridge, err = connectBridge(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		hosts = append(hosts, mqttBridge)
		checks["mqtt"] = mqttClient.HealthCheck
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
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
		hosts = append(hosts, adapter.MetricsHost{Writer: influxClient})
		checks["influxdb"] = influxClient.HealthCheck
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	speakers, err := adapter.New(adapter.Options{
		Connect: func(address string) adapter.Client {
			return sonos.NewClient(address, sonos.ClientOptions{Listener: listener, Logger: log})
		},
		Store:            store.NewSQLiteRepository(db.DB),
		Discoverer:       discovery.NewBrowser(discovery.Options{Interface: cfg.Sonos.Interface, Logger: log}),
		Host:             hosts,
		Art:              art,
		Addresses:        cfg.Sonos.Addresses,
		DiscoveryTimeout: cfg.GetDiscoveryTimeout(),
		PairingWindow:    cfg.GetPairingWindow(),
		CommandTimeout:   cfg.GetCommandTimeout(),
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("creating adapter: %w", err)
	}

	if mqttBridge != nil {
		if err := mqttBridge.Start(ctx, speakers); err != nil {
			return fmt.Errorf("starting MQTT bridge: %w", err)
		}
		defer mqttBridge.Stop()
	}

	// Stop speakers before the bridge and listener so their final
	// notifications and unsubscribes still go out.
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("stopping speakers")
		if stopErr := speakers.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping speakers", "error", stopErr)
		}
	}()
	if err := speakers.Start(ctx); err != nil {
		return fmt.Errorf("starting adapter: %w", err)
	}

	// REST API and WebSocket (optional)
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)

	if cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:        cfg.API,
			WS:            cfg.WebSocket,
			Security:      cfg.Security,
			Logger:        log,
			Registry:      speakers,
			Hub:           hub,
			MediaDir:      art.Dir(),
			MediaPrefix:   art.Prefix(),
			PairingWindow: cfg.GetPairingWindow(),
			Checks:        checks,
			Version:       version,
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
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal", "speakers", speakers.Count())
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, speakers, bridge,
	// InfluxDB, MQTT, event listener, database.
	return nil
}

// connectBridge connects to the broker with a retained offline will and
// creates the bridge. The bridge republishes everything on reconnect.
func connectBridge(cfg *config.Config, log *logging.Logger) (*mqtt.Client, *bridge.Bridge, error) {
	topics := mqtt.Topics{}
	client, err := mqtt.Connect(cfg.MQTT, mqtt.Will{
		Topic:   topics.Health(),
		Payload: bridge.OfflinePayload(cfg.Bridge.ID),
		QoS:     1,
	})
	if err != nil {
		if errors.Is(err, mqtt.ErrConnectionFailed) {
			return nil, nil, fmt.Errorf("connecting to MQTT at %s:%d: %w", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port, err)
		}
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	b, err := bridge.New(bridge.Options{
		MQTT:           client,
		BridgeID:       cfg.Bridge.ID,
		Version:        version,
		QoS:            byte(cfg.MQTT.QoS),
		HealthInterval: cfg.GetHealthInterval(),
		PairingWindow:  cfg.GetPairingWindow(),
		Logger:         log,
	})
	if err != nil {
		client.Close() //nolint:errcheck // error path
		return nil, nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}

	client.SetOnConnect(func() {
		log.Info("MQTT reconnected, republishing")
		b.Republish()
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	return client, b, nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
