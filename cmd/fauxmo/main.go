// Fauxmo - discoverable device responder
//
// This is the main entry point for the Fauxmo responder. It emulates a
// Philips Hue bridge on the local network so voice assistants discover a
// configured set of virtual on/off devices and switch them, and forwards
// every change to the host over MQTT, the admin API and the journal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-fauxmo/migrations"

	"github.com/nerrad567/gray-logic-fauxmo/internal/api"
	"github.com/nerrad567/gray-logic-fauxmo/internal/device"
	"github.com/nerrad567/gray-logic-fauxmo/internal/dispatch"
	"github.com/nerrad567/gray-logic-fauxmo/internal/hostlink"
	"github.com/nerrad567/gray-logic-fauxmo/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fauxmo/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-fauxmo/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-fauxmo/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-fauxmo/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fauxmo/internal/netstatus"
	"github.com/nerrad567/gray-logic-fauxmo/internal/responder"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when FAUXMO_CONFIG is unset.
	defaultConfigPath = "configs/config.yaml"

	// networkCheckInterval is how often a bound responder re-checks the network.
	networkCheckInterval = time.Second

	// statsInterval is how often discovery counters are written to InfluxDB.
	statsInterval = time.Minute
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting fauxmo",
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

	// State-change journal (optional)
	var db *database.DB
	var history *device.SQLiteStateHistoryRepository
	if cfg.Database.Enabled {
		db, history, err = openJournal(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
	} else {
		log.Info("state journal disabled")
	}

	registry, err := buildRegistry(cfg, log)
	if err != nil {
		return err
	}

	dispatcher := dispatch.New()
	dispatcher.SetLogger(log)
	dispatcher.SubscribeAll("log", dispatch.Log(log))
	if history != nil {
		dispatcher.SubscribeAll("journal", dispatch.Journal(history))
	}

	// InfluxDB telemetry (optional)
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
		dispatcher.SubscribeAll("influxdb", dispatch.ListenerFunc(func(_ context.Context, e dispatch.Event) error {
			influxClient.WriteDeviceState(e)
			return nil
		}))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	network, err := buildNetworkStatus(cfg.Network)
	if err != nil {
		return err
	}

	resp, err := responder.New(responder.Options{
		Registry:       registry,
		Dispatcher:     dispatcher,
		Network:        network,
		Enabled:        cfg.Responder.Enabled,
		Port:           cfg.Responder.Port,
		TickBudget:     cfg.Responder.TickBudget,
		NotifyInterval: cfg.Responder.NotifyInterval,
	})
	if err != nil {
		return fmt.Errorf("creating responder: %w", err)
	}
	resp.SetLogger(log)
	resp.LogConfig()
	defer func() {
		log.Info("closing responder")
		if closeErr := resp.Close(); closeErr != nil {
			log.Error("error closing responder", "error", closeErr)
		}
	}()

	// MQTT host link (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		var link *hostlink.Link
		mqttClient, link, err = startHostLink(ctx, cfg, resp, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := link.Close(); closeErr != nil {
				log.Error("error closing host link", "error", closeErr)
			}
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else if hasTriggers(cfg) {
		log.Warn("device trigger topics are configured but MQTT is disabled")
	}

	// Admin API (optional)
	var apiServer *api.Server
	if cfg.API.Enabled {
		hub := api.NewHub(cfg.WebSocket, log)
		go hub.Run(ctx)
		dispatcher.SubscribeAll("websocket", hub)

		apiServer, err = api.New(api.Deps{
			Config:    cfg.API,
			WS:        cfg.WebSocket,
			Logger:    log,
			Responder: resp,
			History:   historyRepo(history),
			Hub:       hub,
			Version:   version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for network")

	tickLoop(ctx, resp, network, influxClient, cfg.Responder.TickInterval, log)

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FAUXMO_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FAUXMO_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openJournal opens and migrates the journal database and prunes old rows.
func openJournal(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, *device.SQLiteStateHistoryRepository, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database connected", "path", cfg.Path)

	history := device.NewSQLiteStateHistoryRepository(db.DB)
	if cfg.RetentionDays > 0 {
		pruned, err := history.PruneHistory(ctx, time.Duration(cfg.RetentionDays)*24*time.Hour)
		if err != nil {
			log.Warn("pruning state history failed", "error", err)
		} else if pruned > 0 {
			log.Info("state history pruned", "rows", pruned, "retention_days", cfg.RetentionDays)
		}
	}
	return db, history, nil
}

// buildRegistry registers the configured devices in declaration order.
func buildRegistry(cfg *config.Config, log *logging.Logger) (*device.Registry, error) {
	registry := device.NewRegistry()
	registry.SetLogger(log)

	for _, name := range cfg.DeviceNames() {
		if _, err := registry.Register(name); err != nil {
			return nil, fmt.Errorf("registering device %q: %w", name, err)
		}
	}
	if registry.Count() == 0 {
		log.Warn("no devices configured")
	}
	return registry, nil
}

// buildNetworkStatus pins the advertised address when configured,
// otherwise probes the host interfaces.
func buildNetworkStatus(cfg config.NetworkConfig) (netstatus.Status, error) {
	if cfg.AdvertiseIP == "" {
		return netstatus.NewInterfaceProbe(cfg.Interface), nil
	}

	addr, err := netstatus.ParseAddress(cfg.AdvertiseIP, cfg.AdvertiseMAC)
	if err != nil {
		return nil, fmt.Errorf("parsing advertised address: %w", err)
	}
	addr.Interface = cfg.Interface

	status, err := netstatus.NewStatic(addr)
	if err != nil {
		return nil, fmt.Errorf("pinning advertised address: %w", err)
	}
	return status, nil
}

// startHostLink connects to the broker and wires the MQTT host link into
// the responder's dispatcher, including per-device trigger topics.
func startHostLink(ctx context.Context, cfg *config.Config, resp *responder.Responder, log *logging.Logger) (*mqtt.Client, *hostlink.Link, error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	link, err := hostlink.New(client, resp, hostlink.Options{
		QoS:            client.QoS(),
		HealthInterval: time.Duration(cfg.MQTT.HealthInterval) * time.Second,
	})
	if err != nil {
		client.Close() //nolint:errcheck // Already failing
		return nil, nil, fmt.Errorf("creating host link: %w", err)
	}
	link.SetLogger(log)

	dispatcher := resp.Dispatcher()
	dispatcher.SubscribeAll("mqtt", link)
	for i, d := range cfg.Responder.Devices {
		if d.MQTTTopic == "" {
			continue
		}
		dispatcher.Subscribe(device.ID(i), "trigger:"+d.MQTTTopic, link.Trigger(d.MQTTTopic))
		log.Info("device trigger registered", "device", d.Name, "topic", d.MQTTTopic)
	}

	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		if err := link.PublishAll(); err != nil {
			log.Warn("republishing state after reconnect failed", "error", err)
		}
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	if err := link.Start(ctx); err != nil {
		client.Close() //nolint:errcheck // Already failing
		return nil, nil, fmt.Errorf("starting host link: %w", err)
	}
	return client, link, nil
}

func hasTriggers(cfg *config.Config) bool {
	for _, d := range cfg.Responder.Devices {
		if d.MQTTTopic != "" {
			return true
		}
	}
	return false
}

// historyRepo avoids handing the API a typed nil repository.
func historyRepo(h *device.SQLiteStateHistoryRepository) device.StateHistoryRepository {
	if h == nil {
		return nil
	}
	return h
}

// ticker is the responder surface the tick loop drives.
type ticker interface {
	OnTick(ctx context.Context) error
	OnNetworkReady(ctx context.Context, addr netstatus.Address) error
	NetworkLost()
	BoundAddress() (netstatus.Address, bool)
	Status() responder.Status
}

// tickLoop drives the responder until ctx is cancelled.
//
// Every tick polls discovery. Once bound, the network is re-checked every
// networkCheckInterval: a lost network suspends the responder and a new
// address re-binds it.
func tickLoop(ctx context.Context, r ticker, network netstatus.Status, influxClient *influxdb.Client, interval time.Duration, log *logging.Logger) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	netCheck := time.NewTicker(networkCheckInterval)
	defer netCheck.Stop()
	stats := time.NewTicker(statsInterval)
	defer stats.Stop()

	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return

		case <-tick.C:
			err := r.OnTick(ctx)
			switch {
			case err != nil && ctx.Err() == nil && err.Error() != lastErr:
				log.Warn("responder tick failed", "error", err)
				lastErr = err.Error()
			case err == nil:
				lastErr = ""
			}

		case <-netCheck.C:
			checkNetwork(ctx, r, network, log)

		case <-stats.C:
			if influxClient == nil {
				continue
			}
			st := r.Status()
			influxClient.WritePoint("responder_stats",
				map[string]string{"discovery_state": st.DiscoveryState},
				map[string]interface{}{
					"answered":      int64(st.Discovery.Answered),
					"ignored":       int64(st.Discovery.Ignored),
					"notified":      int64(st.Discovery.Notified),
					"network_ready": st.NetworkReady,
				})
		}
	}
}

// checkNetwork reconciles a bound responder with the current network.
// A change of either IP or MAC re-binds.
func checkNetwork(ctx context.Context, r ticker, network netstatus.Status, log *logging.Logger) {
	bound, ok := r.BoundAddress()
	if !ok {
		return
	}

	addr, ok := network.LocalAddress()
	if !network.Ready() || !ok {
		r.NetworkLost()
		return
	}
	if !addr.Equal(bound) {
		log.Info("network address changed",
			"from", bound.IP.String(), "from_mac", bound.MAC.String(),
			"to", addr.IP.String(), "to_mac", addr.MAC.String())
		if err := r.OnNetworkReady(ctx, addr); err != nil {
			log.Warn("rebinding responder failed", "error", err)
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// Disabled components are passed as nil and skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
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
