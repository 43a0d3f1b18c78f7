// Bioreactor supervisory console.
//
// The console keeps a live view of one bioreactor controller reachable over
// MQTT: it buffers telemetry, reconciles operator-staged setpoints against
// the setpoints the device reports, and publishes committed setpoints back
// to the device. Renderers attach through the HTTP API and WebSocket hub.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/bioconsole/internal/api"
	"github.com/nerrad567/bioconsole/internal/audit"
	"github.com/nerrad567/bioconsole/internal/infrastructure/config"
	"github.com/nerrad567/bioconsole/internal/infrastructure/database"
	"github.com/nerrad567/bioconsole/internal/infrastructure/influxdb"
	"github.com/nerrad567/bioconsole/internal/infrastructure/logging"
	"github.com/nerrad567/bioconsole/internal/infrastructure/mqtt"
	"github.com/nerrad567/bioconsole/internal/reactor"
	"github.com/nerrad567/bioconsole/migrations"
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

// auditSourceConsole marks commits recorded by the session hook.
const auditSourceConsole = "console"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting bioconsole",
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
	defer log.Close() //nolint:errcheck // nothing left to report to
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database and audit trail
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Background workers stop when runCtx is cancelled, after the API and
	// MQTT client have been closed.
	runCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, log, 0)
	go recorder.Run(runCtx)

	// InfluxDB (optional)
	influxClient, err := connectInflux(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Session
	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = mqtt.NewClientID()
	}
	mqttClient := mqtt.New(cfg.MQTT, reactor.NewNamespace(cfg.Device.TopicRoot).ConsolePresence(cfg.MQTT.Broker.ClientID))
	mqttClient.SetLogger(log)

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(runCtx)

	session := reactor.NewSession(reactor.SessionConfig{
		TopicRoot:  cfg.Device.TopicRoot,
		Channels:   channelSpecs(cfg.Channels),
		BufferSize: cfg.Telemetry.BufferSize,
		Logger:     log.With("component", "session"),
		Hooks:      sessionHooks(hub, recorder, influxClient),
	}, &mqttTransport{client: mqttClient})

	sessionDone := make(chan error, 1)
	go func() { sessionDone <- session.Run(runCtx) }()
	if influxClient != nil {
		go influxClient.RunStatsWriter(runCtx, 0, session.Snapshot)
	}

	// MQTT
	ns := session.Namespace()
	if subErr := mqttClient.Subscribe(ns.Wildcard(), byte(cfg.MQTT.QoS), func(topic string, payload []byte) error {
		session.Deliver(topic, payload)
		return nil
	}); subErr != nil {
		return fmt.Errorf("subscribing to %s: %w", ns.Wildcard(), subErr)
	}

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected", "client_id", mqttClient.ClientID())
		session.SetConnectivity(reactor.Connected)
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
		session.SetConnectivity(reactor.Offline)
	})
	mqttClient.SetOnReconnecting(func() {
		session.SetConnectivity(reactor.Offline)
	})

	session.SetConnectivity(reactor.Connecting)
	if startErr := mqttClient.Start(ctx); startErr != nil {
		log.Warn("MQTT broker not reachable yet, running offline", "error", startErr)
	}
	log.Info("MQTT client started",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
		"subscription", ns.Wildcard(),
	)

	// API
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Session:   session,
		Hub:       hub,
		AuditRepo: auditRepo,
		Recorder:  recorder,
		MQTT:      mqttClient,
		DB:        db,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(runCtx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if closeErr := apiServer.Close(); closeErr != nil {
		log.Error("error closing API server", "error", closeErr)
	}
	log.Info("disconnecting from MQTT")
	if closeErr := mqttClient.Close(); closeErr != nil {
		log.Error("error closing MQTT", "error", closeErr)
	}
	session.SetConnectivity(reactor.Disconnected)

	stopWorkers()
	<-sessionDone
	<-recorder.Done()
	if dropped := recorder.Dropped(); dropped > 0 {
		log.Warn("audit entries dropped", "count", dropped)
	}

	// Deferred closes run in reverse order: InfluxDB, then the database.
	log.Info("bioconsole stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses BIOCONSOLE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BIOCONSOLE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInflux connects to InfluxDB when enabled. A nil client with a nil
// error means telemetry export is off.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.Name)
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

// channelSpecs converts configured channels to session channel specs.
func channelSpecs(channels []config.ChannelConfig) []reactor.ChannelSpec {
	specs := make([]reactor.ChannelSpec, 0, len(channels))
	for _, ch := range channels {
		specs = append(specs, reactor.ChannelSpec{
			Name:    reactor.Channel(ch.Name),
			Title:   ch.Title,
			Unit:    ch.Unit,
			Min:     ch.Min,
			Max:     ch.Max,
			Step:    ch.Step,
			Default: ch.Default,
			Integer: ch.Integer,
		})
	}
	return specs
}

// sessionHooks fans session events out to renderers, the audit trail and,
// when configured, InfluxDB.
func sessionHooks(hub *api.Hub, recorder *audit.Recorder, influxClient *influxdb.Client) reactor.Hooks {
	hooks := reactor.Hooks{
		OnChange: hub.BroadcastSnapshot,
		OnSample: hub.BroadcastSample,
		OnCommand: func(cmd reactor.OutboundCommand) {
			recorder.RecordCommand(cmd, auditSourceConsole)
		},
	}
	if influxClient == nil {
		return hooks
	}

	hooks.OnSample = func(sample reactor.TelemetrySample) {
		hub.BroadcastSample(sample)
		influxClient.WriteSample(sample)
	}
	hooks.OnCommand = func(cmd reactor.OutboundCommand) {
		recorder.RecordCommand(cmd, auditSourceConsole)
		influxClient.WriteCommand(cmd)
	}
	return hooks
}

// healthCheck verifies the local infrastructure. The broker is not checked:
// the console runs offline until it becomes reachable.
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

// mqttTransport hands session commands to the MQTT client without waiting
// for the broker acknowledgement.
type mqttTransport struct {
	client *mqtt.Client
}

// Publish implements reactor.Transport.
func (t *mqttTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return t.client.PublishAsync(topic, payload, qos, retained)
}
