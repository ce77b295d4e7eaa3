// ControlNet Core - industrial control network runtime.
//
// This is the main entry point. It loads configuration, builds the control
// network runtime and attaches the optional infrastructure around it: the
// SQLite audit journal, Prometheus metrics, the InfluxDB historian, the MQTT
// and Kafka bridges, and the HTTP/WebSocket API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/controlnet-core/migrations"

	"github.com/nerrad567/controlnet-core/internal/api"
	"github.com/nerrad567/controlnet-core/internal/audit"
	"github.com/nerrad567/controlnet-core/internal/bridge"
	"github.com/nerrad567/controlnet-core/internal/clock"
	"github.com/nerrad567/controlnet-core/internal/historian"
	"github.com/nerrad567/controlnet-core/internal/infrastructure/config"
	"github.com/nerrad567/controlnet-core/internal/infrastructure/database"
	"github.com/nerrad567/controlnet-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/controlnet-core/internal/infrastructure/kafka"
	"github.com/nerrad567/controlnet-core/internal/infrastructure/logging"
	"github.com/nerrad567/controlnet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/controlnet-core/internal/metrics"
	"github.com/nerrad567/controlnet-core/internal/network"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// auditPruneInterval is how often expired audit entries are removed.
const auditPruneInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It blocks until ctx is cancelled and returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting ControlNet Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Control network runtime
	rt, err := network.New(cfg.RuntimeConfig(), clock.System{})
	if err != nil {
		return fmt.Errorf("creating runtime: %w", err)
	}
	rt.SetLogger(log.Component("network"))
	defer func() {
		log.Info("shutting down control network")
		rt.Shutdown()
	}()
	log.Info("control network created",
		"site", cfg.Site.ID,
		"max_nodes", cfg.Network.MaxNodes,
		"rules", len(cfg.Rules),
		"loops", len(cfg.Loops),
	)

	// Audit journal
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
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	auditRepo := audit.NewSQLiteRepository(db.DB)
	journal := audit.NewJournal(auditRepo, audit.DefaultBuffer)
	journal.SetLogger(log.Component("audit"))
	journal.Attach(rt)
	journal.Start()
	if days := cfg.Database.AuditRetentionDays; days > 0 {
		go journal.RunRetention(ctx, time.Duration(days)*24*time.Hour, auditPruneInterval)
	}
	components := map[string]api.StatsFunc{
		"audit": func() any {
			written, dropped, failed := journal.Stats()
			return map[string]uint64{"written": written, "dropped": dropped, "failed": failed}
		},
	}
	defer func() {
		journal.Stop()
		written, dropped, failed := journal.Stats()
		log.Info("audit journal stopped", "written", written, "dropped", dropped, "failed", failed)
	}()

	// Prometheus metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewRuntimeCollector(rt),
	)
	collector, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	collector.Attach(rt)

	// InfluxDB historian (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB, influxdb.WithSiteTag(cfg.Site.ID))
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			stats := influxClient.Stats()
			log.Info("closing InfluxDB connection", "queued", stats.Queued, "failed", stats.Failed)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		components["influxdb"] = func() any { return influxClient.Stats() }
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		hist := historian.New(influxClient, clock.System{})
		hist.Attach(rt)
		go hist.Run(ctx, historian.DefaultFlushInterval)
	}

	// MQTT transport (optional)
	var (
		mqttClient *mqtt.Client
		mqttSink   bridge.MQTTPublisher
		mqttCheck  api.ConnectionChecker
	)
	mqttClient, err = mqtt.Connect(cfg.MQTT, mqtt.WithSite(cfg.Site.ID))
	switch {
	case errors.Is(err, mqtt.ErrDisabled):
		log.Info("MQTT disabled")
	case err != nil:
		return fmt.Errorf("connecting to MQTT: %w", err)
	default:
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", mqttClient.ID(),
		)
		components["mqtt"] = func() any { return mqttClient.Stats() }

		rt.SetRemoteTransport(mqttClient)
		ingress := bridge.NewIngress(rt, byte(cfg.MQTT.QoS)) // #nosec G115 -- QoS validated to 0-2
		ingress.SetLogger(log.Component("ingress"))
		if startErr := ingress.Start(mqttClient); startErr != nil {
			return fmt.Errorf("starting MQTT ingress: %w", startErr)
		}
		components["ingress"] = func() any { return ingress.Stats() }
		mqttSink = mqttClient
		mqttCheck = mqttClient
	}

	// Kafka export (optional)
	var kafkaSink bridge.KafkaPublisher
	producer, err := kafka.NewProducer(cfg.Kafka)
	switch {
	case errors.Is(err, kafka.ErrDisabled):
		log.Info("Kafka export disabled")
	case err != nil:
		return fmt.Errorf("creating Kafka producer: %w", err)
	default:
		defer func() {
			if closeErr := producer.Close(); closeErr != nil {
				log.Error("error closing Kafka producer", "error", closeErr)
			}
		}()
		log.Info("Kafka producer ready", "brokers", cfg.Kafka.Brokers, "topic", producer.Topic())
		kafkaSink = producer
	}

	if mqttSink != nil || kafkaSink != nil {
		exporter, exportErr := bridge.NewExporter(bridge.ExporterConfig{
			QoS: byte(cfg.MQTT.QoS), // #nosec G115 -- QoS validated to 0-2
		}, mqttSink, kafkaSink)
		if exportErr != nil {
			return fmt.Errorf("creating event exporter: %w", exportErr)
		}
		exporter.SetLogger(log.Component("exporter"))
		exporter.Attach(rt)
		exporter.Start()
		components["exporter"] = func() any { return exporter.Stats() }
		defer func() {
			exporter.Stop()
			stats := exporter.Stats()
			log.Info("event exporter stopped",
				"exported", stats.Exported,
				"dropped", stats.Dropped,
				"failed", stats.Failed,
			)
		}()
	}

	// HTTP API
	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log,
			Runtime:     rt,
			MQTT:        mqttCheck,
			AuditRepo:   auditRepo,
			PromHandler: metrics.Handler(reg),
			Components:  components,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if err := rt.Run(ctx); err != nil {
		return fmt.Errorf("running control network: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

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
