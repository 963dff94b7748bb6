// WhatsApp gateway - multi-tenant messaging over linked WhatsApp Web
// sessions.
//
// The gateway owns one automation sidecar per tenant, pairs it via QR,
// keeps it alive only while needed, and exposes send/status/lifecycle
// operations over HTTP for booking and reminder platforms.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maddy52/whatsappweb/internal/api"
	"github.com/maddy52/whatsappweb/internal/audit"
	"github.com/maddy52/whatsappweb/internal/infrastructure/config"
	"github.com/maddy52/whatsappweb/internal/infrastructure/database"
	"github.com/maddy52/whatsappweb/internal/infrastructure/logging"
	"github.com/maddy52/whatsappweb/internal/infrastructure/metrics"
	"github.com/maddy52/whatsappweb/internal/infrastructure/mqtt"
	"github.com/maddy52/whatsappweb/internal/media"
	"github.com/maddy52/whatsappweb/internal/session"
	"github.com/maddy52/whatsappweb/internal/wa"
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

// shutdownTimeout bounds client teardown after the shutdown signal.
const shutdownTimeout = 30 * time.Second

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
	log.Info("starting WhatsApp gateway",
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
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the message history database
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

	// Media staging store and retention sweeper
	store, err := media.NewStore(cfg.Media.Dir, cfg.Media.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("creating media store: %w", err)
	}
	store.SetLogger(log)
	if cfg.Media.Retention > 0 {
		sweeper := media.NewSweeper(store, cfg.Media.Retention, cfg.Media.SweepInterval)
		go sweeper.Run(ctx)
		log.Info("media sweeper started",
			"retention", cfg.Media.Retention,
			"interval", cfg.Media.SweepInterval,
		)
	}

	// Session manager over the sidecar factory
	manager := session.NewManager(session.Config{
		AuthDir:      cfg.Sessions.AuthDir,
		Idle:         cfg.Sessions.Idle,
		ReadyTimeout: cfg.Sessions.ReadyTimeout,
	}, wa.NewFactory(cfg.Bridge, log))
	manager.SetLogger(log)
	manager.SetRecorder(auditRepo)
	log.Info("session manager initialised",
		"auth_dir", cfg.Sessions.AuthDir,
		"idle", cfg.Sessions.Idle,
	)

	checks := map[string]api.HealthChecker{
		"database": db,
	}

	// Optional MQTT lifecycle publishing
	if cfg.MQTT.Enabled {
		publisher, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := publisher.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		manager.OnTransition(func(status session.Status, event string) {
			if err := publisher.PublishTransition(status.TenantID, string(status.Phase), event, status.LastError); err != nil {
				log.Debug("transition publish failed",
					"tenant", status.TenantID,
					"error", err,
				)
			}
		})
		checks["mqtt"] = publisher
	} else {
		log.Info("MQTT disabled")
	}

	// Optional InfluxDB send metrics
	if cfg.Influx.Enabled {
		influx, err := metrics.Connect(cfg.Influx)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		manager.SetMetrics(influx)
		checks["influx"] = influx
		log.Info("InfluxDB connected",
			"url", cfg.Influx.URL,
			"bucket", cfg.Influx.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// HTTP API
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Media:   cfg.Media,
		Logger:  log,
		Manager: manager,
		Store:   store,
		Audit:   auditRepo,
		Checks:  checks,
		Version: version,
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

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, destroying live sessions")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	manager.Shutdown(shutdownCtx)

	log.Info("WhatsApp gateway stopped")
	return nil
}

// getConfigPath returns the configuration file path. Uses the
// WAGATEWAY_CONFIG environment variable if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("WAGATEWAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
