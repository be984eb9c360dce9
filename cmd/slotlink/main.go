// Slotlink Core - IoT slot ingestion and threshold alerting backend.
//
// Devices publish readings and camera frames over MQTT (or POST them to the
// HTTP API). Each reading is stored against its slot, checked against the
// slot's thresholds and pushed to dashboard clients over WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	_ "github.com/nerrad567/slotlink-core/migrations"

	"github.com/nerrad567/slotlink-core/internal/api"
	"github.com/nerrad567/slotlink-core/internal/audit"
	"github.com/nerrad567/slotlink-core/internal/auth"
	"github.com/nerrad567/slotlink-core/internal/camera"
	"github.com/nerrad567/slotlink-core/internal/control"
	"github.com/nerrad567/slotlink-core/internal/infrastructure/config"
	"github.com/nerrad567/slotlink-core/internal/infrastructure/database"
	"github.com/nerrad567/slotlink-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/slotlink-core/internal/infrastructure/logging"
	"github.com/nerrad567/slotlink-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/slotlink-core/internal/infrastructure/redis"
	"github.com/nerrad567/slotlink-core/internal/listener"
	"github.com/nerrad567/slotlink-core/internal/slot"
	"github.com/nerrad567/slotlink-core/internal/telemetry"
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

const (
	auditQueueSize     = 256
	resetPurgeInterval = 10 * time.Minute
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
// It blocks until ctx is cancelled, then tears everything down in reverse
// order of construction.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Slotlink Core",
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

	// Background workers stop before the database closes.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		bgCancel()
		wg.Wait()
	}()

	// Slot registry
	registry := slot.NewRegistry(slot.NewSQLiteRepository(db.DB), slot.Options{
		MaxSlots:     cfg.Slots.MaxSlots,
		DeletePolicy: slot.DeletePolicy(cfg.Slots.DeletePolicy),
	})
	registry.SetLogger(log.Component("slot"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading slot registry: %w", refreshErr)
	}
	log.Info("slot registry initialised", "slots", registry.Count(), "max_slots", cfg.Slots.MaxSlots)

	// Telemetry
	readings := telemetry.NewSQLiteReadingRepository(db.DB)
	alerts := telemetry.NewSQLiteAlertRepository(db.DB)
	evaluator := telemetry.NewEvaluator(alerts)
	evaluator.SetLogger(log.Component("evaluator"))
	ingestor := telemetry.NewIngestor(registry, readings, evaluator)
	ingestor.SetLogger(log.Component("ingestor"))

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(bgCtx)
	}()
	ingestor.AddMirror(telemetry.NewBroadcastMirror(hub))

	// InfluxDB (optional)
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
		ingestor.AddMirror(telemetry.NewInfluxMirror(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Redis latest-value cache (optional)
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.Connect(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := redisClient.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		ingestor.AddMirror(telemetry.NewCacheMirror(redisClient))
		log.Info("Redis connected", "addr", cfg.Redis.Addr)
	} else {
		log.Info("Redis disabled")
	}

	// Camera frames
	images := camera.NewStore(db.DB, registry, cfg.Slots.MaxImageSize)
	images.SetLogger(log.Component("camera"))

	// MQTT. The API keeps serving without a broker; commands then fail with
	// a transport error until the process is restarted against a live one.
	mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
	if mqttErr != nil {
		log.Warn("MQTT unavailable, continuing without broker",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"error", mqttErr,
		)
	} else {
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
			"broker", mqttClient.BrokerURL(),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	topics := mqtt.NewTopics(cfg.MQTT.Topics)
	qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated to 0..2

	var publisher control.Publisher
	if mqttClient != nil {
		publisher = mqttClient
	}
	dispatcher := control.NewDispatcher(registry, publisher, ingestor, control.Options{
		Topic: topics.Control(),
		QoS:   qos,
	})
	dispatcher.SetLogger(log.Component("control"))

	var inbound *listener.Listener
	if mqttClient != nil {
		inbound = listener.New(listener.Deps{
			Transport:   mqttClient,
			Topics:      topics,
			QoS:         qos,
			Ingestor:    ingestor,
			Images:      images,
			Broadcaster: hub,
			Logger:      log.Component("listener"),
		})
		if startErr := inbound.Start(bgCtx); startErr != nil {
			return fmt.Errorf("starting listener: %w", startErr)
		}
		defer inbound.Stop()
	}

	// Accounts
	users := auth.NewUserRepository(db.DB)
	pw := cfg.Security.Password
	policy := auth.PasswordPolicy{
		MinLength:  pw.MinLength,
		Iterations: pw.Argon2.Iterations,
		MemoryKiB:  pw.Argon2.MemoryKiB,
		Threads:    pw.Argon2.Threads,
	}
	authSvc := auth.NewService(users, auth.NewResetCodeRepository(db.DB), auth.ServiceConfig{
		JWTSecret:      cfg.Security.JWT.Secret,
		AccessTokenTTL: cfg.Security.JWT.AccessTokenTTL,
		ResetCodeTTL:   time.Duration(cfg.Security.ResetCodeTTL) * time.Minute,
		Password:       policy,
	})
	if _, seedErr := auth.SeedAdmin(ctx, users, cfg.Security.AdminSeed.Email, cfg.Security.AdminSeed.Password, policy, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		purgeResetCodes(bgCtx, authSvc, resetPurgeInterval, log)
	}()

	// Audit trail
	auditRepo := audit.NewSQLiteRepository(db.DB)
	auditWriter := audit.NewWriter(auditRepo, auditQueueSize, log.Component("audit"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		auditWriter.Run(bgCtx)
	}()

	deps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Broker:     cfg.MQTT.Broker,
		Logger:     log.Component("api"),
		Registry:   registry,
		Readings:   readings,
		Alerts:     alerts,
		Ingestor:   ingestor,
		Images:     images,
		Dispatcher: dispatcher,
		Auth:       authSvc,
		Users:      users,
		AuditRepo:  auditRepo,
		Audit:      auditWriter,
		DB:         db,

		ExternalHub: hub,
		Version:     version,
		DataDir:     filepath.Dir(cfg.Database.Path),
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if inbound != nil {
		deps.Listener = inbound
	}
	if redisClient != nil {
		deps.LatestCache = redisClient
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient, redisClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// API server, listener, MQTT, Redis, InfluxDB, background workers, database.

	log.Info("Slotlink Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SLOTLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SLOTLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the database and every connected optional service.
// A nil client means the service is disabled or unavailable and is skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, redisClient *redis.Client) error {
	if db == nil {
		return errors.New("database: not open")
	}
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

	if redisClient != nil {
		if err := redisClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	return nil
}

// codePurger removes expired password reset codes. *auth.Service satisfies it.
type codePurger interface {
	PurgeExpiredCodes(ctx context.Context) (int64, error)
}

// purgeResetCodes deletes expired reset codes until ctx is cancelled.
func purgeResetCodes(ctx context.Context, purger codePurger, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purger.PurgeExpiredCodes(ctx)
			if err != nil {
				log.Warn("purging reset codes failed", "error", err)
				continue
			}
			if n > 0 {
				log.Debug("expired reset codes purged", "count", n)
			}
		}
	}
}
