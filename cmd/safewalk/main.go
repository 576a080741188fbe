// SafeWalk Core - red zone safety monitoring
//
// This is the main entry point for the SafeWalk core service. It watches a
// walker's position against known red zones and, while they are inside one,
// runs accident, keyword and stationary detection and raises SOS alerts to
// the admin console and the walker's emergency contacts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/safewalk-core/migrations"

	"github.com/nerrad567/safewalk-core/internal/alert"
	"github.com/nerrad567/safewalk-core/internal/api"
	"github.com/nerrad567/safewalk-core/internal/audit"
	"github.com/nerrad567/safewalk-core/internal/detector"
	"github.com/nerrad567/safewalk-core/internal/geo"
	"github.com/nerrad567/safewalk-core/internal/identity"
	"github.com/nerrad567/safewalk-core/internal/infrastructure/config"
	"github.com/nerrad567/safewalk-core/internal/infrastructure/database"
	"github.com/nerrad567/safewalk-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/safewalk-core/internal/infrastructure/logging"
	"github.com/nerrad567/safewalk-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/safewalk-core/internal/monitor"
	"github.com/nerrad567/safewalk-core/internal/sensor"
	"github.com/nerrad567/safewalk-core/internal/zone"
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
	log.Info("starting SafeWalk Core",
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

	// Open database
	db, err := database.Open(ctx, database.FromConfig(cfg.Database))
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

	// Red zones: SQLite, optionally fronted by a shared Redis cache
	zoneRepo := zone.NewSQLiteRepository(db.DB)
	zoneRepo.SetLogger(log)
	if cfg.Zones.SeedFile != "" {
		if seedErr := seedZones(ctx, zoneRepo, cfg.Zones.SeedFile, log); seedErr != nil {
			return seedErr
		}
	}

	var zoneSource zone.Repository = zoneRepo
	if cfg.Redis.Enabled {
		var redisClient *redis.Client
		redisClient, err = zone.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := redisClient.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		cache := zone.NewRedisCache(redisClient, zoneRepo, cfg.ZoneCacheTTL())
		cache.SetLogger(log)
		zoneSource = cache
		log.Info("Redis zone cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.ZoneCacheTTL())
	}

	zones := zone.NewRegistry(zoneSource)
	zones.SetLogger(log)

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
	mqttClient.SetLogger(log)
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

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var telemetry monitor.Telemetry
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
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Device permissions and sensor streams
	deviceID := cfg.Sensors.DeviceID
	permissions := sensor.NewPermissions()
	permissions.SetLogger(log)
	if attachErr := permissions.Attach(mqttClient, deviceID); attachErr != nil {
		return fmt.Errorf("attaching permissions: %w", attachErr)
	}

	sensorOpts := sensor.Options{
		Bus:         mqttClient,
		DeviceID:    deviceID,
		Permissions: permissions,
		Logger:      log,
	}
	location := sensor.NewLocationAdapter(sensorOpts, sensor.LocationOptions{
		HighAccuracy: true,
		Timeout:      cfg.LocationTimeout(),
		MaxAge:       cfg.LocationMaxAge(),
	})
	speech := sensor.NewSpeechAdapter(sensorOpts, "", sensor.RestartPolicy{
		Delay:       cfg.SpeechRestartDelay(),
		MaxAttempts: cfg.Sensors.SpeechMaxRestarts,
		OnGiveUp: func(attempts int) {
			log.Warn("speech recognition gave up", "attempts", attempts)
		},
	})

	// Identity and alert dispatch
	session := identity.NewSession(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer)
	adminLog := alert.NewSQLiteAdminSink(db.DB)
	notificationStore := alert.NewSQLiteNotificationStore(db.DB)

	adminSink := alert.NewMultiAdminSink("sqlite", adminLog).
		Add("mqtt", alert.NewBusAdminSink(mqttClient, byte(cfg.MQTT.QoS)))
	adminSink.SetLogger(log)
	if cfg.RabbitMQ.Enabled {
		rabbit, rabbitErr := alert.DialRabbit(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if rabbitErr != nil {
			return fmt.Errorf("connecting to RabbitMQ: %w", rabbitErr)
		}
		defer func() {
			log.Info("closing RabbitMQ connection")
			if closeErr := rabbit.Close(); closeErr != nil {
				log.Error("error closing RabbitMQ", "error", closeErr)
			}
		}()
		adminSink.Add("rabbitmq", rabbit)
		log.Info("RabbitMQ alert fanout enabled", "exchange", cfg.RabbitMQ.Exchange)
	}

	notifier := alert.NewPushNotifier(notificationStore, mqttClient, byte(cfg.MQTT.QoS))
	notifier.SetLogger(log)

	dispatcher, err := alert.NewDispatcher(alert.Deps{
		Admin:         adminSink,
		Directory:     alert.NewSQLiteDirectory(db.DB),
		Notifications: notifier,
		Identity:      session,
	})
	if err != nil {
		return fmt.Errorf("creating alert dispatcher: %w", err)
	}
	dispatcher.SetLogger(log)

	// Monitor and API audit entries share one serial writer; it closes
	// after both, so their last entries are flushed.
	auditRepo := audit.NewWriter(audit.NewSQLiteRepository(db.DB), audit.DefaultQueueSize)
	auditRepo.SetLogger(log)
	if startErr := auditRepo.Start(); startErr != nil {
		return fmt.Errorf("starting audit writer: %w", startErr)
	}
	defer func() {
		auditRepo.Close()
		if n := auditRepo.Dropped(); n > 0 {
			log.Warn("audit entries dropped", "count", n)
		}
	}()

	// The monitor pushes through the hub, so it exists before the API server.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	evaluator, err := newEvaluator(cfg.Safety)
	if err != nil {
		return err
	}

	mon := monitor.New(monitor.Config{
		DeviceID:           deviceID,
		Evaluator:          evaluator,
		StationaryDuration: cfg.StationaryDuration(),
		MovementThreshold:  cfg.Safety.StationaryMovementMeters,
		VoiceTrigger: detector.VoiceTrigger{
			Speed:        cfg.Safety.VoiceTriggerSpeed,
			Acceleration: cfg.Safety.VoiceTriggerAcceleration,
		},
		VibrationPattern: cfg.Safety.VibrationPattern,
	}, monitor.Deps{
		Zones:       zones,
		Location:    location,
		Motion:      sensor.NewMotionAdapter(sensorOpts, cfg.Sensors.MotionGestureRequired),
		Audio:       sensor.NewAudioAdapter(sensorOpts, 0),
		Speech:      speech,
		Permissions: permissions,
		Haptics:     sensor.NewHaptics(sensorOpts),
		Dispatcher:  dispatcher,
		Hub:         hub,
		Bus:         mqttClient,
		Telemetry:   telemetry,
		Audit:       auditRepo,
	})
	mon.SetLogger(log)

	if openErr := mon.Open(ctx); openErr != nil {
		return fmt.Errorf("opening safety monitor: %w", openErr)
	}
	defer func() {
		log.Info("closing safety monitor")
		mon.Close()
	}()
	log.Info("safety monitor ready", "device_id", deviceID)

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Security:      cfg.Security,
		Logger:        log,
		Monitor:       mon,
		Session:       session,
		Permissions:   permissions,
		Zones:         zones,
		Alerts:        adminLog,
		Notifications: notificationStore,
		AuditRepo:     auditRepo,
		MQTT:          mqttClient,
		DB:            db,
		ExternalHub:   hub,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: API server, monitor,
	// RabbitMQ, InfluxDB, MQTT, Redis, database.

	log.Info("SafeWalk Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SAFEWALK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SAFEWALK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newEvaluator builds the zone membership evaluator from the safety config.
func newEvaluator(cfg config.SafetyConfig) (*geo.Evaluator, error) {
	tb, err := geo.ParseTieBreak(cfg.ZoneTieBreak)
	if err != nil {
		return nil, fmt.Errorf("safety.zone_tie_break: %w", err)
	}
	opts := []geo.Option{geo.WithTieBreak(tb)}
	if cfg.ZoneRadiusMeters > 0 {
		opts = append(opts, geo.WithRadius(cfg.ZoneRadiusMeters))
	}
	return geo.NewEvaluator(opts...), nil
}

// seedZones loads the seed file into an empty red_zones table.
func seedZones(ctx context.Context, repo *zone.SQLiteRepository, path string, log *logging.Logger) error {
	seed, err := zone.LoadSeedFile(path)
	if err != nil {
		return fmt.Errorf("loading zone seed: %w", err)
	}
	n, err := zone.Seed(ctx, repo, seed)
	if err != nil {
		return fmt.Errorf("seeding zones: %w", err)
	}
	if n > 0 {
		log.Info("red zones seeded", "path", path, "zones", n)
	}
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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

	return nil
}
