package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kartoteka/internal/api"
	"kartoteka/internal/availability"
	"kartoteka/internal/booking"
	"kartoteka/internal/cache"
	"kartoteka/internal/config"
	"kartoteka/internal/db"
	"kartoteka/internal/events"
	"kartoteka/internal/ledger"
	"kartoteka/internal/lock"
	"kartoteka/internal/metrics"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("KARTOTEKA_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && cfg.Logging.Level != "" {
		logger = logger.Level(level)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	database, err := db.Open(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	var services availability.ServiceSource = database
	var catalogCache *cache.Catalog
	if rdb != nil {
		catalogCache = cache.NewCatalog(database, rdb, cfg.CatalogTTL(), &logger)
		services = catalogCache
	}

	var locker booking.Locker = lock.Bounded(lock.NewLocal(), cfg.LockWait())
	if cfg.LockBackend() == config.LockRedis {
		if rdb == nil {
			logger.Fatal().Msg("locking.backend is redis but redis.address is empty")
		}
		locker = lock.NewRedis(rdb, cfg.LockTTL(), cfg.LockWait())
	}
	logger.Info().Str("backend", cfg.LockBackend()).Msg("admission locking configured")

	bus := events.NewEventBus(&logger)
	bus.Subscribe(events.TypeReservationCreated, func(e events.Event) error {
		logger.Debug().Str("event_id", e.ID).RawJSON("payload", e.Payload).Msg("reservation created")
		return nil
	})
	bus.Subscribe(events.TypeReservationCreated, func(e events.Event) error {
		metrics.IncEvent(e.Type)
		return nil
	})
	if cfg.Events.RabbitMQURL != "" {
		forwarder := events.NewForwarder(cfg.Events.RabbitMQURL, cfg.EventsQueue(), &logger)
		defer forwarder.Close()
		bus.Subscribe(events.TypeReservationCreated, forwarder.Handle)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initial load + hot reload of the catalog
	if err := config.WatchCatalog(ctx, cfg.Catalog.Path, cfg.CatalogReloadInterval(), &logger, func(updated *config.Catalog) {
		if err := database.SyncCatalog(ctx, updated); err != nil {
			logger.Error().Err(err).Msg("failed to apply catalog")
			return
		}
		if catalogCache != nil {
			if err := catalogCache.Invalidate(ctx, updated.TenantIDs()...); err != nil {
				logger.Warn().Err(err).Msg("catalog cache invalidation failed")
			}
		}
	}); err != nil {
		logger.Error().Err(err).Msg("catalog watch failed; serving the stored catalog")
	}

	go startHealthServer(ctx, healthPort(cfg), database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Backup.Enabled {
		go startBackupLoop(ctx, database, cfg, &logger)
	}

	rps, burst := cfg.RateLimit()
	server := api.NewHTTPServer(
		api.Options{Port: cfg.HTTPPort(), APIKey: cfg.HTTP.APIKey, RateRPS: rps, RateBurst: burst, Auditor: database},
		availability.NewCalculator(services, database, database, &logger),
		booking.NewService(services, database, locker, bus, &logger),
		ledger.NewService(database, cfg.Ledger.MaxRangeDays, &logger),
		&logger,
	)

	logger.Info().Msg("kartoteka started")
	if err := server.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("http server error")
	}
	logger.Info().Msg("kartoteka stopped")
}

func healthPort(cfg *config.Config) int {
	if cfg.Monitoring.HealthCheckPort == 0 {
		return 8090
	}
	return cfg.Monitoring.HealthCheckPort
}

func startBackupLoop(ctx context.Context, database *db.DB, cfg *config.Config, logger *zerolog.Logger) {
	dir := cfg.BackupPath()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error().Err(err).Msg("failed to create backup directory")
		return
	}

	// Run first backup after a short delay
	select {
	case <-time.After(1 * time.Minute):
		runBackupTask(database, dir, cfg.BackupRetention(), logger)
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(cfg.BackupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runBackupTask(database, dir, cfg.BackupRetention(), logger)
		case <-ctx.Done():
			return
		}
	}
}

func runBackupTask(database *db.DB, dir string, retention time.Duration, logger *zerolog.Logger) {
	timestamp := time.Now().Format("20060102_150405")
	dest := filepath.Join(dir, fmt.Sprintf("kartoteka_%s.db", timestamp))

	logger.Info().Str("path", dest).Msg("starting database backup")
	if err := database.Backup(dest); err != nil {
		logger.Error().Err(err).Msg("backup failed")
	}

	deleted, err := database.CleanupBackups(dir, retention)
	if err != nil {
		logger.Error().Err(err).Msg("backup cleanup failed")
	} else if deleted > 0 {
		logger.Info().Int("deleted", deleted).Msg("cleaned up old backups")
	}
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.Ready(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
