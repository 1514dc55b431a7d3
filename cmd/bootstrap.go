package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/source-registry/internal/config"
	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/events"
	"github.com/jonesrussell/north-cloud/source-registry/internal/fetcher"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/metrics"
	"github.com/jonesrussell/north-cloud/source-registry/internal/registry"
	"github.com/jonesrussell/north-cloud/source-registry/internal/storage"
)

const defaultConfigPath = "config.yaml"

// app holds the components shared by the scan, serve and export commands.
type app struct {
	cfg       *config.Config
	log       logger.Logger
	logs      *logger.RingBuffer
	metrics   *metrics.Metrics
	db        *sqlx.DB
	store     *storage.SQLStore
	seeds     []domain.Seed
	fetcher   *fetcher.Fetcher
	redis     *redis.Client
	publisher *events.Publisher
	registry  *registry.Service
}

// loadConfig reads --config (or CONFIG_PATH, or ./config.yaml when present).
func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		path = config.GetConfigPath(defaultConfigPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if viper.GetBool("debug") {
		cfg.Debug = true
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (logger.Logger, *logger.RingBuffer, error) {
	buf := logger.NewRingBuffer(cfg.Logging.BufferSize)
	log, err := logger.NewWithBuffer(cfg.Logging, buf)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", serviceName)), buf, nil
}

// newApp opens the database, applies the schema and wires the registry.
// withEvents connects the Redis publisher when redis.enabled is set.
func newApp(ctx context.Context, withEvents bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, logs, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	seeds, err := config.LoadSeeds(cfg.SeedsFile)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err = storage.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		logs:    logs,
		metrics: metrics.New(prometheus.DefaultRegisterer),
		db:      db,
		store:   storage.NewSQLStore(db),
		seeds:   seeds,
	}

	if withEvents && cfg.Redis.Enabled {
		client, redisErr := events.NewClient(cfg.Redis)
		if redisErr != nil {
			log.Warn("Redis unavailable, lifecycle events disabled", logger.Error(redisErr))
		} else {
			a.redis = client
			a.publisher = events.NewPublisher(client, cfg.Redis.Stream, log)
		}
	}

	a.fetcher = fetcher.New(fetcher.Config{
		UserAgent:      cfg.Fetcher.UserAgent,
		RequestTimeout: cfg.Fetcher.Timeout,
		MaxRetries:     cfg.Fetcher.MaxRetries,
		RatePerMinute:  cfg.Fetcher.DefaultRateLimit,
		RobotsCacheTTL: cfg.Fetcher.RobotsCacheTTL,
	}, log.With(logger.String("component", "fetcher")), fetcher.WithMetrics(a.metrics))

	a.registry = registry.NewService(registry.Config{
		Store:            a.store,
		Fetcher:          a.fetcher,
		Seeds:            seeds,
		DefaultRateLimit: cfg.Fetcher.DefaultRateLimit,
		UserAgent:        cfg.Fetcher.UserAgent,
		Publisher:        a.publisher,
		Metrics:          a.metrics,
		Logger:           log,
	})

	log.Debug("Application initialized",
		logger.String("database_driver", cfg.Database.Driver),
		logger.Int("seeds", len(seeds)),
		logger.Bool("events", a.publisher != nil),
	)
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("Failed to close redis client", logger.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn("Failed to close database", logger.Error(err))
	}
	_ = a.log.Sync()
}
