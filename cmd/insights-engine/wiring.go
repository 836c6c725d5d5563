package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-insights/internal/api"
	"github.com/miradorstack/mirador-insights/internal/cache"
	"github.com/miradorstack/mirador-insights/internal/config"
	"github.com/miradorstack/mirador-insights/internal/engine"
	"github.com/miradorstack/mirador-insights/internal/repo"
	"github.com/miradorstack/mirador-insights/internal/utils"
)

// deps holds everything built from a Config, plus the cleanup for it.
type deps struct {
	cache     cache.Provider
	store     engine.SeriesStore
	sink      engine.InsightSink
	sqlStore  *repo.SQLStore
	publisher *engine.Publisher
	agg       *engine.Aggregator
	checks    map[string]api.ReadinessCheck
	closers   []func() error
}

func newLogger(cfg *config.Config) *slog.Logger {
	return utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON, utils.LogFile{
		Path:       cfg.Logging.File.Path,
		MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
		MaxBackups: cfg.Logging.File.MaxBackups,
		MaxAgeDays: cfg.Logging.File.MaxAgeDays,
		Compress:   cfg.Logging.File.Compress,
	})
}

func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{cache: cache.NoopProvider{}, checks: make(map[string]api.ReadinessCheck)}

	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("redis cache unavailable, using in-process cache", slog.Any("error", err))
			d.cache = cache.NewMemoryProvider()
		} else {
			d.cache = provider
		}
		d.closers = append(d.closers, d.cache.Close)
	} else if cfg.Cache.Enabled {
		d.cache = cache.NewMemoryProvider()
		d.closers = append(d.closers, d.cache.Close)
	}

	var fetcher repo.SeriesFetcher
	switch cfg.Store.Backend {
	case config.BackendHTTP:
		fetcher = repo.NewCoreClient(cfg.Store.BaseURL, cfg.Store.SeriesPath, cfg.Store.APIKey, cfg.Store.Timeout)
	case config.BackendPostgres, config.BackendSQLite:
		driver := repo.DriverPostgres
		if cfg.Store.Backend == config.BackendSQLite {
			driver = repo.DriverSQLite
		}
		store, err := repo.OpenSQLStore(ctx, driver, cfg.Store.DSN, cfg.Store.MaxOpenConns, cfg.Store.Migrate)
		if err != nil {
			d.close(logger)
			return nil, fmt.Errorf("open series store: %w", err)
		}
		d.sqlStore = store
		d.closers = append(d.closers, store.Close)
		d.checks["store"] = store.Ping
		fetcher = store
	default:
		d.close(logger)
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if cfg.Cache.Enabled {
		d.store = repo.NewCachedSeriesStore(fetcher, d.cache, cfg.Cache.SeriesTTL, logger)
	} else {
		d.store = fetcher
	}

	switch cfg.Sink.Backend {
	case config.BackendHTTP:
		d.sink = repo.NewInsightClient(cfg.Sink.BaseURL, cfg.Sink.AnomaliesPath, cfg.Sink.InsightsPath, cfg.Sink.APIKey, cfg.Sink.Timeout)
	case config.BackendSQL:
		d.sink = d.sqlStore
	default:
		d.sink = repo.NewLogSink(logger)
	}

	rules, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		d.close(logger)
		return nil, fmt.Errorf("load rule pack: %w", err)
	}

	d.publisher = engine.NewPublisher(d.sink, cfg.Sink.QueueSize, cfg.Sink.Workers, logger)
	d.agg = engine.NewAggregator(cfg, d.store, d.publisher, rules, logger)
	return d, nil
}

func (d *deps) close(logger *slog.Logger) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.Warn("close dependency", slog.Any("error", err))
		}
	}
	d.closers = nil
}
