package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-insights/internal/api"
	"github.com/miradorstack/mirador-insights/internal/config"
	"github.com/miradorstack/mirador-insights/internal/engine"
	"github.com/miradorstack/mirador-insights/internal/metrics"
	"github.com/miradorstack/mirador-insights/internal/services"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled aggregator with the gRPC and admin endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func serve(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("starting mirador-insights",
		slog.String("address", cfg.Server.Address),
		slog.String("store", cfg.Store.Backend),
		slog.String("sink", cfg.Sink.Backend),
		slog.Int("metrics", len(cfg.Metrics)),
		slog.Int("components", len(cfg.Components)),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close(logger)

	lease := d.cache
	if !cfg.Schedule.Lease {
		lease = nil
	}
	eng := engine.NewEngine(d.agg, d.publisher, lease, cfg.Schedule, logger)

	// Only the SQL sink persists insights, so only it can answer history queries.
	var history services.InsightHistory
	if cfg.Sink.Backend == config.BackendSQL && d.sqlStore != nil {
		history = d.sqlStore
	}
	server, err := api.NewServer(cfg.Server, services.NewInsightsService(logger, d.agg, history))
	if err != nil {
		_ = d.publisher.Close(context.Background())
		return fmt.Errorf("create gRPC server: %w", err)
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, logger)
		if err != nil {
			logger.Warn("config hot reload disabled", slog.Any("error", err))
		} else {
			go func() {
				if err := eng.WatchConfig(ctx, watcher); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("config watcher exited", slog.Any("error", err))
				}
			}()
		}
	}

	var adminServer *http.Server
	if cfg.Server.AdminAddress != "" {
		adminServer = &http.Server{
			Addr:         cfg.Server.AdminAddress,
			Handler:      api.NewAdminRouter(prometheus.DefaultGatherer, d.checks),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("admin server listening", slog.String("address", cfg.Server.AdminAddress))
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	if err := eng.Start(ctx); err != nil {
		stop()
		return fmt.Errorf("start engine: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("admin server shutdown", slog.Any("error", err))
		}
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Warn("engine shutdown", slog.Any("error", err))
	}

	logger.Info("mirador-insights stopped")
	return nil
}
