package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/miradorstack/mirador-insights/internal/cache"
	"github.com/miradorstack/mirador-insights/internal/config"
	"github.com/miradorstack/mirador-insights/internal/metrics"
	"github.com/miradorstack/mirador-insights/internal/models"
)

// ErrAlreadyStarted is returned by Start on a running engine.
var ErrAlreadyStarted = errors.New("engine already started")

// Engine owns the aggregator schedule: a tick job and a sweep job, each on its own
// ticker so a long sweep never delays ticks. Every run is bounded by a deadline equal
// to its interval; tickers drop fires missed while a run is in flight.
type Engine struct {
	agg       *Aggregator
	publisher *Publisher
	lease     cache.Provider
	schedule  config.ScheduleConfig
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine builds an engine. lease may be nil; it is only consulted when the
// schedule enables leasing.
func NewEngine(agg *Aggregator, publisher *Publisher, lease cache.Provider, schedule config.ScheduleConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if lease == nil {
		lease = cache.NoopProvider{}
	}
	return &Engine{agg: agg, publisher: publisher, lease: lease, schedule: schedule, logger: logger}
}

// Aggregator exposes the aggregator for queries.
func (e *Engine) Aggregator() *Aggregator { return e.agg }

// Start launches the schedule. It returns immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return ErrAlreadyStarted
	}
	if e.schedule.Tick <= 0 || e.schedule.Sweep <= 0 {
		return fmt.Errorf("engine: tick and sweep intervals must be positive")
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(2)
	go e.loop(ctx, JobTick, e.schedule.Tick, e.agg.RunTick)
	go e.loop(ctx, JobSweep, e.schedule.Sweep, e.agg.RunSweep)

	e.logger.Info("insights engine started",
		slog.Duration("tick", e.schedule.Tick),
		slog.Duration("sweep", e.schedule.Sweep),
		slog.Int("metrics", len(e.agg.metrics)),
		slog.Int("components", len(e.agg.components)),
	)
	return nil
}

// Stop cancels the schedule, waits for in-flight runs and drains the publisher.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("engine: waiting for runs: %w", ctx.Err())
	}

	if e.publisher != nil {
		if err := e.publisher.Close(ctx); err != nil {
			return fmt.Errorf("engine: draining publisher: %w", err)
		}
	}
	e.logger.Info("insights engine stopped")
	return nil
}

type runFunc func(ctx context.Context) (models.InsightSnapshot, error)

func (e *Engine) loop(ctx context.Context, job string, interval time.Duration, run runFunc) {
	defer e.wg.Done()

	if e.schedule.RunOnStart {
		e.runOnce(ctx, job, interval, run)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runOnce(ctx, job, interval, run)
		}
	}
}

func (e *Engine) runOnce(ctx context.Context, job string, interval time.Duration, run runFunc) {
	if ctx.Err() != nil {
		return
	}
	if e.schedule.Lease {
		acquired, err := e.acquire(ctx, job, interval)
		if err != nil {
			e.logger.Warn("run lease unavailable, running anyway", slog.String("job", job), slog.Any("error", err))
		} else if !acquired {
			metrics.ObserveRun(job, 0, metrics.OutcomeSkipped)
			e.logger.Debug("run slot held by another replica", slog.String("job", job))
			return
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()

	started := time.Now()
	_, err := run(runCtx)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		e.logger.Warn("run failed", slog.String("job", job), slog.Any("error", err))
	}
	metrics.ObserveRun(job, time.Since(started), outcome)
}

// acquire claims the current schedule slot of job for this replica.
func (e *Engine) acquire(ctx context.Context, job string, interval time.Duration) (bool, error) {
	slot := time.Now().Truncate(interval).Unix()
	key := "insights:lease:" + job + ":" + strconv.FormatInt(slot, 10)
	return e.lease.SetNX(ctx, key, []byte("1"), interval)
}

// WatchConfig applies hot-reloaded analysis settings until ctx is done.
func (e *Engine) WatchConfig(ctx context.Context, w *config.Watcher) error {
	return w.Run(ctx, e.agg.SetAnalysis)
}
