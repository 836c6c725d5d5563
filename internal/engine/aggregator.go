package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-insights/internal/config"
	"github.com/miradorstack/mirador-insights/internal/metrics"
	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/utils"
)

// Job names of the scheduled runs.
const (
	JobTick  = "tick"
	JobSweep = "sweep"
)

// tickAlign is the boundary the tick's short window end is truncated to.
const tickAlign = time.Minute

// SeriesStore defines the time-series read used by the aggregator. Keys without data
// yield an empty series, not an error.
type SeriesStore interface {
	GetSeries(ctx context.Context, key models.SeriesKey, start, end time.Time) (models.TimeSeries, error)
}

// InsightSink describes the best-effort writes of analysis results.
type InsightSink interface {
	WriteAnomaly(ctx context.Context, anomaly models.AnomalyResult) error
	WriteInsight(ctx context.Context, insight models.Insight) error
}

// Aggregator runs the analyzers across the registered metric set and ranks the results.
type Aggregator struct {
	store      SeriesStore
	publisher  *Publisher
	rules      *RuleEngine
	logger     *slog.Logger
	metrics    []models.SeriesKey
	components []config.ComponentConfig
	schedule   config.ScheduleConfig
	now        func() time.Time

	analyzers atomic.Pointer[Analyzers]

	mu      sync.RWMutex
	results map[string]models.InsightSnapshot
}

// NewAggregator wires an aggregator. publisher and rules may be nil; without a
// publisher insights are only kept in memory and anomalies are not written.
func NewAggregator(cfg *config.Config, store SeriesStore, publisher *Publisher, rules *RuleEngine, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		store:      store,
		publisher:  publisher,
		rules:      rules,
		logger:     logger,
		metrics:    append([]models.SeriesKey(nil), cfg.Metrics...),
		components: append([]config.ComponentConfig(nil), cfg.Components...),
		schedule:   cfg.Schedule,
		now:        time.Now,
		results:    make(map[string]models.InsightSnapshot),
	}
	a.analyzers.Store(NewAnalyzers(cfg.Analysis))
	return a
}

// SetAnalysis swaps the analyzer thresholds. Runs already in flight are unaffected.
func (a *Aggregator) SetAnalysis(cfg config.AnalysisConfig) {
	a.analyzers.Store(NewAnalyzers(cfg))
	a.logger.Info("analysis thresholds reloaded",
		slog.Float64("anomaly_threshold", cfg.AnomalyThreshold),
		slog.Float64("correlation_threshold", cfg.CorrelationThreshold),
		slog.Float64("capacity_threshold", cfg.CapacityThreshold),
	)
}

// Analyzers returns the analyzer generation currently in use.
func (a *Aggregator) Analyzers() *Analyzers {
	return a.analyzers.Load()
}

// RunTick analyzes trend and anomalies of every registered metric over the short
// window and the capacity of every tracked component.
func (a *Aggregator) RunTick(ctx context.Context) (models.InsightSnapshot, error) {
	an := a.analyzers.Load()
	now := a.now()
	// Short windows align to the minute so ticks and replicas firing within the
	// same minute share cached series.
	start, end := utils.WindowRange(now, a.schedule.Short, tickAlign)

	perMetric := make([][]models.Insight, len(a.metrics))
	a.forEach(ctx, JobTick, len(a.metrics), func(ctx context.Context, i int) error {
		key := a.metrics[i]
		series, err := a.store.GetSeries(ctx, key, start, end)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", key, err)
		}
		perMetric[i] = a.analyzeMetric(an, series, now)
		return nil
	})

	// Capacity windows align to the hour so repeated runs share cached series.
	capStart, capEnd := utils.WindowRange(now, a.schedule.CapacitySpan, time.Hour)
	perComponent := make([][]models.Insight, len(a.components))
	a.forEach(ctx, JobTick, len(a.components), func(ctx context.Context, i int) error {
		component := a.components[i]
		set := make([]models.TimeSeries, 0, len(component.Metrics))
		names := make([]string, 0, len(component.Metrics))
		for _, key := range component.Metrics {
			series, err := a.store.GetSeries(ctx, key, capStart, capEnd)
			if err != nil {
				return fmt.Errorf("fetch %s for component %s: %w", key, component.Name, err)
			}
			set = append(set, series)
			names = append(names, key.Name())
		}
		result := an.Capacity.Predict(component.Name, set)
		result, extra := a.rules.Apply(result, names)
		if in, ok := capacityInsight(result, an.Capacity.Threshold(), extra, now); ok {
			perComponent[i] = []models.Insight{in}
		}
		return nil
	})

	if err := ctx.Err(); err != nil {
		return models.InsightSnapshot{}, fmt.Errorf("tick abandoned: %w", err)
	}
	return a.finish(JobTick, now, flatten(perMetric, perComponent)), nil
}

// RunSweep correlates the metric set of each tenant and looks for seasonal cycles over
// the sweep window.
func (a *Aggregator) RunSweep(ctx context.Context) (models.InsightSnapshot, error) {
	an := a.analyzers.Load()
	now := a.now()
	start, end := utils.WindowRange(now, a.schedule.SweepSpan, time.Hour)

	fetched := make([]models.TimeSeries, len(a.metrics))
	ok := make([]bool, len(a.metrics))
	seasonal := make([][]models.Insight, len(a.metrics))
	a.forEach(ctx, JobSweep, len(a.metrics), func(ctx context.Context, i int) error {
		key := a.metrics[i]
		series, err := a.store.GetSeries(ctx, key, start, end)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", key, err)
		}
		fetched[i], ok[i] = series, true
		for _, pattern := range an.Seasonality.Detect(series) {
			seasonal[i] = append(seasonal[i], seasonalityInsight(pattern, now))
		}
		return nil
	})
	if err := ctx.Err(); err != nil {
		return models.InsightSnapshot{}, fmt.Errorf("sweep abandoned: %w", err)
	}

	byTenant := make(map[string][]models.TimeSeries)
	for i, series := range fetched {
		if ok[i] {
			byTenant[series.Key.TenantID] = append(byTenant[series.Key.TenantID], series)
		}
	}
	tenants := make([]string, 0, len(byTenant))
	for tenant := range byTenant {
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)

	perTenant := make([][]models.Insight, len(tenants))
	a.forEach(ctx, JobSweep, len(tenants), func(ctx context.Context, i int) error {
		set := byTenant[tenants[i]]
		if len(set) > an.Correlation.MaxMetrics() {
			a.logger.Warn("correlation metric set truncated",
				slog.String("tenant", tenants[i]),
				slog.Int("metrics", len(set)),
				slog.Int("max", an.Correlation.MaxMetrics()),
			)
		}
		for _, result := range an.Correlation.Analyze(set) {
			if in, ok := correlationInsight(result, now); ok {
				perTenant[i] = append(perTenant[i], in)
			}
		}
		return nil
	})

	if err := ctx.Err(); err != nil {
		return models.InsightSnapshot{}, fmt.Errorf("sweep abandoned: %w", err)
	}
	return a.finish(JobSweep, now, flatten(seasonal, perTenant)), nil
}

// Analyze runs trend, anomaly and seasonality analysis for one series on demand.
func (a *Aggregator) Analyze(ctx context.Context, req models.AnalyzeRequest) (models.AnalyzeResponse, error) {
	if req.Key.Metric == "" {
		return models.AnalyzeResponse{}, utils.NewAppError("engine.Analyze", "metric is required", nil)
	}
	an := a.analyzers.Load()
	if req.Window <= 0 {
		req.Window = a.schedule.Short
	}
	if req.Horizon <= 0 {
		req.Horizon = an.Horizon
	}
	if req.End.IsZero() {
		req.End = a.now()
	}
	start, end := utils.WindowRange(req.End, req.Window, 0)

	series, err := a.store.GetSeries(ctx, req.Key, start, end)
	if err != nil {
		return models.AnalyzeResponse{}, fmt.Errorf("fetch %s: %w", req.Key, err)
	}
	anomalies := an.Anomaly.Detect(series)
	if anomalies == nil {
		anomalies = []models.AnomalyResult{}
	}
	return models.AnalyzeResponse{
		Trend:       an.Trend.Analyze(series, req.Horizon),
		Anomalies:   anomalies,
		Seasonality: an.Seasonality.Detect(series),
		SampleCount: series.Len(),
		Start:       start,
		End:         end,
	}, nil
}

// Latest returns the ranked union of the most recent tick and sweep results.
func (a *Aggregator) Latest() models.InsightSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var snap models.InsightSnapshot
	for _, job := range []string{JobTick, JobSweep} {
		r, ok := a.results[job]
		if !ok {
			continue
		}
		if r.GeneratedAt.After(snap.GeneratedAt) {
			snap.GeneratedAt = r.GeneratedAt
		}
		snap.Insights = append(snap.Insights, r.Insights...)
	}
	snap.Insights = Rank(snap.Insights, a.schedule.TopN)
	return snap
}

// ListInsights filters the latest ranked set by tenant and kind.
func (a *Aggregator) ListInsights(req models.ListInsightsRequest) models.InsightSnapshot {
	latest := a.Latest()
	out := models.InsightSnapshot{GeneratedAt: latest.GeneratedAt, Insights: make([]models.Insight, 0, len(latest.Insights))}
	for _, in := range latest.Insights {
		if req.TenantID != "" && in.TenantID != req.TenantID {
			continue
		}
		if req.Kind != "" && in.Kind != req.Kind {
			continue
		}
		out.Insights = append(out.Insights, in)
		if req.Limit > 0 && len(out.Insights) == req.Limit {
			break
		}
	}
	return out
}

// analyzeMetric runs trend and anomaly detection and queues every anomaly for the sink.
func (a *Aggregator) analyzeMetric(an *Analyzers, series models.TimeSeries, now time.Time) []models.Insight {
	var out []models.Insight
	if in, ok := trendInsight(an.Trend.Analyze(series, an.Horizon), now); ok {
		out = append(out, in)
	}
	for _, anomaly := range an.Anomaly.Detect(series) {
		metrics.ObserveAnomaly(string(anomaly.Severity))
		if a.publisher != nil {
			a.publisher.PublishAnomaly(anomaly)
		}
		out = append(out, anomalyInsight(anomaly, an.Anomaly.Threshold(), now))
	}
	return out
}

// forEach runs fn for every index on a worker pool bounded by min(workers, n). A
// failing or panicking item is logged and counted; it never stops the others.
func (a *Aggregator) forEach(ctx context.Context, job string, n int, fn func(ctx context.Context, i int) error) {
	if n == 0 {
		return
	}
	limit := a.schedule.Workers
	if limit <= 0 || limit > n {
		limit = n
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
					a.logger.Error("analysis panicked", slog.String("job", job), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
				}
				if err != nil {
					metrics.ObserveAnalysisFailure(job)
					a.logger.Warn("analysis skipped", slog.String("job", job), slog.Int("item", i), slog.Any("error", err))
				}
			}()
			if ctx.Err() != nil {
				return nil
			}
			return fn(ctx, i)
		})
	}
	_ = g.Wait()
}

// finish ranks a run's insights, records them as the job's latest result and
// publishes them in ranked order.
func (a *Aggregator) finish(job string, now time.Time, insights []models.Insight) models.InsightSnapshot {
	ranked := Rank(insights, a.schedule.TopN)
	snap := models.InsightSnapshot{GeneratedAt: now.UTC(), Insights: ranked}

	a.mu.Lock()
	a.results[job] = snap
	a.mu.Unlock()

	for _, in := range ranked {
		metrics.ObserveInsight(string(in.Kind))
		if a.publisher != nil {
			a.publisher.Publish(in)
		}
	}
	a.logger.Info("run complete", slog.String("job", job), slog.Int("insights", len(ranked)), slog.Int("candidates", len(insights)))
	return snap
}

func flatten(groups ...[][]models.Insight) []models.Insight {
	var out []models.Insight
	for _, group := range groups {
		for _, list := range group {
			out = append(out, list...)
		}
	}
	return out
}
