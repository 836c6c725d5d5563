package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-insights/internal/cache"
	"github.com/miradorstack/mirador-insights/internal/config"
	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/repo"
)

func kinds(insights []models.Insight) map[string][]models.InsightKind {
	out := make(map[string][]models.InsightKind)
	for _, in := range insights {
		out[in.Metric] = append(out[in.Metric], in.Kind)
	}
	return out
}

func TestRunTickIsolatesFailingMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics = []models.SeriesKey{
		{Metric: "cpu", TenantID: "tenant-a"},
		{Metric: "broken", TenantID: "tenant-a"},
		{Metric: "corrupt", TenantID: "tenant-a"},
		{Metric: "mem", TenantID: "tenant-a"},
	}
	store := newFakeStore(map[string]seriesFixture{
		"cpu":     {value: spiky},
		"mem":     {value: rising},
		"broken":  {err: errStoreDown},
		"corrupt": {panics: true},
	})
	sink := &fakeSink{}
	publisher := NewPublisher(sink, 16, 1, discardLogger())
	agg := newTestAggregator(cfg, store, publisher)

	snap, err := agg.RunTick(context.Background())
	require.NoError(t, err)
	require.NoError(t, publisher.Close(context.Background()))
	assert.Equal(t, testNow, snap.GeneratedAt)

	byMetric := kinds(snap.Insights)
	assert.Contains(t, byMetric["cpu"], models.InsightAnomaly)
	assert.Contains(t, byMetric["mem"], models.InsightTrend)
	assert.NotContains(t, byMetric, "broken")
	assert.NotContains(t, byMetric, "corrupt")

	require.Len(t, sink.anomalies, 1)
	spike := sink.anomalies[0]
	assert.Equal(t, models.AnomalySpike, spike.Type)
	assert.Equal(t, models.SeverityCritical, spike.Severity)
	assert.Equal(t, 150.0, spike.Value)
	assert.Equal(t, testNow.Add(-30*time.Minute), spike.Timestamp)
}

func TestRunTickRanksAndTruncates(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule.TopN = 2
	fixtures := map[string]seriesFixture{}
	for _, name := range []string{"m1", "m2", "m3", "m4"} {
		cfg.Metrics = append(cfg.Metrics, models.SeriesKey{Metric: name, TenantID: "tenant-a"})
		fixtures[name] = seriesFixture{value: spiky}
	}
	cfg.Metrics = append(cfg.Metrics, models.SeriesKey{Metric: "mem", TenantID: "tenant-a"})
	fixtures["mem"] = seriesFixture{value: rising}

	agg := newTestAggregator(cfg, newFakeStore(fixtures), nil)
	snap, err := agg.RunTick(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Insights, 2)
	assert.GreaterOrEqual(t, snap.Insights[0].Impact, snap.Insights[1].Impact)
}

func TestRunTickPublishesRankedInsights(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics = []models.SeriesKey{{Metric: "cpu", TenantID: "tenant-a"}, {Metric: "mem", TenantID: "tenant-a"}}
	sink := &fakeSink{}
	publisher := NewPublisher(sink, 16, 1, discardLogger())
	agg := newTestAggregator(cfg, newFakeStore(map[string]seriesFixture{
		"cpu": {value: spiky},
		"mem": {value: rising},
	}), publisher)

	snap, err := agg.RunTick(context.Background())
	require.NoError(t, err)
	require.NoError(t, publisher.Close(context.Background()))

	require.Len(t, sink.insights, len(snap.Insights))
	for i := range snap.Insights {
		assert.Equal(t, snap.Insights[i].ID, sink.insights[i].ID)
	}
}

func TestRunTickCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.Components = []config.ComponentConfig{{
		Name:    "db",
		Metrics: []models.SeriesKey{{Metric: "disk_pct", TenantID: "tenant-a"}},
	}}
	store := newFakeStore(map[string]seriesFixture{
		// 1.2 points per day, ending near 86%.
		"disk_pct": {step: time.Hour, value: func(i int) float64 { return 50 + 0.05*float64(i) }},
	})
	agg := newTestAggregator(cfg, store, nil)

	snap, err := agg.RunTick(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Insights, 1)

	in := snap.Insights[0]
	assert.Equal(t, models.InsightCapacity, in.Kind)
	assert.Equal(t, "db", in.Metric)
	assert.Equal(t, models.SeverityCritical, in.Severity)
	require.NotNil(t, in.Capacity)
	assert.InDelta(t, 1.2, in.Capacity.GrowthPerDay, 1e-6)
	assert.True(t, in.Capacity.HasCrossing)
}

func TestRunSweepCorrelatesPerTenant(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics = []models.SeriesKey{
		{Metric: "requests", TenantID: "tenant-a"},
		{Metric: "latency", TenantID: "tenant-a"},
		{Metric: "requests", TenantID: "tenant-b"},
	}
	hourOfDay := func(i int) float64 { return float64(i % 24) }
	store := newFakeStore(map[string]seriesFixture{
		"requests": {step: time.Hour, value: hourOfDay},
		"latency":  {step: time.Hour, value: func(i int) float64 { return 2*hourOfDay(i) + 1 }},
	})
	agg := newTestAggregator(cfg, store, nil)

	snap, err := agg.RunSweep(context.Background())
	require.NoError(t, err)

	var correlations, seasonal int
	for _, in := range snap.Insights {
		switch in.Kind {
		case models.InsightCorrelation:
			correlations++
			assert.Equal(t, "tenant-a", in.TenantID)
			require.NotNil(t, in.Correlation)
			assert.InDelta(t, 1.0, in.Correlation.CorrelatedMetrics[0].Coefficient, 1e-9)
			assert.Equal(t, 0, in.Correlation.CorrelatedMetrics[0].Lag)
		case models.InsightSeasonality:
			seasonal++
			assert.Equal(t, models.PeriodDaily, in.Seasonality.PeriodType)
		}
	}
	assert.Equal(t, 2, correlations)
	assert.Equal(t, 3, seasonal)
}

func TestLatestMergesJobsAndFilters(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics = []models.SeriesKey{{Metric: "cpu", TenantID: "tenant-a"}, {Metric: "mem", TenantID: "tenant-b"}}
	agg := newTestAggregator(cfg, newFakeStore(map[string]seriesFixture{
		"cpu": {value: spiky},
		"mem": {value: rising},
	}), nil)

	assert.Empty(t, agg.Latest().Insights)
	_, err := agg.RunTick(context.Background())
	require.NoError(t, err)

	all := agg.Latest()
	require.NotEmpty(t, all.Insights)

	onlyB := agg.ListInsights(models.ListInsightsRequest{TenantID: "tenant-b"})
	require.NotEmpty(t, onlyB.Insights)
	for _, in := range onlyB.Insights {
		assert.Equal(t, "tenant-b", in.TenantID)
	}

	anomalies := agg.ListInsights(models.ListInsightsRequest{Kind: models.InsightAnomaly, Limit: 1})
	require.Len(t, anomalies.Insights, 1)
	assert.Equal(t, "cpu", anomalies.Insights[0].Metric)
}

func TestAnalyzeOnDemand(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.ForecastHorizon = 5
	agg := newTestAggregator(cfg, newFakeStore(map[string]seriesFixture{"mem": {value: rising}}), nil)

	resp, err := agg.Analyze(context.Background(), models.AnalyzeRequest{Key: models.SeriesKey{Metric: "mem", TenantID: "tenant-a"}})
	require.NoError(t, err)
	assert.Equal(t, 60, resp.SampleCount)
	assert.Equal(t, models.DirectionIncreasing, resp.Trend.Direction)
	assert.Len(t, resp.Trend.Forecast, 5)
	assert.Equal(t, testNow.Add(-time.Hour), resp.Start)
	assert.NotNil(t, resp.Anomalies)

	_, err = agg.Analyze(context.Background(), models.AnalyzeRequest{})
	require.Error(t, err)

	_, err = agg.Analyze(context.Background(), models.AnalyzeRequest{Key: models.SeriesKey{Metric: "mem"}, Window: 10 * time.Minute, Horizon: 2})
	require.NoError(t, err)
}

func TestSetAnalysisSwapsThresholds(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics = []models.SeriesKey{{Metric: "cpu", TenantID: "tenant-a"}}
	sink := &fakeSink{}
	publisher := NewPublisher(sink, 16, 1, discardLogger())
	agg := newTestAggregator(cfg, newFakeStore(map[string]seriesFixture{"cpu": {value: spiky}}), publisher)

	agg.SetAnalysis(config.AnalysisConfig{AnomalyThreshold: 100})
	assert.Equal(t, 100.0, agg.Analyzers().Anomaly.Threshold())

	_, err := agg.RunTick(context.Background())
	require.NoError(t, err)
	require.NoError(t, publisher.Close(context.Background()))
	assert.Empty(t, sink.anomalies)
}

func TestRunTickAbandonedOnDeadline(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics = []models.SeriesKey{{Metric: "cpu"}}
	agg := newTestAggregator(cfg, newFakeStore(nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := agg.RunTick(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunTickDoesNotWaitForStalledAnomalySink(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics = []models.SeriesKey{{Metric: "cpu", TenantID: "tenant-a"}, {Metric: "mem", TenantID: "tenant-a"}}
	sink := &fakeSink{stallAnomaly: true}
	publisher := NewPublisher(sink, 16, 1, discardLogger())
	publisher.writeTimeout = 20 * time.Millisecond
	agg := newTestAggregator(cfg, newFakeStore(map[string]seriesFixture{
		"cpu": {value: spiky},
		"mem": {value: rising},
	}), publisher)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	started := time.Now()
	snap, err := agg.RunTick(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 250*time.Millisecond)

	byMetric := kinds(snap.Insights)
	assert.Contains(t, byMetric["cpu"], models.InsightAnomaly)
	assert.Contains(t, byMetric["mem"], models.InsightTrend)
	assert.NotEmpty(t, agg.Latest().Insights)

	require.NoError(t, publisher.Close(context.Background()))
}

func TestRunTickWindowsShareCacheWithinMinute(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics = []models.SeriesKey{{Metric: "cpu", TenantID: "tenant-a"}, {Metric: "mem", TenantID: "tenant-a"}}
	backing := newFakeStore(map[string]seriesFixture{
		"cpu": {value: spiky},
		"mem": {value: rising},
	})
	provider := cache.NewMemoryProvider()
	t.Cleanup(func() { provider.Close() })
	agg := newTestAggregator(cfg, repo.NewCachedSeriesStore(backing, provider, time.Minute, discardLogger()), nil)

	for _, offset := range []time.Duration{5 * time.Second, 40 * time.Second} {
		at := testNow.Add(offset)
		agg.now = func() time.Time { return at }
		snap, err := agg.RunTick(context.Background())
		require.NoError(t, err)
		assert.Contains(t, kinds(snap.Insights)["cpu"], models.InsightAnomaly)
	}
	assert.Equal(t, 1, backing.calls["cpu"])
	assert.Equal(t, 1, backing.calls["mem"])

	next := testNow.Add(time.Minute + 5*time.Second)
	agg.now = func() time.Time { return next }
	_, err := agg.RunTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls["cpu"])
}
