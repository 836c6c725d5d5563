package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/miradorstack/mirador-insights/internal/config"
	"github.com/miradorstack/mirador-insights/internal/models"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type seriesFixture struct {
	step   time.Duration
	value  func(i int) float64
	err    error
	panics bool
}

// fakeStore synthesises samples at a fixed step across the requested window.
type fakeStore struct {
	mu       sync.Mutex
	fixtures map[string]seriesFixture
	calls    map[string]int
}

func newFakeStore(fixtures map[string]seriesFixture) *fakeStore {
	return &fakeStore{fixtures: fixtures, calls: make(map[string]int)}
}

func (f *fakeStore) GetSeries(_ context.Context, key models.SeriesKey, start, end time.Time) (models.TimeSeries, error) {
	f.mu.Lock()
	f.calls[key.Metric]++
	fixture, ok := f.fixtures[key.Metric]
	f.mu.Unlock()

	if !ok {
		return models.NewTimeSeries(key, start, end, nil), nil
	}
	if fixture.panics {
		panic("corrupt series " + key.Metric)
	}
	if fixture.err != nil {
		return models.TimeSeries{}, fixture.err
	}
	step := fixture.step
	if step <= 0 {
		step = time.Minute
	}
	var samples []models.Sample
	for i, ts := 0, start; ts.Before(end); i, ts = i+1, ts.Add(step) {
		samples = append(samples, models.Sample{Timestamp: ts, Value: fixture.value(i)})
	}
	return models.NewTimeSeries(key, start, end, samples), nil
}

type fakeSink struct {
	mu           sync.Mutex
	anomalies    []models.AnomalyResult
	insights     []models.Insight
	err          error
	block        chan struct{}
	stallAnomaly bool
}

func (f *fakeSink) WriteAnomaly(ctx context.Context, a models.AnomalyResult) error {
	if f.stallAnomaly {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anomalies = append(f.anomalies, a)
	return f.err
}

func (f *fakeSink) WriteInsight(_ context.Context, in models.Insight) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insights = append(f.insights, in)
	return f.err
}

func (f *fakeSink) insightCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.insights)
}

var errStoreDown = errors.New("store unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Schedule: config.ScheduleConfig{
			Tick:         time.Hour,
			Sweep:        24 * time.Hour,
			Short:        time.Hour,
			SweepSpan:    7 * 24 * time.Hour,
			CapacitySpan: 30 * 24 * time.Hour,
			Workers:      4,
			TopN:         20,
		},
	}
}

func newTestAggregator(cfg *config.Config, store SeriesStore, publisher *Publisher) *Aggregator {
	agg := NewAggregator(cfg, store, publisher, nil, discardLogger())
	agg.now = func() time.Time { return testNow }
	return agg
}

// spiky alternates around 100 and jumps to 150 at index 30.
func spiky(i int) float64 {
	if i == 30 {
		return 150
	}
	if i%2 == 0 {
		return 99
	}
	return 101
}

func rising(i int) float64 { return 10 + float64(i) }
