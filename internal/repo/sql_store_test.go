package repo

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-insights/internal/models"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQLStore(context.Background(), DriverSQLite, ":memory:", 0, true)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLStoreSeriesRoundTrip(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	key := models.SeriesKey{Metric: "cpu", TenantID: "tenant-a", Tags: map[string]string{"zone": "a", "host": "h1"}}

	samples := []models.Sample{
		{Timestamp: start.Add(2 * time.Minute), Value: 3},
		{Timestamp: start, Value: 1},
		{Timestamp: start.Add(time.Minute), Value: 2},
		{Timestamp: start.Add(time.Hour), Value: 42},
	}
	require.NoError(t, store.InsertSamples(ctx, key, samples))
	// Upsert replaces the earlier value.
	require.NoError(t, store.InsertSamples(ctx, key, []models.Sample{{Timestamp: start, Value: 10}}))

	// Tag order must not matter.
	lookup := models.SeriesKey{Metric: "cpu", TenantID: "tenant-a", Tags: map[string]string{"host": "h1", "zone": "a"}}
	series, err := store.GetSeries(ctx, lookup, start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 2, 3}, series.Values())
	assert.Equal(t, time.UTC, series.Samples[0].Timestamp.Location())

	other, err := store.GetSeries(ctx, models.SeriesKey{Metric: "cpu", TenantID: "tenant-b"}, start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, other.Len())
}

func TestSQLStoreAnomalyUpsert(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	a := models.AnomalyResult{
		Metric:         "cpu",
		TenantID:       "tenant-a",
		Timestamp:      time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Value:          90,
		ExpectedValue:  50,
		DeviationScore: 2.7,
		Type:           models.AnomalySpike,
		Severity:       models.SeverityMedium,
	}
	require.NoError(t, store.WriteAnomaly(ctx, a))
	a.DeviationScore = 4.2
	a.Severity = models.SeverityCritical
	require.NoError(t, store.WriteAnomaly(ctx, a))

	var (
		count    int
		severity string
	)
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(severity) FROM anomalies`).Scan(&count, &severity))
	assert.Equal(t, 1, count)
	assert.Equal(t, string(models.SeverityCritical), severity)
}

func TestSQLStoreInsights(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	older := models.NewInsight(models.InsightDraft{Kind: models.InsightTrend, Metric: "cpu", TenantID: "tenant-a", Impact: 0.9}, base)
	newer := models.NewInsight(models.InsightDraft{
		Kind:            models.InsightCapacity,
		Metric:          "disk",
		TenantID:        "tenant-a",
		Impact:          0.2,
		Recommendations: []string{"add storage"},
	}, base.Add(time.Minute))
	foreign := models.NewInsight(models.InsightDraft{Kind: models.InsightTrend, Metric: "cpu", TenantID: "tenant-b"}, base)

	for _, in := range []models.Insight{older, newer, foreign} {
		require.NoError(t, store.WriteInsight(ctx, in))
	}
	// Duplicate ids are ignored.
	require.NoError(t, store.WriteInsight(ctx, older))

	got, err := store.ListInsights(ctx, models.ListInsightsRequest{TenantID: "tenant-a", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, []string{"add storage"}, got[0].Recommendations)
	assert.Equal(t, older.ID, got[1].ID)

	limited, err := store.ListInsights(ctx, models.ListInsightsRequest{TenantID: "tenant-a", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	trends, err := store.ListInsights(ctx, models.ListInsightsRequest{Kind: models.InsightTrend})
	require.NoError(t, err)
	require.Len(t, trends, 2)
	for _, in := range trends {
		assert.Equal(t, models.InsightTrend, in.Kind)
	}
}

func TestPlaceholderBinding(t *testing.T) {
	pg := sqlx.NewDb(nil, DriverPostgres)
	assert.Equal(t, "a = $1 AND b = $2", pg.Rebind("a = ? AND b = ?"))

	lite := newTestSQLStore(t)
	assert.Equal(t, "a = ? AND b = ?", lite.db.Rebind("a = ? AND b = ?"))
}

func TestOpenSQLStoreRejectsUnknownDriver(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), "mysql", "", 0, false)
	require.Error(t, err)
}

func TestCanonicalTags(t *testing.T) {
	assert.Equal(t, "{}", canonicalTags(nil))
	assert.Equal(t, `{"a":"1","b":"2"}`, canonicalTags(map[string]string{"b": "2", "a": "1"}))
}
