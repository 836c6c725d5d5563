package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-insights/internal/utils"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "insights.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Schedule.Tick)
	assert.Equal(t, 24*time.Hour, cfg.Schedule.Sweep)
	assert.Equal(t, time.Hour, cfg.Schedule.Short)
	assert.Equal(t, 30*24*time.Hour, cfg.Schedule.CapacitySpan)
	assert.Equal(t, 5*time.Minute, cfg.Analysis.GranularityDuration)
	assert.Equal(t, 2.5, cfg.Analysis.AnomalyThreshold)
	assert.Equal(t, 0.3, cfg.Analysis.CorrelationThreshold)
	assert.Equal(t, 90.0, cfg.Analysis.CapacityThreshold)
	assert.Equal(t, BackendHTTP, cfg.Store.Backend)
	assert.Equal(t, BackendLog, cfg.Sink.Backend)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: sqlite
  dsn: "file::memory:"
sink:
  backend: sql
schedule:
  tickInterval: 30s
  workers: 3
metrics:
  - metric: api_latency_ms
    tenant: acme
    tags:
      region: eu
components:
  - name: api
    metrics:
      - metric: api_cpu
        tenant: acme
`)
	t.Setenv("MIRADOR_INSIGHTS_TOP_N", "7")
	t.Setenv("MIRADOR_INSIGHTS_ANOMALY_THRESHOLD", "3.5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Schedule.Tick)
	assert.Equal(t, 3, cfg.Schedule.Workers)
	assert.Equal(t, 7, cfg.Schedule.TopN)
	assert.Equal(t, 3.5, cfg.Analysis.AnomalyThreshold)
	require.Len(t, cfg.Metrics, 1)
	assert.Equal(t, "acme", cfg.Metrics[0].TenantID)
	assert.Equal(t, "eu", cfg.Metrics[0].Tags["region"])
	require.Len(t, cfg.Components, 1)
	assert.Equal(t, "api_cpu", cfg.Components[0].Metrics[0].Metric)
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := writeConfig(t, "schedule:\n  topN: 4\n")
	t.Setenv("MIRADOR_INSIGHTS_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Schedule.TopN)
}

func TestLoadRejectsMalformedWindow(t *testing.T) {
	for _, window := range []string{"5x", "m5", "0s", "", "1.5h"} {
		cfg := defaultConfig()
		cfg.Schedule.TickInterval = window

		err := cfg.Validate()
		require.Error(t, err, "window %q", window)
		assert.True(t, errors.Is(err, utils.ErrInvalidWindow), "window %q: %v", window, err)

		var appErr *utils.AppError
		assert.True(t, errors.As(err, &appErr))
	}
}

func TestValidateEnforcesCorrelationLimits(t *testing.T) {
	cfg := defaultConfig()
	cfg.Analysis.MaxMetrics = MaxCorrelationMetrics + 1
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Analysis.MaxLag = MaxCorrelationLag + 1
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Analysis.MaxLag = MaxCorrelationLag
	cfg.Analysis.MaxMetrics = MaxCorrelationMetrics
	assert.NoError(t, cfg.Validate())
}

func TestValidateBackends(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.Backend = "cassandra"
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Store.Backend = BackendPostgres
	assert.Error(t, cfg.Validate(), "postgres without dsn")

	cfg = defaultConfig()
	cfg.Sink.Backend = BackendSQL
	assert.Error(t, cfg.Validate(), "sql sink needs a sql store")

	cfg = defaultConfig()
	cfg.Sink.Backend = BackendHTTP
	assert.Error(t, cfg.Validate(), "http sink without url")
}

func TestValidateComponents(t *testing.T) {
	cfg := defaultConfig()
	cfg.Components = []ComponentConfig{{Name: "db"}}
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWatcherAppliesAnalysisChanges(t *testing.T) {
	path := writeConfig(t, "analysis:\n  anomalyThreshold: 2.5\n")
	w, err := NewWatcher(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan AnalysisConfig, 16)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(a AnalysisConfig) { applied <- a }) }()

	// An invalid edit is rejected and never applied.
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  maxLag: 500\n"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  anomalyThreshold: 4\n"), 0o600))

	// Writes may surface as several events, some observing a truncated file.
	deadline := time.After(5 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case got := <-applied:
			assert.LessOrEqual(t, got.MaxLag, MaxCorrelationLag)
			if got.AnomalyThreshold == 4.0 {
				assert.Equal(t, 5*time.Minute, got.GranularityDuration)
				reloaded = true
			}
		case <-deadline:
			t.Fatalf("expected reload to be applied")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not stop")
	}
}
