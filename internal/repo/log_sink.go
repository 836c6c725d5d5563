package repo

import (
	"context"
	"log/slog"

	"github.com/miradorstack/mirador-insights/internal/models"
)

// LogSink writes anomalies and insights to the structured log. It backs
// deployments without an insight store.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink writing to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// WriteAnomaly logs the anomaly.
func (s *LogSink) WriteAnomaly(ctx context.Context, a models.AnomalyResult) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "anomaly",
		slog.String("metric", a.Metric),
		slog.String("tenant", a.TenantID),
		slog.String("type", string(a.Type)),
		slog.String("severity", string(a.Severity)),
		slog.Float64("score", a.DeviationScore),
		slog.Time("timestamp", a.Timestamp),
	)
	return nil
}

// WriteInsight logs the insight.
func (s *LogSink) WriteInsight(ctx context.Context, in models.Insight) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "insight",
		slog.String("id", in.ID),
		slog.String("kind", string(in.Kind)),
		slog.String("metric", in.Metric),
		slog.String("tenant", in.TenantID),
		slog.String("title", in.Title),
		slog.Float64("impact", in.Impact),
	)
	return nil
}
