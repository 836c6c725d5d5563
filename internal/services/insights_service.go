package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-insights/internal/api"
	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/utils"
)

// InsightQuerier serves ranked insights and on-demand analyses.
type InsightQuerier interface {
	ListInsights(req models.ListInsightsRequest) models.InsightSnapshot
	Analyze(ctx context.Context, req models.AnalyzeRequest) (models.AnalyzeResponse, error)
}

// InsightHistory reads insights persisted by earlier runs.
type InsightHistory interface {
	ListInsights(ctx context.Context, req models.ListInsightsRequest) ([]models.Insight, error)
}

// InsightsService implements the gRPC InsightsService.
type InsightsService struct {
	logger    *slog.Logger
	querier   InsightQuerier
	history   InsightHistory
	latencies *utils.LatencyTracker
}

// NewInsightsService constructs the insights service facade. history may be nil,
// in which case history requests are rejected.
func NewInsightsService(logger *slog.Logger, querier InsightQuerier, history InsightHistory) *InsightsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightsService{
		logger:    logger,
		querier:   querier,
		history:   history,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// ListInsights returns the latest ranked insights, filtered by tenant and kind, or
// the stored insights of earlier runs when history is requested.
func (s *InsightsService) ListInsights(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}

	domainReq, err := api.FromProtoListInsightsRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var snap models.InsightSnapshot
	if domainReq.History {
		if snap, err = s.listHistory(ctx, domainReq); err != nil {
			return nil, err
		}
	} else {
		if s.querier == nil {
			return nil, status.Error(codes.FailedPrecondition, "insight engine not configured")
		}
		snap = s.querier.ListInsights(domainReq)
	}

	resp, err := api.ToProtoSnapshot(snap)
	if err != nil {
		s.logger.Error("encode insights failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode insights")
	}
	return resp, nil
}

func (s *InsightsService) listHistory(ctx context.Context, req models.ListInsightsRequest) (models.InsightSnapshot, error) {
	if s.history == nil {
		return models.InsightSnapshot{}, status.Error(codes.FailedPrecondition, "insight history not configured")
	}
	insights, err := s.history.ListInsights(ctx, req)
	if err != nil {
		s.logger.Error("insight history query failed", slog.String("tenant_id", req.TenantID), slog.Any("error", err))
		return models.InsightSnapshot{}, status.Error(codes.Unavailable, "insight history unavailable")
	}
	snap := models.InsightSnapshot{Insights: insights}
	for _, in := range insights {
		if in.CreatedAt.After(snap.GeneratedAt) {
			snap.GeneratedAt = in.CreatedAt
		}
	}
	return snap, nil
}

// AnalyzeMetric runs trend, anomaly and seasonality analysis for one series.
func (s *InsightsService) AnalyzeMetric(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.querier == nil {
		return nil, status.Error(codes.FailedPrecondition, "insight engine not configured")
	}

	domainReq, err := api.FromProtoAnalyzeRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.logger.Debug("AnalyzeMetric called", slog.String("metric", domainReq.Key.Metric), slog.String("tenant_id", domainReq.Key.TenantID))

	start := time.Now()
	result, err := s.querier.Analyze(ctx, domainReq)
	duration := time.Since(start)
	if err != nil {
		var appErr *utils.AppError
		if errors.As(err, &appErr) {
			return nil, status.Error(codes.InvalidArgument, appErr.Error())
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, status.FromContextError(err).Err()
		}
		s.logger.Error("on-demand analysis failed", slog.String("metric", domainReq.Key.Metric), slog.Any("error", err))
		return nil, status.Error(codes.Unavailable, fmt.Sprintf("analysis failed: %v", err))
	}
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("analysis latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	resp, err := api.ToProtoAnalyzeResponse(result)
	if err != nil {
		s.logger.Error("encode analysis failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode analysis")
	}
	return resp, nil
}

// LatencyP95 returns the current p95 on-demand analysis latency.
func (s *InsightsService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
