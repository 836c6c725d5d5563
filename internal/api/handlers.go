package api

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/utils"
)

// FromProtoListInsightsRequest maps {tenant_id?, kind?, limit?, history?} into a domain request.
func FromProtoListInsightsRequest(req *structpb.Struct) (models.ListInsightsRequest, error) {
	if req == nil {
		return models.ListInsightsRequest{}, fmt.Errorf("request is nil")
	}
	fields := req.GetFields()
	out := models.ListInsightsRequest{
		TenantID: fields["tenant_id"].GetStringValue(),
		Kind:     models.InsightKind(fields["kind"].GetStringValue()),
	}
	if out.Kind != "" && !knownKind(out.Kind) {
		return models.ListInsightsRequest{}, fmt.Errorf("unknown insight kind %q", out.Kind)
	}
	limit, err := intField(fields, "limit")
	if err != nil {
		return models.ListInsightsRequest{}, err
	}
	out.Limit = limit
	if v, ok := fields["history"]; ok {
		if _, isBool := v.GetKind().(*structpb.Value_BoolValue); !isBool {
			return models.ListInsightsRequest{}, fmt.Errorf("history must be a boolean")
		}
		out.History = v.GetBoolValue()
	}
	return out, nil
}

// FromProtoAnalyzeRequest maps {metric, tenant_id, tags?, window?, horizon?, end?} into a
// domain request. window uses the <digits><s|m|h|d> form; end is RFC3339.
func FromProtoAnalyzeRequest(req *structpb.Struct) (models.AnalyzeRequest, error) {
	if req == nil {
		return models.AnalyzeRequest{}, fmt.Errorf("request is nil")
	}
	fields := req.GetFields()
	metric := fields["metric"].GetStringValue()
	if metric == "" {
		return models.AnalyzeRequest{}, fmt.Errorf("metric is required")
	}

	out := models.AnalyzeRequest{
		Key: models.SeriesKey{
			Metric:   metric,
			TenantID: fields["tenant_id"].GetStringValue(),
		},
	}
	if tags := fields["tags"].GetStructValue(); tags != nil && len(tags.GetFields()) > 0 {
		out.Key.Tags = make(map[string]string, len(tags.GetFields()))
		for name, value := range tags.GetFields() {
			out.Key.Tags[name] = value.GetStringValue()
		}
	}
	if window := fields["window"].GetStringValue(); window != "" {
		d, err := utils.ParseWindow(window)
		if err != nil {
			return models.AnalyzeRequest{}, err
		}
		out.Window = d
	}
	horizon, err := intField(fields, "horizon")
	if err != nil {
		return models.AnalyzeRequest{}, err
	}
	out.Horizon = horizon
	if end := fields["end"].GetStringValue(); end != "" {
		t, err := utils.ParseRFC3339(end)
		if err != nil {
			return models.AnalyzeRequest{}, err
		}
		out.End = t
	}
	return out, nil
}

// ToProtoSnapshot converts a ranked insight set into its Struct form.
func ToProtoSnapshot(snap models.InsightSnapshot) (*structpb.Struct, error) {
	if snap.Insights == nil {
		snap.Insights = []models.Insight{}
	}
	out, err := toStruct(snap)
	if err != nil {
		return nil, err
	}
	out.Fields["count"] = structpb.NewNumberValue(float64(len(snap.Insights)))
	return out, nil
}

// ToProtoAnalyzeResponse converts an on-demand analysis into its Struct form.
func ToProtoAnalyzeResponse(resp models.AnalyzeResponse) (*structpb.Struct, error) {
	return toStruct(resp)
}

// FromProtoSnapshot decodes a snapshot Struct, as returned by ListInsights.
func FromProtoSnapshot(s *structpb.Struct) (models.InsightSnapshot, error) {
	var snap models.InsightSnapshot
	if err := fromStruct(s, &snap); err != nil {
		return models.InsightSnapshot{}, err
	}
	return snap, nil
}

// FromProtoAnalyzeResponse decodes an AnalyzeMetric response Struct.
func FromProtoAnalyzeResponse(s *structpb.Struct) (models.AnalyzeResponse, error) {
	var resp models.AnalyzeResponse
	if err := fromStruct(s, &resp); err != nil {
		return models.AnalyzeResponse{}, err
	}
	return resp, nil
}

// GeneratedAt reads the snapshot timestamp of a ListInsights response.
func GeneratedAt(s *structpb.Struct) (*timestamppb.Timestamp, error) {
	raw := s.GetFields()["generated_at"].GetStringValue()
	if raw == "" {
		return nil, fmt.Errorf("generated_at missing")
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("parse generated_at: %w", err)
	}
	return timestamppb.New(t), nil
}

// toStruct encodes v with its JSON tags so the Struct mirrors the REST shape of the models.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert response: %w", err)
	}
	return out, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return fmt.Errorf("response is nil")
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode struct: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	return nil
}

func intField(fields map[string]*structpb.Value, name string) (int, error) {
	v, ok := fields[name]
	if !ok {
		return 0, nil
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	n := v.GetNumberValue()
	if n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return int(n), nil
}

func knownKind(kind models.InsightKind) bool {
	switch kind {
	case models.InsightTrend, models.InsightAnomaly, models.InsightCapacity,
		models.InsightCorrelation, models.InsightSeasonality:
		return true
	}
	return false
}
