package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
)

// InsightClient writes anomalies and insights to the insight store HTTP API.
type InsightClient struct {
	endpoint      string
	anomaliesPath string
	insightsPath  string
	apiKey        string
	httpClient    *http.Client
}

// NewInsightClient constructs an insight store client. An empty endpoint turns every
// write into a no-op.
func NewInsightClient(endpoint, anomaliesPath, insightsPath, apiKey string, timeout time.Duration) *InsightClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &InsightClient{
		endpoint:      strings.TrimRight(endpoint, "/"),
		anomaliesPath: "/" + strings.TrimLeft(anomaliesPath, "/"),
		insightsPath:  "/" + strings.TrimLeft(insightsPath, "/"),
		apiKey:        apiKey,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// WriteAnomaly upserts an anomaly keyed by (metric, tenant, timestamp, type).
func (r *InsightClient) WriteAnomaly(ctx context.Context, anomaly models.AnomalyResult) error {
	if r == nil {
		return fmt.Errorf("insight client not initialised")
	}
	payload := map[string]interface{}{
		"key":     anomalyKey(anomaly),
		"anomaly": anomaly,
	}
	if err := r.put(ctx, r.anomaliesPath, payload); err != nil {
		return fmt.Errorf("store anomaly failed: %w", err)
	}
	return nil
}

// WriteInsight upserts an insight keyed by its id.
func (r *InsightClient) WriteInsight(ctx context.Context, insight models.Insight) error {
	if r == nil {
		return fmt.Errorf("insight client not initialised")
	}
	if err := r.put(ctx, r.insightsPath+"/"+insight.ID, insight); err != nil {
		return fmt.Errorf("store insight failed: %w", err)
	}
	return nil
}

func (r *InsightClient) put(ctx context.Context, p string, payload any) error {
	if r.endpoint == "" {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.endpoint+p, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return nil
}

// anomalyKey renders the upsert key of an anomaly.
func anomalyKey(a models.AnomalyResult) string {
	return fmt.Sprintf("%s@%s/%d/%s", a.Metric, a.TenantID, a.Timestamp.UnixMilli(), a.Type)
}
