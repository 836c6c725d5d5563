package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
)

// CoreClient reads time series from the metrics store HTTP API.
type CoreClient struct {
	baseURL    string
	seriesPath string
	apiKey     string
	httpClient *http.Client
}

// NewCoreClient constructs a client targeting the configured store instance.
func NewCoreClient(baseURL, seriesPath, apiKey string, timeout time.Duration) *CoreClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CoreClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		seriesPath: seriesPath,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type seriesRequest struct {
	Metric   string            `json:"metric"`
	TenantID string            `json:"tenant_id"`
	Tags     map[string]string `json:"tags,omitempty"`
	Start    string            `json:"start"`
	End      string            `json:"end"`
}

type seriesResponse struct {
	Series []struct {
		Timestamp time.Time `json:"timestamp"`
		Value     float64   `json:"value"`
	} `json:"series"`
}

// GetSeries fetches samples of key in [start, end). A store without data for the key
// answers with an empty series, not an error.
func (c *CoreClient) GetSeries(ctx context.Context, key models.SeriesKey, start, end time.Time) (models.TimeSeries, error) {
	if c == nil {
		return models.TimeSeries{}, fmt.Errorf("series store client not initialised")
	}
	if c.baseURL == "" {
		return models.TimeSeries{}, fmt.Errorf("series store base URL not configured")
	}

	payload := seriesRequest{
		Metric:   key.Metric,
		TenantID: key.TenantID,
		Tags:     key.Tags,
		Start:    start.UTC().Format(time.RFC3339Nano),
		End:      end.UTC().Format(time.RFC3339Nano),
	}

	var response seriesResponse
	status, err := c.postJSON(ctx, c.resolvePath(c.seriesPath), payload, &response)
	if status == http.StatusNotFound {
		return models.NewTimeSeries(key, start, end, nil), nil
	}
	if err != nil {
		return models.TimeSeries{}, fmt.Errorf("series request for %s failed: %w", key, err)
	}

	samples := make([]models.Sample, 0, len(response.Series))
	for _, s := range response.Series {
		if s.Timestamp.Before(start) || !s.Timestamp.Before(end) {
			continue
		}
		samples = append(samples, models.Sample{Timestamp: s.Timestamp.UTC(), Value: s.Value})
	}
	return models.NewTimeSeries(key, start, end, samples), nil
}

func (c *CoreClient) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *CoreClient) postJSON(ctx context.Context, endpoint string, payload, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("store returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
