package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-insights/internal/cache"
	"github.com/miradorstack/mirador-insights/internal/models"
)

// SeriesFetcher is the read side of a time-series store.
type SeriesFetcher interface {
	GetSeries(ctx context.Context, key models.SeriesKey, start, end time.Time) (models.TimeSeries, error)
}

// CachedSeriesStore memoises fetched series in a cache provider. Windows aligned to a
// fixed boundary (capacity runs align to the hour) hit the cache across runs.
type CachedSeriesStore struct {
	next   SeriesFetcher
	cache  cache.Provider
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSeriesStore wraps next. A nil provider disables caching.
func NewCachedSeriesStore(next SeriesFetcher, provider cache.Provider, ttl time.Duration, logger *slog.Logger) *CachedSeriesStore {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSeriesStore{next: next, cache: provider, ttl: ttl, logger: logger}
}

// GetSeries serves from cache when possible. Cache failures fall through to the store.
func (s *CachedSeriesStore) GetSeries(ctx context.Context, key models.SeriesKey, start, end time.Time) (models.TimeSeries, error) {
	cacheKey := seriesCacheKey(key, start, end)
	if s.ttl > 0 {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var samples []models.Sample
			if err := json.Unmarshal(data, &samples); err == nil {
				return models.NewTimeSeries(key, start, end, samples), nil
			}
			s.logger.Debug("discarding undecodable cached series", slog.String("key", cacheKey))
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("series cache read failed", slog.String("key", cacheKey), slog.Any("error", err))
		}
	}

	series, err := s.next.GetSeries(ctx, key, start, end)
	if err != nil {
		return series, err
	}
	if s.ttl > 0 {
		if data, err := json.Marshal(series.Samples); err == nil {
			if err := s.cache.Set(ctx, cacheKey, data, s.ttl); err != nil {
				s.logger.Warn("series cache write failed", slog.String("key", cacheKey), slog.Any("error", err))
			}
		}
	}
	return series, nil
}

func seriesCacheKey(key models.SeriesKey, start, end time.Time) string {
	return fmt.Sprintf("insights:series:%s:%d:%d", key.String(), start.UnixMilli(), end.UnixMilli())
}
