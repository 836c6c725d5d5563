package analyzers

import (
	"math"
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/stats"
)

const defaultMinStrength = 0.3

// SeasonalityConfig tunes the seasonality detector.
type SeasonalityConfig struct {
	// MinStrength is the strength a pattern must exceed to be retained.
	MinStrength float64
}

// SeasonalityDetector decomposes a series into hourly, daily and weekly bucket means.
type SeasonalityDetector struct {
	cfg SeasonalityConfig
}

// NewSeasonalityDetector creates a detector, filling unset options with defaults.
func NewSeasonalityDetector(cfg SeasonalityConfig) *SeasonalityDetector {
	if cfg.MinStrength <= 0 {
		cfg.MinStrength = defaultMinStrength
	}
	return &SeasonalityDetector{cfg: cfg}
}

// Periods lists the cycles the detector evaluates.
var Periods = []models.PeriodType{models.PeriodHourly, models.PeriodDaily, models.PeriodWeekly}

// Detect evaluates every period and returns the retained patterns.
func (d *SeasonalityDetector) Detect(series models.TimeSeries) []models.SeasonalPattern {
	var patterns []models.SeasonalPattern
	for _, period := range Periods {
		if pattern, ok := d.DetectPeriod(series, period); ok {
			patterns = append(patterns, pattern)
		}
	}
	return patterns
}

// DetectPeriod buckets series by the slot of the given period. The pattern is
// retained only when the series covers two full periods, at least half of the
// buckets hold data, and strength exceeds MinStrength.
func (d *SeasonalityDetector) DetectPeriod(series models.TimeSeries, period models.PeriodType) (models.SeasonalPattern, bool) {
	pattern := models.SeasonalPattern{
		Metric:     series.Key.Name(),
		TenantID:   series.Key.TenantID,
		PeriodType: period,
	}
	if series.Len() < 2 {
		return pattern, false
	}
	first := series.Samples[0].Timestamp
	last := series.Samples[series.Len()-1].Timestamp
	if last.Sub(first) < 2*periodLength(period) {
		return pattern, false
	}

	size := bucketCount(period)
	grouped := make([][]float64, size)
	for _, s := range series.Samples {
		idx := bucketIndex(period, s.Timestamp)
		grouped[idx] = append(grouped[idx], s.Value)
	}

	values := series.Values()
	total := stats.Variance(values)
	mean := stats.Mean(values)

	populated := 0
	between := 0.0
	buckets := make([]models.SeasonalBucket, 0, size)
	for idx, group := range grouped {
		if len(group) == 0 {
			continue
		}
		populated++
		bucketMean := stats.Mean(group)
		between += float64(len(group)) * (bucketMean - mean) * (bucketMean - mean)
		buckets = append(buckets, models.SeasonalBucket{
			Index:  idx,
			Mean:   bucketMean,
			StdDev: stats.StdDev(group),
			Count:  len(group),
		})
	}
	if populated*2 < size || total == 0 {
		return pattern, false
	}
	between /= float64(len(values))

	pattern.Strength = stats.Clamp(between/total, 0, 1)
	pattern.Buckets = buckets
	pattern.Peaks, pattern.Valleys = extremes(buckets)
	return pattern, pattern.Strength > d.cfg.MinStrength
}

// Predict projects the pattern onto ts: the historical mean of its bucket, plus or
// minus one bucket stddev. ok is false when the bucket never held data.
func Predict(pattern models.SeasonalPattern, ts time.Time) (predicted, lower, upper float64, ok bool) {
	idx := bucketIndex(pattern.PeriodType, ts)
	for _, b := range pattern.Buckets {
		if b.Index == idx {
			return b.Mean, b.Mean - b.StdDev, b.Mean + b.StdDev, true
		}
	}
	return 0, 0, 0, false
}

func extremes(buckets []models.SeasonalBucket) (peaks, valleys []int) {
	if len(buckets) == 0 {
		return nil, nil
	}
	high, low := math.Inf(-1), math.Inf(1)
	for _, b := range buckets {
		high = math.Max(high, b.Mean)
		low = math.Min(low, b.Mean)
	}
	tolerance := 1e-9 * math.Max(1, math.Abs(high))
	for _, b := range buckets {
		if high-b.Mean <= tolerance {
			peaks = append(peaks, b.Index)
		}
		if b.Mean-low <= tolerance {
			valleys = append(valleys, b.Index)
		}
	}
	return peaks, valleys
}

func periodLength(period models.PeriodType) time.Duration {
	switch period {
	case models.PeriodHourly:
		return time.Hour
	case models.PeriodWeekly:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func bucketCount(period models.PeriodType) int {
	switch period {
	case models.PeriodHourly:
		return 12
	case models.PeriodWeekly:
		return 7
	default:
		return 24
	}
}

// bucketIndex maps ts onto its slot: five-minute slot of the hour, hour of the day,
// or day of the week, all in UTC.
func bucketIndex(period models.PeriodType, ts time.Time) int {
	ts = ts.UTC()
	switch period {
	case models.PeriodHourly:
		return ts.Minute() / 5
	case models.PeriodWeekly:
		return int(ts.Weekday())
	default:
		return ts.Hour()
	}
}
