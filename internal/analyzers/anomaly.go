package analyzers

import (
	"math"
	"sort"
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/stats"
)

const (
	minAnomalySamples = 3
	minDriftSamples   = 12
	defaultThreshold  = 2.5
	defaultGapFactor  = 2.0
)

// AnomalyConfig tunes the anomaly detector.
type AnomalyConfig struct {
	// Threshold is the deviation score a sample must exceed to be reported.
	Threshold float64
	// GapFactor is how many expected intervals may pass before a gap counts as missing data.
	GapFactor float64
	// ExpectedInterval overrides the median sampling interval when set.
	ExpectedInterval time.Duration
}

// AnomalyDetector scores samples against a baseline built from the rest of the window.
type AnomalyDetector struct {
	cfg AnomalyConfig
}

// NewAnomalyDetector creates a detector, filling unset options with defaults.
func NewAnomalyDetector(cfg AnomalyConfig) *AnomalyDetector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.GapFactor <= 1 {
		cfg.GapFactor = defaultGapFactor
	}
	return &AnomalyDetector{cfg: cfg}
}

// Threshold returns the effective deviation threshold.
func (d *AnomalyDetector) Threshold() float64 { return d.cfg.Threshold }

// Detect returns spikes, dips, level drift and missing-data gaps found in series,
// ordered by deviation score, highest first.
func (d *AnomalyDetector) Detect(series models.TimeSeries) []models.AnomalyResult {
	if series.Len() < minAnomalySamples {
		return nil
	}

	values := series.Values()
	anomalies := d.scorePoints(series, values)
	if drift, ok := d.detectDrift(series, values); ok {
		anomalies = append(anomalies, drift)
	}
	anomalies = append(anomalies, d.detectGaps(series, stats.Mean(values))...)

	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].DeviationScore > anomalies[j].DeviationScore
	})
	return anomalies
}

// scorePoints compares every sample with the mean and stddev of all other samples,
// so a single outlier cannot inflate its own baseline.
func (d *AnomalyDetector) scorePoints(series models.TimeSeries, values []float64) []models.AnomalyResult {
	n := float64(len(values))
	mean := stats.Mean(values)

	var sum, sumSq float64
	for _, v := range values {
		dev := v - mean
		sum += dev
		sumSq += dev * dev
	}

	anomalies := make([]models.AnomalyResult, 0)
	for i, v := range values {
		dev := v - mean
		restMean := (sum - dev) / (n - 1)
		restVar := (sumSq-dev*dev)/(n-1) - restMean*restMean
		if restVar < 0 {
			restVar = 0
		}
		baseline := mean + restMean
		stddev := math.Sqrt(restVar)
		if negligible(stddev, baseline) {
			continue
		}

		score := math.Abs(v-baseline) / stddev
		if score <= d.cfg.Threshold {
			continue
		}
		kind := models.AnomalySpike
		if v < baseline {
			kind = models.AnomalyDip
		}
		anomalies = append(anomalies, d.result(series, series.Samples[i].Timestamp, v, baseline, score, kind))
	}
	return anomalies
}

// detectDrift checks whether the trailing quarter of the window has settled at a
// level the leading part would consider anomalous.
func (d *AnomalyDetector) detectDrift(series models.TimeSeries, values []float64) (models.AnomalyResult, bool) {
	if len(values) < minDriftSamples {
		return models.AnomalyResult{}, false
	}
	split := len(values) - len(values)/4
	lead := values[:split]
	leadMean := stats.Mean(lead)
	leadStd := stats.StdDev(lead)
	if negligible(leadStd, leadMean) {
		return models.AnomalyResult{}, false
	}

	level := stats.Median(values[split:])
	score := math.Abs(level-leadMean) / leadStd
	if score <= d.cfg.Threshold {
		return models.AnomalyResult{}, false
	}
	return d.result(series, series.Samples[split].Timestamp, level, leadMean, score, models.AnomalyDrift), true
}

// detectGaps reports runs of expected-but-absent samples, including a silent tail
// between the last sample and the end of the window.
func (d *AnomalyDetector) detectGaps(series models.TimeSeries, mean float64) []models.AnomalyResult {
	interval := d.cfg.ExpectedInterval
	if interval <= 0 {
		interval = series.MedianInterval()
	}
	if interval <= 0 {
		return nil
	}
	limit := time.Duration(float64(interval) * d.cfg.GapFactor)

	var gaps []models.AnomalyResult
	report := func(from time.Time, gap time.Duration) {
		score := float64(gap) / float64(interval)
		gaps = append(gaps, d.result(series, from.Add(interval), 0, mean, score, models.AnomalyMissing))
	}

	samples := series.Samples
	for i := 1; i < len(samples); i++ {
		if gap := samples[i].Timestamp.Sub(samples[i-1].Timestamp); gap > limit {
			report(samples[i-1].Timestamp, gap)
		}
	}
	last := samples[len(samples)-1].Timestamp
	if !series.End.IsZero() {
		if gap := series.End.Sub(last); gap > limit {
			report(last, gap)
		}
	}
	return gaps
}

func (d *AnomalyDetector) result(series models.TimeSeries, ts time.Time, value, expected, score float64, kind models.AnomalyType) models.AnomalyResult {
	return models.AnomalyResult{
		Metric:         series.Key.Name(),
		TenantID:       series.Key.TenantID,
		Timestamp:      ts,
		Value:          value,
		ExpectedValue:  expected,
		DeviationScore: score,
		Type:           kind,
		Severity:       SeverityForScore(score),
	}
}
