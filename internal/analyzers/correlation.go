package analyzers

import (
	"math"
	"sort"
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/stats"
)

const (
	defaultCorrelationThreshold = 0.3
	defaultMaxLag               = 12
	defaultMaxMetrics           = 20
	defaultGranularity          = 5 * time.Minute
	minOverlap                  = 3
	maxGridBuckets              = 20000
)

// CorrelationConfig tunes the correlation analyzer. MaxMetrics and MaxLag bound the
// O(metrics² × lags × n) cost of a pass.
type CorrelationConfig struct {
	Threshold   float64
	MaxLag      int
	MaxMetrics  int
	Granularity time.Duration
}

// CorrelationAnalyzer computes pairwise, lag-searched Pearson correlation over a metric set.
type CorrelationAnalyzer struct {
	cfg CorrelationConfig
}

// NewCorrelationAnalyzer creates an analyzer, filling unset options with defaults.
func NewCorrelationAnalyzer(cfg CorrelationConfig) *CorrelationAnalyzer {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultCorrelationThreshold
	}
	if cfg.MaxLag < 0 {
		cfg.MaxLag = 0
	}
	if cfg.MaxMetrics <= 1 {
		cfg.MaxMetrics = defaultMaxMetrics
	}
	if cfg.Granularity <= 0 {
		cfg.Granularity = defaultGranularity
	}
	return &CorrelationAnalyzer{cfg: cfg}
}

// MaxMetrics returns the per-pass metric cap.
func (c *CorrelationAnalyzer) MaxMetrics() int { return c.cfg.MaxMetrics }

// LagCorrelation is the best coefficient found for one pair over the lag search.
type LagCorrelation struct {
	Coefficient float64
	Lag         int
	Overlap     int
}

// Analyze correlates every pair of the given series. Series beyond MaxMetrics (in
// canonical key order) are ignored. Only primaries with at least one partner whose
// |coefficient| reaches the threshold are returned.
func (c *CorrelationAnalyzer) Analyze(series []models.TimeSeries) []models.CorrelationResult {
	set := append([]models.TimeSeries(nil), series...)
	sort.SliceStable(set, func(i, j int) bool {
		return set[i].Key.String() < set[j].Key.String()
	})
	if len(set) > c.cfg.MaxMetrics {
		set = set[:c.cfg.MaxMetrics]
	}
	if len(set) < 2 {
		return nil
	}

	grid, granularity := c.align(set)
	partners := make([][]models.CorrelatedMetric, len(set))

	for i := 0; i < len(set); i++ {
		for j := i + 1; j < len(set); j++ {
			best := c.BestLag(grid[i], grid[j])
			if math.Abs(best.Coefficient) < c.cfg.Threshold {
				continue
			}
			partners[i] = append(partners[i], correlated(set[j].Key.Name(), best.Coefficient, best.Lag, granularity))
			partners[j] = append(partners[j], correlated(set[i].Key.Name(), best.Coefficient, -best.Lag, granularity))
		}
	}

	results := make([]models.CorrelationResult, 0, len(set))
	for i, list := range partners {
		if len(list) == 0 {
			continue
		}
		sort.SliceStable(list, func(a, b int) bool {
			return math.Abs(list[a].Coefficient) > math.Abs(list[b].Coefficient)
		})
		results = append(results, models.CorrelationResult{
			PrimaryMetric:     set[i].Key.Name(),
			TenantID:          set[i].Key.TenantID,
			CorrelatedMetrics: list,
		})
	}
	return results
}

// BestLag searches lags in [-MaxLag, MaxLag] pairing a[t] with b[t+lag] and returns the
// lag with the largest |coefficient|; ties keep the smaller |lag|. NaN marks an empty
// bucket and is skipped.
func (c *CorrelationAnalyzer) BestLag(a, b []float64) LagCorrelation {
	best := LagCorrelation{}
	for step := 0; step <= 2*c.cfg.MaxLag; step++ {
		lag := (step + 1) / 2
		if step%2 == 0 {
			lag = -lag
		}
		r, overlap := laggedPearson(a, b, lag)
		if overlap < minOverlap {
			continue
		}
		if best.Overlap == 0 || math.Abs(r) > math.Abs(best.Coefficient)+1e-12 {
			best = LagCorrelation{Coefficient: r, Lag: lag, Overlap: overlap}
		}
	}
	return best
}

func laggedPearson(a, b []float64, lag int) (float64, int) {
	xs := make([]float64, 0, len(a))
	ys := make([]float64, 0, len(a))
	for i := range a {
		j := i + lag
		if j < 0 || j >= len(b) {
			continue
		}
		if math.IsNaN(a[i]) || math.IsNaN(b[j]) {
			continue
		}
		xs = append(xs, a[i])
		ys = append(ys, b[j])
	}
	return stats.Pearson(xs, ys), len(xs)
}

// align resamples every series onto one bucket grid using bucket means. The
// granularity is widened when the window would need more than maxGridBuckets.
func (c *CorrelationAnalyzer) align(set []models.TimeSeries) ([][]float64, time.Duration) {
	var first, last time.Time
	for _, s := range set {
		if s.Len() == 0 {
			continue
		}
		if head := s.Samples[0].Timestamp; first.IsZero() || head.Before(first) {
			first = head
		}
		if tail := s.Samples[s.Len()-1].Timestamp; tail.After(last) {
			last = tail
		}
	}

	granularity := c.cfg.Granularity
	if span := last.Sub(first); span/granularity >= maxGridBuckets {
		granularity = span/(maxGridBuckets-1) + 1
	}
	origin := first.Truncate(granularity)
	size := int(last.Sub(origin)/granularity) + 1

	grid := make([][]float64, len(set))
	for i, s := range set {
		sums := make([]float64, size)
		counts := make([]int, size)
		for _, sample := range s.Samples {
			idx := int(sample.Timestamp.Sub(origin) / granularity)
			if idx < 0 || idx >= size {
				continue
			}
			sums[idx] += sample.Value
			counts[idx]++
		}
		row := make([]float64, size)
		for k := range row {
			if counts[k] == 0 {
				row[k] = math.NaN()
				continue
			}
			row[k] = sums[k] / float64(counts[k])
		}
		grid[i] = row
	}
	return grid, granularity
}

func correlated(metric string, r float64, lag int, granularity time.Duration) models.CorrelatedMetric {
	return models.CorrelatedMetric{
		Metric:       metric,
		Coefficient:  r,
		Significance: math.Abs(r),
		Lag:          lag,
		LagDuration:  time.Duration(lag) * granularity,
	}
}
