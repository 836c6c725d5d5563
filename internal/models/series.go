package models

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Sample is one observation of a metric.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// SeriesKey identifies a time series. Tags are used for grouping only; their
// order never matters.
type SeriesKey struct {
	Metric   string            `json:"metric" yaml:"metric"`
	TenantID string            `json:"tenant_id" yaml:"tenant"`
	Tags     map[string]string `json:"tags,omitempty" yaml:"tags"`
}

// String renders the key in a canonical form: metric{k=v,...}@tenant.
func (k SeriesKey) String() string {
	return k.Name() + "@" + k.TenantID
}

// Name renders the metric and its tags, sorted by tag name, without the tenant.
func (k SeriesKey) Name() string {
	if len(k.Tags) == 0 {
		return k.Metric
	}
	keys := make([]string, 0, len(k.Tags))
	for name := range k.Tags {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(k.Metric)
	b.WriteByte('{')
	for i, name := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(k.Tags[name])
	}
	b.WriteByte('}')
	return b.String()
}

// TimeSeries is an ascending, duplicate-free sequence of finite samples over [Start, End).
type TimeSeries struct {
	Key     SeriesKey `json:"key"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Samples []Sample  `json:"samples"`
}

// NewTimeSeries builds a TimeSeries from raw samples: non-finite values are dropped,
// samples are ordered by timestamp and only the first sample per timestamp is kept.
// The input slice is not modified.
func NewTimeSeries(key SeriesKey, start, end time.Time, raw []Sample) TimeSeries {
	samples := make([]Sample, 0, len(raw))
	for _, s := range raw {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		samples = append(samples, s)
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	deduped := samples[:0]
	for i, s := range samples {
		if i > 0 && !s.Timestamp.After(deduped[len(deduped)-1].Timestamp) {
			continue
		}
		deduped = append(deduped, s)
	}

	return TimeSeries{Key: key, Start: start, End: end, Samples: deduped}
}

// Len returns the number of samples.
func (ts TimeSeries) Len() int { return len(ts.Samples) }

// Values returns a fresh slice with the sample values.
func (ts TimeSeries) Values() []float64 {
	values := make([]float64, len(ts.Samples))
	for i, s := range ts.Samples {
		values[i] = s.Value
	}
	return values
}

// Last returns the most recent sample.
func (ts TimeSeries) Last() (Sample, bool) {
	if len(ts.Samples) == 0 {
		return Sample{}, false
	}
	return ts.Samples[len(ts.Samples)-1], true
}

// Intervals returns the gaps between consecutive samples.
func (ts TimeSeries) Intervals() []time.Duration {
	if len(ts.Samples) < 2 {
		return nil
	}
	out := make([]time.Duration, 0, len(ts.Samples)-1)
	for i := 1; i < len(ts.Samples); i++ {
		out = append(out, ts.Samples[i].Timestamp.Sub(ts.Samples[i-1].Timestamp))
	}
	return out
}

// MedianInterval returns the median sampling interval, or 0 with fewer than two samples.
func (ts TimeSeries) MedianInterval() time.Duration {
	intervals := ts.Intervals()
	if len(intervals) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), intervals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Tail returns a series view holding the last n samples.
func (ts TimeSeries) Tail(n int) TimeSeries {
	if n >= len(ts.Samples) {
		return ts
	}
	if n < 0 {
		n = 0
	}
	out := ts
	out.Samples = ts.Samples[len(ts.Samples)-n:]
	return out
}
