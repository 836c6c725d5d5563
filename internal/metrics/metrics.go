package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels runs and writes that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels runs that failed or were abandoned at their deadline.
	OutcomeError = "error"
	// OutcomeSkipped labels runs another replica holds the lease for.
	OutcomeSkipped = "skipped"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_insights",
			Name:      "runs_total",
			Help:      "Scheduled aggregator runs, partitioned by job and outcome.",
		},
		[]string{"job", "outcome"},
	)

	runDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirador_insights",
			Name:      "run_seconds",
			Help:      "Aggregator run latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"job"},
	)

	analysisFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_insights",
			Name:      "analysis_failures_total",
			Help:      "Per-metric analyses skipped because of fetch errors or panics.",
		},
		[]string{"job"},
	)

	anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_insights",
			Name:      "anomalies_total",
			Help:      "Anomalies detected, partitioned by severity.",
		},
		[]string{"severity"},
	)

	insightsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_insights",
			Name:      "insights_total",
			Help:      "Ranked insights handed to the sink, partitioned by kind.",
		},
		[]string{"kind"},
	)

	sinkWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_insights",
			Name:      "sink_writes_total",
			Help:      "Sink writes, partitioned by record kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	publisherDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_insights",
			Name:      "publisher_dropped_total",
			Help:      "Insights dropped because the publish queue was full.",
		},
	)
)

// Register attaches mirador-insights collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		analysisFailuresTotal,
		anomaliesTotal,
		insightsTotal,
		sinkWritesTotal,
		publisherDropsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a run duration and outcome label for job.
func ObserveRun(job string, duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeSkipped:
	default:
		outcome = OutcomeSuccess
	}
	runsTotal.WithLabelValues(job, outcome).Inc()
	if outcome == OutcomeSkipped {
		return
	}
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.WithLabelValues(job).Observe(duration.Seconds())
}

// ObserveAnalysisFailure counts a skipped per-metric analysis.
func ObserveAnalysisFailure(job string) {
	analysisFailuresTotal.WithLabelValues(job).Inc()
}

// ObserveAnomaly counts a detected anomaly.
func ObserveAnomaly(severity string) {
	anomaliesTotal.WithLabelValues(severity).Inc()
}

// ObserveInsight counts a published insight.
func ObserveInsight(kind string) {
	insightsTotal.WithLabelValues(kind).Inc()
}

// ObserveSinkWrite records the outcome of one sink write.
func ObserveSinkWrite(kind string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	sinkWritesTotal.WithLabelValues(kind, outcome).Inc()
}

// ObservePublisherDrop counts an insight dropped on a full queue.
func ObservePublisherDrop() {
	publisherDropsTotal.Inc()
}
