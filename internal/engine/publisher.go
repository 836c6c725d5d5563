package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/miradorstack/mirador-insights/internal/metrics"
	"github.com/miradorstack/mirador-insights/internal/models"
)

const (
	defaultQueueSize    = 256
	defaultPublishers   = 2
	defaultWriteTimeout = 10 * time.Second
)

// Publisher hands insights and anomalies to the sink asynchronously through one
// bounded queue. Publish and PublishAnomaly never block: on a full queue the record
// is dropped, logged and counted.
type Publisher struct {
	sink         InsightSink
	queue        chan publication
	logger       *slog.Logger
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// publication is one queued write; exactly one of insight or anomaly is set.
type publication struct {
	insight *models.Insight
	anomaly *models.AnomalyResult
}

// NewPublisher starts workers goroutines draining a queue of queueSize records.
func NewPublisher(sink InsightSink, queueSize, workers int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if workers <= 0 {
		workers = defaultPublishers
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		sink:         sink,
		queue:        make(chan publication, queueSize),
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// Publish enqueues an insight and reports whether it was accepted.
func (p *Publisher) Publish(in models.Insight) bool {
	if p.enqueue(publication{insight: &in}) {
		return true
	}
	p.logger.Warn("publish queue full, dropping insight",
		slog.String("id", in.ID),
		slog.String("kind", string(in.Kind)),
		slog.String("metric", in.Metric),
	)
	return false
}

// PublishAnomaly enqueues an anomaly and reports whether it was accepted.
func (p *Publisher) PublishAnomaly(a models.AnomalyResult) bool {
	if p.enqueue(publication{anomaly: &a}) {
		return true
	}
	p.logger.Warn("publish queue full, dropping anomaly",
		slog.String("metric", a.Metric),
		slog.String("tenant", a.TenantID),
		slog.String("type", string(a.Type)),
		slog.Time("timestamp", a.Timestamp),
	)
	return false
}

func (p *Publisher) enqueue(pub publication) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- pub:
		return true
	default:
		metrics.ObservePublisherDrop()
		return false
	}
}

// Close stops accepting insights and waits for queued ones to be written, or for ctx.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) work() {
	defer p.wg.Done()
	for pub := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
		if pub.anomaly != nil {
			a := pub.anomaly
			err := p.sink.WriteAnomaly(ctx, *a)
			metrics.ObserveSinkWrite("anomaly", err)
			if err != nil {
				p.logger.Warn("failed to write anomaly",
					slog.String("metric", a.Metric),
					slog.String("tenant", a.TenantID),
					slog.Any("error", err),
				)
			}
		} else {
			err := p.sink.WriteInsight(ctx, *pub.insight)
			metrics.ObserveSinkWrite("insight", err)
			if err != nil {
				p.logger.Warn("failed to write insight", slog.String("id", pub.insight.ID), slog.Any("error", err))
			}
		}
		cancel()
	}
}
