// Package metrics exposes Prometheus instruments for the posting engine.
// Served by the HTTP server's /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	eventsProcessed *prometheus.CounterVec
	reversals       prometheus.Counter
	postingDuration *prometheus.HistogramVec
	drainBatchSize  prometheus.Histogram
}

const (
	OutcomePosted   = "posted"
	OutcomeFailed   = "failed"
	OutcomeReplayed = "replayed"
)

func New() *Metrics {
	return &Metrics{
		eventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "farmbooks",
			Subsystem: "posting",
			Name:      "events_processed_total",
			Help:      "Business events processed by type and outcome.",
		}, []string{"event_type", "outcome"}),
		reversals: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "farmbooks",
			Subsystem: "posting",
			Name:      "reversals_total",
			Help:      "Posted events reversed.",
		}),
		postingDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "farmbooks",
			Subsystem: "posting",
			Name:      "duration_seconds",
			Help:      "Duration of ProcessEvent by event type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		drainBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "farmbooks",
			Subsystem: "posting",
			Name:      "drain_batch_size",
			Help:      "Events drained per ProcessPendingEvents call.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),
	}
}

func (m *Metrics) IncEventProcessed(eventType, outcome string) {
	if m == nil {
		return
	}
	m.eventsProcessed.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) IncReversal() {
	if m == nil {
		return
	}
	m.reversals.Inc()
}

func (m *Metrics) ObservePostingDuration(eventType string, d time.Duration) {
	if m == nil {
		return
	}
	m.postingDuration.WithLabelValues(eventType).Observe(d.Seconds())
}

func (m *Metrics) ObserveDrainBatch(n int) {
	if m == nil {
		return
	}
	m.drainBatchSize.Observe(float64(n))
}
