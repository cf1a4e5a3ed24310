package feed

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricActiveSessions    = "feed_sessions_active"
	MetricRecomputes        = "feed_recomputes_total"
	MetricRecomputeDuration = "feed_recompute_duration_seconds"
	MetricLocationRequests  = "feed_location_requests_total"
)

// Metrics contains Prometheus metrics for feed sessions.
// All operations are thread-safe.
type Metrics struct {
	activeSessions    prometheus.Gauge
	recomputes        prometheus.Counter
	recomputeDuration prometheus.Histogram
	locationRequests  *prometheus.CounterVec
}

// NewMetrics creates the feed metrics. Call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricActiveSessions,
			Help: "Number of open feed sessions",
		}),
		recomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRecomputes,
			Help: "Total number of ranked list recomputations",
		}),
		recomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRecomputeDuration,
			Help:    "Time spent projecting and ranking one event list in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		locationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricLocationRequests,
			Help: "Location acquisitions by outcome",
		}, []string{"outcome"}),
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.activeSessions,
		m.recomputes,
		m.recomputeDuration,
		m.locationRequests,
	}
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.activeSessions.Inc()
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.activeSessions.Dec()
	}
}

func (m *Metrics) observeRecompute(seconds float64) {
	if m != nil {
		m.recomputes.Inc()
		m.recomputeDuration.Observe(seconds)
	}
}

func (m *Metrics) observeLocation(outcome string) {
	if m != nil {
		m.locationRequests.WithLabelValues(outcome).Inc()
	}
}
