package geocode

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricRequests        = "geocode_requests_total"
	MetricRequestDuration = "geocode_request_duration_seconds"
	MetricCache           = "geocode_cache_total"
)

// Cache result labels.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics contains Prometheus metrics for geocoding.
// All operations are thread-safe.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration prometheus.Histogram
	cache           *prometheus.CounterVec
}

// NewMetrics creates the geocoding metrics. Call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRequests,
			Help: "Total number of geocoding provider calls by outcome",
		}, []string{"outcome"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRequestDuration,
			Help:    "Geocoding provider call latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCache,
			Help: "Geocode cache lookups by result",
		}, []string{"result"}),
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
	return []prometheus.Collector{m.requests, m.requestDuration, m.cache}
}

// ObserveRequest records one provider call.
func (m *Metrics) ObserveRequest(outcome string, seconds float64) {
	m.requests.WithLabelValues(outcome).Inc()
	m.requestDuration.Observe(seconds)
}

// IncCache records one cache lookup result.
func (m *Metrics) IncCache(result string) {
	m.cache.WithLabelValues(result).Inc()
}
