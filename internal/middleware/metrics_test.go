package middleware

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mf := family(t, reg, name)
	if mf == nil {
		return 0
	}
	for _, m := range mf.GetMetric() {
		got := labelsOf(m)
		match := true
		for k, v := range labels {
			if got[k] != v {
				match = false
				break
			}
		}
		if match {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetrics_RegisterTwiceFails(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("second Register() should fail with a duplicate collector error")
	}
	if len(m.Collectors()) != 7 {
		t.Errorf("Collectors() = %d collectors, want 7", len(m.Collectors()))
	}
}

func TestMetrics_RateLimitCounters(t *testing.T) {
	m, reg := newRegisteredMetrics(t)

	m.IncRateLimitRequests("/events", "user")
	m.IncRateLimitRequests("/events", "user")
	m.IncRateLimitRequests("/events", "ip")
	m.IncRateLimitBlocked("/events", "user")
	m.IncRateLimitStoreErrors()

	if v := counterValue(t, reg, MetricRateLimitRequests, map[string]string{"endpoint": "/events", "key_type": "user"}); v != 2 {
		t.Errorf("user requests = %v, want 2", v)
	}
	if v := counterValue(t, reg, MetricRateLimitRequests, map[string]string{"endpoint": "/events", "key_type": "ip"}); v != 1 {
		t.Errorf("ip requests = %v, want 1", v)
	}
	if v := counterValue(t, reg, MetricRateLimitBlocked, map[string]string{"key_type": "user"}); v != 1 {
		t.Errorf("blocked = %v, want 1", v)
	}
	if v := counterValue(t, reg, MetricRateLimitStoreErrors, nil); v != 1 {
		t.Errorf("store errors = %v, want 1", v)
	}
}
