package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig is a fixed-window limit: at most RequestsPerWindow
// requests per key within each WindowDuration.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Validate checks that both values are positive.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("RequestsPerWindow must be > 0 (got %d)", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("WindowDuration must be > 0 (got %s)", c.WindowDuration)
	}
	return nil
}

// DefaultGlobalLimit applies to every request (100 per minute per client).
func DefaultGlobalLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 100, WindowDuration: time.Minute}
}

// CreateEventLimit limits event creation per user: every creation costs a
// geocoding call.
func CreateEventLimit(perMinute int) RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: perMinute, WindowDuration: time.Minute}
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimitStore keeps per-key window counters.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, config RateLimitConfig) (Decision, error)
}

type window struct {
	count int
	end   time.Time
}

// InMemoryRateLimitStore is a process-local RateLimitStore. It is safe for
// concurrent use; call Cleanup periodically to drop expired windows.
type InMemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewInMemoryRateLimitStore creates an empty store.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{windows: make(map[string]*window), now: time.Now}
}

// Allow counts one request for key.
func (s *InMemoryRateLimitStore) Allow(_ context.Context, key string, config RateLimitConfig) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.end) {
		w = &window{end: now.Add(config.WindowDuration)}
		s.windows[key] = w
	}
	return decide(&w.count, config.RequestsPerWindow, w.end.Sub(now)), nil
}

// decide increments *count when below limit.
func decide(count *int, limit int, ttl time.Duration) Decision {
	if *count < limit {
		*count++
		return Decision{Allowed: true, Remaining: limit - *count}
	}
	return Decision{RetryAfter: ttl}
}

// Cleanup removes expired windows.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, w := range s.windows {
		if !now.Before(w.end) {
			delete(s.windows, key)
		}
	}
}

// KeyFunc extracts a rate limit key from a request. The second result names
// the key type for metrics ("ip" or "user").
type KeyFunc func(r *http.Request) (key, keyType string)

// IPKeyFunc keys requests by client IP, honouring X-Forwarded-For and
// X-Real-IP from the reverse proxy.
func IPKeyFunc() KeyFunc {
	return func(r *http.Request) (string, string) {
		return "ip:" + clientIP(r), "ip"
	}
}

// UserKeyFunc keys requests by authenticated user id and falls back to IP.
func UserKeyFunc() KeyFunc {
	return func(r *http.Request) (string, string) {
		if id := GetUserID(r.Context()); id != "" {
			return "user:" + id, "user"
		}
		return "ip:" + clientIP(r), "ip"
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitOption configures RateLimiter.
type RateLimitOption func(*rateLimiter)

// WithRateLimitMetrics counts checks and rejections under endpoint.
func WithRateLimitMetrics(m *Metrics, endpoint string) RateLimitOption {
	return func(rl *rateLimiter) {
		rl.metrics = m
		rl.endpoint = endpoint
	}
}

// WithRateLimitErrorWriter sets how 429 responses are written.
func WithRateLimitErrorWriter(w ErrorWriter) RateLimitOption {
	return func(rl *rateLimiter) { rl.writeError = w }
}

// WithRateLimitLogger sets the logger for store failures.
func WithRateLimitLogger(logger *slog.Logger) RateLimitOption {
	return func(rl *rateLimiter) { rl.logger = logger }
}

type rateLimiter struct {
	store      RateLimitStore
	config     RateLimitConfig
	keyFunc    KeyFunc
	metrics    *Metrics
	endpoint   string
	writeError ErrorWriter
	logger     *slog.Logger
}

// RateLimiter rejects requests over the limit with 429 rate_limit_exceeded,
// a Retry-After header and X-RateLimit-* headers. A failing store lets the
// request through.
func RateLimiter(store RateLimitStore, config RateLimitConfig, keyFunc KeyFunc, opts ...RateLimitOption) func(http.Handler) http.Handler {
	rl := &rateLimiter{
		store:      store,
		config:     config,
		keyFunc:    keyFunc,
		writeError: plainError,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(rl)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, keyType := rl.keyFunc(r)
			if rl.metrics != nil {
				rl.metrics.IncRateLimitRequests(rl.endpoint, keyType)
			}

			d, err := rl.store.Allow(r.Context(), key, rl.config)
			if err != nil {
				rl.logger.Warn("rate limit store unavailable, allowing request", "error", err)
				if rl.metrics != nil {
					rl.metrics.IncRateLimitStoreErrors()
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			if rl.metrics != nil {
				rl.metrics.IncRateLimitBlocked(rl.endpoint, keyType)
			}
			retryAfter := int((d.RetryAfter + time.Second - 1) / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(retryAfter)*time.Second).Unix(), 10))
			rl.writeError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, retry later")
		})
	}
}
