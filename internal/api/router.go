package api

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/nearby/internal/middleware"
)

// ServiceInfo is the body of GET /.
type ServiceInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// RouterConfig holds everything NewRouter wires together. Metrics and
// RateLimitStore are optional.
type RouterConfig struct {
	Service ServiceInfo

	Events   *EventHandlers
	Feed     *FeedHandlers
	Partners *PartnerHandlers
	Health   *HealthHandlers

	Auth   middleware.TokenValidator
	Logger *slog.Logger

	// MetricsHandler serves GET /metrics, usually promhttp.HandlerFor.
	MetricsHandler http.Handler
	HTTPMetrics    *middleware.Metrics

	CORS           middleware.CORSConfig
	RateLimitStore middleware.RateLimitStore
	GlobalLimit    middleware.RateLimitConfig
	CreateLimit    middleware.RateLimitConfig
}

// NewRouter builds the service handler. The chain, outermost first, is
// RequestID, Tracing, Logging, HTTPMetrics, CORS and the global rate limit;
// POST /events additionally requires a token and has a per-user limit.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	requireAuth := middleware.RequireAuth(cfg.Auth, WriteError)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	create := http.Handler(http.HandlerFunc(cfg.Events.CreateEvent))
	if cfg.RateLimitStore != nil {
		create = middleware.RateLimiter(cfg.RateLimitStore, cfg.CreateLimit, middleware.UserKeyFunc(),
			middleware.WithRateLimitMetrics(cfg.HTTPMetrics, "create_event"),
			middleware.WithRateLimitErrorWriter(WriteError),
			middleware.WithRateLimitLogger(logger),
		)(create)
	}
	mux.Handle("POST /events", requireAuth(create))
	mux.HandleFunc("GET /events/nearby", cfg.Events.Nearby)
	mux.HandleFunc("GET /events/feed", cfg.Feed.Feed)

	mux.Handle("GET /partners/me", requireAuth(http.HandlerFunc(cfg.Partners.GetMe)))
	mux.Handle("PUT /partners/me", requireAuth(http.HandlerFunc(cfg.Partners.PutMe)))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			WriteError(w, r, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		if r.Method != http.MethodGet {
			WriteError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
			return
		}
		writeJSON(w, r, http.StatusOK, cfg.Service)
	})

	var handler http.Handler = mux
	if cfg.RateLimitStore != nil {
		handler = middleware.RateLimiter(cfg.RateLimitStore, cfg.GlobalLimit, middleware.IPKeyFunc(),
			middleware.WithRateLimitMetrics(cfg.HTTPMetrics, "global"),
			middleware.WithRateLimitErrorWriter(WriteError),
			middleware.WithRateLimitLogger(logger),
		)(handler)
	}
	handler = middleware.CORS(cfg.CORS)(handler)
	if cfg.HTTPMetrics != nil {
		handler = middleware.HTTPMetrics(cfg.HTTPMetrics)(handler)
	}
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing(cfg.Service.Service)(handler)
	return middleware.RequestID(handler)
}
