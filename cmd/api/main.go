// Package main is the entry point for the nearby API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/nearby/internal/api"
	"github.com/onnwee/nearby/internal/auth"
	"github.com/onnwee/nearby/internal/config"
	"github.com/onnwee/nearby/internal/db"
	"github.com/onnwee/nearby/internal/event"
	"github.com/onnwee/nearby/internal/feed"
	"github.com/onnwee/nearby/internal/geocode"
	"github.com/onnwee/nearby/internal/health"
	"github.com/onnwee/nearby/internal/jobs"
	"github.com/onnwee/nearby/internal/middleware"
	"github.com/onnwee/nearby/internal/partner"
	"github.com/onnwee/nearby/internal/tracing"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout        = 10 * time.Second
	rateLimitCleanupPeriod = time.Minute
	eventResyncPeriod      = 5 * time.Minute
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("nearby API server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, errs := config.Load(path)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:  tracing.ServiceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: !cfg.IsProduction(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	a, err := newApp(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.close()

	for _, task := range a.background {
		g.Go(func() error { return task(ctx) })
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		logger.Info("starting server", "port", cfg.Port, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// app is the wired service: its handler, the goroutines that must run next
// to it and the resources to release afterwards.
type app struct {
	handler    http.Handler
	background []func(ctx context.Context) error
	closers    []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("failed to release resource", "error", err)
		}
	}
}

// newApp wires every component. Postgres and Redis are optional: without
// DATABASE_URL events and profiles live in memory, without REDIS_URL the
// geocode cache is disabled and rate limits are kept in process. base ends
// open feed sessions when cancelled.
func newApp(base context.Context, cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.close()
		return nil, err
	}

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := middleware.NewMetrics()
	geocodeMetrics := geocode.NewMetrics()
	feedMetrics := feed.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	for _, register := range []func(prometheus.Registerer) error{
		httpMetrics.Register, geocodeMetrics.Register, feedMetrics.Register, jobMetrics.Register,
	} {
		if err := register(reg); err != nil {
			return fail(fmt.Errorf("failed to register metrics: %w", err))
		}
	}

	checkers := make(map[string]health.Checker)
	runner := &jobs.Runner{Metrics: jobMetrics, Logger: logger}

	var (
		store    event.Store
		partners partner.Repository
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.Open(base, cfg.DatabaseURL, db.DefaultPoolConfig())
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, pool.Close)

		pgStore := event.NewPostgresStore(pool, logger)
		a.background = append(a.background,
			func(ctx context.Context) error { return pgStore.Listen(ctx, cfg.DatabaseURL) },
			// Notifications can be lost between a drop and the reconnect.
			func(ctx context.Context) error {
				return runner.Every(ctx, jobs.Job{
					Type:     jobs.JobTypeEventResync,
					Interval: eventResyncPeriod,
					Run: func(ctx context.Context) error {
						pgStore.Refresh(ctx)
						return nil
					},
				})
			},
		)
		store = pgStore
		partners = partner.NewPostgresRepository(pool)
		checkers["database"] = health.NewDBChecker(pool)
		logger.Info("using postgres event store")
	} else {
		store = event.NewInMemoryStore()
		partners = partner.NewInMemoryRepository()
		logger.Warn("DATABASE_URL not set, events are kept in memory")
	}

	var (
		rdb       redis.Cmdable
		rateStore middleware.RateLimitStore
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("failed to parse REDIS_URL: %w", err))
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, client.Close)
		rdb = client
		rateStore = middleware.NewRedisRateLimitStore(client)
		checkers["redis"] = health.NewRedisChecker(client)
		logger.Info("using redis for geocode cache and rate limits")
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		a.background = append(a.background, func(ctx context.Context) error {
			return runner.Every(ctx, jobs.Job{
				Type:     jobs.JobTypeRateLimitCleanup,
				Interval: rateLimitCleanupPeriod,
				Run: func(context.Context) error {
					memStore.Cleanup()
					return nil
				},
			})
		})
		rateStore = memStore
	}

	if cfg.GeocodingAPIKey == "" {
		logger.Warn("GEOCODING_API_KEY not set, event creation will fail with geocoding_not_configured")
	}
	client := geocode.NewClient(cfg.GeocodingAPIKey,
		geocode.WithEndpoint(cfg.GeocodingEndpoint),
		geocode.WithTimeout(cfg.GeocodingTimeout),
		geocode.WithLogger(logger),
		geocode.WithMetrics(geocodeMetrics),
	)
	geocoder := geocode.NewCachedGeocoder(client, rdb, cfg.GeocodeCacheTTL, logger, geocodeMetrics)

	fallback := cfg.DefaultLocation()
	projection := event.ProjectionOptions{Fallback: &fallback}

	a.handler = api.NewRouter(api.RouterConfig{
		Service:  api.ServiceInfo{Service: tracing.ServiceName, Version: version},
		Events:   api.NewEventHandlers(event.NewPublisher(store, geocoder, logger), store, partners, projection),
		Partners: api.NewPartnerHandlers(partners),
		Health:   api.NewHealthHandlers(checkers),
		Feed: api.NewFeedHandlers(api.FeedHandlersConfig{
			Base: base,
			Session: feed.Config{
				Store:             store,
				Projection:        projection,
				LocationTimeout:   cfg.LocationTimeout,
				PermissionTimeout: cfg.PermissionTimeout,
				Logger:            logger,
				Metrics:           feedMetrics,
			},
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Logger:         logger,
		}),
		Auth:           auth.NewJWTService(cfg.JWTSecret, auth.WithPreviousSecret(cfg.JWTSecretPrevious)),
		Logger:         logger,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		HTTPMetrics:    httpMetrics,
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			MaxAge:         600,
		},
		RateLimitStore: rateStore,
		GlobalLimit:    middleware.DefaultGlobalLimit(),
		CreateLimit:    middleware.CreateEventLimit(cfg.CreateRateLimit),
	})
	return a, nil
}
