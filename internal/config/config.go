// Package config loads the API server configuration.
// It uses koanf to read an optional YAML file and lets environment variables
// override any value from the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/onnwee/nearby/internal/geo"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Storage. Empty values select in-memory stores and disable the
	// geocode cache.
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	// JWT Authentication
	JWTSecret         string `koanf:"jwt_secret"`
	JWTSecretPrevious string `koanf:"jwt_secret_previous"`

	// Geocoding
	GeocodingAPIKey   string        `koanf:"geocoding_api_key"`
	GeocodingEndpoint string        `koanf:"geocoding_endpoint"`
	GeocodingTimeout  time.Duration `koanf:"geocoding_timeout"`
	GeocodeCacheTTL   time.Duration `koanf:"geocode_cache_ttl"`

	// Feed sessions
	LocationTimeout   time.Duration `koanf:"location_timeout"`
	PermissionTimeout time.Duration `koanf:"permission_timeout"`
	DefaultLatitude   float64       `koanf:"default_latitude"`
	DefaultLongitude  float64       `koanf:"default_longitude"`

	// HTTP
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
	CreateRateLimit    int      `koanf:"create_rate_limit"` // event creations per user per minute

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	OTLPEndpoint      string  `koanf:"otlp_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
}

// Configuration validation errors.
var (
	ErrMissingJWTSecret       = errors.New("JWT_SECRET is required")
	ErrInvalidPort            = errors.New("PORT must be a valid integer between 1 and 65535")
	ErrInvalidNumber          = errors.New("value must be a valid number")
	ErrInvalidDuration        = errors.New("value must be a valid duration")
	ErrInvalidBool            = errors.New("value must be a valid boolean")
	ErrNonPositiveTimeout     = errors.New("timeouts must be positive")
	ErrInvalidDefaultLocation = errors.New("DEFAULT_LATITUDE/DEFAULT_LONGITUDE must be a valid coordinate")
	ErrInvalidSampleRate      = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
	ErrInvalidTracingExporter = errors.New("TRACING_EXPORTER must be otlp-grpc or otlp-http")
	ErrInvalidCreateRateLimit = errors.New("CREATE_RATE_LIMIT must be positive")
)

// Defaults for non-secret configuration.
const (
	DefaultPort              = 8080
	DefaultEnv               = "development"
	DefaultGeocodingEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"
	DefaultGeocodingTimeout  = 5 * time.Second
	DefaultGeocodeCacheTTL   = 24 * time.Hour
	DefaultLocationTimeout   = 5 * time.Second
	DefaultPermissionTimeout = 30 * time.Second
	DefaultLatitude          = 50.637
	DefaultLongitude         = 3.063
	DefaultCreateRateLimit   = 30
	DefaultTracingExporter   = "otlp-http"
	DefaultTracingSampleRate = 0.1
)

// Load reads configuration from an optional YAML file and the environment.
// Environment variables take precedence over file values. It returns the
// config together with every validation error found. A config file that
// cannot be read is reported as the only error and a nil config.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	r := &reader{k: k}
	cfg := &Config{
		Port:               r.integer("PORT", "port", DefaultPort, ErrInvalidPort),
		Env:                r.textOr("ENV", "env", DefaultEnv),
		DatabaseURL:        r.text("DATABASE_URL", "database_url"),
		RedisURL:           r.text("REDIS_URL", "redis_url"),
		JWTSecret:          r.text("JWT_SECRET", "jwt_secret"),
		JWTSecretPrevious:  r.text("JWT_SECRET_PREVIOUS", "jwt_secret_previous"),
		GeocodingAPIKey:    r.text("GEOCODING_API_KEY", "geocoding_api_key"),
		GeocodingEndpoint:  r.textOr("GEOCODING_ENDPOINT", "geocoding_endpoint", DefaultGeocodingEndpoint),
		GeocodingTimeout:   r.period("GEOCODING_TIMEOUT", "geocoding_timeout", DefaultGeocodingTimeout),
		GeocodeCacheTTL:    r.period("GEOCODE_CACHE_TTL", "geocode_cache_ttl", DefaultGeocodeCacheTTL),
		LocationTimeout:    r.period("LOCATION_TIMEOUT", "location_timeout", DefaultLocationTimeout),
		PermissionTimeout:  r.period("PERMISSION_TIMEOUT", "permission_timeout", DefaultPermissionTimeout),
		DefaultLatitude:    r.number("DEFAULT_LATITUDE", "default_latitude", DefaultLatitude),
		DefaultLongitude:   r.number("DEFAULT_LONGITUDE", "default_longitude", DefaultLongitude),
		CORSAllowedOrigins: r.list("CORS_ALLOWED_ORIGINS", "cors_allowed_origins"),
		CreateRateLimit:    r.integer("CREATE_RATE_LIMIT", "create_rate_limit", DefaultCreateRateLimit, ErrInvalidNumber),
		TracingEnabled:     r.flag("TRACING_ENABLED", "tracing_enabled"),
		TracingExporter:    r.textOr("TRACING_EXPORTER", "tracing_exporter", DefaultTracingExporter),
		OTLPEndpoint:       r.text("OTLP_ENDPOINT", "otlp_endpoint"),
		TracingSampleRate:  r.number("TRACING_SAMPLE_RATE", "tracing_sample_rate", DefaultTracingSampleRate),
	}

	return cfg, append(r.errs, cfg.Validate()...)
}

// reader resolves one key at a time from the environment, then koanf, then
// a default, collecting parse errors as it goes.
type reader struct {
	k    *koanf.Koanf
	errs []error
}

func (r *reader) text(envKey, key string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return r.k.String(key)
}

func (r *reader) textOr(envKey, key, def string) string {
	if val := r.text(envKey, key); val != "" {
		return val
	}
	return def
}

func (r *reader) integer(envKey, key string, def int, sentinel error) int {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", envKey, sentinel))
			return def
		}
		return i
	}
	if r.k.Exists(key) {
		return r.k.Int(key)
	}
	return def
}

func (r *reader) number(envKey, key string, def float64) float64 {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", envKey, ErrInvalidNumber))
			return def
		}
		return f
	}
	if r.k.Exists(key) {
		return r.k.Float64(key)
	}
	return def
}

// period accepts Go duration strings ("5s", "24h").
func (r *reader) period(envKey, key string, def time.Duration) time.Duration {
	raw := os.Getenv(envKey)
	name := envKey
	if raw == "" {
		if !r.k.Exists(key) {
			return def
		}
		raw = r.k.String(key)
		name = key
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", name, ErrInvalidDuration))
		return def
	}
	return d
}

func (r *reader) flag(envKey, key string) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
		r.errs = append(r.errs, fmt.Errorf("%s: %w", envKey, ErrInvalidBool))
		return false
	}
	return r.k.Bool(key)
}

// list reads a comma-separated env var or a YAML list.
func (r *reader) list(envKey, key string) []string {
	if val := os.Getenv(envKey); val != "" {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return r.k.Strings(key)
}

// DefaultLocation is the fallback coordinate for events stored without one.
func (c *Config) DefaultLocation() geo.Coordinate {
	return geo.Coordinate{Lat: c.DefaultLatitude, Lng: c.DefaultLongitude}
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks required values and ranges.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	for _, d := range []time.Duration{c.GeocodingTimeout, c.GeocodeCacheTTL, c.LocationTimeout, c.PermissionTimeout} {
		if d <= 0 {
			errs = append(errs, ErrNonPositiveTimeout)
			break
		}
	}
	if !c.DefaultLocation().Valid() {
		errs = append(errs, ErrInvalidDefaultLocation)
	}
	if c.CreateRateLimit <= 0 {
		errs = append(errs, ErrInvalidCreateRateLimit)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidSampleRate)
	}
	if c.TracingExporter != "otlp-grpc" && c.TracingExporter != "otlp-http" {
		errs = append(errs, ErrInvalidTracingExporter)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// Secrets are masked.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                 strconv.Itoa(c.Port),
		"env":                  c.Env,
		"database_url":         maskURL(c.DatabaseURL),
		"redis_url":            maskURL(c.RedisURL),
		"jwt_secret":           maskSecret(c.JWTSecret),
		"jwt_secret_previous":  maskSecret(c.JWTSecretPrevious),
		"geocoding_api_key":    maskSecret(c.GeocodingAPIKey),
		"geocoding_endpoint":   c.GeocodingEndpoint,
		"geocoding_timeout":    c.GeocodingTimeout.String(),
		"geocode_cache_ttl":    c.GeocodeCacheTTL.String(),
		"location_timeout":     c.LocationTimeout.String(),
		"permission_timeout":   c.PermissionTimeout.String(),
		"default_location":     fmt.Sprintf("%.5f,%.5f", c.DefaultLatitude, c.DefaultLongitude),
		"cors_allowed_origins": strings.Join(c.CORSAllowedOrigins, ","),
		"create_rate_limit":    strconv.Itoa(c.CreateRateLimit),
		"tracing_enabled":      strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":     c.TracingExporter,
	}
}

// maskSecret shows the first 4 characters of secrets of 8 or more
// characters and masks shorter ones completely.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskURL masks the password in a postgres:// or redis:// URL.
func maskURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.LastIndex(rest, "@")
	if atIndex == -1 {
		return s
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s
	}

	return s[:schemeEnd+3] + rest[:colonIndex] + ":****" + rest[atIndex:]
}
