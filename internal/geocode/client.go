package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/onnwee/nearby/internal/geo"
)

// DefaultEndpoint is the Google Geocoding JSON endpoint.
const DefaultEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// DefaultTimeout bounds a single geocoding call.
const DefaultTimeout = 5 * time.Second

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 1 << 20

// Geocoder resolves an address line to a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Coordinate, error)
}

// Client calls the geocoding provider over HTTP.
type Client struct {
	apiKey     string
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the provider endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithTimeout bounds every call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records request outcomes and latency.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Client. An empty apiKey is accepted; every call then
// fails with ErrConfiguration.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:   strings.TrimSpace(apiKey),
		endpoint: DefaultEndpoint,
		timeout:  DefaultTimeout,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// providerResponse is the subset of the provider's JSON the client reads.
type providerResponse struct {
	Status       string           `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Results      []providerResult `json:"results"`
}

type providerResult struct {
	Geometry struct {
		Location struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

// Geocode resolves address to the coordinate of the provider's first result.
func (c *Client) Geocode(ctx context.Context, address string) (geo.Coordinate, error) {
	start := time.Now()
	coord, err := c.geocode(ctx, address)
	if c.metrics != nil {
		c.metrics.ObserveRequest(Outcome(err), time.Since(start).Seconds())
	}
	if err != nil {
		c.logger.Warn("geocoding failed",
			"address_len", len(address),
			"outcome", Outcome(err),
			"error", err,
		)
	}
	return coord, err
}

func (c *Client) geocode(ctx context.Context, address string) (geo.Coordinate, error) {
	if c.apiKey == "" {
		return geo.Coordinate{}, ErrConfiguration
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return geo.Coordinate{}, fmt.Errorf("%w: empty address", ErrNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: invalid endpoint", ErrConfiguration)
	}
	q := u.Query()
	q.Set("address", address)
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return geo.Coordinate{}, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return geo.Coordinate{}, fmt.Errorf("%w: provider returned HTTP %d", ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return geo.Coordinate{}, classifyTransport(ctx, err)
	}
	return parseResponse(body)
}

// parseResponse validates the provider payload into a coordinate.
func parseResponse(body []byte) (geo.Coordinate, error) {
	var pr providerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if pr.Status != "OK" || len(pr.Results) == 0 {
		status := pr.Status
		if status == "" {
			status = "UNKNOWN"
		}
		return geo.Coordinate{}, fmt.Errorf("%w: provider status %s", ErrNotFound, status)
	}

	loc := pr.Results[0].Geometry.Location
	if loc.Lat == nil || loc.Lng == nil {
		return geo.Coordinate{}, fmt.Errorf("%w: result has no coordinates", ErrMalformedResponse)
	}
	coord := geo.Coordinate{Lat: *loc.Lat, Lng: *loc.Lng}
	if err := coord.Validate(); err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return coord, nil
}

// classifyTransport maps a transport error to ErrTimeout or ErrNetwork. The
// request URL carries the API key, so *url.Error is unwrapped first.
func classifyTransport(ctx context.Context, err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
