package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/onnwee/nearby/internal/geo"
	"github.com/onnwee/nearby/internal/search"
)

// DefaultCacheTTL is how long a resolved address stays cached.
const DefaultCacheTTL = 24 * time.Hour

const cacheKeyPrefix = "geocode:v1:"

// CachedGeocoder wraps a Geocoder with a Redis cache and de-duplicates
// concurrent lookups of the same address. Only successful results are cached.
// Redis failures are logged and bypassed.
type CachedGeocoder struct {
	next    Geocoder
	rdb     redis.Cmdable
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	metrics *Metrics
}

// NewCachedGeocoder creates a CachedGeocoder. A nil rdb disables caching but
// keeps in-flight de-duplication. Non-positive ttl uses DefaultCacheTTL.
func NewCachedGeocoder(next Geocoder, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger, metrics *Metrics) *CachedGeocoder {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedGeocoder{next: next, rdb: rdb, ttl: ttl, logger: logger, metrics: metrics}
}

// Geocode implements Geocoder.
func (g *CachedGeocoder) Geocode(ctx context.Context, address string) (geo.Coordinate, error) {
	key := CacheKey(address)

	if coord, ok := g.lookup(ctx, key); ok {
		return coord, nil
	}

	// The shared call must outlive any single caller giving up.
	shared := context.WithoutCancel(ctx)
	ch := g.group.DoChan(key, func() (interface{}, error) {
		coord, err := g.next.Geocode(shared, address)
		if err != nil {
			return geo.Coordinate{}, err
		}
		g.store(shared, key, coord)
		return coord, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return geo.Coordinate{}, res.Err
		}
		return res.Val.(geo.Coordinate), nil
	case <-ctx.Done():
		return geo.Coordinate{}, ctx.Err()
	}
}

// CacheKey returns the cache key for address. Addresses that differ only in
// case, accents or spacing share a key.
func CacheKey(address string) string {
	canonical := search.Normalize(strings.Join(strings.Fields(address), " "))
	sum := sha256.Sum256([]byte(canonical))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (g *CachedGeocoder) lookup(ctx context.Context, key string) (geo.Coordinate, bool) {
	if g.rdb == nil {
		return geo.Coordinate{}, false
	}

	data, err := g.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		g.count(CacheMiss)
		return geo.Coordinate{}, false
	}
	if err != nil {
		g.count(CacheError)
		g.logger.Warn("geocode cache read failed", "error", err)
		return geo.Coordinate{}, false
	}

	var coord geo.Coordinate
	if err := json.Unmarshal(data, &coord); err != nil || !coord.Valid() {
		g.count(CacheError)
		g.logger.Warn("discarding corrupt geocode cache entry")
		return geo.Coordinate{}, false
	}
	g.count(CacheHit)
	return coord, true
}

func (g *CachedGeocoder) store(ctx context.Context, key string, coord geo.Coordinate) {
	if g.rdb == nil {
		return
	}
	data, err := json.Marshal(coord)
	if err != nil {
		return
	}
	if err := g.rdb.Set(ctx, key, data, g.ttl).Err(); err != nil {
		g.count(CacheError)
		g.logger.Warn("geocode cache write failed", "error", err)
	}
}

func (g *CachedGeocoder) count(result string) {
	if g.metrics != nil {
		g.metrics.IncCache(result)
	}
}
