package geocode

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/nearby/internal/geo"
)

// countingGeocoder resolves every address to coord after an optional wait.
type countingGeocoder struct {
	coord geo.Coordinate
	err   error
	wait  chan struct{}
	calls atomic.Int32
}

func (g *countingGeocoder) Geocode(ctx context.Context, address string) (geo.Coordinate, error) {
	g.calls.Add(1)
	if g.wait != nil {
		<-g.wait
	}
	return g.coord, g.err
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("Le Café, 12 rue Nationale, 59000 Lille")
	b := CacheKey("  le cafe,  12 RUE nationale, 59000   lille ")
	if a != b {
		t.Errorf("equivalent addresses produced different keys: %q vs %q", a, b)
	}
	if a == CacheKey("13 rue Nationale, 59000 Lille") {
		t.Error("different addresses must not share a key")
	}
}

func TestCachedGeocoder_DeduplicatesInFlight(t *testing.T) {
	next := &countingGeocoder{coord: geo.Coordinate{Lat: 50.63, Lng: 3.06}, wait: make(chan struct{})}
	g := NewCachedGeocoder(next, nil, 0, nil, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan geo.Coordinate, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := g.Geocode(context.Background(), "12 rue Nationale, Lille")
			if err != nil {
				t.Errorf("Geocode() error = %v", err)
				return
			}
			results <- c
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(next.wait)
	wg.Wait()
	close(results)

	for c := range results {
		if c != next.coord {
			t.Errorf("Geocode() = %v, want %v", c, next.coord)
		}
	}
	if n := next.calls.Load(); n != 1 {
		t.Errorf("underlying geocoder called %d times, want 1", n)
	}
}

func TestCachedGeocoder_PropagatesErrors(t *testing.T) {
	next := &countingGeocoder{err: ErrNotFound}
	g := NewCachedGeocoder(next, nil, 0, nil, nil)

	_, err := g.Geocode(context.Background(), "nowhere")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Geocode() error = %v, want ErrNotFound", err)
	}
}

func TestCachedGeocoder_CallerCancellation(t *testing.T) {
	next := &countingGeocoder{coord: geo.Coordinate{Lat: 1, Lng: 1}, wait: make(chan struct{})}
	defer close(next.wait)
	g := NewCachedGeocoder(next, nil, 0, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.Geocode(ctx, "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Geocode() error = %v, want context.DeadlineExceeded", err)
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Redis not available, skipping integration test")
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCachedGeocoder_Redis(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	address := "Cache Test " + time.Now().Format(time.RFC3339Nano)
	key := CacheKey(address)
	t.Cleanup(func() { rdb.Del(context.Background(), key) })

	next := &countingGeocoder{coord: geo.Coordinate{Lat: 48.85, Lng: 2.35}}
	m := NewMetrics()
	g := NewCachedGeocoder(next, rdb, time.Minute, nil, m)

	for i := 0; i < 3; i++ {
		c, err := g.Geocode(ctx, address)
		if err != nil {
			t.Fatalf("Geocode() error = %v", err)
		}
		if c != next.coord {
			t.Fatalf("Geocode() = %v, want %v", c, next.coord)
		}
	}
	if n := next.calls.Load(); n != 1 {
		t.Errorf("underlying geocoder called %d times, want 1", n)
	}
	if got := counterValue(t, m.cache.WithLabelValues(CacheHit)); got != 2 {
		t.Errorf("cache hits = %v, want 2", got)
	}

	ttl, err := rdb.TTL(ctx, key).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want within (0, 1m]", ttl)
	}
}

func TestCachedGeocoder_RedisDoesNotCacheFailures(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	address := "Missing " + time.Now().Format(time.RFC3339Nano)
	next := &countingGeocoder{err: ErrNotFound}
	g := NewCachedGeocoder(next, rdb, time.Minute, nil, nil)

	for i := 0; i < 2; i++ {
		if _, err := g.Geocode(ctx, address); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Geocode() error = %v, want ErrNotFound", err)
		}
	}
	if n := next.calls.Load(); n != 2 {
		t.Errorf("underlying geocoder called %d times, want 2 (failures are not cached)", n)
	}
	if exists, _ := rdb.Exists(ctx, CacheKey(address)).Result(); exists != 0 {
		t.Error("failure was written to the cache")
	}
}

func TestCachedGeocoder_FailsOpen(t *testing.T) {
	// Nothing listens here: every Redis call errors.
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	next := &countingGeocoder{coord: geo.Coordinate{Lat: 3, Lng: 4}}
	m := NewMetrics()
	g := NewCachedGeocoder(next, rdb, time.Minute, nil, m)

	c, err := g.Geocode(context.Background(), "anywhere")
	if err != nil {
		t.Fatalf("Geocode() error = %v, want fail-open success", err)
	}
	if c != next.coord {
		t.Errorf("Geocode() = %v, want %v", c, next.coord)
	}
	if got := counterValue(t, m.cache.WithLabelValues(CacheError)); got < 1 {
		t.Errorf("cache errors = %v, want at least 1", got)
	}
}
