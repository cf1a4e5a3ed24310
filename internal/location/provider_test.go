package location

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/nearby/internal/geo"
)

// fakeLocator is a scriptable Locator.
type fakeLocator struct {
	permission    Permission
	permissionErr error
	positions     []geo.Coordinate
	positionErr   error
	block         chan struct{} // when non-nil, CurrentPosition waits on it or ctx
	permDelay     time.Duration // RequestPermission answers after this long, or on ctx

	permissionCalls atomic.Int32
	positionCalls   atomic.Int32
	lastAccuracy    atomic.Value
}

func (f *fakeLocator) RequestPermission(ctx context.Context) (Permission, error) {
	f.permissionCalls.Add(1)
	if f.permDelay > 0 {
		select {
		case <-time.After(f.permDelay):
		case <-ctx.Done():
			return PermissionDenied, ctx.Err()
		}
	}
	return f.permission, f.permissionErr
}

func (f *fakeLocator) CurrentPosition(ctx context.Context, accuracy Accuracy) (geo.Coordinate, error) {
	n := f.positionCalls.Add(1)
	f.lastAccuracy.Store(accuracy)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return geo.Coordinate{}, ctx.Err()
		}
	}
	if f.positionErr != nil {
		return geo.Coordinate{}, f.positionErr
	}
	idx := int(n) - 1
	if idx >= len(f.positions) {
		idx = len(f.positions) - 1
	}
	return f.positions[idx], nil
}

// recorder collects snapshots delivered to OnChange.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) onChange(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

var here = geo.Coordinate{Lat: 50.6292, Lng: 3.0573}

func TestProvider_InitializeGranted(t *testing.T) {
	loc := &fakeLocator{permission: PermissionGranted, positions: []geo.Coordinate{here}}
	rec := &recorder{}
	var outcomes []string
	p := NewProvider(loc,
		WithAccuracy(AccuracyBalanced),
		WithOnChange(rec.onChange),
		WithObserver(func(o string) { outcomes = append(outcomes, o) }),
	)
	defer p.Close()

	if got := p.Snapshot().State; got != StateIdle {
		t.Fatalf("initial state = %s, want idle", got)
	}

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	snap := p.Snapshot()
	if snap.State != StateGranted {
		t.Errorf("state = %s, want granted", snap.State)
	}
	if snap.Coordinate == nil || *snap.Coordinate != here {
		t.Errorf("coordinate = %v, want %v", snap.Coordinate, here)
	}
	if snap.Loading || snap.Error != "" {
		t.Errorf("unexpected loading=%v error=%q", snap.Loading, snap.Error)
	}
	if got := loc.lastAccuracy.Load(); got != AccuracyBalanced {
		t.Errorf("accuracy = %v, want balanced", got)
	}

	snaps := rec.all()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].State != StateRequesting || !snaps[0].Loading {
		t.Errorf("first snapshot = %+v, want requesting/loading", snaps[0])
	}
	if len(outcomes) != 1 || outcomes[0] != OutcomeGranted {
		t.Errorf("outcomes = %v, want [granted]", outcomes)
	}
}

func TestProvider_PermissionDenied(t *testing.T) {
	loc := &fakeLocator{permission: PermissionDenied}
	p := NewProvider(loc)
	defer p.Close()

	err := p.Initialize(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Initialize() error = %v, want ErrPermissionDenied", err)
	}

	snap := p.Snapshot()
	if snap.State != StateDenied {
		t.Errorf("state = %s, want denied", snap.State)
	}
	if snap.Error != MessagePermissionDenied {
		t.Errorf("error = %q, want %q", snap.Error, MessagePermissionDenied)
	}
	if loc.positionCalls.Load() != 0 {
		t.Error("position must not be fetched after a denial")
	}
	if pos := snap.UserPosition(); pos.Status != StatusDenied || pos.Coordinate != nil {
		t.Errorf("UserPosition() = %+v, want denied without coordinate", pos)
	}
}

func TestProvider_RefreshKeepsStaleCoordinateOnFailure(t *testing.T) {
	loc := &fakeLocator{permission: PermissionGranted, positions: []geo.Coordinate{here}}
	p := NewProvider(loc)
	defer p.Close()

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	loc.positionErr = errors.New("sensor unavailable")
	err := p.Refresh(context.Background())
	if !errors.Is(err, ErrPositioning) {
		t.Fatalf("Refresh() error = %v, want ErrPositioning", err)
	}

	snap := p.Snapshot()
	if snap.Coordinate == nil || *snap.Coordinate != here {
		t.Errorf("coordinate = %v, want stale %v kept", snap.Coordinate, here)
	}
	if snap.Error != MessagePositionUnavailable {
		t.Errorf("error = %q, want %q", snap.Error, MessagePositionUnavailable)
	}
	if snap.State != StateGranted {
		t.Errorf("state = %s, want granted", snap.State)
	}
	if loc.permissionCalls.Load() != 1 {
		t.Errorf("permission requested %d times, want 1 (refresh with a fix skips it)", loc.permissionCalls.Load())
	}
}

func TestProvider_RefreshUpdatesCoordinate(t *testing.T) {
	next := geo.Coordinate{Lat: 48.8566, Lng: 2.3522}
	loc := &fakeLocator{permission: PermissionGranted, positions: []geo.Coordinate{here, next}}
	rec := &recorder{}
	p := NewProvider(loc, WithOnChange(rec.onChange))
	defer p.Close()

	_ = p.Initialize(context.Background())
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if c := p.Snapshot().Coordinate; c == nil || *c != next {
		t.Errorf("coordinate = %v, want %v", c, next)
	}

	snaps := rec.all()
	if snaps[2].State != StateRefreshing {
		t.Errorf("third snapshot state = %s, want refreshing", snaps[2].State)
	}
}

func TestProvider_PositionTimeout(t *testing.T) {
	loc := &fakeLocator{permission: PermissionGranted, block: make(chan struct{})}
	var outcome atomic.Value
	p := NewProvider(loc,
		WithPositionTimeout(20*time.Millisecond),
		WithObserver(func(o string) { outcome.Store(o) }),
	)
	defer p.Close()

	err := p.Initialize(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Initialize() error = %v, want ErrTimeout", err)
	}
	if !errors.Is(err, ErrPositioning) {
		t.Error("ErrTimeout should be classified as a positioning failure")
	}
	if outcome.Load() != OutcomeTimeout {
		t.Errorf("outcome = %v, want timeout", outcome.Load())
	}
	if p.Snapshot().Coordinate != nil {
		t.Error("no coordinate expected after timeout")
	}
}

func TestProvider_PermissionTimeout(t *testing.T) {
	t.Run("defaults to the longer prompt bound", func(t *testing.T) {
		p := NewProvider(&fakeLocator{}, WithPositionTimeout(time.Second))
		defer p.Close()
		if p.permissionTimeout != DefaultPermissionTimeout {
			t.Errorf("permission timeout = %v, want %v", p.permissionTimeout, DefaultPermissionTimeout)
		}
	})

	t.Run("slow answer within the bound", func(t *testing.T) {
		loc := &fakeLocator{permission: PermissionGranted, permDelay: 40 * time.Millisecond, positions: []geo.Coordinate{here}}
		p := NewProvider(loc,
			WithPositionTimeout(10*time.Millisecond),
			WithPermissionTimeout(time.Second),
		)
		defer p.Close()

		if err := p.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		if c := p.Snapshot().Coordinate; c == nil || *c != here {
			t.Errorf("coordinate = %v, want %v", c, here)
		}
	})

	t.Run("no answer", func(t *testing.T) {
		loc := &fakeLocator{permission: PermissionGranted, permDelay: time.Minute}
		p := NewProvider(loc, WithPermissionTimeout(20*time.Millisecond))
		defer p.Close()

		err := p.Initialize(context.Background())
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("Initialize() error = %v, want ErrTimeout", err)
		}
		if loc.positionCalls.Load() != 0 {
			t.Error("position requested without permission")
		}
		if s := p.Snapshot(); s.State != StateIdle || s.Loading {
			t.Errorf("snapshot = %+v, want idle and not loading", s)
		}
	})
}

func TestProvider_ConcurrentRefreshIsCoalesced(t *testing.T) {
	loc := &fakeLocator{
		permission: PermissionGranted,
		positions:  []geo.Coordinate{here},
		block:      make(chan struct{}),
	}
	p := NewProvider(loc)
	defer p.Close()

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.Refresh(context.Background())
		}()
	}

	// Let every caller join the in-flight acquisition before it completes.
	time.Sleep(50 * time.Millisecond)
	close(loc.block)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Refresh() error = %v", err)
		}
	}
	if n := loc.positionCalls.Load(); n != 1 {
		t.Errorf("position fetched %d times, want 1", n)
	}
}

func TestProvider_CallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	loc := &fakeLocator{
		permission: PermissionGranted,
		positions:  []geo.Coordinate{here},
		block:      make(chan struct{}),
	}
	p := NewProvider(loc)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Refresh(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Refresh() error = %v, want context.Canceled", err)
	}

	close(loc.block)
	deadline := time.Now().Add(time.Second)
	for p.Snapshot().Coordinate == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.Snapshot().Coordinate == nil {
		t.Error("shared fetch should complete after the caller gave up")
	}
}

func TestProvider_CloseStopsCallbacks(t *testing.T) {
	loc := &fakeLocator{permission: PermissionGranted, positions: []geo.Coordinate{here}}
	rec := &recorder{}
	p := NewProvider(loc, WithOnChange(rec.onChange))

	p.Close()

	if err := p.Refresh(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Refresh() after Close error = %v, want ErrClosed", err)
	}
	if n := len(rec.all()); n != 0 {
		t.Errorf("received %d snapshots after Close, want 0", n)
	}
}

func TestAccuracyFor(t *testing.T) {
	tests := map[string]Accuracy{
		"android": AccuracyBalanced,
		"Android": AccuracyBalanced,
		"ios":     AccuracyHigh,
		"web":     AccuracyHigh,
		"":        AccuracyHigh,
	}
	for platform, want := range tests {
		if got := AccuracyFor(platform); got != want {
			t.Errorf("AccuracyFor(%q) = %s, want %s", platform, got, want)
		}
	}
}

func TestSnapshot_UserPosition(t *testing.T) {
	if pos := (Snapshot{State: StateIdle}).UserPosition(); pos.Status != StatusUnknown {
		t.Errorf("idle status = %s, want unknown", pos.Status)
	}

	c := here
	pos := Snapshot{State: StateGranted, Coordinate: &c}.UserPosition()
	got, ok := pos.Known()
	if !ok || got != here || pos.Status != StatusAvailable {
		t.Errorf("granted position = %+v, want available %v", pos, here)
	}

	var nilPos *UserPosition
	if _, ok := nilPos.Known(); ok {
		t.Error("nil position must not be known")
	}
}
