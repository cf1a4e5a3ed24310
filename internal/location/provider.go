package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/onnwee/nearby/internal/geo"
)

// State is the acquisition state of a Provider.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateGranted    State = "granted"
	StateDenied     State = "denied"
	StateRefreshing State = "refreshing"
)

// Default bounded waits.
const (
	DefaultPositionTimeout   = 5 * time.Second
	DefaultPermissionTimeout = 30 * time.Second
)

// Outcome labels reported to the observer after every acquisition.
const (
	OutcomeGranted = "granted"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Snapshot is a consistent view of the provider state.
type Snapshot struct {
	State      State           `json:"state"`
	Coordinate *geo.Coordinate `json:"coordinate,omitempty"`
	Error      string          `json:"error,omitempty"`
	Loading    bool            `json:"loading"`
}

// UserPosition converts the snapshot into the pipeline's position input.
// A known coordinate stays available even after a later failure.
func (s Snapshot) UserPosition() *UserPosition {
	switch {
	case s.Coordinate != nil:
		c := *s.Coordinate
		return &UserPosition{Coordinate: &c, Status: StatusAvailable}
	case s.State == StateDenied:
		return &UserPosition{Status: StatusDenied}
	default:
		return &UserPosition{Status: StatusUnknown}
	}
}

// Option configures a Provider.
type Option func(*Provider)

// WithAccuracy sets the accuracy hint used for position fetches.
func WithAccuracy(a Accuracy) Option {
	return func(p *Provider) { p.accuracy = a }
}

// WithPositionTimeout bounds every position fetch.
func WithPositionTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.positionTimeout = d
		}
	}
}

// WithPermissionTimeout bounds every permission request.
func WithPermissionTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.permissionTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithOnChange registers a callback invoked with every new snapshot.
// The callback is never invoked after Close returns.
func WithOnChange(fn func(Snapshot)) Option {
	return func(p *Provider) { p.onChange = fn }
}

// WithObserver registers a callback receiving one Outcome label per acquisition.
func WithObserver(fn func(outcome string)) Option {
	return func(p *Provider) { p.observe = fn }
}

// Provider owns the user's position for one consumer (a feed session).
// Initialize and Refresh may be called concurrently; overlapping calls share a
// single in-flight acquisition.
type Provider struct {
	locator           Locator
	accuracy          Accuracy
	positionTimeout   time.Duration
	permissionTimeout time.Duration
	logger            *slog.Logger
	onChange          func(Snapshot)
	observe           func(string)

	group  singleflight.Group
	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	snap   Snapshot
	closed bool

	// emitMu serializes onChange calls and lets Close wait for an in-progress one.
	emitMu sync.Mutex
}

// NewProvider creates a provider in the idle state.
func NewProvider(locator Locator, opts ...Option) *Provider {
	base, cancel := context.WithCancel(context.Background())
	p := &Provider{
		locator:           locator,
		accuracy:          AccuracyHigh,
		positionTimeout:   DefaultPositionTimeout,
		permissionTimeout: DefaultPermissionTimeout,
		logger:            slog.Default(),
		base:              base,
		cancel:            cancel,
		snap:              Snapshot{State: StateIdle},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Snapshot returns the current state.
func (p *Provider) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copySnapshot(p.snap)
}

// Initialize performs the first acquisition: permission request, then one
// position fetch. A denial is final until the caller explicitly refreshes.
func (p *Provider) Initialize(ctx context.Context) error {
	return p.acquire(ctx)
}

// Refresh re-acquires the position. Without a known coordinate it behaves like
// Initialize; otherwise it only fetches a fresh fix.
func (p *Provider) Refresh(ctx context.Context) error {
	return p.acquire(ctx)
}

// Close cancels outstanding work. After Close returns no further snapshots are
// delivered to the OnChange callback.
func (p *Provider) Close() {
	p.cancel()

	// Holding emitMu waits out an emission already in progress.
	p.emitMu.Lock()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.emitMu.Unlock()
}

func (p *Provider) acquire(ctx context.Context) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	ch := p.group.DoChan("acquire", func() (interface{}, error) {
		return nil, p.run()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes one acquisition against the provider's own lifetime context, so
// a caller giving up early does not abort the fetch other callers share.
func (p *Provider) run() error {
	hasFix := p.update(func(s *Snapshot) {
		s.Loading = true
		s.Error = ""
		if s.Coordinate == nil {
			s.State = StateRequesting
		} else {
			s.State = StateRefreshing
		}
	})

	if !hasFix {
		if err := p.requestPermission(); err != nil {
			return err
		}
	}

	fetchCtx, cancel := context.WithTimeout(p.base, p.positionTimeout)
	defer cancel()

	coord, err := p.locator.CurrentPosition(fetchCtx, p.accuracy)
	if err == nil {
		err = coord.Validate()
	}
	if err != nil {
		return p.fail(classify(fetchCtx, err), StateGranted)
	}

	p.update(func(s *Snapshot) {
		c := coord
		s.Coordinate = &c
		s.State = StateGranted
		s.Error = ""
		s.Loading = false
	})
	p.record(OutcomeGranted)
	p.logger.Debug("location acquired",
		slog.Float64("lat", coord.Lat),
		slog.Float64("lng", coord.Lng),
		slog.String("accuracy", string(p.accuracy)))
	return nil
}

func (p *Provider) requestPermission() error {
	permCtx, cancel := context.WithTimeout(p.base, p.permissionTimeout)
	defer cancel()

	perm, err := p.locator.RequestPermission(permCtx)
	if err != nil {
		return p.fail(classify(permCtx, err), StateIdle)
	}
	if perm != PermissionGranted {
		p.update(func(s *Snapshot) {
			s.State = StateDenied
			s.Error = MessagePermissionDenied
			s.Loading = false
		})
		p.record(OutcomeDenied)
		p.logger.Info("location permission denied")
		return ErrPermissionDenied
	}
	return nil
}

// fail records a positioning failure. A previously known coordinate is kept;
// without one the provider moves to next.
func (p *Provider) fail(err error, next State) error {
	p.update(func(s *Snapshot) {
		if s.Coordinate != nil {
			s.State = StateGranted
		} else {
			s.State = next
		}
		s.Error = MessagePositionUnavailable
		s.Loading = false
	})
	if errors.Is(err, ErrTimeout) {
		p.record(OutcomeTimeout)
	} else {
		p.record(OutcomeError)
	}
	p.logger.Warn("location acquisition failed", slog.String("error", err.Error()))
	return err
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, ErrPositioning) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPositioning, err)
}

// update applies fn to the snapshot and emits the result. It reports whether a
// coordinate was known before fn ran.
func (p *Provider) update(fn func(*Snapshot)) bool {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	hadFix := p.snap.Coordinate != nil
	fn(&p.snap)
	snap := copySnapshot(p.snap)
	closed := p.closed
	p.mu.Unlock()

	if !closed && p.onChange != nil {
		p.onChange(snap)
	}
	return hadFix
}

func (p *Provider) record(outcome string) {
	if p.observe != nil {
		p.observe(outcome)
	}
}

func copySnapshot(s Snapshot) Snapshot {
	if s.Coordinate != nil {
		c := *s.Coordinate
		s.Coordinate = &c
	}
	return s
}
