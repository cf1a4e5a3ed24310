// Package feed runs live event feed sessions: one connected client, one
// subscription to the event store, one location provider and the ranked list
// derived from them.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/onnwee/nearby/internal/event"
	"github.com/onnwee/nearby/internal/location"
)

// Transport carries JSON frames to and from one client.
// *websocket.Conn satisfies it.
type Transport interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Config holds the collaborators and options of a Session.
type Config struct {
	Store      event.Store
	Filter     event.Filter
	Projection event.ProjectionOptions

	// Platform selects the accuracy hint sent to the client.
	Platform string
	// LocationTimeout bounds each position fetch. Zero uses the provider default.
	LocationTimeout time.Duration
	// PermissionTimeout bounds each permission prompt. Zero uses the provider default.
	PermissionTimeout time.Duration

	Logger  *slog.Logger
	Metrics *Metrics
}

// Session owns one client's feed. Run must be called exactly once.
type Session struct {
	id        string
	transport Transport
	cfg       Config
	logger    *slog.Logger

	// Owned by the Run goroutine.
	displays    []event.DisplayEvent
	haveRecords bool
	query       string
	sort        event.SortMode
	loc         location.Snapshot
}

// NewSession creates a session over transport.
func NewSession(transport Transport, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &Session{
		id:        id,
		transport: transport,
		cfg:       cfg,
		logger:    logger.With("session_id", id),
		sort:      event.SortDistance,
		loc:       location.Snapshot{State: location.StateIdle},
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Run serves the session until the client disconnects, a write fails or ctx
// is cancelled. The store subscription and location work are released and the
// transport is closed on every return path. A normal client close returns nil.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	var helpers sync.WaitGroup
	defer func() {
		cancel()
		_ = s.transport.Close()
		helpers.Wait()
	}()

	records := make(chan []event.RawRecord, 1)
	unsubscribe, err := s.cfg.Store.Subscribe(ctx, s.cfg.Filter, func(r []event.RawRecord) {
		offer(records, r)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}
	defer unsubscribe()

	s.cfg.Metrics.sessionOpened()
	defer s.cfg.Metrics.sessionClosed()

	outbox := make(chan any, 1)
	locator := newClientLocator(outbox)
	snapshots := make(chan location.Snapshot, 1)
	provider := location.NewProvider(locator,
		location.WithAccuracy(location.AccuracyFor(s.cfg.Platform)),
		location.WithPositionTimeout(s.cfg.LocationTimeout),
		location.WithPermissionTimeout(s.cfg.PermissionTimeout),
		location.WithLogger(s.logger),
		location.WithOnChange(func(snap location.Snapshot) { offer(snapshots, snap) }),
		location.WithObserver(s.cfg.Metrics.observeLocation),
	)
	defer provider.Close()

	acquire := func(fn func(context.Context) error) {
		helpers.Add(1)
		go func() {
			defer helpers.Done()
			if err := fn(ctx); err != nil {
				s.logger.Debug("location acquisition ended", "error", err)
			}
		}()
	}

	inputs := make(chan ClientFrame)
	readErr := make(chan error, 1)
	helpers.Add(1)
	go func() {
		defer helpers.Done()
		s.read(ctx, locator, inputs, readErr)
	}()

	s.logger.Info("feed session started",
		"partner_id", s.cfg.Filter.PartnerID,
		"platform", s.cfg.Platform,
	)
	acquire(provider.Initialize)

	for {
		dirty := false
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			if isNormalClose(err) {
				s.logger.Info("feed session closed by client")
				return nil
			}
			return fmt.Errorf("failed to read frame: %w", err)

		case r := <-records:
			s.displays = event.Project(r, s.cfg.Projection)
			s.haveRecords = true
			dirty = true

		case snap := <-snapshots:
			s.loc = snap
			dirty = true

		case frame := <-outbox:
			if err := s.transport.WriteJSON(frame); err != nil {
				return fmt.Errorf("failed to write frame: %w", err)
			}

		case in := <-inputs:
			switch in.Type {
			case FrameQuery:
				dirty = s.query != in.Query
				s.query = in.Query
			case FrameSort:
				mode := event.ParseSortMode(in.Sort)
				dirty = s.sort != mode
				s.sort = mode
			case FrameRefreshLocation:
				acquire(provider.Refresh)
			default:
				msg := ErrorFrame{Type: FrameError, Message: fmt.Sprintf("unknown frame type %q", in.Type)}
				if err := s.transport.WriteJSON(msg); err != nil {
					return fmt.Errorf("failed to write frame: %w", err)
				}
			}
		}

		if dirty && s.haveRecords {
			if err := s.transport.WriteJSON(s.recompute()); err != nil {
				return fmt.Errorf("failed to write events: %w", err)
			}
		}
	}
}

// recompute rebuilds the ranked list from the current inputs.
func (s *Session) recompute() EventsFrame {
	start := time.Now()
	ranked := event.Rank(s.displays, s.loc.UserPosition(), s.query, s.sort)
	s.cfg.Metrics.observeRecompute(time.Since(start).Seconds())

	return EventsFrame{
		Type:     FrameEvents,
		Events:   ranked,
		Query:    s.query,
		Sort:     s.sort,
		Location: locationState(s.loc),
	}
}

// read decodes client frames until the transport fails. Location replies go
// straight to the locator; everything else goes to the owner loop.
func (s *Session) read(ctx context.Context, locator *clientLocator, inputs chan<- ClientFrame, readErr chan<- error) {
	for {
		var f ClientFrame
		if err := s.transport.ReadJSON(&f); err != nil {
			readErr <- err
			return
		}
		f.Type = strings.TrimSpace(f.Type)
		if locator.deliver(f) {
			continue
		}
		select {
		case inputs <- f:
		case <-ctx.Done():
			return
		}
	}
}

func isNormalClose(err error) bool {
	return errors.Is(err, io.EOF) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
