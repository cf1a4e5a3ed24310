package feed

import (
	"context"
	"errors"

	"github.com/onnwee/nearby/internal/geo"
	"github.com/onnwee/nearby/internal/location"
)

type positionReply struct {
	coord geo.Coordinate
	err   error
}

// clientLocator implements location.Locator by asking the connected client.
// Requests go out through the session owner; replies are routed in by the
// session reader.
type clientLocator struct {
	outbox      chan<- any
	permissions chan bool
	positions   chan positionReply
}

func newClientLocator(outbox chan<- any) *clientLocator {
	return &clientLocator{
		outbox:      outbox,
		permissions: make(chan bool, 1),
		positions:   make(chan positionReply, 1),
	}
}

func (l *clientLocator) RequestPermission(ctx context.Context) (location.Permission, error) {
	drain(l.permissions)
	if err := l.send(ctx, PermissionRequestFrame{Type: FramePermissionRequest}); err != nil {
		return location.PermissionDenied, err
	}
	select {
	case granted := <-l.permissions:
		if granted {
			return location.PermissionGranted, nil
		}
		return location.PermissionDenied, nil
	case <-ctx.Done():
		return location.PermissionDenied, ctx.Err()
	}
}

func (l *clientLocator) CurrentPosition(ctx context.Context, accuracy location.Accuracy) (geo.Coordinate, error) {
	drain(l.positions)
	if err := l.send(ctx, LocateRequestFrame{Type: FrameLocateRequest, Accuracy: accuracy}); err != nil {
		return geo.Coordinate{}, err
	}
	select {
	case reply := <-l.positions:
		return reply.coord, reply.err
	case <-ctx.Done():
		return geo.Coordinate{}, ctx.Err()
	}
}

func (l *clientLocator) send(ctx context.Context, frame any) error {
	select {
	case l.outbox <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver routes a client reply frame. It reports whether the frame was a reply.
func (l *clientLocator) deliver(f ClientFrame) bool {
	switch f.Type {
	case FramePermission:
		offer(l.permissions, f.Granted)
	case FramePosition:
		if f.Lat == nil || f.Lng == nil {
			offer(l.positions, positionReply{err: errors.New("position frame without coordinates")})
			return true
		}
		offer(l.positions, positionReply{coord: geo.Coordinate{Lat: *f.Lat, Lng: *f.Lng}})
	case FramePositionError:
		msg := f.Message
		if msg == "" {
			msg = "client could not determine its position"
		}
		offer(l.positions, positionReply{err: errors.New(msg)})
	default:
		return false
	}
	return true
}

// offer stores v in a one-slot channel, replacing any value not yet taken.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
