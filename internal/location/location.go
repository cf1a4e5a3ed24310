// Package location acquires the user's position through an external locator
// (device permission dialog and positioning sensor) and tracks the result as a
// small state machine: idle -> requesting -> {granted, denied}, and
// granted -> refreshing -> granted on manual refresh.
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/onnwee/nearby/internal/geo"
)

// Location acquisition errors.
var (
	// ErrPermissionDenied is returned when the user refuses location access.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrPositioning is returned when the position could not be determined.
	ErrPositioning = errors.New("positioning failed")

	// ErrTimeout is a positioning failure caused by the bounded wait expiring.
	ErrTimeout = fmt.Errorf("%w: timed out", ErrPositioning)

	// ErrClosed is returned when the provider has been released.
	ErrClosed = errors.New("location provider closed")
)

// User-visible advisory messages.
const (
	MessagePermissionDenied   = "Location permission denied"
	MessagePositionUnavailable = "Unable to determine your position"
)

// Permission is the outcome of a permission request.
type Permission int

const (
	// PermissionDenied means the user refused foreground location access.
	PermissionDenied Permission = iota
	// PermissionGranted means foreground location access was granted.
	PermissionGranted
)

// Accuracy is the accuracy hint passed to the positioning collaborator.
type Accuracy string

const (
	// AccuracyBalanced trades precision for battery life.
	AccuracyBalanced Accuracy = "balanced"
	// AccuracyHigh requests the best available fix.
	AccuracyHigh Accuracy = "high"
)

// AccuracyFor returns the accuracy hint for a client platform.
// Android prefers battery, every other platform asks for high accuracy.
func AccuracyFor(platform string) Accuracy {
	if strings.EqualFold(strings.TrimSpace(platform), "android") {
		return AccuracyBalanced
	}
	return AccuracyHigh
}

// Locator is the device location collaborator. Both calls may block on the
// user or the sensor and must honour context cancellation.
type Locator interface {
	RequestPermission(ctx context.Context) (Permission, error)
	CurrentPosition(ctx context.Context, accuracy Accuracy) (geo.Coordinate, error)
}

// Status is the tri-state availability of the user's position.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusDenied    Status = "denied"
	StatusAvailable Status = "available"
)

// UserPosition is an optional coordinate plus its availability status.
type UserPosition struct {
	Coordinate *geo.Coordinate `json:"coordinate,omitempty"`
	Status     Status          `json:"status"`
}

// Known returns the coordinate if one is available.
func (p *UserPosition) Known() (geo.Coordinate, bool) {
	if p == nil || p.Coordinate == nil {
		return geo.Coordinate{}, false
	}
	return *p.Coordinate, true
}

// At returns an available UserPosition for c.
func At(c geo.Coordinate) *UserPosition {
	return &UserPosition{Coordinate: &c, Status: StatusAvailable}
}
