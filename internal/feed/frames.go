package feed

import (
	"github.com/onnwee/nearby/internal/event"
	"github.com/onnwee/nearby/internal/geo"
	"github.com/onnwee/nearby/internal/location"
)

// Client frame types.
const (
	FrameQuery           = "query"
	FrameSort            = "sort"
	FrameRefreshLocation = "refresh_location"
	FramePermission      = "permission"
	FramePosition        = "position"
	FramePositionError   = "position_error"
)

// Server frame types.
const (
	FramePermissionRequest = "permission_request"
	FrameLocateRequest     = "locate_request"
	FrameEvents            = "events"
	FrameError             = "error"
)

// ClientFrame is any frame a client may send. Fields irrelevant to Type are ignored.
type ClientFrame struct {
	Type    string   `json:"type"`
	Query   string   `json:"query,omitempty"`
	Sort    string   `json:"sort,omitempty"`
	Granted bool     `json:"granted,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
	Message string   `json:"message,omitempty"`
}

// PermissionRequestFrame asks the client to show its location permission prompt.
type PermissionRequestFrame struct {
	Type string `json:"type"`
}

// LocateRequestFrame asks the client for one position fix.
type LocateRequestFrame struct {
	Type     string            `json:"type"`
	Accuracy location.Accuracy `json:"accuracy"`
}

// LocationState is the location part of an events frame.
type LocationState struct {
	Status     location.Status `json:"status"`
	Coordinate *geo.Coordinate `json:"coordinate,omitempty"`
	Error      string          `json:"error,omitempty"`
	Loading    bool            `json:"loading"`
}

// EventsFrame carries the full ranked list after any input changed.
type EventsFrame struct {
	Type     string              `json:"type"`
	Events   []event.RankedEvent `json:"events"`
	Query    string              `json:"query"`
	Sort     event.SortMode      `json:"sort"`
	Location LocationState       `json:"location"`
}

// ErrorFrame reports a rejected client frame. The session stays open.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func locationState(s location.Snapshot) LocationState {
	pos := s.UserPosition()
	return LocationState{
		Status:     pos.Status,
		Coordinate: pos.Coordinate,
		Error:      s.Error,
		Loading:    s.Loading,
	}
}
