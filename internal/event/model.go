// Package event turns raw event records into ranked, display-ready lists and
// owns the event store contract used to create and subscribe to events.
package event

import (
	"errors"
	"strings"
	"time"

	"github.com/onnwee/nearby/internal/geo"
	"github.com/onnwee/nearby/internal/venue"
)

// Placeholder is shown for a start time or distance that is not known yet.
const Placeholder = "—"

// DefaultCurrency is applied when an event carries no currency.
const DefaultCurrency = "EUR"

// Common errors for event operations.
var (
	ErrNotPartner      = errors.New("only partners can publish events")
	ErrMissingTitle    = errors.New("event title is required")
	ErrIncompleteVenue = errors.New("partner venue is incomplete")
)

// RawRecord is an event as stored. Empty strings mean the field was never set.
type RawRecord struct {
	ID          string `json:"id"`
	PartnerID   string `json:"partner_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Date        string `json:"date,omitempty"`       // YYYY-MM-DD
	StartTime   string `json:"start_time,omitempty"` // HH:MM
	EndTime     string `json:"end_time,omitempty"`

	IsFree   bool     `json:"is_free"`
	Price    *float64 `json:"price,omitempty"`
	Currency string   `json:"currency,omitempty"`
	Capacity *int     `json:"capacity,omitempty"`

	VenueName    string `json:"venue_name"`
	VenueAddress string `json:"venue_address"`
	VenueCity    string `json:"venue_city"`
	VenueZip     string `json:"venue_zip"`

	// Location is nil when the venue was never geocoded.
	Location *geo.Coordinate `json:"location,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayEvent is the render-ready projection of a RawRecord.
type DisplayEvent struct {
	ID          string   `json:"id"`
	PartnerID   string   `json:"partner_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	Date        string   `json:"date,omitempty"`
	Time        string   `json:"time"`
	EndTime     string   `json:"end_time,omitempty"`
	IsFree      bool     `json:"is_free"`
	Price       *float64 `json:"price,omitempty"`
	Currency    string   `json:"currency"`
	Capacity    *int     `json:"capacity,omitempty"`

	Location geo.Coordinate `json:"location"`
	// Approximate is set when Location is the configured fallback rather than
	// the geocoded venue.
	Approximate   bool   `json:"approximate"`
	LocationLabel string `json:"location_label"`
	Distance      string `json:"distance"`
	Cell          string `json:"cell"`
}

// RankedEvent is a DisplayEvent annotated with its distance from the user.
type RankedEvent struct {
	DisplayEvent
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
}

// SortMode selects the ranking key.
type SortMode string

const (
	SortDistance SortMode = "distance"
	SortTime     SortMode = "time"
)

// ParseSortMode maps a client value to a SortMode, defaulting to distance.
func ParseSortMode(s string) SortMode {
	if strings.EqualFold(strings.TrimSpace(s), string(SortTime)) {
		return SortTime
	}
	return SortDistance
}

// NewEvent is a validated creation payload: a complete venue and a resolved
// coordinate are required to build one.
type NewEvent struct {
	PartnerID   string
	Title       string
	Description string
	Category    string
	Date        string
	StartTime   string
	EndTime     string
	Capacity    *int
	Price       float64
	Currency    string
	IsFree      bool
	Venue       venue.Complete
	Location    geo.Coordinate
}

// record converts the payload into the stored representation.
func (n NewEvent) record(id string, now time.Time) RawRecord {
	price := n.Price
	loc := n.Location
	return RawRecord{
		ID:           id,
		PartnerID:    n.PartnerID,
		Title:        n.Title,
		Description:  n.Description,
		Category:     n.Category,
		Date:         n.Date,
		StartTime:    n.StartTime,
		EndTime:      n.EndTime,
		IsFree:       n.IsFree,
		Price:        &price,
		Currency:     n.Currency,
		Capacity:     n.Capacity,
		VenueName:    n.Venue.Name(),
		VenueAddress: n.Venue.Address(),
		VenueCity:    n.Venue.City(),
		VenueZip:     n.Venue.Zip(),
		Location:     &loc,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
