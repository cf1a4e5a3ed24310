package event

import (
	"strings"

	"github.com/onnwee/nearby/internal/geo"
)

// DefaultFallback is the city centre used for events without a usable coordinate.
var DefaultFallback = geo.Coordinate{Lat: 50.637, Lng: 3.063}

// ProjectionOptions configures Project.
type ProjectionOptions struct {
	// Fallback replaces missing or invalid coordinates. Nil means DefaultFallback.
	Fallback *geo.Coordinate
}

func (o ProjectionOptions) fallback() geo.Coordinate {
	if o.Fallback != nil && o.Fallback.Valid() {
		return *o.Fallback
	}
	return DefaultFallback
}

// Project maps raw records to display events, one for one and in order.
func Project(raw []RawRecord, opts ProjectionOptions) []DisplayEvent {
	out := make([]DisplayEvent, 0, len(raw))
	fallback := opts.fallback()
	for _, r := range raw {
		out = append(out, project(r, fallback))
	}
	return out
}

func project(r RawRecord, fallback geo.Coordinate) DisplayEvent {
	loc, approximate := fallback, true
	if r.Location != nil && r.Location.Valid() {
		loc, approximate = *r.Location, false
	}

	startTime := strings.TrimSpace(r.StartTime)
	if startTime == "" {
		startTime = Placeholder
	}
	currency := r.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	return DisplayEvent{
		ID:            r.ID,
		PartnerID:     r.PartnerID,
		Title:         r.Title,
		Description:   r.Description,
		Category:      r.Category,
		Date:          r.Date,
		Time:          startTime,
		EndTime:       r.EndTime,
		IsFree:        r.IsFree,
		Price:         r.Price,
		Currency:      currency,
		Capacity:      r.Capacity,
		Location:      loc,
		Approximate:   approximate,
		LocationLabel: LocationLabel(r.VenueCity, r.VenueName, r.VenueAddress),
		Distance:      Placeholder,
		Cell:          loc.Cell(),
	}
}

// LocationLabel joins the non-empty city and venue name with " - ", falling
// back to the street address when both are empty.
func LocationLabel(city, venueName, address string) string {
	parts := make([]string, 0, 2)
	if c := strings.TrimSpace(city); c != "" {
		parts = append(parts, c)
	}
	if n := strings.TrimSpace(venueName); n != "" {
		parts = append(parts, n)
	}
	if len(parts) == 0 {
		return strings.TrimSpace(address)
	}
	return strings.Join(parts, " - ")
}
