package event

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/nearby/internal/geo"
	"github.com/onnwee/nearby/internal/geocode"
	"github.com/onnwee/nearby/internal/partner"
	"github.com/onnwee/nearby/internal/tracing"
	"github.com/onnwee/nearby/internal/venue"
)

// Geocoder resolves an address line to a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Coordinate, error)
}

// CreateParams is a partner's event submission. Nil pointers and blank
// strings mean "not provided".
type CreateParams struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Date        string   `json:"date,omitempty"`
	StartTime   string   `json:"start_time,omitempty"`
	EndTime     string   `json:"end_time,omitempty"`
	Capacity    *int     `json:"capacity,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	IsFree      *bool    `json:"is_free,omitempty"`

	// Venue overrides the partner's default venue field by field.
	venue.Parts
}

// Publisher creates events on behalf of partners. Nothing is persisted unless
// the venue address geocodes successfully.
type Publisher struct {
	store    Store
	geocoder Geocoder
	logger   *slog.Logger
}

// NewPublisher creates a Publisher. A nil logger uses slog.Default().
func NewPublisher(store Store, geocoder Geocoder, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{store: store, geocoder: geocoder, logger: logger}
}

// CreateForPartner validates params against the partner's profile, geocodes
// the resulting venue and stores the event. It returns the new event id.
func (p *Publisher) CreateForPartner(ctx context.Context, author partner.Profile, params CreateParams) (id string, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "event.create")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx, attribute.String("partner.id", author.ID))

	ev, err := p.Prepare(author, params)
	if err != nil {
		return "", err
	}

	address := geocode.BuildAddress(ev.Venue.Parts())
	coord, err := p.geocoder.Geocode(ctx, address)
	if err != nil {
		p.logger.Warn("event venue geocoding failed",
			"partner_id", author.ID,
			"address_len", len(address),
			"error", err,
		)
		return "", fmt.Errorf("failed to geocode venue: %w", err)
	}
	ev.Location = coord
	tracing.AddEvent(ctx, "venue geocoded", attribute.String("cell", coord.Cell()))

	id, err = p.store.Create(ctx, ev)
	if err != nil {
		return "", err
	}

	p.logger.Info("event created", "event_id", id, "partner_id", author.ID)
	return id, nil
}

// Prepare applies the creation rules that need no I/O: role and title checks,
// venue merge and price defaults. The returned event has no location yet.
func (p *Publisher) Prepare(author partner.Profile, params CreateParams) (NewEvent, error) {
	if !author.IsPartner() {
		return NewEvent{}, ErrNotPartner
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		return NewEvent{}, ErrMissingTitle
	}

	v, err := venue.NewComplete(params.Parts.Merge(author.Venue))
	if err != nil {
		return NewEvent{}, fmt.Errorf("%w: %w", ErrIncompleteVenue, err)
	}

	price := 0.0
	if params.Price != nil {
		price = *params.Price
	}
	isFree := price <= 0
	if params.IsFree != nil {
		isFree = *params.IsFree
	}
	currency := strings.TrimSpace(params.Currency)
	if currency == "" {
		currency = DefaultCurrency
	}

	return NewEvent{
		PartnerID:   author.ID,
		Title:       title,
		Description: params.Description,
		Category:    strings.TrimSpace(params.Category),
		Date:        strings.TrimSpace(params.Date),
		StartTime:   strings.TrimSpace(params.StartTime),
		EndTime:     strings.TrimSpace(params.EndTime),
		Capacity:    params.Capacity,
		Price:       price,
		Currency:    currency,
		IsFree:      isFree,
		Venue:       v,
	}, nil
}
