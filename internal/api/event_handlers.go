package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/nearby/internal/event"
	"github.com/onnwee/nearby/internal/geo"
	"github.com/onnwee/nearby/internal/location"
	"github.com/onnwee/nearby/internal/middleware"
	"github.com/onnwee/nearby/internal/partner"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// EventCreator creates events on behalf of partners. *event.Publisher
// implements it.
type EventCreator interface {
	CreateForPartner(ctx context.Context, author partner.Profile, params event.CreateParams) (string, error)
}

// EventHandlers serves event creation and the nearby listing.
type EventHandlers struct {
	creator    EventCreator
	store      event.Store
	partners   partner.Repository
	projection event.ProjectionOptions
}

// NewEventHandlers creates event handlers.
func NewEventHandlers(creator EventCreator, store event.Store, partners partner.Repository, projection event.ProjectionOptions) *EventHandlers {
	return &EventHandlers{
		creator:    creator,
		store:      store,
		partners:   partners,
		projection: projection,
	}
}

// CreateEventResponse is the body of a successful POST /events.
type CreateEventResponse struct {
	ID string `json:"id"`
}

// NearbyResponse is the body of GET /events/nearby.
type NearbyResponse struct {
	Events   []event.RankedEvent   `json:"events"`
	Count    int                   `json:"count"`
	Sort     event.SortMode        `json:"sort"`
	Query    string                `json:"query,omitempty"`
	Position location.UserPosition `json:"position"`
}

// CreateEvent handles POST /events. The caller must be authenticated with a
// partner role and have a stored partner profile.
func (h *EventHandlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteError(w, r, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}
	if partner.ParseRole(middleware.GetUserRole(r.Context())) != partner.RolePartner {
		WriteError(w, r, http.StatusForbidden, ErrCodeForbidden, "Only partners can publish events")
		return
	}

	var params event.CreateParams
	if err := decodeJSON(w, r, &params); err != nil {
		WriteError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	author, err := h.partners.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, partner.ErrNotFound) {
			WriteError(w, r, http.StatusForbidden, ErrCodeForbidden, "A partner profile is required to publish events")
			return
		}
		writeDomainError(w, r, err, "failed to load partner profile")
		return
	}

	id, err := h.creator.CreateForPartner(r.Context(), *author, params)
	if err != nil {
		writeDomainError(w, r, err, "failed to create event")
		return
	}

	writeJSON(w, r, http.StatusCreated, CreateEventResponse{ID: id})
}

// Nearby handles GET /events/nearby. lat and lng are optional but must be
// given together; without them events are listed with unknown distance.
func (h *EventHandlers) Nearby(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	pos, err := parsePosition(query.Get("lat"), query.Get("lng"))
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	records, err := h.store.List(r.Context(), event.Filter{PartnerID: strings.TrimSpace(query.Get("partner_id"))})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list events", "error", err)
		WriteError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to list events")
		return
	}

	mode := event.ParseSortMode(query.Get("sort"))
	q := strings.TrimSpace(query.Get("q"))
	ranked := event.Rank(event.Project(records, h.projection), pos, q, mode)

	writeJSON(w, r, http.StatusOK, NearbyResponse{
		Events:   ranked,
		Count:    len(ranked),
		Sort:     mode,
		Query:    q,
		Position: *pos,
	})
}

var (
	errPartialPosition = errors.New("lat and lng must be provided together")
	errLatNotNumber    = errors.New("lat must be a valid number")
	errLngNotNumber    = errors.New("lng must be a valid number")
)

// parsePosition returns an unknown position when both values are absent.
func parsePosition(latStr, lngStr string) (*location.UserPosition, error) {
	latStr, lngStr = strings.TrimSpace(latStr), strings.TrimSpace(lngStr)
	if latStr == "" && lngStr == "" {
		return &location.UserPosition{Status: location.StatusUnknown}, nil
	}
	if latStr == "" || lngStr == "" {
		return nil, errPartialPosition
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, errLatNotNumber
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, errLngNotNumber
	}
	c := geo.Coordinate{Lat: lat, Lng: lng}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return location.At(c), nil
}

// decodeJSON decodes a bounded request body holding exactly one JSON value.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
