package api

import (
	"net/http"

	"github.com/onnwee/nearby/internal/middleware"
	"github.com/onnwee/nearby/internal/partner"
	"github.com/onnwee/nearby/internal/venue"
)

// PartnerHandlers serves the caller's own profile.
type PartnerHandlers struct {
	repo partner.Repository
}

// NewPartnerHandlers creates profile handlers backed by repo.
func NewPartnerHandlers(repo partner.Repository) *PartnerHandlers {
	return &PartnerHandlers{repo: repo}
}

// UpdateProfileRequest is the body of PUT /partners/me. Venue fields are
// the partner's default venue.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
	venue.Parts
}

// GetMe handles GET /partners/me.
func (h *PartnerHandlers) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteError(w, r, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	p, err := h.repo.Get(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err, "failed to load profile")
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// PutMe handles PUT /partners/me. The role is taken from the token, never
// from the body.
func (h *PartnerHandlers) PutMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteError(w, r, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var req UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	p := &partner.Profile{
		ID:          userID,
		Role:        partner.ParseRole(middleware.GetUserRole(r.Context())),
		DisplayName: req.DisplayName,
		Venue:       req.Parts,
	}
	if err := h.repo.Upsert(r.Context(), p); err != nil {
		writeDomainError(w, r, err, "failed to save profile")
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}
