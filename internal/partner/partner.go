// Package partner stores the account profiles that feed event creation: the
// account role and the partner's default venue.
package partner

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/onnwee/nearby/internal/venue"
)

// Common errors for partner operations.
var (
	ErrNotFound    = errors.New("partner profile not found")
	ErrMissingID   = errors.New("profile id is required")
	ErrMissingName = errors.New("display name is required")
	ErrInvalidRole = errors.New("role must be user or partner")
)

// Role is the account type.
type Role string

const (
	RoleUser    Role = "user"
	RolePartner Role = "partner"
)

// ParseRole maps a stored or claimed role to a Role. Unknown values are users.
func ParseRole(s string) Role {
	if Role(strings.ToLower(strings.TrimSpace(s))) == RolePartner {
		return RolePartner
	}
	return RoleUser
}

// Profile is an account profile. For partners Venue holds the default venue
// used to pre-fill new events.
type Profile struct {
	ID          string      `json:"id"`
	Role        Role        `json:"role"`
	DisplayName string      `json:"display_name"`
	Venue       venue.Parts `json:"venue"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// IsPartner reports whether the profile may publish events.
func (p Profile) IsPartner() bool {
	return p.Role == RolePartner
}

// Validate checks a profile before it is saved. Partners must register a
// complete venue.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return ErrMissingName
	}
	switch p.Role {
	case RoleUser:
		return nil
	case RolePartner:
		_, err := venue.NewComplete(p.Venue)
		return err
	default:
		return ErrInvalidRole
	}
}

// Repository stores profiles.
type Repository interface {
	// Get returns the profile for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Profile, error)

	// Upsert validates and saves the profile, creating it if needed.
	Upsert(ctx context.Context, p *Profile) error
}
