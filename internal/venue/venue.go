// Package venue models the physical place hosting an event.
package venue

import (
	"errors"
	"strings"
)

// ErrIncomplete is returned when a venue lacks any of name, address, city or postal code.
var ErrIncomplete = errors.New("venue is incomplete: name, address, city and postal code are required")

// Parts is a possibly partial venue description as entered by a partner.
type Parts struct {
	Name    string `json:"venue_name,omitempty"`
	Address string `json:"venue_address,omitempty"`
	City    string `json:"venue_city,omitempty"`
	Zip     string `json:"venue_zip,omitempty"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (p Parts) Trimmed() Parts {
	return Parts{
		Name:    strings.TrimSpace(p.Name),
		Address: strings.TrimSpace(p.Address),
		City:    strings.TrimSpace(p.City),
		Zip:     strings.TrimSpace(p.Zip),
	}
}

// Merge fills every blank field of p from fallback, field by field.
func (p Parts) Merge(fallback Parts) Parts {
	pick := func(v, fb string) string {
		if strings.TrimSpace(v) != "" {
			return v
		}
		return fb
	}
	return Parts{
		Name:    pick(p.Name, fallback.Name),
		Address: pick(p.Address, fallback.Address),
		City:    pick(p.City, fallback.City),
		Zip:     pick(p.Zip, fallback.Zip),
	}
}

// Complete is a venue with all four fields present. The zero value is not
// valid; construct it with NewComplete.
type Complete struct {
	parts Parts
}

// NewComplete validates p and returns a Complete venue, or ErrIncomplete.
func NewComplete(p Parts) (Complete, error) {
	t := p.Trimmed()
	if t.Name == "" || t.Address == "" || t.City == "" || t.Zip == "" {
		return Complete{}, ErrIncomplete
	}
	return Complete{parts: t}, nil
}

// Name returns the venue name.
func (c Complete) Name() string { return c.parts.Name }

// Address returns the street address.
func (c Complete) Address() string { return c.parts.Address }

// City returns the city.
func (c Complete) City() string { return c.parts.City }

// Zip returns the postal code.
func (c Complete) Zip() string { return c.parts.Zip }

// Parts returns the venue as plain parts.
func (c Complete) Parts() Parts { return c.parts }
