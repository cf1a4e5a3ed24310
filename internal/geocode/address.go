// Package geocode resolves venue addresses to coordinates through an external
// geocoding provider.
package geocode

import (
	"strings"

	"github.com/onnwee/nearby/internal/venue"
)

// BuildAddress joins venue name, street address and "zip city" into one
// comma-separated line, skipping blank components.
func BuildAddress(p venue.Parts) string {
	p = p.Trimmed()

	parts := make([]string, 0, 3)
	if p.Name != "" {
		parts = append(parts, p.Name)
	}
	if p.Address != "" {
		parts = append(parts, p.Address)
	}
	cityLine := strings.TrimSpace(p.Zip + " " + p.City)
	if cityLine != "" {
		parts = append(parts, cityLine)
	}
	return strings.Join(parts, ", ")
}
