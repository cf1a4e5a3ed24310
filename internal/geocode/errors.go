package geocode

import (
	"errors"
	"fmt"
)

// Geocoding errors. Callers classify with errors.Is.
var (
	// ErrConfiguration means no API credential is configured.
	ErrConfiguration = errors.New("geocoding is not configured")

	// ErrNetwork means the HTTP call did not complete successfully.
	ErrNetwork = errors.New("geocoding request failed")

	// ErrTimeout is a network failure caused by the bounded wait expiring.
	ErrTimeout = fmt.Errorf("%w: timed out", ErrNetwork)

	// ErrNotFound means the provider returned no result for the address.
	ErrNotFound = errors.New("address not found")

	// ErrMalformedResponse means a result came back without usable coordinates.
	ErrMalformedResponse = errors.New("malformed geocoding response")
)

// Outcome labels used in metrics.
const (
	OutcomeOK            = "ok"
	OutcomeConfiguration = "configuration"
	OutcomeNetwork       = "network"
	OutcomeTimeout       = "timeout"
	OutcomeNotFound      = "not_found"
	OutcomeMalformed     = "malformed"
)

// Outcome returns the metrics label for err.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrConfiguration):
		return OutcomeConfiguration
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrNetwork):
		return OutcomeNetwork
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrMalformedResponse):
		return OutcomeMalformed
	default:
		return OutcomeNetwork
	}
}
