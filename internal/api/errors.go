// Package api provides the HTTP handlers of the nearby service and its
// standard JSON error format.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/nearby/internal/event"
	"github.com/onnwee/nearby/internal/geocode"
	"github.com/onnwee/nearby/internal/middleware"
	"github.com/onnwee/nearby/internal/partner"
	"github.com/onnwee/nearby/internal/venue"
)

// Error codes returned in the "code" field of error responses.
const (
	ErrCodeValidation             = "validation_error"
	ErrCodeBadRequest             = "bad_request"
	ErrCodeIncompleteVenue        = "incomplete_venue"
	ErrCodeAuthFailed             = "auth_failed"
	ErrCodeForbidden              = "forbidden"
	ErrCodeNotFound               = "not_found"
	ErrCodeAddressNotFound        = "address_not_found"
	ErrCodeGeocodingFailed        = "geocoding_failed"
	ErrCodeGeocodingUnavailable   = "geocoding_unavailable"
	ErrCodeGeocodingNotConfigured = "geocoding_not_configured"
	ErrCodeGeocodingTimeout       = "geocoding_timeout"
	ErrCodeRateLimited            = "rate_limit_exceeded"
	ErrCodeMethodNotAllowed       = "method_not_allowed"
	ErrCodeInternal               = "internal_error"
)

// ErrorResponse is the body of every error response:
// {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response and records code for the request
// log. Its signature matches middleware.ErrorWriter.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	middleware.SetErrorCode(r.Context(), code)

	data, err := json.Marshal(ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(r.Context(), "failed to write error response", "error", err)
	}
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// apiError is a classified domain error.
type apiError struct {
	status  int
	code    string
	message string
}

// classify maps an error from the event, partner, venue or geocode packages
// to its HTTP status and error code. Unknown errors are internal.
func classify(err error) apiError {
	switch {
	case errors.Is(err, event.ErrNotPartner):
		return apiError{http.StatusForbidden, ErrCodeForbidden, "Only partners can publish events"}
	case errors.Is(err, event.ErrMissingTitle):
		return apiError{http.StatusBadRequest, ErrCodeValidation, "Event title is required"}
	case errors.Is(err, event.ErrIncompleteVenue), errors.Is(err, venue.ErrIncomplete):
		return apiError{http.StatusBadRequest, ErrCodeIncompleteVenue, "Venue name, address, city and postal code are required"}
	case errors.Is(err, partner.ErrMissingID), errors.Is(err, partner.ErrMissingName), errors.Is(err, partner.ErrInvalidRole):
		return apiError{http.StatusBadRequest, ErrCodeValidation, err.Error()}
	case errors.Is(err, partner.ErrNotFound):
		return apiError{http.StatusNotFound, ErrCodeNotFound, "Profile not found"}
	case errors.Is(err, geocode.ErrNotFound):
		return apiError{http.StatusUnprocessableEntity, ErrCodeAddressNotFound, "The venue address could not be located"}
	case errors.Is(err, geocode.ErrMalformedResponse):
		return apiError{http.StatusUnprocessableEntity, ErrCodeGeocodingFailed, "The venue address could not be geocoded"}
	case errors.Is(err, geocode.ErrTimeout):
		return apiError{http.StatusGatewayTimeout, ErrCodeGeocodingTimeout, "Geocoding timed out"}
	case errors.Is(err, geocode.ErrNetwork):
		return apiError{http.StatusBadGateway, ErrCodeGeocodingUnavailable, "Geocoding service unavailable"}
	case errors.Is(err, geocode.ErrConfiguration):
		return apiError{http.StatusServiceUnavailable, ErrCodeGeocodingNotConfigured, "Geocoding is not configured"}
	default:
		return apiError{http.StatusInternalServerError, ErrCodeInternal, "Internal server error"}
	}
}

// writeDomainError classifies err and writes it. Internal errors are logged
// with msg; their details never reach the client.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	e := classify(err)
	if e.status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), msg, "error", err, "code", e.code)
	}
	WriteError(w, r, e.status, e.code, e.message)
}

// StatusCodeMapping returns the HTTP status used for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest, ErrCodeIncompleteVenue:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeAddressNotFound, ErrCodeGeocodingFailed:
		return http.StatusUnprocessableEntity
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeGeocodingUnavailable:
		return http.StatusBadGateway
	case ErrCodeGeocodingNotConfigured:
		return http.StatusServiceUnavailable
	case ErrCodeGeocodingTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
