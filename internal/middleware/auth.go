package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/onnwee/nearby/internal/auth"
)

// ErrorWriter writes an error response with a machine-readable code.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, code, message string)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

var errMissingBearer = errors.New("missing bearer token")

// RequireAuth rejects requests without a valid "Authorization: Bearer" access
// token with 401 auth_failed. Accepted requests carry the token subject and
// role in their context (see GetUserID and GetUserRole).
func RequireAuth(validator TokenValidator, writeError ErrorWriter) func(http.Handler) http.Handler {
	if writeError == nil {
		writeError = plainError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			var claims *auth.Claims
			if err == nil {
				claims, err = validator.ValidateToken(token)
			}
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="nearby"`)
				msg := "Authentication required"
				if errors.Is(err, auth.ErrExpiredToken) {
					msg = "Access token has expired"
				}
				writeError(w, r, http.StatusUnauthorized, "auth_failed", msg)
				return
			}

			ctx := SetUserID(r.Context(), claims.Subject)
			ctx = SetUserRole(ctx, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errMissingBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMissingBearer
	}
	return token, nil
}

func plainError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	SetErrorCode(r.Context(), code)
	http.Error(w, message, status)
}
