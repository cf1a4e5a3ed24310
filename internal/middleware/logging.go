// Package middleware provides the HTTP middleware chain of the nearby API:
// request ids, structured request logging, tracing, metrics, CORS, rate
// limiting and bearer authentication.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type (
	userIDKey       struct{}
	userRoleKey     struct{}
	errorCodeKey    struct{}
	requestStateKey struct{}
)

// requestState is shared between Logging and the handlers it wraps so that
// values set deeper in the chain (user id, error code) reach the log line.
type requestState struct {
	userID    string
	errorCode string
}

func stateFrom(ctx context.Context) *requestState {
	s, _ := ctx.Value(requestStateKey{}).(*requestState)
	return s
}

// SetUserID stores the authenticated user id in the context.
func SetUserID(ctx context.Context, id string) context.Context {
	if s := stateFrom(ctx); s != nil {
		s.userID = id
	}
	return context.WithValue(ctx, userIDKey{}, id)
}

// GetUserID returns the authenticated user id, or "".
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// SetUserRole stores the authenticated user's role in the context.
func SetUserRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, userRoleKey{}, role)
}

// GetUserRole returns the authenticated user's role, or "".
func GetUserRole(ctx context.Context) string {
	if role, ok := ctx.Value(userRoleKey{}).(string); ok {
		return role
	}
	return ""
}

// SetErrorCode records the error code of an error response. The code is
// reported by Logging even when the returned context is discarded.
func SetErrorCode(ctx context.Context, code string) context.Context {
	if s := stateFrom(ctx); s != nil {
		s.errorCode = code
	}
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode returns the recorded error code, or "".
func GetErrorCode(ctx context.Context) string {
	if s := stateFrom(ctx); s != nil && s.errorCode != "" {
		return s.errorCode
	}
	if code, ok := ctx.Value(errorCodeKey{}).(string); ok {
		return code
	}
	return ""
}

// NewLogger returns a JSON logger at info level in production and a text
// logger at debug level otherwise.
func NewLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(handler)
}

// Logging logs one line per request with method, path, status, latency_ms,
// size, request_id, trace_id, user_id and, for 4xx/5xx, error_code. The
// level follows the status class.
//
// A panicking handler produces no log line; put a recovery middleware
// outside Logging if that matters.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			state := &requestState{}
			ctx := context.WithValue(r.Context(), requestStateKey{}, state)
			rw := newStatusRecorder(w)

			next.ServeHTTP(rw, r.WithContext(ctx))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
				slog.Int64("size", rw.size),
			}
			if requestID := GetRequestID(ctx); requestID != "" {
				attrs = append(attrs, slog.String("request_id", requestID))
			}
			if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
				attrs = append(attrs, slog.String("trace_id", sc.TraceID().String()))
			}
			if state.userID != "" {
				attrs = append(attrs, slog.String("user_id", state.userID))
			}
			if rw.statusCode >= 400 && state.errorCode != "" {
				attrs = append(attrs, slog.String("error_code", state.errorCode))
			}

			level := slog.LevelInfo
			switch {
			case rw.statusCode >= 500:
				level = slog.LevelError
			case rw.statusCode >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(ctx, level, "request completed", attrs...)
		})
	}
}
