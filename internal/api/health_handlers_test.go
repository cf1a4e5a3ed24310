package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/nearby/internal/health"
)

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	h := NewHealthHandlers(nil)
	h.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decodeHealth(t, w)
	if resp.Status != "healthy" || resp.Checks["runtime"] != "ok" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("timestamp = %q", resp.Timestamp)
	}
}

func TestReady(t *testing.T) {
	ok := health.CheckerFunc(func(context.Context) error { return nil })
	failing := health.CheckerFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		checkers   map[string]health.Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "nothing configured",
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"metrics": "ok"},
		},
		{
			name:       "all healthy",
			checkers:   map[string]health.Checker{"database": ok, "redis": ok},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "ok", "redis": "ok", "metrics": "ok"},
		},
		{
			name:       "redis down",
			checkers:   map[string]health.Checker{"database": ok, "redis": failing},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "ok", "redis": "error", "metrics": "ok"},
		},
		{
			name:       "nil checker skipped",
			checkers:   map[string]health.Checker{"database": nil},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"metrics": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandlers(tt.checkers).Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			resp := decodeHealth(t, w)
			if len(resp.Checks) != len(tt.wantChecks) {
				t.Errorf("checks = %v, want %v", resp.Checks, tt.wantChecks)
			}
			for name, want := range tt.wantChecks {
				if resp.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, resp.Checks[name], want)
				}
			}
		})
	}
}

func TestReady_ChecksShareDeadline(t *testing.T) {
	var deadline time.Time
	slow := health.CheckerFunc(func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	})

	w := httptest.NewRecorder()
	NewHealthHandlers(map[string]health.Checker{"database": slow}).Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if deadline.IsZero() {
		t.Fatal("expected checks to run with a deadline")
	}
	if remaining := time.Until(deadline); remaining > readinessTimeout {
		t.Errorf("deadline too far: %s", remaining)
	}
}
