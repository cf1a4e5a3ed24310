package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/onnwee/nearby/internal/health"
)

// readinessTimeout bounds all dependency checks of one /ready request.
const readinessTimeout = 5 * time.Second

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	checkers map[string]health.Checker
	now      func() time.Time
}

// NewHealthHandlers creates probe handlers. checkers maps a dependency name
// ("database", "redis") to its checker; nil checkers are skipped, so only
// configured dependencies are probed.
func NewHealthHandlers(checkers map[string]health.Checker) *HealthHandlers {
	active := make(map[string]health.Checker, len(checkers))
	for name, c := range checkers {
		if c != nil {
			active[name] = c
		}
	}
	return &HealthHandlers{checkers: active, now: time.Now}
}

// HealthResponse is the body of both probes.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health. It only reports that the process serves requests.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready. Configured dependencies are checked concurrently;
// any failure yields 503.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.checkers[name].HealthCheck(ctx)
		}()
	}
	wg.Wait()

	checks := map[string]string{"metrics": "ok"}
	healthy := true
	for i, name := range names {
		if err := results[i]; err != nil {
			checks[name] = "error"
			healthy = false
			slog.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
			continue
		}
		checks[name] = "ok"
	}

	resp := HealthResponse{
		Status:    "healthy",
		Checks:    checks,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
