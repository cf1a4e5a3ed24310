package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// routes lists the paths served by the API. Anything else is reported as
// "other" so that scanners cannot blow up label cardinality.
var routes = map[string]struct{}{
	"/":              {},
	"/events":        {},
	"/events/nearby": {},
	"/events/feed":   {},
	"/partners/me":   {},
	"/health":        {},
	"/ready":         {},
	"/metrics":       {},
}

// normalizePath maps a request path to its route label.
func normalizePath(path string) string {
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	if _, ok := routes[path]; ok {
		return path
	}
	return "other"
}

// HTTPMetrics records duration, sizes and counts per route. Health probes
// are not recorded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := newStatusRecorder(w)

			next.ServeHTTP(rw, r)

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}
			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(rw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				rw.size,
			)
		})
	}
}
