package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// bearerAuth rejects any request lacking "Authorization: Bearer <token>"
// matching token, compared in constant time so response latency
// cannot leak how many leading bytes matched. /metrics and /healthz are
// mounted outside this middleware's chain (spec.md §6).
func bearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				writeError(w, badRequestUnauthorized())
				return
			}
			got := []byte(strings.TrimPrefix(auth, prefix))
			if len(got) != len(want) || subtle.ConstantTimeCompare(got, want) != 1 {
				writeError(w, badRequestUnauthorized())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// accessLog emits one structured line per request and records the two
// Prometheus request metrics, using zap's structured fields per
// SPEC_FULL §4.E.
func accessLog(logger *zap.Logger, m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			dur := time.Since(start)

			route := routePattern(r)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, statusClass(rec.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(dur.Seconds())

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", dur),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// routePattern keeps the metrics label cardinality bounded: individual key
// values never become a label, only the logical route shape.
func routePattern(r *http.Request) string {
	switch {
	case strings.HasPrefix(r.URL.Path, "/keys"):
		return "/keys"
	case strings.HasPrefix(r.URL.Path, "/batch"):
		return "/batch"
	case strings.HasPrefix(r.URL.Path, "/metrics"):
		return "/metrics"
	case strings.HasPrefix(r.URL.Path, "/healthz"):
		return "/healthz"
	default:
		return "/{key}"
	}
}
