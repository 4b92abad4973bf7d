package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/orthanc-go/orthanc/internal/metrics"
)

// Logging middleware records one structured line per request: method,
// path, status, size and latency, plus the chi request id so a line can
// be correlated with whatever else that request logged. It also feeds
// internal/metrics' request counter and latency histogram, keyed by the
// route pattern chi matched rather than the raw path so a resource id
// never explodes the metric's cardinality.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		route := routePattern(r)

		log.Info().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", duration).
			Msg("request handled")

		metrics.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		metrics.RequestDuration.WithLabelValues(route, r.Method).Observe(duration.Seconds())
	})
}

// routePattern prefers the chi route pattern the request matched
// ("/instances/{id}") over the raw path, so per-resource ids don't
// explode the metric's label cardinality. Falls back to the raw path
// for a request chi never routed (e.g. a 404 with no match).
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
