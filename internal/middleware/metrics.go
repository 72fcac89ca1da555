package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/J41RO/MeStore-sub006/internal/telemetry"
)

// NewMetricsMiddleware records one request-count and one latency sample per
// request, labeled with the matched chi route pattern rather than the raw
// path so high-cardinality IDs stay out of the metric labels.
func NewMetricsMiddleware(metrics *telemetry.ServerMetrics) (func(http.Handler) http.Handler, error) {
	if metrics == nil {
		return nil, errors.New("metrics middleware requires server metrics")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			// RoutePattern is only populated after the router has matched,
			// so read it after the handler runs.
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			durationMs := float64(time.Since(start).Microseconds()) / 1000.0
			metrics.RecordRequest(r.Context(), r.Method, route, strconv.Itoa(status), durationMs)
		})
	}, nil
}
