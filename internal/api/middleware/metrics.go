package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Elghamazy/comoe/internal/metrics"
)

// Metrics records request count and duration per route. Routes are labeled
// by chi pattern, not raw path, to keep metric cardinality bounded. The
// writer is wrapped with chi's WrapResponseWriter, which preserves
// http.Flusher for the streaming endpoint.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			route := routePattern(r)
			metrics.IncRequest(route, ww.Status())
			metrics.ObserveRequestDuration(route, time.Since(start))
		}()

		next.ServeHTTP(ww, r)
	})
}

// routePattern resolves the chi route pattern; it is populated by the time
// the deferred recording runs. Unmatched requests fall back to the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
