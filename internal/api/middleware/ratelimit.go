package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// PerIPRateLimit bounds request rate per client IP with a sliding window.
// It complements the token-bucket limiter: the bucket smooths sustained
// load, the window caps short spikes. The enabled callback is consulted per
// request so a config reload can switch limiting on and off; the window
// size itself is fixed at construction.
func PerIPRateLimit(requestsPerSecond int, enabled func() bool) func(http.Handler) http.Handler {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	limit := httprate.Limit(
		requestsPerSecond,
		time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		}),
	)

	return func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if enabled != nil && !enabled() {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}
