// Package ratelimit implements the optional admission limits in front of
// the relay endpoint. The relay core never rate limits; this sits in the
// outer middleware stack and is disabled unless configured.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitExceeded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "comoe",
		Name:      "ratelimit_exceeded_total",
		Help:      "Total rate limit rejections",
	},
	[]string{"limit_type"},
)

// Config holds rate limiting configuration.
type Config struct {
	// Global limits across all clients.
	GlobalRate  rate.Limit
	GlobalBurst int

	// Per-IP limits.
	PerIPRate  rate.Limit
	PerIPBurst int

	// CleanupInterval bounds how long stale per-IP limiters are retained.
	CleanupInterval time.Duration
}

// Limiter enforces a global and a per-client-IP token bucket.
type Limiter struct {
	mu     sync.RWMutex
	config Config
	global *rate.Limiter
	perIP  map[string]*rate.Limiter

	lastCleanup time.Time
}

// New creates a rate limiter with the given config.
func New(config Config) *Limiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	return &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perIP:       make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether a request from clientIP fits under the limits.
func (l *Limiter) Allow(clientIP string) bool {
	if !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global").Inc()
		return false
	}

	if !l.ipLimiter(clientIP).Allow() {
		rateLimitExceeded.WithLabelValues("per_ip").Inc()
		return false
	}

	l.maybeCleanup()
	return true
}

// SetConfig applies new limits at runtime (config hot reload). The global
// bucket is adjusted in place; per-IP buckets are rebuilt lazily with the
// new rates.
func (l *Limiter) SetConfig(config Config) {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.global.SetLimit(config.GlobalRate)
	l.global.SetBurst(config.GlobalBurst)
	l.perIP = make(map[string]*rate.Limiter)
	l.config = config
}

func (l *Limiter) ipLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.perIP[ip]
	if !exists {
		limiter = rate.NewLimiter(l.config.PerIPRate, l.config.PerIPBurst)
		l.perIP[ip] = limiter
	}
	return limiter
}

// maybeCleanup drops all per-IP limiters once the cleanup interval passed.
// Dropping everything is deliberately simple; a refilled bucket is the worst
// that can happen to a returning client.
func (l *Limiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}
	l.perIP = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}

// Middleware rejects over-limit requests with 429. The enabled callback is
// consulted per request so the limiter honors config hot reload without a
// router rebuild.
func Middleware(l *Limiter, enabled func() bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if enabled != nil && !enabled() {
				next.ServeHTTP(w, r)
				return
			}
			if !l.Allow(ClientIP(r)) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client IP from the request, honoring the usual
// reverse-proxy headers before falling back to the socket address.
func ClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		// May contain "client, proxy1, proxy2"; take the original client.
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			xff = xff[:idx]
		}
		if xff = strings.TrimSpace(xff); xff != "" {
			return xff
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
