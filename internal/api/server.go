// Package api assembles the HTTP surface of the relay: the chi router,
// the middleware stack, and the small operational endpoints that sit
// next to /compress.
package api

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/Elghamazy/comoe/internal/api/middleware"
	"github.com/Elghamazy/comoe/internal/config"
	"github.com/Elghamazy/comoe/internal/health"
	"github.com/Elghamazy/comoe/internal/log"
	"github.com/Elghamazy/comoe/internal/ratelimit"
)

// Deps carries the collaborators the server exposes over HTTP. Compress
// is the relay handler; a nil Limiter disables admission control
// entirely regardless of configuration.
type Deps struct {
	Version  string
	Compress http.Handler
	Health   *health.Manager
	Limiter  *ratelimit.Limiter
}

// Server is the HTTP front of the relay. It satisfies http.Handler and
// stays valid across config reloads: ApplyConfig swaps the hot-tunable
// parts in place, the router itself is immutable.
type Server struct {
	deps    Deps
	handler http.Handler

	rateLimitOn atomic.Bool
}

// New assembles the router and middleware stack for the given
// configuration.
func New(cfg config.AppConfig, deps Deps) *Server {
	s := &Server{deps: deps}
	s.rateLimitOn.Store(cfg.RateLimit.Enabled)
	s.handler = s.routes(cfg)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ApplyConfig applies the hot-reloadable subset of a new configuration.
// Listener-level settings (address, timeouts) require a restart and are
// ignored here.
func (s *Server) ApplyConfig(cfg config.AppConfig) {
	log.SetLevel(cfg.Log.Level)
	s.rateLimitOn.Store(cfg.RateLimit.Enabled)
	if s.deps.Limiter != nil {
		s.deps.Limiter.SetConfig(limiterConfig(cfg.RateLimit))
	}
}

func (s *Server) rateLimitEnabled() bool {
	return s.rateLimitOn.Load()
}

func (s *Server) routes(cfg config.AppConfig) http.Handler {
	r := chi.NewRouter()

	// Recovery sits outermost so panics in any later middleware still
	// produce a response; ordering below it follows request flow.
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders)
	if cfg.Telemetry.Enabled {
		r.Use(middleware.OTelHTTP(cfg.Telemetry.ServiceName))
	}
	r.Use(middleware.Metrics)
	r.Use(middleware.Logging)

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)

	r.Get("/", s.handleIndex)
	r.Get("/health", handleHealth)
	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// /compress gets two admission layers: the reconfigurable token
	// buckets (global + per-IP) and a per-IP sliding window. Both read
	// the enabled flag per request so reloads take effect immediately.
	r.Group(func(g chi.Router) {
		if s.deps.Limiter != nil {
			g.Use(ratelimit.Middleware(s.deps.Limiter, s.rateLimitEnabled))
			g.Use(middleware.PerIPRateLimit(int(cfg.RateLimit.PerIPRPS), s.rateLimitEnabled))
		}
		g.Method(http.MethodGet, "/compress", s.deps.Compress)
	})

	return r
}

// limiterConfig translates the config section into limiter terms.
func limiterConfig(cfg config.RateLimitConfig) ratelimit.Config {
	return ratelimit.Config{
		GlobalRate:      rate.Limit(cfg.GlobalRPS),
		GlobalBurst:     cfg.GlobalBurst,
		PerIPRate:       rate.Limit(cfg.PerIPRPS),
		PerIPBurst:      cfg.PerIPBurst,
		CleanupInterval: cfg.CleanupInterval,
	}
}
