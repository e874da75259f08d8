// Package health aggregates liveness and readiness checks for the daemon.
//
// Liveness (/healthz) always answers 200 once the process is up; readiness
// (/readyz) answers 503 until every registered checker passes, so load
// balancers stop routing to an instance whose transcoding engine is missing.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Elghamazy/comoe/internal/log"
)

// Status classifies the outcome of a single check or the aggregate.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// checkTimeout bounds a single checker so one slow probe cannot stall the
// whole endpoint.
const checkTimeout = 2 * time.Second

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Checker probes one dependency of the daemon.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// HealthResponse is the JSON body served on /healthz.
type HealthResponse struct {
	Status  Status                 `json:"status"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the JSON body served on /readyz.
type ReadinessResponse struct {
	Ready  bool                   `json:"ready"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Manager runs registered checkers and serves the aggregate over HTTP.
type Manager struct {
	version string
	started time.Time

	mu       sync.RWMutex
	checkers []Checker
}

// NewManager returns a Manager reporting the given build version.
func NewManager(version string) *Manager {
	return &Manager{
		version: version,
		started: time.Now(),
	}
}

// RegisterChecker adds a checker to every subsequent health evaluation.
func (m *Manager) RegisterChecker(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

func (m *Manager) snapshot() []Checker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Checker, len(m.checkers))
	copy(out, m.checkers)
	return out
}

func (m *Manager) run(ctx context.Context) map[string]CheckResult {
	checkers := m.snapshot()
	results := make(map[string]CheckResult, len(checkers))
	for _, c := range checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		results[c.Name()] = c.Check(cctx)
		cancel()
	}
	return results
}

// Health evaluates all checkers and folds them into a single status:
// any unhealthy check makes the aggregate unhealthy, any degraded check
// makes it degraded, otherwise it is healthy.
func (m *Manager) Health(ctx context.Context) HealthResponse {
	results := m.run(ctx)

	overall := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}

	return HealthResponse{
		Status:  overall,
		Version: m.version,
		Uptime:  time.Since(m.started).Round(time.Second).String(),
		Checks:  results,
	}
}

// Ready reports whether the daemon should receive traffic. Degraded checks
// do not block readiness; only unhealthy ones do.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	results := m.run(ctx)

	ready := true
	for _, r := range results {
		if r.Status == StatusUnhealthy {
			ready = false
			break
		}
	}

	return ReadinessResponse{Ready: ready, Checks: results}
}

// ServeHealth handles GET /healthz. It always answers 200: the process is
// alive by virtue of answering, and restarting it would not fix a missing
// engine binary.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	resp := m.Health(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithComponentFromContext(r.Context(), "health").Debug().
			Err(err).
			Str("event", "health.encode_failed").
			Msg("failed to write health response")
	}
}

// ServeReady handles GET /readyz and answers 503 until all checks pass.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	resp := m.Ready(r.Context())

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithComponentFromContext(r.Context(), "health").Debug().
			Err(err).
			Str("event", "health.encode_failed").
			Msg("failed to write readiness response")
	}
}
