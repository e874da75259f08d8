// Package daemon owns the process lifecycle: the HTTP listener, graceful
// shutdown with hooks, and the wiring between config reloads and the
// running server.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Elghamazy/comoe/internal/config"
	"github.com/Elghamazy/comoe/internal/log"
)

// ShutdownHook performs cleanup during graceful shutdown. Hooks run in
// reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// Manager runs the HTTP server and coordinates shutdown. Streaming
// responses can outlive any graceful window, so shutdown is two-phase:
// a bounded drain, then request-context cancellation plus connection
// close for whatever is still transferring.
type Manager struct {
	serverCfg config.ServerConfig
	handler   http.Handler

	server     *http.Server
	baseCtx    context.Context
	baseCancel context.CancelFunc

	hooks []namedHook

	started  bool
	stopping bool
	mu       sync.Mutex

	logger zerolog.Logger
}

// NewManager creates a manager serving handler on the configured address.
func NewManager(serverCfg config.ServerConfig, handler http.Handler) (*Manager, error) {
	if handler == nil {
		return nil, ErrMissingHandler
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Manager{
		serverCfg:  serverCfg,
		handler:    handler,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		logger:     log.WithComponent("daemon"),
	}, nil
}

// Start runs the server and blocks until ctx is cancelled or the server
// fails, then shuts down. The returned error is nil for a clean stop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	m.server = &http.Server{
		Addr:              m.serverCfg.ListenAddr,
		Handler:           m.handler,
		ReadTimeout:       m.serverCfg.ReadTimeout,
		ReadHeaderTimeout: m.serverCfg.ReadTimeout / 2,
		WriteTimeout:      m.serverCfg.WriteTimeout,
		IdleTimeout:       m.serverCfg.IdleTimeout,
		MaxHeaderBytes:    m.serverCfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return m.baseCtx },
	}

	errChan := make(chan error, 1)
	go func() {
		m.logger.Info().
			Str("event", "daemon.listening").
			Str("addr", m.serverCfg.ListenAddr).
			Msg("HTTP server listening")

		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().
				Err(err).
				Str("event", "daemon.server_failed").
				Msg("HTTP server failed")
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		if shutdownErr := m.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			return errors.Join(err, shutdownErr)
		}
		return err
	case <-ctx.Done():
		m.logger.Info().
			Str("event", "daemon.shutdown_signal").
			Msg("shutdown requested")
		return m.Shutdown(context.WithoutCancel(ctx))
	}
}

// Shutdown drains the server within the configured timeout, aborts any
// remaining streams, and runs the registered hooks. Safe to call more
// than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	m.stopping = true
	m.mu.Unlock()

	timeout := m.serverCfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var errs []error

	if m.server != nil {
		if err := m.server.Shutdown(shutdownCtx); err != nil {
			// Streams still running after the drain window: cancel their
			// request contexts so the relay kills its engines, then drop
			// the connections.
			m.logger.Warn().
				Err(err).
				Str("event", "daemon.drain_timeout").
				Msg("graceful drain timed out, aborting remaining streams")
			m.baseCancel()
			if closeErr := m.server.Close(); closeErr != nil {
				errs = append(errs, fmt.Errorf("server close: %w", closeErr))
			}
		}
	}
	m.baseCancel()

	m.mu.Lock()
	hooks := make([]namedHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str("event", "daemon.hook_failed").
				Str("hook", h.name).
				Dur("duration", time.Since(start)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
		} else {
			m.logger.Debug().
				Str("hook", h.name).
				Dur("duration", time.Since(start)).
				Msg("shutdown hook completed")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	m.logger.Info().Str("event", "daemon.stopped").Msg("daemon stopped cleanly")
	return nil
}

// RegisterShutdownHook registers a cleanup function to run during
// shutdown. Hooks run in reverse registration order.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
}
