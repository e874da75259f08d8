package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Elghamazy/comoe/internal/config"
	"github.com/Elghamazy/comoe/internal/log"
)

// ConfigApplier receives the hot-reloadable subset of a new configuration.
type ConfigApplier interface {
	ApplyConfig(cfg config.AppConfig)
}

// App owns the long-lived runtime pieces (config watcher, reload wiring)
// and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      *Manager
	holder       *config.Holder
	applier      ConfigApplier
	reloadSignal os.Signal
}

// NewApp creates the runtime orchestrator. holder and applier may be nil
// when hot reloading is not wanted.
func NewApp(manager *Manager, holder *config.Holder, applier ConfigApplier) *App {
	return &App{
		logger:       log.WithComponent("app"),
		manager:      manager,
		holder:       holder,
		applier:      applier,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts the background subsystems and blocks until ctx is cancelled
// or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	// The file watcher is best-effort: a missing inotify backend should
	// not keep the relay from serving.
	if a.holder != nil {
		if err := a.holder.StartWatcher(ctx); err != nil {
			a.logger.Warn().
				Err(err).
				Str("event", "config.watcher_start_failed").
				Msg("failed to start config watcher")
		}
	}

	if a.holder != nil && a.applier != nil {
		applyCh := make(chan config.AppConfig, 1)
		a.holder.RegisterListener(applyCh)

		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					a.applier.ApplyConfig(cfg)
				}
			}
		})
	}

	if a.holder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str("event", "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal")

					if err := a.holder.Reload(ctx); err != nil {
						a.logger.Warn().
							Err(err).
							Str("event", "config.reload_failed").
							Msg("config reload failed, keeping previous config")
					}
				}
			}
		})
	}

	g.Go(func() error {
		return a.manager.Start(ctx)
	})

	return g.Wait()
}
