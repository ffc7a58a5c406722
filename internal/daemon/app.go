// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/tgsearch/internal/config"
	xglog "github.com/ManuGH/tgsearch/internal/log"
)

// Run resumes the persisted session and serves until ctx is cancelled or the server
// fails. The config watcher and the SIGHUP reload run alongside the server.
func (rt *Runtime) Run(ctx context.Context) error {
	return rt.run(ctx, syscall.SIGHUP)
}

func (rt *Runtime) run(ctx context.Context, reloadSignal os.Signal) error {
	if rt.Manager == nil {
		return ErrMissingManager
	}

	if err := rt.Session.Resume(ctx); err != nil {
		rt.logger.Warn().Err(err).Str(xglog.FieldEvent, "session.resume_failed").Msg("failed to resume session")
	}

	g, gctx := errgroup.WithContext(ctx)

	// The watcher is best-effort: a failure only disables hot reload.
	g.Go(func() error {
		if err := rt.Holder.Watch(gctx); err != nil {
			rt.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_failed").Msg("config watcher stopped")
		}
		return nil
	})

	updates := make(chan config.AppConfig, 1)
	rt.Holder.RegisterListener(updates)
	g.Go(func() error {
		current := rt.Config
		for {
			select {
			case <-gctx.Done():
				return nil
			case cfg := <-updates:
				rt.applyReload(current, cfg)
				current = cfg
			}
		}
	})

	if reloadSignal != nil {
		g.Go(func() error {
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, reloadSignal)
			defer signal.Stop(hup)

			for {
				select {
				case <-gctx.Done():
					return nil
				case <-hup:
					rt.logger.Info().
						Str(xglog.FieldEvent, "config.reload_signal").
						Str("signal", reloadSignal.String()).
						Msg("received reload signal, reloading config")
					if err := rt.Holder.Reload(gctx); err != nil {
						rt.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.reload_failed").Msg("config reload failed")
					}
				}
			}
		})
	}

	g.Go(func() error {
		return rt.Manager.Start(gctx)
	})

	return g.Wait()
}

// applyReload applies the settings that are not read per request. Search settings
// are picked up by the next request on their own.
func (rt *Runtime) applyReload(old, cfg config.AppConfig) {
	if cfg.LogLevel != old.LogLevel || cfg.LogService != old.LogService {
		xglog.Configure(xglog.Config{
			Level:   cfg.LogLevel,
			Service: cfg.LogService,
			Version: cfg.Version,
		})
	}
	if cfg.Server != old.Server || cfg.Store != old.Store || cfg.Cache.Backend != old.Cache.Backend {
		rt.logger.Warn().
			Str(xglog.FieldEvent, "config.restart_required").
			Msg("listener or storage settings changed; restart to apply")
	}
}
