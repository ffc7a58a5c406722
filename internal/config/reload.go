// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	xglog "github.com/ManuGH/tgsearch/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce coalesces bursts of file events into one reload.
const DefaultDebounce = 500 * time.Millisecond

// Holder holds configuration with atomic reloading capability.
type Holder struct {
	current  atomic.Pointer[AppConfig]
	loader   *Loader
	logger   zerolog.Logger
	debounce time.Duration

	// reloadMu serializes reloads.
	reloadMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []chan<- AppConfig
}

// NewHolder creates a holder with the initial config.
func NewHolder(initial AppConfig, loader *Loader) *Holder {
	h := &Holder{
		loader:   loader,
		logger:   xglog.WithComponent("config"),
		debounce: DefaultDebounce,
	}
	initial = initial.Clone()
	h.current.Store(&initial)
	return h
}

// Get returns a copy of the current configuration.
func (h *Holder) Get() AppConfig {
	return h.current.Load().Clone()
}

// Reload reloads configuration from file and environment. On any error the old
// configuration stays in place.
func (h *Holder) Reload(_ context.Context) error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	h.logger.Info().Str(xglog.FieldEvent, "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	old := h.current.Swap(&newCfg)
	h.logChanges(*old, newCfg)
	h.notifyListeners(newCfg)

	h.logger.Info().
		Str(xglog.FieldEvent, "config.reload_success").
		Msg("configuration reloaded successfully")
	return nil
}

// Watch reloads the configuration whenever the file changes, until ctx ends. Without a
// config file it only waits for ctx.
func (h *Holder) Watch(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().
			Str(xglog.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: editors replace files by rename, which drops a file watch.
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	h.logger.Info().
		Str(xglog.FieldEvent, "config.watcher_started").
		Str(xglog.FieldPath, abs).
		Msg("watching config file for changes")

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(xglog.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			h.logger.Debug().
				Str(xglog.FieldEvent, "config.file_changed").
				Str("op", event.Op.String()).
				Msg("config file changed")

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(h.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				if err := h.Reload(ctx); err != nil {
					h.logger.Error().
						Err(err).
						Str(xglog.FieldEvent, "config.auto_reload_failed").
						Msg("automatic config reload failed")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Error().
				Err(err).
				Str(xglog.FieldEvent, "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// RegisterListener registers a channel to receive config reload notifications.
// Sends are non-blocking; a full channel misses the update.
func (h *Holder) RegisterListener(ch chan<- AppConfig) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notifyListeners(cfg AppConfig) {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()

	for _, ch := range h.listeners {
		select {
		case ch <- cfg.Clone():
		default:
			h.logger.Warn().
				Str(xglog.FieldEvent, "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

// logChanges logs changes to the settings that apply without a restart.
func (h *Holder) logChanges(old, newCfg AppConfig) {
	if !slices.Equal(old.Search.NativeChannels, newCfg.Search.NativeChannels) {
		h.logger.Info().
			Strs("old", old.Search.NativeChannels).
			Strs("new", newCfg.Search.NativeChannels).
			Msg("config changed: search.channels")
	}
	if !slices.Equal(old.Search.WebChannels, newCfg.Search.WebChannels) {
		h.logger.Info().
			Strs("old", old.Search.WebChannels).
			Strs("new", newCfg.Search.WebChannels).
			Msg("config changed: search.webChannels")
	}
	if !slices.Equal(old.Search.Blocklist, newCfg.Search.Blocklist) {
		h.logger.Info().
			Int("old", len(old.Search.Blocklist)).
			Int("new", len(newCfg.Search.Blocklist)).
			Msg("config changed: search.blocklist")
	}
	if old.Search.Timeout != newCfg.Search.Timeout {
		h.logger.Info().
			Dur("old", old.Search.Timeout).
			Dur("new", newCfg.Search.Timeout).
			Msg("config changed: search.timeout")
	}
	if old.Search.SalvageGrace != newCfg.Search.SalvageGrace {
		h.logger.Info().
			Dur("old", old.Search.SalvageGrace).
			Dur("new", newCfg.Search.SalvageGrace).
			Msg("config changed: search.salvageGrace")
	}
	if old.Server.ListenAddr != newCfg.Server.ListenAddr || old.Store != newCfg.Store {
		h.logger.Warn().Msg("server or store settings changed; restart required to apply")
	}
}
