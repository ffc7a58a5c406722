// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the components into a running process and owns its lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ManuGH/tgsearch/internal/api"
	"github.com/ManuGH/tgsearch/internal/api/middleware"
	"github.com/ManuGH/tgsearch/internal/cache"
	"github.com/ManuGH/tgsearch/internal/config"
	"github.com/ManuGH/tgsearch/internal/health"
	xglog "github.com/ManuGH/tgsearch/internal/log"
	"github.com/ManuGH/tgsearch/internal/qr"
	"github.com/ManuGH/tgsearch/internal/rendezvous"
	"github.com/ManuGH/tgsearch/internal/search"
	"github.com/ManuGH/tgsearch/internal/search/native"
	"github.com/ManuGH/tgsearch/internal/search/web"
	"github.com/ManuGH/tgsearch/internal/session"
	"github.com/ManuGH/tgsearch/internal/telemetry"
)

// Options are the inputs of Bootstrap besides the loaded configuration.
type Options struct {
	Config config.AppConfig
	Loader *config.Loader

	// Dialer is the protocol client. Nil leaves the native session unavailable and
	// every search runs on the web provider.
	Dialer session.Dialer
	// Listener overrides Config.Server.ListenAddr.
	Listener net.Listener
	// WebClient overrides the outbound client of the web provider.
	WebClient *http.Client
}

// Runtime is the wired daemon.
type Runtime struct {
	Config  config.AppConfig
	Holder  *config.Holder
	Store   rendezvous.Store
	Session *session.Manager
	Pool    *search.Pool
	Cache   cache.Cache
	Search  *search.Service
	Health  *health.Manager
	API     *api.Server
	Manager Manager

	logger zerolog.Logger
}

// Bootstrap builds every component from the configuration. On error, whatever was
// already opened is closed again.
func Bootstrap(ctx context.Context, opts Options) (rt *Runtime, err error) {
	cfg := opts.Config
	logger := xglog.WithComponent("daemon")
	if opts.Loader == nil {
		opts.Loader = config.NewLoader("", cfg.Version)
	}

	var cleanup []func(context.Context) error
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanup) - 1; i >= 0; i-- {
			_ = cleanup[i](context.WithoutCancel(ctx))
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	cleanup = append(cleanup, tp.Shutdown)

	store, err := rendezvous.Open(rendezvous.Options{
		Backend:       cfg.Store.Backend,
		Path:          cfg.Store.Path,
		RedisAddr:     cfg.Store.Redis.Addr,
		RedisPassword: cfg.Store.Redis.Password,
		RedisDB:       cfg.Store.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("rendezvous store: %w", err)
	}
	cleanup = append(cleanup, closer(store.Close))
	logger.Info().Str("backend", cfg.Store.Backend).Str(xglog.FieldPath, cfg.Store.Path).Msg("rendezvous store opened")

	dialer := opts.Dialer
	if dialer == nil {
		dialer = session.UnavailableDialer{}
	}
	sess := session.NewManager(session.Config{
		SessionFile:       cfg.Session.File,
		CredentialTimeout: cfg.Session.CredentialTimeout,
		StopTimeout:       cfg.Session.StopTimeout,
	},
		rendezvous.NewExchange(store, cfg.Session.PollInterval),
		dialer,
		qr.NewHelperRenderer(cfg.QR.Helper, cfg.QR.Image, cfg.QR.Timeout),
	)
	cleanup = append(cleanup, func(ctx context.Context) error {
		sess.Close(ctx)
		return nil
	})

	pool := search.NewPool(cfg.Search.Workers, cfg.Search.QueueSize)
	pool.Start()
	cleanup = append(cleanup, func(context.Context) error {
		pool.Stop()
		return nil
	})

	resultCache, err := cache.New(cache.Options{
		Backend:         cfg.Cache.Backend,
		CleanupInterval: cfg.Cache.CleanupInterval,
		Redis: cache.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Cache.Prefix,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("result cache: %w", err)
	}
	cleanup = append(cleanup, closer(resultCache.Close))

	webProvider := web.New(web.Config{
		BaseURL:          cfg.Web.BaseURL,
		UserAgent:        cfg.Web.UserAgent,
		Timeout:          cfg.Web.Timeout,
		Rate:             cfg.Web.Rate,
		Burst:            cfg.Web.Burst,
		BreakerThreshold: cfg.Web.BreakerThreshold,
		BreakerReset:     cfg.Web.BreakerReset,
		HTTPClient:       opts.WebClient,
	})

	holder := config.NewHolder(cfg, opts.Loader)
	svc := search.NewService(
		pool,
		search.NewCached(native.New(sess), resultCache, cfg.Cache.TTL),
		search.NewCached(webProvider, resultCache, cfg.Cache.TTL),
		sess,
		settingsFrom(holder),
	)

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewStoreChecker(store))
	hm.RegisterChecker(health.NewSessionChecker(sess))
	hm.RegisterChecker(health.NewOptionalFileChecker("qr_helper", cfg.QR.Helper))
	if rc, ok := resultCache.(*cache.RedisCache); ok {
		hm.RegisterChecker(health.NewPingChecker("result_cache", health.StatusDegraded, rc.HealthCheck))
	}

	stack := middleware.StackConfig{
		EnableMetrics:      true,
		EnableLogging:      true,
		RateLimitPerMinute: cfg.Server.RateLimit,
	}
	if cfg.Telemetry.Enabled {
		stack.TracingService = cfg.LogService
	}
	apiServer := api.New(api.Deps{Session: sess, Search: svc, Health: hm, Stack: stack})

	mgr, err := NewManager(Deps{
		Logger:     logger,
		Server:     cfg.Server,
		APIHandler: apiServer.Handler(),
		Listener:   opts.Listener,
	})
	if err != nil {
		return nil, err
	}

	// Hooks run LIFO: the session stops before the store it writes to is closed.
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	mgr.RegisterShutdownHook("rendezvous_store", closer(store.Close))
	mgr.RegisterShutdownHook("result_cache", closer(resultCache.Close))
	mgr.RegisterShutdownHook("search_pool", func(context.Context) error {
		pool.Stop()
		return nil
	})
	mgr.RegisterShutdownHook("session", func(ctx context.Context) error {
		sess.Close(ctx)
		return nil
	})

	return &Runtime{
		Config:  cfg,
		Holder:  holder,
		Store:   store,
		Session: sess,
		Pool:    pool,
		Cache:   resultCache,
		Search:  svc,
		Health:  hm,
		API:     apiServer,
		Manager: mgr,
		logger:  logger,
	}, nil
}

// settingsFrom reads the reloadable search settings from the holder on every request.
func settingsFrom(holder *config.Holder) func() search.Settings {
	return func() search.Settings {
		c := holder.Get()
		return search.Settings{
			NativeChannels: c.Search.NativeChannels,
			WebChannels:    c.Search.WebChannels,
			Blocklist:      c.Search.Blocklist,
			MaxWait:        c.Search.Timeout,
			SalvageGrace:   c.Search.SalvageGrace,
		}
	}
}

func closer(fn func() error) func(context.Context) error {
	return func(context.Context) error {
		if err := fn(); err != nil && !errors.Is(err, rendezvous.ErrClosed) {
			return err
		}
		return nil
	}
}
