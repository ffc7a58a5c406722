// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/tgsearch/internal/validate"
)

var (
	storeBackends     = []string{"memory", "file", "sqlite", "badger", "redis"}
	cacheBackends     = []string{"memory", "redis", "none"}
	telemetryExporter = []string{"grpc", "http"}
)

// Validate validates an AppConfig using the centralized validation package.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("logLevel", "must be one of trace, debug, info, warn, error", cfg.LogLevel)
	}
	v.Directory("dataDir", cfg.DataDir, false)

	v.ListenAddr("server.listenAddr", cfg.Server.ListenAddr)
	v.NonNegative("server.rateLimit", cfg.Server.RateLimit)

	v.OneOf("store.backend", cfg.Store.Backend, storeBackends)
	if cfg.Store.Backend == "redis" || cfg.Cache.Backend == "redis" {
		v.HostPort("store.redis.addr", cfg.Store.Redis.Addr)
		v.Range("store.redis.db", cfg.Store.Redis.DB, 0, 15)
	}

	v.NotEmpty("session.file", cfg.Session.File)
	v.DurationRange("session.credentialTimeout", cfg.Session.CredentialTimeout, time.Second, 30*time.Minute)
	v.DurationRange("session.pollInterval", cfg.Session.PollInterval, 10*time.Millisecond, time.Minute)

	v.DurationRange("qr.timeout", cfg.QR.Timeout, 100*time.Millisecond, time.Minute)

	v.DurationRange("search.timeout", cfg.Search.Timeout, 10*time.Millisecond, 2*time.Minute)
	v.DurationRange("search.salvageGrace", cfg.Search.SalvageGrace, 0, 5*time.Second)
	v.Range("search.workers", cfg.Search.Workers, 0, 1024)
	v.Range("search.queueSize", cfg.Search.QueueSize, 1, 65536)

	v.OneOf("cache.backend", cfg.Cache.Backend, cacheBackends)
	if cfg.Cache.TTL < 0 {
		v.AddError("cache.ttl", "cannot be negative", cfg.Cache.TTL)
	}

	v.URL("web.baseURL", cfg.Web.BaseURL, []string{"http", "https"})
	v.DurationRange("web.timeout", cfg.Web.Timeout, 100*time.Millisecond, 2*time.Minute)
	if cfg.Web.Rate <= 0 {
		v.AddError("web.rate", "must be positive", cfg.Web.Rate)
	}
	v.Positive("web.burst", cfg.Web.Burst)
	v.Positive("web.breakerThreshold", cfg.Web.BreakerThreshold)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, telemetryExporter)
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.AddError("telemetry.samplingRate", "must be between 0 and 1", cfg.Telemetry.SamplingRate)
		}
	}

	return v.Err()
}
