// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by the Loader.
const EnvPrefix = "TGS_"

// ErrUnknownConfigField marks a config file key that AppConfig does not define.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. configPath may be empty.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the configuration file path, if any.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) track(key string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

func (l *Loader) envString(key, defaultVal string) string {
	return ParseString(l.track(key), defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	return ParseBool(l.track(key), defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	return ParseInt(l.track(key), defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	return ParseFloat(l.track(key), defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	return ParseDuration(l.track(key), defaultVal)
}

func (l *Loader) envCSV(key string, defaultVal []string) []string {
	return ParseCSV(l.track(key), defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults, then validates it.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	resolvePaths(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg with strict parsing: unknown fields are errors,
// absent fields keep their current value.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnvConfig applies TGS_* environment variables, the highest-precedence layer.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString("DATA", cfg.DataDir)
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("LOG_SERVICE", cfg.LogService)

	cfg.Server.ListenAddr = l.envString("LISTEN", cfg.Server.ListenAddr)
	cfg.Server.ShutdownTimeout = l.envDuration("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.RateLimit = l.envInt("RATE_LIMIT", cfg.Server.RateLimit)

	cfg.Store.Backend = l.envString("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = l.envString("STORE_PATH", cfg.Store.Path)
	cfg.Store.Redis.Addr = l.envString("REDIS_ADDR", cfg.Store.Redis.Addr)
	cfg.Store.Redis.Password = l.envString("REDIS_PASSWORD", cfg.Store.Redis.Password)
	cfg.Store.Redis.DB = l.envInt("REDIS_DB", cfg.Store.Redis.DB)

	cfg.Session.File = l.envString("SESSION_FILE", cfg.Session.File)
	cfg.Session.CredentialTimeout = l.envDuration("CREDENTIAL_TIMEOUT", cfg.Session.CredentialTimeout)
	cfg.Session.PollInterval = l.envDuration("POLL_INTERVAL", cfg.Session.PollInterval)

	cfg.QR.Helper = l.envString("QR_HELPER", cfg.QR.Helper)
	cfg.QR.Image = l.envString("QR_IMAGE", cfg.QR.Image)
	cfg.QR.Timeout = l.envDuration("QR_TIMEOUT", cfg.QR.Timeout)

	cfg.Search.Timeout = l.envDuration("SEARCH_TIMEOUT", cfg.Search.Timeout)
	cfg.Search.SalvageGrace = l.envDuration("SALVAGE_GRACE", cfg.Search.SalvageGrace)
	cfg.Search.Workers = l.envInt("WORKERS", cfg.Search.Workers)
	cfg.Search.QueueSize = l.envInt("QUEUE_SIZE", cfg.Search.QueueSize)
	cfg.Search.NativeChannels = l.envCSV("CHANNELS", cfg.Search.NativeChannels)
	cfg.Search.WebChannels = l.envCSV("WEB_CHANNELS", cfg.Search.WebChannels)
	cfg.Search.Blocklist = l.envCSV("BLOCKLIST", cfg.Search.Blocklist)

	cfg.Cache.Backend = l.envString("CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.TTL = l.envDuration("CACHE_TTL", cfg.Cache.TTL)

	cfg.Web.BaseURL = l.envString("WEB_BASE_URL", cfg.Web.BaseURL)
	cfg.Web.UserAgent = l.envString("USER_AGENT", cfg.Web.UserAgent)
	cfg.Web.Timeout = l.envDuration("WEB_TIMEOUT", cfg.Web.Timeout)
	cfg.Web.Rate = l.envFloat("WEB_RATE", cfg.Web.Rate)
	cfg.Web.Burst = l.envInt("WEB_BURST", cfg.Web.Burst)
	cfg.Web.BreakerThreshold = l.envInt("BREAKER_THRESHOLD", cfg.Web.BreakerThreshold)
	cfg.Web.BreakerReset = l.envDuration("BREAKER_RESET", cfg.Web.BreakerReset)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING", cfg.Telemetry.SamplingRate)
}
