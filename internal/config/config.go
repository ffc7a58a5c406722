// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"path/filepath"
	"slices"
	"time"
)

// AppConfig is the complete daemon configuration. The YAML file uses the same shape.
type AppConfig struct {
	// Version is set from the binary, never from the file.
	Version string `yaml:"-"`

	DataDir    string `yaml:"dataDir"`
	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService"`

	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Session   SessionConfig   `yaml:"session"`
	QR        QRConfig        `yaml:"qr"`
	Search    SearchConfig    `yaml:"search"`
	Cache     CacheConfig     `yaml:"cache"`
	Web       WebConfig       `yaml:"web"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listenAddr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is requests per minute per client IP. Zero disables limiting.
	RateLimit int `yaml:"rateLimit"`
}

// StoreConfig selects the rendezvous store backend.
type StoreConfig struct {
	Backend string      `yaml:"backend"` // memory | file | sqlite | badger | redis
	Path    string      `yaml:"path"`    // derived from DataDir when empty
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig is shared by the redis store and the redis cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SessionConfig configures the handshake controller.
type SessionConfig struct {
	File              string        `yaml:"file"`
	CredentialTimeout time.Duration `yaml:"credentialTimeout"`
	PollInterval      time.Duration `yaml:"pollInterval"`
	StopTimeout       time.Duration `yaml:"stopTimeout"`
}

// QRConfig configures the external QR helper.
type QRConfig struct {
	Helper  string        `yaml:"helper"`
	Image   string        `yaml:"image"`
	Timeout time.Duration `yaml:"timeout"`
}

// SearchConfig holds the fan-out settings. Channel entries may be "name|label".
type SearchConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	SalvageGrace   time.Duration `yaml:"salvageGrace"`
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queueSize"`
	NativeChannels []string      `yaml:"channels"`
	WebChannels    []string      `yaml:"webChannels"`
	Blocklist      []string      `yaml:"blocklist"`
}

// CacheConfig configures the provider result cache.
type CacheConfig struct {
	Backend         string        `yaml:"backend"` // memory | redis | none
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
	// Prefix namespaces redis keys.
	Prefix string `yaml:"prefix"`
}

// WebConfig configures the public preview scraper.
type WebConfig struct {
	BaseURL          string        `yaml:"baseURL"`
	UserAgent        string        `yaml:"userAgent"`
	Timeout          time.Duration `yaml:"timeout"`
	Rate             float64       `yaml:"rate"`
	Burst            int           `yaml:"burst"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Defaults returns the configuration used when neither file nor environment set a value.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:    "/data",
		LogLevel:   "info",
		LogService: "tgsearch",
		Server: ServerConfig{
			ListenAddr:      ":7070",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       120,
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		Session: SessionConfig{
			CredentialTimeout: 120 * time.Second,
			PollInterval:      time.Second,
			StopTimeout:       10 * time.Second,
		},
		QR: QRConfig{
			Helper:  "/atv-cli",
			Image:   "/www/tvbox/qr.png",
			Timeout: 10 * time.Second,
		},
		Search: SearchConfig{
			Timeout:      5 * time.Second,
			SalvageGrace: 10 * time.Millisecond,
			QueueSize:    256,
			Blocklist:    []string{"pdf", "epub", "azw3", "mobi", "ppt", "e-book", "ebook", "软件", "图书", "电子书"},
		},
		Cache: CacheConfig{
			Backend:         "memory",
			TTL:             5 * time.Minute,
			CleanupInterval: time.Minute,
		},
		Web: WebConfig{
			BaseURL:          "https://t.me/s/",
			Timeout:          4 * time.Second,
			Rate:             5,
			Burst:            10,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			Environment:  "production",
			SamplingRate: 1.0,
		},
	}
}

// storeFiles maps backends to their default file name under DataDir.
var storeFiles = map[string]string{
	"file":   "rendezvous.json",
	"sqlite": "tgsearch.db",
	"badger": "rendezvous",
}

// resolvePaths fills derived paths after all layers are merged.
func resolvePaths(cfg *AppConfig) {
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Store.Path == "" {
		if name, ok := storeFiles[cfg.Store.Backend]; ok {
			cfg.Store.Path = filepath.Join(cfg.DataDir, name)
		}
	}
	if cfg.Session.File == "" {
		cfg.Session.File = filepath.Join(cfg.DataDir, "t4j.bin")
	}
}

// Clone returns a deep copy so holders can hand out values safely.
func (c AppConfig) Clone() AppConfig {
	c.Search.NativeChannels = slices.Clone(c.Search.NativeChannels)
	c.Search.WebChannels = slices.Clone(c.Search.WebChannels)
	c.Search.Blocklist = slices.Clone(c.Search.Blocklist)
	return c
}
