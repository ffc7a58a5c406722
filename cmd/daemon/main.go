// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ManuGH/tgsearch/internal/config"
	"github.com/ManuGH/tgsearch/internal/daemon"
	"github.com/ManuGH/tgsearch/internal/health"
	xglog "github.com/ManuGH/tgsearch/internal/log"
	"github.com/ManuGH/tgsearch/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Safe defaults until the configuration is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "tgsearch",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	explicit := strings.TrimSpace(*configPath)
	effective := explicit
	if effective == "" {
		effective = resolveDefaultConfigPath()
	}

	loader := config.NewLoader(effective, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str(xglog.FieldPath, effective).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("daemon")

	switch {
	case explicit != "":
		logger.Info().Str(xglog.FieldEvent, "config.loaded").Str(xglog.FieldSource, "file").Str(xglog.FieldPath, explicit).Msg("loaded configuration from file")
	case effective != "":
		logger.Info().Str(xglog.FieldEvent, "config.loaded").Str(xglog.FieldSource, "file(auto)").Str(xglog.FieldPath, effective).Msg("loaded configuration from file")
	default:
		logger.Info().Str(xglog.FieldEvent, "config.loaded").Str(xglog.FieldSource, "env+defaults").Msg("loaded configuration from environment and defaults")
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "startup.check_failed").
			Msg("startup checks failed; verify configuration and permissions")
	}

	logger.Info().
		Str(xglog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.Server.ListenAddr).
		Msg("starting tgsearch")
	logger.Info().Msgf("→ Store: %s (%s)", cfg.Store.Backend, cfg.Store.Path)
	logger.Info().Msgf("→ Session file: %s", cfg.Session.File)
	logger.Info().Msgf("→ Channels: %d native, %d web", len(cfg.Search.NativeChannels), len(cfg.Search.WebChannels))
	logger.Info().Msgf("→ Search timeout: %s (grace %s)", cfg.Search.Timeout, cfg.Search.SalvageGrace)

	rt, err := daemon.Bootstrap(ctx, daemon.Options{Config: cfg, Loader: loader})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "bootstrap.failed").
			Msg("failed to wire daemon")
	}

	if err := rt.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "daemon.failed").
			Msg("daemon failed")
	}
	logger.Info().Msg("server exiting")
}

// resolveDefaultConfigPath returns ${TGS_DATA}/config.yaml when it exists.
func resolveDefaultConfigPath() string {
	dataDir := strings.TrimSpace(config.ParseString(config.EnvPrefix+"DATA", config.Defaults().DataDir))
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}
