// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ManuGH/tgsearch/internal/config"
	"github.com/ManuGH/tgsearch/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before the daemon starts serving.
// Missing optional collaborators (QR helper) are logged, not fatal.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkWritableDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if dir := filepath.Dir(cfg.Session.File); dir != filepath.Clean(cfg.DataDir) {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("session file directory: %w", err)
		}
		if err := checkWritableDir(logger, dir); err != nil {
			return fmt.Errorf("session file directory check failed: %w", err)
		}
	}

	if _, err := exec.LookPath(cfg.QR.Helper); err != nil {
		logger.Warn().Str(log.FieldPath, cfg.QR.Helper).Err(err).
			Msg("QR helper not found; QR logins will show no image")
	}
	if len(cfg.Search.WebChannels) == 0 {
		logger.Warn().Msg("no web channels configured; searches without a session return nothing")
	}
	if cfg.Store.Backend == "memory" {
		logger.Warn().Msg("rendezvous store is in memory; the phase is lost on restart")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkWritableDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Debug().Str(log.FieldPath, path).Msg("directory is writable")
	return nil
}
