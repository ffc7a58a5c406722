// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package qr renders login URLs to PNG images through an external helper binary.
package qr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	xglog "github.com/ManuGH/tgsearch/internal/log"
	"github.com/ManuGH/tgsearch/internal/procgroup"
	"github.com/rs/zerolog"
)

const (
	DefaultHelperPath = "/atv-cli"
	DefaultImagePath  = "/www/tvbox/qr.png"
	DefaultTimeout    = 10 * time.Second

	killGrace = 500 * time.Millisecond
)

// ErrNoImage means the helper did not leave a readable image behind.
var ErrNoImage = errors.New("qr: no image produced")

// HelperRenderer runs "<HelperPath> <text>" and reads the PNG it writes to ImagePath.
type HelperRenderer struct {
	HelperPath string
	ImagePath  string
	Timeout    time.Duration

	logger zerolog.Logger
}

// NewHelperRenderer applies defaults to empty fields.
func NewHelperRenderer(helperPath, imagePath string, timeout time.Duration) *HelperRenderer {
	if helperPath == "" {
		helperPath = DefaultHelperPath
	}
	if imagePath == "" {
		imagePath = DefaultImagePath
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HelperRenderer{
		HelperPath: helperPath,
		ImagePath:  imagePath,
		Timeout:    timeout,
		logger:     xglog.WithComponent("qr"),
	}
}

// Render returns the image bytes. A helper that exits non-zero is logged but its image is
// still used when present; any read failure is ErrNoImage.
func (r *HelperRenderer) Render(ctx context.Context, text string) ([]byte, error) {
	// A stale image would show an expired login token.
	if err := os.Remove(r.ImagePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Debug().Err(err).Str("path", r.ImagePath).Msg("failed to remove previous QR image")
	}
	if err := r.run(ctx, text); err != nil {
		r.logger.Warn().Err(err).Str("helper", r.HelperPath).Msg("QR helper failed")
	}

	img, err := os.ReadFile(r.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoImage, err)
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoImage, r.ImagePath)
	}
	return img, nil
}

func (r *HelperRenderer) run(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.Command(r.HelperPath, text) // #nosec G204 -- helper path comes from operator config
	cmd.Stderr = &stderr
	procgroup.Set(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start helper: %w", err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case err := <-waitCh:
		if err != nil {
			return fmt.Errorf("helper exited: %w (stderr: %s)", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil
	case <-ctx.Done():
		_ = procgroup.Terminate(cmd, waitCh, killGrace)
		return fmt.Errorf("helper stopped: %w", ctx.Err())
	}
}
