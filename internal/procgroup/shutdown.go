// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	xglog "github.com/ManuGH/tgsearch/internal/log"
)

// Terminate stops a process group: SIGTERM, then SIGKILL once grace has elapsed.
// It consumes waitCh and returns the Wait error. Safe to call on nil commands.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	logger := xglog.WithComponent("procgroup").With().Int("pid", cmd.Process.Pid).Logger()

	if err := Kill(cmd, syscall.SIGTERM); err != nil {
		logger.Debug().Err(err).Msg("SIGTERM to process group failed")
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-waitCh:
		return err
	case <-timer.C:
		logger.Warn().Dur("grace", grace).Msg("SIGTERM grace period exceeded, sending SIGKILL to process group")
		if err := Kill(cmd, syscall.SIGKILL); err != nil {
			logger.Debug().Err(err).Msg("SIGKILL to process group failed")
		}
		// SIGKILL frees a blocked Wait, so draining is bounded.
		return <-waitCh
	}
}
