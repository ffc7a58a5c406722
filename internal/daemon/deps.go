// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"net"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ManuGH/tgsearch/internal/config"
)

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// Server holds the listen address and HTTP timeouts.
	Server config.ServerConfig

	// APIHandler is the HTTP handler for the API server
	APIHandler http.Handler

	// Listener overrides Server.ListenAddr, e.g. for tests on an ephemeral port.
	Listener net.Listener
}

// Validate checks that all required dependencies are present.
func (d Deps) Validate() error {
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	if d.Listener == nil && d.Server.ListenAddr == "" {
		return ErrMissingListenAddr
	}
	return nil
}
