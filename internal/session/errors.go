// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"errors"
)

var (
	// ErrAuthCancelled means the handshake was cancelled or a credential was withheld.
	ErrAuthCancelled = errors.New("session: authentication cancelled")
	// ErrAuthTimeout means no credential arrived within the wait timeout.
	ErrAuthTimeout = errors.New("session: authentication timed out")
	// ErrConnectFailure means the remote side rejected the connection or handshake.
	ErrConnectFailure = errors.New("session: connect failed")
	// ErrNotConnected is returned by session accessors when no session is live.
	ErrNotConnected = errors.New("session: not connected")
	// ErrInvalidAuthMode is returned by Connect for an unknown mode.
	ErrInvalidAuthMode = errors.New("session: invalid auth mode")
	// ErrUnknownCredential is returned by SubmitCredential for an unknown kind.
	ErrUnknownCredential = errors.New("session: unknown credential kind")
	// ErrUnexpectedChallenge is returned when a strategy receives a challenge it cannot answer.
	ErrUnexpectedChallenge = errors.New("session: unexpected challenge")
	// ErrInvalidPeer is returned for a malformed "id$accessHash" peer reference.
	ErrInvalidPeer = errors.New("session: invalid peer reference")
)

// handshakeResult classifies a handshake error for metrics and logs.
func handshakeResult(err error) string {
	switch {
	case err == nil:
		return "connected"
	case errors.Is(err, ErrAuthTimeout):
		return "timeout"
	case errors.Is(err, ErrAuthCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "failed"
	}
}
