// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package rendezvous implements the key/value store shared between the handshake
// goroutine and the external actor (UI), plus the Exchange mailbox layered on top of it.
//
// Values are plain strings and writes are last-write-wins per key. No backend offers
// transactions across keys; callers never need them.
package rendezvous

import (
	"context"
	"errors"
	"fmt"
)

// Keys shared with the UI. The names are persisted and polled externally; do not rename.
const (
	KeyPhase    = "tg_phase"
	KeyPhone    = "tg_phone"
	KeyCode     = "tg_code"
	KeyPassword = "tg_password"
	KeyQRImage  = "tg_qr_img"
	KeyScanned  = "tg_scanned"
	KeyAuthMode = "tg_auth_type"
)

// PendingKeys lists every credential key cleared on reset.
var PendingKeys = []string{KeyPhone, KeyCode, KeyPassword, KeyQRImage, KeyScanned}

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("rendezvous: store closed")
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("rendezvous: unknown store backend")
)

// Store is a durable key/value map used as a cross-goroutine signaling channel.
type Store interface {
	// Get returns the value and true if the key is present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options selects and configures a backend for Open.
type Options struct {
	Backend string // memory | file | sqlite | badger | redis
	Path    string // file path (file, sqlite) or directory (badger)

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open creates a Store based on the backend configuration.
func Open(opts Options) (Store, error) {
	backend := opts.Backend
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return opened(OpenFileStore(opts.Path))
	case "sqlite":
		return opened(OpenSQLiteStore(opts.Path))
	case "badger":
		return opened(OpenBadgerStore(opts.Path))
	case "redis":
		return opened(OpenRedisStore(RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		}))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

// opened keeps a failed open from returning a typed nil Store.
func opened[S Store](s S, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
