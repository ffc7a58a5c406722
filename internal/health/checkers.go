// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"os"
	"time"

	"github.com/ManuGH/tgsearch/internal/rendezvous"
	"github.com/ManuGH/tgsearch/internal/session"
)

const pingTimeout = 2 * time.Second

// FileChecker checks that a file exists and is not empty. An optional file only
// degrades the status when missing.
type FileChecker struct {
	name     string
	path     string
	optional bool
}

// NewFileChecker creates a checker for a required file.
func NewFileChecker(name, path string) *FileChecker {
	return &FileChecker{name: name, path: path}
}

// NewOptionalFileChecker creates a checker for a file whose absence only degrades a
// feature, such as the QR helper.
func NewOptionalFileChecker(name, path string) *FileChecker {
	return &FileChecker{name: name, path: path, optional: true}
}

func (c *FileChecker) Name() string { return c.name }

func (c *FileChecker) Check(_ context.Context) CheckResult {
	missing := StatusUnhealthy
	if c.optional {
		missing = StatusDegraded
	}
	if c.path == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}

	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Status: missing, Error: "file not found", Message: c.path}
		}
		return CheckResult{Status: missing, Error: err.Error()}
	}
	if info.IsDir() {
		return CheckResult{Status: missing, Error: "expected file, got directory"}
	}
	if info.Size() == 0 {
		return CheckResult{Status: StatusDegraded, Message: "file is empty"}
	}
	return CheckResult{Status: StatusHealthy, Message: "file exists and readable"}
}

// StoreChecker pings the rendezvous store. Backends without Ping are healthy.
type StoreChecker struct {
	store rendezvous.Store
}

// NewStoreChecker creates the rendezvous store checker.
func NewStoreChecker(store rendezvous.Store) *StoreChecker {
	return &StoreChecker{store: store}
}

func (c *StoreChecker) Name() string { return "rendezvous_store" }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	p, ok := c.store.(rendezvous.Pinger)
	if !ok {
		return CheckResult{Status: StatusHealthy, Message: "in-process store"}
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "store unreachable"}
	}
	return CheckResult{Status: StatusHealthy, Message: "store reachable"}
}

// SessionState is the part of the session manager the checker reads.
type SessionState interface {
	Connected() bool
	Phase(ctx context.Context) session.Phase
}

// SessionChecker reports degraded while no native session is live; search then runs
// on the web fallback.
type SessionChecker struct {
	state SessionState
}

// NewSessionChecker creates the session checker.
func NewSessionChecker(state SessionState) *SessionChecker {
	return &SessionChecker{state: state}
}

func (c *SessionChecker) Name() string { return "session" }

func (c *SessionChecker) Check(ctx context.Context) CheckResult {
	if c.state.Connected() {
		return CheckResult{Status: StatusHealthy, Message: "connected"}
	}
	return CheckResult{
		Status:  StatusDegraded,
		Message: "not connected (phase " + c.state.Phase(ctx).String() + "); using web search",
	}
}

// PingChecker adapts a ping function, such as a cache health check.
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
	// failure is reported when ping fails.
	failure Status
}

// NewPingChecker creates a checker that reports failure when ping returns an error.
func NewPingChecker(name string, failure Status, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, failure: failure}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.ping(ctx); err != nil {
		return CheckResult{Status: c.failure, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}
