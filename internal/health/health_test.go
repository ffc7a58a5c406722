// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/tgsearch/internal/config"
	"github.com/ManuGH/tgsearch/internal/rendezvous"
	"github.com/ManuGH/tgsearch/internal/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Health_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)
}

func TestManager_Health_WithCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusHealthy, resp.Checks["healthy"].Status)
	assert.Equal(t, StatusDegraded, resp.Checks["degraded"].Status)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []Status
		wantReady bool
		want      Status
	}{
		{"no checkers", nil, true, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, true, StatusHealthy},
		{"degraded is still ready", []Status{StatusDegraded, StatusHealthy}, true, StatusDegraded},
		{"unhealthy wins over degraded", []Status{StatusDegraded, StatusUnhealthy}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1.0.0")
			for i, s := range tt.statuses {
				m.RegisterChecker(&mockChecker{name: string(rune('a' + i)), status: s})
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestManager_ServeHealth(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "test", status: StatusUnhealthy})

	w := httptest.NewRecorder()
	m.ServeHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	w = httptest.NewRecorder()
	m.ServeHealth(w, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, w.Code, "liveness is always 200")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Len(t, resp.Checks, 1)
}

func TestManager_ServeReady(t *testing.T) {
	tests := []struct {
		name           string
		status         Status
		expectedStatus int
		expectedReady  bool
	}{
		{"healthy", StatusHealthy, http.StatusOK, true},
		{"degraded", StatusDegraded, http.StatusOK, true},
		{"unhealthy", StatusUnhealthy, http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1.0.0")
			m.RegisterChecker(&mockChecker{name: "test", status: tt.status})

			w := httptest.NewRecorder()
			m.ServeReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp ReadinessResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.expectedReady, resp.Ready)
		})
	}
}

func TestManager_ServeEncodingErrors(t *testing.T) {
	m := NewManager("v1.0.0")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	m.ServeHealth(&brokenWriter{header: make(http.Header)}, req)
	m.ServeReady(&brokenWriter{header: make(http.Header)}, req)
}

func TestFileChecker(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "helper")
	require.NoError(t, os.WriteFile(full, []byte("#!/bin/sh"), 0o700))
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	tests := []struct {
		name     string
		checker  *FileChecker
		expected Status
	}{
		{"not configured", NewFileChecker("f", ""), StatusHealthy},
		{"present", NewFileChecker("f", full), StatusHealthy},
		{"empty", NewFileChecker("f", empty), StatusDegraded},
		{"missing required", NewFileChecker("f", filepath.Join(dir, "nope")), StatusUnhealthy},
		{"missing optional", NewOptionalFileChecker("f", filepath.Join(dir, "nope")), StatusDegraded},
		{"directory", NewFileChecker("f", dir), StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.checker.Check(context.Background()).Status)
		})
	}
	assert.Equal(t, "f", NewFileChecker("f", "").Name())
}

func TestStoreChecker(t *testing.T) {
	mem := NewStoreChecker(rendezvous.NewMemoryStore())
	assert.Equal(t, StatusHealthy, mem.Check(context.Background()).Status)

	mr := miniredis.RunT(t)
	store, err := rendezvous.OpenRedisStore(rendezvous.RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c := NewStoreChecker(store)
	assert.Equal(t, "rendezvous_store", c.Name())
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	mr.Close()
	result := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.NotEmpty(t, result.Error)
}

type fakeSession struct {
	connected bool
	phase     session.Phase
}

func (f fakeSession) Connected() bool                     { return f.connected }
func (f fakeSession) Phase(context.Context) session.Phase { return f.phase }

func TestSessionChecker(t *testing.T) {
	up := NewSessionChecker(fakeSession{connected: true, phase: session.PhaseConnected})
	assert.Equal(t, StatusHealthy, up.Check(context.Background()).Status)

	down := NewSessionChecker(fakeSession{phase: session.PhaseAwaitingCode})
	result := down.Check(context.Background())
	assert.Equal(t, StatusDegraded, result.Status)
	assert.Contains(t, result.Message, "awaiting_code")
}

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker("cache", StatusDegraded, func(context.Context) error { return nil })
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	failing := NewPingChecker("cache", StatusDegraded, func(context.Context) error { return errors.New("down") })
	result := failing.Check(context.Background())
	assert.Equal(t, StatusDegraded, result.Status)
	assert.Equal(t, "down", result.Error)
}

func TestPerformStartupChecks(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Session.File = filepath.Join(cfg.DataDir, "sessions", "t4j.bin")
	cfg.QR.Helper = filepath.Join(cfg.DataDir, "missing-helper")

	require.NoError(t, PerformStartupChecks(context.Background(), cfg))
	info, err := os.Stat(filepath.Join(cfg.DataDir, "sessions"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	cfg.DataDir = filepath.Join(cfg.DataDir, "does-not-exist")
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))
}

type mockChecker struct {
	name    string
	status  Status
	message string
	err     string
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(_ context.Context) CheckResult {
	return CheckResult{
		Status:  m.status,
		Message: m.message,
		Error:   m.err,
	}
}

// brokenWriter is a mock ResponseWriter that always fails to write
type brokenWriter struct {
	header http.Header
}

func (w *brokenWriter) Header() http.Header {
	return w.header
}

func (w *brokenWriter) Write([]byte) (int, error) {
	return 0, assert.AnError
}

func (w *brokenWriter) WriteHeader(int) {}
