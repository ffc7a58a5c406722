// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session owns the authentication phase machine and the single live session.
//
// A Manager runs one handshake goroutine per Connect. The goroutine drives a strategy
// (QR or code) that publishes phases to the rendezvous store and blocks on the exchange
// for credentials written by the UI. Lifecycle operations are serialized by one lock, so
// at most one handshake or session exists at a time.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	xglog "github.com/ManuGH/tgsearch/internal/log"
	"github.com/ManuGH/tgsearch/internal/metrics"
	"github.com/ManuGH/tgsearch/internal/rendezvous"
	"github.com/ManuGH/tgsearch/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultCredentialTimeout bounds every credential wait.
	DefaultCredentialTimeout = 120 * time.Second
	// DefaultStopTimeout bounds the join of a stopped handshake goroutine.
	DefaultStopTimeout = 10 * time.Second

	searchWindowDays = 60
	searchLimit      = 100
	dialogLimit      = 100
	historyLimit     = 100
)

// Config holds Manager settings.
type Config struct {
	SessionFile       string
	CredentialTimeout time.Duration
	StopTimeout       time.Duration
}

// attempt is one handshake goroutine and, on success, the session it produced.
type attempt struct {
	id     string
	mode   AuthMode
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager is the session handshake controller.
type Manager struct {
	cfg      Config
	exchange *rendezvous.Exchange
	dialer   Dialer
	qr       QRRenderer
	logger   zerolog.Logger

	// mu serializes Connect, Logout, Close and Resume.
	mu      sync.Mutex
	attempt *attempt

	// stateMu guards current and conn. Only the current attempt may publish phases
	// or install a session.
	stateMu sync.RWMutex
	current *attempt
	conn    Conn
}

// NewManager wires a Manager. qr may be nil, in which case QR logins publish no image.
func NewManager(cfg Config, exchange *rendezvous.Exchange, dialer Dialer, qr QRRenderer) *Manager {
	if cfg.CredentialTimeout <= 0 {
		cfg.CredentialTimeout = DefaultCredentialTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &Manager{
		cfg:      cfg,
		exchange: exchange,
		dialer:   dialer,
		qr:       qr,
		logger:   xglog.WithComponent("session"),
	}
}

// Phase returns the persisted phase. Store failures read as Idle.
func (m *Manager) Phase(ctx context.Context) Phase {
	raw, ok, err := m.exchange.Store().Get(ctx, rendezvous.KeyPhase)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to read phase")
		return PhaseIdle
	}
	if !ok {
		return PhaseIdle
	}
	return ParsePhase(raw)
}

// AuthMode returns the persisted auth mode, defaulting to QR.
func (m *Manager) AuthMode(ctx context.Context) AuthMode {
	raw, ok, err := m.exchange.Store().Get(ctx, rendezvous.KeyAuthMode)
	if err != nil || !ok {
		return AuthModeQR
	}
	if mode := AuthMode(raw); mode.Valid() {
		return mode
	}
	return AuthModeQR
}

// QRImage returns the current login QR image, if one was rendered for this attempt.
func (m *Manager) QRImage(ctx context.Context) ([]byte, bool) {
	raw, ok, err := m.exchange.Store().Get(ctx, rendezvous.KeyQRImage)
	if err != nil || !ok || raw == "" {
		return nil, false
	}
	img, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		m.logger.Warn().Err(err).Msg("stored qr image is not valid base64")
		return nil, false
	}
	return img, true
}

// Connected reports whether a session is live.
func (m *Manager) Connected() bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.conn != nil
}

// Connect tears down any running handshake or session and starts a new handshake in the
// background. An empty mode uses the persisted mode; an explicit mode is persisted.
// Handshake failures are reported through Phase and logs, never to the caller.
func (m *Manager) Connect(ctx context.Context, mode AuthMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mode == "" {
		mode = m.AuthMode(ctx)
	} else {
		if !mode.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidAuthMode, mode)
		}
		if err := m.exchange.Store().Set(ctx, rendezvous.KeyAuthMode, string(mode)); err != nil {
			m.logger.Warn().Err(err).Msg("failed to persist auth mode")
		}
	}

	m.stopLocked(ctx)

	a := &attempt{
		id:   uuid.NewString(),
		mode: mode,
		done: make(chan struct{}),
	}
	runCtx, cancel := context.WithCancel(xglog.ContextWithAttemptID(context.Background(), a.id))
	a.cancel = cancel

	m.stateMu.Lock()
	m.current = a
	m.stateMu.Unlock()
	m.attempt = a

	go m.run(runCtx, a)
	return nil
}

// Resume reconnects at startup when the persisted phase says a session was live.
func (m *Manager) Resume(ctx context.Context) error {
	if m.Phase(ctx) != PhaseConnected {
		return nil
	}
	m.logger.Info().Str(xglog.FieldEvent, "session.resume").Msg("resuming persisted session")
	return m.Connect(ctx, "")
}

// Logout revokes and drops the session, clears every pending credential, resets the
// phase to Idle and deletes the session file. Every step is best effort.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, conn := m.detach()
	if a != nil {
		a.cancel()
	}
	if conn != nil {
		if err := conn.LogOut(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("remote logout failed")
		}
		if err := conn.Disconnect(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("disconnect after logout failed")
		}
	}
	m.join(a)
	m.attempt = nil

	m.exchange.Discard(ctx, rendezvous.PendingKeys...)
	m.writePhase(ctx, PhaseIdle)

	if m.cfg.SessionFile != "" {
		if err := os.Remove(m.cfg.SessionFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn().Err(err).Str(xglog.FieldPath, m.cfg.SessionFile).Msg("failed to delete session file")
		}
	}
	m.logger.Info().Str(xglog.FieldEvent, "session.logout").Msg("logged out")
}

// Close stops the handshake and disconnects the session without touching the
// persisted phase, so the next start can Resume.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(ctx)
}

// SubmitCredential hands a value written by the external actor to the handshake.
func (m *Manager) SubmitCredential(ctx context.Context, kind CredentialKind, value string) error {
	key, ok := kind.key()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCredential, kind)
	}
	if kind == CredentialScanned && value == "" {
		value = "1"
	}
	return m.exchange.Offer(ctx, key, value)
}

// stopLocked cancels the running attempt, disconnects its session and waits for the
// goroutine to finish. Caller must hold m.mu.
func (m *Manager) stopLocked(ctx context.Context) {
	a, conn := m.detach()
	if a != nil {
		a.cancel()
	}
	if conn != nil {
		if err := conn.Disconnect(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("disconnect of previous session failed")
		}
	}
	m.join(a)
	m.attempt = nil
}

// detach revokes publishing rights from the current attempt and takes its session.
func (m *Manager) detach() (*attempt, Conn) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	a := m.attempt
	conn := m.conn
	m.current = nil
	m.conn = nil
	return a, conn
}

func (m *Manager) join(a *attempt) {
	if a == nil {
		return
	}
	timer := time.NewTimer(m.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-a.done:
	case <-timer.C:
		m.logger.Error().
			Str(xglog.FieldAttemptID, a.id).
			Dur("timeout", m.cfg.StopTimeout).
			Msg("handshake goroutine did not stop in time; abandoning it")
	}
}

func (m *Manager) run(ctx context.Context, a *attempt) {
	defer close(a.done)

	logger := xglog.WithContext(ctx, m.logger).With().Str(xglog.FieldAuthMode, string(a.mode)).Logger()
	ctx, span := telemetry.Tracer(telemetry.TracerSession).Start(ctx, "session.handshake")
	span.SetAttributes(attribute.String(telemetry.SessionAuthModeKey, string(a.mode)))
	defer span.End()

	m.exchange.Discard(context.WithoutCancel(ctx), rendezvous.PendingKeys...)

	h := &handshake{
		exchange: m.exchange,
		timeout:  m.cfg.CredentialTimeout,
		publish:  func(p Phase) { m.publish(a, p) },
		logger:   logger,
	}
	var auth Authorizer
	if a.mode == AuthModeCode {
		auth = &codeStrategy{handshake: h}
	} else {
		auth = &qrStrategy{handshake: h, qr: m.qr}
	}

	logger.Info().Str(xglog.FieldEvent, "session.handshake_start").Msg("starting handshake")
	started := time.Now()

	conn, err := m.dialer.Dial(ctx, DialOptions{SessionFile: m.cfg.SessionFile}, auth)
	if err == nil && conn == nil {
		err = ErrConnectFailure
	}
	result := handshakeResult(err)
	metrics.RecordHandshake(string(a.mode), result, time.Since(started))
	span.SetAttributes(attribute.String(telemetry.SessionResultKey, result))
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldOutcome, result).Msg("handshake failed")
		m.publish(a, PhaseIdle)
		return
	}

	if !m.install(a, conn) {
		logger.Info().Msg("handshake finished after being superseded; dropping session")
		if err := conn.Disconnect(context.WithoutCancel(ctx)); err != nil {
			logger.Debug().Err(err).Msg("disconnect of superseded session failed")
		}
		return
	}
	logger.Info().Str(xglog.FieldEvent, "session.connected").Msg("connected")

	select {
	case <-conn.Done():
		if m.release(a) {
			logger.Info().Str(xglog.FieldEvent, "session.closed").Msg("session ended remotely")
		}
	case <-ctx.Done():
		// Stopped by the manager, which owns the disconnect.
	}
}

// install makes conn the live session and publishes Connected if a is still current.
func (m *Manager) install(a *attempt, conn Conn) bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.current != a {
		return false
	}
	m.conn = conn
	m.writePhase(context.Background(), PhaseConnected)
	return true
}

// release clears the session of a remotely-ended attempt and resets the phase.
func (m *Manager) release(a *attempt) bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.current != a {
		return false
	}
	m.conn = nil
	m.current = nil
	m.writePhase(context.Background(), PhaseIdle)
	return true
}

// publish writes p on behalf of a, unless a has been superseded.
func (m *Manager) publish(a *attempt, p Phase) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	if m.current != a {
		return
	}
	m.writePhase(context.Background(), p)
}

func (m *Manager) writePhase(ctx context.Context, p Phase) {
	if err := m.exchange.Store().Set(context.WithoutCancel(ctx), rendezvous.KeyPhase, p.Value()); err != nil {
		m.logger.Warn().Err(err).Str(xglog.FieldPhase, p.String()).Msg("failed to persist phase")
	}
	metrics.SetSessionPhase(int(p))
	m.logger.Debug().Str(xglog.FieldEvent, "session.phase").Str(xglog.FieldPhase, p.String()).Msg("phase changed")
}

func (m *Manager) live() (Conn, error) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	if m.conn == nil {
		return nil, ErrNotConnected
	}
	return m.conn, nil
}

// Self returns the logged-in user.
func (m *Manager) Self(ctx context.Context) (User, error) {
	conn, err := m.live()
	if err != nil {
		return User{}, err
	}
	return conn.Self(ctx)
}

// Chats lists the channels among the first dialogs.
func (m *Manager) Chats(ctx context.Context) ([]Chat, error) {
	conn, err := m.live()
	if err != nil {
		return nil, err
	}
	return conn.Channels(ctx, dialogLimit)
}

// History returns the latest messages of the channel addressed by "id$accessHash".
func (m *Manager) History(ctx context.Context, ref string) ([]Message, error) {
	peer, err := ParsePeerRef(ref)
	if err != nil {
		return nil, err
	}
	conn, err := m.live()
	if err != nil {
		return nil, err
	}
	return conn.History(ctx, peer, historyLimit)
}

// SearchChannel searches one channel over the live session for messages of the last
// sixty days.
func (m *Manager) SearchChannel(ctx context.Context, username, keyword string) ([]Message, error) {
	conn, err := m.live()
	if err != nil {
		return nil, err
	}
	since := time.Now().UTC().AddDate(0, 0, -searchWindowDays).Truncate(24 * time.Hour)
	msgs, err := conn.Search(ctx, SearchQuery{
		Username: username,
		Keyword:  keyword,
		Since:    since,
		Limit:    searchLimit,
	})
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].Channel == "" {
			msgs[i].Channel = username
		}
	}
	return msgs, nil
}
