// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	xglog "github.com/ManuGH/tgsearch/internal/log"
	"github.com/ManuGH/tgsearch/internal/metrics"
	"github.com/ManuGH/tgsearch/internal/rendezvous"
	"github.com/rs/zerolog"
)

// handshake carries what both strategies share: the exchange, the wait timeout and a
// phase publisher scoped to one attempt.
type handshake struct {
	exchange *rendezvous.Exchange
	timeout  time.Duration
	publish  func(Phase)
	logger   zerolog.Logger
}

// await blocks for key and maps "absent" onto the auth error taxonomy.
func (h *handshake) await(ctx context.Context, key string) (string, error) {
	v, err := h.exchange.Await(ctx, key, h.timeout)
	switch {
	case err == nil:
		metrics.RecordCredentialWait(key, "received")
		return v, nil
	case errors.Is(err, rendezvous.ErrWaitTimeout):
		metrics.RecordCredentialWait(key, "timeout")
		h.logger.Warn().Str(xglog.FieldKey, key).Dur("timeout", h.timeout).Msg("credential wait timed out")
		return "", fmt.Errorf("%w: %s", ErrAuthTimeout, key)
	default:
		metrics.RecordCredentialWait(key, "cancelled")
		return "", fmt.Errorf("%w: %s: %v", ErrAuthCancelled, key, err)
	}
}

// CollectSecondFactor asks for the 2FA password. Shared by both strategies.
func (h *handshake) CollectSecondFactor(ctx context.Context) (string, error) {
	h.logger.Info().Str(xglog.FieldEvent, "session.awaiting_password").Msg("input the 2FA password")
	h.publish(PhaseAwaitingPassword)
	password, err := h.await(ctx, rendezvous.KeyPassword)
	if err != nil {
		return "", err
	}
	h.publish(PhasePasswordSubmitted)
	return password, nil
}

// qrStrategy publishes a QR image of the login URL and waits for the scan signal.
type qrStrategy struct {
	*handshake
	qr QRRenderer
}

func (s *qrStrategy) Mode() AuthMode { return AuthModeQR }

func (s *qrStrategy) CollectPrimaryFactor(ctx context.Context, ch Challenge) (string, error) {
	if ch.Kind != ChallengeLoginToken {
		return "", fmt.Errorf("%w: %s in qr mode", ErrUnexpectedChallenge, ch.Kind)
	}
	s.publish(PhaseAwaitingPhoneOrQR)
	s.logger.Info().
		Str(xglog.FieldEvent, "session.qr_token").
		Dur("expires_in", ch.ExpiresIn).
		Msg("scan the QR code")

	storeCtx := context.WithoutCancel(ctx)
	img, err := s.render(ctx, ch.LoginURL)
	if err != nil {
		s.logger.Warn().Err(err).Msg("QR image unavailable")
		s.exchange.Discard(storeCtx, rendezvous.KeyQRImage)
	} else if err := s.exchange.Store().Set(storeCtx, rendezvous.KeyQRImage, base64.StdEncoding.EncodeToString(img)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish QR image")
	}
	s.publish(PhaseAwaitingScanOrPhoneSubmit)

	scanned, err := s.await(ctx, rendezvous.KeyScanned)
	if err != nil {
		return "", err
	}
	s.exchange.Discard(storeCtx, rendezvous.KeyPassword)
	return scanned, nil
}

func (s *qrStrategy) render(ctx context.Context, loginURL string) ([]byte, error) {
	if s.qr == nil {
		return nil, errors.New("no QR renderer configured")
	}
	return s.qr.Render(ctx, loginURL)
}

// codeStrategy asks for the phone number, then for the code sent to it.
type codeStrategy struct {
	*handshake
}

func (s *codeStrategy) Mode() AuthMode { return AuthModeCode }

func (s *codeStrategy) CollectPrimaryFactor(ctx context.Context, ch Challenge) (string, error) {
	switch ch.Kind {
	case ChallengePhone:
		s.logger.Info().Str(xglog.FieldEvent, "session.awaiting_phone").Msg("input the phone number")
		s.publish(PhaseAwaitingPhoneOrQR)
		phone, err := s.await(ctx, rendezvous.KeyPhone)
		if err != nil {
			return "", err
		}
		s.exchange.Discard(context.WithoutCancel(ctx), rendezvous.KeyCode, rendezvous.KeyPassword)
		s.publish(PhaseAwaitingScanOrPhoneSubmit)
		return phone, nil
	case ChallengeCode:
		s.logger.Info().Str(xglog.FieldEvent, "session.awaiting_code").Msg("input the verification code")
		s.publish(PhaseAwaitingCode)
		code, err := s.await(ctx, rendezvous.KeyCode)
		if err != nil {
			return "", err
		}
		s.publish(PhaseCodeSubmitted)
		return code, nil
	default:
		return "", fmt.Errorf("%w: %s in code mode", ErrUnexpectedChallenge, ch.Kind)
	}
}
