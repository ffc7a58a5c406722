// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	xglog "github.com/ManuGH/tgsearch/internal/log"
	"github.com/ManuGH/tgsearch/internal/session"
)

const maxCredentialBody = 4 << 10

type phaseResponse struct {
	Phase     int    `json:"phase"`
	Name      string `json:"name"`
	AuthMode  string `json:"authMode"`
	Connected bool   `json:"connected"`
}

type credentialRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

func (s *Server) phaseResponse(r *http.Request) phaseResponse {
	p := s.session.Phase(r.Context())
	return phaseResponse{
		Phase:     int(p),
		Name:      p.String(),
		AuthMode:  string(s.session.AuthMode(r.Context())),
		Connected: s.session.Connected(),
	}
}

func (s *Server) handlePhase(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.phaseResponse(r))
}

// handleConnect starts a handshake. The result is observed by polling the phase.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	mode := session.AuthMode(strings.TrimSpace(r.URL.Query().Get("mode")))
	if err := s.session.Connect(r.Context(), mode); err != nil {
		writeSessionError(w, err)
		return
	}
	logger := xglog.WithContext(r.Context(), s.logger)
	logger.Info().Str(xglog.FieldEvent, "session.connect").Str(xglog.FieldAuthMode, string(mode)).Msg("handshake requested")
	writeJSON(w, http.StatusAccepted, s.phaseResponse(r))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.session.Logout(r.Context())
	writeJSON(w, http.StatusOK, s.phaseResponse(r))
}

// handleCredentials accepts a phone number, code, password or scan confirmation.
// Values are never logged.
func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCredentialBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, fmt.Errorf("invalid credential body: %w", err))
		return
	}
	kind := session.CredentialKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	value := strings.TrimSpace(req.Value)
	if value == "" && kind != session.CredentialScanned {
		writeError(w, errors.New("value is required"))
		return
	}

	switch s.session.Phase(r.Context()) {
	case session.PhaseIdle, session.PhaseConnected:
		writeConflict(w, "no handshake in progress")
		return
	}

	if err := s.session.SubmitCredential(r.Context(), kind, value); err != nil {
		writeSessionError(w, err)
		return
	}
	logger := xglog.WithContext(r.Context(), s.logger)
	logger.Info().Str(xglog.FieldEvent, "session.credential").Str("kind", string(kind)).Msg("credential submitted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	img, ok := s.session.QRImage(r.Context())
	if !ok {
		writeNotFound(w)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(img))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.session.Self(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type chatResponse struct {
	session.Chat
	Ref string `json:"ref"`
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.session.Chats(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	out := make([]chatResponse, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatResponse{Chat: c, Ref: c.Ref()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.session.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if msgs == nil {
		msgs = []session.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}
