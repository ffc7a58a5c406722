// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"strconv"
	"strings"
)

// Phase is the externally observable step of the authentication handshake.
// The numeric values are persisted and polled by the UI; do not renumber.
type Phase int

const (
	PhaseIdle                      Phase = 0
	PhaseAwaitingPhoneOrQR         Phase = 1
	PhaseAwaitingScanOrPhoneSubmit Phase = 2
	PhaseAwaitingCode              Phase = 3
	PhaseCodeSubmitted             Phase = 4
	PhaseAwaitingPassword          Phase = 5
	PhasePasswordSubmitted         Phase = 6
	PhaseConnected                 Phase = 9
)

var phaseNames = map[Phase]string{
	PhaseIdle:                      "idle",
	PhaseAwaitingPhoneOrQR:         "awaiting_phone_or_qr",
	PhaseAwaitingScanOrPhoneSubmit: "awaiting_scan_or_phone_submit",
	PhaseAwaitingCode:              "awaiting_code",
	PhaseCodeSubmitted:             "code_submitted",
	PhaseAwaitingPassword:          "awaiting_password",
	PhasePasswordSubmitted:         "password_submitted",
	PhaseConnected:                 "connected",
}

// String returns the snake_case name used in logs and JSON.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown(" + strconv.Itoa(int(p)) + ")"
}

// Value returns the persisted representation.
func (p Phase) Value() string { return strconv.Itoa(int(p)) }

// Valid reports whether p is one of the defined phases.
func (p Phase) Valid() bool {
	_, ok := phaseNames[p]
	return ok
}

// ParsePhase decodes a persisted phase. Anything unrecognised is Idle.
func ParsePhase(raw string) Phase {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return PhaseIdle
	}
	p := Phase(n)
	if !p.Valid() {
		return PhaseIdle
	}
	return p
}
