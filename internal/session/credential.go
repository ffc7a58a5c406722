// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import "github.com/ManuGH/tgsearch/internal/rendezvous"

// CredentialKind names a value the external actor can submit.
type CredentialKind string

const (
	CredentialPhone    CredentialKind = "phone"
	CredentialCode     CredentialKind = "code"
	CredentialPassword CredentialKind = "password"
	CredentialScanned  CredentialKind = "scanned"
)

func (k CredentialKind) key() (string, bool) {
	switch k {
	case CredentialPhone:
		return rendezvous.KeyPhone, true
	case CredentialCode:
		return rendezvous.KeyCode, true
	case CredentialPassword:
		return rendezvous.KeyPassword, true
	case CredentialScanned:
		return rendezvous.KeyScanned, true
	default:
		return "", false
	}
}
