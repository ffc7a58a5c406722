// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"time"
)

// AuthMode selects the credential-collection strategy.
type AuthMode string

const (
	AuthModeQR   AuthMode = "qr"
	AuthModeCode AuthMode = "code"
)

// Valid reports whether m is a known mode.
func (m AuthMode) Valid() bool {
	return m == AuthModeQR || m == AuthModeCode
}

// ChallengeKind identifies what the protocol client is asking for.
type ChallengeKind int

const (
	// ChallengeLoginToken carries a login URL to be shown as a QR code.
	ChallengeLoginToken ChallengeKind = iota + 1
	// ChallengePhone asks for the phone number.
	ChallengePhone
	// ChallengeCode asks for the code sent to the phone.
	ChallengeCode
)

func (k ChallengeKind) String() string {
	switch k {
	case ChallengeLoginToken:
		return "login_token"
	case ChallengePhone:
		return "phone"
	case ChallengeCode:
		return "code"
	default:
		return "unknown"
	}
}

// Challenge is one primary-factor request from the protocol client.
type Challenge struct {
	Kind      ChallengeKind
	LoginURL  string
	ExpiresIn time.Duration
}

// Authorizer is the capability set the protocol client calls back into while
// dialing. Both methods block until the external actor answers or the wait ends;
// an error means "no value" and the client must abort the handshake.
type Authorizer interface {
	Mode() AuthMode
	CollectPrimaryFactor(ctx context.Context, ch Challenge) (string, error)
	CollectSecondFactor(ctx context.Context) (string, error)
}

// DialOptions configures one connection attempt.
type DialOptions struct {
	// SessionFile is where the protocol client keeps its opaque session blob.
	SessionFile string
}

// Dialer is the protocol-client collaborator.
type Dialer interface {
	// Dial runs the remote handshake, calling auth for credentials as needed.
	// ctx bounds the handshake only; the returned Conn lives until Disconnect or a
	// remote disconnect closes Done.
	Dial(ctx context.Context, opts DialOptions, auth Authorizer) (Conn, error)
}

// Conn is a live, authorized session.
type Conn interface {
	// Done is closed when the session ends for any reason.
	Done() <-chan struct{}
	// LogOut revokes the remote authorization.
	LogOut(ctx context.Context) error
	// Disconnect closes the connection; Done is closed afterwards.
	Disconnect(ctx context.Context) error

	Self(ctx context.Context) (User, error)
	Channels(ctx context.Context, limit int) ([]Chat, error)
	History(ctx context.Context, peer PeerRef, limit int) ([]Message, error)
	Search(ctx context.Context, q SearchQuery) ([]Message, error)
}

// QRRenderer turns a login URL into image bytes.
type QRRenderer interface {
	Render(ctx context.Context, text string) ([]byte, error)
}

// User is the account behind the session.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Chat is a channel visible to the session.
type Chat struct {
	ID         int64  `json:"id"`
	AccessHash int64  `json:"accessHash"`
	Title      string `json:"name"`
	Username   string `json:"username,omitempty"`
}

// Ref returns the "id$accessHash" peer reference for the chat.
func (c Chat) Ref() string {
	return PeerRef{ID: c.ID, AccessHash: c.AccessHash}.String()
}

// Message is one channel message.
type Message struct {
	ID      int64     `json:"id"`
	Channel string    `json:"channel,omitempty"`
	Date    time.Time `json:"time"`
	Text    string    `json:"content"`
}

// SearchQuery is a keyword search inside one channel, resolved by username.
type SearchQuery struct {
	Username string
	Keyword  string
	Since    time.Time
	Limit    int
}
