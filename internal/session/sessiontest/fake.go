// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sessiontest provides scripted Dialer and Conn fakes for session tests.
package sessiontest

import (
	"context"
	"strings"
	"sync"

	"github.com/ManuGH/tgsearch/internal/session"
)

// Script drives an Authorizer the way a protocol client would during a login.
type Script func(ctx context.Context, auth session.Authorizer) error

// QRLogin asks for a scan of loginURL and, if withPassword, for the 2FA password.
func QRLogin(loginURL string, withPassword bool) Script {
	return func(ctx context.Context, auth session.Authorizer) error {
		if _, err := auth.CollectPrimaryFactor(ctx, session.Challenge{Kind: session.ChallengeLoginToken, LoginURL: loginURL}); err != nil {
			return err
		}
		if withPassword {
			if _, err := auth.CollectSecondFactor(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// CodeLogin asks for the phone, then the code and, if withPassword, the password.
func CodeLogin(withPassword bool) Script {
	return func(ctx context.Context, auth session.Authorizer) error {
		if _, err := auth.CollectPrimaryFactor(ctx, session.Challenge{Kind: session.ChallengePhone}); err != nil {
			return err
		}
		if _, err := auth.CollectPrimaryFactor(ctx, session.Challenge{Kind: session.ChallengeCode}); err != nil {
			return err
		}
		if withPassword {
			if _, err := auth.CollectSecondFactor(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Dialer runs Script on every Dial and returns a fresh Conn on success.
type Dialer struct {
	Script Script

	// Template seeds every Conn the dialer returns.
	Template Conn

	mu    sync.Mutex
	conns []*Conn
	opts  []session.DialOptions
}

// Dial implements session.Dialer.
func (d *Dialer) Dial(ctx context.Context, opts session.DialOptions, auth session.Authorizer) (session.Conn, error) {
	d.mu.Lock()
	d.opts = append(d.opts, opts)
	script := d.Script
	d.mu.Unlock()

	if script != nil {
		if err := script(ctx, auth); err != nil {
			return nil, err
		}
	}
	c := NewConn()
	c.User = d.Template.User
	c.Chats = d.Template.Chats
	c.Messages = d.Template.Messages
	c.SearchFunc = d.Template.SearchFunc

	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

// Conns returns every connection handed out so far.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.opts)
}

// Conn is an in-memory session.
type Conn struct {
	User     session.User
	Chats    []session.Chat
	Messages []session.Message

	SearchFunc func(ctx context.Context, q session.SearchQuery) ([]session.Message, error)

	done      chan struct{}
	once      sync.Once
	mu        sync.Mutex
	loggedOut bool
	queries   []session.SearchQuery
}

// NewConn returns a live Conn.
func NewConn() *Conn {
	return &Conn{done: make(chan struct{})}
}

func (c *Conn) Done() <-chan struct{} { return c.done }

// Drop simulates the remote side closing the session.
func (c *Conn) Drop() { c.once.Do(func() { close(c.done) }) }

// Closed reports whether the session was disconnected or dropped.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// LoggedOut reports whether LogOut was called.
func (c *Conn) LoggedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedOut
}

// Queries returns the search queries received so far.
func (c *Conn) Queries() []session.SearchQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]session.SearchQuery(nil), c.queries...)
}

func (c *Conn) LogOut(context.Context) error {
	c.mu.Lock()
	c.loggedOut = true
	c.mu.Unlock()
	return nil
}

func (c *Conn) Disconnect(context.Context) error {
	c.Drop()
	return nil
}

func (c *Conn) Self(context.Context) (session.User, error) { return c.User, nil }

func (c *Conn) Channels(_ context.Context, limit int) ([]session.Chat, error) {
	if limit > 0 && len(c.Chats) > limit {
		return c.Chats[:limit], nil
	}
	return c.Chats, nil
}

func (c *Conn) History(_ context.Context, peer session.PeerRef, limit int) ([]session.Message, error) {
	var out []session.Message
	for _, m := range c.Messages {
		if len(out) == limit {
			break
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Conn) Search(ctx context.Context, q session.SearchQuery) ([]session.Message, error) {
	c.mu.Lock()
	c.queries = append(c.queries, q)
	c.mu.Unlock()
	if c.SearchFunc != nil {
		return c.SearchFunc(ctx, q)
	}
	var out []session.Message
	for _, m := range c.Messages {
		if q.Keyword == "" || strings.Contains(m.Text, q.Keyword) {
			out = append(out, m)
		}
	}
	return out, nil
}
