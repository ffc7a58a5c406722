// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tgsearch/internal/api/middleware"
	"github.com/ManuGH/tgsearch/internal/health"
	"github.com/ManuGH/tgsearch/internal/search"
	"github.com/ManuGH/tgsearch/internal/session"
)

type fakeSession struct {
	mu          sync.Mutex
	phase       session.Phase
	mode        session.AuthMode
	connected   bool
	qr          []byte
	connectErr  error
	connectMode session.AuthMode
	loggedOut   bool
	credentials map[session.CredentialKind]string
	history     map[string][]session.Message
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		mode:        session.AuthModeQR,
		credentials: map[session.CredentialKind]string{},
		history:     map[string][]session.Message{},
	}
}

func (f *fakeSession) Phase(context.Context) session.Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

func (f *fakeSession) AuthMode(context.Context) session.AuthMode { return f.mode }

func (f *fakeSession) QRImage(context.Context) ([]byte, bool) { return f.qr, f.qr != nil }

func (f *fakeSession) Connected() bool { return f.connected }

func (f *fakeSession) Connect(_ context.Context, mode session.AuthMode) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	if mode != "" && !mode.Valid() {
		return fmt.Errorf("%w: %q", session.ErrInvalidAuthMode, mode)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectMode = mode
	f.phase = session.PhaseAwaitingPhoneOrQR
	return nil
}

func (f *fakeSession) Logout(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	f.phase = session.PhaseIdle
}

func (f *fakeSession) SubmitCredential(_ context.Context, kind session.CredentialKind, value string) error {
	switch kind {
	case session.CredentialPhone, session.CredentialCode, session.CredentialPassword, session.CredentialScanned:
	default:
		return fmt.Errorf("%w: %q", session.ErrUnknownCredential, kind)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credentials[kind] = value
	return nil
}

func (f *fakeSession) Self(context.Context) (session.User, error) {
	if !f.connected {
		return session.User{}, session.ErrNotConnected
	}
	return session.User{ID: 7, Username: "har01d"}, nil
}

func (f *fakeSession) Chats(context.Context) ([]session.Chat, error) {
	if !f.connected {
		return nil, session.ErrNotConnected
	}
	return []session.Chat{{ID: 1, AccessHash: 2, Title: "Shares", Username: "shares"}}, nil
}

func (f *fakeSession) History(_ context.Context, ref string) ([]session.Message, error) {
	if _, err := session.ParsePeerRef(ref); err != nil {
		return nil, err
	}
	return f.history[ref], nil
}

type searchCall struct {
	flavor   string
	keyword  string
	channels []string
	encode   bool
}

type fakeSearcher struct {
	mu    sync.Mutex
	calls []searchCall
	items []search.Item
}

func (f *fakeSearcher) record(c searchCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeSearcher) last() searchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeSearcher) Search(_ context.Context, keyword string) []search.Item {
	f.record(searchCall{flavor: "typed", keyword: keyword})
	return f.items
}

func (f *fakeSearcher) SearchJoined(_ context.Context, keyword string, channels []string) []string {
	f.record(searchCall{flavor: "joined", keyword: keyword, channels: channels})
	if len(channels) == 0 {
		return nil
	}
	return []string{channels[0] + "$$$a$https://pan.quark.cn/s/a"}
}

func (f *fakeSearcher) SearchEncoded(_ context.Context, keyword string, channels []string, encode bool) string {
	f.record(searchCall{flavor: "encoded", keyword: keyword, channels: channels, encode: encode})
	return "line1\nline2"
}

func (f *fakeSearcher) SearchWebLines(_ context.Context, keyword string, channels []string, encode bool) string {
	f.record(searchCall{flavor: "web", keyword: keyword, channels: channels, encode: encode})
	return "web-line"
}

func newTestServer(t *testing.T) (*Server, *fakeSession, *fakeSearcher) {
	t.Helper()
	sess := newFakeSession()
	searcher := &fakeSearcher{}
	srv := New(Deps{
		Session: sess,
		Search:  searcher,
		Health:  health.NewManager("test"),
		Stack:   middleware.StackConfig{EnableMetrics: true, EnableLogging: true},
	})
	return srv, sess, searcher
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestPhase(t *testing.T) {
	srv, sess, _ := newTestServer(t)
	sess.phase = session.PhaseAwaitingCode
	sess.mode = session.AuthModeCode

	w := do(t, srv, http.MethodGet, "/api/telegram/phase", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[phaseResponse](t, w)
	assert.Equal(t, phaseResponse{Phase: 3, Name: "awaiting_code", AuthMode: "code"}, got)
}

func TestConnect(t *testing.T) {
	srv, sess, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/telegram/connect?mode=code", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, session.AuthModeCode, sess.connectMode)
	assert.Equal(t, 1, decode[phaseResponse](t, w).Phase)

	w = do(t, srv, http.MethodPost, "/api/telegram/connect", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, session.AuthMode(""), sess.connectMode, "empty mode uses the persisted one")
}

func TestConnect_InvalidMode(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(t, srv, http.MethodPost, "/api/telegram/connect?mode=sms", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid auth mode")
}

func TestConnect_MethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(t, srv, http.MethodGet, "/api/telegram/connect", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestLogout(t *testing.T) {
	srv, sess, _ := newTestServer(t)
	sess.phase = session.PhaseConnected

	w := do(t, srv, http.MethodPost, "/api/telegram/logout", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, sess.loggedOut)
	assert.Equal(t, 0, decode[phaseResponse](t, w).Phase)
}

func TestCredentials(t *testing.T) {
	tests := []struct {
		name   string
		phase  session.Phase
		body   string
		status int
		kind   session.CredentialKind
		value  string
	}{
		{"phone", session.PhaseAwaitingPhoneOrQR, `{"kind":"phone","value":" +8613800000000 "}`, http.StatusNoContent, session.CredentialPhone, "+8613800000000"},
		{"code", session.PhaseAwaitingCode, `{"kind":"CODE","value":"12345"}`, http.StatusNoContent, session.CredentialCode, "12345"},
		{"scanned without value", session.PhaseAwaitingScanOrPhoneSubmit, `{"kind":"scanned"}`, http.StatusNoContent, session.CredentialScanned, ""},
		{"missing value", session.PhaseAwaitingPassword, `{"kind":"password"}`, http.StatusBadRequest, "", ""},
		{"unknown kind", session.PhaseAwaitingCode, `{"kind":"pin","value":"1"}`, http.StatusBadRequest, "", ""},
		{"unknown field", session.PhaseAwaitingCode, `{"kind":"code","value":"1","extra":true}`, http.StatusBadRequest, "", ""},
		{"malformed", session.PhaseAwaitingCode, `{`, http.StatusBadRequest, "", ""},
		{"idle", session.PhaseIdle, `{"kind":"code","value":"1"}`, http.StatusConflict, "", ""},
		{"connected", session.PhaseConnected, `{"kind":"code","value":"1"}`, http.StatusConflict, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, sess, _ := newTestServer(t)
			sess.phase = tt.phase

			w := do(t, srv, http.MethodPost, "/api/telegram/credentials", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.kind != "" {
				assert.Equal(t, tt.value, sess.credentials[tt.kind])
			} else {
				assert.Empty(t, sess.credentials)
			}
		})
	}
}

func TestQR(t *testing.T) {
	srv, sess, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/telegram/qr", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	sess.qr = []byte("\x89PNG\r\n\x1a\n....")
	w = do(t, srv, http.MethodGet, "/api/telegram/qr", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, sess.qr, w.Body.Bytes())
}

func TestUserAndChats(t *testing.T) {
	srv, sess, _ := newTestServer(t)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/api/telegram/user", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/api/telegram/chats", "").Code)

	sess.connected = true
	w := do(t, srv, http.MethodGet, "/api/telegram/user", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "har01d", decode[session.User](t, w).Username)

	w = do(t, srv, http.MethodGet, "/api/telegram/chats", "")
	require.Equal(t, http.StatusOK, w.Code)
	chats := decode[[]map[string]any](t, w)
	require.Len(t, chats, 1)
	assert.Equal(t, "1$2", chats[0]["ref"])
	assert.Equal(t, "Shares", chats[0]["name"])
}

func TestHistory(t *testing.T) {
	srv, sess, _ := newTestServer(t)
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	sess.history["1$2"] = []session.Message{{ID: 5, Date: at, Text: "hello"}}

	w := do(t, srv, http.MethodGet, "/api/telegram/history/1$2", "")
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decode[[]session.Message](t, w)
	if diff := cmp.Diff(sess.history["1$2"], msgs); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	w = do(t, srv, http.MethodGet, "/api/telegram/history/3$4", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = do(t, srv, http.MethodGet, "/api/telegram/history/garbage", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearch_UI(t *testing.T) {
	srv, _, searcher := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/telegram/search?wd=", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodGet, "/api/telegram/search?wd=%E7%94%B5%E5%BD%B1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
	assert.Equal(t, "电影", searcher.last().keyword)

	searcher.items = []search.Item{{Channel: "c1", Name: "a", Link: "https://pan.quark.cn/s/a", Type: "quark"}}
	w = do(t, srv, http.MethodGet, "/api/telegram/search?wd=a", "")
	items := decode[[]search.Item](t, w)
	require.Len(t, items, 1)
	assert.Equal(t, "quark", items[0].Type)
}

func TestSearchJoined(t *testing.T) {
	srv, _, searcher := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/tgsz?keyword=a&channels=c1,c2%7CLabel", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"results":["c1$$$a$https://pan.quark.cn/s/a"]}`, w.Body.String())
	assert.Equal(t, []string{"c1", "c2"}, searcher.last().channels)

	w = do(t, srv, http.MethodGet, "/tgsz?keyword=a", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"results":[]}`, w.Body.String())
	assert.Nil(t, searcher.last().channels)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/tgsz?channels=c1", "").Code)
}

func TestSearchEncodedAndWeb(t *testing.T) {
	srv, _, searcher := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/tgsp?keyword=a&channels=c1&encode=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "line1\nline2", w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	assert.True(t, searcher.last().encode)

	w = do(t, srv, http.MethodGet, "/tgs?keyword=a&encode=0", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "web-line", w.Body.String())
	last := searcher.last()
	assert.Equal(t, "web", last.flavor)
	assert.False(t, last.encode)
}

func TestHealthEndpointsAndMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	do(t, srv, http.MethodGet, "/api/telegram/phase", "")
	w = do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `route="/api/telegram/phase"`)
}

func TestNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(t, srv, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not found"}`, w.Body.String())
}

func TestRateLimitedRoutesSpareHealthChecks(t *testing.T) {
	sess := newFakeSession()
	srv := New(Deps{
		Session: sess,
		Search:  &fakeSearcher{},
		Health:  health.NewManager("test"),
		Stack:   middleware.StackConfig{RateLimitPerMinute: 1},
	})

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/telegram/phase", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, srv, http.MethodGet, "/api/telegram/phase", "").Code)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "").Code)
	}
}
