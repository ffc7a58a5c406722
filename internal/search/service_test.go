// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package search

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xglog "github.com/ManuGH/tgsearch/internal/log"
)

type fakeProvider struct {
	name  string
	items map[string][]Item
	lines map[string][]string
	errs  map[string]error

	mu       sync.Mutex
	channels []string
	calls    atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(_ context.Context, channel, _ string) ([]Item, error) {
	f.record(channel)
	if err := f.errs[channel]; err != nil {
		return nil, err
	}
	return f.items[channel], nil
}

func (f *fakeProvider) SearchLines(_ context.Context, channel, _ string) ([]string, error) {
	f.record(channel)
	if err := f.errs[channel]; err != nil {
		return nil, err
	}
	return f.lines[channel], nil
}

func (f *fakeProvider) record(channel string) {
	f.calls.Add(1)
	f.mu.Lock()
	f.channels = append(f.channels, channel)
	f.mu.Unlock()
}

func (f *fakeProvider) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.channels...)
}

type sessionFlag bool

func (s sessionFlag) Connected() bool { return bool(s) }

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func quarkItem(channel, name string, hours int) Item {
	link := "https://pan.quark.cn/s/" + name
	return Item{
		Channel: channel,
		Name:    name,
		Content: name + " " + link,
		Link:    link,
		Type:    "quark",
		Time:    t0.Add(time.Duration(hours) * time.Hour),
	}
}

func testSettings() Settings {
	return Settings{
		NativeChannels: []string{"n1|Native One", "n2"},
		WebChannels:    []string{"w1", "w2|Web Two"},
		Blocklist:      DefaultBlocklist,
		MaxWait:        time.Second,
	}
}

func TestService_SearchUsesWebWhenDisconnected(t *testing.T) {
	pool := testPool(t, 4)
	native := &fakeProvider{name: "native"}
	web := &fakeProvider{name: "web", items: map[string][]Item{
		"w1": {quarkItem("w1", "a", 1), quarkItem("w1", "book-pdf", 5)},
		"w2": {quarkItem("w2", "b", 2), quarkItem("w1", "a", 1)},
	}}
	svc := NewService(pool, native, web, sessionFlag(false), StaticSettings(testSettings()))

	got := svc.Search(context.Background(), "ubuntu")

	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Name)
	assert.Equal(t, "a", got[1].Name)
	assert.ElementsMatch(t, []string{"w1", "w2"}, web.seen())
	assert.Zero(t, native.calls.Load())
}

func TestService_SearchUsesNativeWhenConnected(t *testing.T) {
	pool := testPool(t, 4)
	native := &fakeProvider{name: "native", items: map[string][]Item{
		"n1": {quarkItem("n1", "x", 1)},
	}}
	web := &fakeProvider{name: "web"}
	svc := NewService(pool, native, web, sessionFlag(true), StaticSettings(testSettings()))

	got := svc.Search(context.Background(), "ubuntu")

	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].Name)
	assert.ElementsMatch(t, []string{"n1", "n2"}, native.seen())
	assert.Zero(t, web.calls.Load())
}

func TestService_NilSessionFallsBackToWeb(t *testing.T) {
	pool := testPool(t, 2)
	web := &fakeProvider{name: "web"}
	svc := NewService(pool, nil, web, nil, StaticSettings(testSettings()))

	assert.Empty(t, svc.Search(context.Background(), "x"))
	assert.Equal(t, int32(2), web.calls.Load())
}

func TestService_SearchJoined(t *testing.T) {
	pool := testPool(t, 4)
	chatter := Item{Channel: "c1", Name: "hello", Content: "no link"}
	web := &fakeProvider{
		name: "web",
		items: map[string][]Item{
			"c1": {quarkItem("c1", "a", 1), chatter, quarkItem("c1", "b", 2)},
			"c2": nil,
		},
		errs: map[string]error{"c3": errors.New("down")},
	}
	svc := NewService(pool, nil, web, nil, StaticSettings(testSettings()))

	got := svc.SearchJoined(context.Background(), "x", []string{"c1|Label", "c2", "c3"})

	assert.Equal(t, []string{
		"c1$$$a$https://pan.quark.cn/s/a##b$https://pan.quark.cn/s/b",
		"c2$$$",
	}, got)
}

func TestService_SearchJoinedDefaultsToConfiguredChannels(t *testing.T) {
	pool := testPool(t, 2)
	web := &fakeProvider{name: "web"}
	svc := NewService(pool, nil, web, nil, StaticSettings(testSettings()))

	got := svc.SearchJoined(context.Background(), "x", nil)
	assert.Equal(t, []string{"w1$$$", "w2$$$"}, got)
}

func TestService_SearchEncoded(t *testing.T) {
	pool := testPool(t, 2)
	a := quarkItem("c1", "a", 1)
	b := quarkItem("c1", "b", 2)
	web := &fakeProvider{name: "web", items: map[string][]Item{"c1": {a, b}}}
	svc := NewService(pool, nil, web, nil, StaticSettings(testSettings()))

	plain := svc.SearchEncoded(context.Background(), "x", []string{"c1"}, false)
	assert.Equal(t, a.PgString()+"\n"+b.PgString(), plain)

	encoded := svc.SearchEncoded(context.Background(), "x", []string{"c1"}, true)
	lines := strings.Split(encoded, "\n")
	require.Len(t, lines, 2)
	raw, err := base64.StdEncoding.DecodeString(lines[1])
	require.NoError(t, err)
	assert.Equal(t, b.PgString(), string(raw))
}

func TestService_SearchWebLinesIgnoresSession(t *testing.T) {
	pool := testPool(t, 2)
	native := &fakeProvider{name: "native"}
	web := &fakeProvider{name: "web", lines: map[string][]string{
		"w1": {"t2\tw1\t<b>2</b>\t", "t1\tw1\t<b>1</b>\t"},
		"w2": {"t3\tw2\t<b>3</b>\t"},
	}}
	svc := NewService(pool, native, web, sessionFlag(true), StaticSettings(testSettings()))

	got := svc.SearchWebLines(context.Background(), "x", nil, false)
	assert.Equal(t, "t2\tw1\t<b>2</b>\t\nt1\tw1\t<b>1</b>\t\nt3\tw2\t<b>3</b>\t", got)
	assert.Zero(t, native.calls.Load())

	enc := svc.SearchWebLines(context.Background(), "x", []string{"w2"}, true)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("t3\tw2\t<b>3</b>\t")), enc)
}

func TestService_SettingsAreReadPerRequest(t *testing.T) {
	pool := testPool(t, 2)
	web := &fakeProvider{name: "web"}
	var current atomic.Value
	current.Store(Settings{WebChannels: []string{"old"}, MaxWait: time.Second})
	svc := NewService(pool, nil, web, nil, func() Settings { return current.Load().(Settings) })

	svc.Search(context.Background(), "x")
	current.Store(Settings{WebChannels: []string{"new"}, MaxWait: time.Second})
	svc.Search(context.Background(), "x")

	assert.Equal(t, []string{"old", "new"}, web.seen())
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, ChannelNames([]string{"a|Alpha", " b ", "", "|only label", "c"}))
	assert.Equal(t, []string{"x", "y"}, SplitChannels("x, y|Why,"))
	assert.Nil(t, SplitChannels("  "))
}

func TestService_LogsCompletionWithRequestID(t *testing.T) {
	pool := testPool(t, 2)
	var buf bytes.Buffer
	xglog.Configure(xglog.Config{Level: "info", Output: &buf})
	t.Cleanup(func() { xglog.Configure(xglog.Config{}) })

	web := &fakeProvider{name: "web", items: map[string][]Item{"w1": {quarkItem("w1", "a", 1)}}}
	svc := NewService(pool, nil, web, nil, StaticSettings(testSettings()))

	ctx := xglog.ContextWithRequestID(context.Background(), "req-42")
	require.Len(t, svc.Search(ctx, "ubuntu"), 1)

	var done map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry[xglog.FieldEvent] == "search.done" {
			done = entry
		}
	}
	require.NotNil(t, done, "search.done not logged: %s", buf.String())
	assert.Equal(t, "req-42", done[xglog.FieldRequestID])
	assert.Equal(t, "search", done[xglog.FieldComponent])
	assert.Equal(t, float64(1), done[xglog.FieldResults])
}
