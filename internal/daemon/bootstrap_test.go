// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tgsearch/internal/cache"
	"github.com/ManuGH/tgsearch/internal/config"
	"github.com/ManuGH/tgsearch/internal/rendezvous"
	"github.com/ManuGH/tgsearch/internal/session"
)

const upstreamPage = `<html><body>
<div class="tgme_container">
  <div class="tgme_widget_message_wrap">
    <div class="tgme_widget_message" data-post="movies/7">
      <div class="tgme_widget_message_text">Ubuntu 24.04 https://pan.quark.cn/s/abc</div>
      <time datetime="2024-05-01T10:00:00+00:00">10:00</time>
    </div>
  </div>
</div>
</body></html>`

func loadTestConfig(t *testing.T, upstream string, env map[string]string) (config.AppConfig, *config.Loader) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TGS_DATA", dir)
	t.Setenv("TGS_STORE_BACKEND", "memory")
	t.Setenv("TGS_WEB_CHANNELS", "movies")
	t.Setenv("TGS_WEB_BASE_URL", upstream+"/s/")
	t.Setenv("TGS_QR_HELPER", filepath.Join(dir, "no-helper"))
	for k, v := range env {
		t.Setenv(k, v)
	}
	loader := config.NewLoader("", "test")
	cfg, err := loader.Load()
	require.NoError(t, err)
	return cfg, loader
}

func startRuntime(t *testing.T, opts Options) (*Runtime, string) {
	t.Helper()
	ln := listen(t)
	opts.Listener = ln
	rt, err := Bootstrap(context.Background(), opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.run(ctx, nil) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("runtime did not stop")
		}
	})

	base := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)
	return rt, base
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestRuntime_ServesWebSearchWithoutSession(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/s/movies", r.URL.Path)
		_, _ = w.Write([]byte(upstreamPage))
	}))
	defer upstream.Close()

	cfg, loader := loadTestConfig(t, upstream.URL, nil)
	rt, base := startRuntime(t, Options{Config: cfg, Loader: loader})

	assert.False(t, rt.Session.Connected())
	_, isMemory := rt.Store.(*rendezvous.MemoryStore)
	assert.True(t, isMemory)

	code, body := get(t, base+"/api/telegram/phase")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"phase":0,"name":"idle","authMode":"qr","connected":false}`, body)

	code, body = get(t, base+"/api/telegram/search?wd=ubuntu")
	require.Equal(t, http.StatusOK, code)
	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "quark", items[0]["type"])

	code, body = get(t, base+"/tgsz?keyword=ubuntu&channels=movies")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"results":["movies$$$Ubuntu 24.04$https://pan.quark.cn/s/abc"]}`, body)

	code, body = get(t, base+"/tgs?keyword=ubuntu")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, strings.HasPrefix(body, "2024-05-01T10:00:00+00:00\tmovies\t"), body)

	code, body = get(t, base+"/readyz")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"session"`)
	assert.Contains(t, body, `"qr_helper"`)

	code, _ = get(t, base+"/api/telegram/user")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestRuntime_ReloadAppliesSearchSettings(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/s/other" {
			_, _ = w.Write([]byte(strings.ReplaceAll(upstreamPage, "movies/7", "other/8")))
			return
		}
		_, _ = w.Write([]byte(upstreamPage))
	}))
	defer upstream.Close()

	cfg, loader := loadTestConfig(t, upstream.URL, map[string]string{"TGS_CACHE_BACKEND": "none"})
	rt, base := startRuntime(t, Options{Config: cfg, Loader: loader})

	t.Setenv("TGS_WEB_CHANNELS", "other")
	require.NoError(t, rt.Holder.Reload(context.Background()))

	_, body := get(t, base+"/tgs?keyword=ubuntu")
	assert.Contains(t, body, "\tother\t")
}

func TestBootstrap_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	cfg, loader := loadTestConfig(t, upstream.URL, map[string]string{
		"TGS_STORE_BACKEND": "redis",
		"TGS_CACHE_BACKEND": "redis",
		"TGS_REDIS_ADDR":    mr.Addr(),
	})
	rt, base := startRuntime(t, Options{Config: cfg, Loader: loader})

	_, isRedis := rt.Cache.(*cache.RedisCache)
	assert.True(t, isRedis)

	require.NoError(t, rt.Store.Set(context.Background(), rendezvous.KeyPhase, session.PhaseAwaitingCode.Value()))
	_, body := get(t, base+"/api/telegram/phase")
	assert.Contains(t, body, `"phase":3`)

	_, body = get(t, base+"/readyz")
	assert.Contains(t, body, `"result_cache"`)
	assert.Contains(t, body, `"rendezvous_store"`)
}

func TestBootstrap_UnknownStoreFails(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Store.Backend = "etcd"

	_, err := Bootstrap(context.Background(), Options{Config: cfg})
	assert.ErrorIs(t, err, rendezvous.ErrUnknownBackend)
}

func TestSettingsFrom(t *testing.T) {
	cfg := config.Defaults()
	cfg.Search.WebChannels = []string{"a|A"}
	cfg.Search.Timeout = 3 * time.Second
	holder := config.NewHolder(cfg, config.NewLoader("", "test"))

	s := settingsFrom(holder)()
	assert.Equal(t, []string{"a|A"}, s.WebChannels)
	assert.Equal(t, 3*time.Second, s.MaxWait)
	assert.Equal(t, cfg.Search.SalvageGrace, s.SalvageGrace)
}
