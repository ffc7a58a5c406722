// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/tgsearch/internal/resilience"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const previewPage = `<!DOCTYPE html>
<html><body>
<div class="tgme_header">ignored <time datetime="2000-01-01T00:00:00+00:00"></time></div>
<div class="tgme_container">
  <div class="tgme_widget_message_wrap js-widget_message_wrap">
    <div class="tgme_widget_message" data-post="movies/101">
      <div class="tgme_widget_message_text">名称：Ubuntu 24.04<br>链接：<a href="https://pan.quark.cn/s/abc">https://pan.quark.cn/s/abc</a></div>
      <a class="tgme_widget_message_date"><time datetime="2024-05-01T10:00:00+00:00">10:00</time></a>
    </div>
  </div>
  <div class="tgme_widget_message_wrap">
    <div class="tgme_widget_message" data-post="movies/102">
      <div class="tgme_widget_message_text"><p>Ubuntu handbook pdf</p><p>https://example.com/handbook</p></div>
    </div>
  </div>
  <div class="tgme_widget_message_wrap">
    <div class="tgme_widget_message" data-post="movies/103">
      <div class="tgme_widget_message_text">Ubuntu   server
        iso <b>mirror</b> https://www.alipan.com/s/xyz</div>
      <time datetime="2024-05-03T08:30:00+00:00">08:30</time>
    </div>
  </div>
</div>
</body></html>`

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:          srv.URL + "/s",
		Rate:             1000,
		Burst:            100,
		BreakerThreshold: 2,
		BreakerReset:     time.Minute,
		HTTPClient:       srv.Client(),
		Now:              func() time.Time { return fixedNow },
	})
}

func TestParsePage(t *testing.T) {
	posts, err := parsePage(strings.NewReader(previewPage))
	require.NoError(t, err)
	require.Len(t, posts, 3)

	assert.Equal(t, int64(101), posts[0].ID)
	assert.Equal(t, "2024-05-01T10:00:00+00:00", posts[0].DateTime)
	assert.Equal(t, "名称：Ubuntu 24.04\n链接：https://pan.quark.cn/s/abc", posts[0].Text)

	assert.Equal(t, "", posts[1].DateTime)
	assert.Equal(t, "Ubuntu handbook pdf\nhttps://example.com/handbook", posts[1].Text)

	assert.Equal(t, "Ubuntu server iso mirror https://www.alipan.com/s/xyz", posts[2].Text)
	assert.NotContains(t, posts[2].RawHTML, "\n")
	assert.Contains(t, posts[2].RawHTML, `data-post="movies/103"`)
}

func TestProvider_SearchSendsBrowserHeaders(t *testing.T) {
	requests := make(chan *http.Request, 1)
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Clone(context.Background())
		_, _ = w.Write([]byte(previewPage))
	})

	_, err := p.Search(context.Background(), "movies", "ubuntu 24")
	require.NoError(t, err)

	got := <-requests
	assert.Equal(t, "/s/movies", got.URL.Path)
	assert.Equal(t, "ubuntu 24", got.URL.Query().Get("q"))
	assert.Equal(t, refererHeader, got.Header.Get("Referer"))
	assert.Equal(t, DefaultUserAgent, got.Header.Get("User-Agent"))
	assert.Equal(t, acceptLanguageHeader, got.Header.Get("Accept-Language"))
}

func TestProvider_SearchKeepsTypedItems(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(previewPage))
	})

	items, err := p.Search(context.Background(), "movies", "ubuntu")
	require.NoError(t, err)

	type summary struct {
		ID   int64
		Type string
		Link string
		Name string
	}
	var got []summary
	for _, it := range items {
		got = append(got, summary{it.MessageID, it.Type, it.Link, it.Name})
		assert.Equal(t, "movies", it.Channel)
	}
	want := []summary{
		{101, "quark", "https://pan.quark.cn/s/abc", "Ubuntu 24.04"},
		{103, "aliyun", "https://www.alipan.com/s/xyz", "Ubuntu server iso mirror"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestProvider_SearchLinesNewestFirst(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(previewPage))
	})

	lines, err := p.SearchLines(context.Background(), "movies", "ubuntu")
	require.NoError(t, err)
	require.Len(t, lines, 3)

	fields := strings.Split(lines[0], "\t")
	require.Len(t, fields, 4)
	assert.Equal(t, "2024-05-03T08:30:00+00:00", fields[0])
	assert.Equal(t, "movies", fields[1])
	assert.Equal(t, "", fields[3], "lines end with a tab")

	assert.True(t, strings.HasPrefix(lines[1], "2024-06-01T12:00:00\tmovies\t"), "missing datetime uses now: %q", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "2024-05-01T10:00:00+00:00\t"))
}

func TestProvider_UpstreamErrorsOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	for i := 0; i < 2; i++ {
		_, err := p.Search(context.Background(), "movies", "x")
		assert.ErrorIs(t, err, ErrUpstreamStatus)
	}
	_, err := p.Search(context.Background(), "movies", "x")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestProvider_CancelledRequestDoesNotTripBreaker(t *testing.T) {
	release := make(chan struct{})
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := p.Search(ctx, "movies", "x")
		cancel()
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateClosed, p.breaker.State())
}

func TestPageURL_Escapes(t *testing.T) {
	p := New(Config{BaseURL: "https://t.me/s"})
	assert.Equal(t, "https://t.me/s/chan?q=%E7%94%B5%E5%BD%B1+2024", p.PageURL("chan", "电影 2024"))
}
