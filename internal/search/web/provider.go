// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package web searches public channel preview pages without a session.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	xglog "github.com/ManuGH/tgsearch/internal/log"
	"github.com/ManuGH/tgsearch/internal/metrics"
	"github.com/ManuGH/tgsearch/internal/resilience"
	"github.com/ManuGH/tgsearch/internal/search"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://t.me/s/"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultTimeout   = 10 * time.Second
	DefaultRate      = 5.0
	DefaultBurst     = 10

	maxPageBytes = 4 << 20
	// lineTimeLayout is used for cards that carry no datetime.
	lineTimeLayout = "2006-01-02T15:04:05"

	acceptHeader         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
	acceptLanguageHeader = "en-US,en;q=0.9,zh-CN;q=0.8,zh;q=0.7,ja;q=0.6,zh-TW;q=0.5"
	refererHeader        = "https://t.me/"
)

// ErrUpstreamStatus is returned for non-2xx preview responses.
var ErrUpstreamStatus = errors.New("web: unexpected upstream status")

// Config configures the preview-page provider.
type Config struct {
	BaseURL          string
	UserAgent        string
	Timeout          time.Duration
	Rate             float64 // requests per second, shared by all channels
	Burst            int
	BreakerThreshold int
	BreakerReset     time.Duration

	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
	// Now overrides the clock used for cards without a datetime.
	Now func() time.Time
}

// Provider fetches and parses preview pages.
type Provider struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	breaker   *resilience.CircuitBreaker
	now       func() time.Time
	logger    zerolog.Logger
}

// New returns a Provider with defaults applied to empty fields.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Provider{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		breaker: resilience.NewCircuitBreaker("web", cfg.BreakerThreshold, cfg.BreakerReset,
			resilience.WithIgnoredErrors(resilience.IgnoreCancellation)),
		now:    cfg.Now,
		logger: xglog.WithComponent("web"),
	}
}

func (p *Provider) Name() string { return "web" }

// Search returns typed items of the channel's preview search.
func (p *Provider) Search(ctx context.Context, channel, keyword string) ([]search.Item, error) {
	posts, err := p.fetch(ctx, channel, keyword)
	if err != nil {
		return nil, err
	}
	var items []search.Item
	for _, post := range posts {
		at, err := time.Parse(time.RFC3339, post.DateTime)
		if err != nil {
			at = p.now().UTC()
		}
		for _, it := range search.ItemsFromMessage(channel, post.ID, at, post.Text) {
			if it.Typed() {
				items = append(items, it)
			}
		}
	}
	logger := xglog.WithContext(ctx, p.logger)
	logger.Debug().
		Str(xglog.FieldSource, channel).
		Str(xglog.FieldKeyword, keyword).
		Int(xglog.FieldResults, len(items)).
		Msg("web search finished")
	return items, nil
}

// SearchLines returns "datetime\tchannel\thtml\t" per card, newest first.
func (p *Provider) SearchLines(ctx context.Context, channel, keyword string) ([]string, error) {
	posts, err := p.fetch(ctx, channel, keyword)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(posts))
	for i, post := range posts {
		ts := post.DateTime
		if ts == "" {
			ts = p.now().UTC().Format(lineTimeLayout)
		}
		// Preview pages list oldest first.
		lines[len(posts)-1-i] = ts + "\t" + channel + "\t" + post.RawHTML + "\t"
	}
	return lines, nil
}

// PageURL builds the preview search URL of a channel.
func (p *Provider) PageURL(channel, keyword string) string {
	return p.baseURL + url.PathEscape(channel) + "?q=" + url.QueryEscape(keyword)
}

func (p *Provider) fetch(ctx context.Context, channel, keyword string) ([]post, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		metrics.RecordUpstreamRequest("rate_limited")
		return nil, fmt.Errorf("web: rate limit wait: %w", err)
	}

	var body []byte
	err := p.breaker.Execute(func() error {
		var err error
		body, err = p.get(ctx, p.PageURL(channel, keyword))
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		metrics.RecordUpstreamRequest("circuit_open")
		return nil, fmt.Errorf("web: %w", err)
	}
	if err != nil {
		return nil, err
	}
	return parsePage(bytes.NewReader(body))
}

func (p *Provider) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("web: build request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguageHeader)
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Referer", refererHeader)

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest("transport_error")
		return nil, fmt.Errorf("web: fetch %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordUpstreamRequest("http_error")
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))
		return nil, fmt.Errorf("%w: %s from %s", ErrUpstreamStatus, resp.Status, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		metrics.RecordUpstreamRequest("transport_error")
		return nil, fmt.Errorf("web: read %s: %w", target, err)
	}
	metrics.RecordUpstreamRequest("ok")
	return body, nil
}
