// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package search

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ManuGH/tgsearch/internal/cache"
	"github.com/ManuGH/tgsearch/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// ErrLinesUnsupported is returned by Cached.SearchLines when the wrapped provider has no
// line mode.
var ErrLinesUnsupported = errors.New("search: provider does not return lines")

// sharedFetchTimeout bounds a collapsed provider call once it no longer follows any
// single caller's context.
const sharedFetchTimeout = 30 * time.Second

// Cached memoises provider results per (provider, channel, keyword) and collapses
// concurrent identical calls into one. Errors are never cached.
//
// A collapsed call runs detached from its callers' cancellation, so one caller giving
// up never fails the others; each caller stops waiting when its own context ends.
type Cached struct {
	inner        Provider
	cache        cache.Cache
	ttl          time.Duration
	fetchTimeout time.Duration
	group        singleflight.Group
}

// NewCached wraps inner. A non-positive ttl disables caching but keeps call collapsing.
func NewCached(inner Provider, c cache.Cache, ttl time.Duration) *Cached {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	return &Cached{inner: inner, cache: c, ttl: ttl, fetchTimeout: sharedFetchTimeout}
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) Search(ctx context.Context, channel, keyword string) ([]Item, error) {
	return cachedCall(ctx, c, FlavorTyped, "items", channel, keyword, func(ctx context.Context) ([]Item, error) {
		return c.inner.Search(ctx, channel, keyword)
	})
}

func (c *Cached) SearchLines(ctx context.Context, channel, keyword string) ([]string, error) {
	lp, ok := c.inner.(LineProvider)
	if !ok {
		return nil, ErrLinesUnsupported
	}
	return cachedCall(ctx, c, FlavorWeb, "lines", channel, keyword, func(ctx context.Context) ([]string, error) {
		return lp.SearchLines(ctx, channel, keyword)
	})
}

func cachedCall[T any](ctx context.Context, c *Cached, flavor, kind, channel, keyword string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	key := c.inner.Name() + ":" + kind + ":" + channel + ":" + keyword

	if c.ttl > 0 {
		if raw, ok := c.cache.Get(ctx, key); ok {
			var out []T
			if err := json.Unmarshal(raw, &out); err == nil {
				metrics.RecordCacheLookup(flavor, "hit")
				return out, nil
			}
			c.cache.Delete(ctx, key)
		}
	}

	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		items, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 {
			if raw, err := json.Marshal(items); err == nil {
				c.cache.Set(fetchCtx, key, raw, c.ttl)
			}
		}
		return items, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecordCacheLookup(flavor, "shared")
		} else {
			metrics.RecordCacheLookup(flavor, "miss")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]T), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
