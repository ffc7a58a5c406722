// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(0)
	defer cache.Close()

	cache.Set(ctx, "key1", []byte("value1"), 5*time.Minute)

	val, ok := cache.Get(ctx, "key1")
	require.True(t, ok, "expected to find key1")
	assert.Equal(t, []byte("value1"), val)

	_, ok = cache.Get(ctx, "nonexistent")
	assert.False(t, ok, "expected not to find nonexistent key")
}

func TestMemoryCache_SetCopiesValue(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(0)

	buf := []byte("abc")
	cache.Set(ctx, "k", buf, time.Minute)
	buf[0] = 'x'

	val, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "abc", string(val))
}

func TestMemoryCache_Expiration(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(0)

	cache.Set(ctx, "shortlived", []byte("value"), 50*time.Millisecond)

	_, ok := cache.Get(ctx, "shortlived")
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)

	_, ok = cache.Get(ctx, "shortlived")
	assert.False(t, ok, "expected key to be expired")
}

func TestMemoryCache_Delete(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(0)

	cache.Set(ctx, "key1", []byte("value1"), 5*time.Minute)
	cache.Delete(ctx, "key1")

	_, ok := cache.Get(ctx, "key1")
	assert.False(t, ok)
}

func TestMemoryCache_Stats(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(0)

	cache.Set(ctx, "a", []byte("1"), time.Minute)
	cache.Get(ctx, "a")
	cache.Get(ctx, "b")

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestMemoryCache_Janitor(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(20 * time.Millisecond)
	defer cache.Close()

	cache.Set(ctx, "a", []byte("1"), 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return cache.Stats().Evictions == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, cache.Stats().CurrentSize)

	// Close is idempotent.
	require.NoError(t, cache.Close())
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(0)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			for j := 0; j < 100; j++ {
				cache.Set(ctx, key, []byte("v"), time.Minute)
				cache.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, cache.Stats().CurrentSize)
}

func TestNoOpCache(t *testing.T) {
	ctx := context.Background()
	cache := NewNoOpCache()

	cache.Set(ctx, "key", []byte("value"), time.Minute)
	_, ok := cache.Get(ctx, "key")
	assert.False(t, ok)
	assert.Equal(t, CacheStats{}, cache.Stats())
}

func TestNew_Backends(t *testing.T) {
	c, err := New(Options{}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &memoryCache{}, c)

	c, err = New(Options{Backend: "none"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, noOpCache{}, c)

	_, err = New(Options{Backend: "memcached"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Options{Backend: "redis", Redis: RedisConfig{Addr: "127.0.0.1:1"}}, zerolog.Nop())
	assert.Error(t, err)
}

func BenchmarkMemoryCache_Get(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache(0)
	cache.Set(ctx, "key", []byte("value"), time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Get(ctx, "key")
	}
}
