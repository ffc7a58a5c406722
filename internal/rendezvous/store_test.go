// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rendezvous

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"file": func(t *testing.T) Store {
			s, err := OpenFileStore(filepath.Join(t.TempDir(), "rv.json"))
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "rv.db"))
			require.NoError(t, err)
			return s
		},
		"badger": func(t *testing.T) Store {
			s, err := OpenBadgerStore(filepath.Join(t.TempDir(), "badger"))
			require.NoError(t, err)
			return s
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			return NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
		},
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer func() { _ = s.Close() }()

			_, ok, err := s.Get(ctx, KeyPhase)
			require.NoError(t, err)
			assert.False(t, ok, "fresh store must be empty")

			require.NoError(t, s.Set(ctx, KeyPhase, "1"))
			v, ok, err := s.Get(ctx, KeyPhase)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "1", v)

			require.NoError(t, s.Set(ctx, KeyPhase, "9"), "last write wins")
			v, _, err = s.Get(ctx, KeyPhase)
			require.NoError(t, err)
			assert.Equal(t, "9", v)

			require.NoError(t, s.Delete(ctx, KeyPhase))
			_, ok, err = s.Get(ctx, KeyPhase)
			require.NoError(t, err)
			assert.False(t, ok)

			assert.NoError(t, s.Delete(ctx, "missing"), "deleting a missing key is not an error")
		})
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "rv.json")

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyAuthMode, "code"))
	require.NoError(t, s.Close())

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, KeyAuthMode)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "code", v)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rv.db")

	s, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyPhase, "9"))
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	v, ok, err := reopened.Get(ctx, KeyPhase)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "9", v)
}

func TestMemoryStore_ClosedRejectsOperations(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	_, _, err := s.Get(context.Background(), KeyPhase)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(context.Background(), KeyPhase, "0"), ErrClosed)
}

func TestOpen_Backends(t *testing.T) {
	s, err := Open(Options{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(Options{Path: filepath.Join(t.TempDir(), "rv.db")})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.IsType(t, &SQLiteStore{}, s, "sqlite is the default backend")

	_, err = Open(Options{Backend: "etcd"})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = Open(Options{Backend: "redis"})
	assert.Error(t, err, "redis requires an address")
}
