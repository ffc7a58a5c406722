// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package native

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/tgsearch/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searcherFunc func(ctx context.Context, username, keyword string) ([]session.Message, error)

func (f searcherFunc) SearchChannel(ctx context.Context, username, keyword string) ([]session.Message, error) {
	return f(ctx, username, keyword)
}

func TestProvider_OneItemPerLink(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p := New(searcherFunc(func(_ context.Context, username, keyword string) ([]session.Message, error) {
		assert.Equal(t, "movies", username)
		assert.Equal(t, "ubuntu", keyword)
		return []session.Message{
			{ID: 1, Date: at, Text: "Ubuntu\nhttps://pan.quark.cn/s/a https://pan.baidu.com/s/b"},
			{ID: 2, Date: at, Text: "no links"},
		}, nil
	}))

	items, err := p.Search(context.Background(), "movies", "ubuntu")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "quark", items[0].Type)
	assert.Equal(t, "baidu", items[1].Type)
	assert.Equal(t, "Ubuntu", items[1].Name)
	assert.Equal(t, int64(1), items[1].MessageID)
}

func TestProvider_PropagatesErrors(t *testing.T) {
	p := New(searcherFunc(func(context.Context, string, string) ([]session.Message, error) {
		return nil, session.ErrNotConnected
	}))

	_, err := p.Search(context.Background(), "movies", "x")
	assert.True(t, errors.Is(err, session.ErrNotConnected))
}
