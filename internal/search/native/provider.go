// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package native searches channels over the live protocol session.
package native

import (
	"context"

	xglog "github.com/ManuGH/tgsearch/internal/log"
	"github.com/ManuGH/tgsearch/internal/search"
	"github.com/ManuGH/tgsearch/internal/session"
	"github.com/rs/zerolog"
)

// Searcher is the slice of session.Manager the provider needs.
type Searcher interface {
	SearchChannel(ctx context.Context, username, keyword string) ([]session.Message, error)
}

// Provider turns channel search hits into one item per link.
type Provider struct {
	searcher Searcher
	logger   zerolog.Logger
}

func New(searcher Searcher) *Provider {
	return &Provider{searcher: searcher, logger: xglog.WithComponent("search")}
}

func (p *Provider) Name() string { return "native" }

// Search returns the linked items of the channel's messages. Messages without a link
// contribute nothing.
func (p *Provider) Search(ctx context.Context, channel, keyword string) ([]search.Item, error) {
	msgs, err := p.searcher.SearchChannel(ctx, channel, keyword)
	if err != nil {
		return nil, err
	}
	var items []search.Item
	for _, m := range msgs {
		for _, it := range search.ItemsFromMessage(channel, m.ID, m.Date, m.Text) {
			if it.Link != "" {
				items = append(items, it)
			}
		}
	}
	logger := xglog.WithContext(ctx, p.logger)
	logger.Debug().
		Str(xglog.FieldProvider, p.Name()).
		Str(xglog.FieldSource, channel).
		Int(xglog.FieldResults, len(items)).
		Msg("channel search finished")
	return items, nil
}
