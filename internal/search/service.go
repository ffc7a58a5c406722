// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package search fans one keyword out across channel providers under a global deadline.
//
// Every request runs on the shared worker pool through Dispatch. Slow or hung providers
// cost at most the deadline plus a short drain pass; their late results are discarded.
package search

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	xglog "github.com/ManuGH/tgsearch/internal/log"
	"github.com/ManuGH/tgsearch/internal/metrics"
	"github.com/ManuGH/tgsearch/internal/telemetry"
	"github.com/rs/zerolog"
)

// Flavors label metrics, spans and cache keys.
const (
	FlavorTyped   = "typed"
	FlavorJoined  = "joined"
	FlavorEncoded = "encoded"
	FlavorWeb     = "web"
)

// Provider searches one channel.
type Provider interface {
	Name() string
	Search(ctx context.Context, channel, keyword string) ([]Item, error)
}

// LineProvider additionally returns raw preview lines ("time\tchannel\thtml\t").
type LineProvider interface {
	Provider
	SearchLines(ctx context.Context, channel, keyword string) ([]string, error)
}

// SessionView tells the service whether the native session is usable.
type SessionView interface {
	Connected() bool
}

// Settings are read on every request so reloads apply without restart.
type Settings struct {
	NativeChannels []string
	WebChannels    []string
	Blocklist      []string
	MaxWait        time.Duration
	SalvageGrace   time.Duration
}

// StaticSettings returns a getter for fixed settings.
func StaticSettings(s Settings) func() Settings {
	return func() Settings { return s }
}

// Service implements the search flavors.
type Service struct {
	pool     *Pool
	native   Provider
	web      LineProvider
	session  SessionView
	settings func() Settings
	logger   zerolog.Logger
}

// NewService wires a Service. native and session may be nil, in which case every
// request goes to the web provider.
func NewService(pool *Pool, native Provider, web LineProvider, session SessionView, settings func() Settings) *Service {
	if pool == nil {
		pool = SharedPool()
	}
	return &Service{
		pool:     pool,
		native:   native,
		web:      web,
		session:  session,
		settings: settings,
		logger:   xglog.WithComponent("search"),
	}
}

// provider picks native when the session is connected, web otherwise.
func (s *Service) provider(cfg Settings) (Provider, []string) {
	if s.native != nil && s.session != nil && s.session.Connected() {
		return s.native, cfg.NativeChannels
	}
	return s.web, cfg.WebChannels
}

func (s *Service) dispatcher(cfg Settings) *Dispatcher {
	return NewDispatcher(s.pool, cfg.MaxWait, cfg.SalvageGrace)
}

func (s *Service) items(ctx context.Context, cfg Settings, p Provider, channels []string, keyword string) []Batch[Item] {
	return Dispatch(ctx, s.dispatcher(cfg), Job[Item]{
		Provider: p.Name(),
		Sources:  ChannelNames(channels),
		Run: func(ctx context.Context, channel string) ([]Item, error) {
			return p.Search(ctx, channel, keyword)
		},
	})
}

// Search returns typed items from the default channel list, filtered by the blocklist,
// newest first, without exact duplicates.
func (s *Service) Search(ctx context.Context, keyword string) []Item {
	cfg := s.settings()
	p, channels := s.provider(cfg)
	ctx, finish := s.begin(ctx, FlavorTyped, keyword, len(channels))

	var all []Item
	for _, b := range s.items(ctx, cfg, p, channels, keyword) {
		all = append(all, b.Items...)
	}
	result := refine(all, NewBlocklist(cfg.Blocklist))

	finish(len(result))
	return result
}

// SearchJoined returns one "source$$$zx##zx..." entry per delivering provider, over items
// whose content carries a link. Empty channels fall back to the default list.
func (s *Service) SearchJoined(ctx context.Context, keyword string, channels []string) []string {
	cfg := s.settings()
	p, defaults := s.provider(cfg)
	if len(channels) == 0 {
		channels = defaults
	}
	ctx, finish := s.begin(ctx, FlavorJoined, keyword, len(channels))

	var out []string
	for _, b := range s.items(ctx, cfg, p, channels, keyword) {
		if !b.Outcome.Delivered() {
			continue
		}
		zx := make([]string, 0, len(b.Items))
		for _, it := range b.Items {
			if strings.Contains(it.Content, "http") {
				zx = append(zx, it.ZxString())
			}
		}
		out = append(out, b.Source+"$$$"+strings.Join(zx, "##"))
	}

	finish(len(out))
	return out
}

// SearchEncoded returns newline-joined PgString lines, each base64 encoded when encode.
func (s *Service) SearchEncoded(ctx context.Context, keyword string, channels []string, encode bool) string {
	cfg := s.settings()
	p, defaults := s.provider(cfg)
	if len(channels) == 0 {
		channels = defaults
	}
	ctx, finish := s.begin(ctx, FlavorEncoded, keyword, len(channels))

	var lines []string
	for _, b := range s.items(ctx, cfg, p, channels, keyword) {
		for _, it := range b.Items {
			lines = append(lines, encodeLine(it.PgString(), encode))
		}
	}

	finish(len(lines))
	return strings.Join(lines, "\n")
}

// SearchWebLines always queries the web provider and returns its raw lines, newest first
// within each source.
func (s *Service) SearchWebLines(ctx context.Context, keyword string, channels []string, encode bool) string {
	cfg := s.settings()
	if len(channels) == 0 {
		channels = cfg.WebChannels
	}
	ctx, finish := s.begin(ctx, FlavorWeb, keyword, len(channels))

	batches := Dispatch(ctx, s.dispatcher(cfg), Job[string]{
		Provider: s.web.Name(),
		Sources:  ChannelNames(channels),
		Run: func(ctx context.Context, channel string) ([]string, error) {
			return s.web.SearchLines(ctx, channel, keyword)
		},
	})
	var lines []string
	for _, b := range batches {
		for _, l := range b.Items {
			lines = append(lines, encodeLine(l, encode))
		}
	}

	finish(len(lines))
	return strings.Join(lines, "\n")
}

// begin opens the request span and returns a finisher that records metrics and logs.
func (s *Service) begin(ctx context.Context, flavor, keyword string, sources int) (context.Context, func(results int)) {
	start := time.Now()
	ctx, span := telemetry.Tracer(telemetry.TracerSearch).Start(ctx, "search."+flavor)
	span.SetAttributes(telemetry.SearchAttributes(flavor, keyword, sources)...)
	return ctx, func(results int) {
		defer span.End()
		metrics.RecordSearch(flavor, time.Since(start), results)
		logger := xglog.WithContext(ctx, s.logger)
		logger.Info().
			Str(xglog.FieldEvent, "search.done").
			Str(xglog.FieldFlavor, flavor).
			Str(xglog.FieldKeyword, keyword).
			Int("sources", sources).
			Int(xglog.FieldResults, results).
			Dur("elapsed", time.Since(start)).
			Msg("search finished")
	}
}

func encodeLine(line string, encode bool) string {
	if !encode {
		return line
	}
	return base64.StdEncoding.EncodeToString([]byte(line))
}

// ChannelNames turns "name|label" entries into names, dropping blanks.
func ChannelNames(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name, _, _ := strings.Cut(e, "|")
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// SplitChannels parses a comma-separated channel list.
func SplitChannels(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	return ChannelNames(strings.Split(csv, ","))
}
