// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the HTTP surface: session control for the UI, the search
// flavors consumed by downstream players, and the operational endpoints.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/tgsearch/internal/api/middleware"
	"github.com/ManuGH/tgsearch/internal/health"
	xglog "github.com/ManuGH/tgsearch/internal/log"
	"github.com/ManuGH/tgsearch/internal/search"
	"github.com/ManuGH/tgsearch/internal/session"
)

// SessionController is the part of the session manager the API drives.
type SessionController interface {
	Phase(ctx context.Context) session.Phase
	AuthMode(ctx context.Context) session.AuthMode
	QRImage(ctx context.Context) ([]byte, bool)
	Connected() bool
	Connect(ctx context.Context, mode session.AuthMode) error
	Logout(ctx context.Context)
	SubmitCredential(ctx context.Context, kind session.CredentialKind, value string) error
	Self(ctx context.Context) (session.User, error)
	Chats(ctx context.Context) ([]session.Chat, error)
	History(ctx context.Context, ref string) ([]session.Message, error)
}

// Searcher runs the search flavors.
type Searcher interface {
	Search(ctx context.Context, keyword string) []search.Item
	SearchJoined(ctx context.Context, keyword string, channels []string) []string
	SearchEncoded(ctx context.Context, keyword string, channels []string, encode bool) string
	SearchWebLines(ctx context.Context, keyword string, channels []string, encode bool) string
}

// Deps are the collaborators of the Server.
type Deps struct {
	Session SessionController
	Search  Searcher
	Health  *health.Manager
	Stack   middleware.StackConfig
}

// Server owns the router.
type Server struct {
	session SessionController
	search  Searcher
	health  *health.Manager
	router  chi.Router
	logger  zerolog.Logger
}

// New builds the Server and its routes.
func New(deps Deps) *Server {
	s := &Server{
		session: deps.Session,
		search:  deps.Search,
		health:  deps.Health,
		logger:  xglog.WithComponent("api"),
	}
	s.router = s.routes(deps.Stack)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes(stack middleware.StackConfig) chi.Router {
	r := chi.NewRouter()

	// Health checks and scrape stay outside the rate limiter.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer)
		if s.health != nil {
			r.Get("/healthz", s.health.ServeHealth)
			r.Get("/readyz", s.health.ServeReady)
		}
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	})

	r.Group(func(r chi.Router) {
		middleware.ApplyStack(r, stack)

		r.Route("/api/telegram", func(r chi.Router) {
			r.Get("/phase", s.handlePhase)
			r.Post("/connect", s.handleConnect)
			r.Post("/logout", s.handleLogout)
			r.Post("/credentials", s.handleCredentials)
			r.Get("/qr", s.handleQR)
			r.Get("/user", s.handleUser)
			r.Get("/chats", s.handleChats)
			r.Get("/history/{id}", s.handleHistory)
			r.Get("/search", s.handleSearch)
		})

		r.Get("/tgsz", s.handleSearchJoined)
		r.Get("/tgsp", s.handleSearchEncoded)
		r.Get("/tgs", s.handleSearchWeb)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { writeNotFound(w) })
	return r
}
