// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ManuGH/tgsearch/internal/search"
)

var errMissingKeyword = errors.New("keyword is required")

// searchParams reads the keyword and channel list shared by the downstream flavors.
func searchParams(r *http.Request, keywordParam string) (string, []string, error) {
	q := r.URL.Query()
	keyword := strings.TrimSpace(q.Get(keywordParam))
	if keyword == "" {
		return "", nil, errMissingKeyword
	}
	return keyword, search.SplitChannels(q.Get("channels")), nil
}

func encodeRequested(r *http.Request) bool {
	return r.URL.Query().Get("encode") == "1"
}

// handleSearch serves the UI search over the configured channels.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	keyword, _, err := searchParams(r, "wd")
	if err != nil {
		writeError(w, err)
		return
	}
	items := s.search.Search(r.Context(), keyword)
	if items == nil {
		items = []search.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

// handleSearchJoined returns one "channel$$$name$link##..." string per channel.
func (s *Server) handleSearchJoined(w http.ResponseWriter, r *http.Request) {
	keyword, channels, err := searchParams(r, "keyword")
	if err != nil {
		writeError(w, err)
		return
	}
	results := s.search.SearchJoined(r.Context(), keyword, channels)
	if results == nil {
		results = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"results": results})
}

// handleSearchEncoded returns newline-separated pg lines, base64 per line with encode=1.
func (s *Server) handleSearchEncoded(w http.ResponseWriter, r *http.Request) {
	keyword, channels, err := searchParams(r, "keyword")
	if err != nil {
		writeError(w, err)
		return
	}
	writeText(w, s.search.SearchEncoded(r.Context(), keyword, channels, encodeRequested(r)))
}

// handleSearchWeb returns raw preview lines from the web provider.
func (s *Server) handleSearchWeb(w http.ResponseWriter, r *http.Request) {
	keyword, channels, err := searchParams(r, "keyword")
	if err != nil {
		writeError(w, err)
		return
	}
	writeText(w, s.search.SearchWebLines(r.Context(), keyword, channels, encodeRequested(r)))
}
