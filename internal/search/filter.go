// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package search

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultBlocklist drops documents and software that share hosts are full of.
var DefaultBlocklist = []string{"pdf", "epub", "azw3", "mobi", "ppt", "e-book", "ebook", "软件", "图书", "电子书"}

// Blocklist matches content against normalised terms.
type Blocklist struct {
	terms []string
}

// NewBlocklist normalises terms (NFKC, lower case) and drops empty ones.
func NewBlocklist(terms []string) Blocklist {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = normalize(t); t != "" {
			out = append(out, t)
		}
	}
	return Blocklist{terms: out}
}

// Blocked reports whether content contains any term. Full-width and case variants match.
func (b Blocklist) Blocked(content string) bool {
	if len(b.terms) == 0 {
		return false
	}
	c := normalize(content)
	for _, t := range b.terms {
		if strings.Contains(c, t) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}

// refine applies the plain-search post-processing: blocklist, newest first (stable),
// exact-duplicate removal and typed-only.
func refine(items []Item, blocklist Blocklist) []Item {
	kept := make([]Item, 0, len(items))
	for _, it := range items {
		if !it.Typed() || blocklist.Blocked(it.Content) {
			continue
		}
		kept = append(kept, it)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Time.After(kept[j].Time)
	})

	seen := make(map[itemKey]struct{}, len(kept))
	out := kept[:0]
	for _, it := range kept {
		k := it.key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}
