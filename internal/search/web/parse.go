// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package web

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// post is one message card of a channel preview page.
type post struct {
	ID       int64
	DateTime string // raw datetime attribute, empty when absent
	Text     string
	RawHTML  string
}

// parsePage extracts the message cards under div.tgme_container.
func parsePage(r io.Reader) ([]post, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse preview page: %w", err)
	}

	var posts []post
	for _, container := range findAll(doc, isDivWithClass("tgme_container")) {
		for _, wrap := range findAll(container, isDivWithClass("tgme_widget_message_wrap")) {
			p, err := parsePost(wrap)
			if err != nil {
				return nil, err
			}
			posts = append(posts, p)
		}
	}
	return posts, nil
}

func parsePost(wrap *html.Node) (post, error) {
	var p post
	if t := findFirst(wrap, func(n *html.Node) bool { return n.DataAtom == atom.Time }); t != nil {
		p.DateTime = attr(t, "datetime")
	}
	if txt := findFirst(wrap, hasClass("tgme_widget_message_text")); txt != nil {
		p.Text = textWithNewlines(txt)
	}
	if msg := findFirst(wrap, hasAttr("data-post")); msg != nil {
		// data-post is "channel/123".
		ref := attr(msg, "data-post")
		if i := strings.LastIndexByte(ref, '/'); i >= 0 {
			p.ID, _ = strconv.ParseInt(ref[i+1:], 10, 64)
		}
	}

	var buf bytes.Buffer
	for c := wrap.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return post{}, fmt.Errorf("render message html: %w", err)
		}
	}
	p.RawHTML = strings.ReplaceAll(buf.String(), "\n", " ")
	return p, nil
}

// textWithNewlines renders visible text, breaking lines at br, p, div and li.
func textWithNewlines(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(flattenSpace(n.Data))
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Br:
				b.WriteByte('\n')
				return
			case atom.P, atom.Div, atom.Li:
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}

	lines := strings.Split(b.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// flattenSpace turns source newlines and tabs into spaces; only markup breaks lines.
func flattenSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if match(c) {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			return c
		}
		if n := findFirst(c, match); n != nil {
			return n
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(key string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, a := range n.Attr {
			if a.Key == key {
				return true
			}
		}
		return false
	}
}

func hasClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	}
}

func isDivWithClass(class string) func(*html.Node) bool {
	match := hasClass(class)
	return func(n *html.Node) bool {
		return n.DataAtom == atom.Div && match(n)
	}
}
