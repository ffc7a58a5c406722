// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package search

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const maxNameRunes = 100

// Item is one shared link found in a channel message. A message without a recognised
// link yields a single untyped Item.
type Item struct {
	Channel   string    `json:"channel"`
	MessageID int64     `json:"id"`
	Time      time.Time `json:"time"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Link      string    `json:"link"`
	Type      string    `json:"type"`
}

// Typed reports whether the item links to a known share host.
func (i Item) Typed() bool { return i.Type != "" }

// ZxString encodes the item as "name$link" for the joined flavor.
func (i Item) ZxString() string {
	return sanitize(i.Name, "$#") + "$" + i.Link
}

// PgString encodes the item as one tab-separated line:
// time, channel, type, link, name.
func (i Item) PgString() string {
	return strings.Join([]string{
		i.Time.UTC().Format(time.RFC3339),
		i.Channel,
		i.Type,
		i.Link,
		sanitize(i.Name, "\t"),
	}, "\t")
}

type itemKey struct {
	channel, name, content, link, typ string
	id                                int64
	nanos                             int64
}

func (i Item) key() itemKey {
	return itemKey{i.Channel, i.Name, i.Content, i.Link, i.Type, i.MessageID, i.Time.UnixNano()}
}

// linkPattern matches http(s) URLs up to whitespace, quotes, angle brackets or CJK
// punctuation.
var linkPattern = regexp.MustCompile(`https?://[^\s<>"'，。；！？、）」】]+`)

// ParseLinks returns the distinct URLs in text in order of appearance.
func ParseLinks(text string) []string {
	matches := linkPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	links := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?)]}")
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		links = append(links, m)
	}
	return links
}

// shareHosts maps share hosts (and their subdomains) to a link type.
var shareHosts = map[string]string{
	"alipan.com":      "aliyun",
	"aliyundrive.com": "aliyun",
	"pan.quark.cn":    "quark",
	"drive.uc.cn":     "uc",
	"115.com":         "115",
	"115cdn.com":      "115",
	"anxia.com":       "115",
	"123pan.com":      "123",
	"123pan.cn":       "123",
	"123684.com":      "123",
	"123865.com":      "123",
	"123912.com":      "123",
	"pan.baidu.com":   "baidu",
	"cloud.189.cn":    "tianyi",
	"pan.xunlei.com":  "xunlei",
	"mypikpak.com":    "pikpak",
	"caiyun.139.com":  "mobile",
	"yun.139.com":     "mobile",
}

// LinkType classifies a URL by host. Unknown hosts return "".
func LinkType(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	for host != "" {
		if t, ok := shareHosts[host]; ok {
			return t
		}
		_, rest, found := strings.Cut(host, ".")
		if !found {
			break
		}
		host = rest
	}
	return ""
}

// ItemsFromMessage splits one message into items, one per link.
func ItemsFromMessage(channel string, id int64, at time.Time, content string) []Item {
	base := Item{
		Channel:   channel,
		MessageID: id,
		Time:      at,
		Name:      itemName(content),
		Content:   content,
	}
	links := ParseLinks(content)
	if len(links) == 0 {
		return []Item{base}
	}
	items := make([]Item, 0, len(links))
	for _, link := range links {
		it := base
		it.Link = link
		it.Type = LinkType(link)
		items = append(items, it)
	}
	return items
}

var namePrefixes = []string{"资源名称：", "资源名称:", "名称：", "名称:", "标题：", "标题:"}

// itemName takes the first line of content that is not just a link.
func itemName(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(linkPattern.ReplaceAllString(line, ""))
		for _, p := range namePrefixes {
			line = strings.TrimSpace(strings.TrimPrefix(line, p))
		}
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxNameRunes {
			line = string([]rune(line)[:maxNameRunes])
		}
		return line
	}
	return ""
}

// sanitize replaces newlines and the given separator characters with spaces.
func sanitize(s, separators string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || strings.ContainsRune(separators, r) {
			return ' '
		}
		return r
	}, s)
}
