// Package feed decodes community feeds (JSON APIs, RSS/Atom, HTML listings) into normalized items.
package feed

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/JakeFAU/forumwatch/internal/radar"
)

// Format identifies which decoder handled a body.
type Format string

// Supported formats in dispatch order.
const (
	FormatJSON Format = "json"
	FormatXML  Format = "rss_atom"
	FormatHTML Format = "html"
	FormatNone Format = "none"
)

// Sniff picks the decoder for a body. The first matching format wins.
func Sniff(baseURL string, body []byte, contentType string) Format {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json") || hasJSONSuffix(baseURL):
		return FormatJSON
	case hasFeedRoot(body):
		return FormatXML
	case strings.Contains(ct, "text/html") && questionHref.Match(body):
		return FormatHTML
	default:
		return FormatNone
	}
}

// Parse never fails: malformed input or items missing a URL or a parseable date yield no items.
func Parse(baseURL string, body []byte, contentType string) []radar.FeedItem {
	switch Sniff(baseURL, body, contentType) {
	case FormatJSON:
		return parseJSON(baseURL, body)
	case FormatXML:
		return parseXML(baseURL, body)
	case FormatHTML:
		return parseHTML(baseURL, body)
	default:
		return nil
	}
}

func hasJSONSuffix(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".json")
}

func hasFeedRoot(body []byte) bool {
	head := body
	if len(head) > 2048 {
		head = head[:2048]
	}
	head = bytes.ToLower(head)
	return bytes.Contains(head, []byte("<rss")) || bytes.Contains(head, []byte("<feed")) ||
		bytes.Contains(head, []byte("<rdf:rdf"))
}

// resolveLink turns a possibly relative href into an absolute URL against base.
func resolveLink(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

func baseHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
