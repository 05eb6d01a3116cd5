// Package dedup canonicalizes mention URLs and suppresses near-duplicate inserts.
package dedup

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/JakeFAU/forumwatch/internal/radar"
)

var (
	repeatedSlashes = regexp.MustCompile(`/{2,}`)
	trackingParam   = regexp.MustCompile(`^(utm_.*|ref.*|fbclid|gclid|yclid|mc_.*|aff.*|source|from|igshid|si)$`)
)

// ErrNotAbsolute is returned for URLs without a scheme and host.
var ErrNotAbsolute = errors.New("url is not absolute")

// Canonicalize lower-cases scheme and host, collapses repeated slashes, strips tracking
// parameters, the fragment and a trailing slash. It is idempotent.
func Canonicalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", ErrNotAbsolute
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if scheme == "http" {
		host = strings.TrimSuffix(host, ":80")
	}
	if scheme == "https" {
		host = strings.TrimSuffix(host, ":443")
	}

	path := repeatedSlashes.ReplaceAllString(u.EscapedPath(), "/")
	path = strings.TrimRight(path, "/")

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if q := stripTracking(u.RawQuery); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String(), nil
}

// stripTracking drops tracking parameters while keeping the remaining ones in their original order.
func stripTracking(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	kept := make([]string, 0, 4)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key = pair[:i]
		}
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if trackingParam.MatchString(strings.ToLower(key)) {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

// Domain re-derives the normalized host of a canonical URL.
func Domain(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	return radar.NormalizeHost(u.Host)
}

// Fingerprint is normalized host + "|" + path. Query strings do not participate.
func Fingerprint(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	return radar.NormalizeHost(u.Host) + "|" + u.EscapedPath()
}
