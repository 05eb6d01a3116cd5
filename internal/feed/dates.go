package feed

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// TimestampLayout is the normalized UTC representation used across the pipeline.
const TimestampLayout = "2006-01-02 15:04:05"

// layouts are tried before the generic parser. Order matters for ambiguous inputs.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04:05 Z",
	time.RFC822Z,
	time.RFC822,
	"2006-01-02 15:04:05Z",
	"2006-01-02 15:04:05Z07:00",
	TimestampLayout,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate parses a timestamp with the known layouts and then a looser generic parser.
// Inputs without a zone are read as UTC. The result is always UTC.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// NormalizeDate renders a parsed timestamp as UTC "YYYY-MM-DD HH:MM:SS".
func NormalizeDate(raw string) (string, bool) {
	t, ok := ParseDate(raw)
	if !ok {
		return "", false
	}
	return t.Format(TimestampLayout), true
}
