package feed

import (
	"bytes"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/JakeFAU/forumwatch/internal/radar"
)

// parseXML decodes RSS and Atom. RSS items are dated by pubDate, Atom entries by
// updated and then published.
func parseXML(baseURL string, body []byte) []radar.FeedItem {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil || parsed == nil {
		return nil
	}
	items := make([]radar.FeedItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}
		link := resolveLink(baseURL, entryLink(entry))
		if link == "" {
			continue
		}
		published, ok := entryDate(parsed.FeedType, entry)
		if !ok {
			continue
		}
		items = append(items, radar.FeedItem{
			URL:         link,
			Title:       strings.TrimSpace(entry.Title),
			PublishedAt: published,
		})
	}
	return items
}

func entryLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	for _, l := range entry.Links {
		if l != "" {
			return l
		}
	}
	if strings.HasPrefix(entry.GUID, "http") {
		return entry.GUID
	}
	return ""
}

func entryDate(feedType string, entry *gofeed.Item) (time.Time, bool) {
	type candidate struct {
		raw    string
		parsed *time.Time
	}
	order := []candidate{{entry.Published, entry.PublishedParsed}, {entry.Updated, entry.UpdatedParsed}}
	if feedType == "atom" {
		order[0], order[1] = order[1], order[0]
	}
	for _, c := range order {
		if t, ok := ParseDate(c.raw); ok {
			return t, true
		}
		if c.parsed != nil && !c.parsed.IsZero() {
			return c.parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
