package feed

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/forumwatch/internal/radar"
)

// questionHref identifies a question/thread hyperlink in a listing page.
var questionHref = regexp.MustCompile(`href="[^"]*/questions/\d+/`)

var questionPath = regexp.MustCompile(`/questions/\d+/`)

const (
	summarySelector   = ".s-post-summary, .question-summary, li, article, tr"
	timestampSelector = "span.relativetime[title], time[datetime], [data-timestamp]"
)

// parseHTML pairs question anchors with the timestamp found in the same summary block.
func parseHTML(baseURL string, body []byte) []radar.FeedItem {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var items []radar.FeedItem
	seen := make(map[string]struct{})
	doc.Find(`a[href*="/questions/"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !questionPath.MatchString(href) {
			return
		}
		link := resolveLink(baseURL, href)
		title := strings.TrimSpace(a.Text())
		if link == "" || title == "" {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		published, ok := ParseDate(timestampNear(a))
		if !ok {
			return
		}
		seen[link] = struct{}{}
		items = append(items, radar.FeedItem{URL: link, Title: title, PublishedAt: published})
	})
	return items
}

func timestampNear(a *goquery.Selection) string {
	block := a.Closest(summarySelector)
	if block.Length() == 0 {
		return ""
	}
	ts := block.Find(timestampSelector).First()
	for _, attr := range []string{"title", "datetime", "data-timestamp"} {
		if v, ok := ts.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
