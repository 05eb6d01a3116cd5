package feed

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/JakeFAU/forumwatch/internal/radar"
)

// parseJSON understands the "topic_list" wrapper (Discourse) and the "data/attributes"
// wrapper (Flarum JSON:API).
func parseJSON(baseURL string, body []byte) []radar.FeedItem {
	if !gjson.ValidBytes(body) {
		return nil
	}
	host := baseHost(baseURL)
	if host == "" {
		return nil
	}
	if topics := gjson.GetBytes(body, "topic_list.topics"); topics.IsArray() {
		return topicListItems(host, topics)
	}
	if data := gjson.GetBytes(body, "data"); data.IsArray() {
		return dataAttributeItems(host, data)
	}
	return nil
}

func topicListItems(host string, topics gjson.Result) []radar.FeedItem {
	items := make([]radar.FeedItem, 0, len(topics.Array()))
	topics.ForEach(func(_, t gjson.Result) bool {
		id := t.Get("id").String()
		slug := t.Get("slug").String()
		if id == "" || slug == "" {
			return true
		}
		published, ok := ParseDate(firstNonEmpty(t.Get("bumped_at").String(), t.Get("created_at").String()))
		if !ok {
			return true
		}
		title := firstNonEmpty(t.Get("title").String(), t.Get("fancy_title").String(), slug)
		items = append(items, radar.FeedItem{
			URL:         "https://" + host + "/t/" + slug + "/" + id,
			Title:       strings.TrimSpace(title),
			PublishedAt: published,
		})
		return true
	})
	return items
}

func dataAttributeItems(host string, data gjson.Result) []radar.FeedItem {
	items := make([]radar.FeedItem, 0, len(data.Array()))
	data.ForEach(func(_, d gjson.Result) bool {
		id := d.Get("id").String()
		if id == "" {
			return true
		}
		attrs := d.Get("attributes")
		published, ok := ParseDate(firstNonEmpty(attrs.Get("lastPostedAt").String(), attrs.Get("createdAt").String()))
		if !ok {
			return true
		}
		items = append(items, radar.FeedItem{
			URL:         "https://" + host + "/d/" + id,
			Title:       strings.TrimSpace(attrs.Get("title").String()),
			PublishedAt: published,
		})
		return true
	})
	return items
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
