package notify

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/forumwatch/internal/radar"
)

// FormatDigest renders totals plus up to sample new links as plain text.
func FormatDigest(d radar.Digest, sample int) string {
	if sample <= 0 {
		sample = 5
	}
	var b strings.Builder
	fmt.Fprintf(&b, "forumwatch: %d new of %d found", d.New, d.Found)
	if !d.Since.IsZero() {
		fmt.Fprintf(&b, " since %s UTC", d.Since.UTC().Format("2006-01-02 15:04"))
	}
	b.WriteString("\n")
	shown := d.Links
	if len(shown) > sample {
		shown = shown[:sample]
	}
	for _, l := range shown {
		title := strings.TrimSpace(l.Title)
		if title == "" {
			title = l.URL
		}
		fmt.Fprintf(&b, "\n• %s\n  %s", title, l.URL)
	}
	if rest := d.New - len(shown); rest > 0 {
		fmt.Fprintf(&b, "\n\n…and %d more", rest)
	}
	if d.ScanID != "" {
		fmt.Fprintf(&b, "\n\nscan %s", d.ScanID)
	}
	return b.String()
}
