package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/forumwatch/internal/platform"
	"github.com/JakeFAU/forumwatch/internal/radar"
)

const manualVia = "manual"

// AddSource registers a community by hand. An empty or unknown platform is detected from the
// host and URL.
func AddSource(ctx context.Context, sources radar.SourceStore, host, rawURL, rawPlatform, note string) (radar.Source, error) {
	normalized := radar.NormalizeHost(host)
	if normalized == "" {
		normalized = radar.NormalizeHost(rawURL)
	}
	if normalized == "" || strings.ContainsAny(normalized, " \t") {
		return radar.Source{}, fmt.Errorf("invalid host %q", host)
	}
	p := radar.ParsePlatform(rawPlatform)
	if p == radar.PlatformUnknown {
		p = platform.Detect(normalized, rawURL)
	}
	if rawURL == "" {
		rawURL = "https://" + normalized
	}
	src, err := sources.UpsertSource(ctx, radar.Source{
		Host:          normalized,
		URL:           rawURL,
		IsActive:      true,
		IsEnabled:     true,
		Platform:      p,
		DiscoveredVia: manualVia,
		Note:          strings.TrimSpace(note),
	})
	if err != nil {
		return radar.Source{}, fmt.Errorf("add source: %w", err)
	}
	return src, nil
}
