package platform

import "github.com/JakeFAU/forumwatch/internal/radar"

var feedPaths = map[radar.Platform][]string{
	radar.PlatformDiscourse:     {"/latest.json", "/latest.rss"},
	radar.PlatformPHPBB:         {"/feed.php", "/app.php/feed"},
	radar.PlatformVBulletin:     {"/external.php?type=RSS2"},
	radar.PlatformIPS:           {"/discover/all.xml"},
	radar.PlatformVanilla:       {"/discussions/feed.rss"},
	radar.PlatformFlarum:        {"/api/discussions?sort=-lastPostedAt"},
	radar.PlatformWPForum:       {"/forums/feed/", "/feed/"},
	radar.PlatformGitHub:        {"/feed.xml", "/atom.xml"},
	radar.PlatformStackExchange: {"/feeds", "/questions?tab=newest"},
}

var genericPaths = []string{"/feed", "/rss", "/feed.xml", "/atom.xml"}

// Resolve returns the ordered candidate feed URLs for a host on the given platform.
func Resolve(host string, platform radar.Platform) []string {
	h := radar.NormalizeHost(host)
	if h == "" {
		return nil
	}
	paths, ok := feedPaths[platform]
	if !ok {
		paths = genericPaths
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, "https://"+h+p)
	}
	return out
}

// ResolveSource prefers the persisted platform and falls back to detection.
func ResolveSource(src radar.Source) (radar.Platform, []string) {
	p := radar.ParsePlatform(string(src.Platform))
	if p == radar.PlatformUnknown {
		p = Detect(src.Host, src.URL)
	}
	return p, Resolve(src.Host, p)
}
