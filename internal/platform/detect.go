// Package platform classifies community hosts and maps them to candidate feed URLs.
package platform

import (
	"strings"

	"github.com/JakeFAU/forumwatch/internal/radar"
)

type rule struct {
	platform radar.Platform
	match    func(host, proof string) bool
}

func contains(markers ...string) func(host, proof string) bool {
	return func(host, proof string) bool {
		for _, m := range markers {
			if strings.Contains(proof, m) || strings.Contains(host, m) {
				return true
			}
		}
		return false
	}
}

func hostSuffix(suffixes ...string) func(host, _ string) bool {
	return func(host, _ string) bool {
		for _, s := range suffixes {
			if host == s || strings.HasSuffix(host, "."+s) {
				return true
			}
		}
		return false
	}
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{radar.PlatformDiscourse, contains("/latest", "/t/", "discourse")},
	{radar.PlatformPHPBB, contains("viewtopic.php", "viewforum.php", "phpbb")},
	{radar.PlatformVBulletin, contains("showthread.php", "forumdisplay.php", "vbulletin")},
	{radar.PlatformIPS, contains("/discover/", "index.php?/forum", "invisioncommunity", "/topic/")},
	{radar.PlatformVanilla, contains("/discussions", "/discussion/", "vanillaforums")},
	{radar.PlatformFlarum, contains("/d/", "flarum")},
	{radar.PlatformGitHub, hostSuffix("github.com", "github.io")},
	{radar.PlatformStackExchange, hostSuffix(
		"stackexchange.com", "stackoverflow.com", "superuser.com",
		"serverfault.com", "askubuntu.com", "mathoverflow.net",
	)},
	{radar.PlatformWPForum, contains("support/forum", "/forums/topic/", "bbpress")},
}

// Detect classifies a host and an optional proof URL. It performs no I/O.
func Detect(host, proofURL string) radar.Platform {
	h := radar.NormalizeHost(host)
	p := strings.ToLower(strings.TrimSpace(proofURL))
	for _, r := range rules {
		if r.match(h, p) {
			return r.platform
		}
	}
	return radar.PlatformUnknown
}
