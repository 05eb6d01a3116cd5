package radar

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeHost(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://www.Example.com/forum/": "example.com",
		"WWW.forum.test":                 "forum.test",
		"forum.example.com.":             "forum.example.com",
		"http://user@host.test:8080/x":   "host.test",
		"https://www.forum.test:8443/t/": "forum.test",
		"[::1]:8080":                     "::1",
		"  ":                             "",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeHost(in), in)
	}
}

func TestParsePlatform(t *testing.T) {
	t.Parallel()

	require.Equal(t, PlatformDiscourse, ParsePlatform(" Discourse "))
	require.Equal(t, PlatformWPForum, ParsePlatform("wp-forum"))
	require.Equal(t, PlatformUnknown, ParsePlatform("mybb"))
	require.Equal(t, PlatformUnknown, ParsePlatform(""))
}

func TestFetchResultOK(t *testing.T) {
	t.Parallel()

	require.True(t, FetchResult{Status: 204}.OK())
	require.False(t, FetchResult{Status: 404}.OK())
	require.False(t, FetchResult{}.OK())
}
