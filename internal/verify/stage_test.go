package verify

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/forumwatch/internal/config"
	"github.com/JakeFAU/forumwatch/internal/radar"
	"github.com/JakeFAU/forumwatch/internal/storage/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeFetcher struct {
	responses map[string]radar.FetchResult
	calls     [][]string
}

func (f *fakeFetcher) FetchAll(_ context.Context, urls []string) map[string]radar.FetchResult {
	f.calls = append(f.calls, urls)
	out := make(map[string]radar.FetchResult)
	for _, u := range urls {
		if res, ok := f.responses[u]; ok {
			res.URL = u
			out[u] = res
		}
	}
	return out
}

func testConfig() config.Config {
	return config.Config{Verification: config.VerificationConfig{BatchSize: 100, FreshnessWindow: 720 * time.Hour}}
}

func TestRunVanilla404MarksCandidateFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.UpsertCandidate(ctx, radar.DiscoveredCandidate{
		Domain: "new-forum.test", ProofURL: "https://new-forum.test/discussions/123-hello", PlatformGuess: "unknown",
	}))
	fetcher := &fakeFetcher{responses: map[string]radar.FetchResult{
		"https://new-forum.test/discussions/feed.rss": {Status: http.StatusNotFound, ContentType: "text/html", Body: []byte("not found")},
	}}

	res, err := New(testConfig(), store, store, fetcher, fixedClock{time.Now()}, nil).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Verified)
	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, []string{"https://new-forum.test/discussions/feed.rss"}, fetcher.calls[0])

	c, ok := store.Candidate("new-forum.test")
	require.True(t, ok)
	assert.Equal(t, radar.CandidateFailed, c.Status)
	_, ok = store.Source("new-forum.test")
	assert.False(t, ok)
}

func TestRunPromotesFreshCandidatesInOneFetchRound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore()

	for _, c := range []radar.DiscoveredCandidate{
		{Domain: "fresh.test", ProofURL: "https://fresh.test/t/topic/1", Reason: "lively", FirstSeenAt: now.Add(-3 * time.Hour)},
		{Domain: "guess.test", ProofURL: "https://guess.test/home", PlatformGuess: "flarum", FirstSeenAt: now.Add(-2 * time.Hour)},
		{Domain: "stale.test", ProofURL: "https://stale.test/viewtopic.php?t=1", FirstSeenAt: now.Add(-time.Hour)},
	} {
		require.NoError(t, store.UpsertCandidate(ctx, c))
	}

	topicJSON := fmt.Sprintf(`{"topic_list":{"topics":[{"id":1,"slug":"hi","title":"Hi","bumped_at":%q}]}}`,
		now.Add(-2*time.Hour).Format(time.RFC3339))
	flarumJSON := fmt.Sprintf(`{"data":[{"id":"5","attributes":{"title":"T","lastPostedAt":%q}}]}`,
		now.Add(-24*time.Hour).Format(time.RFC3339))
	staleRSS := fmt.Sprintf(`<rss version="2.0"><channel><item><title>Old</title><link>https://stale.test/viewtopic.php?t=9</link><pubDate>%s</pubDate></item></channel></rss>`,
		now.Add(-40*24*time.Hour).Format(time.RFC1123Z))

	fetcher := &fakeFetcher{responses: map[string]radar.FetchResult{
		"https://fresh.test/latest.json":                        {Status: 200, ContentType: "application/json", Body: []byte(topicJSON)},
		"https://guess.test/api/discussions?sort=-lastPostedAt": {Status: 200, ContentType: "application/vnd.api+json", Body: []byte(flarumJSON)},
		"https://stale.test/feed.php":                           {Status: 200, ContentType: "application/rss+xml", Body: []byte(staleRSS)},
	}}

	res, err := New(testConfig(), store, store, fetcher, fixedClock{now}, nil).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Checked)
	assert.Equal(t, 2, res.Verified)
	assert.Equal(t, 1, res.Failed)
	assert.ElementsMatch(t, []string{"fresh.test", "guess.test"}, res.VerifiedDomains)
	require.Len(t, fetcher.calls, 1)
	assert.Len(t, fetcher.calls[0], 5)

	src, ok := store.Source("fresh.test")
	require.True(t, ok)
	assert.True(t, src.IsActive)
	assert.True(t, src.IsEnabled)
	assert.Equal(t, radar.PlatformDiscourse, src.Platform)
	assert.Equal(t, "discovery", src.DiscoveredVia)
	assert.Equal(t, "lively", src.Note)

	guessed, ok := store.Source("guess.test")
	require.True(t, ok)
	assert.Equal(t, radar.PlatformFlarum, guessed.Platform)

	stale, _ := store.Candidate("stale.test")
	assert.Equal(t, radar.CandidateFailed, stale.Status)
	_, ok = store.Source("stale.test")
	assert.False(t, ok)

	again, err := New(testConfig(), store, store, fetcher, fixedClock{now}, nil).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Checked)
	assert.Len(t, fetcher.calls, 1)
}
