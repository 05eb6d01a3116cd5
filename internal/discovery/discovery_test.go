package discovery

import (
	"context"
	"encoding/json"
	"strings"
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

type fakeCompleter struct {
	result radar.CompletionResult
	jobs   []radar.CompletionJob
}

func (f *fakeCompleter) RunJob(_ context.Context, job radar.CompletionJob) radar.CompletionResult {
	f.jobs = append(f.jobs, job)
	return f.result
}

func items(raw ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(raw))
	for _, r := range raw {
		out = append(out, json.RawMessage(r))
	}
	return out
}

func baseConfig() config.Config {
	return config.Config{
		Completion: config.CompletionConfig{APIKey: "sk", Timeout: time.Minute},
		Discovery: config.DiscoveryConfig{
			Topic:           "home automation",
			Language:        "en",
			Count:           20,
			AvgItemTokens:   180,
			OverheadTokens:  256,
			GlobalCap:       4096,
			ExcludedDomains: []string{"reddit.com"},
		},
	}
}

func TestTokenBudget(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 4096, TokenBudget(20, 180, 256, 4096))
	assert.Equal(t, 1024, TokenBudget(1, 100, 0, 0))
	assert.Equal(t, 5656, TokenBudget(30, 180, 256, 4096))
	assert.Equal(t, 8192, TokenBudget(100, 180, 256, 4096))
	assert.Equal(t, 8192, TokenBudget(1, 1, 1, 20000))
}

func TestRunUpsertsAcceptableCandidates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.UpsertSource(ctx, radar.Source{Host: "known.example", IsActive: true, IsEnabled: true})
	require.NoError(t, err)
	require.NoError(t, store.UpsertCandidate(ctx, radar.DiscoveredCandidate{Domain: "rejected.example", ProofURL: "https://rejected.example/x"}))
	require.NoError(t, store.MarkCandidate(ctx, "rejected.example", radar.CandidateFailed))

	completer := &fakeCompleter{result: radar.CompletionResult{Status: 200, Count: 7, Items: items(
		`{"domain":"https://www.Community.Example.org/","proof_url":"https://community.example.org/t/hub/9","platform_guess":"Discourse","reason":"active","activity_hint":"daily"}`,
		`{"domain":"","proof_url":"https://nodomain.example/x","platform_guess":"unknown","reason":"","activity_hint":""}`,
		`{"domain":"noproof.example","proof_url":"","platform_guess":"unknown","reason":"","activity_hint":""}`,
		`{"domain":"old.reddit.com","proof_url":"https://old.reddit.com/r/x","platform_guess":"unknown","reason":"","activity_hint":""}`,
		`{"domain":"known.example","proof_url":"https://known.example/t/1","platform_guess":"discourse","reason":"","activity_hint":""}`,
		`{"domain":"rejected.example","proof_url":"https://rejected.example/t/1","platform_guess":"discourse","reason":"","activity_hint":""}`,
		`not json`,
	)}}

	stage := New(baseConfig(), completer, store, store, fixedClock{now}, nil)
	res, err := stage.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Discovered)
	assert.Equal(t, 6, res.Skipped)
	assert.Equal(t, 4096, res.MaxTokens)
	assert.Equal(t, 200, res.Status)

	c, ok := store.Candidate("community.example.org")
	require.True(t, ok)
	assert.Equal(t, radar.CandidateNew, c.Status)
	assert.Equal(t, "discourse", c.PlatformGuess)
	assert.Equal(t, now, c.FirstSeenAt)

	require.Len(t, completer.jobs, 1)
	job := completer.jobs[0]
	assert.Equal(t, 4096, job.MaxTokens)
	assert.Equal(t, "items", job.ItemsKey)
	assert.Contains(t, job.UserPrompt, "home automation")
	assert.Contains(t, job.UserPrompt, "known.example")
	assert.Contains(t, job.UserPrompt, "rejected.example")
	assert.True(t, strings.Contains(job.UserPrompt, "reddit.com"))
}

func TestRunRefreshesExistingNewCandidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.NewStore()
	first := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertCandidate(ctx, radar.DiscoveredCandidate{
		Domain: "forum.test", ProofURL: "https://forum.test/t/1", Reason: "old", FirstSeenAt: first,
	}))

	completer := &fakeCompleter{result: radar.CompletionResult{Status: 200, Count: 1, Items: items(
		`{"domain":"forum.test","proof_url":"https://forum.test/t/2","platform_guess":"discourse","reason":"fresh reason","activity_hint":"hourly"}`,
	)}}
	res, err := New(baseConfig(), completer, store, store, fixedClock{first.Add(48 * time.Hour)}, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Discovered)

	c, _ := store.Candidate("forum.test")
	assert.Equal(t, "fresh reason", c.Reason)
	assert.Equal(t, "hourly", c.ActivityHint)
	assert.Equal(t, first, c.FirstSeenAt)
}

func TestRunConfigurationErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	noKey := baseConfig()
	noKey.Completion.APIKey = ""
	completer := &fakeCompleter{}
	store := memory.NewStore()
	_, err := New(noKey, completer, store, store, fixedClock{}, nil).Run(ctx)
	require.ErrorIs(t, err, radar.ErrMissingAPIKey)

	noTopic := baseConfig()
	noTopic.Discovery.Topic = "  "
	_, err = New(noTopic, completer, store, store, fixedClock{}, nil).Run(ctx)
	require.ErrorIs(t, err, radar.ErrMissingTopic)

	assert.Empty(t, completer.jobs)
}

func TestRunCompletionFailureIsZeroCount(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{result: radar.CompletionResult{Status: 503, Items: []json.RawMessage{}}}
	store := memory.NewStore()
	res, err := New(baseConfig(), completer, store, store, fixedClock{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 503, res.Status)
	assert.Zero(t, res.Discovered)
}

func TestCandidateSchemaRequiresAllFields(t *testing.T) {
	t.Parallel()

	schema := candidateSchema()
	itemSchema := schema["properties"].(map[string]any)["items"].(map[string]any)["items"].(map[string]any)
	assert.ElementsMatch(t, []string{"domain", "proof_url", "platform_guess", "reason", "activity_hint"}, itemSchema["required"])
}
