package completion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/forumwatch/internal/radar"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func testJob() radar.CompletionJob {
	return radar.CompletionJob{
		Name:         "discovery",
		SystemPrompt: "system",
		UserPrompt:   "user",
		SchemaName:   "candidates",
		Schema:       map[string]any{"type": "object"},
		MaxTokens:    1024,
		Timeout:      5 * time.Second,
	}
}

const messageEnvelope = `{"output":[{"type":"message","content":[{"type":"output_text","text":"{\"items\":[{\"domain\":\"forum.example.com\"}]}"}]}]}`

func TestRunJobRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls int32
	var firstBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if n == 1 {
			b, _ := io.ReadAll(r.Body)
			firstBody.Store(b)
		}
		if n < 3 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"slow down"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(messageEnvelope))
	}))
	t.Cleanup(srv.Close)

	sleeper := &recordingSleeper{}
	runner := NewRunner(Config{
		Endpoint:    srv.URL,
		Model:       "test-model",
		APIKey:      "sk-test",
		Strict:      true,
		WebSearch:   true,
		MaxAttempts: 3,
		BaseBackoff: 10 * time.Millisecond,
	}, nil, WithSleeper(sleeper.Sleep))

	res := runner.RunJob(context.Background(), testJob())

	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, 1, res.Count)
	require.Len(t, res.Items, 1)
	assert.JSONEq(t, `{"domain":"forum.example.com"}`, string(res.Items[0]))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Len(t, sleeper.delays, 2)
	assert.GreaterOrEqual(t, sleeper.delays[0], 2*time.Second)
	assert.GreaterOrEqual(t, sleeper.delays[1], 2*time.Second)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(firstBody.Load().([]byte), &sent))
	assert.Equal(t, "test-model", sent["model"])
	assert.InDelta(t, 1024, sent["max_output_tokens"], 0.1)
	format := sent["text"].(map[string]any)["format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, "candidates", format["name"])
	assert.Equal(t, true, format["strict"])
	assert.Len(t, sent["tools"], 1)
	assert.Len(t, sent["input"], 2)
}

func TestRunJobStopsOnNonRetryableStatus(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad schema"}}`))
	}))
	t.Cleanup(srv.Close)

	sleeper := &recordingSleeper{}
	runner := NewRunner(Config{Endpoint: srv.URL, APIKey: "sk", MaxAttempts: 3}, nil, WithSleeper(sleeper.Sleep))
	res := runner.RunJob(context.Background(), testJob())

	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Zero(t, res.Count)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, sleeper.delays)
}

func TestRunJobExhaustsAttempts(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	sleeper := &recordingSleeper{}
	runner := NewRunner(Config{Endpoint: srv.URL, APIKey: "sk", MaxAttempts: 3, BaseBackoff: time.Millisecond},
		nil, WithSleeper(sleeper.Sleep))
	res := runner.RunJob(context.Background(), testJob())

	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Zero(t, res.Count)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Len(t, sleeper.delays, 2)
}

func TestRunJobWithoutAPIKeyDoesNotCall(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	t.Cleanup(srv.Close)

	res := NewRunner(Config{Endpoint: srv.URL}, nil).RunJob(context.Background(), testJob())
	assert.Zero(t, res.Status)
	assert.Zero(t, res.Count)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestRunJobRetriesTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	sleeper := &recordingSleeper{}
	runner := NewRunner(Config{Endpoint: endpoint, APIKey: "sk", MaxAttempts: 2, BaseBackoff: time.Millisecond},
		nil, WithSleeper(sleeper.Sleep))
	res := runner.RunJob(context.Background(), testJob())

	assert.Zero(t, res.Status)
	assert.Zero(t, res.Count)
	assert.Len(t, sleeper.delays, 1)
}

func TestExtractEnvelopeShapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		raw      string
		strategy string
		count    int
	}{
		{"pre-parsed field", `{"output_parsed":{"items":[{"a":1},{"a":2}]}}`, "parsed_field", 2},
		{"parsed content block", `{"output":[{"content":[{"type":"output_text","parsed":{"items":[]}}]}]}`, "parsed_field", 0},
		{"output text blocks", messageEnvelope, "output_text", 1},
		{"split output text", `{"output":[{"content":[{"type":"output_text","text":"{\"items\":"},{"type":"output_text","text":"[1,2,3]}"}]}]}`, "output_text", 3},
		{"chat choices", `{"choices":[{"message":{"content":"{\"items\":[{\"x\":true}]}"}}]}`, "output_text", 1},
		{"text with prose", `{"output_text":"Here you go: {\"items\": [{\"d\":\"a.io\"},{\"d\":\"b.io\"}]} cheers"}`, "located_object", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			items, strategy, ok := Extract(DefaultExtractors(), []byte(tc.raw), "items")
			require.True(t, ok)
			assert.Equal(t, tc.strategy, strategy)
			assert.Len(t, items, tc.count)
		})
	}

	_, _, ok := Extract(DefaultExtractors(), []byte(`{"output_text":"no json here"}`), "items")
	assert.False(t, ok)
	_, _, ok = Extract(DefaultExtractors(), []byte(`not json`), "items")
	assert.False(t, ok)
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(3, 100*time.Millisecond)
	for range 20 {
		first := p.Backoff(1, 0)
		assert.GreaterOrEqual(t, first, 150*time.Millisecond)
		assert.LessOrEqual(t, first, 350*time.Millisecond)
		second := p.Backoff(2, 0)
		assert.GreaterOrEqual(t, second, 250*time.Millisecond)
		assert.LessOrEqual(t, second, 450*time.Millisecond)
	}
	assert.Equal(t, 5*time.Second, p.Backoff(2, 5*time.Second))
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(3, time.Second)
	assert.True(t, p.ShouldRetry(http.StatusTooManyRequests, nil, 1))
	assert.True(t, p.ShouldRetry(http.StatusBadGateway, nil, 2))
	assert.False(t, p.ShouldRetry(http.StatusBadGateway, nil, 3))
	assert.False(t, p.ShouldRetry(http.StatusNotFound, nil, 1))
	assert.True(t, p.ShouldRetry(0, io.ErrUnexpectedEOF, 1))
	assert.False(t, p.ShouldRetry(0, context.Canceled, 1))
	assert.Equal(t, 3, p.MaxAttempts())
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 7*time.Second, ParseRetryAfter("7", now))
	assert.Equal(t, 30*time.Second, ParseRetryAfter("Wed, 01 May 2024 10:00:30 GMT", now))
	assert.Zero(t, ParseRetryAfter("Wed, 01 May 2024 09:00:00 GMT", now))
	assert.Zero(t, ParseRetryAfter("-3", now))
	assert.Zero(t, ParseRetryAfter("soon", now))
	assert.Zero(t, ParseRetryAfter("", now))
}
