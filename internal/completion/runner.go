// Package completion runs schema-constrained jobs against a Responses-style completion API.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/forumwatch/internal/logging"
	"github.com/JakeFAU/forumwatch/internal/metrics"
	"github.com/JakeFAU/forumwatch/internal/radar"
)

const defaultItemsKey = "items"

// Config configures the runner.
type Config struct {
	Endpoint    string
	Model       string
	APIKey      string
	Strict      bool
	WebSearch   bool
	MaxAttempts int
	BaseBackoff time.Duration
	Timeout     time.Duration
}

// Sleeper waits between attempts; it returns early with an error if ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Runner implements radar.Completer.
type Runner struct {
	cfg        Config
	client     *http.Client
	policy     RetryPolicy
	extractors []Extractor
	sleep      Sleeper
	now        func() time.Time
	logger     *zap.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) { r.client = c }
}

// WithSleeper overrides how the runner waits between attempts.
func WithSleeper(s Sleeper) Option {
	return func(r *Runner) { r.sleep = s }
}

// WithClock overrides the time source used for HTTP-date Retry-After values.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithExtractors replaces the extraction chain.
func WithExtractors(ex ...Extractor) Option {
	return func(r *Runner) { r.extractors = ex }
}

// NewRunner builds a Runner.
func NewRunner(cfg Config, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	r := &Runner{
		cfg:        cfg,
		client:     &http.Client{},
		policy:     NewRetryPolicy(cfg.MaxAttempts, cfg.BaseBackoff),
		extractors: DefaultExtractors(),
		sleep:      sleepContext,
		now:        time.Now,
		logger:     logger.Named("completion"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type textOptions struct {
	Format jsonSchemaFormat `json:"format"`
}

type tool struct {
	Type string `json:"type"`
}

type request struct {
	Model           string      `json:"model"`
	Input           []message   `json:"input"`
	MaxOutputTokens int         `json:"max_output_tokens,omitempty"`
	Text            textOptions `json:"text"`
	Tools           []tool      `json:"tools,omitempty"`
}

// BuildRequest renders the JSON request body for a job.
func (r *Runner) BuildRequest(job radar.CompletionJob) ([]byte, error) {
	name := job.SchemaName
	if name == "" {
		name = job.Name
	}
	req := request{
		Model: r.cfg.Model,
		Input: []message{
			{Role: "system", Content: job.SystemPrompt},
			{Role: "user", Content: job.UserPrompt},
		},
		MaxOutputTokens: job.MaxTokens,
		Text: textOptions{Format: jsonSchemaFormat{
			Type:   "json_schema",
			Name:   name,
			Schema: job.Schema,
			Strict: r.cfg.Strict,
		}},
	}
	if r.cfg.WebSearch {
		req.Tools = []tool{{Type: "web_search"}}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}
	return body, nil
}

// RunJob sends the job, retrying transient failures, and extracts the items array.
func (r *Runner) RunJob(ctx context.Context, job radar.CompletionJob) radar.CompletionResult {
	log := r.logger.With(zap.String("job", job.Name))
	if r.cfg.APIKey == "" {
		log.Warn("completion skipped", zap.Error(radar.ErrMissingAPIKey))
		return radar.CompletionResult{}
	}
	payload, err := r.BuildRequest(job)
	if err != nil {
		log.Error("build request failed", zap.Error(err))
		return radar.CompletionResult{}
	}
	key := job.ItemsKey
	if key == "" {
		key = defaultItemsKey
	}
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}
	log.Debug("completion request", zap.String("body", logging.Redact(string(payload), r.cfg.APIKey)))

	for attempt := 1; ; attempt++ {
		status, header, body, err := r.do(ctx, payload, timeout)
		metrics.ObserveCompletionAttempt(job.Name, status)
		log.Debug("completion response",
			zap.Int("attempt", attempt),
			zap.Int("status", status),
			zap.String("body", logging.Redact(string(body), r.cfg.APIKey)),
			zap.Error(err),
		)
		if err == nil && status == http.StatusOK {
			items, strategy, ok := Extract(r.extractors, body, key)
			if !ok {
				log.Warn("completion payload missing expected key", zap.String("key", key))
				return radar.CompletionResult{Status: status, Items: []json.RawMessage{}, Raw: body}
			}
			log.Info("completion succeeded",
				zap.Int("attempt", attempt),
				zap.String("strategy", strategy),
				zap.Int("items", len(items)),
			)
			return radar.CompletionResult{Status: status, Count: len(items), Items: items, Raw: body}
		}
		if !r.policy.ShouldRetry(status, err, attempt) {
			log.Warn("completion failed",
				zap.Int("attempt", attempt),
				zap.Int("status", status),
				zap.String("body", logging.Redact(string(body), r.cfg.APIKey)),
				zap.Error(err),
			)
			return radar.CompletionResult{Status: status, Items: []json.RawMessage{}, Raw: body}
		}
		delay := r.policy.Backoff(attempt, ParseRetryAfter(header.Get("Retry-After"), r.now()))
		log.Info("completion retry scheduled",
			zap.Int("attempt", attempt),
			zap.Int("status", status),
			zap.Duration("delay", delay),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return radar.CompletionResult{Status: status, Items: []json.RawMessage{}, Raw: body}
		}
	}
}

func (r *Runner) do(ctx context.Context, payload []byte, timeout time.Duration) (int, http.Header, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, http.Header{}, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, http.Header{}, nil, fmt.Errorf("post completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, resp.Header, nil, fmt.Errorf("read completion body: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
