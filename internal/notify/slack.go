package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"
)

// Slack posts digests to an incoming webhook.
type Slack struct {
	webhookURL string
	client     *http.Client
}

// NewSlack targets the given incoming webhook URL.
func NewSlack(webhookURL string) *Slack {
	return &Slack{webhookURL: webhookURL, client: &http.Client{Timeout: 10 * time.Second}}
}

// Name identifies the channel in logs.
func (s *Slack) Name() string { return "slack" }

// Secrets lists values that must never appear in logs.
func (s *Slack) Secrets() []string { return []string{s.webhookURL} }

// Send posts text to the webhook.
func (s *Slack) Send(ctx context.Context, text string) error {
	msg := &slack.WebhookMessage{Text: text}
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.client, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}
