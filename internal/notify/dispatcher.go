// Package notify delivers best-effort digests of newly found links.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/forumwatch/internal/config"
	"github.com/JakeFAU/forumwatch/internal/logging"
	"github.com/JakeFAU/forumwatch/internal/radar"
)

// Channel is one delivery target.
type Channel interface {
	Name() string
	Secrets() []string
	Send(ctx context.Context, text string) error
}

// Dispatcher implements radar.Notifier over every configured channel.
type Dispatcher struct {
	channels   []Channel
	sampleSize int
	logger     *zap.Logger
}

// NewDispatcher builds channels for whichever credentials are configured.
func NewDispatcher(cfg config.NotifyConfig, logger *zap.Logger) *Dispatcher {
	var channels []Channel
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		channels = append(channels, NewTelegram(cfg.Telegram.APIBase, cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	if cfg.Slack.WebhookURL != "" {
		channels = append(channels, NewSlack(cfg.Slack.WebhookURL))
	}
	return NewDispatcherWithChannels(cfg.SampleSize, logger, channels...)
}

// NewDispatcherWithChannels builds a dispatcher over explicit channels.
func NewDispatcherWithChannels(sampleSize int, logger *zap.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sampleSize <= 0 {
		sampleSize = 5
	}
	return &Dispatcher{channels: channels, sampleSize: sampleSize, logger: logger.Named("notify")}
}

// Enabled reports whether any channel is configured.
func (d *Dispatcher) Enabled() bool { return len(d.channels) > 0 }

// Notify sends the digest when it carries new links. Failures are logged, never returned.
func (d *Dispatcher) Notify(ctx context.Context, digest radar.Digest) {
	if digest.New <= 0 || !d.Enabled() {
		return
	}
	text := FormatDigest(digest, d.sampleSize)
	for _, ch := range d.channels {
		if err := ch.Send(ctx, text); err != nil {
			d.logger.Warn("digest delivery failed",
				zap.String("channel", ch.Name()),
				zap.String("error", logging.Redact(err.Error(), ch.Secrets()...)),
			)
			continue
		}
		d.logger.Info("digest delivered", zap.String("channel", ch.Name()), zap.Int("new", digest.New))
	}
}
