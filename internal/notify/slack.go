// Package notify sends operator notifications to Slack. When no bot token
// is configured the notifier is a noop that only logs.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier posts messages to a Slack channel.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Slack Notifier. If botToken is empty, the notifier
// will be a noop (logging only).
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// IsEnabled returns true if the notifier has a valid Slack client.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// PostMessage sends a plain message to the configured channel.
func (n *Notifier) PostMessage(ctx context.Context, text string) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping message", "text", text)
		return nil
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	return nil
}

// JobFailure reports an exhausted cron dispatch.
func (n *Notifier) JobFailure(ctx context.Context, jobName string, attempts int, lastError string) {
	text := fmt.Sprintf(":rotating_light: cron job *%s* failed after %d attempt(s): %s", jobName, attempts, lastError)
	if err := n.PostMessage(ctx, text); err != nil {
		n.logger.Error("posting job failure to slack", "error", err, "job", jobName)
	}
}
