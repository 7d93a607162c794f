package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"inquest/internal/domain"
)

// SlackNotifier posts alerts to one Slack channel. Send-only: it never
// opens a socket mode connection.
type SlackNotifier struct {
	api     *slack.Client
	channel string
	logger  *slog.Logger
}

func NewSlackNotifier(botToken, channel string, logger *slog.Logger) (*SlackNotifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("slack notifier: bot token is required")
	}
	if channel == "" {
		return nil, fmt.Errorf("slack notifier: channel is required")
	}
	return &SlackNotifier{
		api:     slack.New(botToken),
		channel: channel,
		logger:  logger,
	}, nil
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Notify(ctx context.Context, alert domain.Alert) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(":warning: "+formatAlert(alert), false))
	return err
}

var _ domain.Notifier = (*SlackNotifier)(nil)
