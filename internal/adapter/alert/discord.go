package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"inquest/internal/domain"
)

// DiscordNotifier posts alerts to one Discord channel over the REST API.
// Send-only: it never opens the gateway connection.
type DiscordNotifier struct {
	session   *discordgo.Session
	channelID string
	logger    *slog.Logger
}

func NewDiscordNotifier(token, channelID string, logger *slog.Logger) (*DiscordNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("discord notifier: token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("discord notifier: channel id is required")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord notifier: %w", err)
	}
	return &DiscordNotifier{
		session:   dg,
		channelID: channelID,
		logger:    logger,
	}, nil
}

func (d *DiscordNotifier) Name() string { return "discord" }

func (d *DiscordNotifier) Notify(ctx context.Context, alert domain.Alert) error {
	_, err := d.session.ChannelMessageSend(d.channelID, formatAlert(alert), discordgo.WithContext(ctx))
	return err
}

var _ domain.Notifier = (*DiscordNotifier)(nil)
