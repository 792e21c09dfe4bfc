package discord

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
	"github.com/bwmarrin/discordgo"
)

// Discord's limits for the embeds of a single message.
const (
	maxEmbedsPerMessage = 10
	maxEmbedChars       = 6000
)

// Messenger sends the bot's outbound messages with retries.
type Messenger struct {
	session Session
	logger  *slog.Logger
}

func NewMessenger(session Session, logger *slog.Logger) *Messenger {
	return &Messenger{session: session, logger: logger}
}

// SendEmbeds posts embeds to a channel, splitting them across messages so no
// message exceeds Discord's embed count or total character limit.
func (m *Messenger) SendEmbeds(ctx context.Context, channelID string, embeds []*discordgo.MessageEmbed) error {
	for _, batch := range batchEmbeds(embeds) {
		msg := &discordgo.MessageSend{Embeds: batch}
		err := RetryDiscordAPI(ctx, m.logger, "channel_message_send", func() error {
			_, err := m.session.ChannelMessageSendComplex(channelID, msg)
			return err
		})
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to send message",
				attr.String("channel_id", channelID),
				attr.Error(err),
			)
			return fmt.Errorf("failed to send message to %s: %w", channelID, err)
		}
	}
	return nil
}

// batchEmbeds keeps the input order. An embed that alone exceeds the
// character limit is sent on its own.
func batchEmbeds(embeds []*discordgo.MessageEmbed) [][]*discordgo.MessageEmbed {
	var (
		batches [][]*discordgo.MessageEmbed
		current []*discordgo.MessageEmbed
		chars   int
	)
	for _, e := range embeds {
		n := EmbedLength(e)
		if len(current) > 0 && (len(current) == maxEmbedsPerMessage || chars+n > maxEmbedChars) {
			batches = append(batches, current)
			current, chars = nil, 0
		}
		current = append(current, e)
		chars += n
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// EmbedLength counts the characters Discord charges against a message's
// embed limit.
func EmbedLength(e *discordgo.MessageEmbed) int {
	if e == nil {
		return 0
	}
	n := utf8.RuneCountInString(e.Title) + utf8.RuneCountInString(e.Description)
	for _, f := range e.Fields {
		if f != nil {
			n += utf8.RuneCountInString(f.Name) + utf8.RuneCountInString(f.Value)
		}
	}
	if e.Footer != nil {
		n += utf8.RuneCountInString(e.Footer.Text)
	}
	if e.Author != nil {
		n += utf8.RuneCountInString(e.Author.Name)
	}
	return n
}

// SendDM sends a direct message to a user.
func (m *Messenger) SendDM(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error {
	var channel *discordgo.Channel
	err := RetryDiscordAPI(ctx, m.logger, "user_channel_create", func() error {
		var err error
		channel, err = m.session.UserChannelCreate(userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create DM channel: %w", err)
	}
	if err := m.SendEmbeds(ctx, channel.ID, []*discordgo.MessageEmbed{embed}); err != nil {
		return fmt.Errorf("failed to send DM: %w", err)
	}
	m.logger.InfoContext(ctx, "DM sent", attr.String("user_id", userID))
	return nil
}

// LeaveGuild makes the bot leave a guild.
func (m *Messenger) LeaveGuild(ctx context.Context, guildID string) error {
	err := RetryDiscordAPI(ctx, m.logger, "guild_leave", func() error {
		return m.session.GuildLeave(guildID)
	})
	if err != nil {
		return fmt.Errorf("failed to leave guild %s: %w", guildID, err)
	}
	m.logger.InfoContext(ctx, "Left guild", attr.GuildID(guildID))
	return nil
}
