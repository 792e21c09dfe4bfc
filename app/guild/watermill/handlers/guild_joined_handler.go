package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/apperrors"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bwmarrin/discordgo"
)

// HandleGuildJoined registers a newly joined guild and greets its owner.
// Guilds the registry already knows are replays from the gateway and are
// left alone.
func (h *GuildHandlers) HandleGuildJoined(msg *message.Message) error {
	return handlerWrapper(h, "HandleGuildJoined",
		func(ctx context.Context, msg *message.Message, p *GuildJoinedPayload) error {
			if p.GuildID == "" {
				h.Logger.WarnContext(ctx, "Ignoring guild joined event without guild id",
					attr.String("message_id", msg.UUID))
				return nil
			}
			if _, ok := h.Registry.Get(p.GuildID); ok {
				return nil
			}

			_, err := h.Registry.Register(ctx, guild.Guild{Snowflake: p.GuildID})
			var dup *apperrors.DuplicateGuildError
			switch {
			case errors.As(err, &dup):
				return nil
			case err != nil:
				h.Logger.ErrorContext(ctx, "Failed to register guild",
					attr.GuildID(p.GuildID),
					attr.Error(err))
				return fmt.Errorf("failed to register guild %s: %w", p.GuildID, err)
			}

			h.Metrics.ObserveGuildEvent("joined")
			h.Metrics.SetGuilds(h.Registry.Len())
			h.Logger.InfoContext(ctx, "Registered guild",
				attr.GuildID(p.GuildID),
				attr.String("guild_name", p.GuildName))

			if p.OwnerID == "" {
				return nil
			}
			// The guild is registered either way; a failed greeting must not
			// cause a redelivery.
			if err := h.Messenger.SendDM(ctx, p.OwnerID, h.welcomeEmbed(p)); err != nil {
				h.Logger.WarnContext(ctx, "Failed to send welcome message",
					attr.GuildID(p.GuildID),
					attr.String("owner_id", p.OwnerID),
					attr.Error(err))
			}
			return nil
		},
	)(msg)
}

func (h *GuildHandlers) welcomeEmbed(p *GuildJoinedPayload) *discordgo.MessageEmbed {
	name := p.GuildName
	if name == "" {
		name = p.GuildID
	}
	return &discordgo.MessageEmbed{
		Title: "Hi there!",
		Color: 0x20B2AA,
		Fields: []*discordgo.MessageEmbedField{{
			Name: "Finish the setup",
			Value: fmt.Sprintf("Run `%ssetadmin <role>` to choose who can manage the whitelist, "+
				"then `%ssetdatabase <host> <database> <username> [password]` to connect your server's database.",
				h.Prefix, h.Prefix),
		}},
		Footer:    &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("You received this because you own %s.", name)},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
