package interactions

import (
	"context"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/command"
	discord "github.com/Black-And-White-Club/discord-whitelist-bot/app/discordgo"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/dispatch"
	"github.com/bwmarrin/discordgo"
)

// Dispatcher runs text commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg dispatch.Message) (command.Reply, bool)
}

// CommandHandler feeds guild messages to the dispatcher. Direct messages are
// ignored.
func CommandHandler(d Dispatcher) MessageHandlerCreate {
	return func(ctx context.Context, _ discord.Session, m *discordgo.MessageCreate) {
		if m.GuildID == "" {
			return
		}
		d.Dispatch(ctx, toMessage(m))
	}
}

func toMessage(m *discordgo.MessageCreate) dispatch.Message {
	msg := dispatch.Message{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
	}
	// Gateway messages carry a partial member with role ids; a missing member
	// leaves RoleIDs nil so the lookup fetches it.
	if m.Member != nil {
		msg.RoleIDs = append([]string{}, m.Member.Roles...)
	}
	return msg
}
