package interactions

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/command"
	discord "github.com/Black-And-White-Club/discord-whitelist-bot/app/discordgo"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/dispatch"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/render"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
)

// Responder posts command replies back to the channel they came from.
type Responder struct {
	messenger *discord.Messenger
	logger    *slog.Logger
	now       func() time.Time
}

func NewResponder(messenger *discord.Messenger, logger *slog.Logger) *Responder {
	return &Responder{messenger: messenger, logger: logger, now: time.Now}
}

// Respond sends the rendered reply. A reply asking the bot to leave is
// delivered first so the channel is still writable.
func (r *Responder) Respond(ctx context.Context, msg dispatch.Message, reply command.Reply) error {
	sendErr := r.messenger.SendEmbeds(ctx, msg.ChannelID, render.Embeds(reply, r.now()))
	if !reply.LeaveGuild {
		return sendErr
	}

	leaveErr := r.messenger.LeaveGuild(ctx, msg.GuildID)
	if leaveErr != nil {
		r.logger.ErrorContext(ctx, "Guild unregistered but leaving failed",
			attr.GuildID(msg.GuildID),
			attr.Error(leaveErr),
		)
	}
	return errors.Join(sendErr, leaveErr)
}
