package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/apperrors"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
	"github.com/ThreeDotsLabs/watermill/message"
)

// HandleGuildLeft forgets a guild the bot was removed from.
func (h *GuildHandlers) HandleGuildLeft(msg *message.Message) error {
	return handlerWrapper(h, "HandleGuildLeft",
		func(ctx context.Context, msg *message.Message, p *GuildLeftPayload) error {
			if p.Unavailable {
				h.Logger.InfoContext(ctx, "Guild unavailable, keeping registration",
					attr.GuildID(p.GuildID))
				return nil
			}

			err := h.Registry.Unregister(ctx, p.GuildID)
			var notFound *apperrors.NotFoundError
			switch {
			case errors.As(err, &notFound):
				// kickbot already unregistered it.
				return nil
			case err != nil:
				h.Logger.ErrorContext(ctx, "Failed to unregister guild",
					attr.GuildID(p.GuildID),
					attr.Error(err))
				return fmt.Errorf("failed to unregister guild %s: %w", p.GuildID, err)
			}

			h.Metrics.ObserveGuildEvent("left")
			h.Metrics.SetGuilds(h.Registry.Len())
			h.Logger.InfoContext(ctx, "Unregistered guild", attr.GuildID(p.GuildID))
			return nil
		},
	)(msg)
}
