package guildrouter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	guildhandlers "github.com/Black-And-White-Club/discord-whitelist-bot/app/guild/watermill/handlers"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// GuildRouter handles routing for guild lifecycle events.
type GuildRouter struct {
	logger     *slog.Logger
	Router     *message.Router
	subscriber message.Subscriber
}

// NewGuildRouter creates a new GuildRouter.
func NewGuildRouter(logger *slog.Logger, router *message.Router, subscriber message.Subscriber) *GuildRouter {
	return &GuildRouter{
		logger:     logger,
		Router:     router,
		subscriber: subscriber,
	}
}

// Configure sets up the router.
func (r *GuildRouter) Configure(ctx context.Context, handlers guildhandlers.Handlers) error {
	r.Router.AddMiddleware(
		middleware.CorrelationID,
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 100 * time.Millisecond,
			Logger:          watermill.NewSlogLogger(r.logger),
		}.Middleware,
	)

	if err := r.RegisterHandlers(ctx, handlers); err != nil {
		return fmt.Errorf("failed to register guild handlers: %w", err)
	}
	return nil
}

// RegisterHandlers registers event handlers.
func (r *GuildRouter) RegisterHandlers(ctx context.Context, handlers guildhandlers.Handlers) error {
	r.logger.InfoContext(ctx, "Registering Guild Handlers")

	eventsToHandlers := map[string]message.NoPublishHandlerFunc{
		guildhandlers.GuildJoinedTopic: handlers.HandleGuildJoined,
		guildhandlers.GuildLeftTopic:   handlers.HandleGuildLeft,
	}

	for topic, handlerFunc := range eventsToHandlers {
		handlerName := fmt.Sprintf("discord-guild.%s", topic)
		r.Router.AddNoPublisherHandler(
			handlerName,
			topic,
			r.subscriber,
			func(msg *message.Message) error {
				if err := handlerFunc(msg); err != nil {
					r.logger.ErrorContext(ctx, "Error processing guild message",
						attr.String("handler", handlerName),
						attr.String("message_id", msg.UUID),
						attr.Error(err),
					)
					return err
				}
				return nil
			},
		)
	}

	r.logger.InfoContext(ctx, "Guild router configured successfully",
		attr.Int("registered_handlers", len(eventsToHandlers)))
	return nil
}

// Close gracefully shuts down the router
func (r *GuildRouter) Close() error {
	if r.Router != nil {
		return r.Router.Close()
	}
	return nil
}
