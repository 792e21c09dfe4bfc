package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/metrics"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handlers consumes guild lifecycle events.
type Handlers interface {
	HandleGuildJoined(msg *message.Message) error
	HandleGuildLeft(msg *message.Message) error
}

// Registry is the part of guild.Registry the lifecycle handlers drive.
type Registry interface {
	Get(snowflake string) (guild.Guild, bool)
	Register(ctx context.Context, g guild.Guild) (guild.Guild, error)
	Unregister(ctx context.Context, snowflake string) error
	Len() int
}

// DirectMessenger sends the welcome message to a guild owner.
type DirectMessenger interface {
	SendDM(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error
}

// GuildHandlers handles guild-related events.
type GuildHandlers struct {
	Logger    *slog.Logger
	Registry  Registry
	Messenger DirectMessenger
	Prefix    string
	Tracer    trace.Tracer
	Metrics   *metrics.Metrics
}

// NewGuildHandlers creates a new GuildHandlers.
func NewGuildHandlers(
	logger *slog.Logger,
	registry Registry,
	messenger DirectMessenger,
	prefix string,
	tracer trace.Tracer,
	metrics *metrics.Metrics,
) Handlers {
	return &GuildHandlers{
		Logger:    logger,
		Registry:  registry,
		Messenger: messenger,
		Prefix:    prefix,
		Tracer:    tracer,
		Metrics:   metrics,
	}
}

// handlerWrapper decodes the payload and runs handlerFunc inside a span.
func handlerWrapper[T any](
	h *GuildHandlers,
	handlerName string,
	handlerFunc func(ctx context.Context, msg *message.Message, payload *T) error,
) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		ctx, span := h.Tracer.Start(msg.Context(), handlerName, trace.WithAttributes(
			attribute.String("message.id", msg.UUID),
			attribute.String("correlation_id", middleware.MessageCorrelationID(msg)),
		))
		defer span.End()

		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			span.SetStatus(codes.Error, "bad payload")
			h.Logger.ErrorContext(ctx, "Failed to unmarshal payload",
				attr.String("handler", handlerName),
				attr.String("message_id", msg.UUID),
				attr.Error(err),
			)
			return fmt.Errorf("failed to unmarshal %s payload: %w", handlerName, err)
		}

		if err := handlerFunc(ctx, msg, payload); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		return nil
	}
}
