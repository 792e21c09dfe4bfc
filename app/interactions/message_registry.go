// interactions/message_registry.go
package interactions

import (
	"context"
	"log/slog"
	"runtime/debug"

	discord "github.com/Black-And-White-Club/discord-whitelist-bot/app/discordgo"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
	"github.com/bwmarrin/discordgo"
)

type discordgoAdder interface {
	AddHandler(handler interface{}) func()
}

// MessageHandlerCreate defines the signature for message creation handlers with context
type MessageHandlerCreate func(ctx context.Context, s discord.Session, m *discordgo.MessageCreate)

// MessageRegistry manages message event handlers
type MessageRegistry struct {
	messageCreateHandlers []MessageHandlerCreate
	logger                *slog.Logger
}

// NewMessageRegistry creates a new MessageRegistry
func NewMessageRegistry(logger *slog.Logger) *MessageRegistry {
	return &MessageRegistry{
		messageCreateHandlers: make([]MessageHandlerCreate, 0),
		logger:                logger,
	}
}

// RegisterMessageCreateHandler registers a handler for MessageCreate events
func (r *MessageRegistry) RegisterMessageCreateHandler(handler MessageHandlerCreate) {
	r.messageCreateHandlers = append(r.messageCreateHandlers, handler)
}

// RegisterWithSession registers all handlers with the Discord session.
// Messages from bots, including this one, never reach the handlers.
func (r *MessageRegistry) RegisterWithSession(session discordgoAdder, wrapperSession discord.Session) {
	session.AddHandler(func(s *discordgo.Session, e *discordgo.MessageCreate) {
		r.handleMessageCreate(s, wrapperSession, e)
	})
}

func (r *MessageRegistry) handleMessageCreate(_ *discordgo.Session, wrapperSession discord.Session, e *discordgo.MessageCreate) {
	if e == nil || e.Message == nil {
		r.logger.Warn("Ignoring MessageCreate event with nil payload")
		return
	}
	if e.Author == nil {
		r.logger.Warn("Ignoring MessageCreate event with nil author",
			attr.String("channel_id", e.ChannelID),
			attr.String("message_id", e.ID))
		return
	}
	if e.Author.Bot {
		return
	}

	if wrapperSession != nil {
		if self, err := wrapperSession.GetBotUser(); err == nil && self != nil && e.Author.ID == self.ID {
			return
		} else if err != nil {
			r.logger.Warn("Could not resolve bot user for self-message check", attr.Error(err))
		}
	}

	ctx := context.Background()
	r.logger.Debug("Processing MessageCreate handlers",
		attr.String("author_id", e.Author.ID),
		attr.String("channel_id", e.ChannelID),
		attr.String("message_id", e.ID))

	for idx, handler := range r.messageCreateHandlers {
		r.runMessageCreateHandler(ctx, wrapperSession, e, idx, handler)
	}
}

func (r *MessageRegistry) runMessageCreateHandler(ctx context.Context, wrapperSession discord.Session, e *discordgo.MessageCreate, index int, handler MessageHandlerCreate) {
	if handler == nil {
		r.logger.Warn("Skipping nil MessageCreate handler", attr.Int("handler_index", index))
		return
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("Recovered panic from MessageCreate handler",
				attr.Int("handler_index", index),
				attr.String("channel_id", e.ChannelID),
				attr.String("message_id", e.ID),
				attr.Any("panic", recovered),
				attr.String("stack_trace", string(debug.Stack())))
		}
	}()

	handler(ctx, wrapperSession, e)
}
