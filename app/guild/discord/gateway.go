// Package discord turns gateway guild events into guild lifecycle messages.
package discord

import (
	"encoding/json"
	"fmt"
	"log/slog"

	guildhandlers "github.com/Black-And-White-Club/discord-whitelist-bot/app/guild/watermill/handlers"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/bwmarrin/discordgo"
)

type discordgoAdder interface {
	AddHandler(handler interface{}) func()
}

// GatewayEvents publishes GuildCreate and GuildDelete gateway events so
// they are handled off the gateway goroutine.
type GatewayEvents struct {
	publisher message.Publisher
	logger    *slog.Logger
}

func NewGatewayEvents(publisher message.Publisher, logger *slog.Logger) *GatewayEvents {
	return &GatewayEvents{publisher: publisher, logger: logger}
}

// RegisterWithSession hooks the publisher into the session.
func (g *GatewayEvents) RegisterWithSession(session discordgoAdder) {
	session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildCreate) {
		g.OnGuildCreate(e)
	})
	session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildDelete) {
		g.OnGuildDelete(e)
	})
}

func (g *GatewayEvents) OnGuildCreate(e *discordgo.GuildCreate) {
	if e == nil || e.Guild == nil || e.Unavailable {
		return
	}
	payload := guildhandlers.GuildJoinedPayload{
		GuildID:   e.ID,
		GuildName: e.Name,
		OwnerID:   e.OwnerID,
	}
	if err := g.publish(guildhandlers.GuildJoinedTopic, payload); err != nil {
		g.logger.Error("Failed to publish guild joined event",
			attr.GuildID(e.ID),
			attr.Error(err))
	}
}

func (g *GatewayEvents) OnGuildDelete(e *discordgo.GuildDelete) {
	if e == nil || e.Guild == nil {
		return
	}
	payload := guildhandlers.GuildLeftPayload{
		GuildID:     e.ID,
		Unavailable: e.Unavailable,
	}
	if err := g.publish(guildhandlers.GuildLeftTopic, payload); err != nil {
		g.logger.Error("Failed to publish guild left event",
			attr.GuildID(e.ID),
			attr.Error(err))
	}
}

func (g *GatewayEvents) publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	middleware.SetCorrelationID(watermill.NewUUID(), msg)
	if err := g.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}
