package discord

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Session defines the slice of the Discord API the bot uses.
type Session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (st *discordgo.Channel, err error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildLeave(guildID string, options ...discordgo.RequestOption) error
	GetBotUser() (*discordgo.User, error)
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
}

// DiscordSession is an implementation of the Session interface.
type DiscordSession struct {
	session *discordgo.Session
	logger  *slog.Logger
}

// NewDiscordSession creates a new DiscordSession.
func NewDiscordSession(session *discordgo.Session, logger *slog.Logger) *DiscordSession {
	return &DiscordSession{session: session, logger: logger}
}

// AddHandler wraps the discordgo AddHandler method.
func (d *DiscordSession) AddHandler(handler interface{}) func() {
	return d.session.AddHandler(handler)
}

// Open wraps the discordgo Open method.
func (d *DiscordSession) Open() error {
	d.logger.Info("Opening discord websocket connection")
	return d.session.Open()
}

// Close wraps the discordgo Close method.
func (d *DiscordSession) Close() error {
	d.logger.Info("Closing discord websocket connection")
	return d.session.Close()
}

func (d *DiscordSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return d.session.ChannelMessageSendComplex(channelID, data, options...)
}

// UserChannelCreate creates a new DM channel with a user.
func (d *DiscordSession) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (st *discordgo.Channel, err error) {
	return d.session.UserChannelCreate(recipientID, options...)
}

// GuildMember prefers the gateway state cache and falls back to REST.
func (d *DiscordSession) GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error) {
	if d.session.State != nil {
		if m, err := d.session.State.Member(guildID, userID); err == nil {
			return m, nil
		}
	}
	return d.session.GuildMember(guildID, userID, options...)
}

// GuildRoles prefers the gateway state cache and falls back to REST.
func (d *DiscordSession) GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	if d.session.State != nil {
		if g, err := d.session.State.Guild(guildID); err == nil && len(g.Roles) > 0 {
			return g.Roles, nil
		}
	}
	return d.session.GuildRoles(guildID, options...)
}

// GuildLeave makes the bot leave the guild.
func (d *DiscordSession) GuildLeave(guildID string, options ...discordgo.RequestOption) error {
	return d.session.GuildLeave(guildID, options...)
}

// GetBotUser retrieves the bot user.
func (d *DiscordSession) GetBotUser() (*discordgo.User, error) {
	if d.session.State != nil && d.session.State.User != nil {
		return d.session.State.User, nil
	}
	return d.session.User("@me")
}

var _ Session = (*DiscordSession)(nil)
