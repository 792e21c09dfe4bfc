package discord

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// FakeSession provides a programmable stub for the Session interface.
// Each interface method has a corresponding Func field that can be set per-test.
type FakeSession struct {
	mu    sync.Mutex
	trace []string

	// --- Message Methods ---
	ChannelMessageSendComplexFunc func(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)

	// --- User/Member Methods ---
	GetBotUserFunc        func() (*discordgo.User, error)
	UserChannelCreateFunc func(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMemberFunc       func(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)

	// --- Guild Methods ---
	GuildRolesFunc func(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildLeaveFunc func(guildID string, options ...discordgo.RequestOption) error

	// --- Handler/Lifecycle Methods ---
	AddHandlerFunc func(handler interface{}) func()
	OpenFunc       func() error
	CloseFunc      func() error
}

// NewFakeSession initializes a new FakeSession with an empty trace.
func NewFakeSession() *FakeSession {
	return &FakeSession{
		trace: []string{},
	}
}

func (f *FakeSession) record(step string) {
	f.mu.Lock()
	f.trace = append(f.trace, step)
	f.mu.Unlock()
}

// Trace returns the sequence of method calls made to the fake.
func (f *FakeSession) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func (f *FakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.record("ChannelMessageSendComplex")
	if f.ChannelMessageSendComplexFunc != nil {
		return f.ChannelMessageSendComplexFunc(channelID, data, options...)
	}
	return &discordgo.Message{ID: "fake-msg-123", ChannelID: channelID}, nil
}

func (f *FakeSession) GetBotUser() (*discordgo.User, error) {
	f.record("GetBotUser")
	if f.GetBotUserFunc != nil {
		return f.GetBotUserFunc()
	}
	return &discordgo.User{ID: "bot-user-id", Bot: true}, nil
}

func (f *FakeSession) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.record("UserChannelCreate")
	if f.UserChannelCreateFunc != nil {
		return f.UserChannelCreateFunc(recipientID, options...)
	}
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}

func (f *FakeSession) GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error) {
	f.record("GuildMember")
	if f.GuildMemberFunc != nil {
		return f.GuildMemberFunc(guildID, userID, options...)
	}
	return &discordgo.Member{GuildID: guildID, User: &discordgo.User{ID: userID}}, nil
}

func (f *FakeSession) GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	f.record("GuildRoles")
	if f.GuildRolesFunc != nil {
		return f.GuildRolesFunc(guildID, options...)
	}
	return nil, nil
}

func (f *FakeSession) GuildLeave(guildID string, options ...discordgo.RequestOption) error {
	f.record("GuildLeave")
	if f.GuildLeaveFunc != nil {
		return f.GuildLeaveFunc(guildID, options...)
	}
	return nil
}

func (f *FakeSession) AddHandler(handler interface{}) func() {
	f.record("AddHandler")
	if f.AddHandlerFunc != nil {
		return f.AddHandlerFunc(handler)
	}
	return func() {} // No-op unsubscribe function
}

func (f *FakeSession) Open() error {
	f.record("Open")
	if f.OpenFunc != nil {
		return f.OpenFunc()
	}
	return nil
}

func (f *FakeSession) Close() error {
	f.record("Close")
	if f.CloseFunc != nil {
		return f.CloseFunc()
	}
	return nil
}

var _ Session = (*FakeSession)(nil)
