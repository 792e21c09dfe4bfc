// Package command defines how a text command is described and the permission
// and argument checks every invocation passes before its handler runs.
package command

import (
	"context"
	"strings"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
)

// Arg describes one positional argument.
type Arg struct {
	Name     string
	Required bool
}

// Handler runs a command whose checks already passed. g is the guild state
// read at dispatch time.
type Handler func(ctx context.Context, inv Invocation, g guild.Guild) Reply

// Descriptor is a registered command. The role it requires is not stored here;
// it is read from the owning guild on every invocation.
type Descriptor struct {
	Name        string
	Description string
	Args        []Arg
	Handler     Handler
}

// RequiredArgs counts the arguments marked required.
func (d Descriptor) RequiredArgs() int {
	n := 0
	for _, a := range d.Args {
		if a.Required {
			n++
		}
	}
	return n
}

// Usage renders "<prefix>name <required> [optional]".
func (d Descriptor) Usage(prefix string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(d.Name)
	for _, a := range d.Args {
		b.WriteByte(' ')
		if a.Required {
			b.WriteString("<" + a.Name + ">")
		} else {
			b.WriteString("[" + a.Name + "]")
		}
	}
	return b.String()
}

// Member is the invoking guild member as reported by the platform. Roles
// holds role names.
type Member struct {
	UserID      string
	Roles       []string
	HighestRole string
}

// HasRole reports an exact, case-sensitive role name match.
func (m *Member) HasRole(name string) bool {
	if m == nil {
		return false
	}
	for _, r := range m.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// Invocation is one parsed command message.
type Invocation struct {
	GuildID       string
	ChannelID     string
	AuthorID      string
	Prefix        string
	CorrelationID string

	// Args holds the whitespace-separated tokens, the command itself first.
	Args []string
	// Member is nil when the message was not sent from inside a guild.
	Member *Member
}

// Params returns the arguments after the command name.
func (inv Invocation) Params() []string {
	if len(inv.Args) <= 1 {
		return nil
	}
	return inv.Args[1:]
}

// Param returns the i-th argument after the command name, or "".
func (inv Invocation) Param(i int) string {
	p := inv.Params()
	if i < 0 || i >= len(p) {
		return ""
	}
	return p[i]
}
