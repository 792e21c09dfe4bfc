// Package builtin holds the bot's text commands.
package builtin

import (
	"context"
	"log/slog"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/command"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/externaldb"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/whitelist"
)

// Deps are the collaborators the commands act on.
type Deps struct {
	Registry    *guild.Registry
	Connections externaldb.Connections
	Whitelist   whitelist.Store
	Mirror      *whitelist.Mirror
	// CacheStates is optional; without it getdatabase omits the refresh time.
	CacheStates CacheStateReader
	Logger      *slog.Logger
}

// CacheStateReader reads the recorded whitelist refresh times.
type CacheStateReader interface {
	CacheState(ctx context.Context, snowflake string) (guild.CacheState, bool, error)
}

type commands struct {
	Deps
}

// Commands returns every command in registration order. Dispatch picks the
// first keyword that prefixes a message, so a keyword sharing a prefix with a
// shorter one must come first.
func Commands(d Deps) []command.Descriptor {
	c := &commands{Deps: d}
	return []command.Descriptor{
		{
			Name:        "whitelist",
			Description: "Adds a player to the server whitelist",
			Args:        []command.Arg{{Name: "playerId", Required: true}},
			Handler:     c.whitelist,
		},
		{
			Name:        "unlist",
			Description: "Removes a player from the server whitelist",
			Args:        []command.Arg{{Name: "playerId", Required: true}},
			Handler:     c.unlist,
		},
		{
			Name:        "list",
			Description: "Lists all whitelisted players",
			Handler:     c.list,
		},
		{
			Name:        "setadmin",
			Description: "Sets the role allowed to manage the whitelist",
			Args:        []command.Arg{{Name: "roleName"}},
			Handler:     c.setAdmin,
		},
		{
			Name:        "setdatabase",
			Description: "Sets the game server database connection",
			Args: []command.Arg{
				{Name: "host", Required: true},
				{Name: "database", Required: true},
				{Name: "username", Required: true},
				{Name: "password"},
			},
			Handler: c.setDatabase,
		},
		{
			Name:        "getadmin",
			Description: "Shows the role allowed to manage the whitelist",
			Handler:     c.getAdmin,
		},
		{
			Name:        "getdatabase",
			Description: "Shows the game server database connection",
			Handler:     c.getDatabase,
		},
		{
			Name:        "kickbot",
			Description: "Removes this server's data and makes the bot leave",
			Handler:     c.kickBot,
		},
	}
}
