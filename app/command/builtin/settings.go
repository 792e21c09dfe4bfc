package builtin

import (
	"context"
	"fmt"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/command"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/apperrors"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
)

func (c *commands) setAdmin(ctx context.Context, inv command.Invocation, g guild.Guild) command.Reply {
	role := inv.Param(0)
	if role == "" && inv.Member != nil {
		role = inv.Member.HighestRole
	}
	if role == "" {
		return command.Failed("No role given", &apperrors.MissingRoleError{UserID: inv.AuthorID})
	}

	if _, err := c.Registry.SetAdminRole(g.Snowflake, role); err != nil {
		return command.Failed("Could not set admin role", err)
	}

	c.Logger.InfoContext(ctx, "Admin role changed",
		attr.GuildID(g.Snowflake),
		attr.String("role", role),
		attr.String("by", inv.AuthorID),
		attr.CorrelationID(inv.CorrelationID),
	)
	r := command.OK("Admin role changed", fmt.Sprintf("Run %ssetadmin again to change it.", inv.Prefix))
	r.Fields = []command.Field{{Name: "Admin role", Value: role}}
	return r
}

func (c *commands) setDatabase(ctx context.Context, inv command.Invocation, g guild.Guild) command.Reply {
	creds := guild.Credentials{
		Host:         inv.Param(0),
		DatabaseName: inv.Param(1),
		Username:     inv.Param(2),
		Password:     inv.Param(3),
	}
	updated, err := c.Registry.SetDBCredentials(ctx, g.Snowflake, creds)
	if err != nil {
		return command.Failed("Could not save database settings", err)
	}
	fields := databaseFields(*updated.DBProvider)

	c.Logger.InfoContext(ctx, "Database credentials changed",
		attr.GuildID(g.Snowflake),
		attr.String("host", creds.Host),
		attr.String("database", creds.DatabaseName),
		attr.String("by", inv.AuthorID),
		attr.CorrelationID(inv.CorrelationID),
	)

	if _, err := c.Connections.Connect(ctx, updated); err != nil {
		r := command.Failed("Database saved, connection failed", err)
		r.Fields = fields
		return r
	}
	r := command.OK("Database changed", "Connected to the game database.")
	r.Fields = fields
	return r
}

func (c *commands) getAdmin(ctx context.Context, inv command.Invocation, g guild.Guild) command.Reply {
	if !g.HasAdminRole() {
		return command.OK("No admin role", fmt.Sprintf("Anyone can manage the whitelist until %ssetadmin is run.", inv.Prefix))
	}
	r := command.OK("Admin role", "")
	r.Fields = []command.Field{{Name: "Admin role", Value: g.AdminRole}}
	return r
}

func (c *commands) getDatabase(ctx context.Context, inv command.Invocation, g guild.Guild) command.Reply {
	if g.DBProvider == nil {
		return command.OK("No database configured", fmt.Sprintf("Set one with %ssetdatabase.", inv.Prefix))
	}
	r := command.OK("Database connection", "")
	r.Fields = databaseFields(*g.DBProvider)
	if refreshed, ok := c.lastRefresh(ctx, g.Snowflake); ok {
		r.Fields = append(r.Fields, command.Field{Name: "Whitelist refreshed", Value: refreshed})
	}
	return r
}

// lastRefresh formats the recorded refresh time. A read failure only drops
// the field.
func (c *commands) lastRefresh(ctx context.Context, snowflake string) (string, bool) {
	if c.CacheStates == nil {
		return "", false
	}
	state, ok, err := c.CacheStates.CacheState(ctx, snowflake)
	if err != nil {
		c.Logger.WarnContext(ctx, "Failed to read whitelist refresh time",
			attr.GuildID(snowflake),
			attr.Error(err),
		)
		return "", false
	}
	if !ok {
		return "never", true
	}
	return state.LastRefresh.UTC().Format("2006-01-02 15:04 UTC"), true
}

func (c *commands) kickBot(ctx context.Context, inv command.Invocation, g guild.Guild) command.Reply {
	if err := c.Registry.Unregister(ctx, g.Snowflake); err != nil {
		return command.Failed("Could not remove server data", err)
	}
	c.Logger.InfoContext(ctx, "Bot removed by command",
		attr.GuildID(g.Snowflake),
		attr.String("by", inv.AuthorID),
		attr.CorrelationID(inv.CorrelationID),
	)
	r := command.OK("Goodbye", "All data for this server was removed.")
	r.LeaveGuild = true
	return r
}

// databaseFields never includes the password.
func databaseFields(c guild.Credentials) []command.Field {
	return []command.Field{
		{Name: "Server", Value: c.Host},
		{Name: "Database", Value: c.DatabaseName},
		{Name: "Username", Value: c.Username},
	}
}
