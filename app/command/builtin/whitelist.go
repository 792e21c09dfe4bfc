package builtin

import (
	"context"
	"fmt"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/command"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/externaldb"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/apperrors"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/whitelist"
)

func (c *commands) handle(ctx context.Context, inv command.Invocation, g guild.Guild) (*externaldb.Handle, *command.Reply) {
	if g.DBProvider == nil {
		err := &apperrors.NoCredentialsError{Snowflake: g.Snowflake}
		r := command.Failed("No database configured", err)
		r.Message = fmt.Sprintf("Set the game database first with %ssetdatabase.", inv.Prefix)
		return nil, &r
	}
	h, err := c.Connections.Handle(ctx, g)
	if err != nil {
		c.Logger.WarnContext(ctx, "Could not obtain database handle",
			attr.GuildID(g.Snowflake),
			attr.CorrelationID(inv.CorrelationID),
			attr.Error(err),
		)
		r := command.Failed("Database unavailable", err)
		return nil, &r
	}
	return h, nil
}

func (c *commands) whitelist(ctx context.Context, inv command.Invocation, g guild.Guild) command.Reply {
	id := inv.Param(0)
	if err := whitelist.ValidateIdentifier(id); err != nil {
		return command.Failed("Invalid player identifier", err)
	}
	h, failed := c.handle(ctx, inv, g)
	if failed != nil {
		return *failed
	}

	if err := c.Whitelist.Add(ctx, h, id); err != nil {
		if apperrors.IsValidation(err) {
			return command.Failed("Already whitelisted", err)
		}
		return command.Failed("Could not whitelist player", err)
	}
	c.Mirror.Add(g.Snowflake, id)

	c.Logger.InfoContext(ctx, "Player whitelisted",
		attr.GuildID(g.Snowflake),
		attr.String("identifier", id),
		attr.String("by", inv.AuthorID),
		attr.CorrelationID(inv.CorrelationID),
	)
	return command.OK("Player whitelisted", fmt.Sprintf("%s can now join the server.", id))
}

func (c *commands) unlist(ctx context.Context, inv command.Invocation, g guild.Guild) command.Reply {
	id := inv.Param(0)
	if err := whitelist.ValidateIdentifier(id); err != nil {
		return command.Failed("Invalid player identifier", err)
	}
	h, failed := c.handle(ctx, inv, g)
	if failed != nil {
		return *failed
	}

	if err := c.Whitelist.Remove(ctx, h, id); err != nil {
		return command.Failed("Could not remove player", err)
	}
	c.Mirror.Remove(g.Snowflake, id)

	c.Logger.InfoContext(ctx, "Player removed from whitelist",
		attr.GuildID(g.Snowflake),
		attr.String("identifier", id),
		attr.String("by", inv.AuthorID),
		attr.CorrelationID(inv.CorrelationID),
	)
	return command.OK("Player removed", fmt.Sprintf("%s is no longer whitelisted.", id))
}

func (c *commands) list(ctx context.Context, inv command.Invocation, g guild.Guild) command.Reply {
	if g.DBProvider != nil {
		if ids, ok := c.Mirror.Get(g.Snowflake); ok {
			return listReply(ids)
		}
	}
	h, failed := c.handle(ctx, inv, g)
	if failed != nil {
		return *failed
	}

	entries, err := c.Whitelist.List(ctx, h)
	if err != nil {
		return command.Failed("Could not list players", err)
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.Identifier
	}
	c.Mirror.Replace(ctx, g.Snowflake, ids)
	return listReply(ids)
}

func listReply(ids []string) command.Reply {
	r := command.OK(fmt.Sprintf("Whitelisted players (%d)", len(ids)), "")
	if len(ids) == 0 {
		r.Message = "No players are whitelisted yet."
	}
	r.Identifiers = ids
	return r
}
