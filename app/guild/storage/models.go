package storage

import (
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/uptrace/bun"
)

// GuildRow is one guild the bot has joined.
type GuildRow struct {
	bun.BaseModel `bun:"table:guilds,alias:g"`
	ID            string    `bun:"id,pk,type:varchar(36)"`
	Snowflake     string    `bun:"snowflake,unique,notnull,type:varchar(20)"`
	JoinedAt      time.Time `bun:"joined_at,notnull"`
	AdminRole     string    `bun:"admin_role,nullzero"`
}

// DBInstanceRow holds a guild's external database credentials.
type DBInstanceRow struct {
	bun.BaseModel `bun:"table:db_instances,alias:d"`
	GuildID       string `bun:"guild_id,pk,type:varchar(20)"`
	Host          string `bun:"host,notnull"`
	DatabaseName  string `bun:"database_name,notnull"`
	Username      string `bun:"username,notnull"`
	Password      string `bun:"password,notnull"`
}

// CacheRow tracks when a guild's whitelist mirror was last refreshed.
type CacheRow struct {
	bun.BaseModel `bun:"table:caches,alias:c"`
	GuildID       string    `bun:"guild_id,pk,type:varchar(20)"`
	LastRefresh   time.Time `bun:"last_refresh,notnull"`
}

func toGuild(row GuildRow, creds *DBInstanceRow) guild.Guild {
	g := guild.Guild{
		ID:        row.ID,
		Snowflake: row.Snowflake,
		JoinedAt:  row.JoinedAt.UTC(),
		AdminRole: row.AdminRole,
	}
	if creds != nil {
		g.DBProvider = &guild.Credentials{
			GuildID:      creds.GuildID,
			Host:         creds.Host,
			DatabaseName: creds.DatabaseName,
			Username:     creds.Username,
			Password:     creds.Password,
		}
	}
	return g
}

func toGuildRow(g guild.Guild) *GuildRow {
	return &GuildRow{
		ID:        g.ID,
		Snowflake: g.Snowflake,
		JoinedAt:  g.JoinedAt,
		AdminRole: g.AdminRole,
	}
}

func toDBInstanceRow(c guild.Credentials) *DBInstanceRow {
	return &DBInstanceRow{
		GuildID:      c.GuildID,
		Host:         c.Host,
		DatabaseName: c.DatabaseName,
		Username:     c.Username,
		Password:     c.Password,
	}
}
