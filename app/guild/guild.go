// Package guild owns the in-memory registry of the guilds the bot serves.
package guild

import (
	"context"
	"log/slog"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/redaction"
)

// Credentials point a guild at its external game database.
type Credentials struct {
	GuildID      string
	Host         string
	DatabaseName string
	Username     string
	Password     string
}

// Equal reports whether two credential sets would open the same connection.
func (c *Credentials) Equal(o *Credentials) bool {
	if c == nil || o == nil {
		return c == o
	}
	return *c == *o
}

// LogValue keeps the password out of logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("host", c.Host),
		slog.String("database", c.DatabaseName),
		slog.String("username", c.Username),
		slog.String("password", redaction.RedactSecret(c.Password)),
	)
}

// Guild is the bot's configuration for one Discord server.
type Guild struct {
	ID         string
	Snowflake  string
	JoinedAt   time.Time
	AdminRole  string
	DBProvider *Credentials
}

// HasAdminRole reports whether the guild left bootstrap mode.
func (g Guild) HasAdminRole() bool { return g.AdminRole != "" }

func (g Guild) clone() Guild {
	if g.DBProvider != nil {
		c := *g.DBProvider
		g.DBProvider = &c
	}
	return g
}

// CacheState records when a guild's whitelist was last pulled from its database.
type CacheState struct {
	GuildID     string
	LastRefresh time.Time
}

// Store is the local persistence the registry and the persister write through.
type Store interface {
	LoadGuilds(ctx context.Context) ([]Guild, error)
	InsertGuild(ctx context.Context, g Guild) error
	// DeleteGuild removes the guild together with its credentials and cache rows.
	DeleteGuild(ctx context.Context, snowflake string) error
	UpsertCredentials(ctx context.Context, creds Credentials) error
	UpdateAdminRole(ctx context.Context, snowflake, role string) error
	UpsertCacheState(ctx context.Context, state CacheState) error
	// CacheState reports false when the guild's whitelist was never listed.
	CacheState(ctx context.Context, snowflake string) (CacheState, bool, error)
	Ping(ctx context.Context) error
}

// Releaser drops per-guild resources (connections, cached rows) that must not
// outlive the guild's current configuration.
type Releaser interface {
	Release(ctx context.Context, snowflake string) error
}
