// Package storage persists guild configuration in the bot's local SQLite file.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

// GuildDB implements guild.Store on top of bun.
type GuildDB struct {
	DB *bun.DB
}

// Open opens (creating if needed) the SQLite file at path with foreign keys
// enforced. ":memory:" gives a private in-memory database.
func Open(path string) (*GuildDB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store %s: %w", path, err)
	}
	// SQLite allows a single writer; one connection also keeps ":memory:" coherent.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach local store %s: %w", path, err)
	}
	return &GuildDB{DB: db}, nil
}

// CreateSchema creates the local tables if they are missing. Safe to run on
// every startup.
func (s *GuildDB) CreateSchema(ctx context.Context) error {
	if _, err := s.DB.NewCreateTable().Model((*GuildRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create guilds table: %w", err)
	}
	if _, err := s.DB.NewCreateTable().Model((*DBInstanceRow)(nil)).IfNotExists().
		ForeignKey(`("guild_id") REFERENCES "guilds" ("snowflake") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create db_instances table: %w", err)
	}
	if _, err := s.DB.NewCreateTable().Model((*CacheRow)(nil)).IfNotExists().
		ForeignKey(`("guild_id") REFERENCES "guilds" ("snowflake") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create caches table: %w", err)
	}
	return nil
}

func (s *GuildDB) Close() error {
	return s.DB.Close()
}

func (s *GuildDB) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// LoadGuilds returns every guild joined with its credentials, if any.
func (s *GuildDB) LoadGuilds(ctx context.Context) ([]guild.Guild, error) {
	var rows []GuildRow
	if err := s.DB.NewSelect().Model(&rows).Order("joined_at").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to select guilds: %w", err)
	}

	var instances []DBInstanceRow
	if err := s.DB.NewSelect().Model(&instances).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to select db instances: %w", err)
	}
	byGuild := make(map[string]*DBInstanceRow, len(instances))
	for i := range instances {
		byGuild[instances[i].GuildID] = &instances[i]
	}

	guilds := make([]guild.Guild, 0, len(rows))
	for _, row := range rows {
		guilds = append(guilds, toGuild(row, byGuild[row.Snowflake]))
	}
	return guilds, nil
}

// InsertGuild stores a newly joined guild, with its credentials when present.
func (s *GuildDB) InsertGuild(ctx context.Context, g guild.Guild) error {
	return s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(toGuildRow(g)).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert guild: %w", err)
		}
		if g.DBProvider == nil {
			return nil
		}
		creds := *g.DBProvider
		creds.GuildID = g.Snowflake
		if _, err := tx.NewInsert().Model(toDBInstanceRow(creds)).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert db instance: %w", err)
		}
		return nil
	})
}

// DeleteGuild removes the guild and everything keyed by its snowflake.
func (s *GuildDB) DeleteGuild(ctx context.Context, snowflake string) error {
	return s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*CacheRow)(nil)).Where("guild_id = ?", snowflake).Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete cache state: %w", err)
		}
		if _, err := tx.NewDelete().Model((*DBInstanceRow)(nil)).Where("guild_id = ?", snowflake).Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete db instance: %w", err)
		}
		if _, err := tx.NewDelete().Model((*GuildRow)(nil)).Where("snowflake = ?", snowflake).Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete guild: %w", err)
		}
		return nil
	})
}

// UpsertCredentials inserts or replaces the guild's credentials row.
func (s *GuildDB) UpsertCredentials(ctx context.Context, creds guild.Credentials) error {
	_, err := s.DB.NewInsert().
		Model(toDBInstanceRow(creds)).
		On("CONFLICT (guild_id) DO UPDATE").
		Set("host = EXCLUDED.host").
		Set("database_name = EXCLUDED.database_name").
		Set("username = EXCLUDED.username").
		Set("password = EXCLUDED.password").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert db instance for guild %s: %w", creds.GuildID, err)
	}
	return nil
}

// UpdateAdminRole writes the role column; an empty role is stored as NULL.
func (s *GuildDB) UpdateAdminRole(ctx context.Context, snowflake, role string) error {
	q := s.DB.NewUpdate().Model((*GuildRow)(nil)).Where("snowflake = ?", snowflake)
	if role == "" {
		q = q.Set("admin_role = NULL")
	} else {
		q = q.Set("admin_role = ?", role)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update admin role for guild %s: %w", snowflake, err)
	}
	return nil
}

// UpsertCacheState records the last whitelist refresh for a guild.
func (s *GuildDB) UpsertCacheState(ctx context.Context, state guild.CacheState) error {
	row := &CacheRow{GuildID: state.GuildID, LastRefresh: state.LastRefresh}
	_, err := s.DB.NewInsert().
		Model(row).
		On("CONFLICT (guild_id) DO UPDATE").
		Set("last_refresh = EXCLUDED.last_refresh").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert cache state for guild %s: %w", state.GuildID, err)
	}
	return nil
}

// CacheState returns the stored refresh time, or false if none was recorded.
func (s *GuildDB) CacheState(ctx context.Context, snowflake string) (guild.CacheState, bool, error) {
	var row CacheRow
	err := s.DB.NewSelect().Model(&row).Where("guild_id = ?", snowflake).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return guild.CacheState{}, false, nil
		}
		return guild.CacheState{}, false, fmt.Errorf("failed to read cache state for guild %s: %w", snowflake, err)
	}
	return guild.CacheState{GuildID: row.GuildID, LastRefresh: row.LastRefresh.UTC()}, true, nil
}

var _ guild.Store = (*GuildDB)(nil)
