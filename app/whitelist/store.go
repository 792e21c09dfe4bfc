// Package whitelist reads and writes the player whitelist kept in each guild's
// external game database.
package whitelist

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/externaldb"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/metrics"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/apperrors"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const mysqlDuplicateEntry = 1062

// Entry is one whitelisted player.
type Entry struct {
	Identifier string
}

// Row maps the ESX whitelist table.
type Row struct {
	bun.BaseModel `bun:"table:whitelist,alias:w"`
	Identifier    string `bun:"identifier,pk,type:varchar(60)"`
}

// Store is the whitelist CRUD surface used by commands.
type Store interface {
	List(ctx context.Context, h *externaldb.Handle) ([]Entry, error)
	Add(ctx context.Context, h *externaldb.Handle, identifier string) error
	Remove(ctx context.Context, h *externaldb.Handle, identifier string) error
}

// SQLStore runs whitelist queries through a guild's handle. It keeps no state.
type SQLStore struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewSQLStore(logger *slog.Logger, m *metrics.Metrics) *SQLStore {
	return &SQLStore{logger: logger, metrics: m}
}

// List returns entries in the table's native order.
func (s *SQLStore) List(ctx context.Context, h *externaldb.Handle) ([]Entry, error) {
	var rows []Row
	err := h.Do(ctx, func(ctx context.Context, db bun.IDB) error {
		return db.NewSelect().Model(&rows).Scan(ctx)
	})
	s.metrics.ObserveWhitelistOp("list", err == nil)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to list whitelist", attr.GuildID(h.GuildID), attr.Error(err))
		return nil, &apperrors.StoreError{Op: "list", Cause: err}
	}

	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = Entry{Identifier: r.Identifier}
	}
	return entries, nil
}

// Add inserts identifier. A constraint violation is reported as a duplicate.
func (s *SQLStore) Add(ctx context.Context, h *externaldb.Handle, identifier string) error {
	if err := ValidateIdentifier(identifier); err != nil {
		return err
	}
	err := h.Do(ctx, func(ctx context.Context, db bun.IDB) error {
		_, err := db.NewInsert().Model(&Row{Identifier: identifier}).Exec(ctx)
		return err
	})
	s.metrics.ObserveWhitelistOp("add", err == nil)
	if err == nil {
		return nil
	}
	if isDuplicate(err) {
		return &apperrors.DuplicateEntryError{Identifier: identifier, Cause: err}
	}
	s.logger.WarnContext(ctx, "Failed to add whitelist entry",
		attr.GuildID(h.GuildID),
		attr.String("identifier", identifier),
		attr.Error(err),
	)
	return &apperrors.StoreError{Op: "add", Cause: err}
}

// Remove deletes identifier. Deleting an absent identifier succeeds.
func (s *SQLStore) Remove(ctx context.Context, h *externaldb.Handle, identifier string) error {
	if err := ValidateIdentifier(identifier); err != nil {
		return err
	}
	err := h.Do(ctx, func(ctx context.Context, db bun.IDB) error {
		_, err := db.NewDelete().Model((*Row)(nil)).Where("identifier = ?", identifier).Exec(ctx)
		return err
	})
	s.metrics.ObserveWhitelistOp("remove", err == nil)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to remove whitelist entry",
			attr.GuildID(h.GuildID),
			attr.String("identifier", identifier),
			attr.Error(err),
		)
		return &apperrors.StoreError{Op: "remove", Cause: err}
	}
	return nil
}

func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

var _ Store = (*SQLStore)(nil)
