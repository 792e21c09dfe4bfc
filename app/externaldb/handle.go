package externaldb

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/uptrace/bun"
)

// ErrHandleClosed is returned when a released handle is used.
var ErrHandleClosed = errors.New("external database handle is closed")

// Handle is one guild's live connection to its external database. A handle
// belongs to exactly one guild and is never shared.
type Handle struct {
	GuildID string

	creds        guild.Credentials
	queryTimeout time.Duration

	mu     sync.RWMutex
	db     *bun.DB
	closed bool
}

// NewHandle wraps an open database for guildID. queryTimeout bounds each Do
// call; zero disables the bound.
func NewHandle(guildID string, db *bun.DB, creds guild.Credentials, queryTimeout time.Duration) *Handle {
	return &Handle{
		GuildID:      guildID,
		creds:        creds,
		queryTimeout: queryTimeout,
		db:           db,
	}
}

// Do runs fn against the database. Close waits for running calls to return,
// so fn never sees a closed connection.
func (h *Handle) Do(ctx context.Context, fn func(ctx context.Context, db bun.IDB) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHandleClosed
	}
	if h.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.queryTimeout)
		defer cancel()
	}
	return fn(ctx, h.db)
}

// Closed reports whether the handle was released.
func (h *Handle) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *Handle) usable(creds *guild.Credentials) bool {
	if creds == nil || h.Closed() {
		return false
	}
	return h.creds == *creds
}

func (h *Handle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.db.Close()
}
