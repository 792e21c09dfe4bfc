package whitelist

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/apperrors"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
)

// CacheStateWriter records mirror refreshes in the local store.
type CacheStateWriter interface {
	UpsertCacheState(ctx context.Context, state guild.CacheState) error
}

type mirrorEntry struct {
	identifiers []string
	refreshed   time.Time
}

// Mirror caches each guild's whitelist between refreshes. Callers keep it in
// step with the store after every successful add and remove.
type Mirror struct {
	mu      sync.Mutex
	entries map[string]*mirrorEntry

	ttl    time.Duration
	states CacheStateWriter
	logger *slog.Logger
	now    func() time.Time
	active func(snowflake string) bool
}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// WithActiveCheck makes Replace drop refreshes for guilds that are no longer
// registered, so a list finishing after the guild left leaves nothing behind.
func WithActiveCheck(active func(snowflake string) bool) MirrorOption {
	return func(m *Mirror) { m.active = active }
}

// NewMirror creates a mirror whose entries go stale after ttl. A ttl of zero
// disables caching.
func NewMirror(ttl time.Duration, states CacheStateWriter, logger *slog.Logger, opts ...MirrorOption) *Mirror {
	m := &Mirror{
		entries: make(map[string]*mirrorEntry),
		ttl:     ttl,
		states:  states,
		logger:  logger,
		now:     time.Now,
		active:  func(string) bool { return true },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a copy of the cached identifiers if they are still fresh.
func (m *Mirror) Get(guildID string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[guildID]
	if !ok || m.ttl <= 0 || m.now().Sub(e.refreshed) >= m.ttl {
		return nil, false
	}
	return slices.Clone(e.identifiers), true
}

// Replace stores a freshly listed whitelist and records the refresh time.
// The active check runs under the mirror lock: a guild marked as leaving
// before Release takes the lock is never stored.
func (m *Mirror) Replace(ctx context.Context, guildID string, identifiers []string) {
	now := m.now().UTC()
	m.mu.Lock()
	if !m.active(guildID) {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "Skipping whitelist refresh for inactive guild", attr.GuildID(guildID))
		return
	}
	m.entries[guildID] = &mirrorEntry{identifiers: slices.Clone(identifiers), refreshed: now}
	m.mu.Unlock()

	if m.states == nil {
		return
	}
	if err := m.states.UpsertCacheState(ctx, guild.CacheState{GuildID: guildID, LastRefresh: now}); err != nil {
		warn := &apperrors.DurabilityWarning{Snowflake: guildID, Op: "cache state", Cause: err}
		m.logger.WarnContext(ctx, "Failed to record whitelist refresh", attr.GuildID(guildID), attr.Error(warn))
	}
}

// Add appends identifier to a cached whitelist unless it is already there.
func (m *Mirror) Add(guildID, identifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[guildID]
	if !ok || slices.Contains(e.identifiers, identifier) {
		return
	}
	e.identifiers = append(e.identifiers, identifier)
}

// Remove drops identifier from a cached whitelist.
func (m *Mirror) Remove(guildID, identifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[guildID]
	if !ok {
		return
	}
	e.identifiers = slices.DeleteFunc(e.identifiers, func(id string) bool { return id == identifier })
}

// Release forgets the guild's cached whitelist.
func (m *Mirror) Release(_ context.Context, guildID string) error {
	m.mu.Lock()
	delete(m.entries, guildID)
	m.mu.Unlock()
	return nil
}

var _ guild.Releaser = (*Mirror)(nil)
