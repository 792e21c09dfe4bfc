package guild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/apperrors"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
	"github.com/google/uuid"
)

type entry struct {
	mu      sync.Mutex
	guild   Guild
	version uint64
	dirty   bool
	leaving bool
}

// Versioned is a snapshot of one guild tagged with the mutation counter it was
// read at.
type Versioned struct {
	Guild   Guild
	Version uint64
	Dirty   bool
}

// Registry maps snowflakes to guild state. The map lock is only held for map
// access; each entry carries its own lock for field updates.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	pending map[string]struct{}

	store     Store
	releasers []Releaser
	logger    *slog.Logger
	now       func() time.Time
}

// NewRegistry creates an empty registry backed by store.
func NewRegistry(store Store, logger *slog.Logger, releasers ...Releaser) *Registry {
	return &Registry{
		entries:   make(map[string]*entry),
		pending:   make(map[string]struct{}),
		store:     store,
		releasers: releasers,
		logger:    logger,
		now:       time.Now,
	}
}

// AddReleaser registers another resource owner to notify on unregister and
// credential changes. Must be called before the registry is shared.
func (r *Registry) AddReleaser(rel Releaser) {
	r.releasers = append(r.releasers, rel)
}

// Load replaces the map with the local store's contents.
func (r *Registry) Load(ctx context.Context) error {
	guilds, err := r.store.LoadGuilds(ctx)
	if err != nil {
		return fmt.Errorf("failed to load guilds from local store: %w", err)
	}

	entries := make(map[string]*entry, len(guilds))
	for _, g := range guilds {
		entries[g.Snowflake] = &entry{guild: g.clone()}
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Loaded guilds from local store", attr.Int("count", len(guilds)))
	return nil
}

func (r *Registry) lookup(snowflake string) (*entry, bool) {
	r.mu.RLock()
	e, ok := r.entries[snowflake]
	r.mu.RUnlock()
	return e, ok
}

// Get returns a copy of the guild's current state.
func (r *Registry) Get(snowflake string) (Guild, bool) {
	e, ok := r.lookup(snowflake)
	if !ok {
		return Guild{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.leaving {
		return Guild{}, false
	}
	return e.guild.clone(), true
}

// Active reports whether the guild is registered and not being removed.
func (r *Registry) Active(snowflake string) bool {
	_, ok := r.Get(snowflake)
	return ok
}

// Len returns the number of registered guilds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Register persists a new guild and publishes it. ID and JoinedAt are filled
// in when empty.
func (r *Registry) Register(ctx context.Context, g Guild) (Guild, error) {
	if g.Snowflake == "" {
		return Guild{}, errors.New("guild snowflake is required")
	}

	r.mu.Lock()
	if _, ok := r.entries[g.Snowflake]; ok {
		r.mu.Unlock()
		return Guild{}, &apperrors.DuplicateGuildError{Snowflake: g.Snowflake}
	}
	if _, ok := r.pending[g.Snowflake]; ok {
		r.mu.Unlock()
		return Guild{}, &apperrors.DuplicateGuildError{Snowflake: g.Snowflake}
	}
	r.pending[g.Snowflake] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, g.Snowflake)
		r.mu.Unlock()
	}()

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.JoinedAt.IsZero() {
		g.JoinedAt = r.now().UTC()
	}
	if g.DBProvider != nil {
		g.DBProvider.GuildID = g.Snowflake
	}

	if err := r.store.InsertGuild(ctx, g.clone()); err != nil {
		r.logger.ErrorContext(ctx, "Failed to persist new guild",
			attr.GuildID(g.Snowflake),
			attr.Error(err),
		)
		return Guild{}, fmt.Errorf("failed to insert guild %s: %w", g.Snowflake, err)
	}

	r.mu.Lock()
	r.entries[g.Snowflake] = &entry{guild: g.clone()}
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Guild registered",
		attr.GuildID(g.Snowflake),
		attr.String("id", g.ID),
	)
	return g.clone(), nil
}

// Unregister closes the guild's external resources, then removes it from the
// local store and the map. The guild stays visible to nobody while this runs;
// on store failure it is restored.
func (r *Registry) Unregister(ctx context.Context, snowflake string) error {
	e, ok := r.lookup(snowflake)
	if !ok {
		return &apperrors.NotFoundError{Snowflake: snowflake}
	}

	e.mu.Lock()
	if e.leaving {
		e.mu.Unlock()
		return &apperrors.NotFoundError{Snowflake: snowflake}
	}
	e.leaving = true
	e.mu.Unlock()

	r.release(ctx, snowflake)

	if err := r.store.DeleteGuild(ctx, snowflake); err != nil {
		e.mu.Lock()
		e.leaving = false
		e.mu.Unlock()
		r.logger.ErrorContext(ctx, "Failed to delete guild from local store",
			attr.GuildID(snowflake),
			attr.Error(err),
		)
		return fmt.Errorf("failed to delete guild %s: %w", snowflake, err)
	}

	r.mu.Lock()
	if cur, ok := r.entries[snowflake]; ok && cur == e {
		delete(r.entries, snowflake)
	}
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Guild unregistered", attr.GuildID(snowflake))
	return nil
}

func (r *Registry) release(ctx context.Context, snowflake string) {
	for _, rel := range r.releasers {
		if err := rel.Release(ctx, snowflake); err != nil {
			r.logger.WarnContext(ctx, "Failed to release guild resource",
				attr.GuildID(snowflake),
				attr.Error(err),
			)
		}
	}
}

func (r *Registry) mutate(snowflake string, fn func(g *Guild)) (Guild, error) {
	e, ok := r.lookup(snowflake)
	if !ok {
		return Guild{}, &apperrors.NotFoundError{Snowflake: snowflake}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.leaving {
		return Guild{}, &apperrors.NotFoundError{Snowflake: snowflake}
	}
	fn(&e.guild)
	e.version++
	e.dirty = true
	return e.guild.clone(), nil
}

// SetAdminRole updates the role in memory and marks the guild dirty. The next
// persister sweep writes it.
func (r *Registry) SetAdminRole(snowflake, role string) (Guild, error) {
	return r.mutate(snowflake, func(g *Guild) { g.AdminRole = role })
}

// SetDBCredentials replaces the guild's external database credentials and
// releases any handle or cached rows tied to the old ones.
func (r *Registry) SetDBCredentials(ctx context.Context, snowflake string, creds Credentials) (Guild, error) {
	creds.GuildID = snowflake
	g, err := r.mutate(snowflake, func(g *Guild) {
		c := creds
		g.DBProvider = &c
	})
	if err != nil {
		return Guild{}, err
	}
	r.release(ctx, snowflake)
	return g, nil
}

// Snapshot copies every registered guild under its entry lock.
func (r *Registry) Snapshot() []Versioned {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Versioned, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.leaving {
			out = append(out, Versioned{Guild: e.guild.clone(), Version: e.version, Dirty: e.dirty})
		}
		e.mu.Unlock()
	}
	return out
}

// MarkClean clears the dirty flag if nothing changed since version was read.
func (r *Registry) MarkClean(snowflake string, version uint64) {
	e, ok := r.lookup(snowflake)
	if !ok {
		return
	}
	e.mu.Lock()
	if e.version == version {
		e.dirty = false
	}
	e.mu.Unlock()
}
