package guild

import (
	"context"
	"sync"
)

// FakeStore is an in-memory Store. Set a Func field to inject behavior for a
// single method; unset methods operate on the maps.
type FakeStore struct {
	mu          sync.Mutex
	Guilds      map[string]Guild
	CacheStates map[string]CacheState
	calls       []string

	LoadGuildsFunc        func(ctx context.Context) ([]Guild, error)
	InsertGuildFunc       func(ctx context.Context, g Guild) error
	DeleteGuildFunc       func(ctx context.Context, snowflake string) error
	UpsertCredentialsFunc func(ctx context.Context, creds Credentials) error
	UpdateAdminRoleFunc   func(ctx context.Context, snowflake, role string) error
	UpsertCacheStateFunc  func(ctx context.Context, state CacheState) error
	CacheStateFunc        func(ctx context.Context, snowflake string) (CacheState, bool, error)
	PingFunc              func(ctx context.Context) error
}

// NewFakeStore returns a FakeStore preloaded with guilds.
func NewFakeStore(guilds ...Guild) *FakeStore {
	f := &FakeStore{
		Guilds:      make(map[string]Guild),
		CacheStates: make(map[string]CacheState),
	}
	for _, g := range guilds {
		f.Guilds[g.Snowflake] = g.clone()
	}
	return f
}

func (f *FakeStore) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

// Calls returns the methods invoked so far, in order.
func (f *FakeStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Stored returns the persisted copy of a guild.
func (f *FakeStore) Stored(snowflake string) (Guild, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.Guilds[snowflake]
	return g.clone(), ok
}

func (f *FakeStore) LoadGuilds(ctx context.Context) ([]Guild, error) {
	f.record("LoadGuilds")
	if f.LoadGuildsFunc != nil {
		return f.LoadGuildsFunc(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Guild, 0, len(f.Guilds))
	for _, g := range f.Guilds {
		out = append(out, g.clone())
	}
	return out, nil
}

func (f *FakeStore) InsertGuild(ctx context.Context, g Guild) error {
	f.record("InsertGuild")
	if f.InsertGuildFunc != nil {
		return f.InsertGuildFunc(ctx, g)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Guilds[g.Snowflake] = g.clone()
	return nil
}

func (f *FakeStore) DeleteGuild(ctx context.Context, snowflake string) error {
	f.record("DeleteGuild")
	if f.DeleteGuildFunc != nil {
		return f.DeleteGuildFunc(ctx, snowflake)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Guilds, snowflake)
	delete(f.CacheStates, snowflake)
	return nil
}

func (f *FakeStore) UpsertCredentials(ctx context.Context, creds Credentials) error {
	f.record("UpsertCredentials")
	if f.UpsertCredentialsFunc != nil {
		return f.UpsertCredentialsFunc(ctx, creds)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.Guilds[creds.GuildID]
	if !ok {
		return nil
	}
	c := creds
	g.DBProvider = &c
	f.Guilds[creds.GuildID] = g
	return nil
}

func (f *FakeStore) UpdateAdminRole(ctx context.Context, snowflake, role string) error {
	f.record("UpdateAdminRole")
	if f.UpdateAdminRoleFunc != nil {
		return f.UpdateAdminRoleFunc(ctx, snowflake, role)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.Guilds[snowflake]; ok {
		g.AdminRole = role
		f.Guilds[snowflake] = g
	}
	return nil
}

func (f *FakeStore) UpsertCacheState(ctx context.Context, state CacheState) error {
	f.record("UpsertCacheState")
	if f.UpsertCacheStateFunc != nil {
		return f.UpsertCacheStateFunc(ctx, state)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CacheStates[state.GuildID] = state
	return nil
}

func (f *FakeStore) CacheState(ctx context.Context, snowflake string) (CacheState, bool, error) {
	f.record("CacheState")
	if f.CacheStateFunc != nil {
		return f.CacheStateFunc(ctx, snowflake)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.CacheStates[snowflake]
	return state, ok, nil
}

func (f *FakeStore) Ping(ctx context.Context) error {
	if f.PingFunc != nil {
		return f.PingFunc(ctx)
	}
	return nil
}

var _ Store = (*FakeStore)(nil)
