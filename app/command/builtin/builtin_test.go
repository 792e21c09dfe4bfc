package builtin

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/command"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/externaldb"
	extmocks "github.com/Black-And-White-Club/discord-whitelist-bot/app/externaldb/mocks"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/apperrors"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/whitelist"
	wlmocks "github.com/Black-And-White-Club/discord-whitelist-bot/app/whitelist/mocks"
	"github.com/google/go-cmp/cmp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/mock/gomock"
	_ "modernc.org/sqlite"
)

const unreachableHost = "127.0.0.1:1"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testDialer serves an in-memory whitelist table for every host except
// unreachableHost, which goes through the real MySQL driver.
func testDialer(ctx context.Context, creds guild.Credentials) (*bun.DB, error) {
	if creds.Host == unreachableHost {
		return externaldb.MySQLDialer(time.Second)(ctx, creds)
	}
	sqldb, err := sql.Open("sqlite", "file::memory:")
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.NewCreateTable().Model((*whitelist.Row)(nil)).Exec(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type harness struct {
	t         *testing.T
	store     *guild.FakeStore
	registry  *guild.Registry
	connector *externaldb.Connector
	mirror    *whitelist.Mirror
	commands  map[string]command.Descriptor
}

func newHarness(t *testing.T, guilds ...guild.Guild) *harness {
	t.Helper()
	logger := testLogger()
	store := guild.NewFakeStore(guilds...)
	registry := guild.NewRegistry(store, logger)
	connector := externaldb.NewConnector(testDialer, externaldb.Config{ConnectTimeout: 2 * time.Second, QueryTimeout: time.Second}, logger,
		externaldb.WithActiveCheck(registry.Active),
		externaldb.WithTracer(noop.NewTracerProvider().Tracer("test")),
	)
	mirror := whitelist.NewMirror(time.Minute, store, logger)
	registry.AddReleaser(connector)
	registry.AddReleaser(mirror)
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = connector.Close() })

	h := &harness{
		t: t, store: store, registry: registry, connector: connector, mirror: mirror,
		commands: make(map[string]command.Descriptor),
	}
	for _, d := range Commands(Deps{
		Registry:    registry,
		Connections: connector,
		Whitelist:   whitelist.NewSQLStore(logger, nil),
		Mirror:      mirror,
		CacheStates: store,
		Logger:      logger,
	}) {
		h.commands[d.Name] = d
	}
	return h
}

func (h *harness) run(snowflake string, member *command.Member, args ...string) command.Reply {
	h.t.Helper()
	g, ok := h.registry.Get(snowflake)
	if !ok {
		h.t.Fatalf("guild %s not registered", snowflake)
	}
	d, ok := h.commands[args[0]]
	if !ok {
		h.t.Fatalf("unknown command %s", args[0])
	}
	inv := command.Invocation{GuildID: snowflake, Prefix: "%", Args: args, Member: member, AuthorID: "author"}
	if member != nil {
		inv.AuthorID = member.UserID
	}
	return command.Execute(context.Background(), d, inv, g)
}

func TestCommands_RegistrationOrder(t *testing.T) {
	var names []string
	for _, d := range Commands(Deps{}) {
		names = append(names, d.Name)
	}
	want := []string{"whitelist", "unlist", "list", "setadmin", "setdatabase", "getadmin", "getdatabase", "kickbot"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("registration order (-want +got):\n%s", diff)
	}
}

func TestScenario_BootstrapThenRoleGatedWhitelist(t *testing.T) {
	h := newHarness(t, guild.Guild{ID: "a", Snowflake: "G1"})
	anyone := &command.Member{UserID: "u0", Roles: []string{"everyone"}}
	admin := &command.Member{UserID: "u1", Roles: []string{"everyone", "admins"}}

	if r := h.run("G1", anyone, "setdatabase", "db.local", "fivem", "root"); r.Status != command.StatusOK {
		t.Fatalf("setdatabase in bootstrap: %v %v", r.Status, r.Err)
	}
	if r := h.run("G1", anyone, "setadmin", "admins"); r.Status != command.StatusOK {
		t.Fatalf("setadmin in bootstrap: %v %v", r.Status, r.Err)
	}

	r := h.run("G1", anyone, "whitelist", "steam:ABC123")
	if r.Status != command.StatusDenied || !apperrors.IsPermission(r.Err) {
		t.Fatalf("member without role: status %v err %v", r.Status, r.Err)
	}

	// Bypass the mirror so the table itself is checked.
	_ = h.mirror.Release(context.Background(), "G1")
	r = h.run("G1", admin, "list")
	if r.Status != command.StatusOK || len(r.Identifiers) != 0 {
		t.Fatalf("denied whitelist must not insert, list = %v (%v)", r.Identifiers, r.Err)
	}

	if r := h.run("G1", admin, "whitelist", "steam:ABC123"); r.Status != command.StatusOK {
		t.Fatalf("admin whitelist: %v %v", r.Status, r.Err)
	}
	r = h.run("G1", admin, "list")
	if diff := cmp.Diff([]string{"steam:ABC123"}, r.Identifiers); diff != "" {
		t.Fatalf("list after whitelist (-want +got):\n%s", diff)
	}

	_ = h.mirror.Release(context.Background(), "G1")
	r = h.run("G1", admin, "list")
	if diff := cmp.Diff([]string{"steam:ABC123"}, r.Identifiers); diff != "" {
		t.Fatalf("list from the database (-want +got):\n%s", diff)
	}
	if _, ok := h.store.CacheStates["G1"]; !ok {
		t.Fatalf("refreshing the list should record the cache state")
	}
}

func TestScenario_UnreachableDatabase(t *testing.T) {
	h := newHarness(t, guild.Guild{ID: "a", Snowflake: "G1"})
	m := &command.Member{UserID: "u1"}

	r := h.run("G1", m, "setdatabase", unreachableHost, "fivem", "root", "secret")
	if r.Status != command.StatusFailed || !apperrors.IsTransientStore(r.Err) {
		t.Fatalf("setdatabase to unreachable host: status %v err %v", r.Status, r.Err)
	}

	r = h.run("G1", m, "whitelist", "steam:ABC123")
	if r.Status != command.StatusFailed || !apperrors.IsTransientStore(r.Err) {
		t.Fatalf("whitelist with unreachable host: status %v err %v", r.Status, r.Err)
	}

	g, ok := h.registry.Get("G1")
	if !ok || g.DBProvider == nil || g.DBProvider.Host != unreachableHost || g.DBProvider.Password != "secret" {
		t.Fatalf("guild state changed unexpectedly: %+v", g)
	}
	if h.connector.Held("G1") {
		t.Fatalf("no handle should be held after failed connects")
	}

	if r := h.run("G1", m, "setdatabase", "db.local", "fivem", "root"); r.Status != command.StatusOK {
		t.Fatalf("reconfigure after failure: %v %v", r.Status, r.Err)
	}
	if r := h.run("G1", m, "whitelist", "steam:ABC123"); r.Status != command.StatusOK {
		t.Fatalf("whitelist after reconfigure: %v %v", r.Status, r.Err)
	}
}

func TestWhitelist_RequiresDatabase(t *testing.T) {
	h := newHarness(t, guild.Guild{ID: "a", Snowflake: "G1"})
	m := &command.Member{UserID: "u1"}
	for _, args := range [][]string{{"whitelist", "steam:A"}, {"unlist", "steam:A"}, {"list"}} {
		r := h.run("G1", m, args...)
		var nc *apperrors.NoCredentialsError
		if !errors.As(r.Err, &nc) {
			t.Fatalf("%s without database: %v", args[0], r.Err)
		}
	}
}

func TestWhitelist_DuplicateAndUnlist(t *testing.T) {
	h := newHarness(t, guild.Guild{ID: "a", Snowflake: "G1"})
	m := &command.Member{UserID: "u1"}
	h.run("G1", m, "setdatabase", "db.local", "fivem", "root")

	h.run("G1", m, "whitelist", "steam:A")
	r := h.run("G1", m, "whitelist", "steam:A")
	var dup *apperrors.DuplicateEntryError
	if !errors.As(r.Err, &dup) {
		t.Fatalf("second whitelist: %v", r.Err)
	}
	if r := h.run("G1", m, "unlist", "steam:A"); r.Status != command.StatusOK {
		t.Fatalf("unlist: %v", r.Err)
	}
	if r := h.run("G1", m, "unlist", "steam:NEVER"); r.Status != command.StatusOK {
		t.Fatalf("unlist of unknown identifier should succeed: %v", r.Err)
	}
	r = h.run("G1", m, "list")
	if len(r.Identifiers) != 0 {
		t.Fatalf("expected empty list, got %v", r.Identifiers)
	}
}

func TestSetAdmin_DefaultsToHighestRole(t *testing.T) {
	h := newHarness(t, guild.Guild{ID: "a", Snowflake: "G1"})
	m := &command.Member{UserID: "u1", Roles: []string{"Owner", "everyone"}, HighestRole: "Owner"}

	if r := h.run("G1", m, "setadmin"); r.Status != command.StatusOK {
		t.Fatalf("setadmin: %v", r.Err)
	}
	g, _ := h.registry.Get("G1")
	if g.AdminRole != "Owner" {
		t.Fatalf("admin role = %q, want Owner", g.AdminRole)
	}

	noRoles := &command.Member{UserID: "u2"}
	h2 := newHarness(t, guild.Guild{ID: "b", Snowflake: "G2"})
	if r := h2.run("G2", noRoles, "setadmin"); !apperrors.IsConfiguration(r.Err) {
		t.Fatalf("setadmin without any role: %v", r.Err)
	}
}

func TestGetters(t *testing.T) {
	h := newHarness(t, guild.Guild{ID: "a", Snowflake: "G1"})
	m := &command.Member{UserID: "u1", Roles: []string{"admins"}}

	if r := h.run("G1", m, "getadmin"); r.Title != "No admin role" {
		t.Fatalf("getadmin before setup: %+v", r)
	}
	h.run("G1", m, "setadmin", "admins")
	r := h.run("G1", m, "getadmin")
	if diff := cmp.Diff([]command.Field{{Name: "Admin role", Value: "admins"}}, r.Fields); diff != "" {
		t.Fatalf("getadmin (-want +got):\n%s", diff)
	}

	h.run("G1", m, "setdatabase", "db.local", "fivem", "root", "hunter2")
	r = h.run("G1", m, "getdatabase")
	want := []command.Field{
		{Name: "Server", Value: "db.local"},
		{Name: "Database", Value: "fivem"},
		{Name: "Username", Value: "root"},
		{Name: "Whitelist refreshed", Value: "never"},
	}
	if diff := cmp.Diff(want, r.Fields); diff != "" {
		t.Fatalf("getdatabase (-want +got):\n%s", diff)
	}
	for _, f := range r.Fields {
		if f.Value == "hunter2" {
			t.Fatalf("getdatabase leaked the password")
		}
	}
}

func TestGetDatabase_ShowsRecordedRefresh(t *testing.T) {
	creds := &guild.Credentials{GuildID: "G1", Host: "db.local", DatabaseName: "fivem", Username: "root"}
	m := &command.Member{UserID: "u1"}

	tests := []struct {
		name      string
		stateFunc func(ctx context.Context, snowflake string) (guild.CacheState, bool, error)
		want      []command.Field
	}{
		{
			name: "recorded refresh",
			stateFunc: func(ctx context.Context, snowflake string) (guild.CacheState, bool, error) {
				return guild.CacheState{GuildID: snowflake, LastRefresh: time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)}, true, nil
			},
			want: []command.Field{
				{Name: "Server", Value: "db.local"},
				{Name: "Database", Value: "fivem"},
				{Name: "Username", Value: "root"},
				{Name: "Whitelist refreshed", Value: "2024-06-01 12:30 UTC"},
			},
		},
		{
			name: "read failure drops the field",
			stateFunc: func(ctx context.Context, snowflake string) (guild.CacheState, bool, error) {
				return guild.CacheState{}, false, errors.New("disk I/O error")
			},
			want: []command.Field{
				{Name: "Server", Value: "db.local"},
				{Name: "Database", Value: "fivem"},
				{Name: "Username", Value: "root"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, guild.Guild{ID: "a", Snowflake: "G1", DBProvider: creds})
			h.store.CacheStateFunc = tt.stateFunc

			r := h.run("G1", m, "getdatabase")
			if diff := cmp.Diff(tt.want, r.Fields); diff != "" {
				t.Fatalf("getdatabase (-want +got):\n%s", diff)
			}
		})
	}
}

func TestKickBot_UnregistersAndLeaves(t *testing.T) {
	h := newHarness(t, guild.Guild{ID: "a", Snowflake: "G1"})
	m := &command.Member{UserID: "u1"}
	h.run("G1", m, "setdatabase", "db.local", "fivem", "root")
	if !h.connector.Held("G1") {
		t.Fatalf("expected a held handle after setdatabase")
	}

	r := h.run("G1", m, "kickbot")
	if r.Status != command.StatusOK || !r.LeaveGuild {
		t.Fatalf("kickbot: %+v", r)
	}
	if h.registry.Active("G1") {
		t.Fatalf("guild still registered")
	}
	if h.connector.Held("G1") {
		t.Fatalf("handle must be released on kick")
	}
	if _, ok := h.store.Stored("G1"); ok {
		t.Fatalf("guild still persisted")
	}
}

func TestWhitelist_UsesNewCredentialsAfterChange(t *testing.T) {
	ctrl := gomock.NewController(t)
	conns := extmocks.NewMockConnections(ctrl)
	store := wlmocks.NewMockStore(ctrl)
	logger := testLogger()

	gstore := guild.NewFakeStore(guild.Guild{
		ID: "a", Snowflake: "G1",
		DBProvider: &guild.Credentials{GuildID: "G1", Host: "old", DatabaseName: "d", Username: "u"},
	})
	registry := guild.NewRegistry(gstore, logger)
	_ = registry.Load(context.Background())
	if _, err := registry.SetDBCredentials(context.Background(), "G1", guild.Credentials{Host: "new", DatabaseName: "d", Username: "u"}); err != nil {
		t.Fatalf("SetDBCredentials: %v", err)
	}

	h := externaldb.NewHandle("G1", nil, guild.Credentials{}, 0)
	conns.EXPECT().
		Handle(gomock.Any(), gomock.Cond(func(x any) bool {
			g, ok := x.(guild.Guild)
			return ok && g.DBProvider != nil && g.DBProvider.Host == "new"
		})).
		Return(h, nil)
	store.EXPECT().Add(gomock.Any(), h, "steam:ABC").Return(nil)

	var whitelistCmd command.Descriptor
	for _, d := range Commands(Deps{
		Registry: registry, Connections: conns, Whitelist: store,
		Mirror: whitelist.NewMirror(time.Minute, gstore, logger), Logger: logger,
	}) {
		if d.Name == "whitelist" {
			whitelistCmd = d
		}
	}
	g, _ := registry.Get("G1")
	inv := command.Invocation{Prefix: "%", Args: []string{"whitelist", "steam:ABC"}, Member: &command.Member{UserID: "u"}}
	if r := command.Execute(context.Background(), whitelistCmd, inv, g); r.Status != command.StatusOK {
		t.Fatalf("whitelist: %v", r.Err)
	}
}

func TestWhitelist_MalformedNeverTouchesDatabase(t *testing.T) {
	ctrl := gomock.NewController(t)
	conns := extmocks.NewMockConnections(ctrl)
	store := wlmocks.NewMockStore(ctrl)
	logger := testLogger()

	g := guild.Guild{Snowflake: "G1", DBProvider: &guild.Credentials{Host: "h"}}
	deps := Deps{
		Registry: guild.NewRegistry(guild.NewFakeStore(g), logger), Connections: conns, Whitelist: store,
		Mirror: whitelist.NewMirror(time.Minute, nil, logger), Logger: logger,
	}
	descriptors := map[string]command.Descriptor{}
	for _, d := range Commands(deps) {
		descriptors[d.Name] = d
	}

	for _, name := range []string{"whitelist", "unlist"} {
		for _, id := range []string{"ABC123", "steam:", "steam:abc!"} {
			inv := command.Invocation{Prefix: "%", Args: []string{name, id}, Member: &command.Member{UserID: "u"}}
			r := command.Execute(context.Background(), descriptors[name], inv, g)
			if !apperrors.IsValidation(r.Err) {
				t.Fatalf("%s %q: %v, want validation error", name, id, r.Err)
			}
		}
	}
}
