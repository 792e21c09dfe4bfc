package persister

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/google/go-cmp/cmp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadedRegistry(t *testing.T, store *guild.FakeStore) *guild.Registry {
	t.Helper()
	reg := guild.NewRegistry(store, testLogger())
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return reg
}

func TestSweep_WritesAdminRoleAndCredentials(t *testing.T) {
	store := guild.NewFakeStore(
		guild.Guild{ID: "1", Snowflake: "g1"},
		guild.Guild{ID: "2", Snowflake: "g2", AdminRole: "old"},
	)
	reg := loadedRegistry(t, store)
	ctx := context.Background()

	if _, err := reg.SetAdminRole("g1", "Staff"); err != nil {
		t.Fatalf("SetAdminRole: %v", err)
	}
	if _, err := reg.SetAdminRole("g2", ""); err != nil {
		t.Fatalf("SetAdminRole: %v", err)
	}
	creds := guild.Credentials{Host: "db.local", DatabaseName: "fivem", Username: "root"}
	if _, err := reg.SetDBCredentials(ctx, "g1", creds); err != nil {
		t.Fatalf("SetDBCredentials: %v", err)
	}

	p := New(reg, store, time.Minute, testLogger(), nil)
	if failures := p.Sweep(ctx); failures != 0 {
		t.Fatalf("failures = %d", failures)
	}

	g1, _ := store.Stored("g1")
	if g1.AdminRole != "Staff" {
		t.Errorf("g1 admin role = %q", g1.AdminRole)
	}
	want := &guild.Credentials{GuildID: "g1", Host: "db.local", DatabaseName: "fivem", Username: "root"}
	if diff := cmp.Diff(want, g1.DBProvider); diff != "" {
		t.Errorf("g1 credentials (-want +got):\n%s", diff)
	}
	g2, _ := store.Stored("g2")
	if g2.AdminRole != "" {
		t.Errorf("cleared admin role should be persisted, got %q", g2.AdminRole)
	}
	for _, v := range reg.Snapshot() {
		if v.Dirty {
			t.Errorf("guild %s still dirty after a clean sweep", v.Guild.Snowflake)
		}
	}
}

func TestSweep_ContinuesAfterGuildFailure(t *testing.T) {
	store := guild.NewFakeStore(
		guild.Guild{ID: "1", Snowflake: "bad"},
		guild.Guild{ID: "2", Snowflake: "good"},
	)
	reg := loadedRegistry(t, store)
	_, _ = reg.SetAdminRole("bad", "A")
	_, _ = reg.SetAdminRole("good", "B")

	store.UpdateAdminRoleFunc = func(ctx context.Context, snowflake, role string) error {
		if snowflake == "bad" {
			return errors.New("disk full")
		}
		store.Guilds[snowflake] = guild.Guild{ID: "2", Snowflake: snowflake, AdminRole: role}
		return nil
	}

	p := New(reg, store, time.Minute, testLogger(), nil)
	if failures := p.Sweep(context.Background()); failures != 1 {
		t.Fatalf("failures = %d, want 1", failures)
	}
	if g, _ := store.Stored("good"); g.AdminRole != "B" {
		t.Fatalf("good guild not written, role = %q", g.AdminRole)
	}

	dirty := map[string]bool{}
	for _, v := range reg.Snapshot() {
		dirty[v.Guild.Snowflake] = v.Dirty
	}
	if diff := cmp.Diff(map[string]bool{"bad": true, "good": false}, dirty); diff != "" {
		t.Fatalf("dirty flags (-want +got):\n%s", diff)
	}
}

func TestSweep_CredentialFailureSkipsAdminRole(t *testing.T) {
	store := guild.NewFakeStore(guild.Guild{ID: "1", Snowflake: "g1"})
	reg := loadedRegistry(t, store)
	_, _ = reg.SetDBCredentials(context.Background(), "g1", guild.Credentials{Host: "h", DatabaseName: "d", Username: "u"})

	store.UpsertCredentialsFunc = func(ctx context.Context, creds guild.Credentials) error {
		return errors.New("locked")
	}

	p := New(reg, store, time.Minute, testLogger(), nil)
	if failures := p.Sweep(context.Background()); failures != 1 {
		t.Fatalf("failures = %d, want 1", failures)
	}
	for _, call := range store.Calls() {
		if call == "UpdateAdminRole" {
			t.Fatalf("admin role written after credential failure")
		}
	}
}

func TestRun_FinalSweepOnShutdown(t *testing.T) {
	store := guild.NewFakeStore(guild.Guild{ID: "1", Snowflake: "g1"})
	reg := loadedRegistry(t, store)
	_, _ = reg.SetAdminRole("g1", "Staff")

	p := New(reg, store, time.Hour, testLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if g, _ := store.Stored("g1"); g.AdminRole != "Staff" {
		t.Fatalf("final sweep did not persist admin role, got %q", g.AdminRole)
	}
}

func TestRun_SweepsOnTick(t *testing.T) {
	store := guild.NewFakeStore(guild.Guild{ID: "1", Snowflake: "g1"})
	reg := loadedRegistry(t, store)
	_, _ = reg.SetAdminRole("g1", "Staff")

	swept := make(chan struct{}, 1)
	store.UpdateAdminRoleFunc = func(ctx context.Context, snowflake, role string) error {
		select {
		case swept <- struct{}{}:
		default:
		}
		return nil
	}

	p := New(reg, store, 10*time.Millisecond, testLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatalf("no sweep within two seconds")
	}
}

func TestNew_DefaultInterval(t *testing.T) {
	p := New(nil, nil, 0, testLogger(), nil)
	if p.interval != DefaultInterval {
		t.Fatalf("interval = %v", p.interval)
	}
}
