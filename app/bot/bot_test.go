package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	discord "github.com/Black-And-White-Club/discord-whitelist-bot/app/discordgo"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/Black-And-White-Club/discord-whitelist-bot/config"
	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func testConfig() *config.Config {
	ttl := time.Minute
	return &config.Config{
		Discord:    config.DiscordConfig{Token: "t", Prefix: "%"},
		ExternalDB: config.ExternalDBConfig{ConnectTimeout: time.Second, QueryTimeout: time.Second},
		Persister:  config.PersisterConfig{Interval: time.Hour},
		Cache:      config.CacheConfig{TTL: &ttl},
	}
}

// gateway captures the handlers the bot registers so tests can play
// gateway events into them.
type gateway struct {
	mu       sync.Mutex
	handlers []interface{}
}

func (g *gateway) add(h interface{}) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers = append(g.handlers, h)
	return func() {}
}

func (g *gateway) messageCreate(e *discordgo.MessageCreate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, h := range g.handlers {
		if fn, ok := h.(func(*discordgo.Session, *discordgo.MessageCreate)); ok {
			fn(nil, e)
		}
	}
}

func (g *gateway) guildCreate(e *discordgo.GuildCreate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, h := range g.handlers {
		if fn, ok := h.(func(*discordgo.Session, *discordgo.GuildCreate)); ok {
			fn(nil, e)
		}
	}
}

type harness struct {
	bot     *DiscordBot
	session *discord.FakeSession
	store   *guild.FakeStore
	gw      *gateway
	opened  chan struct{}
}

func newHarness(t *testing.T, guilds ...guild.Guild) *harness {
	t.Helper()
	h := &harness{
		session: discord.NewFakeSession(),
		store:   guild.NewFakeStore(guilds...),
		gw:      &gateway{},
		opened:  make(chan struct{}),
	}
	h.session.AddHandlerFunc = h.gw.add
	h.session.OpenFunc = func() error {
		close(h.opened)
		return nil
	}

	reg := prometheus.NewRegistry()
	bot, err := NewDiscordBot(testConfig(), h.session, h.store, testLogger(), WithPrometheus(reg, reg))
	if err != nil {
		t.Fatalf("NewDiscordBot: %v", err)
	}
	h.bot = bot
	return h
}

// start runs the bot until the test ends.
func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.bot.Run(ctx) }()

	select {
	case <-h.opened:
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("session was never opened")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("Run did not return after cancel")
		}
	})
}

func TestRun_LoadsGuildsBeforeOpening(t *testing.T) {
	h := newHarness(t, guild.Guild{ID: "1", Snowflake: "g1"})
	h.start(t)

	if _, ok := h.bot.Registry.Get("g1"); !ok {
		t.Fatalf("guild not loaded")
	}
	trace := h.session.Trace()
	if trace[len(trace)-1] != "Open" {
		t.Fatalf("expected handlers registered before Open, got %v", trace)
	}
}

func TestRun_ShutdownClosesSessionAndSweeps(t *testing.T) {
	h := newHarness(t, guild.Guild{ID: "1", Snowflake: "g1"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.bot.Run(ctx) }()
	<-h.opened

	if _, err := h.bot.Registry.SetAdminRole("g1", "Staff"); err != nil {
		t.Fatalf("SetAdminRole: %v", err)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	closed := false
	for _, step := range h.session.Trace() {
		if step == "Close" {
			closed = true
		}
	}
	if !closed {
		t.Fatalf("session not closed")
	}
	if g, _ := h.store.Stored("g1"); g.AdminRole != "Staff" {
		t.Fatalf("final sweep did not persist admin role, got %q", g.AdminRole)
	}
}

func TestRun_LoadFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.store.LoadGuildsFunc = func(ctx context.Context) ([]guild.Guild, error) {
		return nil, errors.New("corrupt database")
	}

	if err := h.bot.Run(context.Background()); err == nil {
		t.Fatalf("expected load failure")
	}
	for _, step := range h.session.Trace() {
		if step == "Open" {
			t.Fatalf("session opened despite load failure")
		}
	}
}

func TestRun_OpenFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.session.OpenFunc = func() error { return errors.New("401 unauthorized") }

	done := make(chan error, 1)
	go func() { done <- h.bot.Run(context.Background()) }()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected open failure")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after open failure")
	}
}

func TestRun_CommandMessageIsAnswered(t *testing.T) {
	h := newHarness(t, guild.Guild{ID: "1", Snowflake: "g1"})
	sent := make(chan *discordgo.MessageSend, 1)
	h.session.ChannelMessageSendComplexFunc = func(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
		sent <- data
		return &discordgo.Message{}, nil
	}
	h.start(t)

	h.gw.messageCreate(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m1", GuildID: "g1", ChannelID: "c1", Content: "%getadmin",
		Author: &discordgo.User{ID: "u1"},
		Member: &discordgo.Member{},
	}})

	select {
	case data := <-sent:
		if len(data.Embeds) == 0 || data.Embeds[0].Title != "No admin role" {
			t.Fatalf("unexpected reply: %+v", data.Embeds)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reply sent")
	}
}

func TestRun_GuildCreateRegistersGuild(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.gw.guildCreate(&discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "g9", Name: "New", OwnerID: "owner"}})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := h.bot.Registry.Get("g9"); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("guild was not registered from the gateway event")
}
