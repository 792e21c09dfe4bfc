package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/command/builtin"
	discord "github.com/Black-And-White-Club/discord-whitelist-bot/app/discordgo"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/dispatch"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/externaldb"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	guilddiscord "github.com/Black-And-White-Club/discord-whitelist-bot/app/guild/discord"
	guildrouter "github.com/Black-And-White-Club/discord-whitelist-bot/app/guild/watermill"
	guildhandlers "github.com/Black-And-White-Club/discord-whitelist-bot/app/guild/watermill/handlers"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/health"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/interactions"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/metrics"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/persister"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/whitelist"
	"github.com/Black-And-White-Club/discord-whitelist-bot/config"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const routerStartTimeout = 10 * time.Second

// Intents the bot needs: guild lifecycle, guild messages and their content.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

// DiscordBot owns every long-lived component and their lifecycle.
type DiscordBot struct {
	Session         discord.Session
	Logger          *slog.Logger
	Config          *config.Config
	Store           guild.Store
	Registry        *guild.Registry
	Connector       *externaldb.Connector
	Dispatcher      *dispatch.Dispatcher
	Persister       *persister.Persister
	WatermillRouter *message.Router
	PubSub          *gochannel.GoChannel
	Health          *health.Handler
	Metrics         *metrics.Metrics

	guildRouter *guildrouter.GuildRouter
	messages    *interactions.MessageRegistry
	gateway     *guilddiscord.GatewayEvents
	tracer      trace.Tracer
}

// Option customises a DiscordBot before its components are built.
type Option func(*options)

type options struct {
	dialer     externaldb.Dialer
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

// WithDialer replaces the MySQL dialer used for guild databases.
func WithDialer(d externaldb.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithPrometheus sets where metrics are registered and gathered from.
func WithPrometheus(reg prometheus.Registerer, gatherer prometheus.Gatherer) Option {
	return func(o *options) {
		o.registerer = reg
		o.gatherer = gatherer
	}
}

// NewDiscordBot wires the bot. Nothing touches the network until Run.
func NewDiscordBot(cfg *config.Config, session discord.Session, store guild.Store, logger *slog.Logger, opts ...Option) (*DiscordBot, error) {
	o := options{dialer: externaldb.MySQLDialer(cfg.ExternalDB.ConnectTimeout)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registerer == nil {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		o.registerer, o.gatherer = reg, reg
	}

	tracer := otel.Tracer("discord-whitelist-bot")
	m := metrics.New(o.registerer)

	registry := guild.NewRegistry(store, logger)
	connector := externaldb.NewConnector(o.dialer, externaldb.Config{
		ConnectTimeout: cfg.ExternalDB.ConnectTimeout,
		QueryTimeout:   cfg.ExternalDB.QueryTimeout,
	}, logger,
		externaldb.WithActiveCheck(registry.Active),
		externaldb.WithTracer(tracer),
		externaldb.WithMetrics(m),
	)
	mirror := whitelist.NewMirror(cfg.CacheTTL(), store, logger, whitelist.WithActiveCheck(registry.Active))
	registry.AddReleaser(connector)
	registry.AddReleaser(mirror)

	messenger := discord.NewMessenger(session, logger)
	dispatcher := dispatch.New(cfg.Discord.Prefix,
		registry,
		interactions.NewMembers(discord.NewRoleResolver(session)),
		interactions.NewResponder(messenger, logger),
		logger,
		dispatch.WithTracer(tracer),
		dispatch.WithMetrics(m),
	)
	err := dispatcher.Register(builtin.Commands(builtin.Deps{
		Registry:    registry,
		Connections: connector,
		Whitelist:   whitelist.NewSQLStore(logger, m),
		Mirror:      mirror,
		CacheStates: store,
		Logger:      logger,
	})...)
	if err != nil {
		return nil, fmt.Errorf("failed to register commands: %w", err)
	}

	wmLogger := watermill.NewSlogLogger(logger)
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create watermill router: %w", err)
	}
	guildRouter := guildrouter.NewGuildRouter(logger, router, pubsub)
	handlers := guildhandlers.NewGuildHandlers(logger, registry, messenger, cfg.Discord.Prefix, tracer, m)
	if err := guildRouter.Configure(context.Background(), handlers); err != nil {
		return nil, err
	}

	messages := interactions.NewMessageRegistry(logger)
	messages.RegisterMessageCreateHandler(interactions.CommandHandler(dispatcher))

	return &DiscordBot{
		Session:         session,
		Logger:          logger,
		Config:          cfg,
		Store:           store,
		Registry:        registry,
		Connector:       connector,
		Dispatcher:      dispatcher,
		Persister:       persister.New(registry, store, cfg.Persister.Interval, logger, m),
		WatermillRouter: router,
		PubSub:          pubsub,
		Health:          health.NewHandler(cfg.Service.Version, store, registry, o.gatherer, logger),
		Metrics:         m,
		guildRouter:     guildRouter,
		messages:        messages,
		gateway:         guilddiscord.NewGatewayEvents(pubsub, logger),
		tracer:          tracer,
	}, nil
}

// Run loads the registry, starts the event router, opens the gateway and
// then blocks until ctx is cancelled or a component fails. Failing to load
// the registry or to log in is returned before anything else starts.
func (bot *DiscordBot) Run(ctx context.Context) error {
	if err := bot.Registry.Load(ctx); err != nil {
		return fmt.Errorf("failed to load guilds: %w", err)
	}
	bot.Metrics.SetGuilds(bot.Registry.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.WatermillRouter.Run(gctx)
	})

	select {
	case <-bot.WatermillRouter.Running():
	case <-time.After(routerStartTimeout):
		bot.shutdown(g)
		return errors.New("watermill router did not start")
	case <-gctx.Done():
		return bot.shutdown(g)
	}

	bot.messages.RegisterWithSession(bot.Session, bot.Session)
	bot.gateway.RegisterWithSession(bot.Session)
	bot.Session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		bot.Logger.Info("Discord bot is connected and ready.", attr.Int("guilds", len(r.Guilds)))
	})

	if err := bot.Session.Open(); err != nil {
		bot.Logger.ErrorContext(ctx, "Error opening discord connection", attr.Error(err))
		bot.shutdown(g)
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	bot.Logger.InfoContext(ctx, "Discord bot is now running.")

	g.Go(func() error {
		return bot.Persister.Run(gctx)
	})
	if addr := bot.Config.Observability.MetricsAddress; addr != "" {
		g.Go(func() error {
			return bot.Health.Serve(gctx, addr)
		})
	}

	<-gctx.Done()
	bot.Logger.Info("Shutting down Discord bot...")
	bot.Close()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// shutdown stops whatever Run already started.
func (bot *DiscordBot) shutdown(g *errgroup.Group) error {
	bot.closeRouter()
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (bot *DiscordBot) closeRouter() {
	if err := bot.guildRouter.Close(); err != nil {
		bot.Logger.Error("Failed to close Watermill router", attr.Error(err))
	}
}

// Close stops the gateway first so no new commands arrive, then the event
// router and the guild database handles.
func (bot *DiscordBot) Close() {
	bot.Logger.Info("Closing bot")
	if err := bot.Session.Close(); err != nil {
		bot.Logger.Error("Failed to close Discord session", attr.Error(err))
	}
	bot.closeRouter()
	if err := bot.PubSub.Close(); err != nil {
		bot.Logger.Error("Failed to close pub/sub", attr.Error(err))
	}
	if err := bot.Connector.Close(); err != nil {
		bot.Logger.Error("Failed to close guild database handles", attr.Error(err))
	}
}
