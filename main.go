package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/bot"
	discord "github.com/Black-And-White-Club/discord-whitelist-bot/app/discordgo"
	guildstorage "github.com/Black-And-White-Club/discord-whitelist-bot/app/guild/storage"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
	"github.com/Black-And-White-Club/discord-whitelist-bot/config"
	"github.com/bwmarrin/discordgo"
	"github.com/urfave/cli/v2"
)

func main() {
	cliApp := &cli.App{
		Name:  "whitelist-bot",
		Usage: "manage FiveM server whitelists from Discord",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: "config.yaml",
				Usage: "path to the configuration file",
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Discord bot token, overrides the config file",
				EnvVars: []string{"DISCORD_TOKEN"},
			},
		},
		Action: runBot,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "connect to Discord and serve commands (default)",
				Action: runBot,
			},
			{
				Name:   "init-db",
				Usage:  "create the local database schema and exit",
				Action: initDB,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Printf("whitelist-bot: %v", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if token := c.String("token"); token != "" {
		cfg.Discord.Token = token
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*guildstorage.GuildDB, error) {
	store, err := guildstorage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	if err := store.CreateSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func initDB(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	store, err := openStore(c.Context, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	fmt.Printf("Local database ready at %s\n", cfg.Storage.Path)
	return nil
}

func runBot(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, stopLogger, err := observability.NewLogger(observability.LoggerOptions{
		Level:        cfg.Observability.LogLevel,
		ServiceName:  cfg.Service.Name,
		LokiURL:      cfg.Observability.LokiURL,
		LokiTenantID: cfg.Observability.LokiTenantID,
		Output:       os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer stopLogger()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open local database", attr.String("path", cfg.Storage.Path), attr.Error(err))
		return err
	}
	defer store.Close()

	discordSession, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}
	discordSession.Identify.Intents = bot.Intents
	session := discord.NewDiscordSession(discordSession, logger)

	discordBot, err := bot.NewDiscordBot(cfg, session, store, logger)
	if err != nil {
		return fmt.Errorf("failed to create Discord bot: %w", err)
	}

	logger.Info("Starting whitelist bot",
		attr.String("version", cfg.Service.Version),
		attr.String("prefix", cfg.Discord.Prefix))
	if err := discordBot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Discord bot stopped with error", attr.Error(err))
		return err
	}
	logger.Info("Shutdown complete.")
	return nil
}
