package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPrefix            = "%"
	DefaultStoragePath       = "data.db"
	DefaultConnectTimeout    = 10 * time.Second
	DefaultQueryTimeout      = 5 * time.Second
	DefaultPersisterInterval = 5 * time.Minute
	DefaultCacheTTL          = 5 * time.Minute
	DefaultMetricsAddress    = ":8080"
	DefaultServiceName       = "discord-whitelist-bot"
)

// Config struct to hold the configuration settings
type Config struct {
	Discord       DiscordConfig       `yaml:"discord"`
	Storage       StorageConfig       `yaml:"storage"`
	ExternalDB    ExternalDBConfig    `yaml:"external_db"`
	Persister     PersisterConfig     `yaml:"persister"`
	Cache         CacheConfig         `yaml:"cache"`
	Observability ObservabilityConfig `yaml:"observability"`
	Service       ServiceConfig       `yaml:"service"`
}

// DiscordConfig holds Discord configuration.
type DiscordConfig struct {
	Token  string `yaml:"token"`
	Prefix string `yaml:"prefix"`
}

// StorageConfig points at the local SQLite file.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ExternalDBConfig bounds calls to the guilds' game databases.
type ExternalDBConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	QueryTimeout   time.Duration `yaml:"query_timeout"`
}

type PersisterConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// CacheConfig controls the in-memory whitelist mirror. A TTL of zero
// disables it.
type CacheConfig struct {
	TTL *time.Duration `yaml:"ttl"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LokiURL        string `yaml:"loki_url"`
	LokiTenantID   string `yaml:"loki_tenant_id"`
	MetricsAddress string `yaml:"metrics_address"`
}

// ServiceConfig holds general service configuration
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// LoadConfig loads .env if present, then the YAML file, then fills unset
// values from the environment and defaults. A missing file is not an error;
// the configuration then comes from the environment alone.
func LoadConfig(filename string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Info("Config file not found, using environment variables", "path", filename)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		}
	}

	if err := loadConfigFromEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationFromEnv(key string, dst *time.Duration) error {
	if *dst != 0 {
		return nil
	}
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

// loadConfigFromEnv fills values the file left empty.
func loadConfigFromEnv(cfg *Config) error {
	cfg.Discord.Token = getEnvOrDefault("DISCORD_TOKEN", cfg.Discord.Token)
	if cfg.Discord.Prefix == "" {
		cfg.Discord.Prefix = os.Getenv("COMMAND_PREFIX")
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = os.Getenv("STORAGE_PATH")
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = os.Getenv("LOG_LEVEL")
	}
	if cfg.Observability.LokiURL == "" {
		cfg.Observability.LokiURL = os.Getenv("LOKI_URL")
	}
	if cfg.Observability.LokiTenantID == "" {
		cfg.Observability.LokiTenantID = os.Getenv("LOKI_TENANT_ID")
	}
	if cfg.Observability.MetricsAddress == "" {
		cfg.Observability.MetricsAddress = os.Getenv("METRICS_ADDRESS")
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = os.Getenv("SERVICE_NAME")
	}
	if cfg.Service.Version == "" {
		cfg.Service.Version = os.Getenv("SERVICE_VERSION")
	}

	for key, dst := range map[string]*time.Duration{
		"EXTERNAL_DB_CONNECT_TIMEOUT": &cfg.ExternalDB.ConnectTimeout,
		"EXTERNAL_DB_QUERY_TIMEOUT":   &cfg.ExternalDB.QueryTimeout,
		"PERSISTER_INTERVAL":          &cfg.Persister.Interval,
	} {
		if err := durationFromEnv(key, dst); err != nil {
			return err
		}
	}
	if cfg.Cache.TTL == nil {
		if raw := os.Getenv("CACHE_TTL"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("invalid CACHE_TTL: %w", err)
			}
			cfg.Cache.TTL = &d
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Discord.Prefix == "" {
		c.Discord.Prefix = DefaultPrefix
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.ExternalDB.ConnectTimeout == 0 {
		c.ExternalDB.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ExternalDB.QueryTimeout == 0 {
		c.ExternalDB.QueryTimeout = DefaultQueryTimeout
	}
	if c.Persister.Interval == 0 {
		c.Persister.Interval = DefaultPersisterInterval
	}
	if c.Cache.TTL == nil {
		ttl := DefaultCacheTTL
		c.Cache.TTL = &ttl
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
	if c.Observability.MetricsAddress == "" {
		c.Observability.MetricsAddress = DefaultMetricsAddress
	}
	if c.Service.Name == "" {
		c.Service.Name = DefaultServiceName
	}
	if c.Service.Version == "" {
		c.Service.Version = "dev"
	}
}

// CacheTTL returns the mirror TTL; zero means no caching.
func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTL == nil {
		return 0
	}
	return *c.Cache.TTL
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Discord.Token == "" {
		errs = append(errs, errors.New("discord token is required (discord.token or DISCORD_TOKEN)"))
	}
	if c.Discord.Prefix == "" || strings.ContainsAny(c.Discord.Prefix, " \t\n") {
		errs = append(errs, fmt.Errorf("command prefix %q must be non-empty and contain no whitespace", c.Discord.Prefix))
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage path is required"))
	}
	if c.ExternalDB.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("external_db.connect_timeout must be positive"))
	}
	if c.ExternalDB.QueryTimeout <= 0 {
		errs = append(errs, errors.New("external_db.query_timeout must be positive"))
	}
	if c.Persister.Interval <= 0 {
		errs = append(errs, errors.New("persister.interval must be positive"))
	}
	if c.CacheTTL() < 0 {
		errs = append(errs, errors.New("cache.ttl must not be negative"))
	}
	return errors.Join(errs...)
}
