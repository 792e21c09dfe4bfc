package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/grafana/loki-client-go/loki"
	slogloki "github.com/samber/slog-loki/v3"
)

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	Level        string
	ServiceName  string
	LokiURL      string
	LokiTenantID string
	Output       io.Writer
}

// NewLogger builds the process logger. When a Loki URL is configured logs are
// shipped there, otherwise they are written as text to Output. The returned
// stop function flushes the Loki client and is always safe to call.
func NewLogger(opts LoggerOptions) (*slog.Logger, func(), error) {
	level := ParseLevel(opts.Level)

	if opts.LokiURL == "" {
		handler := slog.NewTextHandler(opts.Output, &slog.HandlerOptions{Level: level})
		return slog.New(handler).With(slog.String("service", opts.ServiceName)), func() {}, nil
	}

	cfg, err := loki.NewDefaultConfig(opts.LokiURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid loki url: %w", err)
	}
	cfg.TenantID = opts.LokiTenantID

	client, err := loki.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create loki client: %w", err)
	}

	handler := slogloki.Option{Level: level, Client: client}.NewLokiHandler()
	logger := slog.New(handler).With(slog.String("service", opts.ServiceName))
	return logger, client.Stop, nil
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NoOpLogger discards everything. Used by tests and optional collaborators.
func NoOpLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
