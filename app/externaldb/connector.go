// Package externaldb manages each guild's connection to its external game
// database.
package externaldb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/metrics"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/apperrors"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Dialer opens and verifies a connection with the given credentials.
type Dialer func(ctx context.Context, creds guild.Credentials) (*bun.DB, error)

// Connections is what command handlers need from the connector.
type Connections interface {
	Connect(ctx context.Context, g guild.Guild) (*Handle, error)
	Handle(ctx context.Context, g guild.Guild) (*Handle, error)
}

// Config bounds external database calls.
type Config struct {
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
}

// DefaultConfig returns the timeouts used when none are configured.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		QueryTimeout:   5 * time.Second,
	}
}

// Connector owns the table of live handles keyed by guild snowflake.
type Connector struct {
	mu      sync.Mutex
	handles map[string]*Handle
	group   singleflight.Group

	dial    Dialer
	active  func(snowflake string) bool
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

// Option customises a Connector.
type Option func(*Connector)

// WithActiveCheck makes Connect refuse to store a handle for a guild that is
// no longer registered once dialing finishes.
func WithActiveCheck(active func(snowflake string) bool) Option {
	return func(c *Connector) { c.active = active }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Connector) { c.tracer = tracer }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connector) { c.metrics = m }
}

// NewConnector creates a connector that opens connections with dial.
func NewConnector(dial Dialer, cfg Config, logger *slog.Logger, opts ...Option) *Connector {
	c := &Connector{
		handles: make(map[string]*Handle),
		dial:    dial,
		cfg:     cfg,
		logger:  logger,
		tracer:  otel.Tracer("externaldb"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens a new connection with the guild's credentials and replaces
// any handle held for it.
func (c *Connector) Connect(ctx context.Context, g guild.Guild) (*Handle, error) {
	if g.DBProvider == nil {
		return nil, &apperrors.NoCredentialsError{Snowflake: g.Snowflake}
	}
	creds := *g.DBProvider

	ctx, span := c.tracer.Start(ctx, "externaldb.Connect", trace.WithAttributes(
		attribute.String("guild.id", g.Snowflake),
		attribute.String("db.host", creds.Host),
	))
	defer span.End()

	start := time.Now()
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	db, err := c.dial(dialCtx, creds)
	cancel()
	if err != nil {
		c.metrics.ObserveConnect(false)
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		c.logger.WarnContext(ctx, "External database connection failed",
			attr.GuildID(g.Snowflake),
			attr.String("host", creds.Host),
			attr.Duration("elapsed", time.Since(start)),
			attr.Error(err),
		)
		return nil, &apperrors.DbConnectError{Snowflake: g.Snowflake, Host: creds.Host, Cause: err}
	}

	h := NewHandle(g.Snowflake, db, creds, c.cfg.QueryTimeout)

	c.mu.Lock()
	if c.active != nil && !c.active(g.Snowflake) {
		c.mu.Unlock()
		_ = db.Close()
		return nil, &apperrors.NotFoundError{Snowflake: g.Snowflake}
	}
	old := c.handles[g.Snowflake]
	c.handles[g.Snowflake] = h
	open := len(c.handles)
	c.mu.Unlock()

	if old != nil {
		if err := old.close(); err != nil {
			c.logger.WarnContext(ctx, "Failed to close replaced handle",
				attr.GuildID(g.Snowflake),
				attr.Error(err),
			)
		}
	}

	c.metrics.ObserveConnect(true)
	c.metrics.SetOpenHandles(open)
	c.logger.InfoContext(ctx, "Connected to external database",
		attr.GuildID(g.Snowflake),
		attr.Any("credentials", creds),
		attr.Duration("elapsed", time.Since(start)),
	)
	return h, nil
}

// Handle returns the held handle if it was opened with the guild's current
// credentials, otherwise connects. Concurrent callers for the same guild
// share one dial.
func (c *Connector) Handle(ctx context.Context, g guild.Guild) (*Handle, error) {
	if g.DBProvider == nil {
		return nil, &apperrors.NoCredentialsError{Snowflake: g.Snowflake}
	}

	c.mu.Lock()
	h := c.handles[g.Snowflake]
	c.mu.Unlock()
	if h != nil && h.usable(g.DBProvider) {
		return h, nil
	}

	key := flightKey(g.Snowflake, *g.DBProvider)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.Lock()
		h := c.handles[g.Snowflake]
		c.mu.Unlock()
		if h != nil && h.usable(g.DBProvider) {
			return h, nil
		}
		return c.Connect(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// Release closes and forgets the guild's handle. Releasing a guild without a
// handle is a no-op.
func (c *Connector) Release(ctx context.Context, snowflake string) error {
	c.mu.Lock()
	h := c.handles[snowflake]
	delete(c.handles, snowflake)
	open := len(c.handles)
	c.mu.Unlock()

	if h == nil {
		return nil
	}
	c.metrics.SetOpenHandles(open)
	if err := h.close(); err != nil {
		return fmt.Errorf("failed to close handle for guild %s: %w", snowflake, err)
	}
	c.logger.DebugContext(ctx, "Released external database handle", attr.GuildID(snowflake))
	return nil
}

// Close releases every handle.
func (c *Connector) Close() error {
	c.mu.Lock()
	handles := c.handles
	c.handles = make(map[string]*Handle)
	c.mu.Unlock()

	var firstErr error
	for id, h := range handles {
		if err := h.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close handle for guild %s: %w", id, err)
		}
	}
	c.metrics.SetOpenHandles(0)
	return firstErr
}

// Held reports whether a handle is currently held for the guild.
func (c *Connector) Held(snowflake string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handles[snowflake]
	return ok
}

func flightKey(snowflake string, creds guild.Credentials) string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%s\x00%s", snowflake, creds.Host, creds.DatabaseName, creds.Username, creds.Password)
}

var (
	_ Connections    = (*Connector)(nil)
	_ guild.Releaser = (*Connector)(nil)
)
