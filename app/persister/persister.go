// Package persister periodically writes the guild registry back to the local store.
package persister

import (
	"context"
	"log/slog"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/metrics"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/apperrors"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
)

const (
	DefaultInterval = 5 * time.Minute
	// finalSweepTimeout bounds the shutdown sweep, which runs after the
	// caller's context is already cancelled.
	finalSweepTimeout = 10 * time.Second
)

// Snapshotter is the registry view the persister needs.
type Snapshotter interface {
	Snapshot() []guild.Versioned
	MarkClean(snowflake string, version uint64)
}

// Writer is the subset of guild.Store written by a sweep.
type Writer interface {
	UpsertCredentials(ctx context.Context, creds guild.Credentials) error
	UpdateAdminRole(ctx context.Context, snowflake, role string) error
}

type Persister struct {
	registry Snapshotter
	store    Writer
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New returns a Persister. A non-positive interval falls back to DefaultInterval.
func New(registry Snapshotter, store Writer, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Persister {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Persister{
		registry: registry,
		store:    store,
		interval: interval,
		logger:   logger,
		metrics:  m,
	}
}

// Run sweeps every interval until ctx is cancelled, then sweeps once more so
// changes made since the last tick reach disk.
func (p *Persister) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.InfoContext(ctx, "Persister started", attr.Duration("interval", p.interval))
	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSweepTimeout)
			failures := p.Sweep(finalCtx)
			cancel()
			p.logger.Info("Persister stopped", attr.Int("final_sweep_failures", failures))
			return nil
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep writes every guild's admin role and credentials. A failing guild is
// logged and skipped; the rest of the sweep continues. It returns the number
// of guilds that could not be written.
func (p *Persister) Sweep(ctx context.Context) int {
	start := time.Now()
	snapshot := p.registry.Snapshot()
	failures := 0

	for _, v := range snapshot {
		if ctx.Err() != nil {
			failures++
			continue
		}
		if err := p.write(ctx, v.Guild); err != nil {
			failures++
			p.logger.WarnContext(ctx, "Guild not persisted, will retry next sweep",
				attr.GuildID(v.Guild.Snowflake),
				attr.Bool("dirty", v.Dirty),
				attr.Error(err),
			)
			continue
		}
		p.registry.MarkClean(v.Guild.Snowflake, v.Version)
	}

	p.metrics.ObserveSweep(failures)
	p.logger.DebugContext(ctx, "Persister sweep finished",
		attr.Int("guilds", len(snapshot)),
		attr.Int("failures", failures),
		attr.Duration("elapsed", time.Since(start)),
	)
	return failures
}

func (p *Persister) write(ctx context.Context, g guild.Guild) error {
	if g.DBProvider != nil {
		creds := *g.DBProvider
		creds.GuildID = g.Snowflake
		if err := p.store.UpsertCredentials(ctx, creds); err != nil {
			return &apperrors.DurabilityWarning{Snowflake: g.Snowflake, Op: "credentials", Cause: err}
		}
	}
	if err := p.store.UpdateAdminRole(ctx, g.Snowflake, g.AdminRole); err != nil {
		return &apperrors.DurabilityWarning{Snowflake: g.Snowflake, Op: "admin role", Cause: err}
	}
	return nil
}
