// Package dispatch routes inbound chat messages to registered commands.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/command"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/metrics"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Message is an inbound chat message, stripped of transport details.
type Message struct {
	ID        string
	GuildID   string
	ChannelID string
	AuthorID  string
	Content   string
	// RoleIDs are the member's role ids when the transport delivered them;
	// nil means unknown.
	RoleIDs []string
}

// GuildSource resolves the guild state a command runs against.
type GuildSource interface {
	Get(snowflake string) (guild.Guild, bool)
}

// MemberLookup resolves the author's roles inside the guild.
type MemberLookup interface {
	Member(ctx context.Context, guildID, userID string, roleIDs []string) (*command.Member, error)
}

// Responder delivers a reply back to where the message came from.
type Responder interface {
	Respond(ctx context.Context, msg Message, reply command.Reply) error
}

// Dispatcher matches messages against "<prefix><keyword>" in registration
// order and runs the first match. Commands for one guild run one at a time;
// different guilds run concurrently.
type Dispatcher struct {
	prefix    string
	routes    []command.Descriptor
	guilds    GuildSource
	members   MemberLookup
	responder Responder
	locks     *keyedMutex

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = tracer }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func New(prefix string, guilds GuildSource, members MemberLookup, responder Responder, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		prefix:    prefix,
		guilds:    guilds,
		members:   members,
		responder: responder,
		locks:     newKeyedMutex(),
		logger:    logger,
		tracer:    otel.Tracer("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register appends commands to the routing table. Because matching is a plain
// string prefix test, a keyword that extends another (listall vs list) must
// be registered before the shorter one or it will never match.
func (d *Dispatcher) Register(descs ...command.Descriptor) error {
	for _, desc := range descs {
		if desc.Name == "" || desc.Handler == nil {
			return fmt.Errorf("command %q needs a name and a handler", desc.Name)
		}
		for _, existing := range d.routes {
			if existing.Name == desc.Name {
				return fmt.Errorf("command %q is already registered", desc.Name)
			}
		}
		d.routes = append(d.routes, desc)
	}
	return nil
}

// Commands returns the routing table in match order.
func (d *Dispatcher) Commands() []command.Descriptor {
	out := make([]command.Descriptor, len(d.routes))
	copy(out, d.routes)
	return out
}

// Match returns the first registered command whose "<prefix><keyword>"
// starts content.
func (d *Dispatcher) Match(content string) (command.Descriptor, bool) {
	for _, desc := range d.routes {
		if strings.HasPrefix(content, d.prefix+desc.Name) {
			return desc, true
		}
	}
	return command.Descriptor{}, false
}

// Dispatch runs the matching command, if any, and hands its reply to the
// responder. It reports false when the message was ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (command.Reply, bool) {
	desc, ok := d.Match(msg.Content)
	if !ok || msg.GuildID == "" {
		return command.Reply{}, false
	}

	unlock := d.locks.Lock(msg.GuildID)
	defer unlock()

	g, ok := d.guilds.Get(msg.GuildID)
	if !ok {
		d.logger.DebugContext(ctx, "Dropping command for unknown guild",
			attr.GuildID(msg.GuildID),
			attr.String("command", desc.Name),
		)
		return command.Reply{}, false
	}

	correlationID := uuid.NewString()
	ctx, span := d.tracer.Start(ctx, "dispatch."+desc.Name, trace.WithAttributes(
		attribute.String("guild.id", msg.GuildID),
		attribute.String("command", desc.Name),
		attribute.String("correlation_id", correlationID),
	))
	defer span.End()

	start := time.Now()
	inv := command.Invocation{
		GuildID:       msg.GuildID,
		ChannelID:     msg.ChannelID,
		AuthorID:      msg.AuthorID,
		Prefix:        d.prefix,
		Args:          d.tokens(msg.Content),
		CorrelationID: correlationID,
	}

	member, err := d.members.Member(ctx, msg.GuildID, msg.AuthorID, msg.RoleIDs)
	if err != nil {
		d.logger.WarnContext(ctx, "Could not resolve member roles",
			attr.GuildID(msg.GuildID),
			attr.String("user_id", msg.AuthorID),
			attr.CorrelationID(correlationID),
			attr.Error(err),
		)
	} else {
		inv.Member = member
	}

	reply := command.Execute(ctx, desc, inv, g)
	elapsed := time.Since(start)

	span.SetAttributes(attribute.String("status", reply.Status.String()))
	if reply.Err != nil {
		span.RecordError(reply.Err)
	}
	d.metrics.ObserveCommand(desc.Name, reply.Status.String(), elapsed)
	d.logger.InfoContext(ctx, "Command handled",
		attr.GuildID(msg.GuildID),
		attr.String("command", desc.Name),
		attr.String("user_id", msg.AuthorID),
		attr.String("status", reply.Status.String()),
		attr.Duration("elapsed", elapsed),
		attr.CorrelationID(correlationID),
		attr.Error(reply.Err),
	)

	if d.responder != nil {
		if err := d.responder.Respond(ctx, msg, reply); err != nil {
			d.logger.ErrorContext(ctx, "Failed to deliver reply",
				attr.GuildID(msg.GuildID),
				attr.CorrelationID(correlationID),
				attr.Error(err),
			)
		}
	}
	return reply, true
}

func (d *Dispatcher) tokens(content string) []string {
	args := strings.Fields(content)
	if len(args) > 0 {
		args[0] = strings.TrimPrefix(args[0], d.prefix)
	}
	return args
}
