// Package metrics exposes the bot's prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "whitelist_bot"

// Metrics groups every instrument the bot records. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	connects        *prometheus.CounterVec
	openHandles     prometheus.Gauge
	whitelistOps    *prometheus.CounterVec
	persistSweeps   prometheus.Counter
	persistFailures prometheus.Counter
	guilds          prometheus.Gauge
	guildEvents     *prometheus.CounterVec
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Dispatched commands by keyword and outcome status.",
		}, []string{"command", "status"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent executing a command, including external database calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_db_connects_total",
			Help:      "External database connection attempts by result.",
		}, []string{"result"}),
		openHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "external_db_open_handles",
			Help:      "External database handles currently held.",
		}),
		whitelistOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "whitelist_operations_total",
			Help:      "Whitelist store operations by kind and result.",
		}, []string{"op", "result"}),
		persistSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persister_sweeps_total",
			Help:      "Completed background persistence sweeps.",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persister_guild_failures_total",
			Help:      "Guilds that failed to persist during a sweep.",
		}),
		guilds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "guilds",
			Help:      "Guilds currently registered.",
		}),
		guildEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guild_events_total",
			Help:      "Guild join and leave events handled.",
		}, []string{"event"}),
	}
	reg.MustRegister(
		m.commands,
		m.commandDuration,
		m.connects,
		m.openHandles,
		m.whitelistOps,
		m.persistSweeps,
		m.persistFailures,
		m.guilds,
		m.guildEvents,
	)
	return m
}

func (m *Metrics) ObserveCommand(command, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, status).Inc()
	m.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

func (m *Metrics) ObserveConnect(ok bool) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) SetOpenHandles(n int) {
	if m == nil {
		return
	}
	m.openHandles.Set(float64(n))
}

func (m *Metrics) ObserveWhitelistOp(op string, ok bool) {
	if m == nil {
		return
	}
	m.whitelistOps.WithLabelValues(op, result(ok)).Inc()
}

func (m *Metrics) ObserveSweep(failures int) {
	if m == nil {
		return
	}
	m.persistSweeps.Inc()
	m.persistFailures.Add(float64(failures))
}

func (m *Metrics) SetGuilds(n int) {
	if m == nil {
		return
	}
	m.guilds.Set(float64(n))
}

func (m *Metrics) ObserveGuildEvent(event string) {
	if m == nil {
		return
	}
	m.guildEvents.WithLabelValues(event).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
