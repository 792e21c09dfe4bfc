// Package attr provides typed slog attribute constructors so log keys stay
// consistent across the bot.
package attr

import (
	"log/slog"
	"time"
)

func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

func Int(key string, value int) slog.Attr {
	return slog.Int(key, value)
}

func Int64(key string, value int64) slog.Attr {
	return slog.Int64(key, value)
}

func Bool(key string, value bool) slog.Attr {
	return slog.Bool(key, value)
}

func Duration(key string, value time.Duration) slog.Attr {
	return slog.Duration(key, value)
}

func Time(key string, value time.Time) slog.Attr {
	return slog.Time(key, value)
}

func Any(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

// Error renders err under the "error" key. A nil error yields an empty string
// rather than a "<nil>" value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// GuildID is the key every guild-scoped log line carries.
func GuildID(id string) slog.Attr {
	return slog.String("guild_id", id)
}

// CorrelationID tags all log lines produced while handling one inbound message.
func CorrelationID(id string) slog.Attr {
	return slog.String("correlation_id", id)
}
