package discord

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/observability/attr"
	"github.com/bwmarrin/discordgo"
)

const (
	maxDiscordAPIRetryAttempts = 4
	discordAPIBaseRetryDelay   = 250 * time.Millisecond
	discordAPIMaxRetryDelay    = 2 * time.Second
)

// RetryDiscordAPI retries rate-limited, 5xx and network-timeout failures with
// exponential backoff and jitter. It stops early when ctx is done.
func RetryDiscordAPI(ctx context.Context, logger *slog.Logger, operation string, fn func() error) error {
	delay := discordAPIBaseRetryDelay
	var lastErr error

	for attempt := 1; attempt <= maxDiscordAPIRetryAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxDiscordAPIRetryAttempts || !isRetryableDiscordError(err) {
			return err
		}

		wait := delay + randomJitter(delay/2)
		if logger != nil {
			logger.WarnContext(ctx, "Retrying Discord API call",
				attr.String("operation", operation),
				attr.Int("attempt", attempt),
				attr.Duration("retry_in", wait),
				attr.Error(err),
			)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}

		delay = min(delay*2, discordAPIMaxRetryDelay)
	}

	return lastErr
}

func isRetryableDiscordError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Response == nil {
			return false
		}
		status := restErr.Response.StatusCode
		return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max.Nanoseconds()+1))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}
