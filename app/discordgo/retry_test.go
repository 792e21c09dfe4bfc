package discord

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func restError(status int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
}

func TestRetryDiscordAPI_RetriesTransientFailures(t *testing.T) {
	calls := 0
	err := RetryDiscordAPI(context.Background(), testLogger(), "test", func() error {
		calls++
		if calls < 3 {
			return restError(http.StatusTooManyRequests)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryDiscordAPI_DoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	err := RetryDiscordAPI(context.Background(), testLogger(), "test", func() error {
		calls++
		return restError(http.StatusForbidden)
	})
	if err == nil || calls != 1 {
		t.Fatalf("err = %v calls = %d, want error after one call", err, calls)
	}
}

func TestRetryDiscordAPI_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := RetryDiscordAPI(ctx, testLogger(), "test", func() error {
		calls++
		return restError(http.StatusBadGateway)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestIsRetryableDiscordError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", restError(http.StatusTooManyRequests), true},
		{"server error", restError(http.StatusServiceUnavailable), true},
		{"not found", restError(http.StatusNotFound), false},
		{"no response", &discordgo.RESTError{}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := isRetryableDiscordError(tt.err); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
