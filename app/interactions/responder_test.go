package interactions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/command"
	discord "github.com/Black-And-White-Club/discord-whitelist-bot/app/discordgo"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/dispatch"
	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"
)

func TestResponder_SendsRenderedReply(t *testing.T) {
	fs := discord.NewFakeSession()
	var sent []*discordgo.MessageSend
	fs.ChannelMessageSendComplexFunc = func(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
		if channelID != "c1" {
			t.Errorf("channel = %q", channelID)
		}
		sent = append(sent, data)
		return &discordgo.Message{}, nil
	}
	r := NewResponder(discord.NewMessenger(fs, testLogger()), testLogger())
	r.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	err := r.Respond(context.Background(), dispatch.Message{GuildID: "g1", ChannelID: "c1"}, command.OK("Whitelisted", "steam:abc was added"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(sent) != 1 || len(sent[0].Embeds) != 1 {
		t.Fatalf("expected one message with one embed, got %+v", sent)
	}
	if got := sent[0].Embeds[0].Title; got != "Whitelisted" {
		t.Fatalf("title = %q", got)
	}
	if diff := cmp.Diff([]string{"ChannelMessageSendComplex"}, fs.Trace()); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}
}

func TestResponder_LeavesAfterReplying(t *testing.T) {
	fs := discord.NewFakeSession()
	r := NewResponder(discord.NewMessenger(fs, testLogger()), testLogger())

	reply := command.OK("Goodbye", "")
	reply.LeaveGuild = true
	if err := r.Respond(context.Background(), dispatch.Message{GuildID: "g1", ChannelID: "c1"}, reply); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if diff := cmp.Diff([]string{"ChannelMessageSendComplex", "GuildLeave"}, fs.Trace()); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}
}

func TestResponder_LeaveFailureReported(t *testing.T) {
	fs := discord.NewFakeSession()
	fs.GuildLeaveFunc = func(guildID string, options ...discordgo.RequestOption) error {
		return &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	}
	r := NewResponder(discord.NewMessenger(fs, testLogger()), testLogger())

	reply := command.OK("Goodbye", "")
	reply.LeaveGuild = true
	err := r.Respond(context.Background(), dispatch.Message{GuildID: "g1", ChannelID: "c1"}, reply)
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		t.Fatalf("expected leave error, got %v", err)
	}
}

func TestResponder_LongWhitelistFitsMessageLimits(t *testing.T) {
	fs := discord.NewFakeSession()
	var sent []*discordgo.MessageSend
	fs.ChannelMessageSendComplexFunc = func(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
		sent = append(sent, data)
		return &discordgo.Message{}, nil
	}
	r := NewResponder(discord.NewMessenger(fs, testLogger()), testLogger())

	ids := make([]string, 300)
	for i := range ids {
		ids[i] = fmt.Sprintf("steam:110000112%06d", i)
	}
	reply := command.OK("Whitelisted players (300)", "")
	reply.Identifiers = ids

	if err := r.Respond(context.Background(), dispatch.Message{GuildID: "g1", ChannelID: "c1"}, reply); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	seen := map[string]int{}
	for i, msg := range sent {
		if len(msg.Embeds) > 10 {
			t.Errorf("message %d has %d embeds", i, len(msg.Embeds))
		}
		chars := 0
		for _, e := range msg.Embeds {
			chars += discord.EmbedLength(e)
			for _, f := range e.Fields {
				for _, id := range strings.Split(f.Value, "\n") {
					if strings.HasPrefix(id, "steam:") {
						seen[id]++
					}
				}
			}
		}
		if chars > 6000 {
			t.Errorf("message %d carries %d embed characters", i, chars)
		}
	}
	if len(sent) < 2 {
		t.Fatalf("expected the list to span several messages, got %d", len(sent))
	}
	for _, id := range ids {
		if seen[id] != 1 {
			t.Fatalf("%s shown %d times", id, seen[id])
		}
	}
}
