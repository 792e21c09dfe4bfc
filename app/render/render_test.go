package render

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/command"
)

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("steam:%d", i)
	}
	return out
}

func TestEmbeds_EveryIdentifierShownOnce(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, n := range []int{1, 9, 10, 11, 30, 31, 95, 301} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			want := ids(n)
			embeds := Embeds(command.Reply{Title: "Whitelisted players", Identifiers: want}, now)

			var got []string
			for _, e := range embeds {
				if len(e.Fields) > FieldsPerEmbed {
					t.Fatalf("embed has %d fields, limit %d", len(e.Fields), FieldsPerEmbed)
				}
				for _, f := range e.Fields {
					lines := strings.Split(f.Value, "\n")
					if len(lines) > IdentifiersPerField {
						t.Fatalf("field has %d identifiers, limit %d", len(lines), IdentifiersPerField)
					}
					got = append(got, lines...)
				}
			}
			if len(got) != n {
				t.Fatalf("rendered %d identifiers, want %d", len(got), n)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("identifier %d = %q, want %q", i, got[i], want[i])
				}
			}
			wantEmbeds := (n + IdentifiersPerField*FieldsPerEmbed - 1) / (IdentifiersPerField * FieldsPerEmbed)
			if len(embeds) != wantEmbeds {
				t.Fatalf("embeds = %d, want %d", len(embeds), wantEmbeds)
			}
		})
	}
}

func TestEmbeds_PlainReply(t *testing.T) {
	reply := command.Reply{
		Status:  command.StatusDenied,
		Title:   "Permission denied",
		Message: "role required",
		Fields:  []command.Field{{Name: "Admin role", Value: "admins"}, {Name: "Empty"}},
	}
	embeds := Embeds(reply, time.Now())
	if len(embeds) != 1 {
		t.Fatalf("expected a single embed, got %d", len(embeds))
	}
	e := embeds[0]
	if e.Title != "Permission denied" || e.Description != "role required" || e.Color != colorDenied {
		t.Fatalf("unexpected embed %+v", e)
	}
	if len(e.Fields) != 2 || e.Fields[1].Value != "-" {
		t.Fatalf("unexpected fields %+v", e.Fields)
	}
}
