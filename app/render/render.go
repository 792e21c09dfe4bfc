// Package render turns command replies into Discord embeds.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/command"
	"github.com/bwmarrin/discordgo"
)

const (
	// IdentifiersPerField bounds one embed field.
	IdentifiersPerField = 10
	// FieldsPerEmbed bounds the identifier fields in one embed.
	FieldsPerEmbed = 3

	colorOK     = 0x00BCD4
	colorDenied = 0xE53935
	colorUsage  = 0xFFB300
	colorFailed = 0xE53935
)

// Embeds renders a reply. Identifier lists are split across fields and
// embeds so every identifier appears exactly once.
func Embeds(reply command.Reply, now time.Time) []*discordgo.MessageEmbed {
	first := &discordgo.MessageEmbed{
		Title:       reply.Title,
		Description: reply.Message,
		Color:       color(reply.Status),
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
	for _, f := range reply.Fields {
		first.Fields = append(first.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: valueOrDash(f.Value), Inline: true})
	}

	if len(reply.Identifiers) == 0 {
		return []*discordgo.MessageEmbed{first}
	}

	pages := chunk(chunk(reply.Identifiers, IdentifiersPerField), FieldsPerEmbed)
	embeds := make([]*discordgo.MessageEmbed, 0, len(pages))
	offset := 0
	for i, page := range pages {
		e := first
		if i > 0 {
			e = &discordgo.MessageEmbed{
				Title:     fmt.Sprintf("%s (page %d/%d)", reply.Title, i+1, len(pages)),
				Color:     first.Color,
				Timestamp: first.Timestamp,
			}
		}
		for _, ids := range page {
			e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
				Name:  fmt.Sprintf("%d-%d", offset+1, offset+len(ids)),
				Value: strings.Join(ids, "\n"),
			})
			offset += len(ids)
		}
		embeds = append(embeds, e)
	}
	return embeds
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}

func color(s command.Status) int {
	switch s {
	case command.StatusDenied:
		return colorDenied
	case command.StatusUsage:
		return colorUsage
	case command.StatusFailed:
		return colorFailed
	default:
		return colorOK
	}
}

func valueOrDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
