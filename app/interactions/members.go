package interactions

import (
	"context"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/command"
	discord "github.com/Black-And-White-Club/discord-whitelist-bot/app/discordgo"
)

// Members resolves command authors through the Discord role list.
type Members struct {
	resolver *discord.RoleResolver
}

func NewMembers(resolver *discord.RoleResolver) *Members {
	return &Members{resolver: resolver}
}

func (m *Members) Member(ctx context.Context, guildID, userID string, roleIDs []string) (*command.Member, error) {
	roles, err := m.resolver.Resolve(ctx, guildID, userID, roleIDs)
	if err != nil {
		return nil, err
	}
	return &command.Member{
		UserID:      userID,
		Roles:       roles.Names,
		HighestRole: roles.Highest,
	}, nil
}
