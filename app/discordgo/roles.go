package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// MemberRoles is a member's roles resolved to names.
type MemberRoles struct {
	Names []string
	// Highest is the name of the role with the greatest position, or "" when
	// the member has no roles besides @everyone.
	Highest string
}

// RoleResolver turns role ids carried on a message into role names.
type RoleResolver struct {
	session Session
}

func NewRoleResolver(session Session) *RoleResolver {
	return &RoleResolver{session: session}
}

// Resolve maps roleIDs to names using the guild's role list. When roleIDs is
// nil the member is fetched first.
func (r *RoleResolver) Resolve(ctx context.Context, guildID, userID string, roleIDs []string) (MemberRoles, error) {
	if roleIDs == nil {
		member, err := r.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
		if err != nil {
			return MemberRoles{}, fmt.Errorf("failed to fetch member %s: %w", userID, err)
		}
		roleIDs = member.Roles
	}

	roles, err := r.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return MemberRoles{}, fmt.Errorf("failed to fetch roles for guild %s: %w", guildID, err)
	}
	byID := make(map[string]*discordgo.Role, len(roles))
	for _, role := range roles {
		byID[role.ID] = role
	}

	out := MemberRoles{Names: make([]string, 0, len(roleIDs))}
	var highest *discordgo.Role
	for _, id := range roleIDs {
		role, ok := byID[id]
		if !ok {
			continue
		}
		out.Names = append(out.Names, role.Name)
		if highest == nil || role.Position > highest.Position {
			highest = role
		}
	}
	if highest != nil {
		out.Highest = highest.Name
	}
	return out, nil
}
