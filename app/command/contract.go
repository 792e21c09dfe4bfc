package command

import (
	"context"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/guild"
	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/apperrors"
)

// CheckPermission passes when the guild has no admin role yet, or when the
// member holds a role with exactly that name. Without member information it
// always fails.
func CheckPermission(d Descriptor, inv Invocation, g guild.Guild) error {
	if inv.Member == nil {
		return &apperrors.PermissionError{Command: d.Name, Reason: "no member information for this message"}
	}
	if !g.HasAdminRole() {
		return nil
	}
	if inv.Member.HasRole(g.AdminRole) {
		return nil
	}
	return &apperrors.PermissionError{Command: d.Name, RequiredRole: g.AdminRole}
}

// CheckArity requires at least as many arguments as the descriptor marks
// required. Extra arguments are accepted.
func CheckArity(d Descriptor, inv Invocation) error {
	required := d.RequiredArgs()
	given := len(inv.Params())
	if given >= required {
		return nil
	}
	return &apperrors.UsageError{
		Command:  d.Name,
		Required: required,
		Given:    given,
		Usage:    d.Usage(inv.Prefix),
	}
}

// Execute runs the permission check, then the arity check, then the handler.
// The handler never runs when a check fails.
func Execute(ctx context.Context, d Descriptor, inv Invocation, g guild.Guild) Reply {
	if err := CheckPermission(d, inv, g); err != nil {
		return Reply{
			Command: d.Name,
			Status:  StatusDenied,
			Title:   "Permission denied",
			Message: err.Error(),
			Err:     err,
		}
	}

	if err := CheckArity(d, inv); err != nil {
		usage := err.(*apperrors.UsageError).Usage
		return Reply{
			Command: d.Name,
			Status:  StatusUsage,
			Title:   "Invalid usage",
			Message: "Usage: " + usage,
			Err:     err,
		}
	}

	reply := d.Handler(ctx, inv, g)
	reply.Command = d.Name
	return reply
}
