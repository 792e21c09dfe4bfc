package whitelist

import (
	"regexp"

	"github.com/Black-And-White-Club/discord-whitelist-bot/app/shared/apperrors"
)

var identifierPattern = regexp.MustCompile(`^steam:[a-zA-Z0-9]+$`)

// ValidateIdentifier accepts only steam:<alphanumeric> player identifiers.
func ValidateIdentifier(id string) error {
	if !identifierPattern.MatchString(id) {
		return &apperrors.IdentifierFormatError{Identifier: id}
	}
	return nil
}
