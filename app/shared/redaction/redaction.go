// Package redaction hides secrets before they reach logs or chat.
package redaction

// Redacted replaces a secret that is set.
const Redacted = "[redacted]"

// RedactSecret returns Redacted for non-empty secrets and "" otherwise, so
// readers can still tell whether a secret was configured.
func RedactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return Redacted
}
