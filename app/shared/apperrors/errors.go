// Package apperrors holds the error taxonomy shared by the registry, the
// external database layer and the command contract.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind groups errors by how the caller should react to them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration: something has to be configured before the operation can run.
	KindConfiguration
	// KindValidation: malformed input, reported before any side effect.
	KindValidation
	// KindPermission: the caller lacks the required role.
	KindPermission
	// KindTransientStore: the external store failed; retry or reconfigure.
	KindTransientStore
	// KindDurability: a local store write failed; logged and retried later.
	KindDurability
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindPermission:
		return "permission"
	case KindTransientStore:
		return "transient_store"
	case KindDurability:
		return "durability"
	default:
		return "unknown"
	}
}

type kinded interface {
	Kind() Kind
}

// KindOf walks the wrap chain and returns the first classified kind.
func KindOf(err error) Kind {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// DuplicateGuildError: a guild with this snowflake is already registered.
type DuplicateGuildError struct {
	Snowflake string
}

func (e *DuplicateGuildError) Error() string {
	return fmt.Sprintf("guild %s is already registered", e.Snowflake)
}

func (e *DuplicateGuildError) Kind() Kind { return KindValidation }

// NotFoundError: no guild with this snowflake is registered.
type NotFoundError struct {
	Snowflake string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("guild %s is not registered", e.Snowflake)
}

func (e *NotFoundError) Kind() Kind { return KindConfiguration }

// NoCredentialsError: the guild has not configured an external database yet.
type NoCredentialsError struct {
	Snowflake string
}

func (e *NoCredentialsError) Error() string {
	return fmt.Sprintf("guild %s has no database configured", e.Snowflake)
}

func (e *NoCredentialsError) Kind() Kind { return KindConfiguration }

// MissingRoleError: setadmin was invoked without a role and the member has none.
type MissingRoleError struct {
	UserID string
}

func (e *MissingRoleError) Error() string {
	return fmt.Sprintf("member %s has no role that could be used as the admin role", e.UserID)
}

func (e *MissingRoleError) Kind() Kind { return KindConfiguration }

// IdentifierFormatError: the player identifier does not match steam:<alnum>.
type IdentifierFormatError struct {
	Identifier string
}

func (e *IdentifierFormatError) Error() string {
	return fmt.Sprintf("invalid player identifier %q, expected steam:<alphanumeric>", e.Identifier)
}

func (e *IdentifierFormatError) Kind() Kind { return KindValidation }

// UsageError: fewer arguments than the command requires.
type UsageError struct {
	Command  string
	Required int
	Given    int
	Usage    string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("command %s needs %d argument(s), got %d", e.Command, e.Required, e.Given)
}

func (e *UsageError) Kind() Kind { return KindValidation }

// DuplicateEntryError: the identifier is already whitelisted.
type DuplicateEntryError struct {
	Identifier string
	Cause      error
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("player %s is already whitelisted", e.Identifier)
}

func (e *DuplicateEntryError) Unwrap() error { return e.Cause }

func (e *DuplicateEntryError) Kind() Kind { return KindValidation }

// PermissionError: the invoking member lacks the guild's admin role.
type PermissionError struct {
	Command      string
	RequiredRole string
	Reason       string
}

func (e *PermissionError) Error() string {
	if e.RequiredRole == "" {
		return fmt.Sprintf("permission denied for %s: %s", e.Command, e.Reason)
	}
	return fmt.Sprintf("permission denied for %s: role %q required", e.Command, e.RequiredRole)
}

func (e *PermissionError) Kind() Kind { return KindPermission }

// DbConnectError: the guild's external database could not be reached or
// refused the credentials. Message carries the driver's text.
type DbConnectError struct {
	Snowflake string
	Host      string
	Cause     error
}

func (e *DbConnectError) Error() string {
	return fmt.Sprintf("could not connect to database %s for guild %s: %v", e.Host, e.Snowflake, e.Cause)
}

func (e *DbConnectError) Unwrap() error { return e.Cause }

func (e *DbConnectError) Kind() Kind { return KindTransientStore }

// StoreError: a query against an established external connection failed.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("whitelist %s failed: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

func (e *StoreError) Kind() Kind { return KindTransientStore }

// DurabilityWarning: a local store write failed; the in-memory state is still
// authoritative and the next persister sweep retries.
type DurabilityWarning struct {
	Snowflake string
	Op        string
	Cause     error
}

func (e *DurabilityWarning) Error() string {
	return fmt.Sprintf("failed to persist %s for guild %s: %v", e.Op, e.Snowflake, e.Cause)
}

func (e *DurabilityWarning) Unwrap() error { return e.Cause }

func (e *DurabilityWarning) Kind() Kind { return KindDurability }

// IsPermission reports whether err is a permission rejection.
func IsPermission(err error) bool { return KindOf(err) == KindPermission }

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsConfiguration reports whether err asks for prior configuration.
func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }

// IsTransientStore reports whether err came from an unreachable or failing external store.
func IsTransientStore(err error) bool { return KindOf(err) == KindTransientStore }
