// Package apperr models the error kinds in every core operation's contract
// as a small sum type instead of ad-hoc sentinel errors scattered per
// package. Call sites construct an *Error with a Kind and propagate it by
// return value; only the HTTP layer translates Kind to a status code.
package apperr

import (
	"errors"
	"fmt"
)

// Kind enumerates the abstract error categories every operation can return.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindWeakPassword      Kind = "weak_password"
	KindInvalidCredential Kind = "invalid_credential"
	KindLoginLocked       Kind = "login_locked"
	KindExpired           Kind = "expired"
	KindBadSignature      Kind = "bad_signature"
	KindWrongType         Kind = "wrong_type"
	KindReplayDetected    Kind = "refresh_replay_detected"
	KindNotAuthenticated  Kind = "not_authenticated"
	KindNotAuthorized     Kind = "not_authorized"
	KindCrossTenant       Kind = "cross_tenant_access"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindDateInPast        Kind = "date_in_past"
	KindNoActivePeriod    Kind = "no_active_period"
	KindInviteInvalid     Kind = "invite_invalid"
	KindRateLimited       Kind = "rate_limited"
	KindTimeout           Kind = "timeout"
	KindStoredHashCorrupt Kind = "stored_hash_corrupt"
	KindAuditImmutable    Kind = "audit_immutable"
	KindInternal          Kind = "internal"
)

// ConflictSubtype distinguishes the Conflict kind's four subtypes named in
// the specification's error-handling design.
type ConflictSubtype string

const (
	ConflictOverlappingRequest ConflictSubtype = "overlapping_request"
	ConflictNotPending         ConflictSubtype = "not_pending"
	ConflictAllocationExceeded ConflictSubtype = "allocation_exceeded"
	ConflictDuplicateUniqueKey ConflictSubtype = "duplicate_unique_key"
)

// Error is the concrete error value every core operation returns.
type Error struct {
	Kind     Kind
	Subtype  ConflictSubtype // only meaningful when Kind == KindConflict
	Message  string
	Cause    error
	RetryFor int // seconds, only meaningful when Kind == KindRateLimited or KindLoginLocked
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a plain error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an error of the given kind around an underlying cause,
// typically used for KindInternal/KindTimeout at a storage boundary.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Conflict constructs a Conflict error carrying one of the named subtypes.
func Conflict(subtype ConflictSubtype, message string) *Error {
	return &Error{Kind: KindConflict, Subtype: subtype, Message: message}
}

// RateLimited constructs a RateLimited error carrying a Retry-After hint.
func RateLimited(retryAfterSeconds int) *Error {
	return &Error{Kind: KindRateLimited, Message: "rate limit exceeded", RetryFor: retryAfterSeconds}
}

// LoginLocked constructs a LoginLocked error carrying a Retry-After hint.
func LoginLocked(retryAfterSeconds int) *Error {
	return &Error{Kind: KindLoginLocked, Message: "account temporarily locked", RetryFor: retryAfterSeconds}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsConflict reports whether err is a Conflict of the given subtype.
func IsConflict(err error, subtype ConflictSubtype) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindConflict && e.Subtype == subtype
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindInternal for unmodeled
// errors (e.g. a raw driver error that escaped a boundary by mistake).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
