package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for callers that translate it into a transport
// response.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindStorage     Kind = "storage"
	KindConfig      Kind = "config"
	KindAuth        Kind = "auth"
	KindRateLimited Kind = "rate_limited"
)

// Error is the unified error type for the triage service.
// Each error has a numeric code, a kind and a human-readable message.
type Error struct {
	Code    int
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("triage error %d: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("triage error %d: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, ErrCaseNotFound) holds for errors derived from the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError derives an error from a sentinel with a more specific message.
func NewError(base *Error, msg string) *Error {
	return &Error{Code: base.Code, Kind: base.Kind, Message: msg}
}

// WrapError derives an error from a sentinel that carries a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{Code: base.Code, Kind: base.Kind, Message: base.Message, Cause: cause}
}

// ---- Validation errors (-32010 to -32039) ----

var (
	ErrValidation       = &Error{Code: -32010, Kind: KindValidation, Message: "validation failed"}
	ErrEmptyPatch       = &Error{Code: -32011, Kind: KindValidation, Message: "patch contains no fields"}
	ErrInvalidEnum      = &Error{Code: -32012, Kind: KindValidation, Message: "unrecognized enum value"}
	ErrInvalidTimestamp = &Error{Code: -32013, Kind: KindValidation, Message: "timestamp is not RFC 3339"}
	ErrNegativeDuration = &Error{Code: -32014, Kind: KindValidation, Message: "duration must not be negative"}
	ErrMissingEditor    = &Error{Code: -32015, Kind: KindValidation, Message: "editor identity is required"}
	ErrInvalidInput     = &Error{Code: -32016, Kind: KindValidation, Message: "invalid triage input"}
)

// ---- Lookup errors (-32040 to -32069) ----

var (
	ErrCaseNotFound = &Error{Code: -32040, Kind: KindNotFound, Message: "case not found"}
)

// ---- Store / Ledger errors (-32130 to -32159) ----

var (
	ErrStoreInit       = &Error{Code: -32130, Kind: KindStorage, Message: "failed to initialize store"}
	ErrStoreQuery      = &Error{Code: -32131, Kind: KindStorage, Message: "store query failed"}
	ErrStoreWrite      = &Error{Code: -32132, Kind: KindStorage, Message: "store write failed"}
	ErrSchemaMigration = &Error{Code: -32133, Kind: KindStorage, Message: "schema migration failed"}
	ErrLedgerTampered  = &Error{Code: -32134, Kind: KindStorage, Message: "change ledger hash chain broken"}
	ErrImportFailed    = &Error{Code: -32135, Kind: KindStorage, Message: "legacy import failed"}
)

// ---- Config errors (-32160 to -32189) ----

var (
	ErrConfigInvalid  = &Error{Code: -32160, Kind: KindConfig, Message: "invalid configuration"}
	ErrRuleSetInvalid = &Error{Code: -32161, Kind: KindConfig, Message: "invalid rule set"}
)

// ---- Access errors (-32100 to -32129) ----

var (
	ErrUnauthenticated   = &Error{Code: -32100, Kind: KindAuth, Message: "actor identity required"}
	ErrRateLimitExceeded = &Error{Code: -32103, Kind: KindRateLimited, Message: "rate limit exceeded"}
)

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsValidation reports whether err is a caller-facing validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound reports whether err reports a missing case.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsStorage reports whether err is an infrastructure failure.
func IsStorage(err error) bool { return KindOf(err) == KindStorage }
