package domain

import "errors"

// Sentinel errors classifying every failure the core can surface. Callers
// test them with errors.Is; wrapping preserves the class through fmt.Errorf.
var (
	// ErrAuthExpired means the remote credential is invalid or expired. It is
	// never retried locally; the caller must re-authenticate.
	ErrAuthExpired = errors.New("remote credential expired")

	// ErrRateLimited is returned by the remote store when requests come too
	// fast. Retried with exponential backoff up to a bounded attempt count.
	ErrRateLimited = errors.New("remote rate limit exceeded")

	// ErrNetworkTransient covers timeouts and connection resets. Retried with
	// linear backoff.
	ErrNetworkTransient = errors.New("transient network failure")

	// ErrTableMissing means the remote table does not exist yet. Tables are
	// created lazily, so reads treat this as an empty result, not a failure.
	ErrTableMissing = errors.New("remote table missing")

	// ErrValidation rejects a mutation synchronously with no side effects.
	ErrValidation = errors.New("validation failed")

	// ErrClosedPeriod is a validation failure against an immutable period.
	ErrClosedPeriod = errors.New("period is closed")

	// ErrConflictOnDelete means a remote delete failed after the local delete
	// already happened; the orchestrator restores the record locally.
	ErrConflictOnDelete = errors.New("remote delete failed")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

// Kind is the coarse classification of a failure, for callers that switch
// on the class rather than testing each sentinel.
type Kind string

const (
	KindAuthExpired      Kind = "auth_expired"
	KindRateLimited      Kind = "rate_limited"
	KindNetworkTransient Kind = "network_transient"
	KindTableMissing     Kind = "table_missing"
	KindValidation       Kind = "validation"
	KindClosedPeriod     Kind = "closed_period"
	KindConflictOnDelete Kind = "conflict_on_delete"
	KindNotFound         Kind = "not_found"
	KindUnknown          Kind = "unknown"
)

// Classify maps an error onto its Kind. ErrClosedPeriod classifies as its
// own kind even though it is also a validation failure.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrClosedPeriod):
		return KindClosedPeriod
	case errors.Is(err, ErrAuthExpired):
		return KindAuthExpired
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrNetworkTransient):
		return KindNetworkTransient
	case errors.Is(err, ErrTableMissing):
		return KindTableMissing
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflictOnDelete):
		return KindConflictOnDelete
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindUnknown
	}
}

// Retryable reports whether the throttle controller may retry the error.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetworkTransient)
}
