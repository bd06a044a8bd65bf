package core

import "errors"

var (
	// ErrNotFound is returned by DocumentStore backends when no record is
	// stored under the requested key.
	ErrNotFound = errors.New("record not found")

	// ErrAccountNotFound signals an unknown account identifier.
	ErrAccountNotFound = errors.New("account not found")

	// ErrSessionNotFound signals an unknown session key.
	ErrSessionNotFound = errors.New("session not found")

	// ErrForbidden signals a session key not owned by the acting account.
	ErrForbidden = errors.New("session not owned by account")

	// ErrInvalidTransition signals a lifecycle operation applied to a
	// session in the wrong state, e.g. resume on a non-paused session.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrStoreUnavailable wraps backend failures. It propagates up as a
	// fatal request failure; writes are never silently dropped.
	ErrStoreUnavailable = errors.New("durable store unavailable")
)
