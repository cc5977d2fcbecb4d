// Package shared holds cross-cutting primitives: the error taxonomy, the
// audit logger and request-scoped helpers used by every workflow module.
package shared

import "errors"

// Error taxonomy surfaced to callers. Domain packages wrap these with their
// own context so errors.Is keeps working across package boundaries. Anything
// not in the taxonomy is treated as a storage failure: the transaction is
// rolled back and the caller sees a generic error.
var (
	// ErrValidation indicates rejected input (non-positive amount, missing
	// delivery note, unknown reference).
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates a transition whose precondition status no
	// longer matches. Re-invoking a finished transition fails loudly with
	// this error rather than silently re-applying.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrNotFound indicates the referenced entity or actor does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the actor lacks the required module access.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated indicates no actor identity on the request.
	ErrUnauthenticated = errors.New("unauthenticated")
)
