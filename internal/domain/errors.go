package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repo and service functions when the requested
// record does not exist in the store.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. missing required field, rating set on an unvisited
// place). Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrStorage is returned when a commit could not be durably written (disk
// full, permissions, schema mismatch). The store remains in its last-good
// state; nothing from the failed commit is applied.
var ErrStorage = errors.New("storage error")

// ErrSyncUnavailable is returned by the sync engine when the remote service
// is unreachable or rejects the session. It only ever degrades the sync
// status indicator — local reads and writes keep working.
var ErrSyncUnavailable = errors.New("sync unavailable")

// ValidationError reports which field failed validation and why.
// It matches ErrValidation under errors.Is so callers can branch on the
// sentinel without caring about the concrete type.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
