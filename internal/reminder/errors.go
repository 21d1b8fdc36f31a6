package reminder

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by repositories for an id that does not exist.
	ErrNotFound = errors.New("reminder not found")

	// ErrWrongKind is returned when a completion use-case is applied to the
	// wrong kind of reminder (one-time vs recurring).
	ErrWrongKind = errors.New("wrong reminder kind for operation")
)

// ValidationError describes input rejected before a use-case runs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func notFound(id int64) error {
	return fmt.Errorf("reminder %d: %w", id, ErrNotFound)
}
