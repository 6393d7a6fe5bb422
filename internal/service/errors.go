package service

import (
	"database/sql"
	"errors"
	"fmt"
)

// Error taxonomy. Scheduling-engine failures never appear here: they are
// recovered inside the scheduler. Informational outcomes (already
// discovered, nothing to undo) are result flags, not errors.
var (
	// ErrNotFound marks an unknown item, skill or progress row.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput marks a malformed request rejected before any mutation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotDiscovered marks training or skill access on an item the user
	// has not discovered yet.
	ErrNotDiscovered = errors.New("item not discovered")
)

// notFound translates a store miss into ErrNotFound, preserving other errors.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return err
}
