package workflow

import "errors"

var (
	// ErrNotFound covers execution and definition lookup misses.
	ErrNotFound = errors.New("not found")

	// ErrStateConflict covers lifecycle operations applied in an
	// incompatible state, e.g. pausing a completed execution.
	ErrStateConflict = errors.New("state conflict")
)
