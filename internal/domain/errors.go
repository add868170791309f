package domain

import "errors"

// Sentinel errors shared across the module. Check with errors.Is.
var (
	// ErrInvalidArgument marks a caller or data bug: a malformed grade or
	// filter, a non-positive limit, or an input state violating the
	// scheduling invariants. Never retried.
	ErrInvalidArgument = errors.New("recallkit: invalid argument")

	// ErrConflict is returned by storage when a concurrent write to the
	// same memory state is detected. The caller should re-read the state
	// and retry the whole read-compute-write cycle.
	ErrConflict = errors.New("recallkit: write conflict")

	// ErrNotFound is returned by storage when the requested record does
	// not exist.
	ErrNotFound = errors.New("recallkit: not found")
)
