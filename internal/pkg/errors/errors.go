package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing records or blobs.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict reports a write rejected by a state guard (e.g. a terminal job).
	ErrConflict = errors.New("conflict")
)
