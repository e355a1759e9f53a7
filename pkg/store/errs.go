package store

import "errors"

var (
	// ErrPersistence wraps every database failure.
	ErrPersistence = errors.New("store: persistence failure")

	// ErrNotFound indicates that a lookup matched no row.
	ErrNotFound = errors.New("store: not found")

	// ErrNoPath indicates an empty database path.
	ErrNoPath = errors.New("store: empty database path")
)
