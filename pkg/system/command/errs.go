package command

import "errors"

var (
	// ErrNoPath indicates that Spec.Path was empty.
	ErrNoPath = errors.New("command: empty path")

	// ErrNoTimeout indicates that Spec.Timeout was not positive. Unbounded
	// waits are not supported.
	ErrNoTimeout = errors.New("command: timeout must be > 0")
)
