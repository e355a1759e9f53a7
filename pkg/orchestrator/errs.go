package orchestrator

import "errors"

var (
	// ErrNoProcesses indicates that the listing succeeded but returned nothing
	// to sample. The cycle completes with zero outcomes.
	ErrNoProcesses = errors.New("orchestrator: no processes to sample")

	// ErrPanic is attached to outcomes whose task panicked.
	ErrPanic = errors.New("orchestrator: sampling task panicked")
)
