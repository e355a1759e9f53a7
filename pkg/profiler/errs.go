package profiler

import (
	"errors"
	"fmt"
)

var (
	// ErrLaunch indicates that the profiler could not be started at all.
	ErrLaunch = errors.New("profiler: launch failed")

	// ErrToolFailure indicates that the profiler exited with a non-zero status.
	ErrToolFailure = errors.New("profiler: tool failure")

	// ErrTimeout indicates that the profiler outlived its deadline and was
	// terminated. Output captured before termination is kept.
	ErrTimeout = errors.New("profiler: timeout")

	// ErrCanceled indicates that the caller canceled the run while the
	// profiler was active.
	ErrCanceled = errors.New("profiler: canceled")

	// ErrUnknownResource indicates an unsupported resource name.
	ErrUnknownResource = errors.New("profiler: unknown resource")

	// ErrNoResources indicates an empty resource list.
	ErrNoResources = errors.New("profiler: no resources")

	// ErrInvalidRequest indicates a request with non-positive parameters.
	ErrInvalidRequest = errors.New("profiler: invalid request")
)

// SampleError describes why one sample failed. It matches its Kind (one of
// the sentinels above) and its Cause via errors.Is.
type SampleError struct {
	Kind     error
	PID      int
	Resource Resource
	ExitCode int
	// Diagnostic is stderr (or stdout when stderr was empty), trimmed.
	Diagnostic string
	// Partial is set on timeouts that still produced some output.
	Partial bool
	Cause   error
}

func (e *SampleError) Error() string {
	msg := fmt.Sprintf("%v: pid=%d resource=%s", e.Kind, e.PID, e.Resource)
	if e.Kind == ErrToolFailure {
		msg += fmt.Sprintf(" exit=%d", e.ExitCode)
	}
	if e.Partial {
		msg += " (partial output)"
	}
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SampleError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
