package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrNoToken indicates that no Electricity Maps token was configured.
	ErrNoToken = errors.New("grid: missing auth token")

	// ErrNoZone indicates an empty zone code.
	ErrNoZone = errors.New("grid: missing zone")

	// ErrAPI is wrapped by every non-200 response.
	ErrAPI = errors.New("grid: api error")
)

// APIError carries a non-200 response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%v %d: %s", ErrAPI, e.Status, e.Body)
}

func (e *APIError) Unwrap() error { return ErrAPI }
