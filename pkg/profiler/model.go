package profiler

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Resource is the hardware subsystem the profiler measures. Values are the
// profiler's own flag names and are stored verbatim as resource_type.
type Resource string

const (
	CPU     Resource = "cpu"
	RAM     Resource = "ram"
	GPU     Resource = "gpu"
	Storage Resource = "sd"
	Network Resource = "nic"
)

// Resources lists every supported resource in a stable order.
var Resources = []Resource{CPU, RAM, GPU, Storage, Network}

// ParseResource accepts a flag name or one of the long aliases
// ("storage", "network"), case-insensitively.
func ParseResource(s string) (Resource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return CPU, nil
	case "ram", "memory":
		return RAM, nil
	case "gpu":
		return GPU, nil
	case "sd", "storage", "disk":
		return Storage, nil
	case "nic", "network":
		return Network, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResource, s)
}

// ParseResources parses a comma separated list, dropping duplicates.
func ParseResources(s string) ([]Resource, error) {
	var out []Resource
	seen := make(map[Resource]struct{})
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		r, err := ParseResource(part)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, ErrNoResources
	}
	return out, nil
}

// Valid reports whether r is one of the known resources.
func (r Resource) Valid() bool {
	switch r {
	case CPU, RAM, GPU, Storage, Network:
		return true
	}
	return false
}

func (r Resource) String() string { return string(r) }

// Request describes one profiler invocation.
type Request struct {
	PID           int
	Resource      Resource
	Interval      time.Duration // sampling interval inside the profiler
	Duration      time.Duration // total measurement time
	TimeoutBuffer time.Duration // slack on top of Duration before escalation
}

// Validate rejects requests the profiler cannot run.
func (r Request) Validate() error {
	switch {
	case r.PID <= 0:
		return fmt.Errorf("%w: pid %d", ErrInvalidRequest, r.PID)
	case !r.Resource.Valid():
		return fmt.Errorf("%w: %q", ErrUnknownResource, r.Resource)
	case r.Interval < time.Millisecond:
		return fmt.Errorf("%w: interval %s", ErrInvalidRequest, r.Interval)
	case r.Duration < time.Second:
		return fmt.Errorf("%w: duration %s", ErrInvalidRequest, r.Duration)
	case r.TimeoutBuffer < 0:
		return fmt.Errorf("%w: timeout buffer %s", ErrInvalidRequest, r.TimeoutBuffer)
	}
	return nil
}

// Deadline is how long the profiler may run before it is terminated.
func (r Request) Deadline() time.Duration { return r.Duration + r.TimeoutBuffer }

// MetricRecord is one "Name: value unit" line of profiler output.
type MetricRecord struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"` // empty when the line had no unit
}

// Outcome is the result of sampling one (process, resource) pair.
type Outcome struct {
	CycleID       uuid.UUID      `json:"cycle_id"`
	PID           int            `json:"pid"`
	Resource      Resource       `json:"resource"`
	ProcessName   string         `json:"process_name"`
	CPUPercent    float64        `json:"cpu_percent"`
	MemoryPercent float64        `json:"memory_percent"`
	RawOutput     string         `json:"raw_output,omitempty"`
	Metrics       []MetricRecord `json:"metrics"`
	Err           error          `json:"-"`
	StartedAt     time.Time      `json:"started_at"`
	Elapsed       time.Duration  `json:"elapsed"`
}

// OK reports whether the sample succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// ErrString returns Err as a string, or "" on success.
func (o Outcome) ErrString() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// MarshalJSON adds Err as "error" so a failed sample never encodes like an
// empty success.
func (o Outcome) MarshalJSON() ([]byte, error) {
	type outcome Outcome
	return json.Marshal(struct {
		outcome
		Error string `json:"error,omitempty"`
	}{outcome(o), o.ErrString()})
}
