package proc

import (
	"context"
	"sort"

	"github.com/ja7ad/ecotrace/pkg/types"
)

// UnknownName is reported when a process name cannot be read.
const UnknownName = "unknown"

// Process is a point-in-time view of one running process.
type Process struct {
	PID           int         `json:"pid"`
	Name          string      `json:"name"`
	CPUPercent    float64     `json:"cpu_percent"`
	MemoryPercent float64     `json:"memory_percent"`
	RSS           types.Bytes `json:"rss_bytes,omitempty"` // 0 when the lister does not report it
}

// Lister returns the most CPU-active processes, at most limit of them.
type Lister interface {
	TopProcesses(ctx context.Context, limit int) ([]Process, error)
}

// rank sorts by CPU descending, PID ascending on ties, and truncates to limit.
func rank(ps []Process, limit int) []Process {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].CPUPercent != ps[j].CPUPercent {
			return ps[i].CPUPercent > ps[j].CPUPercent
		}
		return ps[i].PID < ps[j].PID
	})
	if len(ps) > limit {
		ps = ps[:limit]
	}
	return ps
}
