//go:build linux

package proc

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// ProcfsLister reads process information straight from /proc.
type ProcfsLister struct {
	root string
	self int
}

// NewProcfsLister returns a lister over the real /proc.
func NewProcfsLister() *ProcfsLister {
	return &ProcfsLister{root: defaultRoot, self: os.Getpid()}
}

// TopProcesses implements Lister.
func (l *ProcfsLister) TopProcesses(ctx context.Context, limit int) ([]Process, error) {
	if limit <= 0 {
		return []Process{}, ErrBadLimit
	}

	pids, err := listPIDs(l.root)
	if err != nil {
		return []Process{}, fmt.Errorf("%w: %v", ErrListingUnavailable, err)
	}

	uptime, err := readUptime(l.root)
	if err != nil {
		// Containers sometimes mask /proc/uptime.
		var si unix.Sysinfo_t
		if serr := unix.Sysinfo(&si); serr != nil {
			return []Process{}, fmt.Errorf("%w: uptime: %v", ErrListingUnavailable, err)
		}
		uptime = float64(si.Uptime)
	}
	memTotal, _ := readMemTotal(l.root)

	hz := float64(ClockTicks())
	maxCPU := float64(100 * runtime.NumCPU())

	out := make([]Process, 0, len(pids))
	for _, pid := range pids {
		if err := ctx.Err(); err != nil {
			return []Process{}, fmt.Errorf("%w: %v", ErrListingUnavailable, err)
		}
		if pid == l.self {
			continue
		}
		st, err := readStat(l.root, pid)
		if err != nil {
			// Gone between ReadDir and now.
			continue
		}

		p := Process{PID: pid, Name: readComm(l.root, pid)}
		if p.Name == UnknownName && st.Comm != "" {
			p.Name = st.Comm
		}

		elapsed := uptime - float64(st.StartTime)/hz
		cpuSec := float64(st.UTime+st.STime) / hz
		p.CPUPercent = clampPercent(safeDiv(cpuSec, elapsed)*100, maxCPU)

		// Kernel threads have no RSS; keep them at 0%.
		if rss, err := readRSS(l.root, pid); err == nil {
			p.RSS = rss
			p.MemoryPercent = clampPercent(safeDiv(float64(rss), float64(memTotal))*100, 100)
		}
		out = append(out, p)
	}
	return rank(out, limit), nil
}
