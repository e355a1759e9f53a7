//go:build linux

package proc

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ja7ad/ecotrace/pkg/system/command"
)

// DefaultPSTimeout bounds a single ps invocation.
const DefaultPSTimeout = 10 * time.Second

// PSLister lists processes by running ps.
type PSLister struct {
	Path    string        // defaults to "ps"
	Timeout time.Duration // defaults to DefaultPSTimeout
}

// NewPSLister returns a PSLister using ps from PATH.
func NewPSLister() *PSLister {
	return &PSLister{Path: "ps", Timeout: DefaultPSTimeout}
}

// TopProcesses implements Lister.
func (l *PSLister) TopProcesses(ctx context.Context, limit int) ([]Process, error) {
	if limit <= 0 {
		return []Process{}, ErrBadLimit
	}
	path, timeout := l.Path, l.Timeout
	if path == "" {
		path = "ps"
	}
	if timeout <= 0 {
		timeout = DefaultPSTimeout
	}

	res, err := command.Run(ctx, command.Spec{
		Path:    path,
		Args:    []string{"axo", "pid,comm,%cpu,%mem", "--sort=-%cpu"},
		Timeout: timeout,
	})
	if err != nil {
		return []Process{}, fmt.Errorf("%w: %v", ErrListingUnavailable, err)
	}
	if !res.Completed() || res.ExitCode != 0 {
		return []Process{}, fmt.Errorf("%w: ps exit=%d timed_out=%t: %s",
			ErrListingUnavailable, res.ExitCode, res.TimedOut, strings.TrimSpace(string(res.Stderr)))
	}

	return rank(parsePS(res.Stdout, res.PID), limit), nil
}

// parsePS decodes `ps axo pid,comm,%cpu,%mem` output. The header row, the
// ps helper itself (by name or by helperPID) and malformed rows are skipped.
// comm may contain spaces, so the numeric columns are taken from the end.
func parsePS(out []byte, helperPID int) []Process {
	procs := make([]Process, 0, 16)
	sc := bufio.NewScanner(bytes.NewReader(out))
	header := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if header {
			header = false
			if strings.HasPrefix(line, "PID") {
				continue
			}
		}
		fs := strings.Fields(line)
		if len(fs) < 4 {
			continue
		}
		pid, err := strconv.Atoi(fs[0])
		if err != nil || pid <= 0 || pid == helperPID {
			continue
		}
		cpu, err1 := strconv.ParseFloat(fs[len(fs)-2], 64)
		mem, err2 := strconv.ParseFloat(fs[len(fs)-1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		name := strings.Join(fs[1:len(fs)-2], " ")
		if name == "ps" {
			continue
		}
		procs = append(procs, Process{
			PID:           pid,
			Name:          name,
			CPUPercent:    cpu,
			MemoryPercent: mem,
		})
	}
	return procs
}
