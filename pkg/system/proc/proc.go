//go:build linux

package proc

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ja7ad/ecotrace/pkg/types"
)

const defaultRoot = "/proc"

// ClockTicks returns the number of jiffies (clock ticks) per second.
// It first checks the env var CLK_TCK (useful for testing), otherwise
// falls back to 100 (common default).
//
// Note: On real systems, the authoritative way is `sysconf(_SC_CLK_TCK)`,
// but calling that requires cgo.
func ClockTicks() int {
	v, _ := strconv.Atoi(os.Getenv("CLK_TCK"))
	if v > 0 {
		return v
	}
	return 100
}

// PageSize returns the system memory page size in bytes.
// Like ClockTicks, it first checks an env override (PAGE_SIZE)
// to ease testing, then falls back to os.Getpagesize().
func PageSize() int {
	if ps := os.Getenv("PAGE_SIZE"); ps != "" {
		if v, _ := strconv.Atoi(ps); v > 0 {
			return v
		}
	}
	return os.Getpagesize()
}

// Stat holds the /proc/<pid>/stat fields the lister needs.
type Stat struct {
	PID       int
	Comm      string
	State     string
	UTime     uint64 // user CPU jiffies
	STime     uint64 // system CPU jiffies
	StartTime uint64 // jiffies after boot
}

// readStat parses <root>/<pid>/stat.
func readStat(root string, pid int) (Stat, error) {
	b, err := os.ReadFile(filepath.Join(root, strconv.Itoa(pid), "stat"))
	if err != nil {
		return Stat{}, err
	}
	return parseStat(strings.TrimSpace(string(b)))
}

// parseStat decodes one stat line.
//
// Caveats:
//   - comm (2nd field) is in parens and may contain spaces or parens. It
//     spans from the first "(" to the last ") ".
//   - Field indexes below are relative to the slice after comm, so overall
//     field N lives at index N-3.
func parseStat(line string) (Stat, error) {
	open := strings.IndexByte(line, '(')
	i := strings.LastIndex(line, ") ")
	if open < 0 || i < open {
		return Stat{}, ErrNoStat
	}
	pid, err := strconv.Atoi(strings.TrimSpace(line[:open]))
	if err != nil {
		return Stat{}, fmt.Errorf("%w: pid: %v", ErrNoStat, err)
	}
	fields := strings.Fields(line[i+2:])

	get := func(idx int) (uint64, error) {
		if idx >= len(fields) {
			return 0, ErrShortStat
		}
		return strconv.ParseUint(fields[idx], 10, 64)
	}

	st := Stat{PID: pid, Comm: line[open+1 : i]}
	if len(fields) > 0 {
		st.State = fields[0]
	}
	// utime (14th overall) => fields[11]
	// stime (15th overall) => fields[12]
	// starttime (22nd overall) => fields[19]
	if st.UTime, err = get(11); err != nil {
		return Stat{}, err
	}
	if st.STime, err = get(12); err != nil {
		return Stat{}, err
	}
	if st.StartTime, err = get(19); err != nil {
		return Stat{}, err
	}
	return st, nil
}

// readComm returns the short process name from <root>/<pid>/comm, or
// "unknown" when it cannot be read.
func readComm(root string, pid int) string {
	b, err := os.ReadFile(filepath.Join(root, strconv.Itoa(pid), "comm"))
	if err != nil {
		return UnknownName
	}
	name := strings.TrimSpace(string(b))
	if name == "" {
		return UnknownName
	}
	return name
}

// readRSS returns the Resident Set Size (RSS) for a PID.
// It prefers smaps_rollup (aggregated, since kernel 4.14) for accuracy.
// If unavailable, falls back to statm's resident page count.
func readRSS(root string, pid int) (types.Bytes, error) {
	dir := filepath.Join(root, strconv.Itoa(pid))
	if f, err := os.Open(filepath.Join(dir, "smaps_rollup")); err == nil {
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if strings.HasPrefix(sc.Text(), "Rss:") {
				fs := strings.Fields(sc.Text())
				if len(fs) >= 2 {
					kb, _ := strconv.ParseUint(fs[1], 10, 64)
					return types.FromKB(kb), nil
				}
			}
		}
	}
	// Fallback: statm field 2 × page size
	if b, err := os.ReadFile(filepath.Join(dir, "statm")); err == nil {
		fs := strings.Fields(string(b))
		if len(fs) >= 2 {
			pages, _ := strconv.ParseUint(fs[1], 10, 64)
			return types.Bytes(pages * uint64(PageSize())), nil
		}
	}
	return 0, ErrNoRSS
}

// readUptime returns seconds since boot from <root>/uptime.
func readUptime(root string) (float64, error) {
	b, err := os.ReadFile(filepath.Join(root, "uptime"))
	if err != nil {
		return 0, err
	}
	fs := strings.Fields(string(b))
	if len(fs) == 0 {
		return 0, ErrNoUptime
	}
	v, err := strconv.ParseFloat(fs[0], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoUptime, err)
	}
	return v, nil
}

// readMemTotal returns MemTotal from <root>/meminfo.
func readMemTotal(root string) (types.Bytes, error) {
	f, err := os.Open(filepath.Join(root, "meminfo"))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fs := strings.Fields(line)
		if len(fs) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fs[1], 10, 64)
		if err != nil || kb == 0 {
			break
		}
		return types.FromKB(kb), nil
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, ErrNoMemTotal
}

// listPIDs returns every numeric entry under root.
func listPIDs(root string) ([]int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	pids := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}
