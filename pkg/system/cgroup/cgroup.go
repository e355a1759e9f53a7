//go:build linux

// Package cgroup reports which cgroup hierarchy the host runs, for the
// system inventory.
package cgroup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

type Version int

const (
	Unsupported Version = iota // non-Linux or no cgroup mounts
	V1                         // legacy multi-hierarchy cgroup v1
	V2                         // unified cgroup v2
	Hybrid                     // both v1 and v2 present
)

func (v Version) String() string {
	switch v {
	case V1:
		return "cgroup v1"
	case V2:
		return "cgroup v2"
	case Hybrid:
		return "cgroup hybrid"
	default:
		return "unsupported"
	}
}

// MarshalText renders the version for JSON output.
func (v Version) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// Info describes the cgroup setup seen by this process.
type Info struct {
	Version  Version  `json:"version"`
	V1Mounts []string `json:"v1_mounts,omitempty"`
	V2Mounts []string `json:"v2_mounts,omitempty"`
	// Path is this process's cgroup v2 path ("/" on the host), empty on v1.
	Path string `json:"path,omitempty"`
}

// Detail is a human-readable one-liner.
func (i Info) Detail() string {
	switch i.Version {
	case Hybrid:
		return fmt.Sprintf("cgroup2 on %v; cgroup v1 on %v",
			strings.Join(i.V2Mounts, ","), strings.Join(i.V1Mounts, ","))
	case V2:
		return fmt.Sprintf("cgroup2 on %v", strings.Join(i.V2Mounts, ","))
	case V1:
		return fmt.Sprintf("cgroup v1 on %v", strings.Join(i.V1Mounts, ","))
	default:
		return "no cgroup mounts found"
	}
}

// Detect inspects /proc/self/mountinfo and /proc/self/cgroup.
func Detect() (Info, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return Info{}, fmt.Errorf("open mountinfo: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := DetectFrom(f)
	if err != nil {
		return Info{}, err
	}
	if b, err := os.ReadFile("/proc/self/cgroup"); err == nil {
		info.Path = unifiedPath(string(b))
	}
	return info, nil
}

// DetectFrom parses mountinfo content.
//
// The line format has a " - fstype " separator; we only care about fstype
// and the mount point (field 5 of the pre-separator part, see man 5 proc).
func DetectFrom(r io.Reader) (Info, error) {
	var (
		info Info
		sc   = bufio.NewScanner(r)
	)
	for sc.Scan() {
		line := sc.Text()
		const sep = " - "
		i := strings.LastIndex(line, sep)
		if i < 0 {
			continue
		}
		fields := strings.Fields(line[i+len(sep):])
		if len(fields) < 1 {
			continue
		}
		pre := strings.Fields(line[:i])
		if len(pre) < 5 {
			continue
		}
		switch fields[0] {
		case "cgroup2":
			info.V2Mounts = append(info.V2Mounts, pre[4])
		case "cgroup":
			info.V1Mounts = append(info.V1Mounts, pre[4])
		}
	}
	if err := sc.Err(); err != nil {
		return Info{}, fmt.Errorf("scan mountinfo: %w", err)
	}

	switch {
	case len(info.V1Mounts) > 0 && len(info.V2Mounts) > 0:
		info.Version = Hybrid
	case len(info.V2Mounts) > 0:
		info.Version = V2
	case len(info.V1Mounts) > 0:
		info.Version = V1
	}
	return info, nil
}

// unifiedPath picks the "0::<path>" entry of /proc/self/cgroup.
func unifiedPath(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if p, ok := strings.CutPrefix(strings.TrimSpace(line), "0::"); ok {
			return p
		}
	}
	return ""
}
