package proc

import "errors"

var (
	// ErrListingUnavailable indicates that processes could not be enumerated
	// at all (tool missing, /proc unreadable, permission denied). Callers
	// treat it as "nothing to sample", not as a fatal error.
	ErrListingUnavailable = errors.New("proc: process listing unavailable")

	// ErrNoStat indicates that /proc/<pid>/stat was empty or malformed.
	ErrNoStat = errors.New("proc: malformed or empty stat")

	// ErrShortStat indicates that /proc/<pid>/stat had fewer fields than expected.
	ErrShortStat = errors.New("proc: short stat")

	// ErrNoRSS indicates that resident set size could not be determined
	// (neither smaps_rollup nor statm succeeded).
	ErrNoRSS = errors.New("proc: no rss")

	// ErrNoUptime indicates that /proc/uptime could not be parsed.
	ErrNoUptime = errors.New("proc: no uptime")

	// ErrNoMemTotal indicates that /proc/meminfo had no MemTotal line.
	ErrNoMemTotal = errors.New("proc: no MemTotal")

	// ErrBadLimit indicates a non-positive listing limit.
	ErrBadLimit = errors.New("proc: limit must be > 0")
)
