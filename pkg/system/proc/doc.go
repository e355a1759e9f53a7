// Package proc discovers running processes and ranks them by CPU usage so
// that the most active ones can be handed to the energy profiler.
//
// # Listers
//
// Lister is the single entry point:
//
//	TopProcesses(ctx context.Context, limit int) ([]Process, error)
//
// Two implementations are provided:
//
//   - ProcfsLister (default) walks /proc directly. For every numeric entry it
//     reads comm, stat (utime, stime, starttime) and the resident set size,
//     and derives
//
//     %cpu = (utime+stime)/CLK_TCK / (uptime - starttime/CLK_TCK) * 100
//     %mem = RSS / MemTotal * 100
//
//     which is the same lifetime-average definition `ps` uses. Processes that
//     exit during the walk are skipped silently. The lister's own PID is never
//     returned.
//
//   - PSLister shells out to `ps axo pid,comm,%cpu,%mem --sort=-%cpu` through
//     the bounded command runner (pkg/system/command). Rows belonging to the
//     ps helper itself are dropped.
//
// Both implementations sort by CPU descending (PID ascending on ties) and
// truncate to limit.
//
// # Errors
//
// When processes cannot be enumerated at all, listers return an empty slice
// and an error wrapping ErrListingUnavailable. Callers are expected to
// degrade ("nothing to sample this cycle") rather than abort.
//
// # Tunables
//
// ClockTicks and PageSize honour the CLK_TCK and PAGE_SIZE environment
// variables to ease testing.
package proc
