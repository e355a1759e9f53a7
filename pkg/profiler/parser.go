package profiler

import (
	"bufio"
	"math"
	"strconv"
	"strings"
)

// framing prefixes mark banner, separator and log lines that may contain a
// colon but never carry a metric.
var framing = []string{"[", "***", "---", "==="}

// Parse extracts metric records from the profiler's text report. Lines of the
// form
//
//	name ":" SP* number (SP+ unit)?
//
// become records in input order. The value is the first whitespace-separated
// token and must parse as a float in full; every other line is dropped. It
// never fails and returns an empty, non-nil slice for empty input.
func Parse(raw string) []MetricRecord {
	out := make([]MetricRecord, 0, 4)
	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if rec, ok := parseLine(sc.Text()); ok {
			out = append(out, rec)
		}
	}
	return out
}

func parseLine(line string) (MetricRecord, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return MetricRecord{}, false
	}
	for _, p := range framing {
		if strings.HasPrefix(line, p) {
			return MetricRecord{}, false
		}
	}

	name, rest, ok := strings.Cut(line, ":")
	if !ok {
		return MetricRecord{}, false
	}
	name = strings.TrimSpace(name)
	rest = strings.TrimSpace(rest)
	if name == "" || rest == "" {
		return MetricRecord{}, false
	}

	fields := strings.Fields(rest)
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return MetricRecord{}, false
	}

	return MetricRecord{
		Name:  name,
		Value: v,
		Unit:  strings.Join(fields[1:], " "),
	}, true
}
