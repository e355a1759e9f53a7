//go:build linux

package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/ja7ad/ecotrace/pkg/consumption"
	"github.com/ja7ad/ecotrace/pkg/profiler"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#7DCE13"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00"))
	dangerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// status renders the outcome state. Styled text goes in the last column so
// escape codes do not disturb tabwriter alignment.
func status(out profiler.Outcome) string {
	switch {
	case out.OK():
		return okStyle.Render("ok")
	case errors.Is(out.Err, profiler.ErrTimeout):
		return warnStyle.Render("timeout")
	default:
		return dangerStyle.Render(out.ErrString())
	}
}

// metricSum adds every metric whose name matches f.
func metricSum(ms []profiler.MetricRecord, f consumption.Filter) (float64, bool) {
	var (
		sum   float64
		found bool
	)
	for _, m := range ms {
		if f(m.Name) {
			sum += m.Value
			found = true
		}
	}
	return sum, found
}

func fmtOptional(v float64, ok bool, verb string) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf(verb, v)
}
