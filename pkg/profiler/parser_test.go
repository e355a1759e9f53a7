package profiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = "Average Power : 12.5 Watts\nTotal Energy : 62.5 Joules\n"

func TestParse_WellFormed(t *testing.T) {
	got := Parse(sampleReport)
	assert.Equal(t, []MetricRecord{
		{Name: "Average Power", Value: 12.5, Unit: "Watts"},
		{Name: "Total Energy", Value: 62.5, Unit: "Joules"},
	}, got)
}

func TestParse_Lines(t *testing.T) {
	tests := []struct {
		name string
		line string
		want *MetricRecord
	}{
		{"no unit", "Samples: 5", &MetricRecord{Name: "Samples", Value: 5}},
		{"multi-word unit", "Energy:  3.2   kilo Joules ", &MetricRecord{Name: "Energy", Value: 3.2, Unit: "kilo Joules"}},
		{"glued unit", "Power: 7W", nil},
		{"clock time", "Time: 12:30:00", nil},
		{"trailing letters", "PID: 1234abc", nil},
		{"negative and exponent", "Delta: -1.5e3 J", &MetricRecord{Name: "Delta", Value: -1500, Unit: "J"}},
		{"zero spaces", "CPU Power:0.25 W", &MetricRecord{Name: "CPU Power", Value: 0.25, Unit: "W"}},
		{"no colon", "Average Power 12.5 Watts", nil},
		{"non numeric", "Status: running", nil},
		{"empty name", ": 12 W", nil},
		{"empty value", "Power:", nil},
		{"nan", "Power: NaN W", nil},
		{"overflow", "Power: 1e999 W", nil},
		{"bracket log", "[INFO] started: 12 s", nil},
		{"banner", "*** ECOFLOC: 1 ***", nil},
		{"dashes", "---- Results: 2 ----", nil},
		{"equals", "=== Summary: 3 ===", nil},
		{"blank", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseLine(tt.line)
			if tt.want == nil {
				assert.False(t, ok, "got %+v", got)
				return
			}
			require.True(t, ok)
			assert.Equal(t, *tt.want, got)
		})
	}
}

func TestParse_MalformedDoesNotDisturbNeighbours(t *testing.T) {
	raw := "=== ECOFLOC ===\n" +
		"Average Power : 12.5 Watts\n" +
		"garbage line\n" +
		"Broken: abc J\n" +
		"Time: 12:30:00\n" +
		"PID: 1234abc\n" +
		"Duration: 5s\n" +
		"Total Energy : 62.5 Joules\n" +
		"[log] done: ok\n"
	got := Parse(raw)
	require.Len(t, got, 2)
	assert.Equal(t, "Average Power", got[0].Name)
	assert.Equal(t, "Total Energy", got[1].Name)
}

func TestParse_EmptyAndIdempotent(t *testing.T) {
	empty := Parse("")
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	raw := sampleReport + "Peak: 20 W\r\n"
	assert.Equal(t, Parse(raw), Parse(raw))
	assert.Len(t, Parse(raw), 3)
}
