//go:build linux

package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/ecotrace/pkg/consumption"
	"github.com/ja7ad/ecotrace/pkg/monitor"
	"github.com/ja7ad/ecotrace/pkg/orchestrator"
	"github.com/ja7ad/ecotrace/pkg/profiler"
	"github.com/ja7ad/ecotrace/pkg/store"
	"github.com/ja7ad/ecotrace/pkg/system/proc"
	"github.com/ja7ad/ecotrace/pkg/types"
)

func sample(name string, metric string, v float64, at time.Time) store.Sample {
	return store.Sample{ProcessName: name, ResourceType: "cpu", MetricName: metric, MetricValue: v, Timestamp: at}
}

func TestBuildReport(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	rows := []store.Sample{
		sample("a", "Total Energy", 3.6e6, at),
		sample("a", "Average Power", 10, at),
		sample("b", "Total Energy", 1.8e6, at.Add(time.Hour)),
		sample("c", "Total Energy", 0.9e6, at.Add(time.Hour)),
	}

	rep := buildReport(rows, profiler.CPU, at.Add(-time.Hour), at.Add(2*time.Hour), "FR", types.CarbonIntensity(100), "flag", 2)

	assert.Equal(t, 4, rep.Rows)
	require.Len(t, rep.Top, 2)
	assert.Equal(t, "a", rep.Top[0].Process)
	assert.Equal(t, "b", rep.Top[1].Process)
	assert.InDelta(t, 0.1, rep.Top[0].KgCO2, 1e-9)

	assert.Equal(t, 3, rep.Summary.Processes, "summary covers every process, not only the listed ones")
	assert.InDelta(t, 1.75, rep.Summary.KWh, 1e-9)
	assert.Len(t, rep.Timeline, 2)

	all := buildReport(rows, profiler.CPU, at, at, "FR", 0, "none", 0)
	assert.Len(t, all.Top, 3)
	assert.Zero(t, all.Summary.KgCO2)
}

func TestReportOutputs(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rep := buildReport([]store.Sample{sample("stress", "Total Energy", 36, at)},
		profiler.CPU, at.Add(-time.Hour), at, "FR", 50, "stored", 5)

	t.Run("console", func(t *testing.T) {
		var buf bytes.Buffer
		printReport(&buf, rep)
		out := buf.String()
		assert.Contains(t, out, "stress")
		assert.Contains(t, out, "RANK")
		assert.Contains(t, out, "zone FR")
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeCSV(&buf, rep))
		recs, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, []string{"rank", "process", "joules", "kwh", "kg_co2"}, recs[0])
		assert.Equal(t, []string{"1", "stress", "36"}, recs[1][:3])
		kwh, err := strconv.ParseFloat(recs[1][3], 64)
		require.NoError(t, err)
		assert.InDelta(t, 1e-5, kwh, 1e-12)
		kg, err := strconv.ParseFloat(recs[1][4], 64)
		require.NoError(t, err)
		assert.InDelta(t, 5e-7, kg, 1e-12)
	})

	t.Run("html", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, reportTpl.Execute(&buf, rep))
		assert.Contains(t, buf.String(), "<td>1</td><td>stress</td>")
	})

	t.Run("files", func(t *testing.T) {
		dir := t.TempDir()
		path := dir + "/nested/report.json"
		require.NoError(t, multiWrite(
			fileOut{"", nil},
			fileOut{path, func(w io.Writer) error { return writeReportJSON(w, rep) }},
		))
		assert.FileExists(t, path)
	})
}

func TestPrintCycle(t *testing.T) {
	ok := profiler.Outcome{
		PID: 10, ProcessName: "stress", Resource: profiler.CPU, CPUPercent: 99,
		Metrics: []profiler.MetricRecord{
			{Name: "Average Power", Value: 12.5, Unit: "Watts"},
			{Name: "Total Energy", Value: 62.5, Unit: "Joules"},
		},
	}
	timeout := profiler.Outcome{
		PID: 11, ProcessName: "idle", Resource: profiler.RAM,
		Err: &profiler.SampleError{Kind: profiler.ErrTimeout, PID: 11, Resource: profiler.RAM},
	}
	now := time.Now()
	cy := orchestrator.Cycle{ID: uuid.New(), StartedAt: now, FinishedAt: now.Add(time.Second),
		Outcomes: []profiler.Outcome{ok, timeout}}

	var buf bytes.Buffer
	printCycle(&buf, cy)
	out := buf.String()

	assert.Contains(t, out, cy.ID.String())
	assert.Contains(t, out, "62.500")
	assert.Contains(t, out, "12.500")
	assert.Contains(t, out, "timeout")
	assert.Contains(t, out, "1 ok, 1 failed")
}

func TestWriteCycleJSON(t *testing.T) {
	cy := orchestrator.Cycle{ID: uuid.New(), Outcomes: []profiler.Outcome{
		{PID: 10, Resource: profiler.CPU, Metrics: []profiler.MetricRecord{{Name: "Total Energy", Value: 5}}},
		{PID: 11, Resource: profiler.CPU, Err: &profiler.SampleError{Kind: profiler.ErrToolFailure, PID: 11, Resource: profiler.CPU, ExitCode: 2}},
		{PID: 12, Resource: profiler.CPU},
	}}

	var buf bytes.Buffer
	require.NoError(t, writeCycleJSON(&buf, cy, &monitor.Result{Rows: 1}))

	var got struct {
		Cycle struct {
			Outcomes []struct {
				PID   int    `json:"pid"`
				Error string `json:"error"`
			} `json:"outcomes"`
		} `json:"cycle"`
		Persisted *monitor.Result `json:"persisted"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Cycle.Outcomes, 3)
	assert.Empty(t, got.Cycle.Outcomes[0].Error)
	assert.Contains(t, got.Cycle.Outcomes[1].Error, "exit=2")
	assert.Empty(t, got.Cycle.Outcomes[2].Error, "an empty success stays distinguishable from a failure")
	require.NotNil(t, got.Persisted)
	assert.Equal(t, 1, got.Persisted.Rows)
}

func TestMetricSum(t *testing.T) {
	ms := []profiler.MetricRecord{
		{Name: "Total Energy", Value: 2},
		{Name: "GPU Total Energy", Value: 3},
		{Name: "Average Power", Value: 7},
	}
	v, ok := metricSum(ms, consumption.TotalEnergy)
	assert.True(t, ok)
	assert.Equal(t, 5.0, v)

	_, ok = metricSum(ms, consumption.MetricNamed("Peak Power"))
	assert.False(t, ok)
	assert.Equal(t, "-", fmtOptional(0, false, "%.1f"))
}

func TestPrintProcesses(t *testing.T) {
	var buf bytes.Buffer
	printProcesses(&buf, []proc.Process{
		{PID: 1, Name: "init", CPUPercent: 0.5, MemoryPercent: 0.1, RSS: types.Bytes(2 << 20)},
		{PID: 2, Name: "kthreadd"},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], "init")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[3]), "-"))
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "ecotrace dev (none)\n", buf.String())
}
