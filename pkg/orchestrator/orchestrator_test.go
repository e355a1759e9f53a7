package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/ecotrace/pkg/profiler"
	"github.com/ja7ad/ecotrace/pkg/system/proc"
)

type fakeLister struct {
	procs []proc.Process
	err   error
}

func (f fakeLister) TopProcesses(_ context.Context, limit int) ([]proc.Process, error) {
	if f.err != nil {
		return []proc.Process{}, f.err
	}
	if len(f.procs) > limit {
		return f.procs[:limit], nil
	}
	return f.procs, nil
}

type fakeSampler struct {
	fn func(profiler.Request) profiler.Outcome

	mu      sync.Mutex
	active  int
	maxSeen int
	delay   time.Duration
}

func (f *fakeSampler) Sample(_ context.Context, req profiler.Request) profiler.Outcome {
	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fn != nil {
		return f.fn(req)
	}
	return okOutcome(req)
}

func okOutcome(req profiler.Request) profiler.Outcome {
	return profiler.Outcome{
		PID:      req.PID,
		Resource: req.Resource,
		Metrics: []profiler.MetricRecord{
			{Name: "Total Energy", Value: float64(req.PID), Unit: "Joules"},
		},
	}
}

func procs(pids ...int) []proc.Process {
	out := make([]proc.Process, 0, len(pids))
	for _, pid := range pids {
		out = append(out, proc.Process{PID: pid, Name: fmt.Sprintf("p%d", pid), CPUPercent: float64(100 - pid)})
	}
	return out
}

func opts(limit int, rs ...profiler.Resource) Options {
	return Options{Limit: limit, Resources: rs, Interval: time.Second, Duration: time.Second}
}

func TestRun_OrderAndMetadata(t *testing.T) {
	o := New(fakeLister{procs: procs(1, 2, 3)}, &fakeSampler{}, 4, nil)

	c := o.Run(context.Background(), opts(10, profiler.CPU, profiler.RAM))
	require.NoError(t, c.Err)
	require.Len(t, c.Outcomes, 6)
	assert.Len(t, c.Processes, 3)
	assert.False(t, c.FinishedAt.Before(c.StartedAt))

	want := []struct {
		pid int
		r   profiler.Resource
	}{{1, profiler.CPU}, {1, profiler.RAM}, {2, profiler.CPU}, {2, profiler.RAM}, {3, profiler.CPU}, {3, profiler.RAM}}
	for i, w := range want {
		out := c.Outcomes[i]
		assert.Equal(t, w.pid, out.PID)
		assert.Equal(t, w.r, out.Resource)
		assert.Equal(t, c.ID, out.CycleID)
		assert.Equal(t, fmt.Sprintf("p%d", w.pid), out.ProcessName)
		assert.Equal(t, float64(100-w.pid), out.CPUPercent)
		assert.True(t, out.OK())
	}
	assert.Equal(t, 6, c.Succeeded())
	assert.Zero(t, c.Failed())
}

func TestRun_Isolation(t *testing.T) {
	s := &fakeSampler{fn: func(req profiler.Request) profiler.Outcome {
		switch {
		case req.PID == 2 && req.Resource == profiler.RAM:
			return profiler.Outcome{Err: &profiler.SampleError{Kind: profiler.ErrLaunch, Cause: errors.New("exec: not found")}}
		case req.PID == 3 && req.Resource == profiler.CPU:
			panic("boom")
		}
		return okOutcome(req)
	}}
	o := New(fakeLister{procs: procs(1, 2, 3)}, s, 2, nil)

	c := o.Run(context.Background(), opts(10, profiler.CPU, profiler.RAM))
	require.NoError(t, c.Err)
	require.Len(t, c.Outcomes, 6)
	assert.Equal(t, 4, c.Succeeded())
	assert.Equal(t, 2, c.Failed())

	failed := c.Outcomes[3]
	assert.Equal(t, 2, failed.PID)
	assert.Equal(t, profiler.RAM, failed.Resource)
	assert.ErrorIs(t, failed.Err, profiler.ErrLaunch)

	panicked := c.Outcomes[4]
	assert.Equal(t, 3, panicked.PID)
	assert.Equal(t, profiler.CPU, panicked.Resource)
	assert.Equal(t, "p3", panicked.ProcessName)
	assert.ErrorIs(t, panicked.Err, ErrPanic)

	for _, i := range []int{0, 1, 2, 5} {
		out := c.Outcomes[i]
		require.True(t, out.OK(), "slot %d", i)
		assert.Equal(t, float64(out.PID), out.Metrics[0].Value)
	}
}

func TestRun_EmptyListing(t *testing.T) {
	var calls atomic.Int32
	s := &fakeSampler{fn: func(req profiler.Request) profiler.Outcome {
		calls.Add(1)
		return okOutcome(req)
	}}

	c := New(fakeLister{}, s, 2, nil).Run(context.Background(), opts(5, profiler.CPU))
	assert.ErrorIs(t, c.Err, ErrNoProcesses)
	assert.NotNil(t, c.Outcomes)
	assert.Empty(t, c.Outcomes)
	assert.Zero(t, calls.Load())
}

func TestRun_ListingUnavailable(t *testing.T) {
	t.Run("wrapped", func(t *testing.T) {
		l := fakeLister{err: fmt.Errorf("%w: ps missing", proc.ErrListingUnavailable)}
		c := New(l, &fakeSampler{}, 2, nil).Run(context.Background(), opts(5, profiler.CPU))
		assert.ErrorIs(t, c.Err, proc.ErrListingUnavailable)
		assert.Empty(t, c.Outcomes)
	})

	t.Run("foreign error", func(t *testing.T) {
		l := fakeLister{err: errors.New("permission denied")}
		c := New(l, &fakeSampler{}, 2, nil).Run(context.Background(), opts(5, profiler.CPU))
		assert.ErrorIs(t, c.Err, proc.ErrListingUnavailable)
		assert.Contains(t, c.Err.Error(), "permission denied")
	})
}

func TestRun_BadOptions(t *testing.T) {
	o := New(fakeLister{procs: procs(1)}, &fakeSampler{}, 1, nil)
	assert.ErrorIs(t, o.Run(context.Background(), opts(0, profiler.CPU)).Err, ErrNoProcesses)
	assert.ErrorIs(t, o.Run(context.Background(), opts(1)).Err, ErrNoProcesses)
}

func TestRun_LimitRespected(t *testing.T) {
	c := New(fakeLister{procs: procs(1, 2, 3, 4)}, &fakeSampler{}, 2, nil).
		Run(context.Background(), opts(2, profiler.CPU))
	require.Len(t, c.Outcomes, 2)
	assert.Equal(t, []int{1, 2}, []int{c.Outcomes[0].PID, c.Outcomes[1].PID})
}

func TestRun_ConcurrencyBound(t *testing.T) {
	s := &fakeSampler{delay: 30 * time.Millisecond}
	o := New(fakeLister{procs: procs(1, 2, 3, 4, 5, 6)}, s, 3, nil)
	assert.Equal(t, 3, o.Workers())

	c := o.Run(context.Background(), opts(10, profiler.CPU, profiler.RAM))
	require.Len(t, c.Outcomes, 12)
	assert.LessOrEqual(t, s.maxSeen, 3)
	assert.GreaterOrEqual(t, s.maxSeen, 1)
}

func TestNew_DefaultWorkers(t *testing.T) {
	o := New(fakeLister{}, &fakeSampler{}, 0, nil)
	assert.Positive(t, o.Workers())
}

func TestCycle_JSON(t *testing.T) {
	c := Cycle{
		Err: ErrNoProcesses,
		Outcomes: []profiler.Outcome{
			{PID: 1, Resource: profiler.CPU},
			{PID: 1, Resource: profiler.RAM, Err: &profiler.SampleError{Kind: profiler.ErrTimeout}},
		},
	}
	b, err := json.Marshal(c)
	require.NoError(t, err)

	var got struct {
		Error    string `json:"error"`
		Outcomes []struct {
			Error string `json:"error"`
		} `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, ErrNoProcesses.Error(), got.Error)
	require.Len(t, got.Outcomes, 2)
	assert.Empty(t, got.Outcomes[0].Error)
	assert.Equal(t, c.Outcomes[1].ErrString(), got.Outcomes[1].Error)
}
