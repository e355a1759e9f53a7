// Package monitor drives continuous sampling: run a cycle, record its
// outcomes, pause, repeat.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ja7ad/ecotrace/pkg/consumption"
	"github.com/ja7ad/ecotrace/pkg/orchestrator"
	"github.com/ja7ad/ecotrace/pkg/profiler"
	"github.com/ja7ad/ecotrace/pkg/types"
)

// Runner runs one sampling cycle.
type Runner interface {
	Run(ctx context.Context, opts orchestrator.Options) orchestrator.Cycle
}

// Appender persists successful outcomes.
type Appender interface {
	Append(ctx context.Context, out profiler.Outcome) (int, error)
}

// RawWriter keeps raw profiler output.
type RawWriter interface {
	Write(out profiler.Outcome) error
}

// Observer receives counters. May be nil.
type Observer interface {
	ObserveCycle(c orchestrator.Cycle)
	ObservePersist(rows int, err error)
	ObserveRawLog(err error)
}

// Recorder fans one finished cycle out to the store, the raw log, the
// metrics and the running energy totals. Nil collaborators are skipped.
type Recorder struct {
	Store Appender
	Raw   RawWriter
	Obs   Observer
	Acc   *consumption.Accumulator
	Log   *zap.Logger
}

// Result summarises what Record did.
type Result struct {
	Rows          int `json:"rows"`
	PersistErrors int `json:"persist_errors"`
	RawErrors     int `json:"raw_errors"`
}

// Record handles every outcome of c. A failing append is logged and counted
// and does not stop the remaining ones. Appends are not canceled with ctx so
// that a shutdown mid-cycle still keeps what was measured.
func (r *Recorder) Record(ctx context.Context, c orchestrator.Cycle) Result {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	ctx = context.WithoutCancel(ctx)

	var res Result
	if r.Obs != nil {
		r.Obs.ObserveCycle(c)
	}
	for _, out := range c.Outcomes {
		if r.Raw != nil {
			err := r.Raw.Write(out)
			if err != nil {
				res.RawErrors++
				log.Warn("raw log write failed", zap.Int("pid", out.PID), zap.Error(err))
			}
			if r.Obs != nil {
				r.Obs.ObserveRawLog(err)
			}
		}
		if r.Acc != nil {
			r.Acc.Apply(out)
		}
		if r.Store == nil || !out.OK() {
			continue
		}
		n, err := r.Store.Append(ctx, out)
		if r.Obs != nil {
			r.Obs.ObservePersist(n, err)
		}
		if err != nil {
			res.PersistErrors++
			log.Error("persist failed",
				zap.Int("pid", out.PID),
				zap.Stringer("resource", out.Resource),
				zap.Error(err))
			continue
		}
		res.Rows += n
	}
	return res
}

// Options configures the loop.
type Options struct {
	Cycle orchestrator.Options
	// Pause between cycles.
	Pause time.Duration
	// EmptyRetry replaces Pause after a cycle that sampled nothing.
	EmptyRetry time.Duration
}

// Monitor runs cycles strictly one after another.
type Monitor struct {
	runner Runner
	rec    *Recorder
	opts   Options
	log    *zap.Logger
}

func New(runner Runner, rec *Recorder, opts Options, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	if rec == nil {
		rec = &Recorder{}
	}
	if rec.Log == nil {
		rec.Log = log
	}
	return &Monitor{runner: runner, rec: rec, opts: opts, log: log}
}

// Run loops until ctx is done. A new cycle starts only after the previous
// one has fully drained.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("monitor started",
		zap.Int("process_limit", m.opts.Cycle.Limit),
		zap.Int("resources", len(m.opts.Cycle.Resources)),
		zap.Duration("pause", m.opts.Pause))
	defer m.log.Info("monitor stopped")

	for ctx.Err() == nil {
		wait := m.RunOnce(ctx)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// RunOnce runs and records a single cycle and returns how long to wait
// before the next one.
func (m *Monitor) RunOnce(ctx context.Context) time.Duration {
	c := m.runner.Run(ctx, m.opts.Cycle)
	res := m.rec.Record(ctx, c)

	if c.Err != nil {
		m.log.Warn("cycle produced nothing", zap.Stringer("cycle", c.ID), zap.Error(c.Err))
		return m.opts.EmptyRetry
	}

	fields := []zap.Field{
		zap.Stringer("cycle", c.ID),
		zap.Int("outcomes", len(c.Outcomes)),
		zap.Int("failed", c.Failed()),
		zap.Int("rows", res.Rows),
		zap.Int("persist_errors", res.PersistErrors),
	}
	if m.rec.Acc != nil {
		fields = append(fields, zap.String("session_energy", types.Joules(m.rec.Acc.EnergyCumJ()).Humanized()))
	}
	m.log.Info("cycle recorded", fields...)
	return m.opts.Pause
}

// sleep waits d or until ctx ends; it reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
