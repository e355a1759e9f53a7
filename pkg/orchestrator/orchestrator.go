// Package orchestrator runs one sampling cycle: it picks the busiest
// processes and profiles each of them for every requested resource with
// bounded parallelism.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ja7ad/ecotrace/pkg/profiler"
	"github.com/ja7ad/ecotrace/pkg/system/proc"
)

// Sampler is the part of *profiler.Sampler the orchestrator needs.
type Sampler interface {
	Sample(ctx context.Context, req profiler.Request) profiler.Outcome
}

// Options parameterise one cycle.
type Options struct {
	Limit         int
	Resources     []profiler.Resource
	Interval      time.Duration
	Duration      time.Duration
	TimeoutBuffer time.Duration
}

// Cycle is the result of one run. Outcomes are ordered process-major in
// listing order, then by the order of Options.Resources.
type Cycle struct {
	ID         uuid.UUID          `json:"id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Processes  []proc.Process     `json:"processes"`
	Outcomes   []profiler.Outcome `json:"outcomes"`
	Err        error              `json:"-"`
}

// MarshalJSON adds Err as "error".
func (c Cycle) MarshalJSON() ([]byte, error) {
	type cycle Cycle
	var msg string
	if c.Err != nil {
		msg = c.Err.Error()
	}
	return json.Marshal(struct {
		cycle
		Error string `json:"error,omitempty"`
	}{cycle(c), msg})
}

// Succeeded counts outcomes without error.
func (c Cycle) Succeeded() int {
	n := 0
	for _, o := range c.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed counts outcomes with an error.
func (c Cycle) Failed() int { return len(c.Outcomes) - c.Succeeded() }

// Orchestrator fans sampling out over processes × resources.
type Orchestrator struct {
	lister  proc.Lister
	sampler Sampler
	workers int
	log     *zap.Logger
}

// New returns an Orchestrator running at most workers tasks at once
// (runtime.NumCPU() when workers <= 0).
func New(lister proc.Lister, sampler Sampler, workers int, log *zap.Logger) *Orchestrator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{lister: lister, sampler: sampler, workers: workers, log: log}
}

// Workers returns the pool size.
func (o *Orchestrator) Workers() int { return o.workers }

// Run executes one cycle and always returns. Per-task failures are carried in
// each Outcome; run-level problems (listing unavailable, nothing to sample)
// in Cycle.Err. A failing task never cancels its siblings.
func (o *Orchestrator) Run(ctx context.Context, opts Options) Cycle {
	c := Cycle{
		ID:        uuid.New(),
		StartedAt: time.Now().UTC(),
		Processes: []proc.Process{},
		Outcomes:  []profiler.Outcome{},
	}
	log := o.log.With(zap.Stringer("cycle", c.ID))

	if opts.Limit <= 0 || len(opts.Resources) == 0 {
		c.Err = fmt.Errorf("%w: limit=%d resources=%d", ErrNoProcesses, opts.Limit, len(opts.Resources))
		c.FinishedAt = time.Now().UTC()
		return c
	}

	procs, err := o.lister.TopProcesses(ctx, opts.Limit)
	if err != nil {
		if !errors.Is(err, proc.ErrListingUnavailable) {
			err = fmt.Errorf("%w: %v", proc.ErrListingUnavailable, err)
		}
		log.Warn("process listing failed", zap.Error(err))
		c.Err = err
		c.FinishedAt = time.Now().UTC()
		return c
	}
	if len(procs) == 0 {
		c.Err = ErrNoProcesses
		c.FinishedAt = time.Now().UTC()
		return c
	}
	if len(procs) > opts.Limit {
		procs = procs[:opts.Limit]
	}
	c.Processes = procs

	// Each task owns exactly one slot.
	c.Outcomes = make([]profiler.Outcome, len(procs)*len(opts.Resources))

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, p := range procs {
		for j, r := range opts.Resources {
			slot := i*len(opts.Resources) + j
			req := profiler.Request{
				PID:           p.PID,
				Resource:      r,
				Interval:      opts.Interval,
				Duration:      opts.Duration,
				TimeoutBuffer: opts.TimeoutBuffer,
			}
			g.Go(func() error {
				c.Outcomes[slot] = o.sampleOne(ctx, c.ID, p, req, log)
				return nil
			})
		}
	}
	_ = g.Wait()

	c.FinishedAt = time.Now().UTC()
	log.Info("sampling cycle finished",
		zap.Int("processes", len(procs)),
		zap.Int("succeeded", c.Succeeded()),
		zap.Int("failed", c.Failed()),
		zap.Duration("took", c.FinishedAt.Sub(c.StartedAt)))
	return c
}

func (o *Orchestrator) sampleOne(ctx context.Context, id uuid.UUID, p proc.Process, req profiler.Request, log *zap.Logger) (out profiler.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = profiler.Outcome{
				PID:      req.PID,
				Resource: req.Resource,
				Metrics:  []profiler.MetricRecord{},
				Err:      fmt.Errorf("%w: %v", ErrPanic, r),
			}
		}
		out.CycleID = id
		out.PID, out.Resource = req.PID, req.Resource
		out.ProcessName = p.Name
		out.CPUPercent = p.CPUPercent
		out.MemoryPercent = p.MemoryPercent
		if out.Err != nil {
			log.Warn("sample failed",
				zap.Int("pid", req.PID),
				zap.String("process", p.Name),
				zap.Stringer("resource", req.Resource),
				zap.Error(out.Err))
		}
	}()
	return o.sampler.Sample(ctx, req)
}
