//go:build linux

package profiler

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ja7ad/ecotrace/pkg/system/command"
)

// DefaultTool is the profiler binary looked up in PATH.
const DefaultTool = "ecofloc"

// Options configures a Sampler.
type Options struct {
	// Path to the profiler binary. Defaults to DefaultTool.
	Path string
	// Grace between SIGTERM and SIGKILL. Defaults to command.DefaultGrace.
	Grace time.Duration
	// MaxConcurrent caps profiler subprocesses across all callers of this
	// Sampler. Defaults to runtime.NumCPU().
	MaxConcurrent int
	Logger        *zap.Logger
}

// Sampler runs the external energy profiler for one process and resource.
// It is safe for concurrent use.
type Sampler struct {
	path  string
	grace time.Duration
	sem   *semaphore.Weighted
	log   *zap.Logger
}

// NewSampler builds a Sampler from opts.
func NewSampler(opts Options) *Sampler {
	if opts.Path == "" {
		opts.Path = DefaultTool
	}
	if opts.Grace <= 0 {
		opts.Grace = command.DefaultGrace
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Sampler{
		path:  opts.Path,
		grace: opts.Grace,
		sem:   semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		log:   opts.Logger,
	}
}

// Path returns the profiler binary in use.
func (s *Sampler) Path() string { return s.path }

// Args returns the profiler command line for req, without the binary.
func Args(req Request) []string {
	return []string{
		"--" + string(req.Resource),
		"-p", strconv.Itoa(req.PID),
		"-i", strconv.FormatInt(req.Interval.Milliseconds(), 10),
		"-t", strconv.FormatInt(int64(req.Duration/time.Second), 10),
	}
}

// Sample runs the profiler and classifies how it ended. It never blocks
// longer than req.Deadline() plus the grace period, once a concurrency slot
// has been obtained. The returned Outcome always has a non-nil Metrics slice.
func (s *Sampler) Sample(ctx context.Context, req Request) Outcome {
	out := Outcome{
		PID:       req.PID,
		Resource:  req.Resource,
		Metrics:   []MetricRecord{},
		StartedAt: time.Now().UTC(),
	}
	fail := func(se *SampleError) Outcome {
		se.PID, se.Resource = req.PID, req.Resource
		out.Err = se
		out.Elapsed = time.Since(out.StartedAt)
		return out
	}

	if err := req.Validate(); err != nil {
		return fail(&SampleError{Kind: ErrInvalidRequest, Cause: err})
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fail(&SampleError{Kind: ErrCanceled, Cause: err})
	}
	defer s.sem.Release(1)

	s.log.Debug("profiler start",
		zap.Int("pid", req.PID),
		zap.Stringer("resource", req.Resource),
		zap.Duration("deadline", req.Deadline()))

	res, err := command.Run(ctx, command.Spec{
		Path:    s.path,
		Args:    Args(req),
		Timeout: req.Deadline(),
		Grace:   s.grace,
	})
	if err != nil {
		return fail(&SampleError{Kind: ErrLaunch, ExitCode: -1, Cause: err})
	}

	out.RawOutput = string(res.Stdout)

	switch {
	case res.Canceled:
		out.Metrics = Parse(out.RawOutput)
		return fail(&SampleError{
			Kind:     ErrCanceled,
			ExitCode: res.ExitCode,
			Partial:  res.HasOutput(),
		})
	case res.TimedOut:
		out.Metrics = Parse(out.RawOutput)
		s.log.Debug("profiler timed out",
			zap.Int("pid", req.PID),
			zap.Stringer("resource", req.Resource),
			zap.Bool("killed", res.Killed),
			zap.Int("partial_metrics", len(out.Metrics)))
		return fail(&SampleError{
			Kind:       ErrTimeout,
			ExitCode:   res.ExitCode,
			Partial:    res.HasOutput(),
			Diagnostic: diagnostic(res),
		})
	case res.ExitCode != 0:
		return fail(&SampleError{
			Kind:       ErrToolFailure,
			ExitCode:   res.ExitCode,
			Diagnostic: diagnostic(res),
		})
	}

	out.Metrics = Parse(out.RawOutput)
	out.Elapsed = time.Since(out.StartedAt)
	return out
}

func diagnostic(res command.Result) string {
	const max = 512
	msg := strings.TrimSpace(string(res.Stderr))
	if msg == "" {
		msg = strings.TrimSpace(string(res.Stdout))
	}
	if len(msg) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}
