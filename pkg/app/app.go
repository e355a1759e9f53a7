//go:build linux

// Package app wires the ecotrace components from a Config. Everything is
// created once in main and closed on exit; nothing is global.
package app

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ja7ad/ecotrace/pkg/api"
	"github.com/ja7ad/ecotrace/pkg/config"
	"github.com/ja7ad/ecotrace/pkg/consumption"
	"github.com/ja7ad/ecotrace/pkg/grid"
	"github.com/ja7ad/ecotrace/pkg/inventory"
	"github.com/ja7ad/ecotrace/pkg/logutil"
	"github.com/ja7ad/ecotrace/pkg/metrics"
	"github.com/ja7ad/ecotrace/pkg/monitor"
	"github.com/ja7ad/ecotrace/pkg/orchestrator"
	"github.com/ja7ad/ecotrace/pkg/profiler"
	"github.com/ja7ad/ecotrace/pkg/rawlog"
	"github.com/ja7ad/ecotrace/pkg/store"
	"github.com/ja7ad/ecotrace/pkg/system/proc"
)

type App struct {
	Config       *config.Config
	Log          *zap.Logger
	Store        *store.Store
	Lister       proc.Lister
	Sampler      *profiler.Sampler
	Orchestrator *orchestrator.Orchestrator
	Raw          *rawlog.Logger
	Rotator      *rawlog.Rotator
	Metrics      *metrics.Metrics
	Acc          *consumption.Accumulator
	Recorder     *monitor.Recorder
	Inventory    *inventory.Collector
	// Grid is nil when disabled or when no token is configured.
	Grid *grid.Client

	rotating bool
}

// NewLogger builds the logger described by cfg.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logutil.New(cfg.Log.Level, cfg.Log.Development)
}

// NewLister returns the lister selected by cfg.Lister.
func NewLister(cfg *config.Config) proc.Lister {
	if cfg.Lister == config.ListerPS {
		return proc.NewPSLister()
	}
	return proc.NewProcfsLister()
}

// New opens the store and the raw log and builds every component. On error
// whatever was already opened is closed.
func New(cfg *config.Config, log *zap.Logger) (_ *App, err error) {
	log = logutil.OrNop(log)
	a := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			err = multierr.Append(err, a.Close())
		}
	}()

	if a.Store, err = store.Open(cfg.Database.Path); err != nil {
		return nil, err
	}
	if a.Raw, err = rawlog.NewLogger(cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("raw log: %w", err)
	}
	a.Rotator = rawlog.NewRotator(cfg.OutputDir, cfg.RetentionDays, log.Named("rotator"))

	a.Lister = NewLister(cfg)
	a.Sampler = profiler.NewSampler(profiler.Options{
		Path:          cfg.Profiler.Path,
		Grace:         cfg.Grace(),
		MaxConcurrent: cfg.Profiler.MaxConcurrent,
		Logger:        log.Named("sampler"),
	})
	a.Orchestrator = orchestrator.New(a.Lister, a.Sampler, cfg.Sampling.Workers, log.Named("orchestrator"))

	a.Metrics = metrics.New()
	a.Acc = consumption.NewAccumulator(consumption.TotalEnergy)
	a.Recorder = &monitor.Recorder{
		Store: a.Store,
		Raw:   a.Raw,
		Obs:   a.Metrics,
		Acc:   a.Acc,
		Log:   log.Named("recorder"),
	}
	a.Inventory = inventory.New(log.Named("inventory"))

	if cfg.Grid.Enabled && strings.TrimSpace(cfg.Grid.Token) != "" {
		a.Grid = grid.NewClient(grid.Options{
			BaseURL:           cfg.Grid.BaseURL,
			Token:             cfg.Grid.Token,
			RequestsPerMinute: cfg.Grid.RequestsPerMinute,
		})
	} else if cfg.Grid.Enabled {
		log.Warn("grid enabled without a token; carbon intensity endpoints are disabled")
	}

	log.Debug("app ready",
		zap.String("lister", cfg.Lister),
		zap.String("profiler", a.Sampler.Path()),
		zap.String("db", cfg.Database.Path),
		zap.Int("workers", a.Orchestrator.Workers()),
		zap.Bool("grid", a.Grid != nil))
	return a, nil
}

// SamplingOptions are the cycle parameters from the config.
func (a *App) SamplingOptions() orchestrator.Options {
	c := a.Config
	return orchestrator.Options{
		Limit:         c.Sampling.ProcessLimit,
		Resources:     c.Resources(),
		Interval:      c.Interval(),
		Duration:      c.Duration(),
		TimeoutBuffer: c.TimeoutBuffer(),
	}
}

// Monitor builds the continuous sampling loop.
func (a *App) Monitor() *monitor.Monitor {
	return monitor.New(a.Orchestrator, a.Recorder, monitor.Options{
		Cycle:      a.SamplingOptions(),
		Pause:      a.Config.CyclePause(),
		EmptyRetry: a.Config.EmptyRetry(),
	}, a.Log.Named("monitor"))
}

// Poller returns the grid poller, or nil without a grid client.
func (a *App) Poller() *grid.Poller {
	if a.Grid == nil {
		return nil
	}
	return grid.NewPoller(a.Grid, a.Store, a.Metrics, a.Config.Grid.Zone, a.Config.PollInterval(), a.Log.Named("grid"))
}

// API builds the HTTP server.
func (a *App) API() *api.Server {
	return api.New(api.Deps{
		Lister:    a.Lister,
		Runner:    a.Orchestrator,
		Recorder:  a.Recorder,
		Store:     a.Store,
		Grid:      a.Grid,
		Inventory: a.Inventory,
		Metrics:   a.Metrics.Handler(),
		Sampling:  a.SamplingOptions(),
		Zone:      a.Config.Grid.Zone,
		Log:       a.Log.Named("api"),
	})
}

// StartRotator starts raw log retention; Close stops it.
func (a *App) StartRotator() {
	if a.Rotator == nil || a.rotating {
		return
	}
	a.Rotator.Start()
	a.rotating = true
}

// Close releases everything New opened.
func (a *App) Close() error {
	var errs error
	if a.rotating {
		a.Rotator.Stop()
		a.rotating = false
	}
	if a.Raw != nil {
		errs = multierr.Append(errs, a.Raw.Close())
	}
	if a.Store != nil {
		errs = multierr.Append(errs, a.Store.Close())
	}
	return errs
}
