//go:build linux

// Package api exposes sampling, stored samples, energy rankings and grid
// data over HTTP/JSON.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ja7ad/ecotrace/pkg/grid"
	"github.com/ja7ad/ecotrace/pkg/inventory"
	"github.com/ja7ad/ecotrace/pkg/monitor"
	"github.com/ja7ad/ecotrace/pkg/orchestrator"
	"github.com/ja7ad/ecotrace/pkg/profiler"
	"github.com/ja7ad/ecotrace/pkg/store"
	"github.com/ja7ad/ecotrace/pkg/system/proc"
)

// MaxTopLimit caps ?limit on process and sampling endpoints.
const MaxTopLimit = 20

// Store is the read side of *store.Store plus the grid sink.
type Store interface {
	grid.Sink
	Ping(ctx context.Context) error
	QueryWindow(ctx context.Context, r profiler.Resource, since time.Time) ([]store.Sample, error)
	QueryRecent(ctx context.Context, window time.Duration) ([]store.Sample, error)
	QueryToday(ctx context.Context, r profiler.Resource) ([]store.Sample, error)
	LatestCarbonIntensity(ctx context.Context, zone string) (*store.CarbonIntensity, error)
	CarbonIntensityHistory(ctx context.Context, zone string, since time.Time) ([]store.CarbonIntensity, error)
}

// Inventory describes the host.
type Inventory interface {
	Collect(ctx context.Context) (inventory.Info, error)
}

// Deps are the collaborators of the HTTP surface. Grid, Inventory and
// Metrics may be nil; their endpoints then answer 503.
type Deps struct {
	Lister    proc.Lister
	Runner    monitor.Runner
	Recorder  *monitor.Recorder
	Store     Store
	Grid      *grid.Client
	Inventory Inventory
	Metrics   http.Handler
	// Defaults for /sampling/run and /processes/top.
	Sampling orchestrator.Options
	Zone     string
	Log      *zap.Logger
}

type Server struct {
	d   Deps
	log *zap.Logger
	now func() time.Time
}

func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	if d.Zone == "" {
		d.Zone = "FR"
	}
	return &Server{d: d, log: log, now: time.Now}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Get("/system-info", s.systemInfo)
	r.Get("/processes/top", s.topProcesses)
	r.Get("/sampling/run", s.runSampling)
	r.Post("/sampling/run", s.runSampling)

	r.Get("/samples", s.recentSamples)
	r.Get("/samples/{resource}", s.resourceSamples)
	r.Get("/energy/{resource}/top", s.topEnergy)

	r.Get("/carbon-intensity", s.carbonIntensity)
	r.Get("/carbon-intensity/last", s.lastCarbonIntensity)
	r.Get("/carbon-intensity/history", s.carbonIntensityHistory)
	r.Get("/power-breakdown", s.powerBreakdown)

	if s.d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.d.Metrics)
	}
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
