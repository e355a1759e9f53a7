//go:build linux

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ja7ad/ecotrace/pkg/consumption"
	"github.com/ja7ad/ecotrace/pkg/grid"
	"github.com/ja7ad/ecotrace/pkg/monitor"
	"github.com/ja7ad/ecotrace/pkg/orchestrator"
	"github.com/ja7ad/ecotrace/pkg/profiler"
	"github.com/ja7ad/ecotrace/pkg/store"
	"github.com/ja7ad/ecotrace/pkg/system/proc"
	"github.com/ja7ad/ecotrace/pkg/types"
)

var (
	errUnavailable = errors.New("not configured")
	errBadParam    = errors.New("invalid parameter")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func intParam(r *http.Request, key string, def, min, max int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("%w: %s must be an integer in [%d, %d]", errBadParam, key, min, max)
	}
	return n, nil
}

func floatParam(r *http.Request, key string) (float64, bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, false, fmt.Errorf("%w: %s must be a non-negative number", errBadParam, key)
	}
	return f, true, nil
}

func (s *Server) zone(r *http.Request) string {
	if z := strings.TrimSpace(r.URL.Query().Get("zone")); z != "" {
		return z
	}
	return s.d.Zone
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.d.Store != nil {
		if err := s.d.Store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) systemInfo(w http.ResponseWriter, r *http.Request) {
	if s.d.Inventory == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("inventory %w", errUnavailable))
		return
	}
	info, err := s.d.Inventory.Collect(r.Context())
	if err != nil {
		s.log.Debug("partial system info", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) topProcesses(w http.ResponseWriter, r *http.Request) {
	def := min(max(s.d.Sampling.Limit, 1), MaxTopLimit)
	limit, err := intParam(r, "limit", def, 1, MaxTopLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	procs, err := s.d.Lister.TopProcesses(r.Context(), limit)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, proc.ErrListingUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, procs)
}

type sampleResult struct {
	PID           int                     `json:"pid"`
	Name          string                  `json:"name"`
	CPUPercent    float64                 `json:"cpu_percent"`
	MemoryPercent float64                 `json:"memory_percent"`
	Resource      profiler.Resource       `json:"resource"`
	Metrics       []profiler.MetricRecord `json:"metrics"`
	RawOutput     string                  `json:"ecofloc_output"`
	Error         string                  `json:"error,omitempty"`
	ElapsedMs     int64                   `json:"elapsed_ms"`
}

type cycleResponse struct {
	CycleID    string          `json:"cycle_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Error      string          `json:"error,omitempty"`
	Processes  []proc.Process  `json:"processes"`
	Results    []sampleResult  `json:"results"`
	Persisted  *monitor.Result `json:"persisted,omitempty"`
}

func (s *Server) samplingOptions(r *http.Request) (orchestrator.Options, bool, error) {
	opts := s.d.Sampling
	var err error

	def := min(max(opts.Limit, 1), MaxTopLimit)
	if opts.Limit, err = intParam(r, "limit", def, 1, MaxTopLimit); err != nil {
		return opts, false, err
	}
	if v := r.URL.Query().Get("resources"); v != "" {
		if opts.Resources, err = profiler.ParseResources(v); err != nil {
			return opts, false, fmt.Errorf("%w: %v", errBadParam, err)
		}
	}
	ms, err := intParam(r, "interval", int(opts.Interval.Milliseconds()), 100, 10_000)
	if err != nil {
		return opts, false, err
	}
	opts.Interval = time.Duration(ms) * time.Millisecond
	sec, err := intParam(r, "duration", int(opts.Duration/time.Second), 1, 30)
	if err != nil {
		return opts, false, err
	}
	opts.Duration = time.Duration(sec) * time.Second

	persist := false
	if v := r.URL.Query().Get("persist"); v != "" {
		if persist, err = strconv.ParseBool(v); err != nil {
			return opts, false, fmt.Errorf("%w: persist must be a boolean", errBadParam)
		}
	}
	return opts, persist, nil
}

func (s *Server) runSampling(w http.ResponseWriter, r *http.Request) {
	opts, persist, err := s.samplingOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c := s.d.Runner.Run(r.Context(), opts)
	resp := cycleResponse{
		CycleID:    c.ID.String(),
		StartedAt:  c.StartedAt,
		FinishedAt: c.FinishedAt,
		Processes:  c.Processes,
		Results:    make([]sampleResult, 0, len(c.Outcomes)),
	}
	if c.Err != nil {
		resp.Error = c.Err.Error()
	}
	byPID := make(map[int]proc.Process, len(c.Processes))
	for _, p := range c.Processes {
		byPID[p.PID] = p
	}
	for _, out := range c.Outcomes {
		p := byPID[out.PID]
		resp.Results = append(resp.Results, sampleResult{
			PID:           out.PID,
			Name:          out.ProcessName,
			CPUPercent:    p.CPUPercent,
			MemoryPercent: p.MemoryPercent,
			Resource:      out.Resource,
			Metrics:       out.Metrics,
			RawOutput:     out.RawOutput,
			Error:         out.ErrString(),
			ElapsedMs:     out.Elapsed.Milliseconds(),
		})
	}
	if persist && s.d.Recorder != nil {
		res := s.d.Recorder.Record(r.Context(), c)
		resp.Persisted = &res
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) recentSamples(w http.ResponseWriter, r *http.Request) {
	hours, err := intParam(r, "hours", 24, 1, 24*365)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := s.d.Store.QueryRecent(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) resource(w http.ResponseWriter, r *http.Request) (profiler.Resource, bool) {
	res, err := profiler.ParseResource(chi.URLParam(r, "resource"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return "", false
	}
	return res, true
}

// since resolves ?since=RFC3339 or ?hours=N; ok=false means "today".
func (s *Server) since(r *http.Request) (time.Time, bool, error) {
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("since")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%w: since must be RFC3339", errBadParam)
		}
		return t, true, nil
	}
	if q.Get("hours") != "" {
		h, err := intParam(r, "hours", 0, 1, 24*365)
		if err != nil {
			return time.Time{}, false, err
		}
		return s.now().Add(-time.Duration(h) * time.Hour), true, nil
	}
	return time.Time{}, false, nil
}

func (s *Server) resourceSamples(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}
	since, explicit, err := s.since(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var rows []store.Sample
	if explicit {
		rows, err = s.d.Store.QueryWindow(r.Context(), res, since)
	} else {
		rows, err = s.d.Store.QueryToday(r.Context(), res)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

type topEnergyResponse struct {
	Resource        profiler.Resource      `json:"resource"`
	Since           time.Time              `json:"since"`
	Zone            string                 `json:"zone"`
	IntensitySource string                 `json:"intensity_source"` // query, stored, none
	Summary         consumption.Summary    `json:"summary"`
	Top             []consumption.Emission `json:"top"`
	Timeline        []consumption.Bucket   `json:"timeline"`
}

func (s *Server) topEnergy(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}
	n, err := intParam(r, "n", 5, 1, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	hours, err := intParam(r, "hours", 24, 1, 24*365)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	g, given, err := floatParam(r, "intensity")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	zone := s.zone(r)
	source := "query"
	if !given {
		source = "none"
		ci, err := s.d.Store.LatestCarbonIntensity(r.Context(), zone)
		switch {
		case err == nil:
			g, source = ci.CarbonIntensity, "stored"
		case !errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	since := s.now().Add(-time.Duration(hours) * time.Hour).UTC()
	rows, err := s.d.Store.QueryWindow(r.Context(), res, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	intensity := types.CarbonIntensity(g)
	totals := consumption.TotalEnergyByProcess(rows, consumption.TotalEnergy)
	all := consumption.Emissions(totals, intensity)
	top := all
	if len(top) > n {
		top = top[:n]
	}
	writeJSON(w, http.StatusOK, topEnergyResponse{
		Resource:        res,
		Since:           since,
		Zone:            zone,
		IntensitySource: source,
		Summary:         consumption.Summarize(all, intensity),
		Top:             top,
		Timeline:        consumption.EnergyByTime(rows, time.Hour, consumption.TotalEnergy),
	})
}

func (s *Server) carbonIntensity(w http.ResponseWriter, r *http.Request) {
	if s.d.Grid == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("grid %w", errUnavailable))
		return
	}
	rec, err := grid.FetchCarbonIntensity(r.Context(), s.d.Grid, s.d.Store, s.zone(r))
	if err != nil {
		writeError(w, gridStatus(err), err)
		return
	}
	writeRaw(w, rec.Raw, rec)
}

func (s *Server) powerBreakdown(w http.ResponseWriter, r *http.Request) {
	if s.d.Grid == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("grid %w", errUnavailable))
		return
	}
	rec, err := grid.FetchPowerBreakdown(r.Context(), s.d.Grid, s.d.Store, s.zone(r))
	if err != nil {
		writeError(w, gridStatus(err), err)
		return
	}
	writeRaw(w, rec.Raw, rec)
}

// writeRaw passes the provider payload through when it is valid JSON.
func writeRaw(w http.ResponseWriter, raw string, fallback any) {
	if raw != "" && json.Valid([]byte(raw)) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(raw))
		return
	}
	writeJSON(w, http.StatusOK, fallback)
}

func gridStatus(err error) int {
	switch {
	case errors.Is(err, grid.ErrNoToken):
		return http.StatusServiceUnavailable
	case errors.Is(err, grid.ErrNoZone):
		return http.StatusBadRequest
	case errors.Is(err, grid.ErrAPI):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) lastCarbonIntensity(w http.ResponseWriter, r *http.Request) {
	ci, err := s.d.Store.LatestCarbonIntensity(r.Context(), s.zone(r))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ci)
}

func (s *Server) carbonIntensityHistory(w http.ResponseWriter, r *http.Request) {
	hours, err := intParam(r, "hours", 0, 0, 24*365)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var since time.Time
	if hours > 0 {
		since = s.now().Add(-time.Duration(hours) * time.Hour)
	}
	zone := s.zone(r)
	rows, err := s.d.Store.CarbonIntensityHistory(r.Context(), zone, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: no history for %s", store.ErrNotFound, zone))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"zone": zone, "history": rows})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
