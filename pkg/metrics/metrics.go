// Package metrics exposes sampling and persistence counters in Prometheus
// format. Each Metrics owns its registry; nothing is registered globally.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ja7ad/ecotrace/pkg/consumption"
	"github.com/ja7ad/ecotrace/pkg/orchestrator"
	"github.com/ja7ad/ecotrace/pkg/profiler"
)

const namespace = "ecotrace"

// Outcome status label values.
const (
	StatusOK          = "ok"
	StatusLaunch      = "launch_failure"
	StatusToolFailure = "tool_failure"
	StatusTimeout     = "timeout"
	StatusCanceled    = "canceled"
	StatusPanic       = "panic"
	StatusOther       = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	samples        *prometheus.CounterVec
	sampleSeconds  *prometheus.HistogramVec
	energyJoules   *prometheus.CounterVec
	cycles         *prometheus.CounterVec
	cycleSeconds   prometheus.Histogram
	rowsPersisted  prometheus.Counter
	persistErrors  prometheus.Counter
	rawLogErrors   prometheus.Counter
	gridIntensity  *prometheus.GaugeVec
	gridFetchError *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "samples_total",
			Help: "Profiler runs by resource and outcome status.",
		}, []string{"resource", "status"}),
		sampleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sample_duration_seconds",
			Help:    "Wall-clock time of one profiler run.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"resource"}),
		energyJoules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "energy_joules_total",
			Help: "Total energy reported by successful profiler runs.",
		}, []string{"resource"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_total",
			Help: "Sampling cycles by result.",
		}, []string{"result"}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_duration_seconds",
			Help:    "Wall-clock time of one sampling cycle.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
		rowsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rows_persisted_total",
			Help: "Sample rows written to the store.",
		}),
		persistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "persist_errors_total",
			Help: "Outcomes that could not be written to the store.",
		}),
		rawLogErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rawlog_errors_total",
			Help: "Outcomes that could not be written to the raw log.",
		}),
		gridIntensity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "grid_carbon_intensity_grams_per_kwh",
			Help: "Latest carbon intensity fetched per zone.",
		}, []string{"zone"}),
		gridFetchError: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "grid_fetch_errors_total",
			Help: "Failed Electricity Maps requests by endpoint.",
		}, []string{"endpoint"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.samples, m.sampleSeconds, m.energyJoules,
		m.cycles, m.cycleSeconds,
		m.rowsPersisted, m.persistErrors, m.rawLogErrors,
		m.gridIntensity, m.gridFetchError,
	)
	return m
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Status maps a sample error to its label value.
func Status(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, profiler.ErrLaunch):
		return StatusLaunch
	case errors.Is(err, profiler.ErrToolFailure):
		return StatusToolFailure
	case errors.Is(err, profiler.ErrTimeout):
		return StatusTimeout
	case errors.Is(err, profiler.ErrCanceled):
		return StatusCanceled
	case errors.Is(err, orchestrator.ErrPanic):
		return StatusPanic
	}
	return StatusOther
}

// ObserveOutcome records one profiler run.
func (m *Metrics) ObserveOutcome(out profiler.Outcome) {
	r := string(out.Resource)
	m.samples.WithLabelValues(r, Status(out.Err)).Inc()
	m.sampleSeconds.WithLabelValues(r).Observe(out.Elapsed.Seconds())
	if !out.OK() {
		return
	}
	var j float64
	for _, rec := range out.Metrics {
		if consumption.TotalEnergy(rec.Name) && rec.Value > 0 {
			j += rec.Value
		}
	}
	if j > 0 {
		m.energyJoules.WithLabelValues(r).Add(j)
	}
}

// ObserveCycle records a finished cycle and all of its outcomes.
func (m *Metrics) ObserveCycle(c orchestrator.Cycle) {
	result := "ok"
	switch {
	case errors.Is(c.Err, orchestrator.ErrNoProcesses):
		result = "empty"
	case c.Err != nil:
		result = "listing_unavailable"
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleSeconds.Observe(c.FinishedAt.Sub(c.StartedAt).Seconds())
	for _, out := range c.Outcomes {
		m.ObserveOutcome(out)
	}
}

// ObservePersist records the result of one store append.
func (m *Metrics) ObservePersist(rows int, err error) {
	if err != nil {
		m.persistErrors.Inc()
		return
	}
	m.rowsPersisted.Add(float64(rows))
}

// ObserveRawLog records a failed raw log write.
func (m *Metrics) ObserveRawLog(err error) {
	if err != nil {
		m.rawLogErrors.Inc()
	}
}

// SetCarbonIntensity publishes the latest reading for zone.
func (m *Metrics) SetCarbonIntensity(zone string, gramsPerKWh float64) {
	m.gridIntensity.WithLabelValues(zone).Set(gramsPerKWh)
}

// ObserveGridError counts a failed grid request.
func (m *Metrics) ObserveGridError(endpoint string) {
	m.gridFetchError.WithLabelValues(endpoint).Inc()
}
