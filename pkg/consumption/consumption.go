// Package consumption turns stored profiler samples into energy and carbon
// figures: per-process totals, rankings, time series and CO2 estimates.
package consumption

import (
	"sort"
	"sync"
	"time"

	"github.com/ja7ad/ecotrace/pkg/profiler"
	"github.com/ja7ad/ecotrace/pkg/store"
	"github.com/ja7ad/ecotrace/pkg/types"
)

// TotalEnergyByProcess sums, per process name, the values of samples whose
// metric name passes filter (TotalEnergy when nil).
func TotalEnergyByProcess(samples []store.Sample, filter Filter) map[string]float64 {
	if filter == nil {
		filter = TotalEnergy
	}
	totals := make(map[string]float64)
	for _, s := range samples {
		if !filter(s.MetricName) {
			continue
		}
		totals[s.ProcessName] += s.MetricValue
	}
	return totals
}

// ToKWh converts Joules to kilowatt-hours.
func ToKWh(joules float64) float64 { return types.Joules(joules).KWh() }

// EstimateCO2Kg returns kg CO2-eq for kwh at intensity grams per kWh.
func EstimateCO2Kg(kwh, gramsPerKWh float64) float64 { return kwh * gramsPerKWh / 1000 }

// TopN returns at most n entries of totals, highest energy first. Equal
// energies are ordered by process name. n <= 0 returns everything.
func TopN(totals map[string]float64, n int) []Ranked {
	out := make([]Ranked, 0, len(totals))
	for name, j := range totals {
		out = append(out, Ranked{Process: name, Joules: j})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Joules != out[j].Joules {
			return out[i].Joules > out[j].Joules
		}
		return out[i].Process < out[j].Process
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// EnergyByTime sums filtered energy into buckets of the given width, aligned
// to the Unix epoch in UTC. Only non-empty buckets are returned, oldest first.
func EnergyByTime(samples []store.Sample, width time.Duration, filter Filter) []Bucket {
	if filter == nil {
		filter = TotalEnergy
	}
	if width <= 0 {
		width = time.Minute
	}
	sums := make(map[int64]float64)
	for _, s := range samples {
		if !filter(s.MetricName) {
			continue
		}
		sums[s.Timestamp.UTC().Truncate(width).Unix()] += s.MetricValue
	}
	out := make([]Bucket, 0, len(sums))
	for start, j := range sums {
		out = append(out, Bucket{Start: time.Unix(start, 0).UTC(), Joules: j})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Emissions converts every total to kWh and kg CO2, ordered like TopN.
func Emissions(totals map[string]float64, intensity types.CarbonIntensity) []Emission {
	ranked := TopN(totals, 0)
	out := make([]Emission, 0, len(ranked))
	for _, r := range ranked {
		j := types.Joules(r.Joules)
		out = append(out, Emission{
			Process: r.Process,
			Joules:  r.Joules,
			KWh:     j.KWh(),
			KgCO2:   intensity.KgCO2(j),
		})
	}
	return out
}

// Summarize adds up a list of emissions.
func Summarize(es []Emission, intensity types.CarbonIntensity) Summary {
	sum := Summary{Processes: len(es), Intensity: float64(intensity)}
	for _, e := range es {
		sum.Joules += e.Joules
		sum.KWh += e.KWh
		sum.KgCO2 += e.KgCO2
	}
	return sum
}

// Accumulator keeps running per-process energy across sampling cycles.
// It is safe for concurrent use.
type Accumulator struct {
	filter Filter

	mu      sync.Mutex
	totals  map[string]float64
	cumJ    float64
	samples int
}

// NewAccumulator returns an empty accumulator counting metrics that pass
// filter (TotalEnergy when nil).
func NewAccumulator(filter Filter) *Accumulator {
	if filter == nil {
		filter = TotalEnergy
	}
	return &Accumulator{filter: filter, totals: make(map[string]float64)}
}

// Apply adds the energy of a successful outcome and returns the Joules it
// contributed. Failed outcomes contribute nothing.
func (a *Accumulator) Apply(out profiler.Outcome) float64 {
	if !out.OK() {
		return 0
	}
	var j float64
	for _, m := range out.Metrics {
		if a.filter(m.Name) {
			j += m.Value
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples++
	if j != 0 {
		a.totals[out.ProcessName] += j
		a.cumJ += j
	}
	return j
}

// EnergyCumJ returns the total energy accumulated so far.
func (a *Accumulator) EnergyCumJ() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cumJ
}

// Samples returns how many successful outcomes were applied.
func (a *Accumulator) Samples() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.samples
}

// Totals returns a copy of the per-process totals.
func (a *Accumulator) Totals() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := make(map[string]float64, len(a.totals))
	for k, v := range a.totals {
		cp[k] = v
	}
	return cp
}
