package consumption

import (
	"strings"
	"time"
)

// Filter selects which metric names count as energy.
type Filter func(metricName string) bool

// TotalEnergy matches metric names containing "total energy", ignoring case.
// This is the profiler's per-run energy figure in Joules.
func TotalEnergy(name string) bool {
	return strings.Contains(strings.ToLower(name), "total energy")
}

// MetricNamed matches one metric name exactly, ignoring case.
func MetricNamed(metric string) Filter {
	return func(name string) bool { return strings.EqualFold(strings.TrimSpace(name), metric) }
}

// Ranked is one process and its energy in Joules.
type Ranked struct {
	Process string  `json:"process"`
	Joules  float64 `json:"joules"`
}

// Bucket is the energy of all processes within [Start, Start+width).
type Bucket struct {
	Start  time.Time `json:"start"`
	Joules float64   `json:"joules"`
}

// Emission is the carbon cost of one process.
type Emission struct {
	Process string  `json:"process"`
	Joules  float64 `json:"joules"`
	KWh     float64 `json:"kwh"`
	KgCO2   float64 `json:"kg_co2"`
}

// Summary totals a set of emissions.
type Summary struct {
	Processes int     `json:"processes"`
	Joules    float64 `json:"joules"`
	KWh       float64 `json:"kwh"`
	KgCO2     float64 `json:"kg_co2"`
	Intensity float64 `json:"intensity_g_per_kwh"`
}
