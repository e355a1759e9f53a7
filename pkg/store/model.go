package store

import "time"

// Sample is one metric of one successful profiler run.
type Sample struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CycleID      string    `gorm:"size:36;index" json:"cycle_id"`
	PID          int       `gorm:"not null" json:"pid"`
	ProcessName  string    `gorm:"size:255" json:"process_name"`
	ResourceType string    `gorm:"size:16;not null;index:idx_samples_resource_time,priority:1" json:"resource_type"`
	MetricName   string    `gorm:"size:255;not null" json:"metric_name"`
	MetricValue  float64   `gorm:"not null" json:"metric_value"`
	Unit         *string   `gorm:"size:64" json:"unit"`
	CPUUsage     *float64  `json:"cpu_usage"` // percent at capture time
	RAMUsage     *float64  `json:"ram_usage"` // percent at capture time
	Timestamp    time.Time `gorm:"not null;index:idx_samples_resource_time,priority:2" json:"timestamp"`
}

func (Sample) TableName() string { return "samples" }

// CarbonIntensity is one reading of grid carbon intensity for a zone.
type CarbonIntensity struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Zone               string    `gorm:"size:32;not null;index:idx_ci_zone_time,priority:1" json:"zone"`
	CarbonIntensity    float64   `json:"carbon_intensity"` // gCO2eq/kWh
	Datetime           time.Time `json:"datetime"`         // validity instant reported by the provider
	EmissionFactorType string    `gorm:"size:32" json:"emission_factor_type,omitempty"`
	IsEstimated        bool      `json:"is_estimated"`
	Raw                string    `json:"-"`
	FetchedAt          time.Time `gorm:"not null;index:idx_ci_zone_time,priority:2" json:"fetched_at"`
}

func (CarbonIntensity) TableName() string { return "carbon_intensity" }

// PowerBreakdown is one reading of a zone's electricity mix.
type PowerBreakdown struct {
	ID                    uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Zone                  string    `gorm:"size:32;not null;index:idx_pb_zone_time,priority:1" json:"zone"`
	Datetime              time.Time `json:"datetime"`
	FossilFreePercentage  *float64  `json:"fossil_free_percentage"`
	RenewablePercentage   *float64  `json:"renewable_percentage"`
	PowerConsumptionTotal *float64  `json:"power_consumption_total"` // MW
	PowerProductionTotal  *float64  `json:"power_production_total"`  // MW
	Raw                   string    `json:"-"`
	FetchedAt             time.Time `gorm:"not null;index:idx_pb_zone_time,priority:2" json:"fetched_at"`
}

func (PowerBreakdown) TableName() string { return "power_breakdown" }
