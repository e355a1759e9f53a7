package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoules_KWh(t *testing.T) {
	assert.InDelta(t, 1.0, Joules(3_600_000).KWh(), 1e-12)
	assert.InDelta(t, 0.0, Joules(0).KWh(), 0)
	assert.InDelta(t, 62.5/3_600_000, Joules(62.5).KWh(), 1e-18)
}

func TestJoules_Humanized(t *testing.T) {
	assert.Equal(t, "62.50 J", Joules(62.5).Humanized())
	assert.Equal(t, "1.50 kJ", Joules(1500).Humanized())
	assert.Equal(t, "1.000 kWh", Joules(3_600_000).Humanized())
}

func TestCarbonIntensity_KgCO2(t *testing.T) {
	// 1 kWh at 50 g/kWh is 50 g.
	assert.InDelta(t, 0.05, CarbonIntensity(50).KgCO2(Joules(3_600_000)), 1e-12)
	assert.InDelta(t, 0.0, CarbonIntensity(0).KgCO2(Joules(3_600_000)), 0)
}
