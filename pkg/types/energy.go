package types

import "fmt"

// JoulesPerKWh is the number of joules in one kilowatt-hour.
const JoulesPerKWh = 3_600_000

// Joules is an amount of energy.
type Joules float64

// KWh converts the energy to kilowatt-hours.
func (j Joules) KWh() float64 { return float64(j) / JoulesPerKWh }

// Humanized picks J, kJ or kWh depending on magnitude.
func (j Joules) Humanized() string {
	v := float64(j)
	switch {
	case v >= JoulesPerKWh/10:
		return fmt.Sprintf("%.3f kWh", j.KWh())
	case v >= 1000:
		return fmt.Sprintf("%.2f kJ", v/1000)
	default:
		return fmt.Sprintf("%.2f J", v)
	}
}

// CarbonIntensity is grams of CO2-equivalent emitted per kWh of electricity.
type CarbonIntensity float64

// KgCO2 returns the kilograms of CO2-equivalent emitted for the given energy.
func (c CarbonIntensity) KgCO2(j Joules) float64 {
	return j.KWh() * float64(c) / 1000
}
