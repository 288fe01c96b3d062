package devicesim

import "math"

// Detector constants of the sensing device.
const (
	DishAreaCm2          = 413.0
	DishAreaM2           = 0.0413
	HighDensityThreshold = 1.25 // larvae per cm²
)

// Stats is one message of the stats channel.
type Stats struct {
	LarvaeCount   int     `json:"larvae_count"`
	DensityCm2    float64 `json:"density_cm2"`
	DensityM2     float64 `json:"density_m2"`
	IsHighDensity bool    `json:"is_high_density"`
}

// ComputeStats derives densities from a larvae count the way the detector does.
func ComputeStats(count int) Stats {
	perCm2 := float64(count) / DishAreaCm2
	return Stats{
		LarvaeCount:   count,
		DensityCm2:    round2(perCm2),
		DensityM2:     round2(float64(count) / DishAreaM2),
		IsHighDensity: perCm2 > HighDensityThreshold,
	}
}

// larvaeAt is the simulated population at tick n. It swings across the
// high-density threshold.
func larvaeAt(n int) int {
	return 450 + int(math.Round(250*math.Sin(float64(n)/4)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
