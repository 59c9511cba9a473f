package analytics

import "math"

func clipSensitivity(sensitivity float64) float64 {
	return math.Max(0, math.Min(10, sensitivity))
}

// sigmaMultiplier maps sensitivity 0..10 to 1.5σ..0.5σ.
func sigmaMultiplier(sensitivity float64) float64 {
	return 0.5 + 0.1*(10-clipSensitivity(sensitivity))
}

// zScore maps sensitivity 0..10 to a forecast error multiplier of 3..1.
func zScore(sensitivity float64) float64 {
	return 1 + 0.2*(10-clipSensitivity(sensitivity))
}
