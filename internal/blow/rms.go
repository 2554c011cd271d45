package blow

import "math"

// RMS returns the root-mean-square of normalized time-domain samples.
// An empty frame is silent.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += s * s
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}
