package audio

import "math"

// RMS returns the root-mean-square energy of normalized samples. The result
// lies in [0, 1] for samples in the canonical [-1, 1] range; an empty slice
// yields 0.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
