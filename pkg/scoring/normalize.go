package scoring

import "math"

// DefaultClip is the z-score magnitude at which normalization saturates.
const DefaultClip = 3.0

// Stats summarizes one component's raw distribution within a domain.
type Stats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	N    int     `json:"n"`
}

// ComputeStats returns the mean and population standard deviation of values.
// Std is zero for fewer than two samples.
func ComputeStats(values []float64) Stats {
	n := len(values)
	if n == 0 {
		return Stats{}
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)
	if n < 2 {
		return Stats{Mean: mean, N: n}
	}
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return Stats{Mean: mean, Std: math.Sqrt(sq / float64(n)), N: n}
}

// Normalize maps x into [0, 1] relative to s.
func (s Stats) Normalize(x float64) float64 {
	return NormalizeZScore(x, s.Mean, s.Std)
}

// NormalizeZScore maps x to [0, 1] by clipping its z-score to ±3 and
// rescaling. A zero std yields the neutral midpoint 0.5.
func NormalizeZScore(x, mean, std float64) float64 {
	return NormalizeZScoreClip(x, mean, std, DefaultClip)
}

// NormalizeZScoreClip is NormalizeZScore with a custom clip width.
func NormalizeZScoreClip(x, mean, std, clip float64) float64 {
	if std == 0 || clip <= 0 {
		return 0.5
	}
	z := clamp((x-mean)/std, -clip, clip)
	return clamp((z+clip)/(2*clip), 0, 1)
}
