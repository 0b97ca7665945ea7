package scoring

import (
	"math"
	"time"
)

// UnknownMomentum is the momentum given to papers with no publication date.
const UnknownMomentum = 0.1

// Centroid returns the element-wise mean of vectors. The first non-empty
// vector fixes the dimension and vectors of any other length are skipped.
// ok is false when no vector was usable.
func Centroid(vectors [][]float64) (centroid []float64, ok bool) {
	dim := 0
	for _, v := range vectors {
		if len(v) > 0 {
			dim = len(v)
			break
		}
	}
	if dim == 0 {
		return nil, false
	}

	acc := make([]float64, dim)
	count := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			acc[i] += x
		}
		count++
	}
	for i := range acc {
		acc[i] /= float64(count)
	}
	return acc, true
}

// CosineSimilarity returns the cosine of the angle between a and b, clamped
// to [-1, 1]. Empty, mismatched or zero-norm input yields 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp(dot/(math.Sqrt(na)*math.Sqrt(nb)), -1, 1)
}

// Momentum decays linearly from 1 at publication to 0 after a year.
func Momentum(publishedAt *time.Time, now time.Time) float64 {
	if publishedAt == nil || publishedAt.IsZero() {
		return UnknownMomentum
	}
	ageDays := math.Floor(now.Sub(*publishedAt).Hours() / 24)
	if ageDays < 0 {
		ageDays = 0
	}
	return clamp(1-ageDays/365, 0, 1)
}

// Novelty is the distance of an embedding from its domain centroid.
func Novelty(embedding, centroid []float64) float64 {
	return clamp(1-CosineSimilarity(embedding, centroid), 0, 1)
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}
