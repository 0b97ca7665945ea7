package scoring

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCentroid(t *testing.T) {
	c, ok := Centroid([][]float64{{1, 2}, {3, 4}, {9}, nil})
	require.True(t, ok)
	assert.Equal(t, []float64{2, 3}, c)

	_, ok = Centroid(nil)
	assert.False(t, ok)

	_, ok = Centroid([][]float64{{}, nil})
	assert.False(t, ok)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"empty", nil, []float64{1}, 0},
		{"mismatched", []float64{1, 2}, []float64{1}, 0},
		{"zero_norm", []float64{0, 0}, []float64{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestMomentum(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(-d)
		return &v
	}

	assert.Equal(t, UnknownMomentum, Momentum(nil, now))
	assert.Equal(t, 1.0, Momentum(at(0), now))
	assert.Equal(t, 1.0, Momentum(at(-48*time.Hour), now), "future dates clamp to age zero")
	assert.InDelta(t, 1-100.0/365, Momentum(at(100*24*time.Hour), now), 1e-9)
	assert.Equal(t, 0.0, Momentum(at(400*24*time.Hour), now))
}

func TestNovelty(t *testing.T) {
	assert.InDelta(t, 0.0, Novelty([]float64{1, 1}, []float64{2, 2}), 1e-9)
	assert.InDelta(t, 1.0, Novelty([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 1.0, Novelty([]float64{-1, 0}, []float64{1, 0}), "opposite vectors clamp to 1")
	assert.Equal(t, 1.0, Novelty(nil, []float64{1, 0}))
}

func TestVectorScores_Bounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	now := time.Now()
	for i := 0; i < 500; i++ {
		a := randVec(rng, 8)
		b := randVec(rng, 8)
		cos := CosineSimilarity(a, b)
		assert.True(t, cos >= -1 && cos <= 1, "cosine %f", cos)

		n := Novelty(a, b)
		assert.True(t, n >= 0 && n <= 1, "novelty %f", n)

		pub := now.Add(time.Duration(rng.Int63n(int64(1000*24*time.Hour))) - 200*24*time.Hour)
		m := Momentum(&pub, now)
		assert.True(t, m >= 0 && m <= 1, "momentum %f", m)
	}
}

func randVec(rng *rand.Rand, dim int) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	return v
}

func TestNormalizeZScore(t *testing.T) {
	assert.InDelta(t, 0.5, NormalizeZScore(0.5, 0.5, 0.2), 1e-9)
	assert.Greater(t, NormalizeZScore(0.8, 0.5, 0.2), 0.5)
	assert.Less(t, NormalizeZScore(0.2, 0.5, 0.2), 0.5)
	assert.Equal(t, 0.5, NormalizeZScore(0.5, 0.5, 0))

	high := NormalizeZScore(10, 0.5, 0.2)
	assert.True(t, high >= 0.95 && high <= 1)
	low := NormalizeZScore(-10, 0.5, 0.2)
	assert.True(t, low >= 0 && low <= 0.05)

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		x, mean := rng.NormFloat64()*5, rng.NormFloat64()
		assert.Equal(t, 0.5, NormalizeZScore(x, mean, 0))

		std := rng.Float64()*3 + 1e-6
		assert.InDelta(t, 0.5, NormalizeZScore(mean, mean, std), 1e-12)

		v := NormalizeZScore(x, mean, std)
		assert.True(t, v >= 0 && v <= 1)
	}
}

func TestComputeStats(t *testing.T) {
	assert.Equal(t, Stats{}, ComputeStats(nil))
	assert.Equal(t, Stats{Mean: 4, N: 1}, ComputeStats([]float64{4}))

	s := ComputeStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5, s.Mean, 1e-9)
	assert.InDelta(t, 2, s.Std, 1e-9)
	assert.Equal(t, 8, s.N)

	assert.InDelta(t, 0, ComputeStats([]float64{3, 3, 3}).Std, 1e-12)
	assert.False(t, math.IsNaN(ComputeStats([]float64{1, 2}).Std))
}
