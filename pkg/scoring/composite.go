package scoring

import "math"

const (
	synergyThreshold = 0.7
	synergyStep      = 0.02
	synergyCap       = 0.08
)

// Components are the six per-paper scores combined into the composite.
// A component that could not be computed is left at zero.
type Components struct {
	Novelty      float64 `json:"novelty"`
	Momentum     float64 `json:"momentum"`
	AttentionGap float64 `json:"attention_gap"`
	Moat         float64 `json:"moat"`
	Scalability  float64 `json:"scalability"`
	Network      float64 `json:"network"`
}

// Weights are the linear weights of the composite score.
type Weights struct {
	Novelty      float64 `json:"novelty"`
	Momentum     float64 `json:"momentum"`
	AttentionGap float64 `json:"attention_gap"`
	Moat         float64 `json:"moat"`
	Scalability  float64 `json:"scalability"`
	Network      float64 `json:"network"`
}

// DefaultWeights sum to 1.
var DefaultWeights = Weights{
	Novelty:      0.25,
	Momentum:     0.15,
	AttentionGap: 0.20,
	Moat:         0.20,
	Scalability:  0.15,
	Network:      0.05,
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Novelty + w.Momentum + w.AttentionGap + w.Moat + w.Scalability + w.Network
}

// CompositeMetadata explains a composite score.
type CompositeMetadata struct {
	Weights        Weights    `json:"weights"`
	Components     Components `json:"components"`
	WeightedSum    float64    `json:"weighted_sum"`
	SynergyBonus   float64    `json:"synergy_bonus"`
	HighScoreCount int        `json:"high_score_count"`
}

// Composite combines the components with DefaultWeights and adds a synergy
// bonus of 0.02 for every component above 0.7, capped at 0.08.
func Composite(c Components) (float64, CompositeMetadata) {
	w := DefaultWeights
	sum := w.Novelty*c.Novelty +
		w.Momentum*c.Momentum +
		w.AttentionGap*c.AttentionGap +
		w.Moat*c.Moat +
		w.Scalability*c.Scalability +
		w.Network*c.Network

	high := 0
	for _, s := range []float64{c.Novelty, c.Momentum, c.AttentionGap, c.Moat, c.Scalability, c.Network} {
		if s > synergyThreshold {
			high++
		}
	}
	bonus := math.Min(synergyCap, synergyStep*float64(high))

	return clamp(sum+bonus, 0, 1), CompositeMetadata{
		Weights:        w,
		Components:     c,
		WeightedSum:    sum,
		SynergyBonus:   bonus,
		HighScoreCount: high,
	}
}
