package scoring

import "math"

// MoatEvidence records which barrier keywords produced a moat score.
type MoatEvidence struct {
	EquipmentBarriers []string `json:"equipment_barriers"`
	ProcessBarriers   []string `json:"process_barriers"`
	MaterialBarriers  []string `json:"material_barriers"`
	ComputeBarriers   []string `json:"compute_barriers"`
	OpennessSignals   []string `json:"openness_signals"`
	TotalBarriers     int      `json:"total_barriers"`
	OpennessCount     int      `json:"openness_count"`
	RawBarrierScore   float64  `json:"raw_barrier_score"`
	OpennessPenalty   float64  `json:"openness_penalty"`
}

// ScalabilityEvidence records which readiness keywords produced a scalability score.
type ScalabilityEvidence struct {
	ManufacturingSignals []string `json:"manufacturing_signals"`
	EconomicSignals      []string `json:"economic_signals"`
	MaturitySignals      []string `json:"maturity_signals"`
	BlockerSignals       []string `json:"blocker_signals"`
	PositiveSignals      int      `json:"positive_signals"`
	BlockerCount         int      `json:"blocker_count"`
	RawPositiveScore     float64  `json:"raw_positive_score"`
	BlockerPenalty       float64  `json:"blocker_penalty"`
}

// Moat scores how hard a paper's result is to replicate. Five or more
// barrier matches saturate the score; each openness signal takes 0.1 off,
// up to 0.3.
func (l *Lexicon) Moat(title, abstract string, kws []string) (float64, MoatEvidence) {
	text := scoringText(title, abstract, kws)

	ev := MoatEvidence{
		EquipmentBarriers: l.matchAll(text, l.MoatBarriers.Equipment),
		ProcessBarriers:   l.matchAll(text, l.MoatBarriers.Process),
		MaterialBarriers:  l.matchAll(text, l.MoatBarriers.Materials),
		ComputeBarriers:   l.matchAll(text, l.MoatBarriers.Compute),
		OpennessSignals:   l.matchAll(text, l.MoatBarriers.Openness),
	}
	ev.TotalBarriers = len(ev.EquipmentBarriers) + len(ev.ProcessBarriers) +
		len(ev.MaterialBarriers) + len(ev.ComputeBarriers)
	ev.OpennessCount = len(ev.OpennessSignals)

	ev.RawBarrierScore = math.Min(1, float64(ev.TotalBarriers)/5)
	ev.OpennessPenalty = math.Min(0.3, float64(ev.OpennessCount)*0.1)

	return math.Max(0, ev.RawBarrierScore-ev.OpennessPenalty), ev
}

// Scalability scores manufacturing and deployment readiness. Five or more
// positive signals saturate the score; each blocker takes 0.15 off, up to 0.4.
func (l *Lexicon) Scalability(title, abstract string, kws []string) (float64, ScalabilityEvidence) {
	text := scoringText(title, abstract, kws)

	ev := ScalabilityEvidence{
		ManufacturingSignals: l.matchAll(text, l.ScalabilitySignals.Manufacturing),
		EconomicSignals:      l.matchAll(text, l.ScalabilitySignals.Economic),
		MaturitySignals:      l.matchAll(text, l.ScalabilitySignals.Maturity),
		BlockerSignals:       l.matchAll(text, l.ScalabilitySignals.Blockers),
	}
	ev.PositiveSignals = len(ev.ManufacturingSignals) + len(ev.EconomicSignals) + len(ev.MaturitySignals)
	ev.BlockerCount = len(ev.BlockerSignals)

	ev.RawPositiveScore = math.Min(1, float64(ev.PositiveSignals)/5)
	ev.BlockerPenalty = math.Min(0.4, float64(ev.BlockerCount)*0.15)

	return math.Max(0, ev.RawPositiveScore-ev.BlockerPenalty), ev
}
