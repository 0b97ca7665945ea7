package scoring

// StarsPerLink is the number of stars a single paper-repository link is
// worth when measuring attention.
const StarsPerLink = 10

// AttentionEvidence explains an attention-gap score.
type AttentionEvidence struct {
	TechnicalQuality    float64 `json:"technical_quality"`
	RepoStars           int     `json:"repo_stars"`
	LinkCount           int     `json:"link_count"`
	AttentionRaw        float64 `json:"attention_raw"`
	AttentionNormalized float64 `json:"attention_normalized"`
	DomainMean          float64 `json:"domain_mean"`
	DomainStd           float64 `json:"domain_std"`
}

// AttentionRaw is the observed popularity of a paper: stars of its linked
// repositories plus a fixed credit per link.
func AttentionRaw(repoStars, linkCount int) float64 {
	return float64(repoStars + StarsPerLink*linkCount)
}

// AttentionGap scores papers that are technically strong but receive little
// attention relative to their domain. Technical quality gates the gap, so
// ignored low-quality papers stay low.
func AttentionGap(moat, scalability float64, repoStars, linkCount int, domain Stats) (float64, AttentionEvidence) {
	quality := (moat + scalability) / 2
	raw := AttentionRaw(repoStars, linkCount)
	norm := domain.Normalize(raw)

	return clamp((1-norm)*quality, 0, 1), AttentionEvidence{
		TechnicalQuality:    quality,
		RepoStars:           repoStars,
		LinkCount:           linkCount,
		AttentionRaw:        raw,
		AttentionNormalized: norm,
		DomainMean:          domain.Mean,
		DomainStd:           domain.Std,
	}
}
