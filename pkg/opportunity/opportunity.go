// Package opportunity ranks scored papers into weekly per-domain
// opportunities.
package opportunity

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/elonfeng/deepradar/pkg/scoring"
)

const (
	DefaultTopK       = 5
	DefaultMinScore   = 0.65
	DefaultDedupWeeks = 4

	weekLayout = "2006-01-02"
)

// Tier is the recommendation label of an opportunity.
type Tier string

const (
	TierStrongBuy Tier = "STRONG_BUY"
	TierBuy       Tier = "BUY"
	TierWatch     Tier = "WATCH"
	TierMonitor   Tier = "MONITOR"
)

// TierFor maps a composite score to its recommendation.
func TierFor(score float64) Tier {
	switch {
	case score >= 0.8:
		return TierStrongBuy
	case score >= 0.7:
		return TierBuy
	case score >= 0.6:
		return TierWatch
	default:
		return TierMonitor
	}
}

// Candidate is a scored paper eligible for selection.
type Candidate struct {
	PaperID    int64
	Title      string
	Domain     string
	Score      float64
	Components scoring.Components
	// Barriers and Signals are the total_barriers and positive_signals
	// counts from the paper's moat and scalability evidence.
	Barriers int
	Signals  int
	RepoIDs  []int64
}

// Snapshot is the component scores of the key paper at selection time.
type Snapshot struct {
	Composite float64 `json:"composite"`
	scoring.Components
}

// Opportunity is one ranked entry of a domain's weekly list.
type Opportunity struct {
	Slug             string    `json:"slug"`
	Domain           string    `json:"domain"`
	WeekOf           time.Time `json:"week_of"`
	Rank             int       `json:"rank"`
	Score            float64   `json:"score"`
	Tier             Tier      `json:"recommendation"`
	Components       Snapshot  `json:"component_scores"`
	KeyPapers        []int64   `json:"key_papers"`
	RelatedRepos     []int64   `json:"related_repos"`
	ExecutiveSummary string    `json:"executive_summary"`
	InvestmentThesis string    `json:"investment_thesis"`
}

// Options tune Select. Zero values take the defaults.
type Options struct {
	TopK       int
	MinScore   float64
	DedupWeeks int
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.MinScore <= 0 {
		o.MinScore = DefaultMinScore
	}
	if o.DedupWeeks <= 0 {
		o.DedupWeeks = DefaultDedupWeeks
	}
	return o
}

// WeekOf returns Monday 00:00 UTC of the ISO week containing t.
func WeekOf(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DedupSince is the first week whose selections still block re-selection in
// week.
func DedupSince(week time.Time, dedupWeeks int) time.Time {
	return week.AddDate(0, 0, -7*dedupWeeks)
}

// DomainKey is the slug form of a domain. Labels that differ only in case or
// in "." versus "-" share a key and would share slugs.
func DomainKey(domain string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(domain)), ".", "-")
}

// Slug identifies an opportunity by domain, week and rank.
func Slug(domain string, week time.Time, rank int) string {
	return fmt.Sprintf("%s-%s-%d", DomainKey(domain), week.Format(weekLayout), rank)
}

// Select builds the opportunity list of domain for week. Candidates under
// MinScore or present in recent are skipped; the rest are ranked by score,
// ties by paper ID, and the first TopK become opportunities. The result
// replaces whatever was stored for (domain, week).
func Select(domain string, week time.Time, candidates []Candidate, recent map[int64]struct{}, opts Options) []Opportunity {
	opts = opts.WithDefaults()
	week = WeekOf(week)

	pool := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score < opts.MinScore {
			continue
		}
		if _, seen := recent[c.PaperID]; seen {
			continue
		}
		pool = append(pool, c)
	}

	sort.Slice(pool, func(i, j int) bool {
		if pool[i].Score != pool[j].Score {
			return pool[i].Score > pool[j].Score
		}
		return pool[i].PaperID < pool[j].PaperID
	})
	if len(pool) > opts.TopK {
		pool = pool[:opts.TopK]
	}

	out := make([]Opportunity, 0, len(pool))
	for i, c := range pool {
		rank := i + 1
		repos := append([]int64{}, c.RepoIDs...)
		sort.Slice(repos, func(a, b int) bool { return repos[a] < repos[b] })

		out = append(out, Opportunity{
			Slug:             Slug(domain, week, rank),
			Domain:           domain,
			WeekOf:           week,
			Rank:             rank,
			Score:            c.Score,
			Tier:             TierFor(c.Score),
			Components:       Snapshot{Composite: c.Score, Components: c.Components},
			KeyPapers:        []int64{c.PaperID},
			RelatedRepos:     repos,
			ExecutiveSummary: ExecutiveSummary(c),
			InvestmentThesis: InvestmentThesis(c.Components),
		})
	}
	return out
}
