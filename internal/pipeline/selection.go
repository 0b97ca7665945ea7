package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/elonfeng/deepradar/internal/metrics"
	"github.com/elonfeng/deepradar/internal/store"
	"github.com/elonfeng/deepradar/pkg/opportunity"
	"github.com/elonfeng/deepradar/pkg/scoring"
)

// Notifier is told about the opportunities of a committed selection run.
type Notifier interface {
	NotifyOpportunities(ctx context.Context, opps []opportunity.Opportunity) (int, error)
}

// SelectStats summarizes one selection run.
type SelectStats struct {
	RunID      string    `json:"run_id"`
	Week       time.Time `json:"week_of"`
	Domains    int       `json:"domains"`
	Candidates int       `json:"candidates"`
	Excluded   int       `json:"excluded"`
	Cleared    int       `json:"cleared"`
	// Conflicts counts domains skipped because an earlier domain in the run
	// owns their slug key.
	Conflicts int `json:"conflicts"`
	Alerted   int `json:"alerted"`
	// Opportunities are the rows written by the run, in domain then rank
	// order.
	Opportunities []opportunity.Opportunity `json:"opportunities"`
}

// Selector regenerates the weekly opportunity list of every domain.
type Selector struct {
	store    store.Store
	opts     opportunity.Options
	notifier Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewSelector creates a Selector. notifier and m may be nil.
func NewSelector(s store.Store, opts opportunity.Options, notifier Notifier, m *metrics.Metrics, log *zap.Logger) *Selector {
	return &Selector{store: s, opts: opts.WithDefaults(), notifier: notifier, metrics: m, log: log.Named(JobSelection)}
}

// Run selects the opportunities of the week containing now. Every domain
// with candidates, or with rows already stored for the week, is regenerated
// in one transaction. Notifications go out after the commit and their
// failures never fail the run.
func (s *Selector) Run(ctx context.Context, now time.Time) (SelectStats, error) {
	start := time.Now()
	runID, log := newRun(s.log, JobSelection)
	week := opportunity.WeekOf(now)
	var stats SelectStats

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		stats = SelectStats{RunID: runID, Week: week}

		minScore := s.opts.MinScore
		papers, err := tx.ListPapers(ctx, store.PaperFilter{
			HasDomain:    true,
			HasEmbedding: true,
			MinComposite: &minScore,
			SortBy:       "composite_score",
		})
		if err != nil {
			return err
		}

		ids := make([]int64, len(papers))
		for i, p := range papers {
			ids[i] = p.ID
		}
		linked, err := tx.LinkedRepos(ctx, ids)
		if err != nil {
			return err
		}

		groups := make(map[string][]opportunity.Candidate)
		for i := range papers {
			c := candidate(&papers[i], linked[papers[i].ID], log)
			groups[c.Domain] = append(groups[c.Domain], c)
		}
		stats.Candidates = len(papers)

		stale, err := tx.OpportunityDomains(ctx, week)
		if err != nil {
			return err
		}
		for _, d := range stale {
			if _, ok := groups[d]; !ok {
				groups[d] = nil
			}
		}
		domains := make([]string, 0, len(groups))
		for d := range groups {
			domains = append(domains, d)
		}
		sort.Strings(domains)

		keys := make(map[string]string, len(domains))
		for _, d := range domains {
			key := opportunity.DomainKey(d)
			if owner, ok := keys[key]; ok {
				log.Warn("domain shares slugs with another domain, skipped",
					zap.String("domain", d), zap.String("owner", owner))
				stats.Conflicts++
				continue
			}
			keys[key] = d

			recent, err := tx.SelectedPapers(ctx, d, opportunity.DedupSince(week, s.opts.DedupWeeks), week)
			if err != nil {
				return err
			}
			for _, c := range groups[d] {
				if _, ok := recent[c.PaperID]; ok {
					stats.Excluded++
				}
			}

			opps := opportunity.Select(d, week, groups[d], recent, s.opts)
			rows, err := opportunityRows(opps)
			if err != nil {
				return err
			}
			if err := tx.ReplaceOpportunities(ctx, d, week, rows); err != nil {
				return err
			}
			if len(opps) == 0 {
				stats.Cleared++
			}
			stats.Opportunities = append(stats.Opportunities, opps...)
		}
		stats.Domains = len(domains) - stats.Conflicts
		return nil
	})

	s.metrics.ObserveJob(JobSelection, start, err)
	if err != nil {
		log.Error("selection failed", zap.Error(err))
		return SelectStats{RunID: runID, Week: week}, fmt.Errorf("select opportunities: %w", err)
	}
	if s.metrics != nil {
		for _, o := range stats.Opportunities {
			s.metrics.OpportunitiesGenerated.WithLabelValues(string(o.Tier)).Inc()
		}
	}

	if s.notifier != nil && len(stats.Opportunities) > 0 {
		sent, err := s.notifier.NotifyOpportunities(ctx, stats.Opportunities)
		stats.Alerted = sent
		if err != nil {
			log.Warn("alerts failed", zap.Error(err))
		}
	}

	log.Info("selection complete",
		zap.String("week_of", store.WeekKey(week)),
		zap.Int("domains", stats.Domains),
		zap.Int("candidates", stats.Candidates),
		zap.Int("excluded", stats.Excluded),
		zap.Int("opportunities", len(stats.Opportunities)),
		zap.Int("cleared", stats.Cleared),
		zap.Int("conflicts", stats.Conflicts),
		zap.Int("alerted", stats.Alerted),
		zap.Duration("took", time.Since(start)))
	return stats, nil
}

// candidate reads a scored paper back into selection input. Novelty and
// momentum only live in the scoring metadata; a blob that does not decode
// leaves the affected fields at zero.
func candidate(p *store.Paper, repos []int64, log *zap.Logger) opportunity.Candidate {
	c := opportunity.Candidate{
		PaperID: p.ID,
		Title:   p.Title,
		Domain:  p.DomainName(),
		RepoIDs: repos,
	}
	if p.CompositeScore != nil {
		c.Score = *p.CompositeScore
	}

	var meta struct {
		Components scoring.Components `json:"components"`
	}
	if err := decodeBlob(p.ScoringMetadata, &meta); err != nil {
		log.Warn("undecodable scoring metadata", zap.Int64("paper_id", p.ID), zap.Error(err))
	}
	c.Components = meta.Components
	c.Components.Moat = deref(p.MoatScore)
	c.Components.Scalability = deref(p.ScalabilityScore)
	c.Components.AttentionGap = deref(p.AttentionGapScore)
	c.Components.Network = deref(p.NetworkScore)

	var moat struct {
		TotalBarriers int `json:"total_barriers"`
	}
	if err := decodeBlob(p.MoatEvidence, &moat); err != nil {
		log.Warn("undecodable moat evidence", zap.Int64("paper_id", p.ID), zap.Error(err))
	}
	var scal struct {
		PositiveSignals int `json:"positive_signals"`
	}
	if err := decodeBlob(p.ScalabilityEvidence, &scal); err != nil {
		log.Warn("undecodable scalability evidence", zap.Int64("paper_id", p.ID), zap.Error(err))
	}
	c.Barriers = moat.TotalBarriers
	c.Signals = scal.PositiveSignals
	return c
}

func opportunityRows(opps []opportunity.Opportunity) ([]store.Opportunity, error) {
	rows := make([]store.Opportunity, len(opps))
	for i, o := range opps {
		components, err := json.Marshal(o.Components)
		if err != nil {
			return nil, fmt.Errorf("encode components of %s: %w", o.Slug, err)
		}
		rows[i] = store.Opportunity{
			Slug:             o.Slug,
			Rank:             o.Rank,
			Score:            o.Score,
			Recommendation:   string(o.Tier),
			ComponentScores:  components,
			KeyPapers:        o.KeyPapers,
			RelatedRepos:     o.RelatedRepos,
			ExecutiveSummary: o.ExecutiveSummary,
			InvestmentThesis: o.InvestmentThesis,
		}
	}
	return rows, nil
}

func decodeBlob(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
