package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/deepradar/internal/metrics"
	"github.com/elonfeng/deepradar/internal/store"
	"github.com/elonfeng/deepradar/pkg/scoring"
)

// DefaultWindowDays is the length of the scoring window.
const DefaultWindowDays = 7

// ScoreOptions tune the scoring job.
type ScoreOptions struct {
	WindowDays int
	Workers    int
}

// ScoreStats summarizes one scoring run.
type ScoreStats struct {
	RunID       string    `json:"run_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Domains     int       `json:"domains"`
	Papers      int       `json:"papers"`
	// Defaulted counts papers whose stored embedding could not be decoded
	// and that were scored with zero novelty.
	Defaulted int `json:"defaulted"`
}

// ScoreMetadata is stored as a paper's scoring_metadata. It depends only on
// the inputs and the window, so rescoring unchanged papers in the same window
// writes the same blob. The run ID stays in logs.
type ScoreMetadata struct {
	scoring.CompositeMetadata
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// Scorer computes every component score of every embedded, classified paper.
type Scorer struct {
	store   store.Store
	lexicon *scoring.Lexicon
	opts    ScoreOptions
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewScorer creates a Scorer. A nil lexicon uses the built-in one; m may be
// nil.
func NewScorer(s store.Store, lex *scoring.Lexicon, opts ScoreOptions, m *metrics.Metrics, log *zap.Logger) *Scorer {
	if lex == nil {
		lex = scoring.DefaultLexicon()
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Scorer{store: s, lexicon: lex, opts: opts, metrics: m, log: log.Named(JobScoring)}
}

// domainInput is everything needed to score one domain without the store.
type domainInput struct {
	name      string
	papers    []store.Paper
	attention map[int64]store.Attention
	repoCount int
}

type scoredPaper struct {
	id     int64
	scores store.PaperScores
}

type domainResult struct {
	papers    []scoredPaper
	metric    store.DomainMetric
	defaulted int
}

// Run scores all papers in one transaction: reads first, then the
// CPU-bound scoring fans out per domain, then every paper and domain metric
// is written. Nothing is committed unless every write succeeds.
func (s *Scorer) Run(ctx context.Context, now time.Time) (ScoreStats, error) {
	start := time.Now()
	runID, log := newRun(s.log, JobScoring)

	windowEnd := now.UTC().Truncate(24 * time.Hour)
	windowStart := windowEnd.AddDate(0, 0, -s.opts.WindowDays)
	var stats ScoreStats

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		stats = ScoreStats{RunID: runID, WindowStart: windowStart, WindowEnd: windowEnd}

		papers, err := tx.ListPapers(ctx, store.PaperFilter{HasDomain: true, HasEmbedding: true})
		if err != nil {
			return err
		}
		all, err := tx.ListPapers(ctx, store.PaperFilter{})
		if err != nil {
			return err
		}
		authorLists := make([][]string, len(all))
		for i, p := range all {
			authorLists[i] = p.Authors
		}
		coauthors := scoring.CoauthorCounts(authorLists)

		inputs, err := s.loadDomains(ctx, tx, papers)
		if err != nil {
			return err
		}

		run := ScoreMetadata{WindowStart: windowStart, WindowEnd: windowEnd}
		results := make([]domainResult, len(inputs))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.Workers)
		for i := range inputs {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = s.scoreDomain(inputs[i], coauthors, now, run, log)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, res := range results {
			for _, sp := range res.papers {
				if err := tx.UpdatePaperScores(ctx, sp.id, sp.scores); err != nil {
					return err
				}
			}
			m := res.metric
			m.WindowStart, m.WindowEnd = windowStart, windowEnd
			if err := tx.PutDomainMetric(ctx, &m); err != nil {
				return fmt.Errorf("domain metric %s: %w", inputs[i].name, err)
			}
			stats.Papers += len(res.papers)
			stats.Defaulted += res.defaulted
		}
		stats.Domains = len(inputs)
		return nil
	})

	s.metrics.ObserveJob(JobScoring, start, err)
	if err != nil {
		log.Error("scoring failed", zap.Error(err))
		return ScoreStats{RunID: runID, WindowStart: windowStart, WindowEnd: windowEnd}, fmt.Errorf("score papers: %w", err)
	}
	if s.metrics != nil {
		s.metrics.PapersScored.Add(float64(stats.Papers))
	}
	log.Info("scoring complete",
		zap.Time("window_start", windowStart),
		zap.Time("window_end", windowEnd),
		zap.Int("domains", stats.Domains),
		zap.Int("papers", stats.Papers),
		zap.Int("defaulted", stats.Defaulted),
		zap.Duration("took", time.Since(start)))
	return stats, nil
}

// loadDomains groups papers by domain, sorted by name, and prefetches each
// domain's link attention and linked repository count.
func (s *Scorer) loadDomains(ctx context.Context, tx store.Tx, papers []store.Paper) ([]domainInput, error) {
	groups := make(map[string][]store.Paper)
	for _, p := range papers {
		d := p.DomainName()
		groups[d] = append(groups[d], p)
	}
	names := make([]string, 0, len(groups))
	for d := range groups {
		names = append(names, d)
	}
	sort.Strings(names)

	inputs := make([]domainInput, 0, len(names))
	for _, d := range names {
		ids := make([]int64, len(groups[d]))
		for i, p := range groups[d] {
			ids[i] = p.ID
		}
		attention, err := tx.LinkAttention(ctx, ids)
		if err != nil {
			return nil, err
		}
		linked, err := tx.LinkedRepos(ctx, ids)
		if err != nil {
			return nil, err
		}
		repos := make(map[int64]struct{})
		for _, rs := range linked {
			for _, r := range rs {
				repos[r] = struct{}{}
			}
		}
		inputs = append(inputs, domainInput{name: d, papers: groups[d], attention: attention, repoCount: len(repos)})
	}
	return inputs, nil
}

// scoreDomain computes the six components and the composite of every paper
// in one domain. Novelty is measured against the domain centroid and the
// attention gap against the domain's attention distribution.
// run carries the window copied into every paper's metadata.
func (s *Scorer) scoreDomain(in domainInput, coauthors map[string]int, now time.Time, run ScoreMetadata, log *zap.Logger) domainResult {
	n := len(in.papers)
	res := domainResult{papers: make([]scoredPaper, n)}

	vectors := make([][]float64, n)
	for i := range in.papers {
		v, err := in.papers[i].Vector()
		if err != nil {
			log.Warn("unusable embedding, novelty defaults to 0",
				zap.Int64("paper_id", in.papers[i].ID), zap.Error(err))
			res.defaulted++
			continue
		}
		vectors[i] = v
	}
	centroid, hasCentroid := scoring.Centroid(vectors)

	var (
		novelty     = make([]float64, n)
		momentum    = make([]float64, n)
		moat        = make([]float64, n)
		scalability = make([]float64, n)
		attention   = make([]float64, n)
		gap         = make([]float64, n)
		network     = make([]float64, n)
		moatEv      = make([]scoring.MoatEvidence, n)
		scalEv      = make([]scoring.ScalabilityEvidence, n)
	)

	for i := range in.papers {
		p := &in.papers[i]
		if hasCentroid && len(vectors[i]) > 0 {
			novelty[i] = scoring.Novelty(vectors[i], centroid)
		}
		momentum[i] = scoring.Momentum(p.PublishedAt, now)
		moat[i], moatEv[i] = s.lexicon.Moat(p.Title, p.Abstract, p.Keywords)
		scalability[i], scalEv[i] = s.lexicon.Scalability(p.Title, p.Abstract, p.Keywords)
		a := in.attention[p.ID]
		attention[i] = scoring.AttentionRaw(a.Stars, a.Links)
	}
	attentionStats := scoring.ComputeStats(attention)

	for i := range in.papers {
		p := &in.papers[i]
		a := in.attention[p.ID]
		var gapEv scoring.AttentionEvidence
		gap[i], gapEv = scoring.AttentionGap(moat[i], scalability[i], a.Stars, a.Links, attentionStats)
		var netEv scoring.NetworkEvidence
		network[i], netEv = scoring.Network(p.Authors, coauthors)

		composite, composed := scoring.Composite(scoring.Components{
			Novelty:      novelty[i],
			Momentum:     momentum[i],
			AttentionGap: gap[i],
			Moat:         moat[i],
			Scalability:  scalability[i],
			Network:      network[i],
		})
		meta := run
		meta.CompositeMetadata = composed
		res.papers[i] = scoredPaper{id: p.ID, scores: store.PaperScores{
			Moat:                 moat[i],
			Scalability:          scalability[i],
			AttentionGap:         gap[i],
			Network:              network[i],
			Composite:            composite,
			MoatEvidence:         moatEv[i],
			ScalabilityEvidence:  scalEv[i],
			AttentionGapEvidence: gapEv,
			NetworkEvidence:      netEv,
			Metadata:             meta,
			ScoredAt:             now.UTC(),
		}}
	}

	res.metric = domainMetric(in, novelty, momentum, moat, scalability, gap, network)
	return res
}

func domainMetric(in domainInput, novelty, momentum, moat, scalability, gap, network []float64) store.DomainMetric {
	nov := scoring.ComputeStats(novelty)
	mom := scoring.ComputeStats(momentum)
	mo := scoring.ComputeStats(moat)
	sc := scoring.ComputeStats(scalability)
	at := scoring.ComputeStats(gap)
	nw := scoring.ComputeStats(network)
	return store.DomainMetric{
		Domain:           in.name,
		PaperCount:       len(in.papers),
		RepoCount:        in.repoCount,
		NoveltyMu:        nov.Mean,
		NoveltySigma:     nov.Std,
		MomentumMu:       mom.Mean,
		MomentumSigma:    mom.Std,
		MoatMu:           mo.Mean,
		MoatSigma:        mo.Std,
		ScalabilityMu:    sc.Mean,
		ScalabilitySigma: sc.Std,
		AttentionMu:      at.Mean,
		AttentionSigma:   at.Std,
		NetworkMu:        nw.Mean,
		NetworkSigma:     nw.Std,
	}
}
