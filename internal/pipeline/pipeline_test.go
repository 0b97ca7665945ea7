package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elonfeng/deepradar/internal/metrics"
	"github.com/elonfeng/deepradar/internal/store"
	"github.com/elonfeng/deepradar/pkg/embed"
	"github.com/elonfeng/deepradar/pkg/linker"
	"github.com/elonfeng/deepradar/pkg/opportunity"
	"github.com/elonfeng/deepradar/pkg/scoring"
	"github.com/elonfeng/deepradar/pkg/source"
)

var testNow = time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC) // a Wednesday

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func addPaper(t *testing.T, s store.Store, p store.Paper) int64 {
	t.Helper()
	_, err := s.UpsertPaper(context.Background(), &p)
	require.NoError(t, err)
	return p.ID
}

func addRepo(t *testing.T, s store.Store, r store.Repository) int64 {
	t.Helper()
	_, err := s.UpsertRepository(context.Background(), &r)
	require.NoError(t, err)
	return r.ID
}

type fakeNotifier struct {
	mu   sync.Mutex
	got  []opportunity.Opportunity
	sent int
}

func (f *fakeNotifier) NotifyOpportunities(_ context.Context, opps []opportunity.Opportunity) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, opps...)
	return f.sent, nil
}

func TestLinker_Run(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := metrics.New()

	paperID := addPaper(t, s, store.Paper{
		ExternalID: "2610.00001",
		Title:      "Soft Actuators for Grasping",
		Keywords:   []string{"soft-robotics"},
	})
	addPaper(t, s, store.Paper{ExternalID: "2610.00002"})
	repo := store.Repository{
		FullName:    "lab/soft-robotics-actuator",
		Description: "Pneumatic grippers",
		Topics:      []string{"soft-robotics"},
	}
	repoID := addRepo(t, s, repo)
	addRepo(t, s, store.Repository{FullName: "other/unrelated", Description: "Web framework"})

	l := NewLinker(s, linker.Options{}, m, zap.NewNop())

	stats, err := l.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Papers, "papers without text are skipped")
	assert.Equal(t, 1, stats.Created)
	assert.NotEmpty(t, stats.RunID)

	link, err := s.GetLink(ctx, paperID, repoID)
	require.NoError(t, err)
	assert.InDelta(t, 0.55, link.Confidence, 1e-9)
	assert.JSONEq(t, `{"matching_topics":["soft-robotics"],"title_overlap":["robotics","soft"],"repo_topics":["soft-robotics"]}`,
		string(link.Evidence))

	stats, err = l.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 1, stats.Unchanged)

	repo.Topics = []string{"soft-robotics", "actuators"}
	addRepo(t, s, repo)
	stats, err = l.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)
	link, err = s.GetLink(ctx, paperID, repoID)
	require.NoError(t, err)
	assert.InDelta(t, 0.65, link.Confidence, 1e-9)

	repo.Topics = nil
	addRepo(t, s, repo)
	stats, err = l.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Unchanged, "a weaker match never lowers confidence")
	link, err = s.GetLink(ctx, paperID, repoID)
	require.NoError(t, err)
	assert.InDelta(t, 0.65, link.Confidence, 1e-9)
}

func seedScoringCorpus(t *testing.T, s store.Store) (robot, vision int64) {
	t.Helper()
	published := testNow.AddDate(0, 0, -30)
	robot = addPaper(t, s, store.Paper{
		ExternalID:  "2610.10001",
		Title:       "Cryogenic Soft Robot Actuators",
		Abstract:    "Requires cleanroom fabrication and a dilution refrigerator. CMOS compatible with a pilot line.",
		Domain:      ptr("cs.RO"),
		Authors:     []string{"Ada", "Bob"},
		Keywords:    []string{"soft-robotics"},
		PublishedAt: &published,
		Embedding:   []float64{1, 0, 0},
	})
	addPaper(t, s, store.Paper{
		ExternalID: "2610.10002",
		Title:      "Graph Planning for Legged Robots",
		Abstract:   "Open source code on GitHub.",
		Domain:     ptr("cs.RO"),
		Authors:    []string{"Bob", "Cy"},
		Embedding:  []float64{0, 1, 0},
	})
	vision = addPaper(t, s, store.Paper{
		ExternalID: "2610.10003",
		Title:      "Vision Transformers at Scale",
		Domain:     ptr("cs.CV"),
		Embedding:  []float64{0, 0, 1},
	})
	addPaper(t, s, store.Paper{ExternalID: "2610.10004", Title: "Unembedded", Domain: ptr("cs.RO")})
	addPaper(t, s, store.Paper{ExternalID: "2610.10005", Title: "Unclassified", Embedding: []float64{1, 1, 0}})

	repoID := addRepo(t, s, store.Repository{FullName: "lab/soft-robotics", Stars: 300, Topics: []string{"soft-robotics"}})
	require.NoError(t, s.PutLink(context.Background(), &store.Link{PaperID: robot, RepoID: repoID, Confidence: 0.55}))
	return robot, vision
}

func TestScorer_Run(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	robot, vision := seedScoringCorpus(t, s)
	m := metrics.New()

	sc := NewScorer(s, nil, ScoreOptions{}, m, zap.NewNop())
	stats, err := sc.Run(ctx, testNow)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Domains)
	assert.Equal(t, 3, stats.Papers)
	assert.Equal(t, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), stats.WindowEnd)
	assert.Equal(t, time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC), stats.WindowStart)

	p, err := s.GetPaper(ctx, robot)
	require.NoError(t, err)
	require.NotNil(t, p.CompositeScore)
	for _, v := range []*float64{p.MoatScore, p.ScalabilityScore, p.AttentionGapScore, p.NetworkScore, p.CompositeScore} {
		require.NotNil(t, v)
		assert.True(t, *v >= 0 && *v <= 1)
	}
	assert.Greater(t, *p.MoatScore, 0.0)
	assert.NotEmpty(t, p.MoatEvidence)

	var meta ScoreMetadata
	require.NoError(t, decodeBlob(p.ScoringMetadata, &meta))
	assert.Equal(t, stats.WindowEnd, meta.WindowEnd)
	assert.NotContains(t, string(p.ScoringMetadata), "run_id")
	assert.InDelta(t, 1-30.0/365, meta.Components.Momentum, 1e-9)
	want, _ := scoring.Composite(meta.Components)
	assert.InDelta(t, want, *p.CompositeScore, 1e-9)
	assert.Equal(t, *p.MoatScore, meta.Components.Moat)

	cv, err := s.GetPaper(ctx, vision)
	require.NoError(t, err)
	require.NoError(t, decodeBlob(cv.ScoringMetadata, &meta))
	assert.Equal(t, 0.0, meta.Components.Novelty, "a lone paper sits on its centroid")
	assert.Equal(t, scoring.UnknownMomentum, meta.Components.Momentum)

	metricsRows, err := s.ListDomainMetrics(ctx, "cs.RO", 0)
	require.NoError(t, err)
	require.Len(t, metricsRows, 1)
	assert.Equal(t, 2, metricsRows[0].PaperCount)
	assert.Equal(t, 1, metricsRows[0].RepoCount)
	assert.InDelta(t, 1-0.7071067811865476, metricsRows[0].NoveltyMu, 1e-9)

	first := *p.CompositeScore
	firstMeta := string(p.ScoringMetadata)
	again, err := sc.Run(ctx, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.NotEqual(t, stats.RunID, again.RunID)
	p, err = s.GetPaper(ctx, robot)
	require.NoError(t, err)
	assert.InDelta(t, first, *p.CompositeScore, 1e-12, "re-running the same window is idempotent")
	assert.Equal(t, firstMeta, string(p.ScoringMetadata), "metadata carries no per-run values")

	metricsRows, err = s.ListDomainMetrics(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, metricsRows, 2, "same window overwrites the metric rows")
}

func TestScorer_DomainAboveVariableLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("inserts 33000 papers")
	}
	ctx := context.Background()
	s := newTestStore(t)

	const n = 33000
	var last int64
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		for i := 0; i < n; i++ {
			p := &store.Paper{
				ExternalID: fmt.Sprintf("2610.%05d", i),
				Title:      "Bulk paper",
				Domain:     ptr("cs.AI"),
				Embedding:  []float64{1, float64(i % 7)},
			}
			if _, err := tx.UpsertPaper(ctx, p); err != nil {
				return err
			}
			last = p.ID
		}
		return nil
	}))
	repoID := addRepo(t, s, store.Repository{FullName: "lab/bulk", Stars: 50})
	require.NoError(t, s.PutLink(ctx, &store.Link{PaperID: last, RepoID: repoID, Confidence: 0.6}))

	stats, err := NewScorer(s, nil, ScoreOptions{}, nil, zap.NewNop()).Run(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Domains)
	assert.Equal(t, n, stats.Papers)

	rows, err := s.ListDomainMetrics(ctx, "cs.AI", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, n, rows[0].PaperCount)
	assert.Equal(t, 1, rows[0].RepoCount, "links past the first IN chunk are seen")

	p, err := s.GetPaper(ctx, last)
	require.NoError(t, err)
	require.NotNil(t, p.AttentionGapScore)
	var gap struct {
		Stars int `json:"repo_stars"`
	}
	require.NoError(t, decodeBlob(p.AttentionGapEvidence, &gap))
	assert.Equal(t, 50, gap.Stars)
}

func TestScorer_Cancelled(t *testing.T) {
	s := newTestStore(t)
	seedScoringCorpus(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScorer(s, nil, ScoreOptions{}, nil, zap.NewNop()).Run(ctx, testNow)
	require.Error(t, err)

	papers, err := s.ListPapers(context.Background(), store.PaperFilter{MinComposite: ptr(0.0)})
	require.NoError(t, err)
	assert.Empty(t, papers, "nothing is committed")
}

// addScored inserts a paper in domain with the given composite.
func addScored(t *testing.T, s store.Store, id, domain string, composite float64) int64 {
	t.Helper()
	paperID := addPaper(t, s, store.Paper{
		ExternalID: id,
		Title:      "Paper " + id,
		Domain:     ptr(domain),
		Embedding:  []float64{1, 0},
	})
	meta := ScoreMetadata{}
	meta.Components = scoring.Components{Novelty: 0.8, Momentum: 0.6, Moat: 0.7, Scalability: 0.6, AttentionGap: 0.5, Network: 0.2}
	require.NoError(t, s.UpdatePaperScores(context.Background(), paperID, store.PaperScores{
		Moat:                0.7,
		Scalability:         0.6,
		AttentionGap:        0.5,
		Network:             0.2,
		Composite:           composite,
		MoatEvidence:        map[string]any{"total_barriers": 3},
		ScalabilityEvidence: map[string]any{"positive_signals": 2},
		Metadata:            meta,
		ScoredAt:            testNow,
	}))
	return paperID
}

func TestSelector_Run(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := metrics.New()

	scores := []float64{0.71, 0.77, 0.66, 0.74, 0.69, 0.81, 0.68, 0.72}
	ids := make([]int64, len(scores))
	for i, sc := range scores {
		ids[i] = addScored(t, s, "p"+string(rune('a'+i)), "cs.AI", sc)
	}
	addScored(t, s, "low", "cs.AI", 0.5)

	repoID := addRepo(t, s, store.Repository{FullName: "lab/agent"})
	require.NoError(t, s.PutLink(ctx, &store.Link{PaperID: ids[5], RepoID: repoID, Confidence: 0.9}))

	week := opportunity.WeekOf(testNow)
	require.NoError(t, s.ReplaceOpportunities(ctx, "cs.ZZ", week, []store.Opportunity{{
		Slug: "cs-zz-2026-10-12-1", Rank: 1, Score: 0.9, Recommendation: "STRONG_BUY", KeyPapers: []int64{999},
	}}))

	notifier := &fakeNotifier{sent: 1}
	sel := NewSelector(s, opportunity.Options{}, notifier, m, zap.NewNop())

	stats, err := sel.Run(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, week, stats.Week)
	assert.Equal(t, 8, stats.Candidates)
	assert.Equal(t, 2, stats.Domains)
	assert.Equal(t, 1, stats.Cleared)
	assert.Equal(t, 1, stats.Alerted)
	require.Len(t, stats.Opportunities, 5)
	assert.Len(t, notifier.got, 5)

	wantOrder := []int64{ids[5], ids[1], ids[3], ids[7], ids[0]}
	for i, o := range stats.Opportunities {
		assert.Equal(t, i+1, o.Rank)
		assert.Equal(t, []int64{wantOrder[i]}, o.KeyPapers)
	}
	top := stats.Opportunities[0]
	assert.Equal(t, "cs-ai-2026-10-12-1", top.Slug)
	assert.Equal(t, opportunity.TierStrongBuy, top.Tier)
	assert.Equal(t, []int64{repoID}, top.RelatedRepos)
	assert.InDelta(t, 0.8, top.Components.Novelty, 1e-9)
	assert.Contains(t, top.ExecutiveSummary, "with 3 identified barriers to replication")

	stale, err := s.ListOpportunities(ctx, store.OpportunityFilter{Domain: "cs.ZZ"})
	require.NoError(t, err)
	assert.Empty(t, stale)

	stored, err := s.ListOpportunities(ctx, store.OpportunityFilter{Domain: "cs.AI"})
	require.NoError(t, err)
	require.Len(t, stored, 5)
	assert.Equal(t, "2026-10-12", stored[0].WeekOf)
	assert.Equal(t, "STRONG_BUY", stored[0].Recommendation)

	again, err := sel.Run(ctx, testNow.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, again.Opportunities, 5)
	for i := range again.Opportunities {
		assert.Equal(t, stats.Opportunities[i].Slug, again.Opportunities[i].Slug)
		assert.Equal(t, stats.Opportunities[i].KeyPapers, again.Opportunities[i].KeyPapers)
	}
	stored, err = s.ListOpportunities(ctx, store.OpportunityFilter{Domain: "cs.AI"})
	require.NoError(t, err)
	assert.Len(t, stored, 5, "regeneration replaces rows")

	next, err := sel.Run(ctx, testNow.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, 5, next.Excluded)
	got := make([]int64, 0, len(next.Opportunities))
	for _, o := range next.Opportunities {
		got = append(got, o.KeyPapers[0])
	}
	assert.Equal(t, []int64{ids[4], ids[6], ids[2]}, got, "papers selected last week are not reselected")
}

func TestSelector_SlugConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := addScored(t, s, "dash", "cs-ai", 0.8)
	addScored(t, s, "dot", "cs.AI", 0.9)

	stats, err := NewSelector(s, opportunity.Options{}, nil, nil, zap.NewNop()).Run(ctx, testNow)
	require.NoError(t, err, "a slug clash does not abort the run")
	assert.Equal(t, 1, stats.Conflicts)
	assert.Equal(t, 1, stats.Domains)
	require.Len(t, stats.Opportunities, 1)
	assert.Equal(t, "cs-ai-2026-10-12-1", stats.Opportunities[0].Slug)
	assert.Equal(t, []int64{owner}, stats.Opportunities[0].KeyPapers)

	skipped, err := s.ListOpportunities(ctx, store.OpportunityFilter{Domain: "cs.AI"})
	require.NoError(t, err)
	assert.Empty(t, skipped)
}

func TestPipeline_Run(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedScoringCorpus(t, s)
	log := zap.NewNop()

	p := &Pipeline{
		Linker:   NewLinker(s, linker.Options{}, nil, log),
		Scorer:   NewScorer(s, nil, ScoreOptions{Workers: 2}, nil, log),
		Selector: NewSelector(s, opportunity.Options{MinScore: 0.01}, nil, nil, log),
	}
	res, err := p.Run(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scores.Papers)
	assert.Equal(t, 2, res.Selection.Domains)
	assert.Len(t, res.Selection.Opportunities, 3)
}

type brokenSource struct{}

func (brokenSource) Name() source.SourceType { return source.SourceGitHub }

func (brokenSource) Collect(context.Context) (source.Batch, error) {
	return source.Batch{}, errors.New("rate limited")
}

func TestIngester_Run(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := metrics.New()
	in := NewIngester(s, []source.Source{brokenSource{}, source.NewSample(embed.NewHash(32))}, m, zap.NewNop())

	stats, err := in.Run(ctx)
	require.NoError(t, err, "a failing source does not fail the run")
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, []source.SourceType{source.SourceGitHub}, stats.Failed)
	assert.Equal(t, 5, stats.Papers.Inserted)
	assert.Equal(t, 4, stats.Repositories.Inserted)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestErrors.WithLabelValues("github")))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.IngestItems.WithLabelValues("sample", "inserted")))

	papers, err := s.ListPapers(ctx, store.PaperFilter{HasEmbedding: true, Domain: "cs.RO"})
	require.NoError(t, err)
	require.Len(t, papers, 2)
	v, err := papers[0].Vector()
	require.NoError(t, err)
	assert.Len(t, v, 32)

	stats, err = in.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Papers.Unchanged)
	assert.Equal(t, 4, stats.Repositories.Unchanged)
	assert.Zero(t, stats.Papers.Inserted+stats.Papers.Updated)
}

type staticSource struct{ batch source.Batch }

func (staticSource) Name() source.SourceType { return source.SourceArXiv }

func (s staticSource) Collect(context.Context) (source.Batch, error) { return s.batch, nil }

func TestIngester_DomainLabelsShareSlugs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addPaper(t, s, store.Paper{ExternalID: "stored", Domain: ptr("cs.AI")})

	src := staticSource{batch: source.Batch{Papers: []source.Paper{
		{ExternalID: "a", Title: "A", Domain: "cs-ai"},
		{ExternalID: "b", Title: "B", Domain: "CS.AI"},
		{ExternalID: "c", Title: "C", Domain: "cs.RO"},
		{ExternalID: "d", Title: "D", Domain: "CS.RO"},
		{ExternalID: "e", Title: "E"},
	}}}
	stats, err := NewIngester(s, []source.Source{src}, nil, zap.NewNop()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Papers.Inserted)
	assert.Equal(t, 3, stats.Relabeled)

	domains, err := s.PaperDomains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cs.AI", "cs.RO"}, domains)
}

func TestIngester_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestStore(t)

	_, err := NewIngester(s, []source.Source{brokenSource{}}, nil, zap.NewNop()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
