package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/elonfeng/deepradar/internal/metrics"
	"github.com/elonfeng/deepradar/internal/store"
	"github.com/elonfeng/deepradar/pkg/linker"
)

// LinkStats summarizes one linking run.
type LinkStats struct {
	RunID      string `json:"run_id"`
	Papers     int    `json:"papers"`
	Candidates int    `json:"candidates"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Unchanged  int    `json:"unchanged"`
}

// Linker proposes paper-repository links and stores the ones that are new
// or more confident than before.
type Linker struct {
	store   store.Store
	opts    linker.Options
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewLinker creates a Linker. m may be nil.
func NewLinker(s store.Store, opts linker.Options, m *metrics.Metrics, log *zap.Logger) *Linker {
	return &Linker{store: s, opts: opts, metrics: m, log: log.Named(JobLinking)}
}

// Run matches every paper that has title or keyword text against every
// repository in one transaction.
func (l *Linker) Run(ctx context.Context) (LinkStats, error) {
	start := time.Now()
	runID, log := newRun(l.log, JobLinking)
	var stats LinkStats

	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		stats = LinkStats{RunID: runID}

		papers, err := tx.ListPapers(ctx, store.PaperFilter{})
		if err != nil {
			return err
		}
		repos, err := tx.ListRepositories(ctx, 0, 0)
		if err != nil {
			return err
		}
		links, err := tx.ListLinks(ctx)
		if err != nil {
			return err
		}

		candidates := make([]linker.Repo, len(repos))
		for i, r := range repos {
			candidates[i] = linker.Repo{ID: r.ID, FullName: r.FullName, Description: r.Description, Topics: r.Topics}
		}

		type pair struct{ paper, repo int64 }
		existing := make(map[pair]linker.Link, len(links))
		for _, sl := range links {
			existing[pair{sl.PaperID, sl.RepoID}] = linker.Link{
				PaperID:    sl.PaperID,
				RepoID:     sl.RepoID,
				Confidence: sl.Confidence,
			}
		}

		for _, p := range papers {
			doc := linker.Doc{ID: p.ID, Title: p.Title, Keywords: p.Keywords}
			if !linker.HasText(doc) {
				continue
			}
			stats.Papers++

			for _, c := range linker.Match(doc, candidates, l.opts) {
				stats.Candidates++
				key := pair{p.ID, c.RepoID}
				var cur *linker.Link
				if e, ok := existing[key]; ok {
					cur = &e
				}

				next, kind := linker.Reconcile(cur, linker.Link{
					PaperID:    p.ID,
					RepoID:     c.RepoID,
					Confidence: c.Confidence,
					Evidence:   c.Evidence,
				})
				switch kind {
				case linker.Unchanged:
					stats.Unchanged++
					continue
				case linker.Created:
					stats.Created++
				case linker.Updated:
					stats.Updated++
				}

				evidence, err := json.Marshal(next.Evidence)
				if err != nil {
					return fmt.Errorf("encode link evidence %d/%d: %w", next.PaperID, next.RepoID, err)
				}
				if err := tx.PutLink(ctx, &store.Link{
					PaperID:    next.PaperID,
					RepoID:     next.RepoID,
					Confidence: next.Confidence,
					Evidence:   evidence,
				}); err != nil {
					return err
				}
				existing[key] = next
			}
		}
		return nil
	})

	l.metrics.ObserveJob(JobLinking, start, err)
	if err != nil {
		log.Error("linking failed", zap.Error(err))
		return LinkStats{RunID: runID}, fmt.Errorf("link papers: %w", err)
	}
	if l.metrics != nil {
		l.metrics.LinksWritten.WithLabelValues(linker.Created.String()).Add(float64(stats.Created))
		l.metrics.LinksWritten.WithLabelValues(linker.Updated.String()).Add(float64(stats.Updated))
	}
	log.Info("linking complete",
		zap.Int("papers", stats.Papers),
		zap.Int("candidates", stats.Candidates),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("unchanged", stats.Unchanged),
		zap.Duration("took", time.Since(start)))
	return stats, nil
}
