package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/elonfeng/deepradar/internal/metrics"
	"github.com/elonfeng/deepradar/internal/store"
	"github.com/elonfeng/deepradar/pkg/opportunity"
	"github.com/elonfeng/deepradar/pkg/source"
)

// ChangeCounts tallies upsert results.
type ChangeCounts struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

func (c *ChangeCounts) add(ch store.Change) {
	switch ch {
	case store.Inserted:
		c.Inserted++
	case store.Updated:
		c.Updated++
	default:
		c.Unchanged++
	}
}

// Total is the number of records seen.
func (c ChangeCounts) Total() int { return c.Inserted + c.Updated + c.Unchanged }

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	RunID        string       `json:"run_id"`
	Papers       ChangeCounts `json:"papers"`
	Repositories ChangeCounts `json:"repositories"`
	// Relabeled counts papers whose domain was rewritten to the stored
	// domain sharing its slug key.
	Relabeled int                 `json:"relabeled"`
	Failed    []source.SourceType `json:"failed,omitempty"`
}

// Ingester collects from every source and upserts the results.
type Ingester struct {
	store   store.Store
	sources []source.Source
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewIngester creates an Ingester. m may be nil.
func NewIngester(s store.Store, sources []source.Source, m *metrics.Metrics, log *zap.Logger) *Ingester {
	return &Ingester{store: s, sources: sources, metrics: m, log: log.Named(JobIngest)}
}

// Run collects each source in turn. A failing source is logged and skipped;
// each source's batch is stored in its own transaction. Only context
// cancellation aborts the run.
func (in *Ingester) Run(ctx context.Context) (IngestStats, error) {
	start := time.Now()
	runID, log := newRun(in.log, JobIngest)
	stats := IngestStats{RunID: runID}

	var runErr error
	for _, src := range in.sources {
		name := src.Name()
		batch, err := src.Collect(ctx)
		if err != nil {
			in.failed(&stats, name)
			log.Error("collect failed", zap.String("source", string(name)), zap.Error(err))
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			continue
		}

		var papers, repos ChangeCounts
		var relabeled int
		err = in.store.WithTx(ctx, func(tx store.Tx) error {
			papers, repos, relabeled = ChangeCounts{}, ChangeCounts{}, 0
			domains, err := domainLabels(ctx, tx)
			if err != nil {
				return err
			}
			for i := range batch.Papers {
				rec := paperRecord(batch.Papers[i])
				if rec.Domain != nil {
					label := domains.canonical(*rec.Domain)
					if label != *rec.Domain {
						log.Warn("domain relabeled",
							zap.String("external_id", rec.ExternalID),
							zap.String("domain", *rec.Domain),
							zap.String("stored_as", label))
						rec.Domain = &label
						relabeled++
					}
				}
				ch, err := tx.UpsertPaper(ctx, rec)
				if err != nil {
					return err
				}
				papers.add(ch)
			}
			for i := range batch.Repositories {
				ch, err := tx.UpsertRepository(ctx, repoRecord(batch.Repositories[i]))
				if err != nil {
					return err
				}
				repos.add(ch)
			}
			return nil
		})
		if err != nil {
			in.failed(&stats, name)
			log.Error("store batch failed", zap.String("source", string(name)), zap.Error(err))
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			continue
		}

		in.countItems(name, papers)
		in.countItems(name, repos)
		stats.Papers = sumCounts(stats.Papers, papers)
		stats.Repositories = sumCounts(stats.Repositories, repos)
		stats.Relabeled += relabeled
		log.Info("source ingested",
			zap.String("source", string(name)),
			zap.Int("papers", papers.Total()),
			zap.Int("repositories", repos.Total()),
			zap.Int("inserted", papers.Inserted+repos.Inserted),
			zap.Int("updated", papers.Updated+repos.Updated))
	}

	in.metrics.ObserveJob(JobIngest, start, runErr)
	log.Info("ingest complete",
		zap.Int("papers", stats.Papers.Total()),
		zap.Int("repositories", stats.Repositories.Total()),
		zap.Int("failed_sources", len(stats.Failed)),
		zap.Duration("took", time.Since(start)))
	if runErr != nil {
		return stats, fmt.Errorf("ingest: %w", runErr)
	}
	return stats, nil
}

func (in *Ingester) failed(stats *IngestStats, name source.SourceType) {
	stats.Failed = append(stats.Failed, name)
	if in.metrics != nil {
		in.metrics.IngestErrors.WithLabelValues(string(name)).Inc()
	}
}

func (in *Ingester) countItems(name source.SourceType, c ChangeCounts) {
	if in.metrics == nil {
		return
	}
	for ch, n := range map[store.Change]int{store.Inserted: c.Inserted, store.Updated: c.Updated, store.Unchanged: c.Unchanged} {
		if n > 0 {
			in.metrics.IngestItems.WithLabelValues(string(name), ch.String()).Add(float64(n))
		}
	}
}

// domainSet maps slug keys to the first domain label stored under them.
type domainSet map[string]string

func domainLabels(ctx context.Context, tx store.Tx) (domainSet, error) {
	stored, err := tx.PaperDomains(ctx)
	if err != nil {
		return nil, err
	}
	set := make(domainSet, len(stored))
	for _, d := range stored {
		set.canonical(d)
	}
	return set, nil
}

// canonical returns the label already owning d's slug key, claiming the key
// for d when it is free.
func (s domainSet) canonical(d string) string {
	key := opportunity.DomainKey(d)
	if label, ok := s[key]; ok {
		return label
	}
	s[key] = d
	return d
}

func sumCounts(a, b ChangeCounts) ChangeCounts {
	return ChangeCounts{
		Inserted:  a.Inserted + b.Inserted,
		Updated:   a.Updated + b.Updated,
		Unchanged: a.Unchanged + b.Unchanged,
	}
}

func paperRecord(p source.Paper) *store.Paper {
	rec := &store.Paper{
		ExternalID:  p.ExternalID,
		DOI:         p.DOI,
		URL:         p.URL,
		Title:       p.Title,
		Abstract:    p.Abstract,
		Authors:     p.Authors,
		Keywords:    p.Keywords,
		PublishedAt: p.PublishedAt,
		Embedding:   p.Embedding,
	}
	if p.Domain != "" {
		d := p.Domain
		rec.Domain = &d
	}
	return rec
}

func repoRecord(r source.Repository) *store.Repository {
	complexity, velocity := r.ComplexityScore, r.VelocityScore
	return &store.Repository{
		FullName:         r.FullName,
		Description:      r.Description,
		Language:         r.Language,
		URL:              r.URL,
		Topics:           r.Topics,
		Stars:            r.Stars,
		Forks:            r.Forks,
		OpenIssues:       r.OpenIssues,
		RepoCreatedAt:    r.CreatedAt,
		PushedAt:         r.PushedAt,
		ComplexityScore:  &complexity,
		VelocityScore:    &velocity,
		VelocityEvidence: r.VelocityEvidence,
	}
}
