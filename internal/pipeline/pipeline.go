// Package pipeline runs the batch jobs that turn ingested papers and
// repositories into links, scores and weekly opportunities.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Job names used in logs and metrics.
const (
	JobIngest    = "ingest"
	JobLinking   = "linking"
	JobScoring   = "scoring"
	JobSelection = "selection"
)

// Pipeline runs linking, scoring and selection in order.
type Pipeline struct {
	Linker   *Linker
	Scorer   *Scorer
	Selector *Selector
}

// Result collects the stats of one full pipeline run.
type Result struct {
	Links     LinkStats
	Scores    ScoreStats
	Selection SelectStats
}

// Run executes the three jobs against now, stopping at the first failure.
func (p *Pipeline) Run(ctx context.Context, now time.Time) (Result, error) {
	var (
		res Result
		err error
	)
	if res.Links, err = p.Linker.Run(ctx); err != nil {
		return res, fmt.Errorf("linking: %w", err)
	}
	if res.Scores, err = p.Scorer.Run(ctx, now); err != nil {
		return res, fmt.Errorf("scoring: %w", err)
	}
	if res.Selection, err = p.Selector.Run(ctx, now); err != nil {
		return res, fmt.Errorf("selection: %w", err)
	}
	return res, nil
}

// newRun tags a job run with a fresh ID.
func newRun(log *zap.Logger, job string) (string, *zap.Logger) {
	id := uuid.NewString()
	return id, log.With(zap.String("job", job), zap.String("run_id", id))
}
