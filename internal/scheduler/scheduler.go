package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/elonfeng/deepradar/internal/pipeline"
)

// Ingester collects new papers and repositories.
type Ingester interface {
	Run(ctx context.Context) (pipeline.IngestStats, error)
}

// Runner runs the linking, scoring and selection jobs.
type Runner interface {
	Run(ctx context.Context, now time.Time) (pipeline.Result, error)
}

// Scheduler runs periodic ingestion and pipeline passes.
type Scheduler struct {
	ingester    Ingester
	pipeline    Runner
	ingestInt   time.Duration
	pipelineInt time.Duration
	now         func() time.Time
	log         *zap.Logger
}

// New creates a new scheduler.
func New(ingester Ingester, p Runner, ingestInt, pipelineInt time.Duration, log *zap.Logger) *Scheduler {
	if ingestInt <= 0 {
		ingestInt = time.Hour
	}
	if pipelineInt <= 0 {
		pipelineInt = 24 * time.Hour
	}
	return &Scheduler{
		ingester:    ingester,
		pipeline:    p,
		ingestInt:   ingestInt,
		pipelineInt: pipelineInt,
		now:         time.Now,
		log:         log.Named("scheduler"),
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled. Job
// failures are logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	ingestTicker := time.NewTicker(s.ingestInt)
	pipelineTicker := time.NewTicker(s.pipelineInt)
	defer ingestTicker.Stop()
	defer pipelineTicker.Stop()

	s.log.Info("initial ingestion and pipeline pass")
	s.ingest(ctx)
	s.runPipeline(ctx)

	s.log.Info("running",
		zap.Duration("ingest_interval", s.ingestInt),
		zap.Duration("pipeline_interval", s.pipelineInt))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopped")
			return ctx.Err()
		case <-ingestTicker.C:
			s.ingest(ctx)
		case <-pipelineTicker.C:
			s.runPipeline(ctx)
		}
	}
}

func (s *Scheduler) ingest(ctx context.Context) {
	if _, err := s.ingester.Run(ctx); err != nil {
		s.log.Error("ingestion failed", zap.Error(err))
	}
}

func (s *Scheduler) runPipeline(ctx context.Context) {
	if _, err := s.pipeline.Run(ctx, s.now()); err != nil {
		s.log.Error("pipeline failed", zap.Error(err))
	}
}
