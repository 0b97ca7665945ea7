package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "deepradar"

// Job status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds the collectors of the pipeline and the ingestion sources.
type Metrics struct {
	Registry *prometheus.Registry

	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	PapersScored           prometheus.Counter
	LinksWritten           *prometheus.CounterVec
	OpportunitiesGenerated *prometheus.CounterVec

	IngestRequests *prometheus.CounterVec
	IngestItems    *prometheus.CounterVec
	IngestErrors   *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Pipeline job runs by job and status.",
		}, []string{"job", "status"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Pipeline job duration by job.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		}, []string{"job"}),
		PapersScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_scored_total",
			Help:      "Papers written by the scoring job.",
		}),
		LinksWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_written_total",
			Help:      "Paper-repository links written by the linking job, by change.",
		}, []string{"change"}),
		OpportunitiesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_generated_total",
			Help:      "Opportunities written by the selection job, by tier.",
		}, []string{"tier"}),
		IngestRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_requests_total",
			Help:      "Outbound source requests by source and HTTP status.",
		}, []string{"source", "status"}),
		IngestItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_items_total",
			Help:      "Ingested records by source and upsert result.",
		}, []string{"source", "change"}),
		IngestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      "Failed collection or storage attempts by source.",
		}, []string{"source"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.JobRuns,
		m.JobDuration,
		m.PapersScored,
		m.LinksWritten,
		m.OpportunitiesGenerated,
		m.IngestRequests,
		m.IngestItems,
		m.IngestErrors,
	)
	return m
}

// ObserveJob records one run of job that started at start.
func (m *Metrics) ObserveJob(job string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
	m.JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}
