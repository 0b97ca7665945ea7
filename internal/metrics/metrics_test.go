package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveJob(t *testing.T) {
	m := New()

	m.ObserveJob("scoring", time.Now(), nil)
	m.ObserveJob("scoring", time.Now(), nil)
	m.ObserveJob("scoring", time.Now(), errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("scoring", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("scoring", StatusFailure)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.JobDuration))
}

func TestObserveJob_NilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.ObserveJob("linking", time.Now(), nil) })
}

func TestRegistryGathers(t *testing.T) {
	m := New()
	m.PapersScored.Add(3)
	m.IngestItems.WithLabelValues("arxiv", "inserted").Inc()

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["deepradar_papers_scored_total"])
	assert.True(t, names["deepradar_ingest_items_total"])
	assert.True(t, names["go_goroutines"])
}
