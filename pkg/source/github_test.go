package source

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGitHub_Collect(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.True(t, strings.HasPrefix(q.Get("q"), "cs.RO in:name,description pushed:>=2026-09-18"))
		assert.Equal(t, "stars", q.Get("sort"))

		if q.Get("page") == "2" {
			fmt.Fprint(w, `{"items":[]}`)
			return
		}
		fmt.Fprint(w, `{"total_count":2,"items":[
			{"full_name":"deeptech-labs/soft-actuator","html_url":"https://github.com/deeptech-labs/soft-actuator",
			 "description":"Soft actuators","stargazers_count":120,"forks_count":4,"open_issues_count":40,
			 "language":"Python","topics":["soft-robotics"],"created_at":"2026-01-01T00:00:00Z","pushed_at":"2026-10-08T00:00:00Z"},
			{"full_name":"","stargazers_count":1}
		]}`)
	}))
	defer srv.Close()

	g := NewGitHub(GitHubConfig{Token: "tok", Categories: []string{"cs.RO"}, BaseURL: srv.URL}, fastFetcher(), zap.NewNop())
	g.now = func() time.Time { return time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC) }

	batch, err := g.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Repositories, 1)
	assert.Equal(t, int32(2), calls.Load())

	r := batch.Repositories[0]
	assert.Equal(t, "deeptech-labs/soft-actuator", r.FullName)
	assert.Equal(t, []string{"soft-robotics"}, r.Topics)
	assert.Equal(t, 120, r.Stars)
	assert.Equal(t, 10, r.VelocityEvidence.RecencyDays)
	assert.InDelta(t, 0.6*(1-10.0/180)+0.4*StarScore(120), r.VelocityScore, 1e-9)
	assert.InDelta(t, 0.35+0.5*StarScore(120)-0.1, r.ComplexityScore, 1e-9)
}

func TestGitHub_NoToken(t *testing.T) {
	g := NewGitHub(GitHubConfig{BaseURL: "http://127.0.0.1:1"}, fastFetcher(), zap.NewNop())
	batch, err := g.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch.Repositories)
}

func TestGitHub_RateLimitStopsCategory(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	g := NewGitHub(GitHubConfig{Token: "tok", Categories: []string{"cs.AI", "cs.LG"}, BaseURL: srv.URL}, fastFetcher(), zap.NewNop())
	batch, err := g.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch.Repositories)
	assert.Equal(t, int32(2), calls.Load(), "one request per category")
}

func TestGitHub_NotModifiedSkipsPage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	g := NewGitHub(GitHubConfig{Token: "tok", Categories: []string{"cs.AI"}, BaseURL: srv.URL}, fastFetcher(), zap.NewNop())
	batch, err := g.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch.Repositories)
	assert.Equal(t, int32(2), calls.Load(), "both pages requested")
}

func TestVelocityAndComplexity(t *testing.T) {
	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	v, ev := Velocity(0, nil, now)
	assert.Equal(t, 365, ev.RecencyDays)
	assert.Equal(t, 0.0, v)

	pushed := now
	v, _ = Velocity(2000, &pushed, now)
	assert.InDelta(t, 1.0, v, 1e-9)

	assert.Equal(t, 1.0, StarScore(1_000_000))
	assert.Equal(t, 0.0, StarScore(-5))

	assert.InDelta(t, 0.35, Complexity(0, 0), 1e-9)
	assert.InDelta(t, 0.6, Complexity(1, 1000), 1e-9)
	assert.False(t, math.IsNaN(Complexity(0.5, 10)))
}

func TestClassifyDomain(t *testing.T) {
	tests := []struct {
		text       string
		candidates []string
		want       string
	}{
		{"Robot grasping", []string{"cs.AI", "cs.RO"}, "cs.RO"},
		{"", []string{"cs.LG", "cs.RO"}, "cs.LG"},
		{"nothing matches here", []string{"cs.RO", "cs.CV"}, "cs.RO"},
		{"computer vision (cv) models", nil, "cs.CV"},
		{"plain", nil, "cs.AI"},
		{"Detail", []string{"cs.AI"}, "cs.AI"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyDomain(tt.text, tt.candidates), tt.text)
	}
}
