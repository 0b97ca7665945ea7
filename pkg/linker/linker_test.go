package linker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"soft", "robotic", "gripper", "2024"},
		Tokens("A Soft-Robotic gripper, v2 (2024)"))
	assert.Empty(t, Tokens(""))
	assert.Empty(t, Tokens("a an of"))
}

func TestPaperTokens(t *testing.T) {
	set := PaperTokens(Doc{Title: "Graph Nets", Keywords: []string{"Soft Robotics", " "}})
	for _, want := range []string{"graph", "nets", "soft robotics", "soft", "robotics"} {
		assert.Contains(t, set, want)
	}
	assert.Len(t, set, 5)
}

func TestMatch(t *testing.T) {
	paper := Doc{
		ID:       1,
		Title:    "Soft Robotic Actuators for Adaptive Grasping",
		Keywords: []string{"soft-robotics", "actuators", "grasping"},
	}
	repos := []Repo{
		{ID: 10, FullName: "lab/unrelated", Description: "web framework", Topics: []string{"http"}},
		{ID: 11, FullName: "lab/soft-actuator", Description: "Control code", Topics: []string{"soft-robotics", "actuators"}},
		{ID: 12, FullName: "lab/grasp", Description: "adaptive grasping demos"},
		{ID: 13, FullName: "lab/one-topic", Topics: []string{"grasping"}},
		{ID: 14, FullName: "lab/all-topics", Topics: []string{"soft-robotics", "actuators", "grasping", "soft", "robotic"}},
	}

	got := Match(paper, repos, Options{})
	require.Len(t, got, 3)

	assert.Equal(t, int64(14), got[0].RepoID)
	assert.InDelta(t, 0.9, got[0].Confidence, 1e-9)

	assert.Equal(t, int64(11), got[1].RepoID)
	assert.InDelta(t, 0.65, got[1].Confidence, 1e-9)
	assert.Equal(t, []string{"actuators", "soft-robotics"}, got[1].Evidence.MatchingTopics)
	assert.Contains(t, got[1].Evidence.TitleOverlap, "soft")

	assert.Equal(t, int64(13), got[2].RepoID)
	assert.InDelta(t, 0.55, got[2].Confidence, 1e-9)
}

func TestMatch_KeywordSubTokens(t *testing.T) {
	paper := Doc{ID: 1, Keywords: []string{"Quantum-Computing"}}
	repos := []Repo{{ID: 1, FullName: "lab/qc", Topics: []string{"quantum", "computing", "quantum-computing"}}}

	got := Match(paper, repos, Options{})
	require.Len(t, got, 1)
	assert.Equal(t, []string{"computing", "quantum", "quantum-computing"}, got[0].Evidence.MatchingTopics)
	assert.InDelta(t, 0.75, got[0].Confidence, 1e-9, "whole keyword plus both of its tokens")
}

func TestMatch_TextOverlapFloor(t *testing.T) {
	paper := Doc{ID: 1, Title: "Graph neural symbolic reasoning"}
	repos := []Repo{
		{ID: 1, FullName: "x/first", Description: "symbolic toolkit"},
		{ID: 2, FullName: "x/second", Description: "graph utilities"},
	}

	got := Match(paper, repos, Options{})
	require.Len(t, got, 2)
	assert.Equal(t, 0.4, got[0].Confidence)
	assert.Equal(t, int64(1), got[0].RepoID, "ties keep repository order")
	assert.Equal(t, int64(2), got[1].RepoID)
	assert.Empty(t, got[0].Evidence.MatchingTopics)
}

func TestMatch_Options(t *testing.T) {
	paper := Doc{ID: 1, Title: "graph symbolic"}
	repos := []Repo{
		{ID: 1, FullName: "a/graph"},
		{ID: 2, FullName: "b/symbolic", Topics: []string{"graph"}},
	}

	got := Match(paper, repos, Options{MinConfidence: 0.5})
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].RepoID)

	got = Match(paper, repos, Options{MaxMatches: 1})
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].RepoID)
}

func TestMatch_NoText(t *testing.T) {
	assert.False(t, HasText(Doc{Keywords: []string{"", "  "}}))
	assert.True(t, HasText(Doc{Keywords: []string{"x"}}))
	assert.Nil(t, Match(Doc{}, []Repo{{ID: 1, FullName: "a/b", Topics: []string{"graph"}}}, Options{}))
}

func TestReconcile(t *testing.T) {
	incoming := Link{PaperID: 1, RepoID: 2, Confidence: 0.55}

	got, kind := Reconcile(nil, incoming)
	assert.Equal(t, Created, kind)
	assert.Equal(t, incoming, got)

	stored := Link{PaperID: 1, RepoID: 2, Confidence: 0.65}
	got, kind = Reconcile(&stored, incoming)
	assert.Equal(t, Unchanged, kind)
	assert.Equal(t, stored, got)

	got, kind = Reconcile(&stored, Link{PaperID: 1, RepoID: 2, Confidence: 0.65})
	assert.Equal(t, Unchanged, kind)
	assert.Equal(t, stored, got)

	got, kind = Reconcile(&stored, Link{PaperID: 1, RepoID: 2, Confidence: 0.75})
	assert.Equal(t, Updated, kind)
	assert.Equal(t, 0.75, got.Confidence)
	assert.Equal(t, "updated", kind.String())
}

func TestReconcile_ConfidenceNeverDecreases(t *testing.T) {
	var stored *Link
	var best float64
	for _, c := range []float64{0.4, 0.7, 0.55, 0.9, 0.45, 0.9, 0.4} {
		got, _ := Reconcile(stored, Link{PaperID: 1, RepoID: 1, Confidence: c})
		assert.GreaterOrEqual(t, got.Confidence, best)
		best = got.Confidence
		stored = &got
	}
	assert.Equal(t, 0.9, best)
}
