package source

import (
	"context"
	"fmt"
	"time"

	"github.com/elonfeng/deepradar/pkg/embed"
)

// SourceSample marks records inserted by the development seed.
const SourceSample SourceType = "sample"

type samplePaper struct {
	id, domain, title, abstract string
	authors, keywords           []string
	age                         int // days before now
}

type sampleRepo struct {
	name, description, language string
	topics                      []string
	stars, forks, issues        int
	pushed                      int // days before now
}

var samplePapers = []samplePaper{
	{
		id: "sample.0001", domain: "cs.RO", age: 3,
		title:    "Soft Pneumatic Grippers for Delicate Manipulation",
		abstract: "We present a soft gripper with a proprietary fabrication process and patented valve design that scales to mass production at low cost.",
		authors:  []string{"Ada Lovelace", "Grace Hopper"},
		keywords: []string{"cs.RO", "soft robotics", "manipulation"},
	},
	{
		id: "sample.0002", domain: "cs.RO", age: 20,
		title:    "Learning Legged Locomotion in Minutes",
		abstract: "A massively parallel reinforcement learning pipeline trains quadruped controllers on a single GPU with a modular, open-source codebase.",
		authors:  []string{"Grace Hopper", "Alan Turing"},
		keywords: []string{"cs.RO", "locomotion", "reinforcement learning"},
	},
	{
		id: "sample.0003", domain: "cs.CV", age: 5,
		title:    "Sparse Gaussian Splatting for Real-Time Scene Capture",
		abstract: "Our novel method reconstructs scenes in real time with a unique dataset of indoor captures and hardware-accelerated rendering.",
		authors:  []string{"Barbara Liskov"},
		keywords: []string{"cs.CV", "gaussian splatting", "3d reconstruction"},
	},
	{
		id: "sample.0004", domain: "cs.CV", age: 60,
		title:    "Benchmarking Vision Transformers on Edge Devices",
		abstract: "We evaluate vision transformers on commodity edge hardware and release a reproducible benchmark suite.",
		authors:  []string{"Barbara Liskov", "Edsger Dijkstra"},
		keywords: []string{"cs.CV", "vision transformers", "edge"},
	},
	{
		id: "sample.0005", domain: "cs.LG", age: 2,
		title:    "Trade-Secret Training Recipes for Small Language Models",
		abstract: "A first-of-its-kind distillation recipe with exclusive partner data yields small models that run on a single CPU at cloud scale.",
		authors:  []string{"Alan Turing", "Ada Lovelace"},
		keywords: []string{"cs.LG", "distillation", "language models"},
	},
}

var sampleRepos = []sampleRepo{
	{"softlab/pneumatic-grippers", "Soft pneumatic grippers for delicate manipulation", "Python",
		[]string{"soft-robotics", "grippers", "manipulation"}, 420, 51, 12, 4},
	{"leggedrl/locomotion-in-minutes", "Learning legged locomotion with massively parallel RL", "Python",
		[]string{"locomotion", "reinforcement-learning", "legged-robots"}, 1800, 300, 40, 30},
	{"splat3d/sparse-gaussian-splatting", "Sparse gaussian splatting for real-time scene capture", "C++",
		[]string{"gaussian-splatting", "3d-reconstruction"}, 95, 7, 3, 2},
	{"edgebench/vit-edge", "Vision transformer benchmarks on edge devices", "Python",
		[]string{"vision-transformers", "benchmark"}, 12, 1, 0, 200},
}

// Sample yields a fixed set of papers and repositories for local
// development. Papers are embedded with the configured embedder so the
// scoring job can use them. Dates are relative to the current UTC day, so
// seeding twice on one day leaves every record unchanged.
type Sample struct {
	embedder embed.Embedder
	now      func() time.Time
}

// NewSample creates the development fixture source.
func NewSample(embedder embed.Embedder) *Sample {
	return &Sample{embedder: embedder, now: time.Now}
}

func (s *Sample) Name() SourceType { return SourceSample }

func (s *Sample) Collect(ctx context.Context) (Batch, error) {
	now := s.now().UTC().Truncate(24 * time.Hour)
	var batch Batch

	for _, p := range samplePapers {
		vec, err := s.embedder.Embed(ctx, p.title+"\n"+p.abstract)
		if err != nil {
			return Batch{}, fmt.Errorf("embed %s: %w", p.id, err)
		}
		published := now.AddDate(0, 0, -p.age)
		batch.Papers = append(batch.Papers, Paper{
			ExternalID:  p.id,
			URL:         "https://example.org/papers/" + p.id,
			Title:       p.title,
			Abstract:    p.abstract,
			Domain:      p.domain,
			Authors:     p.authors,
			Keywords:    p.keywords,
			PublishedAt: &published,
			Embedding:   vec,
		})
	}

	for _, r := range sampleRepos {
		pushed := now.AddDate(0, 0, -r.pushed)
		created := pushed.AddDate(-1, 0, 0)
		velocity, evidence := Velocity(r.stars, &pushed, now)
		batch.Repositories = append(batch.Repositories, Repository{
			FullName:         r.name,
			Description:      r.description,
			Language:         r.language,
			URL:              "https://github.com/" + r.name,
			Topics:           r.topics,
			Stars:            r.stars,
			Forks:            r.forks,
			OpenIssues:       r.issues,
			CreatedAt:        &created,
			PushedAt:         &pushed,
			ComplexityScore:  Complexity(StarScore(r.stars), r.issues),
			VelocityScore:    velocity,
			VelocityEvidence: evidence,
		})
	}
	return batch, nil
}
