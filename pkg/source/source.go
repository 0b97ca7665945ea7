// Package source collects papers and repositories from external catalogs.
package source

import (
	"context"
	"time"
)

// SourceType identifies which catalog a record came from.
type SourceType string

const (
	SourceArXiv  SourceType = "arxiv"
	SourceGitHub SourceType = "github"
)

// Paper is a paper as reported by a catalog.
type Paper struct {
	ExternalID  string
	DOI         string
	URL         string
	Title       string
	Abstract    string
	Domain      string
	Authors     []string
	Keywords    []string
	PublishedAt *time.Time
	Embedding   []float64
}

// Repository is a code repository as reported by a catalog.
type Repository struct {
	FullName         string
	Description      string
	Language         string
	URL              string
	Topics           []string
	Stars            int
	Forks            int
	OpenIssues       int
	CreatedAt        *time.Time
	PushedAt         *time.Time
	ComplexityScore  float64
	VelocityScore    float64
	VelocityEvidence VelocityEvidence
}

// Batch is the output of one collection run.
type Batch struct {
	Papers       []Paper
	Repositories []Repository
}

// Source is the interface every collector must implement.
type Source interface {
	Name() SourceType
	Collect(ctx context.Context) (Batch, error)
}

// AllSourceTypes returns all known source types.
func AllSourceTypes() []SourceType {
	return []SourceType{SourceArXiv, SourceGitHub}
}
