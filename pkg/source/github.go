package source

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const githubSearchURL = "https://api.github.com/search/repositories"

// GitHubConfig configures the GitHub collector.
type GitHubConfig struct {
	Token      string
	Categories []string
	SearchDays int
	Pages      int
	PerPage    int
	BaseURL    string
}

// VelocityEvidence explains a repository's velocity score.
type VelocityEvidence struct {
	RecencyDays  int     `json:"recency_days"`
	RecencyScore float64 `json:"recency_score"`
	StarScore    float64 `json:"star_score"`
}

// GitHub searches repositories matching each category.
type GitHub struct {
	cfg     GitHubConfig
	fetcher *Fetcher
	log     *zap.Logger
	now     func() time.Time
}

// NewGitHub creates a new GitHub collector.
func NewGitHub(cfg GitHubConfig, fetcher *Fetcher, log *zap.Logger) *GitHub {
	if len(cfg.Categories) == 0 {
		cfg.Categories = []string{"cs.AI", "cs.LG"}
	}
	if cfg.SearchDays <= 0 {
		cfg.SearchDays = 30
	}
	if cfg.Pages <= 0 {
		cfg.Pages = 2
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 30
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = githubSearchURL
	}
	return &GitHub{cfg: cfg, fetcher: fetcher, log: log.Named("github"), now: time.Now}
}

func (g *GitHub) Name() SourceType { return SourceGitHub }

func (g *GitHub) Collect(ctx context.Context) (Batch, error) {
	var batch Batch
	if g.cfg.Token == "" {
		g.log.Warn("skipping github ingestion: no token configured")
		return batch, nil
	}

	now := g.now().UTC()
	since := now.AddDate(0, 0, -g.cfg.SearchDays).Format("2006-01-02")
	header := http.Header{
		"Authorization":        []string{"Bearer " + g.cfg.Token},
		"Accept":               []string{"application/vnd.github+json,application/vnd.github.mercy-preview+json"},
		"X-Github-Api-Version": []string{"2022-11-28"},
	}
	seen := make(map[string]bool)

	for _, cat := range g.cfg.Categories {
		repos, err := g.collectCategory(ctx, cat, since, header, now)
		for _, r := range repos {
			if seen[r.FullName] {
				continue
			}
			seen[r.FullName] = true
			batch.Repositories = append(batch.Repositories, r)
		}
		if err != nil {
			return batch, err
		}
	}
	return batch, nil
}

func (g *GitHub) collectCategory(ctx context.Context, cat, since string, header http.Header, now time.Time) ([]Repository, error) {
	var out []Repository
	for page := 1; page <= g.cfg.Pages; page++ {
		params := url.Values{}
		params.Set("q", fmt.Sprintf("%s in:name,description pushed:>=%s", cat, since))
		params.Set("sort", "stars")
		params.Set("order", "desc")
		params.Set("per_page", strconv.Itoa(g.cfg.PerPage))
		params.Set("page", strconv.Itoa(page))

		resp, err := g.fetcher.Get(ctx, string(SourceGitHub), g.cfg.BaseURL, params, header)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			g.log.Warn("request failed", zap.String("category", cat), zap.Error(err))
			return out, nil
		}

		switch resp.StatusCode {
		case http.StatusNotModified:
			continue
		case http.StatusForbidden:
			g.log.Warn("rate limit hit, stopping category", zap.String("category", cat))
			return out, nil
		case http.StatusOK:
		default:
			g.log.Warn("unexpected status", zap.String("category", cat), zap.Int("status", resp.StatusCode))
			return out, nil
		}

		var result ghSearchResult
		if err := json.Unmarshal(resp.Body, &result); err != nil {
			g.log.Warn("decode response", zap.String("category", cat), zap.Error(err))
			return out, nil
		}
		if len(result.Items) == 0 {
			return out, nil
		}

		for _, r := range result.Items {
			if r.FullName == "" {
				continue
			}
			out = append(out, r.toRepository(now))
		}
	}
	return out, nil
}

// StarScore maps a star count to [0, 1] on a log scale saturating at 2000.
func StarScore(stars int) float64 {
	return math.Min(1, math.Log1p(float64(max(stars, 0)))/math.Log1p(2000))
}

// Velocity blends how recently a repository was pushed (over 180 days)
// with its star score. A missing push date counts as a year old.
func Velocity(stars int, pushedAt *time.Time, now time.Time) (float64, VelocityEvidence) {
	days := 365
	if pushedAt != nil {
		days = int(now.Sub(*pushedAt).Hours() / 24)
	}
	recency := math.Max(0, math.Min(1, 1-float64(days)/180))
	star := StarScore(stars)
	return 0.6*recency + 0.4*star, VelocityEvidence{
		RecencyDays:  days,
		RecencyScore: recency,
		StarScore:    star,
	}
}

// Complexity estimates engineering depth from popularity, penalized by a
// large open-issue backlog.
func Complexity(starScore float64, openIssues int) float64 {
	penalty := math.Min(0.25, float64(openIssues)/400)
	return math.Max(0, math.Min(1, 0.35+0.5*starScore-penalty))
}

type ghSearchResult struct {
	TotalCount int      `json:"total_count"`
	Items      []ghRepo `json:"items"`
}

type ghRepo struct {
	FullName    string     `json:"full_name"`
	HTMLURL     string     `json:"html_url"`
	Description string     `json:"description"`
	Stars       int        `json:"stargazers_count"`
	Forks       int        `json:"forks_count"`
	OpenIssues  int        `json:"open_issues_count"`
	Language    string     `json:"language"`
	Topics      []string   `json:"topics"`
	CreatedAt   *time.Time `json:"created_at"`
	PushedAt    *time.Time `json:"pushed_at"`
}

func (r ghRepo) toRepository(now time.Time) Repository {
	velocity, evidence := Velocity(r.Stars, r.PushedAt, now)
	topics := r.Topics
	if topics == nil {
		topics = []string{}
	}
	return Repository{
		FullName:         r.FullName,
		Description:      r.Description,
		Language:         r.Language,
		URL:              r.HTMLURL,
		Topics:           topics,
		Stars:            r.Stars,
		Forks:            r.Forks,
		OpenIssues:       r.OpenIssues,
		CreatedAt:        r.CreatedAt,
		PushedAt:         r.PushedAt,
		ComplexityScore:  Complexity(evidence.StarScore, r.OpenIssues),
		VelocityScore:    velocity,
		VelocityEvidence: evidence,
	}
}
