package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const weekLayout = "2006-01-02"

// Opportunity is a stored entry of a domain's weekly ranking.
type Opportunity struct {
	ID               int64           `db:"id" json:"id"`
	Slug             string          `db:"slug" json:"slug"`
	Domain           string          `db:"domain" json:"domain"`
	WeekOf           string          `db:"week_of" json:"week_of"`
	Rank             int             `db:"rank" json:"rank"`
	Score            float64         `db:"score" json:"score"`
	Recommendation   string          `db:"recommendation" json:"recommendation"`
	ComponentScores  json.RawMessage `db:"-" json:"component_scores"`
	KeyPapers        []int64         `db:"-" json:"key_papers"`
	RelatedRepos     []int64         `db:"-" json:"related_repos"`
	ExecutiveSummary string          `db:"executive_summary" json:"executive_summary"`
	InvestmentThesis string          `db:"investment_thesis" json:"investment_thesis"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`

	ComponentScoresJSON string `db:"component_scores" json:"-"`
	KeyPapersJSON       string `db:"key_papers" json:"-"`
	RelatedReposJSON    string `db:"related_repos" json:"-"`
}

func (o *Opportunity) decode() error {
	o.ComponentScores = rawJSON(&o.ComponentScoresJSON)
	if err := json.Unmarshal([]byte(o.KeyPapersJSON), &o.KeyPapers); err != nil {
		return fmt.Errorf("decode key papers of %s: %w", o.Slug, err)
	}
	if err := json.Unmarshal([]byte(o.RelatedReposJSON), &o.RelatedRepos); err != nil {
		return fmt.Errorf("decode related repos of %s: %w", o.Slug, err)
	}
	return nil
}

// OpportunityFilter controls opportunity listing.
type OpportunityFilter struct {
	Domain string
	Limit  int
}

// WeekKey formats a week start the way week_of is stored.
func WeekKey(week time.Time) string {
	return week.UTC().Format(weekLayout)
}

// ReplaceOpportunities deletes every opportunity of (domain, week) and
// inserts opps in its place.
func (q *queries) ReplaceOpportunities(ctx context.Context, domain string, week time.Time, opps []Opportunity) error {
	key := WeekKey(week)
	if _, err := q.q.ExecContext(ctx,
		"DELETE FROM opportunities WHERE domain = ? AND week_of = ?", domain, key); err != nil {
		return fmt.Errorf("clear opportunities %s %s: %w", domain, key, err)
	}

	now := time.Now().UTC()
	for i := range opps {
		o := &opps[i]
		o.Domain = domain
		o.WeekOf = key
		o.CreatedAt = now
		components := "{}"
		if len(o.ComponentScores) > 0 {
			components = string(o.ComponentScores)
		}

		res, err := q.q.ExecContext(ctx, `
			INSERT INTO opportunities (slug, domain, week_of, rank, score, recommendation, component_scores,
				key_papers, related_repos, executive_summary, investment_thesis, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, o.Slug, domain, key, o.Rank, o.Score, o.Recommendation, components,
			jsonIDs(o.KeyPapers), jsonIDs(o.RelatedRepos), o.ExecutiveSummary, o.InvestmentThesis, now)
		if err != nil {
			return fmt.Errorf("insert opportunity %s: %w", o.Slug, err)
		}
		o.ID, _ = res.LastInsertId()
	}
	return nil
}

// ListOpportunities returns the newest weeks first, best score first within
// a week. Limit defaults to 50.
func (q *queries) ListOpportunities(ctx context.Context, f OpportunityFilter) ([]Opportunity, error) {
	query := "SELECT * FROM opportunities WHERE 1=1"
	var args []any
	if f.Domain != "" {
		query += " AND domain = ?"
		args = append(args, f.Domain)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY week_of DESC, score DESC, slug ASC LIMIT ?"
	args = append(args, limit)

	var opps []Opportunity
	if err := sqlx.SelectContext(ctx, q.q, &opps, query, args...); err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	for i := range opps {
		if err := opps[i].decode(); err != nil {
			return nil, fmt.Errorf("list opportunities: %w", err)
		}
	}
	return opps, nil
}

// SelectedPapers returns the key papers of domain's opportunities for weeks in
// [from, to).
func (q *queries) SelectedPapers(ctx context.Context, domain string, from, to time.Time) (map[int64]struct{}, error) {
	var blobs []string
	err := sqlx.SelectContext(ctx, q.q, &blobs, `
		SELECT key_papers FROM opportunities
		WHERE domain = ? AND week_of >= ? AND week_of < ?
	`, domain, WeekKey(from), WeekKey(to))
	if err != nil {
		return nil, fmt.Errorf("selected papers %s: %w", domain, err)
	}

	out := make(map[int64]struct{})
	for _, b := range blobs {
		var ids []int64
		if err := json.Unmarshal([]byte(b), &ids); err != nil {
			return nil, fmt.Errorf("selected papers %s: %w", domain, err)
		}
		for _, id := range ids {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// OpportunityDomains lists the domains that have opportunities for week.
func (q *queries) OpportunityDomains(ctx context.Context, week time.Time) ([]string, error) {
	var domains []string
	err := sqlx.SelectContext(ctx, q.q, &domains,
		"SELECT DISTINCT domain FROM opportunities WHERE week_of = ? ORDER BY domain", WeekKey(week))
	if err != nil {
		return nil, fmt.Errorf("opportunity domains: %w", err)
	}
	return domains, nil
}
