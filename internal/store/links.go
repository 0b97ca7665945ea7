package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Link associates a paper with a repository that likely implements it.
type Link struct {
	PaperID      int64           `db:"paper_id" json:"paper_id"`
	RepoID       int64           `db:"repo_id" json:"repo_id"`
	Confidence   float64         `db:"confidence" json:"confidence"`
	Evidence     json.RawMessage `db:"-" json:"evidence,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	EvidenceJSON string          `db:"evidence" json:"-"`
}

// Attention is the popularity of a paper's linked repositories.
type Attention struct {
	Stars int `db:"stars"`
	Links int `db:"links"`
}

func (q *queries) GetLink(ctx context.Context, paperID, repoID int64) (*Link, error) {
	var l Link
	err := sqlx.GetContext(ctx, q.q, &l,
		"SELECT * FROM paper_repo_links WHERE paper_id = ? AND repo_id = ?", paperID, repoID)
	if err != nil {
		return nil, fmt.Errorf("get link %d/%d: %w", paperID, repoID, notFound(err))
	}
	l.Evidence = rawJSON(&l.EvidenceJSON)
	return &l, nil
}

func (q *queries) ListLinks(ctx context.Context) ([]Link, error) {
	var links []Link
	err := sqlx.SelectContext(ctx, q.q, &links,
		"SELECT * FROM paper_repo_links ORDER BY paper_id, repo_id")
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	for i := range links {
		links[i].Evidence = rawJSON(&links[i].EvidenceJSON)
	}
	return links, nil
}

// PutLink writes l, replacing any link for the same pair. Callers decide
// beforehand whether the replacement is allowed.
func (q *queries) PutLink(ctx context.Context, l *Link) error {
	evidence := "{}"
	if len(l.Evidence) > 0 {
		evidence = string(l.Evidence)
	}
	now := time.Now().UTC()
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO paper_repo_links (paper_id, repo_id, confidence, evidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(paper_id, repo_id) DO UPDATE SET
			confidence = excluded.confidence,
			evidence = excluded.evidence,
			updated_at = excluded.updated_at
	`, l.PaperID, l.RepoID, l.Confidence, evidence, now, now)
	if err != nil {
		return fmt.Errorf("put link %d/%d: %w", l.PaperID, l.RepoID, err)
	}
	return nil
}

// maxInArgs bounds the IN list of one statement. SQLite refuses statements
// with more than 32766 bound variables.
var maxInArgs = 1000

// inChunks calls fn with consecutive slices of ids no longer than maxInArgs.
func inChunks(ids []int64, fn func([]int64) error) error {
	for len(ids) > 0 {
		n := min(len(ids), maxInArgs)
		if err := fn(ids[:n]); err != nil {
			return err
		}
		ids = ids[n:]
	}
	return nil
}

// LinkAttention sums the stars of linked repositories and counts the links of
// each paper. Papers without links are absent from the result.
func (q *queries) LinkAttention(ctx context.Context, paperIDs []int64) (map[int64]Attention, error) {
	out := make(map[int64]Attention, len(paperIDs))
	err := inChunks(paperIDs, func(ids []int64) error {
		query, args, err := sqlx.In(`
			SELECT l.paper_id, COALESCE(SUM(r.stars), 0) AS stars, COUNT(*) AS links
			FROM paper_repo_links l
			JOIN repositories r ON r.id = l.repo_id
			WHERE l.paper_id IN (?)
			GROUP BY l.paper_id
		`, ids)
		if err != nil {
			return err
		}

		rows, err := q.q.QueryxContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id int64
			var a Attention
			if err := rows.Scan(&id, &a.Stars, &a.Links); err != nil {
				return err
			}
			out[id] = a
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("link attention: %w", err)
	}
	return out, nil
}

// LinkedRepos returns the repository IDs linked to each paper, ascending.
func (q *queries) LinkedRepos(ctx context.Context, paperIDs []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64, len(paperIDs))
	err := inChunks(paperIDs, func(ids []int64) error {
		query, args, err := sqlx.In(
			"SELECT paper_id, repo_id FROM paper_repo_links WHERE paper_id IN (?) ORDER BY paper_id, repo_id",
			ids)
		if err != nil {
			return err
		}

		rows, err := q.q.QueryxContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var paperID, repoID int64
			if err := rows.Scan(&paperID, &repoID); err != nil {
				return err
			}
			out[paperID] = append(out[paperID], repoID)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("linked repos: %w", err)
	}
	return out, nil
}
