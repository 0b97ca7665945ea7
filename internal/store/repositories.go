package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository is an ingested code repository.
type Repository struct {
	ID              int64      `db:"id" json:"id"`
	FullName        string     `db:"full_name" json:"full_name"`
	Description     string     `db:"description" json:"description"`
	Language        string     `db:"language" json:"language,omitempty"`
	URL             string     `db:"url" json:"url,omitempty"`
	Topics          []string   `db:"-" json:"topics"`
	Stars           int        `db:"stars" json:"stars"`
	Forks           int        `db:"forks" json:"forks"`
	OpenIssues      int        `db:"open_issues" json:"open_issues"`
	RepoCreatedAt   *time.Time `db:"repo_created_at" json:"created_at"`
	PushedAt        *time.Time `db:"pushed_at" json:"pushed_at"`
	ComplexityScore *float64   `db:"complexity_score" json:"complexity_score"`
	VelocityScore   *float64   `db:"velocity_score" json:"velocity_score"`
	// VelocityEvidence is any JSON-encodable value on write.
	VelocityEvidence any       `db:"-" json:"velocity_evidence,omitempty"`
	IngestedAt       time.Time `db:"ingested_at" json:"ingested_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`

	TopicsJSON           string  `db:"topics" json:"-"`
	VelocityEvidenceJSON *string `db:"velocity_evidence" json:"-"`
}

func (r *Repository) decode() error {
	if err := json.Unmarshal([]byte(r.TopicsJSON), &r.Topics); err != nil {
		return fmt.Errorf("decode topics of %s: %w", r.FullName, err)
	}
	if raw := rawJSON(r.VelocityEvidenceJSON); raw != nil {
		r.VelocityEvidence = raw
	}
	return nil
}

func (q *queries) UpsertRepository(ctx context.Context, r *Repository) (Change, error) {
	now := time.Now().UTC()
	topics := jsonList(r.Topics)
	evidence, err := encodeJSON(r.VelocityEvidence)
	if err != nil {
		return Unchanged, fmt.Errorf("encode velocity evidence %s: %w", r.FullName, err)
	}
	created := utcPtr(r.RepoCreatedAt)
	pushed := utcPtr(r.PushedAt)

	var existing Repository
	err = sqlx.GetContext(ctx, q.q, &existing, "SELECT * FROM repositories WHERE full_name = ?", r.FullName)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Unchanged, fmt.Errorf("get repository %s: %w", r.FullName, err)
	}

	if err != nil {
		res, err := q.q.ExecContext(ctx, `
			INSERT INTO repositories (full_name, description, language, url, topics, stars, forks, open_issues,
				repo_created_at, pushed_at, complexity_score, velocity_score, velocity_evidence, ingested_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.FullName, r.Description, r.Language, r.URL, topics, r.Stars, r.Forks, r.OpenIssues,
			created, pushed, r.ComplexityScore, r.VelocityScore, evidence, now, now)
		if err != nil {
			return Unchanged, fmt.Errorf("insert repository %s: %w", r.FullName, err)
		}
		r.ID, _ = res.LastInsertId()
		return Inserted, nil
	}

	r.ID = existing.ID
	if existing.Description == r.Description && existing.Language == r.Language &&
		existing.URL == r.URL && existing.TopicsJSON == topics &&
		existing.Stars == r.Stars && existing.Forks == r.Forks && existing.OpenIssues == r.OpenIssues &&
		equalTime(existing.RepoCreatedAt, created) && equalTime(existing.PushedAt, pushed) &&
		equalPtr(existing.ComplexityScore, r.ComplexityScore) &&
		equalPtr(existing.VelocityScore, r.VelocityScore) {
		return Unchanged, nil
	}

	_, err = q.q.ExecContext(ctx, `
		UPDATE repositories SET description = ?, language = ?, url = ?, topics = ?, stars = ?, forks = ?,
			open_issues = ?, repo_created_at = ?, pushed_at = ?, complexity_score = ?, velocity_score = ?,
			velocity_evidence = ?, updated_at = ?
		WHERE id = ?
	`, r.Description, r.Language, r.URL, topics, r.Stars, r.Forks, r.OpenIssues,
		created, pushed, r.ComplexityScore, r.VelocityScore, evidence, now, r.ID)
	if err != nil {
		return Unchanged, fmt.Errorf("update repository %s: %w", r.FullName, err)
	}
	return Updated, nil
}

func (q *queries) GetRepository(ctx context.Context, id int64) (*Repository, error) {
	var r Repository
	err := sqlx.GetContext(ctx, q.q, &r, "SELECT * FROM repositories WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get repository %d: %w", id, notFound(err))
	}
	if err := r.decode(); err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}
	return &r, nil
}

// ListRepositories returns repositories in insertion order. A non-positive
// limit returns all of them.
func (q *queries) ListRepositories(ctx context.Context, limit, offset int) ([]Repository, error) {
	query := "SELECT * FROM repositories ORDER BY id ASC"
	var args []any
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	var repos []Repository
	if err := sqlx.SelectContext(ctx, q.q, &repos, query, args...); err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	for i := range repos {
		if err := repos[i].decode(); err != nil {
			return nil, fmt.Errorf("list repositories: %w", err)
		}
	}
	return repos, nil
}
