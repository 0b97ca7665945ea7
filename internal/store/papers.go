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

// Paper is an ingested research paper and its latest scores.
type Paper struct {
	ID          int64      `db:"id" json:"id"`
	ExternalID  string     `db:"external_id" json:"external_id"`
	DOI         string     `db:"doi" json:"doi,omitempty"`
	URL         string     `db:"url" json:"url,omitempty"`
	Title       string     `db:"title" json:"title"`
	Abstract    string     `db:"abstract" json:"abstract"`
	Domain      *string    `db:"domain" json:"domain"`
	Authors     []string   `db:"-" json:"authors"`
	Keywords    []string   `db:"-" json:"keywords"`
	PublishedAt *time.Time `db:"published_at" json:"published_at"`
	// Embedding is written by UpsertPaper when set. Stored vectors are read
	// back with Vector.
	Embedding []float64 `db:"-" json:"-"`

	MoatScore         *float64   `db:"moat_score" json:"moat_score"`
	ScalabilityScore  *float64   `db:"scalability_score" json:"scalability_score"`
	AttentionGapScore *float64   `db:"attention_gap_score" json:"attention_gap_score"`
	NetworkScore      *float64   `db:"network_score" json:"network_score"`
	CompositeScore    *float64   `db:"composite_score" json:"composite_score"`
	ScoredAt          *time.Time `db:"scored_at" json:"scored_at,omitempty"`

	MoatEvidence         json.RawMessage `db:"-" json:"moat_evidence,omitempty"`
	ScalabilityEvidence  json.RawMessage `db:"-" json:"scalability_evidence,omitempty"`
	AttentionGapEvidence json.RawMessage `db:"-" json:"attention_gap_evidence,omitempty"`
	NetworkEvidence      json.RawMessage `db:"-" json:"network_evidence,omitempty"`
	ScoringMetadata      json.RawMessage `db:"-" json:"scoring_metadata,omitempty"`

	IngestedAt time.Time `db:"ingested_at" json:"ingested_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`

	AuthorsJSON              string  `db:"authors" json:"-"`
	KeywordsJSON             string  `db:"keywords" json:"-"`
	EmbeddingJSON            *string `db:"embedding" json:"-"`
	MoatEvidenceJSON         *string `db:"moat_evidence" json:"-"`
	ScalabilityEvidenceJSON  *string `db:"scalability_evidence" json:"-"`
	AttentionGapEvidenceJSON *string `db:"attention_gap_evidence" json:"-"`
	NetworkEvidenceJSON      *string `db:"network_evidence" json:"-"`
	ScoringMetadataJSON      *string `db:"scoring_metadata" json:"-"`
}

// Vector decodes the stored embedding. It returns nil when the paper has none.
func (p *Paper) Vector() ([]float64, error) {
	if p.EmbeddingJSON == nil {
		return nil, nil
	}
	var v []float64
	if err := json.Unmarshal([]byte(*p.EmbeddingJSON), &v); err != nil {
		return nil, fmt.Errorf("decode embedding of paper %d: %w", p.ID, err)
	}
	return v, nil
}

// DomainName returns the domain or "" when unset.
func (p *Paper) DomainName() string {
	if p.Domain == nil {
		return ""
	}
	return *p.Domain
}

func (p *Paper) decode() error {
	if err := json.Unmarshal([]byte(p.AuthorsJSON), &p.Authors); err != nil {
		return fmt.Errorf("decode authors of paper %d: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(p.KeywordsJSON), &p.Keywords); err != nil {
		return fmt.Errorf("decode keywords of paper %d: %w", p.ID, err)
	}
	p.MoatEvidence = rawJSON(p.MoatEvidenceJSON)
	p.ScalabilityEvidence = rawJSON(p.ScalabilityEvidenceJSON)
	p.AttentionGapEvidence = rawJSON(p.AttentionGapEvidenceJSON)
	p.NetworkEvidence = rawJSON(p.NetworkEvidenceJSON)
	p.ScoringMetadata = rawJSON(p.ScoringMetadataJSON)
	return nil
}

// PaperScores is the output of one scoring pass for a paper. All fields are
// written together.
type PaperScores struct {
	Moat                 float64
	Scalability          float64
	AttentionGap         float64
	Network              float64
	Composite            float64
	MoatEvidence         any
	ScalabilityEvidence  any
	AttentionGapEvidence any
	NetworkEvidence      any
	Metadata             any
	ScoredAt             time.Time
}

// PaperFilter controls paper listing. Nil thresholds are not applied and a
// non-positive Limit returns every match.
type PaperFilter struct {
	Domain         string
	HasDomain      bool
	HasEmbedding   bool
	MinComposite   *float64
	MinMoat        *float64
	MinScalability *float64
	SortBy         string
	Limit          int
	Offset         int
}

var paperOrder = map[string]string{
	"":                "id ASC",
	"id":              "id ASC",
	"composite_score": "composite_score DESC NULLS LAST, id ASC",
	"published_at":    "published_at DESC NULLS LAST, id ASC",
}

// ValidPaperSort reports whether ListPapers accepts sortBy.
func ValidPaperSort(sortBy string) bool {
	_, ok := paperOrder[sortBy]
	return ok
}

func (q *queries) UpsertPaper(ctx context.Context, p *Paper) (Change, error) {
	now := time.Now().UTC()
	authors := jsonList(p.Authors)
	keywords := jsonList(p.Keywords)
	var embedding *string
	if p.Embedding != nil {
		b, err := json.Marshal(p.Embedding)
		if err != nil {
			return Unchanged, fmt.Errorf("encode embedding %s: %w", p.ExternalID, err)
		}
		s := string(b)
		embedding = &s
	}
	published := utcPtr(p.PublishedAt)

	var existing Paper
	err := sqlx.GetContext(ctx, q.q, &existing, "SELECT * FROM papers WHERE external_id = ?", p.ExternalID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Unchanged, fmt.Errorf("get paper %s: %w", p.ExternalID, err)
	}

	if err != nil {
		res, err := q.q.ExecContext(ctx, `
			INSERT INTO papers (external_id, doi, url, title, abstract, domain, authors, keywords, published_at, embedding, ingested_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ExternalID, p.DOI, p.URL, p.Title, p.Abstract, p.Domain,
			authors, keywords, published, embedding, now, now)
		if err != nil {
			return Unchanged, fmt.Errorf("insert paper %s: %w", p.ExternalID, err)
		}
		p.ID, _ = res.LastInsertId()
		return Inserted, nil
	}

	p.ID = existing.ID
	if embedding == nil {
		embedding = existing.EmbeddingJSON
	}
	if existing.DOI == p.DOI && existing.URL == p.URL &&
		existing.Title == p.Title && existing.Abstract == p.Abstract &&
		equalPtr(existing.Domain, p.Domain) &&
		existing.AuthorsJSON == authors && existing.KeywordsJSON == keywords &&
		equalTime(existing.PublishedAt, published) &&
		equalPtr(existing.EmbeddingJSON, embedding) {
		return Unchanged, nil
	}

	_, err = q.q.ExecContext(ctx, `
		UPDATE papers SET doi = ?, url = ?, title = ?, abstract = ?, domain = ?, authors = ?,
			keywords = ?, published_at = ?, embedding = ?, updated_at = ?
		WHERE id = ?
	`, p.DOI, p.URL, p.Title, p.Abstract, p.Domain, authors, keywords,
		published, embedding, now, p.ID)
	if err != nil {
		return Unchanged, fmt.Errorf("update paper %s: %w", p.ExternalID, err)
	}
	return Updated, nil
}

func (q *queries) GetPaper(ctx context.Context, id int64) (*Paper, error) {
	var p Paper
	err := sqlx.GetContext(ctx, q.q, &p, "SELECT * FROM papers WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get paper %d: %w", id, notFound(err))
	}
	if err := p.decode(); err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}
	return &p, nil
}

func (q *queries) ListPapers(ctx context.Context, f PaperFilter) ([]Paper, error) {
	query := "SELECT * FROM papers WHERE 1=1"
	var args []any

	if f.Domain != "" {
		query += " AND domain = ?"
		args = append(args, f.Domain)
	}
	if f.HasDomain {
		query += " AND domain IS NOT NULL AND domain != ''"
	}
	if f.HasEmbedding {
		query += " AND embedding IS NOT NULL"
	}
	if f.MinComposite != nil {
		query += " AND composite_score >= ?"
		args = append(args, *f.MinComposite)
	}
	if f.MinMoat != nil {
		query += " AND moat_score >= ?"
		args = append(args, *f.MinMoat)
	}
	if f.MinScalability != nil {
		query += " AND scalability_score >= ?"
		args = append(args, *f.MinScalability)
	}

	order, ok := paperOrder[f.SortBy]
	if !ok {
		return nil, fmt.Errorf("list papers: unknown sort %q", f.SortBy)
	}
	query += " ORDER BY " + order

	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	var papers []Paper
	if err := sqlx.SelectContext(ctx, q.q, &papers, query, args...); err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	for i := range papers {
		if err := papers[i].decode(); err != nil {
			return nil, fmt.Errorf("list papers: %w", err)
		}
	}
	return papers, nil
}

func (q *queries) UpdatePaperScores(ctx context.Context, id int64, s PaperScores) error {
	blobs := make([]*string, 0, 5)
	for _, v := range []any{s.MoatEvidence, s.ScalabilityEvidence, s.AttentionGapEvidence, s.NetworkEvidence, s.Metadata} {
		b, err := encodeJSON(v)
		if err != nil {
			return fmt.Errorf("encode scores of paper %d: %w", id, err)
		}
		blobs = append(blobs, b)
	}

	res, err := q.q.ExecContext(ctx, `
		UPDATE papers SET
			moat_score = ?, moat_evidence = ?,
			scalability_score = ?, scalability_evidence = ?,
			attention_gap_score = ?, attention_gap_evidence = ?,
			network_score = ?, network_evidence = ?,
			composite_score = ?, scoring_metadata = ?,
			scored_at = ?
		WHERE id = ?
	`, s.Moat, blobs[0], s.Scalability, blobs[1], s.AttentionGap, blobs[2],
		s.Network, blobs[3], s.Composite, blobs[4], s.ScoredAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("update scores of paper %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update scores of paper %d: %w", id, ErrNotFound)
	}
	return nil
}

// PaperDomains lists the distinct non-empty paper domains, sorted.
func (q *queries) PaperDomains(ctx context.Context) ([]string, error) {
	var domains []string
	err := sqlx.SelectContext(ctx, q.q, &domains,
		"SELECT DISTINCT domain FROM papers WHERE domain IS NOT NULL AND domain != '' ORDER BY domain")
	if err != nil {
		return nil, fmt.Errorf("paper domains: %w", err)
	}
	return domains, nil
}
