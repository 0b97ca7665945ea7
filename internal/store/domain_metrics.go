package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// DomainMetric holds per-domain component statistics of one scoring window.
type DomainMetric struct {
	Domain           string    `db:"domain" json:"domain"`
	WindowStart      time.Time `db:"window_start" json:"window_start"`
	WindowEnd        time.Time `db:"window_end" json:"window_end"`
	PaperCount       int       `db:"paper_count" json:"paper_count"`
	RepoCount        int       `db:"repo_count" json:"repo_count"`
	NoveltyMu        float64   `db:"novelty_mu" json:"novelty_mu"`
	NoveltySigma     float64   `db:"novelty_sigma" json:"novelty_sigma"`
	MomentumMu       float64   `db:"momentum_mu" json:"momentum_mu"`
	MomentumSigma    float64   `db:"momentum_sigma" json:"momentum_sigma"`
	MoatMu           float64   `db:"moat_mu" json:"moat_mu"`
	MoatSigma        float64   `db:"moat_sigma" json:"moat_sigma"`
	ScalabilityMu    float64   `db:"scalability_mu" json:"scalability_mu"`
	ScalabilitySigma float64   `db:"scalability_sigma" json:"scalability_sigma"`
	AttentionMu      float64   `db:"attention_mu" json:"attention_mu"`
	AttentionSigma   float64   `db:"attention_sigma" json:"attention_sigma"`
	NetworkMu        float64   `db:"network_mu" json:"network_mu"`
	NetworkSigma     float64   `db:"network_sigma" json:"network_sigma"`
	ComputedAt       time.Time `db:"computed_at" json:"computed_at"`
}

// PutDomainMetric writes m, overwriting the row of the same domain and window.
func (q *queries) PutDomainMetric(ctx context.Context, m *DomainMetric) error {
	m.WindowStart = m.WindowStart.UTC()
	m.WindowEnd = m.WindowEnd.UTC()
	if m.ComputedAt.IsZero() {
		m.ComputedAt = time.Now().UTC()
	}

	_, err := sqlx.NamedExecContext(ctx, q.q, `
		INSERT INTO domain_metrics (domain, window_start, window_end, paper_count, repo_count,
			novelty_mu, novelty_sigma, momentum_mu, momentum_sigma, moat_mu, moat_sigma,
			scalability_mu, scalability_sigma, attention_mu, attention_sigma,
			network_mu, network_sigma, computed_at)
		VALUES (:domain, :window_start, :window_end, :paper_count, :repo_count,
			:novelty_mu, :novelty_sigma, :momentum_mu, :momentum_sigma, :moat_mu, :moat_sigma,
			:scalability_mu, :scalability_sigma, :attention_mu, :attention_sigma,
			:network_mu, :network_sigma, :computed_at)
		ON CONFLICT(domain, window_start, window_end) DO UPDATE SET
			paper_count = excluded.paper_count,
			repo_count = excluded.repo_count,
			novelty_mu = excluded.novelty_mu,
			novelty_sigma = excluded.novelty_sigma,
			momentum_mu = excluded.momentum_mu,
			momentum_sigma = excluded.momentum_sigma,
			moat_mu = excluded.moat_mu,
			moat_sigma = excluded.moat_sigma,
			scalability_mu = excluded.scalability_mu,
			scalability_sigma = excluded.scalability_sigma,
			attention_mu = excluded.attention_mu,
			attention_sigma = excluded.attention_sigma,
			network_mu = excluded.network_mu,
			network_sigma = excluded.network_sigma,
			computed_at = excluded.computed_at
	`, m)
	if err != nil {
		return fmt.Errorf("put domain metric %s: %w", m.Domain, err)
	}
	return nil
}

// ListDomainMetrics returns the newest windows first, optionally for one
// domain. Limit defaults to 50.
func (q *queries) ListDomainMetrics(ctx context.Context, domain string, limit int) ([]DomainMetric, error) {
	query := "SELECT * FROM domain_metrics WHERE 1=1"
	var args []any
	if domain != "" {
		query += " AND domain = ?"
		args = append(args, domain)
	}
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY window_end DESC, domain ASC LIMIT ?"
	args = append(args, limit)

	var metrics []DomainMetric
	if err := sqlx.SelectContext(ctx, q.q, &metrics, query, args...); err != nil {
		return nil, fmt.Errorf("list domain metrics: %w", err)
	}
	return metrics, nil
}
