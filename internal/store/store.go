package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Tx is the set of operations available inside a transaction. Store
// implements it too, each call running on its own.
type Tx interface {
	UpsertPaper(ctx context.Context, p *Paper) (Change, error)
	GetPaper(ctx context.Context, id int64) (*Paper, error)
	ListPapers(ctx context.Context, f PaperFilter) ([]Paper, error)
	UpdatePaperScores(ctx context.Context, id int64, s PaperScores) error
	PaperDomains(ctx context.Context) ([]string, error)

	UpsertRepository(ctx context.Context, r *Repository) (Change, error)
	GetRepository(ctx context.Context, id int64) (*Repository, error)
	ListRepositories(ctx context.Context, limit, offset int) ([]Repository, error)

	GetLink(ctx context.Context, paperID, repoID int64) (*Link, error)
	ListLinks(ctx context.Context) ([]Link, error)
	PutLink(ctx context.Context, l *Link) error
	LinkAttention(ctx context.Context, paperIDs []int64) (map[int64]Attention, error)
	LinkedRepos(ctx context.Context, paperIDs []int64) (map[int64][]int64, error)

	PutDomainMetric(ctx context.Context, m *DomainMetric) error
	ListDomainMetrics(ctx context.Context, domain string, limit int) ([]DomainMetric, error)

	ReplaceOpportunities(ctx context.Context, domain string, week time.Time, opps []Opportunity) error
	ListOpportunities(ctx context.Context, f OpportunityFilter) ([]Opportunity, error)
	SelectedPapers(ctx context.Context, domain string, from, to time.Time) (map[int64]struct{}, error)
	OpportunityDomains(ctx context.Context, week time.Time) ([]string, error)

	GetCacheEntry(ctx context.Context, url string) (*CacheEntry, error)
	PutCacheEntry(ctx context.Context, e *CacheEntry) error
}

// Store is the persistence interface.
type Store interface {
	Tx

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise. fn must only use the Tx it is given.
	WithTx(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Change reports what an upsert did.
type Change int

const (
	Unchanged Change = iota
	Inserted
	Updated
)

func (c Change) String() string {
	switch c {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Tx    = (*queries)(nil)
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	queries
	db *sqlx.DB
}

// queries runs every statement against either the database or a transaction.
type queries struct {
	q sqlx.ExtContext
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{queries: queries{q: db}, db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&queries{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// notFound maps sql.ErrNoRows to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
