package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// CacheEntry is the validator and body of the last successful fetch of a URL.
type CacheEntry struct {
	URL          string    `db:"url"`
	ETag         string    `db:"etag"`
	LastModified string    `db:"last_modified"`
	StatusCode   int       `db:"status_code"`
	Body         []byte    `db:"body"`
	FetchedAt    time.Time `db:"fetched_at"`
}

func (q *queries) GetCacheEntry(ctx context.Context, url string) (*CacheEntry, error) {
	var e CacheEntry
	err := sqlx.GetContext(ctx, q.q, &e, "SELECT * FROM http_cache WHERE url = ?", url)
	if err != nil {
		return nil, fmt.Errorf("get cache entry %s: %w", url, notFound(err))
	}
	return &e, nil
}

func (q *queries) PutCacheEntry(ctx context.Context, e *CacheEntry) error {
	if e.FetchedAt.IsZero() {
		e.FetchedAt = time.Now().UTC()
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO http_cache (url, etag, last_modified, status_code, body, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			status_code = excluded.status_code,
			body = excluded.body,
			fetched_at = excluded.fetched_at
	`, e.URL, e.ETag, e.LastModified, e.StatusCode, e.Body, e.FetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("put cache entry %s: %w", e.URL, err)
	}
	return nil
}
