package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/elonfeng/deepradar/internal/store"
)

const (
	// UserAgent is sent with every request.
	UserAgent = "deepradar/0.1"

	defaultMaxAttempts = 5
	maxBodyBytes       = 16 << 20
)

var errRetryableStatus = errors.New("retryable status")

// Cache persists validators and bodies of earlier responses. The store
// implements it.
type Cache interface {
	GetCacheEntry(ctx context.Context, url string) (*store.CacheEntry, error)
	PutCacheEntry(ctx context.Context, e *store.CacheEntry) error
}

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	// NotModified is set on a 304. Body then holds the cached body, if any.
	NotModified bool
}

// Fetcher performs conditional, rate-limited GETs with retries on 429 and
// 5xx responses.
type Fetcher struct {
	client         *http.Client
	cache          Cache
	limiter        *rate.Limiter
	maxAttempts    int
	initialBackoff time.Duration
	requests       *prometheus.CounterVec
	log            *zap.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithCache enables conditional requests backed by c.
func WithCache(c Cache) FetcherOption {
	return func(f *Fetcher) { f.cache = c }
}

// WithRateLimit allows one request every interval. Zero disables limiting.
func WithRateLimit(interval time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if interval <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		f.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// WithRetries sets the attempt count and the first retry delay.
func WithRetries(attempts int, initial time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.maxAttempts = attempts
		f.initialBackoff = initial
	}
}

// WithRequestCounter counts responses by source and status code.
func WithRequestCounter(c *prometheus.CounterVec) FetcherOption {
	return func(f *Fetcher) { f.requests = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) { f.log = l }
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:         &http.Client{Timeout: 30 * time.Second},
		limiter:        rate.NewLimiter(rate.Inf, 1),
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: time.Second,
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.maxAttempts < 1 {
		f.maxAttempts = 1
	}
	return f
}

// CacheKey identifies a request in the cache. Query parameters are sorted.
func CacheKey(rawURL string, params url.Values) string {
	if len(params) == 0 {
		return rawURL
	}
	return rawURL + "?" + params.Encode()
}

// Get fetches rawURL with params. The source label is used for metrics. When
// every attempt hits a retryable status the last response is returned
// without error.
func (f *Fetcher) Get(ctx context.Context, sourceName, rawURL string, params url.Values, header http.Header) (*Response, error) {
	key := CacheKey(rawURL, params)

	var cached *store.CacheEntry
	if f.cache != nil {
		e, err := f.cache.GetCacheEntry(ctx, key)
		switch {
		case err == nil:
			cached = e
		case !errors.Is(err, store.ErrNotFound):
			f.log.Warn("read http cache", zap.String("url", key), zap.Error(err))
		}
	}

	var resp *Response
	op := func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		r, err := f.do(ctx, key, header, cached)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp = r
		f.observe(sourceName, r.StatusCode)

		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
			return errRetryableStatus
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	notify := func(err error, wait time.Duration) {
		f.log.Debug("retrying request", zap.String("url", key), zap.Int("status", resp.StatusCode), zap.Duration("wait", wait))
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.maxAttempts-1)), ctx), notify)
	if err != nil && !errors.Is(err, errRetryableStatus) {
		f.observe(sourceName, 0)
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		resp.NotModified = true
		if cached != nil {
			resp.Body = cached.Body
			f.putCache(ctx, &store.CacheEntry{
				URL:          key,
				ETag:         firstNonEmpty(resp.Header.Get("ETag"), cached.ETag),
				LastModified: firstNonEmpty(resp.Header.Get("Last-Modified"), cached.LastModified),
				StatusCode:   cached.StatusCode,
				Body:         cached.Body,
			})
		}
	case resp.StatusCode == http.StatusOK:
		etag, lastMod := resp.Header.Get("ETag"), resp.Header.Get("Last-Modified")
		if etag != "" || lastMod != "" {
			f.putCache(ctx, &store.CacheEntry{
				URL:          key,
				ETag:         etag,
				LastModified: lastMod,
				StatusCode:   resp.StatusCode,
				Body:         resp.Body,
			})
		}
	}
	return resp, nil
}

func (f *Fetcher) do(ctx context.Context, key string, header http.Header, cached *store.CacheEntry) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, fmt.Errorf("create request %s: %w", key, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", UserAgent)
	if cached != nil {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return &Response{URL: key, StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (f *Fetcher) putCache(ctx context.Context, e *store.CacheEntry) {
	if f.cache == nil {
		return
	}
	if err := f.cache.PutCacheEntry(ctx, e); err != nil {
		f.log.Warn("write http cache", zap.String("url", e.URL), zap.Error(err))
	}
}

func (f *Fetcher) observe(sourceName string, status int) {
	if f.requests == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	f.requests.WithLabelValues(sourceName, label).Inc()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
