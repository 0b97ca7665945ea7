package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elonfeng/deepradar/pkg/embed"
)

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <title>arXiv Query</title>
  <id>http://arxiv.org/api/query</id>
  <updated>2026-10-18T00:00:00Z</updated>
  <entry>
    <id>http://arxiv.org/abs/2610.01234v1</id>
    <published>2026-10-15T10:00:00Z</published>
    <updated>2026-10-15T10:00:00Z</updated>
    <title>Soft Robotic Actuators for Adaptive Grasping</title>
    <summary>  We present pneumatic actuators.  </summary>
    <author><name>Ada Lovelace</name></author>
    <author><name>Bob Builder</name></author>
    <arxiv:doi>10.1000/xyz</arxiv:doi>
    <arxiv:primary_category term="cs.RO" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
    <link href="http://arxiv.org/abs/2610.01234v1" rel="alternate" type="text/html"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2610.00002v2</id>
    <published>2026-10-10T10:00:00Z</published>
    <updated>2026-10-10T10:00:00Z</updated>
    <title>Graph Neural Symbolic Reasoning</title>
    <summary>Hybrid reasoning.</summary>
    <author><name>Cy Young</name></author>
    <arxiv:primary_category term="cs.AI" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.AI" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2601.00003v1</id>
    <published>2026-01-01T10:00:00Z</published>
    <updated>2026-01-01T10:00:00Z</updated>
    <title>Too Old</title>
    <summary>Outside the lookback window.</summary>
  </entry>
</feed>`

func TestArXiv_Collect(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "cat:cs.RO", q.Get("search_query"))
		assert.Equal(t, "submittedDate", q.Get("sortBy"))
		assert.Equal(t, "0", q.Get("start"))
		fmt.Fprint(w, atomFeed)
	}))
	defer srv.Close()

	a := NewArXiv(ArXivConfig{Categories: []string{"cs.RO"}, BaseURL: srv.URL}, fastFetcher(), embed.NewHash(8), zap.NewNop())
	a.now = func() time.Time { return time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC) }

	batch, err := a.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Papers, 2)
	assert.Equal(t, int32(1), calls.Load(), "an old entry stops paging")

	p := batch.Papers[0]
	assert.Equal(t, "2610.01234v1", p.ExternalID)
	assert.Equal(t, "Soft Robotic Actuators for Adaptive Grasping", p.Title)
	assert.Equal(t, "We present pneumatic actuators.", p.Abstract)
	assert.Equal(t, []string{"Ada Lovelace", "Bob Builder"}, p.Authors)
	assert.Equal(t, []string{"cs.RO", "cs.LG"}, p.Keywords)
	assert.Equal(t, "10.1000/xyz", p.DOI)
	assert.Equal(t, "cs.RO", p.Domain)
	assert.Len(t, p.Embedding, 8)
	require.NotNil(t, p.PublishedAt)
	assert.Equal(t, time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC), *p.PublishedAt)

	assert.Equal(t, []string{"cs.AI"}, batch.Papers[1].Keywords)
	assert.Equal(t, "cs.AI", batch.Papers[1].Domain)
}

func TestArXiv_Paging(t *testing.T) {
	var (
		mu     sync.Mutex
		starts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		starts = append(starts, r.URL.Query().Get("start"))
		mu.Unlock()
		fmt.Fprintf(w, `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom">
<entry><id>http://arxiv.org/abs/p%s</id><published>2026-10-17T00:00:00Z</published><title>T</title><summary>S</summary></entry>
</feed>`, r.URL.Query().Get("start"))
	}))
	defer srv.Close()

	a := NewArXiv(ArXivConfig{Categories: []string{"cs.AI"}, MaxResults: 10, BaseURL: srv.URL}, fastFetcher(), embed.NewHash(4), zap.NewNop())
	a.now = func() time.Time { return time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC) }

	batch, err := a.Collect(context.Background())
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"0", "10", "20"}, starts)
	assert.Len(t, batch.Papers, 3)
}

func TestArXiv_ErrorStatusEndsCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a := NewArXiv(ArXivConfig{Categories: []string{"cs.AI", "cs.LG"}, BaseURL: srv.URL}, fastFetcher(), embed.NewHash(4), zap.NewNop())
	batch, err := a.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch.Papers)
}
