package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/elonfeng/deepradar/pkg/embed"
)

const arxivAPIURL = "http://export.arxiv.org/api/query"

// ArXivConfig configures the arXiv collector.
type ArXivConfig struct {
	Categories   []string
	MaxResults   int
	Pages        int
	LookbackDays int
	BaseURL      string
}

// ArXiv collects recent papers per category from the arXiv Atom API.
type ArXiv struct {
	cfg      ArXivConfig
	fetcher  *Fetcher
	parser   *gofeed.Parser
	embedder embed.Embedder
	log      *zap.Logger
	now      func() time.Time
}

// NewArXiv creates a new ArXiv collector.
func NewArXiv(cfg ArXivConfig, fetcher *Fetcher, embedder embed.Embedder, log *zap.Logger) *ArXiv {
	if len(cfg.Categories) == 0 {
		cfg.Categories = []string{"cs.AI", "cs.LG"}
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 25
	}
	if cfg.Pages <= 0 {
		cfg.Pages = 3
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 30
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = arxivAPIURL
	}
	return &ArXiv{
		cfg:      cfg,
		fetcher:  fetcher,
		parser:   gofeed.NewParser(),
		embedder: embedder,
		log:      log.Named("arxiv"),
		now:      time.Now,
	}
}

func (a *ArXiv) Name() SourceType { return SourceArXiv }

func (a *ArXiv) Collect(ctx context.Context) (Batch, error) {
	cutoff := a.now().UTC().AddDate(0, 0, -a.cfg.LookbackDays)
	seen := make(map[string]bool)
	var batch Batch

	for _, cat := range a.cfg.Categories {
		papers, err := a.collectCategory(ctx, cat, cutoff)
		if err != nil {
			return batch, err
		}
		for _, p := range papers {
			if seen[p.ExternalID] {
				continue
			}
			seen[p.ExternalID] = true
			batch.Papers = append(batch.Papers, p)
		}
	}
	return batch, nil
}

// collectCategory pages through one category until the page limit, an empty
// page or an entry older than cutoff. Request failures end the category;
// only context cancellation is returned as an error.
func (a *ArXiv) collectCategory(ctx context.Context, cat string, cutoff time.Time) ([]Paper, error) {
	header := http.Header{"Accept": []string{"application/atom+xml"}}
	var out []Paper

	for page, start := 0, 0; page < a.cfg.Pages; page, start = page+1, start+a.cfg.MaxResults {
		params := url.Values{}
		params.Set("search_query", "cat:"+cat)
		params.Set("start", strconv.Itoa(start))
		params.Set("max_results", strconv.Itoa(a.cfg.MaxResults))
		params.Set("sortBy", "submittedDate")
		params.Set("sortOrder", "descending")

		resp, err := a.fetcher.Get(ctx, string(SourceArXiv), a.cfg.BaseURL, params, header)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			a.log.Warn("request failed", zap.String("category", cat), zap.Error(err))
			return out, nil
		}
		if resp.StatusCode != http.StatusOK && !resp.NotModified {
			a.log.Warn("unexpected status", zap.String("category", cat), zap.Int("status", resp.StatusCode))
			return out, nil
		}

		feed, err := a.parser.ParseString(string(resp.Body))
		if err != nil {
			a.log.Warn("parse feed", zap.String("category", cat), zap.Error(err))
			return out, nil
		}
		if len(feed.Items) == 0 {
			return out, nil
		}

		for _, item := range feed.Items {
			if item.PublishedParsed != nil && item.PublishedParsed.Before(cutoff) {
				return out, nil
			}
			p, err := a.toPaper(ctx, item)
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				a.log.Warn("skip entry", zap.String("id", item.GUID), zap.Error(err))
				continue
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func (a *ArXiv) toPaper(ctx context.Context, item *gofeed.Item) (Paper, error) {
	id := item.GUID
	if id == "" {
		return Paper{}, fmt.Errorf("entry without id")
	}
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}

	title := strings.TrimSpace(item.Title)
	summary := strings.TrimSpace(item.Description)
	keywords := arxivKeywords(item)

	candidates := keywords
	if len(candidates) == 0 {
		candidates = a.cfg.Categories
	}

	var authors []string
	for _, au := range item.Authors {
		if au != nil && au.Name != "" {
			authors = append(authors, strings.TrimSpace(au.Name))
		}
	}

	text := strings.Trim(title+"\n"+summary, "\n")
	if text == "" {
		text = id
	}
	vec, err := a.embedder.Embed(ctx, text)
	if err != nil {
		return Paper{}, fmt.Errorf("embed %s: %w", id, err)
	}

	var published *time.Time
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		published = &t
	}

	return Paper{
		ExternalID:  id,
		DOI:         arxivExtension(item, "doi", ""),
		URL:         item.Link,
		Title:       title,
		Abstract:    summary,
		Domain:      ClassifyDomain(title, candidates),
		Authors:     authors,
		Keywords:    keywords,
		PublishedAt: published,
		Embedding:   vec,
	}, nil
}

// arxivKeywords returns the entry's categories with the primary one first.
func arxivKeywords(item *gofeed.Item) []string {
	var tags []string
	for _, c := range item.Categories {
		if c = strings.TrimSpace(c); c != "" {
			tags = append(tags, c)
		}
	}
	primary := arxivExtension(item, "primary_category", "term")
	if primary == "" {
		return tags
	}
	for _, t := range tags {
		if t == primary {
			return tags
		}
	}
	return append([]string{primary}, tags...)
}

// arxivExtension reads an arxiv: namespaced element, either its text or the
// named attribute.
func arxivExtension(item *gofeed.Item, name, attr string) string {
	ext, ok := item.Extensions["arxiv"][name]
	if !ok || len(ext) == 0 {
		return ""
	}
	if attr != "" {
		return ext[0].Attrs[attr]
	}
	return strings.TrimSpace(ext[0].Value)
}
