package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/deepradar/internal/config"
	"github.com/elonfeng/deepradar/internal/logging"
	"github.com/elonfeng/deepradar/internal/metrics"
	"github.com/elonfeng/deepradar/internal/pipeline"
	"github.com/elonfeng/deepradar/internal/scheduler"
	"github.com/elonfeng/deepradar/internal/store"
	"github.com/elonfeng/deepradar/pkg/alert"
	"github.com/elonfeng/deepradar/pkg/embed"
	"github.com/elonfeng/deepradar/pkg/linker"
	"github.com/elonfeng/deepradar/pkg/opportunity"
	"github.com/elonfeng/deepradar/pkg/scoring"
	"github.com/elonfeng/deepradar/pkg/server"
	"github.com/elonfeng/deepradar/pkg/source"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	db       *store.SQLiteStore
	embedder embed.Embedder
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		metrics:  metrics.New(),
		db:       db,
		embedder: buildEmbedder(cfg.Embedding, log),
	}, nil
}

func (a *app) Close() {
	a.db.Close()
	a.log.Sync()
}

func buildEmbedder(cfg config.EmbeddingConfig, log *zap.Logger) embed.Embedder {
	if cfg.Provider == "openai" && cfg.APIKey != "" {
		log.Info("embedder", zap.String("provider", "openai"), zap.String("model", cfg.Model))
		return embed.NewOpenAI(cfg.Model, cfg.APIKey, cfg.BaseURL, cfg.Dim)
	}
	return embed.NewHash(cfg.Dim)
}

func (a *app) buildFetcher() *source.Fetcher {
	return source.NewFetcher(
		source.WithCache(a.db),
		source.WithRateLimit(a.cfg.Sources.ParseRequestInterval()),
		source.WithRetries(a.cfg.Sources.MaxAttempts, time.Second),
		source.WithRequestCounter(a.metrics.IngestRequests),
		source.WithLogger(a.log),
	)
}

func (a *app) buildSources() []source.Source {
	var sources []source.Source
	fetcher := a.buildFetcher()
	sc := a.cfg.Sources

	if sc.ArXiv.Enabled {
		sources = append(sources, source.NewArXiv(source.ArXivConfig{
			Categories:   sc.ArXiv.Categories,
			MaxResults:   sc.ArXiv.MaxResults,
			Pages:        sc.ArXiv.Pages,
			LookbackDays: sc.ArXiv.LookbackDays,
		}, fetcher, a.embedder, a.log))
	}
	if sc.GitHub.Enabled {
		sources = append(sources, source.NewGitHub(source.GitHubConfig{
			Token:      sc.GitHub.Token,
			Categories: sc.GitHub.Categories,
			SearchDays: sc.GitHub.SearchDays,
			Pages:      sc.GitHub.Pages,
			PerPage:    sc.GitHub.PerPage,
		}, fetcher, a.log))
	}
	return sources
}

func (a *app) buildLexicon() *scoring.Lexicon {
	if a.cfg.Scoring.LexiconPath == "" {
		return nil
	}
	lex, err := scoring.LoadLexicon(a.cfg.Scoring.LexiconPath)
	if err != nil {
		a.log.Warn("lexicon load failed, using built-in lexicon",
			zap.String("path", a.cfg.Scoring.LexiconPath), zap.Error(err))
		return nil
	}
	return lex
}

func (a *app) buildAlertManager() *alert.Manager {
	var notifiers []alert.Notifier
	ac := a.cfg.Alerts

	if ac.Slack.Enabled && ac.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(ac.Slack.WebhookURL))
	}
	if ac.Discord.Enabled && ac.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(ac.Discord.WebhookURL))
	}
	if ac.Webhook.Enabled && ac.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(ac.Webhook.URL, ac.Webhook.Secret))
	}

	return alert.NewManager(notifiers, ac.Tiers)
}

func (a *app) newLinker() *pipeline.Linker {
	return pipeline.NewLinker(a.db, linker.Options{
		MinConfidence: a.cfg.Linking.MinConfidence,
		MaxMatches:    a.cfg.Linking.MaxMatches,
	}, a.metrics, a.log)
}

func (a *app) newScorer() *pipeline.Scorer {
	return pipeline.NewScorer(a.db, a.buildLexicon(), pipeline.ScoreOptions{
		WindowDays: a.cfg.Scoring.WindowDays,
		Workers:    a.cfg.Scoring.Workers,
	}, a.metrics, a.log)
}

func (a *app) newSelector() *pipeline.Selector {
	return pipeline.NewSelector(a.db, opportunity.Options{
		TopK:       a.cfg.Selection.TopK,
		MinScore:   a.cfg.Selection.MinScore,
		DedupWeeks: a.cfg.Selection.DedupWeeks,
	}, a.buildAlertManager(), a.metrics, a.log)
}

func (a *app) newPipeline() *pipeline.Pipeline {
	return &pipeline.Pipeline{Linker: a.newLinker(), Scorer: a.newScorer(), Selector: a.newSelector()}
}

func runIngest(ctx context.Context, only []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	all := a.buildSources()
	var sources []source.Source
	if len(only) > 0 {
		wanted := make(map[string]bool)
		for _, s := range only {
			wanted[strings.ToLower(strings.TrimSpace(s))] = true
		}
		for _, s := range all {
			if wanted[string(s.Name())] {
				sources = append(sources, s)
			}
		}
		if len(sources) == 0 {
			return fmt.Errorf("no matching sources for: %s", strings.Join(only, ", "))
		}
	} else {
		sources = all
	}

	stats, err := pipeline.NewIngester(a.db, sources, a.metrics, a.log).Run(ctx)
	printIngest(stats)
	if err != nil {
		return err
	}
	if len(stats.Failed) > 0 {
		return fmt.Errorf("%d of %d sources failed", len(stats.Failed), len(sources))
	}
	return nil
}

func printIngest(s pipeline.IngestStats) {
	fmt.Fprintf(os.Stderr, "papers:       %d inserted, %d updated, %d unchanged\n",
		s.Papers.Inserted, s.Papers.Updated, s.Papers.Unchanged)
	fmt.Fprintf(os.Stderr, "repositories: %d inserted, %d updated, %d unchanged\n",
		s.Repositories.Inserted, s.Repositories.Updated, s.Repositories.Unchanged)
	if s.Relabeled > 0 {
		fmt.Fprintf(os.Stderr, "  %d papers moved to an existing domain label\n", s.Relabeled)
	}
	for _, f := range s.Failed {
		fmt.Fprintf(os.Stderr, "  failed: %s\n", f)
	}
}

func runLink(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.newLinker().Run(ctx)
	if err != nil {
		return err
	}
	printLinks(stats)
	return nil
}

func printLinks(s pipeline.LinkStats) {
	fmt.Fprintf(os.Stderr, "links: %d candidates, %d created, %d updated, %d unchanged\n",
		s.Candidates, s.Created, s.Updated, s.Unchanged)
}

func runScore(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.newScorer().Run(ctx, time.Now())
	if err != nil {
		return err
	}
	printScores(stats)
	return nil
}

func printScores(s pipeline.ScoreStats) {
	fmt.Fprintf(os.Stderr, "scored: %d papers in %d domains (window %s to %s)\n",
		s.Papers, s.Domains, s.WindowStart.Format(time.DateOnly), s.WindowEnd.Format(time.DateOnly))
	if s.Defaulted > 0 {
		fmt.Fprintf(os.Stderr, "  %d papers had unreadable embeddings\n", s.Defaulted)
	}
}

func runSelect(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.newSelector().Run(ctx, time.Now())
	if err != nil {
		return err
	}
	printSelection(stats)
	return nil
}

func printSelection(s pipeline.SelectStats) {
	fmt.Fprintf(os.Stderr, "week of %s: %d opportunities from %d candidates in %d domains\n",
		store.WeekKey(s.Week), len(s.Opportunities), s.Candidates, s.Domains)
	fmt.Fprintf(os.Stderr, "  %d recently selected papers excluded, %d stale domains cleared, %d alerts sent\n",
		s.Excluded, s.Cleared, s.Alerted)
	if s.Conflicts > 0 {
		fmt.Fprintf(os.Stderr, "  %d domains skipped: slug taken by another domain\n", s.Conflicts)
	}
}

func runPipeline(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.newPipeline().Run(ctx, time.Now())
	if err != nil {
		return err
	}
	printLinks(res.Links)
	printScores(res.Scores)
	printSelection(res.Selection)
	return nil
}

func runOpportunities(ctx context.Context, domain string, limit int, jsonOutput bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opps, err := a.db.ListOpportunities(ctx, store.OpportunityFilter{Domain: domain, Limit: limit})
	if err != nil {
		return fmt.Errorf("list opportunities: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(opps)
	}

	if len(opps) == 0 {
		fmt.Println("no opportunities found (try: deepradar ingest && deepradar pipeline)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WEEK\tDOMAIN\tRANK\tSCORE\tTIER\tSUMMARY")
	for _, o := range opps {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.3f\t%s\t%s\n",
			o.WeekOf, o.Domain, o.Rank, o.Score, o.Recommendation, o.ExecutiveSummary)
	}
	return w.Flush()
}

func runSeed(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := pipeline.NewIngester(a.db, []source.Source{source.NewSample(a.embedder)}, a.metrics, a.log).Run(ctx)
	printIngest(stats)
	if err != nil {
		return err
	}
	if len(stats.Failed) > 0 {
		return errors.New("seed failed")
	}
	return nil
}

func runServe(ctx context.Context, port int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}
	gin.SetMode(gin.ReleaseMode)
	return server.New(a.db, a.embedder, a.metrics, port, a.log).ListenAndServe(ctx)
}

func runDaemon(ctx context.Context, port int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	sched := scheduler.New(
		pipeline.NewIngester(a.db, a.buildSources(), a.metrics, a.log),
		a.newPipeline(),
		a.cfg.Schedule.ParseIngestInterval(),
		a.cfg.Schedule.ParsePipelineInterval(),
		a.log,
	)
	gin.SetMode(gin.ReleaseMode)
	srv := server.New(a.db, a.embedder, a.metrics, port, a.log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx) })

	err = g.Wait()
	a.log.Info("shut down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
