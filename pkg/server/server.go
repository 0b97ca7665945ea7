package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/elonfeng/deepradar/internal/metrics"
	"github.com/elonfeng/deepradar/internal/store"
	"github.com/elonfeng/deepradar/pkg/embed"
	"github.com/elonfeng/deepradar/pkg/scoring"
)

const (
	defaultLimit = 20
	maxLimit     = 100
	defaultK     = 10
)

// Server provides the read-only HTTP API.
type Server struct {
	store    store.Store
	embedder embed.Embedder
	metrics  *metrics.Metrics
	port     int
	log      *zap.Logger
}

// New creates a new HTTP server. embedder is used to search by free text
// and m to expose /metrics; either may be nil.
func New(s store.Store, embedder embed.Embedder, m *metrics.Metrics, port int, log *zap.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		store:    s,
		embedder: embedder,
		metrics:  m,
		port:     port,
		log:      log.Named("server"),
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)

	r.GET("/healthz", s.handleHealth)
	r.GET("/readyz", s.handleReady)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")
	{
		api.GET("/papers", s.handlePapers)
		api.GET("/papers/near", s.handleNear)
		api.GET("/repositories", s.handleRepositories)
		api.GET("/opportunities", s.handleOpportunities)
		api.GET("/domains/metrics", s.handleDomainMetrics)
	}
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	}
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("took", time.Since(start)))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReady(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		writeError(c, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handlePapers(c *gin.Context) {
	limit, offset, ok := pagination(c, defaultLimit)
	if !ok {
		return
	}
	f := store.PaperFilter{
		Domain: c.Query("domain"),
		SortBy: c.DefaultQuery("sort_by", "id"),
		Limit:  limit,
		Offset: offset,
	}
	if !store.ValidPaperSort(f.SortBy) {
		writeError(c, http.StatusBadRequest, "invalid_parameter", "sort_by must be one of id, composite_score, published_at")
		return
	}
	for param, dst := range map[string]**float64{
		"min_composite_score":   &f.MinComposite,
		"min_moat_score":        &f.MinMoat,
		"min_scalability_score": &f.MinScalability,
	} {
		v, ok := scoreParam(c, param)
		if !ok {
			return
		}
		*dst = v
	}

	papers, err := s.store.ListPapers(c.Request.Context(), f)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": papers, "count": len(papers)})
}

// Neighbor is one result of a similarity search.
type Neighbor struct {
	Paper      store.Paper `json:"paper"`
	Similarity float64     `json:"similarity"`
}

func (s *Server) handleNear(c *gin.Context) {
	ctx := c.Request.Context()
	k, ok := intParam(c, "k", defaultK, 1, maxLimit)
	if !ok {
		return
	}

	var (
		query   []float64
		exclude int64
	)
	switch {
	case c.Query("paper_id") != "":
		id, err := strconv.ParseInt(c.Query("paper_id"), 10, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid_parameter", "paper_id must be an integer")
			return
		}
		p, err := s.store.GetPaper(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, "not_found", fmt.Sprintf("paper %d not found", id))
			return
		}
		if err != nil {
			s.internalError(c, err)
			return
		}
		query, err = p.Vector()
		if err != nil {
			s.internalError(c, err)
			return
		}
		if len(query) == 0 {
			writeError(c, http.StatusNotFound, "not_found", fmt.Sprintf("paper %d has no embedding", id))
			return
		}
		exclude = id
	case c.Query("text") != "":
		if s.embedder == nil {
			writeError(c, http.StatusServiceUnavailable, "unavailable", "no embedder configured")
			return
		}
		v, err := s.embedder.Embed(ctx, c.Query("text"))
		if err != nil {
			s.internalError(c, err)
			return
		}
		query = v
	default:
		writeError(c, http.StatusBadRequest, "invalid_parameter", "paper_id or text is required")
		return
	}

	papers, err := s.store.ListPapers(ctx, store.PaperFilter{HasEmbedding: true})
	if err != nil {
		s.internalError(c, err)
		return
	}
	out := make([]Neighbor, 0, len(papers))
	for _, p := range papers {
		if p.ID == exclude {
			continue
		}
		v, err := p.Vector()
		if err != nil || len(v) != len(query) {
			continue
		}
		out = append(out, Neighbor{Paper: p, Similarity: scoring.CosineSimilarity(query, v)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > k {
		out = out[:k]
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "count": len(out)})
}

func (s *Server) handleRepositories(c *gin.Context) {
	limit, offset, ok := pagination(c, defaultLimit)
	if !ok {
		return
	}
	repos, err := s.store.ListRepositories(c.Request.Context(), limit, offset)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": repos, "count": len(repos)})
}

func (s *Server) handleOpportunities(c *gin.Context) {
	limit, ok := intParam(c, "limit", defaultLimit, 1, maxLimit)
	if !ok {
		return
	}
	opps, err := s.store.ListOpportunities(c.Request.Context(), store.OpportunityFilter{
		Domain: c.Query("domain"),
		Limit:  limit,
	})
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": opps, "count": len(opps)})
}

func (s *Server) handleDomainMetrics(c *gin.Context) {
	limit, ok := intParam(c, "limit", defaultLimit, 1, maxLimit)
	if !ok {
		return
	}
	rows, err := s.store.ListDomainMetrics(c.Request.Context(), c.Query("domain"), limit)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	writeError(c, http.StatusInternalServerError, "internal", err.Error())
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}

func pagination(c *gin.Context, defLimit int) (limit, offset int, ok bool) {
	if limit, ok = intParam(c, "limit", defLimit, 1, maxLimit); !ok {
		return 0, 0, false
	}
	if offset, ok = intParam(c, "offset", 0, 0, -1); !ok {
		return 0, 0, false
	}
	return limit, offset, true
}

// intParam parses an integer query parameter within [lo, hi]; hi < 0 means
// unbounded. It writes a 400 response and returns false when invalid.
func intParam(c *gin.Context, name string, def, lo, hi int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || (hi >= 0 && v > hi) {
		msg := fmt.Sprintf("%s must be an integer >= %d", name, lo)
		if hi >= 0 {
			msg = fmt.Sprintf("%s must be an integer between %d and %d", name, lo, hi)
		}
		writeError(c, http.StatusBadRequest, "invalid_parameter", msg)
		return 0, false
	}
	return v, true
}

func scoreParam(c *gin.Context, name string) (*float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		writeError(c, http.StatusBadRequest, "invalid_parameter", name+" must be a number between 0 and 1")
		return nil, false
	}
	return &v, true
}
