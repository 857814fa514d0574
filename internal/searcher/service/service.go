// Package service is the query front door shared by the HTTP, MCP and
// Lambda surfaces. It pins a book snapshot, supersedes older queries of the
// same session, consults the result cache and records metrics and
// analytics for every outcome.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/session"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// Request is one search call. Session, when set, names an interactive
// session whose previous query is superseded by this one.
type Request struct {
	Book    string
	Query   string
	Limit   int
	Session string
	// Source labels the calling surface in analytics (http, mcp, lambda, cli).
	Source string
}

// Response wraps the executor result with how it was produced.
type Response struct {
	*executor.SearchResult
	CacheHit bool `json:"cache_hit"`
}

type BookInfo struct {
	Name       string       `json:"name"`
	Default    bool         `json:"default"`
	Loaded     bool         `json:"loaded"`
	LinkSuffix string       `json:"link_suffix,omitempty"`
	Stats      *index.Stats `json:"stats,omitempty"`
}

type Option func(*Service)

func WithCache(c *cache.QueryCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithSessions(t *session.Tracker) Option {
	return func(s *Service) { s.sessions = t }
}

func WithCollector(c *analytics.Collector) Option {
	return func(s *Service) { s.collector = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTimeout bounds each query; an expired query fails with
// apperrors.ErrTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

type Service struct {
	exec      *executor.Executor
	cache     *cache.QueryCache
	sessions  *session.Tracker
	collector *analytics.Collector
	metrics   *metrics.Metrics
	timeout   time.Duration
	logger    *slog.Logger
}

func New(exec *executor.Executor, opts ...Option) *Service {
	s := &Service{
		exec:     exec,
		sessions: session.NewTracker(),
		logger:   slog.Default().With("component", "search-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Cache() *cache.QueryCache {
	return s.cache
}

func (s *Service) Sessions() *session.Tracker {
	return s.sessions
}

// Search runs req. An empty or all-stop-word query succeeds with no
// results. A superseded query fails with apperrors.ErrSuperseded.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	snap, err := s.exec.Snapshot(req.Book)
	if err != nil {
		s.countOutcome(req.Book, metrics.ResultError)
		return nil, err
	}
	limit := s.exec.Limit(req.Limit)

	ctx, done := s.sessions.Begin(ctx, req.Session)
	defer done()
	ctx = logger.With(ctx, "book", snap.Book, "session", req.Session, "source", req.Source)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, s.timeout, apperrors.ErrTimeout)
		defer cancel()
	}

	q := parser.Parse(req.Query, snap.Tokenizer)
	if q.Empty() {
		result, err := s.exec.Run(ctx, snap, req.Query, limit)
		if err == nil {
			err = superseded(ctx)
		}
		if err != nil {
			return nil, err
		}
		return &Response{SearchResult: result}, nil
	}

	var (
		result *executor.SearchResult
		hit    bool
	)
	cacheStatus := "bypass"
	if s.cache != nil {
		key := cache.Key{
			Book:       snap.Book,
			Generation: snap.Store.Generation(),
			Query:      q.Normalized(),
			Limit:      limit,
		}
		result, hit, err = s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*executor.SearchResult, error) {
			return s.exec.Run(ctx, snap, req.Query, limit)
		})
		if err == nil {
			// cached and shared results may carry another spelling of the query
			out := *result
			out.Query = req.Query
			result = &out
		}
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = s.exec.Run(ctx, snap, req.Query, limit)
	}
	latency := time.Since(start)
	if err == nil {
		// a newer query of the session may have begun after this one
		// produced its result
		err = superseded(ctx)
	}

	if err != nil {
		s.recordFailure(ctx, req, snap.Book, q, err, latency)
		return nil, err
	}
	s.recordSuccess(ctx, req, result, hit, cacheStatus, latency)
	return &Response{SearchResult: result, CacheHit: hit}, nil
}

func superseded(ctx context.Context) error {
	if cause := context.Cause(ctx); errors.Is(cause, apperrors.ErrSuperseded) {
		return cause
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, req Request, book string, q *parser.Query, err error, latency time.Duration) {
	log := logger.FromContext(ctx)
	switch {
	case errors.Is(err, apperrors.ErrSuperseded):
		s.countOutcome(book, metrics.ResultSuperseded)
		s.collector.TrackSearch(analytics.SearchEvent{
			Book:      book,
			Query:     req.Query,
			Terms:     q.Terms,
			LatencyMs: latency.Milliseconds(),
			Session:   req.Session,
			Source:    req.Source,
			RequestID: logger.RequestID(ctx),
		}, true)
		log.Debug("search superseded", "query", req.Query)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, apperrors.ErrTimeout):
		s.countOutcome(book, metrics.ResultCancelled)
		log.Info("search cancelled", "query", req.Query, "error", err)
	default:
		s.countOutcome(book, metrics.ResultError)
		log.Error("search failed", "query", req.Query, "error", err)
	}
}

func (s *Service) recordSuccess(ctx context.Context, req Request, result *executor.SearchResult, hit bool, cacheStatus string, latency time.Duration) {
	outcome := metrics.ResultHit
	if result.TotalHits == 0 {
		outcome = metrics.ResultZero
	}
	s.countOutcome(result.Book, outcome)
	if m := s.metrics; m != nil {
		m.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
		m.SearchResultsCount.Observe(float64(len(result.Results)))
		switch cacheStatus {
		case "hit":
			m.CacheHitsTotal.Inc()
		case "miss":
			m.CacheMissesTotal.Inc()
		}
		if !hit {
			for _, ts := range result.TermStats {
				if ts.Match == "prefix" {
					m.PrefixFallbacksTotal.WithLabelValues(result.Book).Inc()
				}
				if ts.Truncated {
					m.PrefixTruncations.WithLabelValues(result.Book).Inc()
				}
			}
		}
	}

	s.collector.TrackSearch(analytics.SearchEvent{
		Book:       result.Book,
		Query:      req.Query,
		Terms:      result.Terms,
		TotalHits:  result.TotalHits,
		Returned:   len(result.Results),
		LatencyMs:  latency.Milliseconds(),
		CacheHit:   hit,
		Truncated:  result.Truncated,
		Session:    req.Session,
		Source:     req.Source,
		RequestID:  logger.RequestID(ctx),
		Generation: result.Generation,
	}, false)

	logger.FromContext(ctx).Info("search completed",
		"query", req.Query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache", cacheStatus,
		"latency_ms", latency.Milliseconds(),
	)
}

func (s *Service) countOutcome(book, outcome string) {
	if s.metrics != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues(book, outcome).Inc()
	}
}

// Books lists the catalog in configuration order with load state.
func (s *Service) Books() []BookInfo {
	cat := s.exec.Catalog()
	def := cat.Default()
	books := cat.Books()
	out := make([]BookInfo, 0, len(books))
	for _, b := range books {
		info := BookInfo{Name: b.Name, Default: b == def, LinkSuffix: b.LinkSuffix}
		if store, err := b.Engine.Current(); err == nil {
			stats := store.Stats()
			info.Loaded = true
			info.Stats = &stats
		}
		out = append(out, info)
	}
	return out
}

// Reload reloads book, or every book when book is empty.
func (s *Service) Reload(ctx context.Context, book string) ([]indexer.ReloadEvent, error) {
	cat := s.exec.Catalog()
	if book == "" {
		return cat.ReloadAll(ctx)
	}
	b, err := cat.Get(book)
	if err != nil {
		return nil, err
	}
	ev, err := b.Engine.Reload(ctx)
	return []indexer.ReloadEvent{ev}, err
}
