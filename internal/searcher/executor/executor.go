// Package executor runs one query through the pipeline: parse, plan, rank
// and assemble, all against a single index snapshot.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/assembler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/content"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/planner"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

// TermStat reports how one query term resolved.
type TermStat struct {
	Term      string   `json:"term"`
	Match     string   `json:"match"`
	Keys      []string `json:"keys,omitempty"`
	DocFreq   int      `json:"doc_freq"`
	Truncated bool     `json:"truncated,omitempty"`
}

type SearchResult struct {
	Query      string                    `json:"query"`
	Book       string                    `json:"book"`
	Generation string                    `json:"generation"`
	Terms      []string                  `json:"terms"`
	Excluded   []string                  `json:"excluded,omitempty"`
	TotalHits  int                       `json:"total_hits"`
	Results    []assembler.DisplayResult `json:"results"`
	TermStats  []TermStat                `json:"term_stats"`
	Truncated  bool                      `json:"truncated"`
	Timings    map[string]int64          `json:"timings_us,omitempty"`
}

// Snapshot pins everything one query needs: the Store is read once and
// used for the whole execution even if a reload swaps it meanwhile.
type Snapshot struct {
	Book       string
	Store      *index.Store
	Tokenizer  *tokenizer.Tokenizer
	LinkSuffix string
	Content    content.Source
}

type Config struct {
	Planner      planner.Config
	Weights      ranker.Weights
	DefaultLimit int
	// LogSpans logs the span tree of every query at debug level.
	LogSpans bool
}

func DefaultConfig() Config {
	return Config{
		Planner:      planner.DefaultConfig(),
		Weights:      ranker.DefaultWeights(),
		DefaultLimit: 10,
	}
}

type Option func(*Executor)

// WithContent sets the page text source used for snippets of book.
func WithContent(book string, src content.Source) Option {
	return func(e *Executor) {
		if src != nil {
			e.content[book] = src
		}
	}
}

type Executor struct {
	books   *catalog.Catalog
	asm     *assembler.Assembler
	cfg     Config
	content map[string]content.Source
	logger  *slog.Logger
}

func New(books *catalog.Catalog, asm *assembler.Assembler, cfg Config, opts ...Option) *Executor {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultConfig().DefaultLimit
	}
	e := &Executor{
		books:   books,
		asm:     asm,
		cfg:     cfg,
		content: make(map[string]content.Source),
		logger:  slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Catalog() *catalog.Catalog {
	return e.books
}

// Limit clamps a requested result count to [1, MaxResults]; zero or
// negative selects the default.
func (e *Executor) Limit(limit int) int {
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	return min(limit, e.asm.MaxResults())
}

// Snapshot pins the current index of book. An empty name selects the
// default book.
func (e *Executor) Snapshot(book string) (Snapshot, error) {
	b, err := e.books.Get(book)
	if err != nil {
		return Snapshot{}, err
	}
	store, err := b.Engine.Current()
	if err != nil {
		return Snapshot{}, fmt.Errorf("book %q: %w", b.Name, err)
	}
	return Snapshot{
		Book:       b.Name,
		Store:      store,
		Tokenizer:  b.Engine.Tokenizer(),
		LinkSuffix: b.LinkSuffix,
		Content:    e.content[b.Name],
	}, nil
}

// Execute searches the default book.
func (e *Executor) Execute(ctx context.Context, raw string, limit int) (*SearchResult, error) {
	return e.Search(ctx, "", raw, limit)
}

// Search searches the named book.
func (e *Executor) Search(ctx context.Context, book, raw string, limit int) (*SearchResult, error) {
	snap, err := e.Snapshot(book)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, snap, raw, limit)
}

// Run executes raw against snap. Cancellation between stages aborts the
// query with the context's cause and no partial results.
func (e *Executor) Run(ctx context.Context, snap Snapshot, raw string, limit int) (*SearchResult, error) {
	limit = e.Limit(limit)
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "search.execute", logger.RequestID(ctx))
	span.SetAttr("book", snap.Book)
	span.SetAttr("generation", snap.Store.Generation())
	span.SetAttr("limit", limit)

	result, err := e.run(ctx, snap, raw, limit)
	span.RecordError(err)
	span.End()
	if e.cfg.LogSpans {
		span.Log()
	}
	if err != nil {
		return nil, err
	}
	result.Timings = span.Timings()

	logger.FromContext(ctx).Debug("query executed",
		"query", raw,
		"terms", result.Terms,
		"candidates", result.TotalHits,
		"results", len(result.Results),
		"truncated", result.Truncated,
		"duration_us", time.Since(start).Microseconds(),
	)
	return result, nil
}

func (e *Executor) run(ctx context.Context, snap Snapshot, raw string, limit int) (*SearchResult, error) {
	q := parser.Parse(raw, snap.Tokenizer)
	result := &SearchResult{
		Query:      raw,
		Book:       snap.Book,
		Generation: snap.Store.Generation(),
		Terms:      q.Terms,
		Excluded:   q.Excluded,
		Results:    []assembler.DisplayResult{},
		TermStats:  []TermStat{},
	}
	if result.Terms == nil {
		result.Terms = []string{}
	}
	if q.Empty() {
		return result, nil
	}

	pctx, span := tracing.StartChildSpan(ctx, "search.plan")
	set, err := planner.Plan(pctx, snap.Store, q, e.cfg.Planner)
	if err != nil {
		span.RecordError(err)
		span.End()
		return nil, err
	}
	span.SetAttr("candidates", set.Len())
	span.End()
	for _, m := range set.Matches {
		result.TermStats = append(result.TermStats, TermStat{
			Term:      m.Term,
			Match:     m.Kind.String(),
			Keys:      m.Keys,
			DocFreq:   len(m.DocIDs()),
			Truncated: m.Truncated,
		})
	}
	result.TotalHits = set.Len()
	result.Truncated = set.Truncated
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}

	_, span = tracing.StartChildSpan(ctx, "search.rank")
	ranked := ranker.Rank(set, e.cfg.Weights, limit)
	span.SetAttr("ranked", len(ranked))
	span.End()
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}

	actx, span := tracing.StartChildSpan(ctx, "search.assemble")
	results, err := e.asm.Assemble(actx, set, ranked, assembler.Page{
		Tokenizer:  snap.Tokenizer,
		LinkSuffix: snap.LinkSuffix,
		Content:    snap.Content,
	})
	span.SetAttr("results", len(results))
	span.RecordError(err)
	span.End()
	if err != nil {
		return nil, err
	}
	result.Results = results
	return result, nil
}
