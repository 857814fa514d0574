// Package app assembles the search stack from configuration. Every binary
// builds its books, executor and search service through it so the HTTP,
// CLI, MCP and Lambda surfaces answer queries identically.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/assembler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/content"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/planner"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/service"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/secrets"
)

type Options struct {
	// Metrics, when set, receives index, breaker and search metrics.
	Metrics *metrics.Metrics
	// Services connects Redis, PostgreSQL and Kafka as configured. Tools
	// that only read local indexes leave it off.
	Services bool
}

type App struct {
	Config     *config.Config
	Catalog    *catalog.Catalog
	Executor   *executor.Executor
	Service    *service.Service
	Health     *health.Checker
	Metrics    *metrics.Metrics
	Collector  *analytics.Collector
	// Aggregator is set when analytics run in-process because Kafka is off.
	Aggregator *analytics.Aggregator
	Publisher  *publisher.Publisher

	batch     *collector.BatchCollector
	producers []*kafka.Producer
	consumer  *consumer.ReloadConsumer
	cancel    context.CancelFunc
	redis     *pkgredis.Client
	db        *postgres.Client
	logger    *slog.Logger
}

// New wires the stack without loading any index; call Start or
// Catalog.ReloadAll before serving queries.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{
		Config:  cfg,
		Health:  health.NewChecker(),
		Metrics: opts.Metrics,
		logger:  slog.Default().With("component", "app"),
	}
	if len(cfg.Books) == 0 {
		return nil, fmt.Errorf("no books configured: set books in the config file or DS_BOOK_SOURCE")
	}

	if cfg.Secrets.Provider == "aws" {
		r, err := secrets.NewAWSResolver(ctx, cfg.Secrets.Region)
		if err != nil {
			return nil, err
		}
		if err := r.Apply(ctx, cfg); err != nil {
			return nil, err
		}
	}

	if opts.Services {
		if err := a.connect(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	tok := tokenizer.New(tokenizer.Config{
		MinLength:       cfg.Tokenizer.MinLength,
		Allowlist:       cfg.Tokenizer.Allowlist,
		StopWords:       cfg.Tokenizer.StopWords,
		Stemmer:         cfg.Tokenizer.Stemmer,
		KeepApostrophes: cfg.Tokenizer.KeepApostrophes,
	})

	books := make([]*catalog.Book, 0, len(cfg.Books))
	defaultBook := ""
	var execOpts []executor.Option
	for _, bc := range cfg.Books {
		books = append(books, &catalog.Book{
			Name:          bc.Name,
			Engine:        indexer.NewEngine(bc.Name, source.New(bc.Source), tok),
			LinkSuffix:    bc.LinkSuffix,
			WatchInterval: bc.WatchInterval,
		})
		if bc.Default {
			defaultBook = bc.Name
		}
		if src := a.contentFor(bc); src != nil {
			execOpts = append(execOpts, executor.WithContent(bc.Name, src))
			a.Health.RegisterOptional("content:"+bc.Name, breakerCheck(src))
		}
	}
	cat, err := catalog.New(books, defaultBook)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Catalog = cat
	cat.Subscribe(a.observeReload)
	for _, b := range books {
		a.Health.Register("index:"+b.Name, indexCheck(b.Engine))
	}

	asm := assembler.New(assembler.Config{
		MaxResults:     cfg.Search.MaxResults,
		SnippetLength:  cfg.Snippet.Length,
		SnippetContext: cfg.Snippet.Context,
	})
	a.Executor = executor.New(cat, asm, executor.Config{
		Planner: planner.Config{
			PrefixScanLimit:   cfg.Planner.PrefixScanLimit,
			MinPrefixLength:   cfg.Planner.MinPrefixLength,
			ObjectPrefixLimit: cfg.Planner.ObjectPrefixLimit,
		},
		Weights: ranker.Weights{
			Term:           cfg.Scoring.Term,
			PartialTerm:    cfg.Scoring.PartialTerm,
			Title:          cfg.Scoring.Title,
			PartialTitle:   cfg.Scoring.PartialTitle,
			Object:         cfg.Scoring.Object,
			ObjectPartial:  cfg.Scoring.ObjectPartial,
			ObjectPriority: cfg.Scoring.ObjectPriority,
		},
		DefaultLimit: cfg.Search.DefaultLimit,
		LogSpans:     cfg.Tracing.Enabled,
	}, execOpts...)

	svcOpts := []service.Option{
		service.WithTimeout(cfg.Search.QueryTimeout),
		service.WithCollector(a.Collector),
	}
	if a.Metrics != nil {
		svcOpts = append(svcOpts, service.WithMetrics(a.Metrics))
	}
	if qc := a.queryCache(); qc != nil {
		svcOpts = append(svcOpts, service.WithCache(qc))
	}
	a.Service = service.New(a.Executor, svcOpts...)
	a.Publisher = a.newPublisher(tok, opts.Services)
	return a, nil
}

// newPublisher targets every book read from a local file. Page text goes
// to PostgreSQL when that is the content backend.
func (a *App) newPublisher(tok *tokenizer.Tokenizer, services bool) *publisher.Publisher {
	targets := make(map[string]publisher.Target)
	for _, bc := range a.Config.Books {
		if strings.Contains(bc.Source, "://") {
			continue
		}
		t := publisher.Target{Path: bc.Source}
		if a.db != nil {
			t.Pages = content.NewPostgres(a.db.DB, bc.Name)
		}
		targets[bc.Name] = t
	}
	pubOpts := []publisher.Option{
		publisher.WithTokenizer(tok),
		publisher.WithReloader(func(ctx context.Context, book string) error {
			_, err := a.Service.Reload(ctx, book)
			return err
		}),
	}
	kcfg := a.Config.Kafka
	if services && kcfg.Enabled && kcfg.Topics.IndexPublished != "" {
		producer := kafka.NewProducer(kcfg, kcfg.Topics.IndexPublished)
		a.producers = append(a.producers, producer)
		pubOpts = append(pubOpts, publisher.WithProducer(producer))
	}
	return publisher.New(targets, pubOpts...)
}

// connect opens the external services the configuration asks for. Redis
// and PostgreSQL failures degrade features; they never stop startup.
func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	if cfg.Search.CacheEnabled {
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			a.logger.Warn("redis unavailable, using in-process query cache", "error", err)
		} else {
			a.redis = rc
			a.Health.RegisterOptional("redis", health.Ping(rc.Ping))
		}
	}

	if cfg.Content.Backend == "postgres" {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			a.logger.Warn("postgres unavailable, snippets disabled", "error", err)
		} else {
			if err := db.Migrate(ctx, "content", content.Schema); err != nil {
				db.Close()
				return err
			}
			a.db = db
			a.Health.RegisterOptional("postgres", health.Ping(db.Ping))
		}
	}

	if cfg.Analytics.Enabled {
		var pub kafka.Publisher
		if cfg.Kafka.Enabled {
			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
			a.producers = append(a.producers, producer)
			pub = producer
		} else {
			a.Aggregator = analytics.NewAggregator()
			pub = analytics.NewLocal(a.Aggregator)
		}
		a.batch = collector.NewBatchCollector(pub, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval,
			collector.WithRetain(func(ev kafka.Event) bool { return ev.Type == string(analytics.EventIndexReload) }))
		a.Collector = analytics.NewCollector(a.batch)
		a.Health.RegisterOptional("analytics", batchCheck(a.batch))
	}
	return nil
}

func (a *App) contentFor(bc config.BookConfig) *content.Guarded {
	cfg := a.Config.Content
	var src content.Source
	switch cfg.Backend {
	case "dir":
		dir := bc.ContentDir
		if dir == "" && !strings.Contains(bc.Source, "://") {
			dir = filepath.Dir(bc.Source)
		}
		if dir == "" {
			a.logger.Warn("no content directory for book, snippets disabled", "book", bc.Name)
			return nil
		}
		src = content.NewDir(dir)
	case "postgres":
		if a.db == nil {
			return nil
		}
		src = content.NewPostgres(a.db.DB, bc.Name)
	default:
		return nil
	}
	return content.NewGuarded(bc.Name, src, cfg.Timeout, resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerThreshold,
		ResetTimeout:     cfg.BreakerReset,
		OnStateChange:    a.observeBreaker,
	})
}

func (a *App) queryCache() *cache.QueryCache {
	if !a.Config.Search.CacheEnabled {
		return nil
	}
	if a.redis != nil {
		return cache.New(a.redis, a.Config.Redis.CacheTTL)
	}
	return cache.New(cache.NewMemory(), a.Config.Redis.CacheTTL)
}

func (a *App) observeReload(ev indexer.ReloadEvent) {
	if m := a.Metrics; m != nil {
		m.IndexReloadsTotal.WithLabelValues(ev.Book, ev.Status).Inc()
		if ev.Status == indexer.ReloadLoaded {
			m.IndexDocuments.WithLabelValues(ev.Book).Set(float64(ev.Stats.Documents))
			m.IndexTerms.WithLabelValues(ev.Book).Set(float64(ev.Stats.Terms))
			m.IndexObjects.WithLabelValues(ev.Book).Set(float64(ev.Stats.Objects))
		}
	}
	if ev.Status != indexer.ReloadUnchanged {
		a.Collector.TrackReload(ev)
	}
}

func (a *App) observeBreaker(name string, _, to resilience.State) {
	if a.Metrics != nil {
		a.Metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
}

// batchCheck degrades readiness while analytics events cannot be delivered.
func batchCheck(bc *collector.BatchCollector) health.Check {
	return func(context.Context) health.ComponentHealth {
		st := bc.Stats()
		if st.LastError == "" {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d events published", st.Published)}
		}
		return health.ComponentHealth{
			Status:  health.StatusDegraded,
			Message: fmt.Sprintf("%d events buffered, %d dropped: %s", st.Buffered, st.Dropped, st.LastError),
		}
	}
}

// breakerCheck degrades readiness while a content breaker rejects calls;
// results still come back, only without snippets.
func breakerCheck(g *content.Guarded) health.Check {
	return func(context.Context) health.ComponentHealth {
		st := g.Stats()
		if st.State == resilience.StateClosed {
			return health.ComponentHealth{Status: health.StatusUp}
		}
		return health.ComponentHealth{
			Status:  health.StatusDegraded,
			Message: fmt.Sprintf("circuit %s since %s, %d calls rejected", st.State, st.OpenedAt.Format(time.RFC3339), st.Rejected),
		}
	}
}

func indexCheck(e *indexer.Engine) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		store, err := e.Current()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("generation %s, %d documents", store.Generation(), store.NumDocuments()),
		}
	}
}

// Load reads every book once. Books that fail stay unloaded and are
// reported; the error is returned only when no book could be loaded.
func (a *App) Load(ctx context.Context) error {
	events, err := a.Catalog.ReloadAll(ctx)
	if err == nil {
		return nil
	}
	for _, ev := range events {
		if ev.Err == nil {
			a.logger.Warn("some books failed to load", "error", err)
			return nil
		}
	}
	return err
}

// Start loads the books and starts the background work: index watching,
// the analytics flush loop and the index-published consumer.
func (a *App) Start(ctx context.Context) error {
	if err := a.Load(ctx); err != nil {
		return err
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.Catalog.StartWatch(ctx)
	if a.batch != nil {
		a.batch.Start(ctx)
	}

	kcfg := a.Config.Kafka
	if kcfg.Enabled && kcfg.Topics.IndexPublished != "" {
		host, _ := os.Hostname()
		group := fmt.Sprintf("%s-%s-%s", kcfg.ConsumerGroup, host, ksuid.New().String())
		kc := kafka.NewConsumer(kcfg, kcfg.Topics.IndexPublished, consumer.HandleMessage(a.Catalog), kafka.WithGroupID(group))
		a.consumer = consumer.New(kc)
		go func() {
			if err := a.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("reload consumer stopped", "error", err)
			}
		}()
	}
	return nil
}

// Close stops the background work begun by Start, waits for the final
// analytics flush and releases connections.
func (a *App) Close() error {
	var errs []error
	if a.cancel != nil {
		a.cancel()
		if a.batch != nil {
			a.batch.Close()
		}
	}
	if a.consumer != nil {
		errs = append(errs, a.consumer.Close())
	}
	for _, p := range a.producers {
		errs = append(errs, p.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
