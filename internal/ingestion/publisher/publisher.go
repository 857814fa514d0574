// Package publisher makes a validated build live: page text goes to the
// content store first, then the payload replaces the book's index file and
// an index-published event tells every searcher replica to reload.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// PageStore stores page text for a single book; *content.Postgres
// satisfies it.
type PageStore interface {
	Put(ctx context.Context, docName, body string) error
}

// Target is where one book's builds are written.
type Target struct {
	Path  string
	Pages PageStore
}

type Option func(*Publisher)

// WithProducer announces every published build on Kafka.
func WithProducer(p kafka.Publisher) Option {
	return func(pub *Publisher) { pub.producer = p }
}

// WithReloader is called after a build is written so the local process
// serves it without waiting for its watcher or the Kafka event.
func WithReloader(fn func(ctx context.Context, book string) error) Option {
	return func(pub *Publisher) { pub.reload = fn }
}

// WithTokenizer sets the analyzer used to validate payloads. It must match
// the one the searcher loads them with.
func WithTokenizer(t *tokenizer.Tokenizer) Option {
	return func(pub *Publisher) { pub.tok = t }
}

// Publisher coordinates content storage, the index file swap and event
// production.
type Publisher struct {
	targets  map[string]Target
	producer kafka.Publisher
	reload   func(ctx context.Context, book string) error
	tok      *tokenizer.Tokenizer
	now      func() time.Time
	logger   *slog.Logger
}

func New(targets map[string]Target, opts ...Option) *Publisher {
	p := &Publisher{
		targets: targets,
		now:     time.Now,
		logger:  slog.Default().With("component", "publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Books lists the books this publisher can write, sorted.
func (p *Publisher) Books() []string {
	names := make([]string, 0, len(p.targets))
	for name := range p.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Publish validates req and makes it the book's live index. Publishing the
// generation that is already on disk is a no-op reported as unchanged.
func (p *Publisher) Publish(ctx context.Context, req *ingestion.PublishRequest) (*ingestion.PublishResponse, error) {
	target, ok := p.targets[req.Book]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnknownBook, 404, "book %q is not publishable", req.Book)
	}
	var loadOpts []index.Option
	if p.tok != nil {
		loadOpts = append(loadOpts, index.WithTokenizer(p.tok))
	}
	store, err := validator.ValidatePublishRequest(req, loadOpts...)
	if err != nil {
		return nil, err
	}

	resp := &ingestion.PublishResponse{
		Book:        req.Book,
		Generation:  store.Generation(),
		Documents:   store.NumDocuments(),
		Status:      ingestion.StatusPublished,
		PublishedAt: p.now().UTC(),
	}
	if p.currentGeneration(target.Path, loadOpts) == resp.Generation && len(req.Pages) == 0 {
		resp.Status = ingestion.StatusUnchanged
		return resp, nil
	}

	if len(req.Pages) > 0 {
		if target.Pages == nil {
			p.logger.Warn("no content store for book, page text dropped", "book", req.Book, "pages", len(req.Pages))
		} else {
			for name, body := range req.Pages {
				if err := target.Pages.Put(ctx, name, body); err != nil {
					return nil, fmt.Errorf("storing pages for %s: %w", req.Book, err)
				}
				resp.Pages++
			}
		}
	}

	if err := source.Publish(ctx, target.Path, req.Payload); err != nil {
		return nil, fmt.Errorf("publishing %s: %w", req.Book, err)
	}

	if p.reload != nil {
		if err := p.reload(ctx, req.Book); err != nil {
			p.logger.Error("local reload after publish failed", "book", req.Book, "error", err)
		}
	}

	if p.producer != nil {
		event := kafka.Event{
			Key:  req.Book,
			Type: consumer.EventType,
			Value: consumer.IndexPublished{
				Book:        req.Book,
				Generation:  resp.Generation,
				PublishedAt: resp.PublishedAt,
			},
		}
		// The file is already live; replicas still pick it up by polling.
		if err := p.producer.Publish(ctx, event); err != nil {
			p.logger.Error("failed to announce published index",
				"book", req.Book,
				"generation", resp.Generation,
				"error", err,
			)
		}
	}

	p.logger.Info("index published",
		"book", req.Book,
		"generation", resp.Generation,
		"documents", resp.Documents,
		"pages", resp.Pages,
	)
	return resp, nil
}

// currentGeneration returns the generation of the file at path, or "" when
// it is missing or unreadable.
func (p *Publisher) currentGeneration(path string, opts []index.Option) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("reading current index", "path", path, "error", err)
		}
		return ""
	}
	store, err := index.Load(data, opts...)
	if err != nil {
		return ""
	}
	return store.Generation()
}
