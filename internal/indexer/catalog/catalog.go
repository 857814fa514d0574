// Package catalog serves several books side by side. Each book owns an
// independent indexer.Engine; the Catalog routes lookups by book name and
// falls back to a default book when none is given.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Book is one published index and how its results link back to the site.
type Book struct {
	Name          string
	Engine        *indexer.Engine
	LinkSuffix    string
	WatchInterval time.Duration
}

// Catalog maps book names to their engines.
type Catalog struct {
	mu          sync.RWMutex
	books       map[string]*Book
	order       []string
	defaultBook string
	logger      *slog.Logger
}

// New builds a Catalog. defaultBook names the book used when callers pass
// no name; empty selects the first book.
func New(books []*Book, defaultBook string) (*Catalog, error) {
	if len(books) == 0 {
		return nil, fmt.Errorf("catalog needs at least one book")
	}
	c := &Catalog{
		books:  make(map[string]*Book, len(books)),
		logger: slog.Default().With("component", "catalog"),
	}
	for _, b := range books {
		if _, dup := c.books[b.Name]; dup {
			return nil, fmt.Errorf("duplicate book %q", b.Name)
		}
		c.books[b.Name] = b
		c.order = append(c.order, b.Name)
	}
	if defaultBook == "" {
		defaultBook = c.order[0]
	}
	if _, ok := c.books[defaultBook]; !ok {
		return nil, fmt.Errorf("default book %q: %w", defaultBook, apperrors.ErrUnknownBook)
	}
	c.defaultBook = defaultBook
	c.logger.Info("catalog ready", "books", len(c.order), "default", defaultBook)
	return c, nil
}

// Get returns the named book, or the default book for an empty name.
func (c *Catalog) Get(name string) (*Book, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name == "" {
		name = c.defaultBook
	}
	b, ok := c.books[name]
	if !ok {
		return nil, fmt.Errorf("book %q: %w", name, apperrors.ErrUnknownBook)
	}
	return b, nil
}

func (c *Catalog) Default() *Book {
	b, _ := c.Get("")
	return b
}

// Books returns every book in configuration order.
func (c *Catalog) Books() []*Book {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Book, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.books[name])
	}
	return out
}

// Subscribe registers fn with every book's engine.
func (c *Catalog) Subscribe(fn func(indexer.ReloadEvent)) {
	for _, b := range c.Books() {
		b.Engine.Subscribe(fn)
	}
}

// ReloadAll reloads every book in parallel. Every book is attempted even if
// some fail; the first failure is returned.
func (c *Catalog) ReloadAll(ctx context.Context) ([]indexer.ReloadEvent, error) {
	books := c.Books()
	events := make([]indexer.ReloadEvent, len(books))
	var g errgroup.Group
	for i, b := range books {
		g.Go(func() error {
			ev, err := b.Engine.Reload(ctx)
			events[i] = ev
			if err != nil {
				return fmt.Errorf("reloading book %q: %w", b.Name, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return events, err
}

// StartWatch starts the polling loop of every book with a watch interval.
func (c *Catalog) StartWatch(ctx context.Context) {
	for _, b := range c.Books() {
		if b.WatchInterval > 0 {
			c.logger.Info("watching index", "book", b.Name, "interval", b.WatchInterval)
			b.Engine.StartWatch(ctx, b.WatchInterval)
		}
	}
}
