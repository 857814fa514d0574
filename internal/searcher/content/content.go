// Package content supplies page text for result snippets. Sources are
// optional: a missing page yields no snippet, never a failed query.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// maxPageBytes bounds how much of a page is read for snippet extraction.
const maxPageBytes = 4 << 20

// Source returns the plain text of a document. Implementations return an
// error matching apperrors.ErrContentNotFound when the page has no text.
type Source interface {
	Text(ctx context.Context, doc index.Document) (string, error)
}

// Dir reads the "_sources" tree a Sphinx build writes next to its HTML:
// _sources/<fileName>.txt, falling back to _sources/<docName>.txt.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) Text(ctx context.Context, doc index.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	root, err := os.OpenRoot(d.root)
	if err != nil {
		return "", fmt.Errorf("opening content dir %s: %w", d.root, err)
	}
	defer root.Close()

	var candidates []string
	if doc.FileName != "" {
		candidates = append(candidates, path.Join("_sources", doc.FileName+".txt"))
	}
	candidates = append(candidates, path.Join("_sources", doc.Name+".txt"), doc.Name+".txt")

	for _, name := range candidates {
		f, err := root.Open(name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("opening %s: %w", name, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, maxPageBytes))
		f.Close()
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", name, err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("no source text for %q: %w", doc.Name, apperrors.ErrContentNotFound)
}

// Guarded protects a slow or flaky Source with a per-call timeout and a
// circuit breaker. Missing pages and abandoned lookups do not count as
// failures.
type Guarded struct {
	src     Source
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewGuarded(name string, src Source, timeout time.Duration, cb resilience.CircuitBreakerConfig) *Guarded {
	cb.IsFailure = func(err error) bool {
		return !errors.Is(err, apperrors.ErrContentNotFound) && !errors.Is(err, context.Canceled)
	}
	return &Guarded{
		src:     src,
		timeout: timeout,
		breaker: resilience.NewCircuitBreaker("content-"+name, cb),
		logger:  slog.Default().With("component", "content", "source", name),
	}
}

func (g *Guarded) Text(ctx context.Context, doc index.Document) (string, error) {
	text, err := resilience.Call(ctx, g.breaker, func(ctx context.Context) (string, error) {
		return resilience.WithTimeoutValue(ctx, g.timeout, "content.text", func(ctx context.Context) (string, error) {
			return g.src.Text(ctx, doc)
		})
	})
	if err != nil && !errors.Is(err, apperrors.ErrContentNotFound) {
		g.logger.Warn("content lookup failed", "doc", doc.Name, "error", err)
	}
	return text, err
}

func (g *Guarded) State() resilience.State {
	return g.breaker.State()
}

// Stats reports the breaker guarding this source.
func (g *Guarded) Stats() resilience.Stats {
	return g.breaker.Stats()
}
