// Package indexer owns the live index of one book. An Engine loads payloads
// from a source, builds a complete Store off to the side and publishes it
// with a single atomic pointer swap, so queries see either the old index or
// the new one and never a mix.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

const (
	ReloadLoaded    = "loaded"
	ReloadUnchanged = "unchanged"
	ReloadFailed    = "failed"
)

// ReloadEvent describes the outcome of one Reload call.
type ReloadEvent struct {
	Book       string
	Status     string
	Generation string
	Previous   string
	Stats      index.Stats
	Duration   time.Duration
	Err        error
}

type Engine struct {
	name      string
	src       source.Source
	tok       *tokenizer.Tokenizer
	current   atomic.Pointer[index.Store]
	reloadMu  sync.Mutex
	mu        sync.RWMutex
	listeners []func(ReloadEvent)
	logger    *slog.Logger
}

// NewEngine creates an Engine with no index loaded. Call Reload before
// serving queries.
func NewEngine(name string, src source.Source, tok *tokenizer.Tokenizer) *Engine {
	if tok == nil {
		tok = tokenizer.Default()
	}
	return &Engine{
		name:   name,
		src:    src,
		tok:    tok,
		logger: slog.Default().With("component", "indexer", "book", name),
	}
}

func (e *Engine) Name() string {
	return e.name
}

func (e *Engine) Tokenizer() *tokenizer.Tokenizer {
	return e.tok
}

// Current returns the active Store. Callers keep using the returned pointer
// for the whole query even if a reload happens meanwhile.
func (e *Engine) Current() (*index.Store, error) {
	s := e.current.Load()
	if s == nil {
		return nil, fmt.Errorf("book %q: %w", e.name, apperrors.ErrIndexNotLoaded)
	}
	return s, nil
}

// Subscribe registers fn to run after every Reload, successful or not.
func (e *Engine) Subscribe(fn func(ReloadEvent)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// Reload fetches and loads the payload. If it fails the previous Store stays
// active. Loading bytes identical to the active generation is a no-op.
func (e *Engine) Reload(ctx context.Context) (ReloadEvent, error) {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	ctx, span := tracing.StartChildSpan(ctx, "index.reload")
	span.SetAttr("book", e.name)
	defer span.End()

	start := time.Now()
	ev := ReloadEvent{Book: e.name}
	if prev := e.current.Load(); prev != nil {
		ev.Previous = prev.Generation()
	}

	store, err := e.load(ctx)
	ev.Duration = time.Since(start)
	if err != nil {
		ev.Status, ev.Err = ReloadFailed, err
		span.RecordError(err)
		e.logger.Error("index reload failed, keeping previous index",
			"source", e.src.String(),
			"previous_generation", ev.Previous,
			"error", err,
		)
		e.notify(ev)
		return ev, err
	}

	ev.Generation = store.Generation()
	ev.Stats = store.Stats()
	span.SetAttr("generation", ev.Generation)
	if ev.Generation == ev.Previous {
		ev.Status = ReloadUnchanged
		e.logger.Debug("index unchanged", "generation", ev.Generation)
		e.notify(ev)
		return ev, nil
	}

	e.current.Store(store)
	ev.Status = ReloadLoaded
	e.logger.Info("index loaded",
		"generation", ev.Generation,
		"previous_generation", ev.Previous,
		"documents", ev.Stats.Documents,
		"terms", ev.Stats.Terms,
		"objects", ev.Stats.Objects,
		"duration_ms", ev.Duration.Milliseconds(),
	)
	e.notify(ev)
	return ev, nil
}

// Install publishes an already built Store, bypassing the source.
func (e *Engine) Install(store *index.Store) {
	e.current.Store(store)
}

func (e *Engine) load(ctx context.Context) (*index.Store, error) {
	if e.src == nil {
		return nil, fmt.Errorf("book %q has no index source", e.name)
	}
	data, err := e.src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store, err := index.Load(data, index.WithTokenizer(e.tok))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", e.src.String(), err)
	}
	return store, nil
}

func (e *Engine) notify(ev ReloadEvent) {
	e.mu.RLock()
	listeners := slices.Clone(e.listeners)
	e.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// StartWatch reloads every interval until ctx is done. Unchanged payloads
// are detected by generation and do not swap the Store.
func (e *Engine) StartWatch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("index watch stopping")
				return
			case <-ticker.C:
				// failures are logged and reported to subscribers by Reload
				_, _ = e.Reload(ctx)
			}
		}
	}()
}
