// Package cache stores search results in Redis. Keys include the book and
// the index generation, so a reload makes older entries unreachable without
// an explicit flush.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// Backend is the subset of *pkgredis.Client the cache uses. Get returns
// an error matching pkgredis.Nil on a miss.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
	Count(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one cacheable query. Query should be the normalized form
// so equivalent raw strings share an entry.
type Key struct {
	Book       string
	Generation string
	Query      string
	Limit      int
}

func (k Key) String() string {
	raw := fmt.Sprintf("%s\x00%s\x00%s\x00%d", k.Book, k.Generation, k.Query, k.Limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, k.Book, hash[:16])
}

type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Errors  int64 `json:"errors"`
	Entries int64 `json:"entries"`
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	errs    atomic.Int64
}

func New(backend Backend, ttl time.Duration) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, key Key) (*executor.SearchResult, bool) {
	k := key.String()
	data, err := c.backend.Get(ctx, k)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.errs.Add(1)
			c.logger.Error("cache get failed", "key", k, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.errs.Add(1)
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "book", key.Book, "query", key.Query, "key", k)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key Key, result *executor.SearchResult) {
	k := key.String()
	stored := *result
	stored.Timings = nil
	data, err := json.Marshal(&stored)
	if err != nil {
		c.errs.Add(1)
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.backend.Set(ctx, k, data, c.ttl); err != nil {
		c.errs.Add(1)
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached result for key or computes and stores
// it. Concurrent misses for the same key share one computation. hit
// reports whether the result came from the cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	computeFn func(ctx context.Context) (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key.String(), func() (any, error) {
		result, err := computeFn(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(context.WithoutCancel(ctx), key, result)
		return result, nil
	})
	if err != nil && ctx.Err() == nil && isCancellation(err) {
		// the shared computation belonged to a caller that went away;
		// this caller is still live, so run its own
		result, err := computeFn(ctx)
		return result, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops cached results of book, or of every book when book is
// empty.
func (c *QueryCache) Invalidate(ctx context.Context, book string) (int64, error) {
	pattern := keyPrefix + "*"
	if book != "" {
		pattern = keyPrefix + escapeGlob(book) + ":*"
	}
	deleted, err := c.backend.FlushByPattern(ctx, pattern)
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "book", book, "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats(ctx context.Context) Stats {
	s := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errs.Load(),
	}
	if n, err := c.backend.Count(ctx, keyPrefix+"*"); err == nil {
		s.Entries = n
	}
	return s
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, apperrors.ErrSuperseded)
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
