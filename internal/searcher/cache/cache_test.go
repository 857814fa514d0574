package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
)

// memBackend is an in-process stand-in for Redis.
type memBackend struct {
	mu   sync.Mutex
	data map[string]string
	fail bool
}

func newMem() *memBackend { return &memBackend{data: make(map[string]string)} }

func (m *memBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", errors.New("connection refused")
	}
	v, ok := m.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *memBackend) Count(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			n++
		}
	}
	return n, nil
}

func result(query string) *executor.SearchResult {
	return &executor.SearchResult{Query: query, TotalHits: 1, Timings: map[string]int64{"search.execute": 5}}
}

func TestKeyDependsOnEveryField(t *testing.T) {
	base := Key{Book: "handbook", Generation: "g1", Query: "rate", Limit: 10}
	variants := []Key{
		{Book: "api", Generation: "g1", Query: "rate", Limit: 10},
		{Book: "handbook", Generation: "g2", Query: "rate", Limit: 10},
		{Book: "handbook", Generation: "g1", Query: "store", Limit: 10},
		{Book: "handbook", Generation: "g1", Query: "rate", Limit: 5},
	}
	for _, v := range variants {
		if v.String() == base.String() {
			t.Errorf("%+v collides with %+v", v, base)
		}
	}
	if base.String() != (Key{Book: "handbook", Generation: "g1", Query: "rate", Limit: 10}).String() {
		t.Error("key not stable")
	}
}

func TestGetOrCompute(t *testing.T) {
	c := New(newMem(), time.Minute)
	ctx := context.Background()
	key := Key{Book: "handbook", Generation: "g1", Query: "rate", Limit: 10}
	var calls atomic.Int32
	compute := func(context.Context) (*executor.SearchResult, error) {
		calls.Add(1)
		return result("rating"), nil
	}

	r, hit, err := c.GetOrCompute(ctx, key, compute)
	if err != nil || hit || r.Query != "rating" {
		t.Fatalf("first = %+v, %v, %v", r, hit, err)
	}
	r, hit, err = c.GetOrCompute(ctx, key, compute)
	if err != nil || !hit || r.Query != "rating" {
		t.Fatalf("second = %+v, %v, %v", r, hit, err)
	}
	if r.Timings != nil {
		t.Error("per-request timings must not be cached")
	}
	if calls.Load() != 1 {
		t.Errorf("computed %d times", calls.Load())
	}
	s := c.Stats(ctx)
	if s.Hits != 1 || s.Misses != 1 || s.Entries != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestGetOrComputeCollapsesMisses(t *testing.T) {
	c := New(newMem(), time.Minute)
	key := Key{Book: "b", Generation: "g", Query: "q", Limit: 1}
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return result("q"), nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.GetOrCompute(context.Background(), key, compute); err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if calls.Load() > 2 {
		t.Errorf("computed %d times for concurrent misses", calls.Load())
	}
}

func TestGetOrComputeRecomputesAfterForeignCancellation(t *testing.T) {
	c := New(newMem(), time.Minute)
	key := Key{Book: "b", Generation: "g", Query: "q", Limit: 1}
	var calls atomic.Int32
	compute := func(context.Context) (*executor.SearchResult, error) {
		if calls.Add(1) == 1 {
			return nil, apperrors.ErrSuperseded
		}
		return result("q"), nil
	}
	r, _, err := c.GetOrCompute(context.Background(), key, compute)
	if err != nil || r == nil {
		t.Fatalf("live caller got %v", err)
	}
}

func TestBackendFailureIsAMiss(t *testing.T) {
	mem := newMem()
	mem.fail = true
	c := New(mem, time.Minute)
	r, hit, err := c.GetOrCompute(context.Background(), Key{Query: "q"}, func(context.Context) (*executor.SearchResult, error) {
		return result("q"), nil
	})
	if err != nil || hit || r == nil {
		t.Fatalf("got %v, %v, %v", r, hit, err)
	}
	if c.Stats(context.Background()).Errors == 0 {
		t.Error("backend error not counted")
	}
}

func TestInvalidate(t *testing.T) {
	mem := newMem()
	c := New(mem, time.Minute)
	ctx := context.Background()
	c.Set(ctx, Key{Book: "handbook", Query: "a"}, result("a"))
	c.Set(ctx, Key{Book: "handbook", Query: "b"}, result("b"))
	c.Set(ctx, Key{Book: "api", Query: "a"}, result("a"))

	n, err := c.Invalidate(ctx, "handbook")
	if err != nil || n != 2 {
		t.Fatalf("Invalidate(handbook) = %d, %v", n, err)
	}
	if _, ok := c.Get(ctx, Key{Book: "api", Query: "a"}); !ok {
		t.Error("other book's entries were dropped")
	}
	if n, _ := c.Invalidate(ctx, ""); n != 1 {
		t.Errorf("Invalidate(all) = %d", n)
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.Set(ctx, "search:handbook:a", []byte("x"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if v, err := m.Get(ctx, "search:handbook:a"); err != nil || v != "x" {
		t.Fatalf("Get = %q, %v", v, err)
	}
	if n, _ := m.Count(ctx, "search:*"); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
	now = now.Add(2 * time.Minute)
	if _, err := m.Get(ctx, "search:handbook:a"); !pkgredis.IsNilError(err) {
		t.Errorf("expired Get error = %v, want nil-miss", err)
	}
}
