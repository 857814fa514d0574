package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

func TestCollectorToAggregator(t *testing.T) {
	agg := NewAggregator()
	batch := collector.NewBatchCollector(NewLocal(agg), 10, time.Hour)
	c := NewCollector(batch)

	c.TrackSearch(SearchEvent{Book: "handbook", Query: "rating", TotalHits: 2, LatencyMs: 3}, false)
	c.TrackSearch(SearchEvent{Book: "handbook", Query: "rating", TotalHits: 2, LatencyMs: 5, CacheHit: true}, false)
	c.TrackSearch(SearchEvent{Book: "handbook", Query: "zzz", TotalHits: 0, LatencyMs: 1}, false)
	c.TrackSearch(SearchEvent{Book: "handbook", Query: "rat"}, true)
	c.TrackReload(indexer.ReloadEvent{Book: "handbook", Status: indexer.ReloadLoaded, Generation: "g1", Stats: index.Stats{Documents: 5}})
	c.TrackReload(indexer.ReloadEvent{Book: "handbook", Status: indexer.ReloadFailed, Err: errors.New("malformed")})
	batch.Flush(context.Background())

	s := agg.Stats()
	if s.TotalSearches != 3 || s.SupersededCount != 1 || s.ZeroResultCount != 1 {
		t.Errorf("counts = %d searches, %d superseded, %d zero", s.TotalSearches, s.SupersededCount, s.ZeroResultCount)
	}
	if s.CacheHits != 1 || s.CacheMisses != 2 {
		t.Errorf("cache = %d/%d, want 1/2", s.CacheHits, s.CacheMisses)
	}
	if len(s.TopQueries) == 0 || s.TopQueries[0] != (QueryCount{Query: "rating", Count: 2}) {
		t.Errorf("top queries = %+v", s.TopQueries)
	}
	if len(s.ZeroResultQueries) != 1 || s.ZeroResultQueries[0].Query != "zzz" {
		t.Errorf("zero-result queries = %+v", s.ZeroResultQueries)
	}
	r := s.Reloads["handbook"]
	if r.Status != indexer.ReloadFailed || r.Generation != "g1" || r.Documents != 5 || r.Failures != 1 {
		t.Errorf("reload = %+v, want failed status keeping generation g1", r)
	}
	if s.SearchesByBook["handbook"] != 3 {
		t.Errorf("by book = %v", s.SearchesByBook)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.TrackSearch(SearchEvent{Query: "x"}, false)
	c.TrackReload(indexer.ReloadEvent{Book: "x"})
}

func TestHandleEventSkipsGarbage(t *testing.T) {
	agg := NewAggregator()
	h := HandleEvent(agg)
	for _, msg := range []string{`{not json`, `{"type":"mystery"}`} {
		if err := h(context.Background(), kafka.Message{Value: []byte(msg)}); err != nil {
			t.Errorf("%s: %v", msg, err)
		}
	}
	if agg.Stats().TotalSearches != 0 {
		t.Error("garbage counted as a search")
	}
}

func TestHandleEventPrefersTypeHeader(t *testing.T) {
	agg := NewAggregator()
	msg := kafka.Message{
		Key:   []byte("handbook"),
		Type:  string(EventSuperseded),
		Value: []byte(`{"book":"handbook","query":"rat"}`),
	}
	if err := HandleEvent(agg)(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if s := agg.Stats(); s.SupersededCount != 1 || s.TotalSearches != 0 {
		t.Errorf("superseded=%d total=%d", s.SupersededCount, s.TotalSearches)
	}
}

func TestRestore(t *testing.T) {
	agg := NewAggregator()
	agg.RecordSearch(SearchEvent{Type: EventSearch, Book: "handbook", Query: "rating", TotalHits: 2})
	agg.Restore(AggregatedStats{
		TotalSearches:  10,
		SearchesByBook: map[string]int64{"handbook": 10},
		TopQueries:     []QueryCount{{Query: "rating", Count: 4}},
		Reloads:        map[string]BookReload{"handbook": {Status: "loaded", Generation: "g0"}},
	})
	s := agg.Stats()
	if s.TotalSearches != 11 || s.SearchesByBook["handbook"] != 11 {
		t.Errorf("totals = %d / %v", s.TotalSearches, s.SearchesByBook)
	}
	if s.TopQueries[0] != (QueryCount{Query: "rating", Count: 5}) {
		t.Errorf("top query = %+v", s.TopQueries[0])
	}
	if s.Reloads["handbook"].Generation != "g0" {
		t.Errorf("reloads = %+v", s.Reloads)
	}
}

func TestPercentiles(t *testing.T) {
	agg := NewAggregator()
	for i := int64(1); i <= 100; i++ {
		agg.RecordSearch(SearchEvent{Type: EventSearch, Query: "q", LatencyMs: i, TotalHits: 1})
	}
	s := agg.Stats()
	if s.P50LatencyMs != 51 || s.P99LatencyMs != 100 || s.AvgLatencyMs != 50.5 {
		t.Errorf("p50=%d p99=%d avg=%.1f", s.P50LatencyMs, s.P99LatencyMs, s.AvgLatencyMs)
	}
}

func TestHandlerRoutes(t *testing.T) {
	agg := NewAggregator()
	agg.RecordSearch(SearchEvent{Type: EventSearch, Query: "rating", TotalHits: 1})
	mux := http.NewServeMux()
	NewHandler(agg, nil).Routes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/analytics", nil))
	var s AggregatedStats
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil || s.TotalSearches != 1 {
		t.Errorf("stats = %+v, %v", s, err)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/analytics/snapshots", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("snapshots without store = %d", rec.Code)
	}
}
