package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// latencyWindow bounds how many recent latencies feed the percentiles.
const latencyWindow = 10000

type AggregatedStats struct {
	TotalSearches     int64                 `json:"total_searches"`
	SupersededCount   int64                 `json:"superseded_count"`
	CacheHits         int64                 `json:"cache_hits"`
	CacheMisses       int64                 `json:"cache_misses"`
	ZeroResultCount   int64                 `json:"zero_result_count"`
	AvgLatencyMs      float64               `json:"avg_latency_ms"`
	P50LatencyMs      int64                 `json:"p50_latency_ms"`
	P95LatencyMs      int64                 `json:"p95_latency_ms"`
	P99LatencyMs      int64                 `json:"p99_latency_ms"`
	TopQueries        []QueryCount          `json:"top_queries"`
	ZeroResultQueries []QueryCount          `json:"zero_result_queries"`
	SearchesByBook    map[string]int64      `json:"searches_by_book"`
	Reloads           map[string]BookReload `json:"reloads"`
	QueriesPerMinute  float64               `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// BookReload is the latest reload outcome of one book.
type BookReload struct {
	Status     string    `json:"status"`
	Generation string    `json:"generation,omitempty"`
	Documents  int       `json:"documents"`
	Failures   int64     `json:"failures"`
	At         time.Time `json:"at"`
}

type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	superseded        int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	byBook            map[string]int64
	reloads           map[string]BookReload
	startTime         time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, latencyWindow),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		byBook:            make(map[string]int64),
		reloads:           make(map[string]BookReload),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent returns a Kafka MessageHandler feeding agg. The event-type
// header picks the event; older messages without it are routed by their
// type field. Undecodable messages are logged and skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		typ := EventType(msg.Type)
		if typ == "" {
			env, err := kafka.DecodeJSON[envelope](msg.Value)
			if err != nil {
				agg.logger.Error("failed to decode analytics event", "error", err)
				return nil
			}
			typ = env.Type
		}
		switch typ {
		case EventSearch, EventZeroResult, EventSuperseded:
			ev, err := kafka.DecodeJSON[SearchEvent](msg.Value)
			if err != nil {
				agg.logger.Error("failed to decode search event", "error", err)
				return nil
			}
			ev.Type = typ
			agg.RecordSearch(ev)
		case EventIndexReload:
			ev, err := kafka.DecodeJSON[ReloadEvent](msg.Value)
			if err != nil {
				agg.logger.Error("failed to decode reload event", "error", err)
				return nil
			}
			agg.RecordReload(ev)
		default:
			agg.logger.Warn("unknown analytics event type", "type", typ, "book", string(msg.Key))
		}
		return nil
	}
}

func (a *Aggregator) RecordSearch(ev SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ev.Type == EventSuperseded {
		a.superseded++
		return
	}
	a.totalSearches++
	a.byBook[ev.Book]++
	if ev.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, ev.LatencyMs)
	} else {
		a.latencies[a.next] = ev.LatencyMs
		a.next = (a.next + 1) % latencyWindow
	}
	a.queryCounts[ev.Query]++
	if ev.Type == EventZeroResult {
		a.zeroResults++
		a.zeroResultQueries[ev.Query]++
	}
}

func (a *Aggregator) RecordReload(ev ReloadEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.reloads[ev.Book]
	r.Status = ev.Status
	r.At = ev.Timestamp
	if ev.Error != "" {
		r.Failures++
	} else {
		r.Generation = ev.Generation
		r.Documents = ev.Documents
	}
	a.reloads[ev.Book] = r
}

// Restore adds the counters of an earlier snapshot to a. Only the top
// queries survive a snapshot, and latencies are not restored.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches += s.TotalSearches
	a.superseded += s.SupersededCount
	a.cacheHits += s.CacheHits
	a.cacheMisses += s.CacheMisses
	a.zeroResults += s.ZeroResultCount
	for book, n := range s.SearchesByBook {
		a.byBook[book] += n
	}
	for _, q := range s.TopQueries {
		a.queryCounts[q.Query] += q.Count
	}
	for _, q := range s.ZeroResultQueries {
		a.zeroResultQueries[q.Query] += q.Count
	}
	for book, r := range s.Reloads {
		if cur, ok := a.reloads[book]; !ok || cur.At.Before(r.At) {
			a.reloads[book] = r
		}
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		SupersededCount: a.superseded,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		SearchesByBook:  make(map[string]int64, len(a.byBook)),
		Reloads:         make(map[string]BookReload, len(a.reloads)),
	}
	for k, v := range a.byBook {
		stats.SearchesByBook[k] = v
	}
	for k, v := range a.reloads {
		stats.Reloads[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then query, so equal counts list stably.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
