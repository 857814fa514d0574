// Command loadtest drives a running searcher.
//
// In steady mode every worker sends whole queries back to back. In
// keystroke mode every worker behaves like a search-as-you-type box: it
// sends each growing prefix of a query under one session id without waiting
// for the previous answer, so the service should supersede most of them
// with 409.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-mode keystroke]
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"
)

const sessionHeader = "X-Search-Session"

type Config struct {
	BaseURL        string
	Book           string
	Mode           string
	Concurrency    int
	Duration       time.Duration
	KeystrokeDelay time.Duration
	Queries        []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	superseded    atomic.Int64
	cacheHits     atomic.Int64
	zeroResults   atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

// searchReply is the part of the search response the report needs.
type searchReply struct {
	TotalHits int  `json:"total_hits"`
	CacheHit  bool `json:"cache_hit"`
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, reply *searchReply, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}

	switch {
	case statusCode == http.StatusConflict:
		s.superseded.Add(1)
	case statusCode >= 200 && statusCode < 300:
		s.successCount.Add(1)
		if reply != nil && reply.CacheHit {
			s.cacheHits.Add(1)
		}
		if reply != nil && reply.TotalHits == 0 {
			s.zeroResults.Add(1)
		}
	default:
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

var defaultQueries = []string{
	"installation",
	"configuration file",
	"getting started",
	"api reference",
	"search index",
	"release notes",
	"command line",
	"environment variables",
	"troubleshooting",
	"-deprecated upgrade",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	book := flag.String("book", "", "book to query (default book when empty)")
	mode := flag.String("mode", "steady", "steady or keystroke")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	keystrokeDelay := flag.Duration("keystroke-delay", 30*time.Millisecond, "pause between keystrokes in keystroke mode")
	queryFile := flag.String("queries", "", "file with one query per line")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		var err error
		if queries, err = readQueries(*queryFile); err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
	}
	if *mode != "steady" && *mode != "keystroke" {
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(1)
	}

	cfg := Config{
		BaseURL:        strings.TrimRight(*baseURL, "/"),
		Book:           *book,
		Mode:           *mode,
		Concurrency:    *concurrency,
		Duration:       *duration,
		KeystrokeDelay: *keystrokeDelay,
		Queries:        queries,
	}

	fmt.Println("=== docsearch load test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Mode:        %s\n", cfg.Mode)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg)
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" && !strings.HasPrefix(q, "#") {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 && sc.Err() == nil {
		return nil, fmt.Errorf("%s has no queries", path)
	}
	return queries, sc.Err()
}

type worker struct {
	cfg     Config
	client  *http.Client
	stats   *Stats
	session string
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 4,
			MaxIdleConnsPerHost: cfg.Concurrency * 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	fmt.Print("Running")
	g, gctx := errgroup.WithContext(ctx)
	for id := range cfg.Concurrency {
		w := &worker{cfg: cfg, client: client, stats: stats, session: ksuid.New().String()}
		g.Go(func() error {
			w.run(gctx, id)
			return nil
		})
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func (w *worker) run(ctx context.Context, offset int) {
	for i := offset; ctx.Err() == nil; i++ {
		query := w.cfg.Queries[i%len(w.cfg.Queries)]
		if w.cfg.Mode == "steady" {
			w.search(ctx, query)
			continue
		}
		w.typeQuery(ctx, query)
	}
}

// typeQuery sends every prefix of query a keystroke apart and waits for all of
// them before moving to the next query.
func (w *worker) typeQuery(ctx context.Context, query string) {
	var inflight sync.WaitGroup
	for n := 1; n <= len(query); n++ {
		if query[n-1] == ' ' {
			continue
		}
		prefix := query[:n]
		inflight.Go(func() { w.search(ctx, prefix) })
		select {
		case <-ctx.Done():
			inflight.Wait()
			return
		case <-time.After(w.cfg.KeystrokeDelay):
		}
	}
	inflight.Wait()
}

func (w *worker) search(ctx context.Context, query string) {
	params := url.Values{"q": {query}, "limit": {"10"}}
	if w.cfg.Book != "" {
		params.Set("book", w.cfg.Book)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.BaseURL+"/api/v1/search?"+params.Encode(), nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	req.Header.Set(sessionHeader, w.session)

	start := time.Now()
	resp, err := w.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			w.stats.RecordRequest(duration, 0, nil, err)
		}
		return
	}
	defer resp.Body.Close()

	var reply *searchReply
	if resp.StatusCode == http.StatusOK {
		reply = &searchReply{}
		if err := json.NewDecoder(resp.Body).Decode(reply); err != nil {
			reply = nil
		}
	}
	w.stats.RecordRequest(duration, resp.StatusCode, reply, nil)
}

func printReport(stats *Stats, cfg Config) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()
	superseded := stats.superseded.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Superseded:      %d\n", superseded)
	fmt.Printf("Errors:          %d\n", errors)
	fmt.Printf("Cache Hits:      %d\n", stats.cacheHits.Load())
	fmt.Printf("Zero Results:    %d\n", stats.zeroResults.Load())

	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errors)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/cfg.Duration.Seconds())
		if cfg.Mode == "keystroke" {
			fmt.Printf("Supersede Rate:  %.2f%%\n", float64(superseded)/float64(total)*100)
		}
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
