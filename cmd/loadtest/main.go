// Load generator for the search platform. It can seed a corpus through
// the ingestion API and then drive a mixed search/suggest workload
// against the searcher, reporting throughput and latency percentiles.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	SearchURL    string
	IngestionURL string
	Concurrency  int
	Duration     time.Duration
	SeedDocs     int
	SuggestShare int // percent of requests sent to /suggest
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
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

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
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

var sampleDocs = []map[string]string{
	{"title": "Distributed systems primer", "body": "consensus replication and partition tolerance in distributed systems"},
	{"title": "Search engine internals", "body": "inverted index postings lists and query evaluation"},
	{"title": "Analytics pipelines", "body": "streaming aggregation of search analytics events"},
	{"title": "Document ingestion", "body": "validating and publishing documents for indexing"},
	{"title": "Query processing", "body": "parsing normalising and executing search queries"},
	{"title": "Cache strategies", "body": "result caching with invalidation on index updates"},
	{"title": "Ranking with BM25", "body": "term frequency saturation and document length normalisation"},
	{"title": "Shard routing", "body": "hashing document identifiers onto index shards"},
	{"title": "Circuit breakers", "body": "failing fast when a downstream dependency degrades"},
	{"title": "Prefix matching", "body": "matching query terms as prefixes of indexed lexemes"},
}

var queries = []string{
	"distributed systems",
	"search engine",
	"inverted index",
	"document ingestion",
	"query processing",
	"cache invalidation",
	"bm25 ranking",
	"shard routing",
	"circuit breaker",
	"prefix matching",
	"analytics events",
	"postings lists",
}

var prefixes = []string{"dis", "sea", "ind", "que", "cac", "sha", "pre", "ana"}

func main() {
	searchURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	ingestionURL := flag.String("ingestion-url", "http://localhost:8081", "base URL of the ingestion service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	seedDocs := flag.Int("seed", 0, "number of documents to ingest before the run")
	suggestShare := flag.Int("suggest-share", 20, "percent of requests sent to /suggest")
	flag.Parse()

	cfg := Config{
		SearchURL:    *searchURL,
		IngestionURL: *ingestionURL,
		Concurrency:  *concurrency,
		Duration:     *duration,
		SeedDocs:     *seedDocs,
		SuggestShare: *suggestShare,
	}

	fmt.Println("=== Search Platform Load Test ===")
	fmt.Printf("Search target: %s\n", cfg.SearchURL)
	fmt.Printf("Concurrency:   %d\n", cfg.Concurrency)
	fmt.Printf("Duration:      %s\n", cfg.Duration)
	fmt.Printf("Suggest share: %d%%\n", cfg.SuggestShare)
	fmt.Println()

	if cfg.SeedDocs > 0 {
		if err := seedCorpus(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "seeding failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %d documents via %s\n\n", cfg.SeedDocs, cfg.IngestionURL)
	}

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

// seedCorpus ingests SeedDocs documents, cycling through the sample set
// with a counter suffix so every document is distinct.
func seedCorpus(cfg Config) error {
	client := &http.Client{Timeout: 10 * time.Second}
	for i := 0; i < cfg.SeedDocs; i++ {
		doc := sampleDocs[i%len(sampleDocs)]
		payload, err := json.Marshal(map[string]any{
			"fields": map[string]string{
				"title": fmt.Sprintf("%s #%d", doc["title"], i),
				"body":  doc["body"],
			},
		})
		if err != nil {
			return err
		}
		resp, err := client.Post(cfg.IngestionURL+"/api/v1/documents",
			"application/json", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("ingestion returned status %d", resp.StatusCode)
		}
	}
	return nil
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			n := workerID

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				target := nextRequestURL(cfg, n)
				n++

				start := time.Now()
				resp, err := client.Do(mustNewRequest(ctx, target))
				elapsed := time.Since(start)
				if err != nil {
					stats.RecordRequest(elapsed, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.RecordRequest(elapsed, resp.StatusCode, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// nextRequestURL alternates between search requests (exact and prefix
// mode) and suggest requests per the configured share.
func nextRequestURL(cfg Config, n int) string {
	if cfg.SuggestShare > 0 && n%100 < cfg.SuggestShare {
		prefix := prefixes[n%len(prefixes)]
		return fmt.Sprintf("%s/api/v1/suggest?q=%s&limit=10",
			cfg.SearchURL, url.QueryEscape(prefix))
	}
	query := queries[n%len(queries)]
	prefixMode := n%2 == 0
	return fmt.Sprintf("%s/api/v1/search?q=%s&prefix=%t&limit=10",
		cfg.SearchURL, url.QueryEscape(query), prefixMode)
}

func mustNewRequest(ctx context.Context, rawURL string) *http.Request {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errors)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

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
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
