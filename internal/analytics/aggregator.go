package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/openfts/openfts/pkg/kafka"
)

// maxLatencySamples caps the latency window; oldest samples are discarded
// so percentiles reflect recent traffic.
const maxLatencySamples = 100000

// AggregatedStats is a point-in-time view of search and indexing activity.
type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	PrefixSearches    int64        `json:"prefix_searches"`
	IndexEmptyCount   int64        `json:"index_empty_count"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	CacheHitRate      float64      `json:"cache_hit_rate"`
	DocsIndexed       int64        `json:"docs_indexed"`
	DocsRemoved       int64        `json:"docs_removed"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P90LatencyMs      int64        `json:"p90_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator consumes analytics events and maintains rolling statistics.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	prefixSearches    int64
	indexEmpty        int64
	zeroResults       int64
	cacheHits         int64
	cacheMisses       int64
	docsIndexed       int64
	docsRemoved       int64
	latencies         []int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time

	consumer *kafka.Consumer
	logger   *slog.Logger
}

func NewAggregator(consumer *kafka.Consumer) *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 10000),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		consumer:          consumer,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Start begins consuming analytics events. It blocks until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// HandleEvent returns a Kafka MessageHandler that records analytics events.
// Search and index events share a topic; the type field disambiguates.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		switch event.Type {
		case EventIndexDoc, EventIndexRemove:
			idxEvent, err := kafka.DecodeJSON[IndexEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode index event", "error", err)
				return nil
			}
			agg.RecordIndexEvent(idxEvent)
		default:
			agg.RecordSearchEvent(event)
		}
		return nil
	}
}

func (a *Aggregator) RecordSearchEvent(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	if event.Prefix {
		a.prefixSearches++
	}
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if event.IndexEmpty || event.Type == EventIndexEmpty {
		a.indexEmpty++
	} else if event.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[event.Query]++
	}

	a.latencies = append(a.latencies, event.LatencyMs)
	if len(a.latencies) > maxLatencySamples {
		a.latencies = a.latencies[len(a.latencies)-maxLatencySamples:]
	}
	a.queryCounts[event.Query]++
}

func (a *Aggregator) RecordIndexEvent(event IndexEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch event.Type {
	case EventIndexRemove:
		a.docsRemoved++
	default:
		a.docsIndexed++
	}
}

// Stats computes the current aggregated view.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		PrefixSearches:  a.prefixSearches,
		IndexEmptyCount: a.indexEmpty,
		ZeroResultCount: a.zeroResults,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		DocsIndexed:     a.docsIndexed,
		DocsRemoved:     a.docsRemoved,
	}
	if lookups := a.cacheHits + a.cacheMisses; lookups > 0 {
		stats.CacheHitRate = float64(a.cacheHits) / float64(lookups)
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
		stats.P90LatencyMs = percentile(sorted, 90)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

// percentile uses nearest-rank on an ascending slice.
func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct*len(sorted) + 99) / 100
	if idx > 0 {
		idx--
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN ranks by count descending, query ascending on ties so output is
// stable across calls.
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
