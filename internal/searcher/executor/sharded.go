package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openfts/openfts/internal/indexer/index"
	"github.com/openfts/openfts/internal/indexer/shard"
	"github.com/openfts/openfts/internal/searcher/merger"
	"github.com/openfts/openfts/internal/searcher/parser"
	"github.com/openfts/openfts/internal/searcher/ranker"
	"github.com/openfts/openfts/pkg/config"
	apperrors "github.com/openfts/openfts/pkg/errors"
)

// ShardedExecutor fans a query out over every shard and merges the ranked
// results. Corpus statistics are computed globally before per-shard
// ranking, so a document's score does not depend on which shard holds it.
type ShardedExecutor struct {
	router *shard.Router
	cfg    config.SearchConfig
	ranker *ranker.Ranker
	logger *slog.Logger
}

// NewSharded creates a ShardedExecutor over the router's shards.
func NewSharded(router *shard.Router, cfg config.SearchConfig) *ShardedExecutor {
	return &ShardedExecutor{
		router: router,
		cfg:    cfg,
		ranker: ranker.New(cfg.FieldWeights(), cfg.Scorer),
		logger: slog.Default().With("component", "sharded-executor"),
	}
}

// Execute runs a parsed query across all shards. The empty-index check
// sums lifetime counters over every shard: the corpus counts as never
// indexed only when no shard ever committed a document.
func (e *ShardedExecutor) Execute(ctx context.Context, q *parser.Query, opts Options) (*SearchResult, error) {
	start := time.Now()
	snaps := e.router.Snapshots()

	var lifetime uint64
	for _, snap := range snaps {
		lifetime += snap.LifetimeIndexed()
	}
	if lifetime == 0 {
		return nil, apperrors.ErrIndexEmpty
	}

	result := &SearchResult{Query: q.Raw, Results: []ranker.ScoredDoc{}}
	if len(q.Terms) == 0 {
		result.TookMs = time.Since(start).Milliseconds()
		return result, nil
	}

	single := Executor{cfg: e.cfg}
	fields, ok := single.resolveFields(opts.Fields)
	if !ok {
		result.TookMs = time.Since(start).Milliseconds()
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := single.limit(opts.Limit)

	// Phase one gathers postings from every shard so corpus-wide term
	// statistics exist before any shard is ranked.
	type shardGather struct {
		matches   ranker.TermPostings
		termStats map[string]int
	}
	gathered := make([]shardGather, len(snaps))
	var wg sync.WaitGroup
	for i, snap := range snaps {
		wg.Add(1)
		go func(i int, snap *index.Snapshot) {
			defer wg.Done()
			matches, termStats := gatherPostings(snap, q.Terms, fields)
			gathered[i] = shardGather{matches: matches, termStats: termStats}
		}(i, snap)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// A document lives on exactly one shard, so summing per-shard distinct
	// document counts gives the corpus-wide document frequency per term.
	docFreq := make(map[string]int64)
	for _, g := range gathered {
		for term, pl := range g.matches {
			docFreq[term] += int64(distinctDocs(pl))
		}
	}
	stats := globalStats(snaps)
	stats.DocFreq = func(term string) int64 { return docFreq[term] }

	// Phase two ranks each shard under the shared stats and merges.
	ranked := make([][]ranker.ScoredDoc, len(gathered))
	for i, g := range gathered {
		wg.Add(1)
		go func(i int, g shardGather) {
			defer wg.Done()
			ranked[i] = e.ranker.Rank(g.matches, stats, limit)
		}(i, g)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	termStats := make(map[string]int)
	for _, g := range gathered {
		result.TotalHits += countDocs(g.matches)
		for term, n := range g.termStats {
			termStats[term] += n
		}
	}
	result.Results = merger.Merge(ranked, limit)
	result.TermStats = termStats
	result.TookMs = time.Since(start).Milliseconds()

	e.logger.Debug("sharded query executed",
		"query", q.Raw,
		"shards", len(snaps),
		"hits", result.TotalHits,
		"took_ms", result.TookMs,
	)
	return result, nil
}

// Suggest returns dictionary completions for a prefix, merged across all
// shards. An empty corpus yields no suggestions rather than an error.
func (e *ShardedExecutor) Suggest(ctx context.Context, prefix string, limit int) ([]index.Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	snaps := e.router.Snapshots()
	perShard := make([][]index.Suggestion, len(snaps))
	for i, snap := range snaps {
		perShard[i] = snap.SuggestTerms(prefix, limit)
	}
	return merger.MergeSuggestions(perShard, limit), nil
}

// globalStats sums document and token counts across shard snapshots. A
// document lives on exactly one shard, so the first shard reporting a
// non-zero length owns it.
func globalStats(snaps []*index.Snapshot) ranker.CorpusStats {
	var docs int
	var tokens float64
	for _, snap := range snaps {
		docs += snap.DocCount()
		tokens += snap.AvgDocLength() * float64(snap.DocCount())
	}
	avg := 0.0
	if docs > 0 {
		avg = tokens / float64(docs)
	}
	lookup := func(docID string) int {
		for _, snap := range snaps {
			if n := snap.DocLength(docID); n > 0 {
				return n
			}
		}
		return 0
	}
	return ranker.CorpusStats{
		TotalDocs:    int64(docs),
		AvgDocLength: avg,
		DocLength:    lookup,
	}
}
