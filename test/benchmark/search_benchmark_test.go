package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/openfts/openfts/internal/indexer/index"
	"github.com/openfts/openfts/internal/indexer/shard"
	"github.com/openfts/openfts/internal/searcher/executor"
	"github.com/openfts/openfts/internal/searcher/parser"
	"github.com/openfts/openfts/internal/searcher/ranker"
	"github.com/openfts/openfts/pkg/config"
)

func searchConfig() config.SearchConfig {
	return config.SearchConfig{
		Fields: []config.FieldWeight{
			{Name: "title", Weight: 2.0},
			{Name: "body", Weight: 1.0},
		},
		PrefixDefault: true,
		Scorer:        "occurrence",
		DefaultLimit:  10,
		MaxResults:    100,
	}
}

// BenchmarkQueryParse measures query parsing latency for queries of varying
// length and duplication.
func BenchmarkQueryParse(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"single", "database"},
		{"short", "distributed systems"},
		{"repeated", "search search search engine engine"},
		{"long", "distributed search analytics platform indexing query processing ranking caching sharding"},
	}

	p := parser.New(newTokenizer(b))
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				parsed := p.Parse(q.query, true)
				_ = parsed
			}
		})
	}
}

// BenchmarkRank measures scoring and sorting for different posting-list
// sizes under both scoring formulas.
func BenchmarkRank(b *testing.B) {
	for _, scorer := range []string{ranker.ScorerOccurrence, ranker.ScorerBM25} {
		for _, numDocs := range []int{100, 1000, 10000} {
			b.Run(fmt.Sprintf("%s_docs_%d", scorer, numDocs), func(b *testing.B) {
				pl := make(index.PostingList, numDocs)
				for i := 0; i < numDocs; i++ {
					pl[i] = index.Posting{
						DocID:     fmt.Sprintf("doc-%d", i),
						Field:     "body",
						Frequency: (i % 10) + 1,
						Positions: []int{0, 5, 10},
					}
				}
				matches := ranker.TermPostings{"search": pl}
				stats := ranker.CorpusStats{
					TotalDocs:    int64(numDocs * 2),
					AvgDocLength: 150.0,
					DocLength:    func(docID string) int { return 100 + len(docID)*10 },
				}
				r := ranker.New(searchConfig().FieldWeights(), scorer)

				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					ranked := r.Rank(matches, stats, 10)
					_ = ranked
				}
			})
		}
	}
}

// BenchmarkRankMultiTerm measures ranking with an increasing number of
// query terms sharing documents.
func BenchmarkRankMultiTerm(b *testing.B) {
	for _, tc := range []int{1, 3, 5, 10} {
		b.Run(fmt.Sprintf("terms_%d", tc), func(b *testing.B) {
			matches := make(ranker.TermPostings, tc)
			for t := 0; t < tc; t++ {
				pl := make(index.PostingList, 500)
				for i := 0; i < 500; i++ {
					pl[i] = index.Posting{
						DocID:     fmt.Sprintf("doc-%d", i),
						Field:     "body",
						Frequency: (i % 5) + 1,
						Positions: []int{t * 10},
					}
				}
				matches[fmt.Sprintf("term%d", t)] = pl
			}
			stats := ranker.CorpusStats{
				TotalDocs:    5000,
				AvgDocLength: 200.0,
				DocLength:    func(string) int { return 180 },
			}
			r := ranker.New(searchConfig().FieldWeights(), ranker.ScorerBM25)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				ranked := r.Rank(matches, stats, 10)
				_ = ranked
			}
		})
	}
}

func seedRouter(b *testing.B, numShards int) *shard.Router {
	b.Helper()
	cfg := config.IndexerConfig{
		DataDir:        b.TempDir(),
		NumShards:      numShards,
		CheckpointKeep: 1,
	}
	router, err := shard.NewRouter(cfg, newTokenizer(b))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { router.Close() })

	terms := []string{"distributed", "search", "analytics", "platform", "indexing", "query", "engine", "ranking"}
	for i := 0; i < 8000; i++ {
		fields := map[string]string{
			"title": fmt.Sprintf("document about %s and %s", terms[i%len(terms)], terms[(i+1)%len(terms)]),
			"body": fmt.Sprintf("this document covers %s %s %s in production systems",
				terms[i%len(terms)], terms[(i+2)%len(terms)], terms[(i+3)%len(terms)]),
		}
		if _, err := router.IndexDocument(fmt.Sprintf("doc-%d", i), fields); err != nil {
			b.Fatal(err)
		}
	}
	return router
}

// BenchmarkShardedExecute measures end-to-end query execution with varying
// shard counts over an 8000-document corpus.
func BenchmarkShardedExecute(b *testing.B) {
	for _, numShards := range []int{1, 4, 8} {
		b.Run(fmt.Sprintf("shards_%d", numShards), func(b *testing.B) {
			router := seedRouter(b, numShards)
			exec := executor.NewSharded(router, searchConfig())
			q := parser.New(newTokenizer(b)).Parse("distributed search", false)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				result, err := exec.Execute(context.Background(), q, executor.Options{Limit: 10})
				if err != nil {
					b.Fatal(err)
				}
				_ = result
			}
		})
	}
}

// BenchmarkShardedExecutePrefix measures prefix-mode execution, which adds
// dictionary expansion on every shard.
func BenchmarkShardedExecutePrefix(b *testing.B) {
	router := seedRouter(b, 8)
	exec := executor.NewSharded(router, searchConfig())
	q := parser.New(newTokenizer(b)).Parse("distrib sear", true)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result, err := exec.Execute(context.Background(), q, executor.Options{Limit: 10})
		if err != nil {
			b.Fatal(err)
		}
		_ = result
	}
}

// BenchmarkShardedExecuteParallel measures concurrent search throughput
// across 8 shards.
func BenchmarkShardedExecuteParallel(b *testing.B) {
	router := seedRouter(b, 8)
	exec := executor.NewSharded(router, searchConfig())
	q := parser.New(newTokenizer(b)).Parse("distributed search", false)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			result, err := exec.Execute(context.Background(), q, executor.Options{Limit: 10})
			if err != nil {
				b.Fatal(err)
			}
			_ = result
		}
	})
}
