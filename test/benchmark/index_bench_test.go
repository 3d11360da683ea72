// Package benchmark contains Go benchmarks for the memory index, shard
// router, and search pipeline, measuring throughput and allocation
// behaviour.
package benchmark

import (
	"fmt"
	"testing"

	"github.com/openfts/openfts/internal/indexer/index"
	"github.com/openfts/openfts/internal/indexer/shard"
	"github.com/openfts/openfts/internal/indexer/tokenizer"
	"github.com/openfts/openfts/pkg/config"
)

func newTokenizer(b *testing.B) *tokenizer.Tokenizer {
	b.Helper()
	tok, err := tokenizer.New(tokenizer.Config{})
	if err != nil {
		b.Fatal(err)
	}
	return tok
}

func benchFields(i int) map[string]string {
	return map[string]string{
		"title": fmt.Sprintf("benchmark document %d", i),
		"body":  "this is a benchmark document with several terms for measuring the indexing throughput of the memory index",
	}
}

// BenchmarkMemoryIndexAdd measures per-document insert throughput into the
// in-memory inverted index.
func BenchmarkMemoryIndexAdd(b *testing.B) {
	mi := index.NewMemoryIndex(newTokenizer(b))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := mi.IndexDocument(fmt.Sprintf("doc-%d", i), benchFields(i)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkMemoryIndexReindex measures the cost of replacing the postings
// of an existing document, the hot path under a stream of updates.
func BenchmarkMemoryIndexReindex(b *testing.B) {
	mi := index.NewMemoryIndex(newTokenizer(b))
	for i := 0; i < 1000; i++ {
		mi.IndexDocument(fmt.Sprintf("doc-%d", i), benchFields(i))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		docID := fmt.Sprintf("doc-%d", i%1000)
		if err := mi.IndexDocument(docID, benchFields(i)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSnapshotLookup measures single-term lookup latency over 10 000
// documents.
func BenchmarkSnapshotLookup(b *testing.B) {
	mi := index.NewMemoryIndex(newTokenizer(b))
	for i := 0; i < 10000; i++ {
		mi.IndexDocument(fmt.Sprintf("doc-%d", i), map[string]string{
			"title": "distributed search",
			"body":  "search engine with distributed indexing and query processing",
		})
	}
	fields := []string{"title", "body"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pl := mi.Snapshot().Lookup("search", fields)
		_ = pl
	}
}

// BenchmarkSnapshotPrefixLookup measures prefix expansion over the term
// dictionary, including the posting merge across matched lexemes.
func BenchmarkSnapshotPrefixLookup(b *testing.B) {
	mi := index.NewMemoryIndex(newTokenizer(b))
	for i := 0; i < 10000; i++ {
		mi.IndexDocument(fmt.Sprintf("doc-%d", i), map[string]string{
			"title": fmt.Sprintf("searching searchable topic%d", i%50),
			"body":  "search engine with distributed indexing and query processing",
		})
	}
	fields := []string{"title", "body"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pl := mi.Snapshot().PrefixLookup("sear", fields)
		_ = pl
	}
}

// BenchmarkSnapshotLookupParallel measures concurrent read throughput.
// Readers never lock, so this should scale with cores.
func BenchmarkSnapshotLookupParallel(b *testing.B) {
	mi := index.NewMemoryIndex(newTokenizer(b))
	for i := 0; i < 10000; i++ {
		mi.IndexDocument(fmt.Sprintf("doc-%d", i), map[string]string{
			"title": "distributed search",
			"body":  "search engine with distributed indexing and query processing",
		})
	}
	fields := []string{"title", "body"}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			pl := mi.Snapshot().Lookup("search", fields)
			_ = pl
		}
	})
}

// BenchmarkRouterIndex measures full routed indexing throughput at various
// shard counts, checkpointing disabled.
func BenchmarkRouterIndex(b *testing.B) {
	for _, numShards := range []int{1, 4, 8} {
		b.Run(fmt.Sprintf("shards_%d", numShards), func(b *testing.B) {
			cfg := config.IndexerConfig{
				DataDir:        b.TempDir(),
				NumShards:      numShards,
				CheckpointKeep: 1,
			}
			router, err := shard.NewRouter(cfg, newTokenizer(b))
			if err != nil {
				b.Fatal(err)
			}
			defer router.Close()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := router.IndexDocument(fmt.Sprintf("bench-%d", i), benchFields(i)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
