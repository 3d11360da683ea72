// Package merger combines per-shard ranked results into one global top-K
// list. Shards hold disjoint document sets, so merging never deduplicates;
// it only keeps the best K under the global ordering (score descending,
// document id ascending).
package merger

import (
	"container/heap"

	"github.com/openfts/openfts/internal/indexer/index"
	"github.com/openfts/openfts/internal/searcher/ranker"
)

// Merge returns the top limit documents across all shard result lists. A
// non-positive limit keeps everything.
func Merge(shardResults [][]ranker.ScoredDoc, limit int) []ranker.ScoredDoc {
	total := 0
	for _, results := range shardResults {
		total += len(results)
	}
	if limit <= 0 || limit > total {
		limit = total
	}
	if limit == 0 {
		return []ranker.ScoredDoc{}
	}

	// Min-heap of the best K seen so far; the root is the weakest keeper.
	h := make(scoredDocHeap, 0, limit+1)
	for _, results := range shardResults {
		for _, doc := range results {
			heap.Push(&h, doc)
			if h.Len() > limit {
				heap.Pop(&h)
			}
		}
	}

	merged := make([]ranker.ScoredDoc, h.Len())
	for i := len(merged) - 1; i >= 0; i-- {
		merged[i] = heap.Pop(&h).(ranker.ScoredDoc)
	}
	return merged
}

// MergeSuggestions combines per-shard term suggestions, summing document
// frequencies for terms present on several shards, ordered by document
// frequency descending then term ascending.
func MergeSuggestions(shardSuggestions [][]index.Suggestion, limit int) []index.Suggestion {
	freq := make(map[string]int)
	for _, suggestions := range shardSuggestions {
		for _, s := range suggestions {
			freq[s.Term] += s.DocFreq
		}
	}
	merged := make([]index.Suggestion, 0, len(freq))
	for term, df := range freq {
		merged = append(merged, index.Suggestion{Term: term, DocFreq: df})
	}
	sortSuggestions(merged)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func sortSuggestions(s []index.Suggestion) {
	// Small result sets; insertion sort keeps this allocation-free.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && suggestionLess(s[j], s[j-1]); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func suggestionLess(a, b index.Suggestion) bool {
	if a.DocFreq != b.DocFreq {
		return a.DocFreq > b.DocFreq
	}
	return a.Term < b.Term
}

type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
