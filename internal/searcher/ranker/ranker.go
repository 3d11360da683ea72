// Package ranker scores documents against the gathered postings of a
// parsed query. Matching is OR-of-terms: a document qualifies by matching
// any term, and its score accumulates over all terms it matches. Ordering
// is total and deterministic: score descending, then document id ascending.
package ranker

import (
	"math"
	"sort"

	"github.com/openfts/openfts/internal/indexer/index"
)

// Scorer selects the scoring formula.
const (
	ScorerOccurrence = "occurrence"
	ScorerBM25       = "bm25"
)

// BM25 shape parameters.
const (
	k1 = 1.2
	b  = 0.75
)

// ScoredDoc is one ranked result.
type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// TermPostings holds, per query term, the postings gathered from one index
// snapshot. Prefix terms arrive pre-merged across their matching lexemes.
type TermPostings map[string]index.PostingList

// CorpusStats carries corpus-level quantities for scoring. In a sharded
// deployment these cover the whole corpus, not one shard, so identical
// documents score identically regardless of shard placement.
type CorpusStats struct {
	TotalDocs    int64
	AvgDocLength float64
	DocLength    func(docID string) int
	// DocFreq returns the corpus-wide count of documents matching a query
	// term. Nil means the postings handed to Rank already span the whole
	// corpus, so the document frequency can be derived from them directly.
	DocFreq func(term string) int64
}

// Ranker applies per-field weights and one of the scoring formulas.
type Ranker struct {
	weights map[string]float64
	scorer  string
}

// New creates a Ranker. Fields absent from weights contribute with weight
// 1. An unknown scorer name falls back to occurrence scoring.
func New(weights map[string]float64, scorer string) *Ranker {
	return &Ranker{weights: weights, scorer: scorer}
}

// Rank scores every document that appears in matches and returns the top
// results in deterministic order. Scores are rounded to four decimals so
// tie-breaking is stable across float re-orderings.
func (r *Ranker) Rank(matches TermPostings, stats CorpusStats, limit int) []ScoredDoc {
	scores := make(map[string]float64)
	for term, postings := range matches {
		switch r.scorer {
		case ScorerBM25:
			r.scoreBM25(term, postings, stats, scores)
		default:
			r.scoreOccurrence(postings, scores)
		}
	}

	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{
			DocID: docID,
			Score: math.Round(score*10000) / 10000,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// scoreOccurrence adds frequency times field weight per posting.
func (r *Ranker) scoreOccurrence(postings index.PostingList, scores map[string]float64) {
	for _, p := range postings {
		scores[p.DocID] += float64(p.Frequency) * r.weight(p.Field)
	}
}

// scoreBM25 adds a BM25 contribution per term. The field-weighted term
// frequency of a document is summed across its field postings first, then
// fed through the usual saturation curve. IDF uses the corpus-wide document
// frequency when stats carries one; a shard-local count would make scores
// depend on shard placement.
func (r *Ranker) scoreBM25(term string, postings index.PostingList, stats CorpusStats, scores map[string]float64) {
	tf := make(map[string]float64)
	for _, p := range postings {
		tf[p.DocID] += float64(p.Frequency) * r.weight(p.Field)
	}
	docFreq := int64(len(tf))
	if stats.DocFreq != nil {
		docFreq = stats.DocFreq(term)
	}
	idf := computeIDF(stats.TotalDocs, docFreq)
	for docID, freq := range tf {
		var length int
		if stats.DocLength != nil {
			length = stats.DocLength(docID)
		}
		scores[docID] += idf * computeTFNorm(freq, float64(length), stats.AvgDocLength)
	}
}

func (r *Ranker) weight(field string) float64 {
	if w, ok := r.weights[field]; ok {
		return w
	}
	return 1
}

func computeIDF(totalDocs, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq, docLength, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
