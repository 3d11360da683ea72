package ranker

import (
	"reflect"
	"testing"

	"github.com/openfts/openfts/internal/indexer/index"
)

func TestOccurrenceScoring(t *testing.T) {
	r := New(map[string]float64{"title": 2.0, "body": 1.0}, ScorerOccurrence)

	matches := TermPostings{
		"penne": index.PostingList{
			{DocID: "1", Field: "title", Frequency: 1},
			{DocID: "2", Field: "body", Frequency: 3},
		},
	}
	got := r.Rank(matches, CorpusStats{}, 0)
	want := []ScoredDoc{
		{DocID: "2", Score: 3}, // 3 * body weight 1.0
		{DocID: "1", Score: 2}, // 1 * title weight 2.0
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Rank = %v, want %v", got, want)
	}
}

func TestOrTermsAccumulate(t *testing.T) {
	r := New(nil, ScorerOccurrence)

	matches := TermPostings{
		"tomato": index.PostingList{{DocID: "1", Field: "body", Frequency: 1}},
		"soup":   index.PostingList{{DocID: "1", Field: "body", Frequency: 1}, {DocID: "2", Field: "body", Frequency: 1}},
	}
	got := r.Rank(matches, CorpusStats{}, 0)
	want := []ScoredDoc{
		{DocID: "1", Score: 2}, // matches both terms
		{DocID: "2", Score: 1}, // matches one
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Rank = %v, want %v", got, want)
	}
}

func TestTieBreakByDocID(t *testing.T) {
	r := New(nil, ScorerOccurrence)

	matches := TermPostings{
		"penne": index.PostingList{
			{DocID: "b", Field: "title", Frequency: 1},
			{DocID: "a", Field: "title", Frequency: 1},
			{DocID: "c", Field: "title", Frequency: 1},
		},
	}
	got := r.Rank(matches, CorpusStats{}, 0)
	want := []ScoredDoc{
		{DocID: "a", Score: 1},
		{DocID: "b", Score: 1},
		{DocID: "c", Score: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tie break order = %v, want %v", got, want)
	}
}

func TestLimit(t *testing.T) {
	r := New(nil, ScorerOccurrence)

	matches := TermPostings{
		"penne": index.PostingList{
			{DocID: "1", Field: "title", Frequency: 3},
			{DocID: "2", Field: "title", Frequency: 2},
			{DocID: "3", Field: "title", Frequency: 1},
		},
	}
	got := r.Rank(matches, CorpusStats{}, 2)
	if len(got) != 2 || got[0].DocID != "1" || got[1].DocID != "2" {
		t.Errorf("Rank with limit 2 = %v", got)
	}
}

func TestBM25PrefersRareTerms(t *testing.T) {
	r := New(nil, ScorerBM25)

	lengths := map[string]int{"1": 10, "2": 10, "3": 10}
	stats := CorpusStats{
		TotalDocs:    100,
		AvgDocLength: 10,
		DocLength:    func(id string) int { return lengths[id] },
	}
	// "arrabiata" is rare (1 doc), "pasta" is common (3 docs).
	matches := TermPostings{
		"arrabiata": index.PostingList{{DocID: "1", Field: "body", Frequency: 1}},
		"pasta": index.PostingList{
			{DocID: "2", Field: "body", Frequency: 1},
			{DocID: "3", Field: "body", Frequency: 1},
		},
	}
	got := r.Rank(matches, stats, 0)
	if len(got) != 3 || got[0].DocID != "1" {
		t.Errorf("BM25 did not rank the rare-term doc first: %v", got)
	}
}

func TestBM25UsesCorpusDocFreq(t *testing.T) {
	r := New(nil, ScorerBM25)

	stats := CorpusStats{
		TotalDocs:    100,
		AvgDocLength: 10,
		DocLength:    func(string) int { return 10 },
	}
	// One matching document visible locally.
	matches := TermPostings{
		"tomato": index.PostingList{{DocID: "1", Field: "body", Frequency: 1}},
	}

	local := r.Rank(matches, stats, 0)

	// The same postings scored with the term known to appear in 50 of the
	// 100 documents corpus-wide. IDF must shrink accordingly.
	stats.DocFreq = func(term string) int64 {
		if term != "tomato" {
			t.Errorf("DocFreq queried for %q", term)
		}
		return 50
	}
	global := r.Rank(matches, stats, 0)

	if len(local) != 1 || len(global) != 1 {
		t.Fatalf("Rank = %v / %v, want one result each", local, global)
	}
	if global[0].Score >= local[0].Score {
		t.Errorf("corpus df 50 scored %v, want below local df 1 score %v",
			global[0].Score, local[0].Score)
	}
}

func TestBM25DeterministicAcrossRuns(t *testing.T) {
	r := New(map[string]float64{"title": 2.0}, ScorerBM25)

	stats := CorpusStats{
		TotalDocs:    5,
		AvgDocLength: 8,
		DocLength:    func(string) int { return 8 },
	}
	matches := TermPostings{
		"penne":  index.PostingList{{DocID: "1", Field: "title", Frequency: 2}, {DocID: "2", Field: "title", Frequency: 1}},
		"tomato": index.PostingList{{DocID: "2", Field: "title", Frequency: 2}},
	}
	first := r.Rank(matches, stats, 0)
	for i := 0; i < 10; i++ {
		if got := r.Rank(matches, stats, 0); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d diverged: %v vs %v", i, got, first)
		}
	}
}

func TestUnknownScorerFallsBackToOccurrence(t *testing.T) {
	matches := TermPostings{
		"penne": index.PostingList{{DocID: "1", Field: "title", Frequency: 2}},
	}
	got := New(nil, "mystery").Rank(matches, CorpusStats{}, 0)
	want := New(nil, ScorerOccurrence).Rank(matches, CorpusStats{}, 0)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("fallback scoring = %v, want %v", got, want)
	}
}
