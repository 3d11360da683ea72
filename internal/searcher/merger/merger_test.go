package merger

import (
	"reflect"
	"testing"

	"github.com/openfts/openfts/internal/indexer/index"
	"github.com/openfts/openfts/internal/searcher/ranker"
)

func TestMergeTopK(t *testing.T) {
	shards := [][]ranker.ScoredDoc{
		{{DocID: "1", Score: 5}, {DocID: "4", Score: 1}},
		{{DocID: "2", Score: 3}},
		{{DocID: "3", Score: 4}, {DocID: "5", Score: 2}},
	}
	got := Merge(shards, 3)
	want := []ranker.ScoredDoc{
		{DocID: "1", Score: 5},
		{DocID: "3", Score: 4},
		{DocID: "2", Score: 3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge = %v, want %v", got, want)
	}
}

func TestMergeTieBreakByDocID(t *testing.T) {
	shards := [][]ranker.ScoredDoc{
		{{DocID: "c", Score: 1}},
		{{DocID: "a", Score: 1}},
		{{DocID: "b", Score: 1}},
	}
	got := Merge(shards, 2)
	want := []ranker.ScoredDoc{
		{DocID: "a", Score: 1},
		{DocID: "b", Score: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge = %v, want %v", got, want)
	}
}

func TestMergeNoLimitKeepsAll(t *testing.T) {
	shards := [][]ranker.ScoredDoc{
		{{DocID: "1", Score: 2}},
		{{DocID: "2", Score: 1}},
	}
	got := Merge(shards, 0)
	if len(got) != 2 {
		t.Errorf("Merge with limit 0 kept %d, want 2", len(got))
	}
}

func TestMergeEmpty(t *testing.T) {
	if got := Merge(nil, 10); len(got) != 0 {
		t.Errorf("Merge(nil) = %v, want empty", got)
	}
	if got := Merge([][]ranker.ScoredDoc{{}, {}}, 10); len(got) != 0 {
		t.Errorf("Merge(empty shards) = %v, want empty", got)
	}
}

func TestMergeSuggestionsSumsAcrossShards(t *testing.T) {
	shards := [][]index.Suggestion{
		{{Term: "penne", DocFreq: 2}, {Term: "pennette", DocFreq: 1}},
		{{Term: "penne", DocFreq: 3}},
	}
	got := MergeSuggestions(shards, 10)
	want := []index.Suggestion{
		{Term: "penne", DocFreq: 5},
		{Term: "pennette", DocFreq: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeSuggestions = %v, want %v", got, want)
	}
}

func TestMergeSuggestionsLimitAndTieBreak(t *testing.T) {
	shards := [][]index.Suggestion{
		{{Term: "beta", DocFreq: 1}, {Term: "alpha", DocFreq: 1}, {Term: "gamma", DocFreq: 2}},
	}
	got := MergeSuggestions(shards, 2)
	want := []index.Suggestion{
		{Term: "gamma", DocFreq: 2},
		{Term: "alpha", DocFreq: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeSuggestions = %v, want %v", got, want)
	}
}
