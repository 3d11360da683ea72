package index

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/openfts/openfts/internal/indexer/tokenizer"
	apperrors "github.com/openfts/openfts/pkg/errors"
)

func newTestIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	tok, err := tokenizer.New(tokenizer.Config{})
	if err != nil {
		t.Fatalf("tokenizer.New: %v", err)
	}
	return NewMemoryIndex(tok)
}

func mustIndex(t *testing.T, m *MemoryIndex, id string, fields map[string]string) {
	t.Helper()
	if err := m.IndexDocument(id, fields); err != nil {
		t.Fatalf("IndexDocument(%q): %v", id, err)
	}
}

func docIDs(pl PostingList) []string {
	ids := make([]string, 0, len(pl))
	for _, p := range pl {
		ids = append(ids, p.DocID)
	}
	return ids
}

func TestIndexThenLookup(t *testing.T) {
	m := newTestIndex(t)
	mustIndex(t, m, "1", map[string]string{"title": "Penne with Arrabiata"})
	mustIndex(t, m, "2", map[string]string{"title": "Spaghetti Carbonara"})

	snap := m.Snapshot()
	if got := docIDs(snap.Lookup("penne", nil)); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("Lookup(penne) docs = %v, want [1]", got)
	}
	if got := snap.Lookup("pasta", nil); len(got) != 0 {
		t.Errorf("Lookup(pasta) = %v, want empty", got)
	}
	if got := docIDs(snap.PrefixLookup("pen", nil)); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("PrefixLookup(pen) docs = %v, want [1]", got)
	}
}

func TestEveryLexemeGetsAPosting(t *testing.T) {
	m := newTestIndex(t)
	tok, _ := tokenizer.New(tokenizer.Config{})
	text := "Roasted tomato soup with basil and garlic croutons"
	mustIndex(t, m, "42", map[string]string{"body": text})

	snap := m.Snapshot()
	for _, token := range tok.Tokenize(text) {
		pl := snap.Lookup(token.Term, nil)
		found := false
		for _, p := range pl {
			if p.DocID == "42" && p.Field == "body" {
				found = true
			}
		}
		if !found {
			t.Errorf("lexeme %q has no posting for doc 42", token.Term)
		}
	}
}

func TestIndexThenRemoveLeavesNoPostings(t *testing.T) {
	m := newTestIndex(t)
	mustIndex(t, m, "1", map[string]string{"title": "Penne with Arrabiata", "body": "spicy tomato sauce"})
	m.RemoveDocument("1")

	snap := m.Snapshot()
	for _, term := range []string{"penne", "arrabiata", "spicy", "tomato", "sauce"} {
		if pl := snap.Lookup(term, nil); len(pl) != 0 {
			t.Errorf("Lookup(%q) after removal = %v, want empty", term, pl)
		}
	}
	if snap.DocCount() != 0 {
		t.Errorf("DocCount = %d, want 0", snap.DocCount())
	}
	if snap.LifetimeIndexed() != 1 {
		t.Errorf("LifetimeIndexed = %d, want 1", snap.LifetimeIndexed())
	}
}

func TestIndexingIsIdempotent(t *testing.T) {
	m := newTestIndex(t)
	fields := map[string]string{"title": "Penne with Arrabiata", "body": "penne in a spicy sauce"}
	mustIndex(t, m, "1", fields)
	once := m.Snapshot().State()

	mustIndex(t, m, "1", fields)
	twice := m.Snapshot().State()

	if !reflect.DeepEqual(once.Terms, twice.Terms) {
		t.Errorf("postings differ after reindex:\nonce:  %+v\ntwice: %+v", once.Terms, twice.Terms)
	}
	if !reflect.DeepEqual(once.Docs, twice.Docs) {
		t.Errorf("doc entries differ after reindex")
	}
	if m.Snapshot().DocCount() != 1 {
		t.Errorf("DocCount = %d, want 1", m.Snapshot().DocCount())
	}
}

func TestReindexDropsStalePostings(t *testing.T) {
	m := newTestIndex(t)
	mustIndex(t, m, "1", map[string]string{"title": "Penne with Arrabiata"})
	mustIndex(t, m, "1", map[string]string{"title": "Spaghetti Carbonara"})

	snap := m.Snapshot()
	if pl := snap.Lookup("penne", nil); len(pl) != 0 {
		t.Errorf("stale posting survived update: %v", pl)
	}
	if got := docIDs(snap.Lookup("spaghetti", nil)); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("Lookup(spaghetti) = %v, want [1]", got)
	}
}

func TestInvalidDocumentLeavesIndexUnchanged(t *testing.T) {
	m := newTestIndex(t)
	mustIndex(t, m, "1", map[string]string{"title": "Penne with Arrabiata"})
	mustIndex(t, m, "2", map[string]string{"title": "Spaghetti Carbonara"})
	before := m.Snapshot()

	if err := m.IndexDocument("3", map[string]string{}); !errors.Is(err, apperrors.ErrInvalidDocument) {
		t.Fatalf("empty fields: err = %v, want ErrInvalidDocument", err)
	}
	if err := m.IndexDocument("3", map[string]string{"title": "   "}); !errors.Is(err, apperrors.ErrInvalidDocument) {
		t.Fatalf("whitespace-only fields: err = %v, want ErrInvalidDocument", err)
	}
	if err := m.IndexDocument("", map[string]string{"title": "orphan"}); !errors.Is(err, apperrors.ErrInvalidDocument) {
		t.Fatalf("empty id: err = %v, want ErrInvalidDocument", err)
	}

	after := m.Snapshot()
	if before != after {
		t.Error("rejected document published a new snapshot")
	}
	if after.DocCount() != 2 {
		t.Errorf("DocCount = %d, want 2", after.DocCount())
	}
}

func TestRemoveNeverIndexedIsNoOp(t *testing.T) {
	m := newTestIndex(t)
	mustIndex(t, m, "1", map[string]string{"title": "Penne with Arrabiata"})
	before := m.Snapshot()

	m.RemoveDocument("99")

	if m.Snapshot() != before {
		t.Error("no-op removal published a new snapshot")
	}
}

func TestFieldFilter(t *testing.T) {
	m := newTestIndex(t)
	mustIndex(t, m, "1", map[string]string{
		"title": "tomato soup",
		"body":  "a rich tomato base simmered slowly",
	})

	snap := m.Snapshot()
	if pl := snap.Lookup("tomato", []string{"title"}); len(pl) != 1 || pl[0].Field != "title" {
		t.Errorf("Lookup(tomato, title) = %v, want single title posting", pl)
	}
	if pl := snap.Lookup("simmered", []string{"title"}); len(pl) != 0 {
		t.Errorf("Lookup(simmered, title) = %v, want empty", pl)
	}
	if pl := snap.Lookup("tomato", []string{"missing"}); len(pl) != 0 {
		t.Errorf("unknown field filter = %v, want empty", pl)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	m := newTestIndex(t)
	mustIndex(t, m, "1", map[string]string{"title": "Penne with Arrabiata"})

	held := m.Snapshot()
	mustIndex(t, m, "2", map[string]string{"title": "Penne alla Vodka"})

	if got := docIDs(held.Lookup("penne", nil)); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("held snapshot sees concurrent update: %v", got)
	}
	if got := docIDs(m.Snapshot().Lookup("penne", nil)); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("fresh snapshot = %v, want [1 2]", got)
	}
	if held.Version() >= m.Snapshot().Version() {
		t.Errorf("version did not advance: %d -> %d", held.Version(), m.Snapshot().Version())
	}
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	m := newTestIndex(t)
	mustIndex(t, m, "seed", map[string]string{"title": "penne arrabiata pasta"})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := m.Snapshot()
				// Within one snapshot a document is all-or-nothing: both
				// terms of the two-term docs must agree.
				penne := docIDs(snap.Lookup("penne", nil))
				pasta := docIDs(snap.Lookup("pasta", nil))
				if !reflect.DeepEqual(penne, pasta) {
					t.Errorf("torn read: penne=%v pasta=%v", penne, pasta)
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("doc-%d", i%10)
		if i%3 == 0 {
			m.RemoveDocument(id)
		} else {
			mustIndex(t, m, id, map[string]string{"title": "penne pasta"})
		}
	}
	close(stop)
	wg.Wait()
}

func TestStateRoundTrip(t *testing.T) {
	m := newTestIndex(t)
	mustIndex(t, m, "1", map[string]string{"title": "Penne with Arrabiata", "body": "spicy tomato sauce"})
	mustIndex(t, m, "2", map[string]string{"title": "Spaghetti Carbonara"})
	m.RemoveDocument("2")

	st := m.Snapshot().State()
	restored := newTestIndex(t)
	restored.Restore(st)

	snap := restored.Snapshot()
	if !reflect.DeepEqual(snap.State(), st) {
		t.Error("state round trip diverged")
	}
	if snap.LifetimeIndexed() != 2 {
		t.Errorf("LifetimeIndexed = %d, want 2", snap.LifetimeIndexed())
	}

	// A restored index must keep honouring updates and removals.
	restored.RemoveDocument("1")
	if got := restored.Snapshot().Lookup("penne", nil); len(got) != 0 {
		t.Errorf("postings survived removal after restore: %v", got)
	}
}

func TestSuggestTerms(t *testing.T) {
	m := newTestIndex(t)
	mustIndex(t, m, "1", map[string]string{"title": "penne arrabiata"})
	mustIndex(t, m, "2", map[string]string{"title": "penne alla vodka"})
	mustIndex(t, m, "3", map[string]string{"title": "pennette al forno"})

	got := m.Snapshot().SuggestTerms("pen", 10)
	want := []Suggestion{
		{Term: "penne", DocFreq: 2},
		{Term: "pennette", DocFreq: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SuggestTerms(pen) = %v, want %v", got, want)
	}
}
