// Package index implements a field-aware in-memory inverted index with
// copy-on-write snapshots. Writers serialise on a mutex, build the next
// immutable Snapshot, and publish it with a single atomic store; readers
// take the current snapshot once per search and never lock. A reader can
// therefore never observe a partially updated document.
package index

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/openfts/openfts/internal/indexer/tokenizer"
	apperrors "github.com/openfts/openfts/pkg/errors"
)

// MemoryIndex is the mutable handle over the snapshot chain. The zero value
// is not usable; construct with NewMemoryIndex.
type MemoryIndex struct {
	tok  *tokenizer.Tokenizer
	mu   sync.Mutex // serialises writers
	snap atomic.Pointer[Snapshot]

	// docTerms tracks, per document, the sorted set of terms it currently
	// contributes postings to. Writer-side only, guarded by mu.
	docTerms map[string][]string
}

// NewMemoryIndex creates an empty index sharing the given tokenizer with
// the query side.
func NewMemoryIndex(tok *tokenizer.Tokenizer) *MemoryIndex {
	m := &MemoryIndex{
		tok:      tok,
		docTerms: make(map[string][]string),
	}
	m.snap.Store(emptySnapshot())
	return m
}

// Snapshot returns the current immutable view. Callers hold it for the
// duration of one search.
func (m *MemoryIndex) Snapshot() *Snapshot {
	return m.snap.Load()
}

// IndexDocument replaces all postings for docID with postings derived from
// fields. It fails with ErrInvalidDocument when docID is empty or no field
// contains text; the index is left unchanged in that case. Fields whose
// text tokenizes to zero lexemes are valid and simply contribute nothing.
func (m *MemoryIndex) IndexDocument(docID string, fields map[string]string) error {
	if docID == "" {
		return fmt.Errorf("%w: missing document id", apperrors.ErrInvalidDocument)
	}
	hasText := false
	for _, text := range fields {
		if strings.TrimSpace(text) != "" {
			hasText = true
			break
		}
	}
	if !hasText {
		return fmt.Errorf("%w: document %q has no text fields", apperrors.ErrInvalidDocument, docID)
	}

	// Tokenize outside the lock; only snapshot assembly is serialised.
	newPostings := make(map[string]PostingList)
	entry := DocEntry{DocID: docID, Fields: make(map[string]int, len(fields))}
	for field, text := range fields {
		tokens := m.tok.Tokenize(text)
		entry.Fields[field] = len(tokens)
		entry.Length += len(tokens)
		perTerm := make(map[string]*Posting)
		for _, t := range tokens {
			p, ok := perTerm[t.Term]
			if !ok {
				p = &Posting{DocID: docID, Field: field}
				perTerm[t.Term] = p
			}
			p.Frequency++
			p.Positions = append(p.Positions, t.Position)
		}
		for term, p := range perTerm {
			newPostings[term] = append(newPostings[term], *p)
		}
	}
	newTerms := make([]string, 0, len(newPostings))
	for term := range newPostings {
		newTerms = append(newTerms, term)
	}
	sort.Strings(newTerms)

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.snap.Load()
	next := m.cloneForWrite(cur)

	oldTerms := m.docTerms[docID]
	if old, ok := cur.docs[docID]; ok {
		next.totalTokens -= int64(old.Length)
	}
	next.totalTokens += int64(entry.Length)
	next.docs[docID] = entry
	next.lifetime++

	// Rebuild the posting list of every term the document touches, old or
	// new, dropping the document's previous postings first.
	for _, term := range union(oldTerms, newTerms) {
		pl := withoutDoc(cur.terms[term], docID)
		if add, ok := newPostings[term]; ok {
			pl = append(pl, add...)
			sortPostings(pl)
		}
		if len(pl) == 0 {
			delete(next.terms, term)
		} else {
			next.terms[term] = pl
		}
	}
	next.order = rebuildOrder(cur.order, oldTerms, newTerms, next.terms)

	m.docTerms[docID] = newTerms
	m.snap.Store(next)
	return nil
}

// RemoveDocument deletes all postings for docID. Removing an id that was
// never indexed is a successful no-op.
func (m *MemoryIndex) RemoveDocument(docID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldTerms, ok := m.docTerms[docID]
	if !ok {
		return
	}
	cur := m.snap.Load()
	next := m.cloneForWrite(cur)

	next.totalTokens -= int64(cur.docs[docID].Length)
	delete(next.docs, docID)

	for _, term := range oldTerms {
		pl := withoutDoc(cur.terms[term], docID)
		if len(pl) == 0 {
			delete(next.terms, term)
		} else {
			next.terms[term] = pl
		}
	}
	next.order = rebuildOrder(cur.order, oldTerms, nil, next.terms)

	delete(m.docTerms, docID)
	m.snap.Store(next)
}

// Restore replaces the entire index content from checkpointed state.
func (m *MemoryIndex) Restore(st *State) {
	snap := FromState(st)

	m.mu.Lock()
	defer m.mu.Unlock()

	docTerms := make(map[string][]string, len(snap.docs))
	for term, pl := range snap.terms {
		for _, p := range pl {
			docTerms[p.DocID] = append(docTerms[p.DocID], term)
		}
	}
	for id, terms := range docTerms {
		sort.Strings(terms)
		docTerms[id] = dedupeSorted(terms)
	}
	m.docTerms = docTerms
	m.snap.Store(snap)
}

// cloneForWrite copies the maps of cur so the new snapshot can diverge.
// Posting lists are shared until a term is touched.
func (m *MemoryIndex) cloneForWrite(cur *Snapshot) *Snapshot {
	next := &Snapshot{
		terms:       make(map[string]PostingList, len(cur.terms)+4),
		order:       cur.order,
		docs:        make(map[string]DocEntry, len(cur.docs)+1),
		totalTokens: cur.totalTokens,
		lifetime:    cur.lifetime,
		version:     cur.version + 1,
	}
	for term, pl := range cur.terms {
		next.terms[term] = pl
	}
	for id, d := range cur.docs {
		next.docs[id] = d
	}
	return next
}

// withoutDoc returns a copy of pl with every posting for docID removed.
func withoutDoc(pl PostingList, docID string) PostingList {
	out := make(PostingList, 0, len(pl))
	for _, p := range pl {
		if p.DocID != docID {
			out = append(out, p)
		}
	}
	return out
}

// rebuildOrder updates the sorted term dictionary after a write. The common
// case of no dictionary change reuses the previous slice.
func rebuildOrder(order, oldTerms, newTerms []string, terms map[string]PostingList) []string {
	changed := false
	for _, t := range newTerms {
		if !containsSorted(order, t) {
			changed = true
			break
		}
	}
	if !changed {
		for _, t := range oldTerms {
			if _, ok := terms[t]; !ok {
				changed = true
				break
			}
		}
	}
	if !changed {
		return order
	}
	out := make([]string, 0, len(terms))
	for t := range terms {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func containsSorted(sorted []string, s string) bool {
	i := sort.SearchStrings(sorted, s)
	return i < len(sorted) && sorted[i] == s
}

func union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	sort.Strings(out)
	return dedupeSorted(out)
}

func dedupeSorted(s []string) []string {
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}
