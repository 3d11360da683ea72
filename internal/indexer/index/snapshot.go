package index

import (
	"sort"
	"strings"
)

// Snapshot is an immutable point-in-time view of the index. One snapshot
// answers one whole search: readers load it once and never lock, and a
// writer publishing a new snapshot cannot affect reads already in flight.
type Snapshot struct {
	terms       map[string]PostingList
	order       []string // sorted term dictionary
	docs        map[string]DocEntry
	totalTokens int64
	lifetime    uint64
	version     uint64
}

// Suggestion pairs a dictionary term with the number of documents it
// appears in.
type Suggestion struct {
	Term    string `json:"term"`
	DocFreq int    `json:"doc_freq"`
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		terms: make(map[string]PostingList),
		docs:  make(map[string]DocEntry),
	}
}

// Lookup returns the postings for an exact lexeme, optionally restricted to
// the named fields. A nil or empty filter targets every field. An unknown
// lexeme or field yields nil, never an error.
func (s *Snapshot) Lookup(lexeme string, fields []string) PostingList {
	return filterFields(s.terms[lexeme], fields)
}

// PrefixLookup returns the merged postings of every dictionary lexeme that
// shares prefix as a leading substring, with the same optional field filter
// as Lookup. Postings of distinct lexemes landing on the same (doc, field)
// are merged by summing frequencies.
func (s *Snapshot) PrefixLookup(prefix string, fields []string) PostingList {
	if prefix == "" {
		return nil
	}
	start := sort.SearchStrings(s.order, prefix)
	var lists []PostingList
	for i := start; i < len(s.order) && strings.HasPrefix(s.order[i], prefix); i++ {
		if pl := filterFields(s.terms[s.order[i]], fields); len(pl) > 0 {
			lists = append(lists, pl)
		}
	}
	return mergePostings(lists)
}

// SuggestTerms returns up to limit dictionary terms sharing the prefix,
// ordered by descending document frequency, ties broken alphabetically.
func (s *Snapshot) SuggestTerms(prefix string, limit int) []Suggestion {
	if prefix == "" || limit <= 0 {
		return nil
	}
	start := sort.SearchStrings(s.order, prefix)
	var out []Suggestion
	for i := start; i < len(s.order) && strings.HasPrefix(s.order[i], prefix); i++ {
		term := s.order[i]
		out = append(out, Suggestion{Term: term, DocFreq: docFreq(s.terms[term])})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocFreq != out[j].DocFreq {
			return out[i].DocFreq > out[j].DocFreq
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DocCount returns the number of documents currently indexed.
func (s *Snapshot) DocCount() int {
	return len(s.docs)
}

// DocLength returns the total token count of a document, 0 if unknown.
func (s *Snapshot) DocLength(docID string) int {
	return s.docs[docID].Length
}

// AvgDocLength returns the mean token count per indexed document.
func (s *Snapshot) AvgDocLength() float64 {
	if len(s.docs) == 0 {
		return 0
	}
	return float64(s.totalTokens) / float64(len(s.docs))
}

// LifetimeIndexed returns how many index operations ever committed against
// this index, including documents since removed. A zero value means the
// index has never held a document.
func (s *Snapshot) LifetimeIndexed() uint64 {
	return s.lifetime
}

// Version increments with every committed mutation. It is process-local and
// resets on restore.
func (s *Snapshot) Version() uint64 {
	return s.version
}

func (s *Snapshot) Stats() Stats {
	return Stats{
		Documents:       len(s.docs),
		Terms:           len(s.order),
		Tokens:          s.totalTokens,
		LifetimeIndexed: s.lifetime,
	}
}

// State exports the snapshot for checkpointing. Terms and docs are emitted
// in sorted order so identical snapshots serialise identically.
func (s *Snapshot) State() *State {
	st := &State{
		Terms:           make([]TermEntry, 0, len(s.order)),
		Docs:            make([]DocEntry, 0, len(s.docs)),
		TotalTokens:     s.totalTokens,
		LifetimeIndexed: s.lifetime,
	}
	for _, term := range s.order {
		st.Terms = append(st.Terms, TermEntry{Term: term, Postings: s.terms[term]})
	}
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		st.Docs = append(st.Docs, s.docs[id])
	}
	return st
}

// FromState rebuilds a snapshot from checkpointed state.
func FromState(st *State) *Snapshot {
	s := emptySnapshot()
	s.totalTokens = st.TotalTokens
	s.lifetime = st.LifetimeIndexed
	s.order = make([]string, 0, len(st.Terms))
	for _, entry := range st.Terms {
		s.terms[entry.Term] = entry.Postings
		s.order = append(s.order, entry.Term)
	}
	sort.Strings(s.order)
	for _, doc := range st.Docs {
		s.docs[doc.DocID] = doc
	}
	return s
}

// filterFields restricts a posting list to the named fields. Field sets are
// small, so a linear scan beats building a set.
func filterFields(pl PostingList, fields []string) PostingList {
	if len(fields) == 0 || len(pl) == 0 {
		return pl
	}
	out := make(PostingList, 0, len(pl))
	for _, p := range pl {
		for _, f := range fields {
			if p.Field == f {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// mergePostings combines posting lists from several lexemes into one list
// keyed by (doc, field), summing frequencies and concatenating positions.
func mergePostings(lists []PostingList) PostingList {
	switch len(lists) {
	case 0:
		return nil
	case 1:
		return lists[0]
	}
	type key struct {
		doc   string
		field string
	}
	merged := make(map[key]*Posting)
	for _, pl := range lists {
		for _, p := range pl {
			k := key{p.DocID, p.Field}
			if m, ok := merged[k]; ok {
				m.Frequency += p.Frequency
				m.Positions = append(m.Positions, p.Positions...)
			} else {
				cp := p
				cp.Positions = append([]int(nil), p.Positions...)
				merged[k] = &cp
			}
		}
	}
	out := make(PostingList, 0, len(merged))
	for _, p := range merged {
		sort.Ints(p.Positions)
		out = append(out, *p)
	}
	sortPostings(out)
	return out
}

func docFreq(pl PostingList) int {
	n := 0
	last := ""
	for _, p := range pl {
		if p.DocID != last {
			n++
			last = p.DocID
		}
	}
	return n
}

func sortPostings(pl PostingList) {
	sort.Slice(pl, func(i, j int) bool {
		if pl[i].DocID != pl[j].DocID {
			return pl[i].DocID < pl[j].DocID
		}
		return pl[i].Field < pl[j].Field
	})
}
