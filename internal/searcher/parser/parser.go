// Package parser turns raw query text into an ordered term sequence using
// the same tokenizer the index side runs, so query terms line up with
// indexed lexemes.
package parser

import (
	"github.com/openfts/openfts/internal/indexer/tokenizer"
)

// Term is a single normalised query term. Prefix terms match any indexed
// lexeme sharing the term as a leading substring; exact terms match the
// lexeme alone.
type Term struct {
	Text   string `json:"text"`
	Prefix bool   `json:"prefix"`
}

// Query is the parsed form of one search request. An empty Terms slice
// means the query normalised to nothing; the executor answers it with zero
// results rather than all documents.
type Query struct {
	Raw   string `json:"raw"`
	Terms []Term `json:"terms"`
}

// Parser shares the index-side tokenizer.
type Parser struct {
	tok *tokenizer.Tokenizer
}

// New creates a Parser over the given tokenizer.
func New(tok *tokenizer.Tokenizer) *Parser {
	return &Parser{tok: tok}
}

// Parse tokenizes raw and flags every term per prefixMode. Duplicate terms
// collapse to one occurrence, keeping first-seen order.
func (p *Parser) Parse(raw string, prefixMode bool) *Query {
	q := &Query{Raw: raw}
	seen := make(map[string]struct{})
	for _, t := range p.tok.Tokenize(raw) {
		if _, dup := seen[t.Term]; dup {
			continue
		}
		seen[t.Term] = struct{}{}
		q.Terms = append(q.Terms, Term{Text: t.Term, Prefix: prefixMode})
	}
	return q
}
