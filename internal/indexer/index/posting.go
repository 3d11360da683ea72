package index

// Posting records the occurrences of one lexeme within one field of one
// document. Positions are word ordinals within that field's source text.
type Posting struct {
	DocID     string `json:"doc_id"`
	Field     string `json:"field"`
	Frequency int    `json:"frequency"`
	Positions []int  `json:"positions"`
}

// PostingList is always kept sorted by (DocID, Field) so lookups and merges
// are deterministic.
type PostingList []Posting

// TermEntry pairs a lexeme with its complete posting list.
type TermEntry struct {
	Term     string      `json:"term"`
	Postings PostingList `json:"postings"`
}

// DocEntry records per-document token counts. Length is the total token
// count across all fields; Fields breaks it down per field.
type DocEntry struct {
	DocID  string         `json:"doc_id"`
	Length int            `json:"length"`
	Fields map[string]int `json:"fields"`
}

// State is the complete serialisable content of one shard's index, used by
// the checkpoint store. LifetimeIndexed survives checkpoints so "never
// indexed" stays distinguishable from "currently empty" across restarts.
type State struct {
	Terms           []TermEntry `json:"terms"`
	Docs            []DocEntry  `json:"docs"`
	TotalTokens     int64       `json:"total_tokens"`
	LifetimeIndexed uint64      `json:"lifetime_indexed"`
}

// Stats summarises an index snapshot.
type Stats struct {
	Documents       int    `json:"documents"`
	Terms           int    `json:"terms"`
	Tokens          int64  `json:"tokens"`
	LifetimeIndexed uint64 `json:"lifetime_indexed"`
}
