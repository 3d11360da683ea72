// Package executor runs parsed queries against index snapshots and ranks
// the matches. Each execution reads one snapshot per shard taken up front,
// so a search always sees a consistent index state.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/openfts/openfts/internal/indexer"
	"github.com/openfts/openfts/internal/indexer/index"
	"github.com/openfts/openfts/internal/searcher/parser"
	"github.com/openfts/openfts/internal/searcher/ranker"
	"github.com/openfts/openfts/pkg/config"
	apperrors "github.com/openfts/openfts/pkg/errors"
)

// SearchResult is the ordered outcome of one query execution.
type SearchResult struct {
	Query      string             `json:"query"`
	TotalHits  int                `json:"total_hits"`
	Results    []ranker.ScoredDoc `json:"results"`
	TermStats  map[string]int     `json:"term_stats,omitempty"`
	TookMs     int64              `json:"took_ms"`
	Cached     bool               `json:"cached,omitempty"`
	IndexEmpty bool               `json:"index_empty,omitempty"`
}

// Options narrows one search request.
type Options struct {
	// Fields restricts matching to the named fields. Empty means all
	// configured fields.
	Fields []string
	// Limit caps the result count; 0 falls back to the configured default.
	Limit int
}

// Executor runs queries against a single engine.
type Executor struct {
	engine *indexer.Engine
	cfg    config.SearchConfig
	ranker *ranker.Ranker
	logger *slog.Logger
}

// New creates an Executor over one engine.
func New(engine *indexer.Engine, cfg config.SearchConfig) *Executor {
	return &Executor{
		engine: engine,
		cfg:    cfg,
		ranker: ranker.New(cfg.FieldWeights(), cfg.Scorer),
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute runs a parsed query. An index that never held a document fails
// with ErrIndexEmpty before any term handling, including for empty queries.
func (e *Executor) Execute(ctx context.Context, q *parser.Query, opts Options) (*SearchResult, error) {
	start := time.Now()
	snap := e.engine.Snapshot()
	if snap.LifetimeIndexed() == 0 {
		return nil, apperrors.ErrIndexEmpty
	}

	result := &SearchResult{Query: q.Raw, Results: []ranker.ScoredDoc{}}
	if len(q.Terms) == 0 {
		result.TookMs = time.Since(start).Milliseconds()
		return result, nil
	}

	fields, ok := e.resolveFields(opts.Fields)
	if !ok {
		// Every requested field is unknown: nothing can match.
		result.TookMs = time.Since(start).Milliseconds()
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches, termStats := gatherPostings(snap, q.Terms, fields)
	stats := ranker.CorpusStats{
		TotalDocs:    int64(snap.DocCount()),
		AvgDocLength: snap.AvgDocLength(),
		DocLength:    snap.DocLength,
	}
	result.Results = e.ranker.Rank(matches, stats, e.limit(opts.Limit))
	result.TotalHits = countDocs(matches)
	result.TermStats = termStats
	result.TookMs = time.Since(start).Milliseconds()

	e.logger.Debug("query executed",
		"query", q.Raw,
		"terms", len(q.Terms),
		"hits", result.TotalHits,
		"took_ms", result.TookMs,
	)
	return result, nil
}

// resolveFields intersects the requested fields with the configured set.
// The second return is false when the request named only unknown fields.
func (e *Executor) resolveFields(requested []string) ([]string, bool) {
	configured := make([]string, 0, len(e.cfg.Fields))
	for _, f := range e.cfg.Fields {
		configured = append(configured, f.Name)
	}
	if len(requested) == 0 {
		return configured, true
	}
	resolved := make([]string, 0, len(requested))
	for _, want := range requested {
		for _, have := range configured {
			if want == have {
				resolved = append(resolved, want)
				break
			}
		}
	}
	return resolved, len(resolved) > 0
}

func (e *Executor) limit(requested int) int {
	limit := requested
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if e.cfg.MaxResults > 0 && limit > e.cfg.MaxResults {
		limit = e.cfg.MaxResults
	}
	return limit
}

// gatherPostings collects the postings of every query term from one
// snapshot. Prefix terms expand over the dictionary and come back merged,
// so the ranker sees one posting list per query term either way.
func gatherPostings(snap *index.Snapshot, terms []parser.Term, fields []string) (ranker.TermPostings, map[string]int) {
	matches := make(ranker.TermPostings)
	termStats := make(map[string]int)
	for _, t := range terms {
		var pl index.PostingList
		if t.Prefix {
			pl = snap.PrefixLookup(t.Text, fields)
		} else {
			pl = snap.Lookup(t.Text, fields)
		}
		if len(pl) > 0 {
			matches[t.Text] = pl
			termStats[t.Text] = len(pl)
		}
	}
	return matches, termStats
}

// distinctDocs counts the distinct documents in one posting list. A
// document contributes one posting per matched field.
func distinctDocs(pl index.PostingList) int {
	docs := make(map[string]struct{}, len(pl))
	for _, p := range pl {
		docs[p.DocID] = struct{}{}
	}
	return len(docs)
}

// countDocs counts the distinct documents across all term matches.
func countDocs(matches ranker.TermPostings) int {
	docs := make(map[string]struct{})
	for _, pl := range matches {
		for _, p := range pl {
			docs[p.DocID] = struct{}{}
		}
	}
	return len(docs)
}
