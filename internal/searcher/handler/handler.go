// Package handler exposes the search HTTP API: query execution, term
// suggestions, and cache administration.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openfts/openfts/internal/analytics"
	"github.com/openfts/openfts/internal/indexer/index"
	"github.com/openfts/openfts/internal/searcher/cache"
	"github.com/openfts/openfts/internal/searcher/executor"
	"github.com/openfts/openfts/internal/searcher/parser"
	"github.com/openfts/openfts/pkg/config"
	apperrors "github.com/openfts/openfts/pkg/errors"
	"github.com/openfts/openfts/pkg/logger"
	"github.com/openfts/openfts/pkg/metrics"
	"github.com/openfts/openfts/pkg/middleware"
	"github.com/openfts/openfts/pkg/tracing"
)

// SearchExecutor runs parsed queries. Satisfied by both the single-engine
// and the sharded executor.
type SearchExecutor interface {
	Execute(ctx context.Context, q *parser.Query, opts executor.Options) (*executor.SearchResult, error)
}

// Suggester provides prefix term completions.
type Suggester interface {
	Suggest(ctx context.Context, prefix string, limit int) ([]index.Suggestion, error)
}

type Handler struct {
	executor  SearchExecutor
	suggester Suggester
	parser    *parser.Parser
	cache     *cache.QueryCache
	collector *analytics.Collector
	cfg       config.SearchConfig
	tracing   config.TracingConfig
	logger    *slog.Logger
}

func New(
	exec SearchExecutor,
	suggester Suggester,
	p *parser.Parser,
	queryCache *cache.QueryCache,
	collector *analytics.Collector,
	cfg config.SearchConfig,
	tracingCfg config.TracingConfig,
) *Handler {
	return &Handler{
		executor:  exec,
		suggester: suggester,
		parser:    p,
		cache:     queryCache,
		collector: collector,
		cfg:       cfg,
		tracing:   tracingCfg,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// sampleTrace decides whether this request gets a span tree. SampleRate is
// the traced fraction of requests; 1 or more traces everything.
func (h *Handler) sampleTrace() bool {
	if !h.tracing.Enabled {
		return false
	}
	if h.tracing.SampleRate >= 1 {
		return true
	}
	return rand.Float64() < h.tracing.SampleRate
}

// Search handles GET /search?q=&fields=&prefix=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	fields := splitCSV(r.URL.Query().Get("fields"))
	prefix, err := parsePrefix(r.URL.Query().Get("prefix"), h.cfg.PrefixDefault)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "prefix must be true or false")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), h.cfg.DefaultLimit, h.cfg.MaxResults)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}
	if h.sampleTrace() {
		var span *tracing.Span
		ctx, span = tracing.StartSpan(ctx, "search", middleware.GetRequestID(r))
		span.SetAttr("query", query)
		defer span.End()
	}

	q := h.parser.Parse(query, prefix)
	opts := executor.Options{Fields: fields, Limit: limit}

	var result *executor.SearchResult
	cacheHit := false
	if h.cache != nil && h.cfg.CacheEnabled {
		key := cache.Key{Query: query, Fields: fields, Prefix: prefix, Limit: limit}
		result, cacheHit, err = h.cache.GetOrCompute(ctx, key, func() (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, q, opts)
		})
	} else {
		result, err = h.executor.Execute(ctx, q, opts)
	}

	latencyMs := time.Since(start).Milliseconds()
	if errors.Is(err, apperrors.ErrIndexEmpty) {
		// Distinguishable from "no matches": the corpus never held a
		// document. Reported in-band so clients can show an onboarding
		// state instead of an empty result list.
		result = &executor.SearchResult{
			Query:      query,
			Results:    nil,
			TookMs:     latencyMs,
			IndexEmpty: true,
		}
		metrics.SearchesTotal.WithLabelValues("index_empty").Inc()
		h.track(r, q, fields, prefix, result, false, latencyMs)
		h.writeJSON(w, http.StatusOK, result)
		return
	}
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		log.Error("search execution failed", "query", query, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed")
		return
	}

	outcome := "ok"
	if result.TotalHits == 0 {
		outcome = "zero_results"
	}
	metrics.SearchesTotal.WithLabelValues(outcome).Inc()
	metrics.SearchResultCount.Observe(float64(len(result.Results)))
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
		metrics.CacheHitsTotal.Inc()
	} else {
		metrics.CacheMissesTotal.Inc()
	}
	metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())

	log.Info("search completed",
		"query", query,
		"prefix", prefix,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	h.track(r, q, fields, prefix, result, cacheHit, latencyMs)
	h.writeJSON(w, http.StatusOK, result)
}

// Suggest handles GET /suggest?q=&limit=.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	if h.suggester == nil {
		h.writeError(w, http.StatusNotFound, "suggestions are not enabled")
		return
	}
	prefix := r.URL.Query().Get("q")
	if prefix == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), h.cfg.DefaultLimit, h.cfg.MaxResults)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	suggestions, err := h.suggester.Suggest(r.Context(), strings.ToLower(prefix), limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("suggest failed", "prefix", prefix, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "suggest failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"prefix":      prefix,
		"suggestions": suggestions,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) track(r *http.Request, q *parser.Query, fields []string, prefix bool, result *executor.SearchResult, cacheHit bool, latencyMs int64) {
	if h.collector == nil {
		return
	}
	eventType := analytics.EventSearch
	switch {
	case result.IndexEmpty:
		eventType = analytics.EventIndexEmpty
	case cacheHit:
		eventType = analytics.EventCacheHit
	case result.TotalHits == 0:
		eventType = analytics.EventZeroResult
	}
	terms := make([]string, 0, len(q.Terms))
	for _, t := range q.Terms {
		terms = append(terms, t.Text)
	}
	h.collector.Track(analytics.SearchEvent{
		Type:       eventType,
		Query:      q.Raw,
		Terms:      terms,
		Fields:     fields,
		Prefix:     prefix,
		TotalHits:  result.TotalHits,
		Returned:   len(result.Results),
		LatencyMs:  latencyMs,
		CacheHit:   cacheHit,
		IndexEmpty: result.IndexEmpty,
		Timestamp:  time.Now().UTC(),
		RequestID:  middleware.GetRequestID(r),
	})
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePrefix(raw string, fallback bool) (bool, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseBool(raw)
}

func parseLimit(raw string, fallback, max int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
