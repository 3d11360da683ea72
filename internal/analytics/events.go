package analytics

import "time"

type EventType string

const (
	EventSearch      EventType = "search"
	EventCacheHit    EventType = "cache_hit"
	EventCacheMiss   EventType = "cache_miss"
	EventZeroResult  EventType = "zero_result"
	EventIndexEmpty  EventType = "index_empty"
	EventIndexDoc    EventType = "index_document"
	EventIndexRemove EventType = "index_remove"
)

// SearchEvent records one search request for the analytics pipeline.
type SearchEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Terms      []string  `json:"terms"`
	Fields     []string  `json:"fields,omitempty"`
	Prefix     bool      `json:"prefix"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	IndexEmpty bool      `json:"index_empty,omitempty"`
	ShardCount int       `json:"shard_count"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}

// IndexEvent records one index mutation applied by the consumer.
type IndexEvent struct {
	Type       EventType `json:"type"`
	DocumentID string    `json:"document_id"`
	ShardID    int       `json:"shard_id"`
	SizeBytes  int       `json:"size_bytes"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
}
