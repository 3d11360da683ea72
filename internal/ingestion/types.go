// Package ingestion defines the request/response types and Kafka event
// schemas used by the document ingestion pipeline.
package ingestion

import "time"

// Document lifecycle states tracked in the store.
const (
	StatusPending = "pending"
	StatusIndexed = "indexed"
	StatusDeleted = "deleted"
	StatusFailed  = "failed"
)

// Document event types carried on the document-events topic.
const (
	EventUpsert = "upsert"
	EventDelete = "delete"
)

// DocumentEvent is the Kafka message payload produced after a document is
// persisted. The indexer consumes it to keep the search index in step with
// the store. Fields is empty for delete events.
type DocumentEvent struct {
	Type       string            `json:"type"`
	DocumentID string            `json:"document_id"`
	Fields     map[string]string `json:"fields,omitempty"`
	ShardID    int               `json:"shard_id"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// IngestRequest is the JSON body accepted by the ingestion HTTP endpoints.
// Fields maps field names (title, body, ...) to their text.
type IngestRequest struct {
	Fields map[string]string `json:"fields"`
}

// IngestResponse is returned to the caller after a document is accepted.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	ShardID    int    `json:"shard_id"`
}
