// Package publisher persists documents to the store and publishes document
// events to Kafka for downstream indexing. Documents are routed to shards
// by hashing the document id, the same mapping the indexer applies.
package publisher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openfts/openfts/internal/indexer/shard"
	"github.com/openfts/openfts/internal/ingestion"
	"github.com/openfts/openfts/internal/ingestion/store"
	"github.com/openfts/openfts/pkg/kafka"
	"github.com/openfts/openfts/pkg/metrics"
	"github.com/openfts/openfts/pkg/resilience"
)

// Publisher coordinates document persistence and Kafka event production.
type Publisher struct {
	store     *store.Store
	producer  *kafka.Producer
	topic     string
	numShards int
	logger    *slog.Logger
}

// New creates a Publisher.
func New(st *store.Store, producer *kafka.Producer, topic string, numShards int) *Publisher {
	return &Publisher{
		store:     st,
		producer:  producer,
		topic:     topic,
		numShards: numShards,
		logger:    slog.Default().With("component", "publisher"),
	}
}

// Create ingests a new document under a fresh id.
func (p *Publisher) Create(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	return p.upsert(ctx, uuid.NewString(), req)
}

// Upsert ingests a document under a caller-chosen id, replacing any
// previous content. Re-submitting identical content is harmless: the row
// and the index entry converge to the same state.
func (p *Publisher) Upsert(ctx context.Context, docID string, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	return p.upsert(ctx, docID, req)
}

func (p *Publisher) upsert(ctx context.Context, docID string, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	shardID := shard.For(docID, p.numShards)
	hash, size := contentDigest(req.Fields)

	doc := store.Document{
		ID:          docID,
		Fields:      req.Fields,
		ContentHash: hash,
		ContentSize: size,
		ShardID:     shardID,
	}
	if err := p.store.Upsert(ctx, doc); err != nil {
		return nil, fmt.Errorf("persisting document: %w", err)
	}

	p.publish(ctx, ingestion.DocumentEvent{
		Type:       ingestion.EventUpsert,
		DocumentID: docID,
		Fields:     req.Fields,
		ShardID:    shardID,
		OccurredAt: time.Now().UTC(),
	})
	return &ingestion.IngestResponse{
		DocumentID: docID,
		Status:     ingestion.StatusPending,
		ShardID:    shardID,
	}, nil
}

// Delete tombstones the document and publishes a delete event so the index
// drops its postings.
func (p *Publisher) Delete(ctx context.Context, docID string) (*ingestion.IngestResponse, error) {
	if err := p.store.MarkDeleted(ctx, docID); err != nil {
		return nil, err
	}
	shardID := shard.For(docID, p.numShards)
	p.publish(ctx, ingestion.DocumentEvent{
		Type:       ingestion.EventDelete,
		DocumentID: docID,
		ShardID:    shardID,
		OccurredAt: time.Now().UTC(),
	})
	return &ingestion.IngestResponse{
		DocumentID: docID,
		Status:     ingestion.StatusDeleted,
		ShardID:    shardID,
	}, nil
}

// publish writes one event, retrying with backoff. A document whose event
// never makes it out stays pending in the store and is picked up by the
// next full rebuild.
func (p *Publisher) publish(ctx context.Context, event ingestion.DocumentEvent) {
	err := resilience.Retry(ctx, "kafka-publish", resilience.RetryConfig{}, func() error {
		return p.producer.Publish(ctx, kafka.Event{
			Key:   event.DocumentID,
			Value: event,
		})
	})
	if err != nil {
		metrics.KafkaMessagesPublished.WithLabelValues(p.topic, "error").Inc()
		p.logger.Error("failed to publish document event, document stays pending",
			"doc_id", event.DocumentID,
			"type", event.Type,
			"error", err,
		)
		return
	}
	metrics.KafkaMessagesPublished.WithLabelValues(p.topic, "ok").Inc()
}

// contentDigest hashes the fields map in sorted field order so equal
// content always digests equally.
func contentDigest(fields map[string]string) (string, int) {
	names := make([]string, 0, len(fields))
	size := 0
	for name, text := range fields {
		names = append(names, name)
		size += len(text)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(fields[name]))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil)), size
}
