// Package consumer reads document events from Kafka and applies them to
// the sharded index. A message commits only after the index mutation
// succeeds, so an indexer crash replays rather than drops events.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openfts/openfts/internal/indexer/shard"
	"github.com/openfts/openfts/internal/ingestion"
	apperrors "github.com/openfts/openfts/pkg/errors"
	"github.com/openfts/openfts/pkg/kafka"
	"github.com/openfts/openfts/pkg/metrics"
	"github.com/openfts/openfts/pkg/resilience"
)

// StatusStore records indexing outcomes back to the document store. Nil
// disables status tracking.
type StatusStore interface {
	UpdateStatus(ctx context.Context, docID, status string) error
}

// Invalidator drops cached search results after the index changes. Nil
// disables invalidation.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// IndexTracker reports applied index mutations to analytics. Nil disables
// tracking.
type IndexTracker interface {
	TrackIndexed(docID string, shardID, sizeBytes int)
	TrackRemoved(docID string, shardID int)
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler applying document events to
// the router. Invalid documents are logged, marked failed, and committed:
// redelivery cannot fix them. Any other failure is returned so the message
// stays uncommitted and is retried.
func HandleMessage(router *shard.Router, topic string, statuses StatusStore, cache Invalidator, tracker IndexTracker) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.DocumentEvent](value)
		if err != nil {
			// Malformed payloads are poison; skip them.
			metrics.KafkaMessagesConsumed.WithLabelValues(topic, "malformed").Inc()
			logger.Error("failed to decode document event", "error", err, "key", string(key))
			return nil
		}

		switch event.Type {
		case ingestion.EventUpsert:
			shardID, err := router.IndexDocument(event.DocumentID, event.Fields)
			if errors.Is(err, apperrors.ErrInvalidDocument) {
				metrics.KafkaMessagesConsumed.WithLabelValues(topic, "rejected").Inc()
				metrics.DocumentsRejected.Inc()
				logger.Warn("rejecting invalid document",
					"doc_id", event.DocumentID, "error", err)
				updateStatus(ctx, statuses, event.DocumentID, ingestion.StatusFailed, logger)
				return nil
			}
			if err != nil {
				metrics.KafkaMessagesConsumed.WithLabelValues(topic, "error").Inc()
				return fmt.Errorf("indexing document %s: %w", event.DocumentID, err)
			}
			updateStatus(ctx, statuses, event.DocumentID, ingestion.StatusIndexed, logger)
			if tracker != nil {
				size := 0
				for _, v := range event.Fields {
					size += len(v)
				}
				tracker.TrackIndexed(event.DocumentID, shardID, size)
			}
			logger.Info("document indexed", "doc_id", event.DocumentID, "shard_id", shardID)

		case ingestion.EventDelete:
			shardID := router.RemoveDocument(event.DocumentID)
			if tracker != nil {
				tracker.TrackRemoved(event.DocumentID, shardID)
			}
			logger.Info("document removed", "doc_id", event.DocumentID, "shard_id", shardID)

		default:
			metrics.KafkaMessagesConsumed.WithLabelValues(topic, "malformed").Inc()
			logger.Error("unknown document event type", "type", event.Type, "doc_id", event.DocumentID)
			return nil
		}

		metrics.KafkaMessagesConsumed.WithLabelValues(topic, "ok").Inc()
		if cache != nil {
			if err := cache.Invalidate(ctx); err != nil {
				// Stale cache entries expire on their own TTL.
				logger.Warn("cache invalidation failed", "error", err)
			}
		}
		return nil
	}
}

// updateStatus writes an indexing outcome with retries. Status is advisory;
// persistent failure is logged and dropped rather than blocking the
// pipeline.
func updateStatus(ctx context.Context, statuses StatusStore, docID, status string, logger *slog.Logger) {
	if statuses == nil {
		return
	}
	err := resilience.Retry(ctx, "status-update", resilience.RetryConfig{}, func() error {
		return statuses.UpdateStatus(ctx, docID, status)
	})
	if err != nil {
		logger.Error("failed to update document status",
			"doc_id", docID, "status", status, "error", err)
	}
}
