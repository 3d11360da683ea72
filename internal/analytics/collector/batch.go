// Package collector batches index mutation events and flushes them to
// Kafka in bulk. Search events go through the streaming collector; index
// events are burstier during rebuilds, so they are batched.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openfts/openfts/internal/analytics"
	"github.com/openfts/openfts/pkg/kafka"
)

// BatchCollector accumulates index events and publishes them when the
// batch fills or the flush interval elapses, whichever comes first.
type BatchCollector struct {
	producer      *kafka.Producer
	mu            sync.Mutex
	buffer        []analytics.IndexEvent
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
}

func NewBatchCollector(producer *kafka.Producer, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		producer:      producer,
		buffer:        make([]analytics.IndexEvent, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "batch-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop.
func (bc *BatchCollector) Start(ctx context.Context) {
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				bc.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				bc.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	bc.logger.Info("batch collector started",
		"batch_size", bc.batchSize,
		"flush_interval", bc.flushInterval,
	)
}

// TrackIndexed records a document add or update.
func (bc *BatchCollector) TrackIndexed(docID string, shardID, sizeBytes int) {
	bc.track(analytics.IndexEvent{
		Type:       analytics.EventIndexDoc,
		DocumentID: docID,
		ShardID:    shardID,
		SizeBytes:  sizeBytes,
		Timestamp:  time.Now().UTC(),
	})
}

// TrackRemoved records a document deletion.
func (bc *BatchCollector) TrackRemoved(docID string, shardID int) {
	bc.track(analytics.IndexEvent{
		Type:       analytics.EventIndexRemove,
		DocumentID: docID,
		ShardID:    shardID,
		Timestamp:  time.Now().UTC(),
	})
}

func (bc *BatchCollector) track(event analytics.IndexEvent) {
	bc.mu.Lock()
	bc.buffer = append(bc.buffer, event)
	full := len(bc.buffer) >= bc.batchSize
	bc.mu.Unlock()

	if full {
		go bc.flush(context.Background())
	}
}

// Close waits for the background flush loop to finish. Call after
// cancelling the Start context.
func (bc *BatchCollector) Close() {
	<-bc.done
}

// BufferLen reports the number of buffered events.
func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

func (bc *BatchCollector) flush(ctx context.Context) {
	bc.mu.Lock()
	if len(bc.buffer) == 0 {
		bc.mu.Unlock()
		return
	}
	batch := bc.buffer
	bc.buffer = make([]analytics.IndexEvent, 0, bc.batchSize)
	bc.mu.Unlock()

	events := make([]kafka.Event, 0, len(batch))
	for _, e := range batch {
		events = append(events, kafka.Event{Key: e.DocumentID, Value: e})
	}
	if err := bc.producer.PublishBatch(ctx, events); err != nil {
		bc.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		// Requeue once, capped so repeated failures cannot grow unbounded.
		bc.mu.Lock()
		bc.buffer = append(batch, bc.buffer...)
		if limit := bc.batchSize * 3; len(bc.buffer) > limit {
			bc.logger.Warn("buffer overflow, events dropped", "dropped", len(bc.buffer)-limit)
			bc.buffer = bc.buffer[:limit]
		}
		bc.mu.Unlock()
		return
	}
	bc.logger.Debug("batch flushed", "events", len(batch))
}
