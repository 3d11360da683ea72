// Package shard distributes documents across independent index engines by
// hashing the document id. A document always lands on exactly one shard, so
// cross-shard search results never contain duplicates.
package shard

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/openfts/openfts/internal/indexer"
	"github.com/openfts/openfts/internal/indexer/index"
	"github.com/openfts/openfts/internal/indexer/tokenizer"
	"github.com/openfts/openfts/pkg/config"
)

// For returns the shard a document id hashes to. Ingestion and indexing
// must agree on this mapping, so both call through here.
func For(docID string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(docID))
	return int(h.Sum32() % uint32(numShards))
}

// DocumentSource streams documents for a full index rebuild, typically
// backed by the document store.
type DocumentSource interface {
	ScanDocuments(ctx context.Context, fn func(docID string, fields map[string]string) error) error
}

// Router owns one engine per shard, each with its own checkpoint directory.
// The engine set is fixed at construction, so routing needs no locking.
type Router struct {
	engines []*indexer.Engine
	logger  *slog.Logger
}

// NewRouter creates cfg.NumShards engines in shard-numbered sub-directories
// under cfg.DataDir.
func NewRouter(cfg config.IndexerConfig, tok *tokenizer.Tokenizer) (*Router, error) {
	n := cfg.NumShards
	if n < 1 {
		n = 1
	}
	r := &Router{
		engines: make([]*indexer.Engine, 0, n),
		logger:  slog.Default().With("component", "shard-router"),
	}
	for i := 0; i < n; i++ {
		dir := filepath.Join(cfg.DataDir, fmt.Sprintf("shard-%d", i))
		engine, err := indexer.NewEngine(cfg, dir, tok)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("creating engine for shard %d: %w", i, err)
		}
		r.engines = append(r.engines, engine)
	}
	r.logger.Info("shard router ready", "num_shards", n)
	return r, nil
}

// IndexDocument routes the document to its shard and indexes it there,
// returning the shard it landed on.
func (r *Router) IndexDocument(docID string, fields map[string]string) (int, error) {
	shardID := For(docID, len(r.engines))
	if err := r.engines[shardID].IndexDocument(docID, fields); err != nil {
		return shardID, err
	}
	return shardID, nil
}

// RemoveDocument removes the document from its shard and returns the shard
// id. Removing an unknown id is a no-op.
func (r *Router) RemoveDocument(docID string) int {
	shardID := For(docID, len(r.engines))
	r.engines[shardID].RemoveDocument(docID)
	return shardID
}

// Snapshots returns one consistent snapshot per shard, indexed by shard id.
func (r *Router) Snapshots() []*index.Snapshot {
	snaps := make([]*index.Snapshot, len(r.engines))
	for i, e := range r.engines {
		snaps[i] = e.Snapshot()
	}
	return snaps
}

// Engines exposes the shard engines in shard-id order.
func (r *Router) Engines() []*indexer.Engine {
	return r.engines
}

// NumShards returns the number of shards managed by this router.
func (r *Router) NumShards() int {
	return len(r.engines)
}

// Stats returns per-shard index stats in shard-id order.
func (r *Router) Stats() []index.Stats {
	stats := make([]index.Stats, len(r.engines))
	for i, e := range r.engines {
		stats[i] = e.Stats()
	}
	return stats
}

// CheckpointAll persists every shard concurrently and returns the first
// failure, if any.
func (r *Router) CheckpointAll(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	for i, e := range r.engines {
		shardID, engine := i, e
		g.Go(func() error {
			if err := engine.Checkpoint(); err != nil {
				return fmt.Errorf("shard %d: %w", shardID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// StartCheckpointLoops starts the periodic checkpoint loop of every shard.
func (r *Router) StartCheckpointLoops(ctx context.Context) {
	for _, e := range r.engines {
		e.StartCheckpointLoop(ctx)
	}
}

// RebuildAll repopulates every shard from the document source. Documents
// the index rejects are skipped and counted against the error return only
// if the scan itself fails. It returns how many documents were indexed.
func (r *Router) RebuildAll(ctx context.Context, src DocumentSource) (int, error) {
	indexed := 0
	err := src.ScanDocuments(ctx, func(docID string, fields map[string]string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := r.IndexDocument(docID, fields); err != nil {
			r.logger.Warn("skipping document during rebuild", "doc_id", docID, "error", err)
			return nil
		}
		indexed++
		return nil
	})
	if err != nil {
		return indexed, fmt.Errorf("scanning documents: %w", err)
	}
	r.logger.Info("index rebuild complete", "documents", indexed)
	return indexed, nil
}

// Close takes a final checkpoint on every shard, returning the first error.
func (r *Router) Close() error {
	var firstErr error
	for i, e := range r.engines {
		if e == nil {
			continue
		}
		if err := e.Close(); err != nil {
			r.logger.Error("shard close failed", "shard_id", i, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
