package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/openfts/openfts/internal/indexer/checkpoint"
	"github.com/openfts/openfts/internal/indexer/index"
	"github.com/openfts/openfts/internal/indexer/tokenizer"
	"github.com/openfts/openfts/pkg/config"
	"github.com/openfts/openfts/pkg/metrics"
)

// Engine owns one shard's in-memory index and its checkpoint files. Reads
// go through Snapshot; writes and checkpointing serialise internally.
type Engine struct {
	idx    *index.MemoryIndex
	writer *checkpoint.Writer
	cfg    config.IndexerConfig
	logger *slog.Logger

	ckptMu    sync.Mutex
	lastSaved uint64 // snapshot version of the last checkpoint
}

// NewEngine creates an engine over dataDir, restoring the newest valid
// checkpoint if one exists.
func NewEngine(cfg config.IndexerConfig, dataDir string, tok *tokenizer.Tokenizer) (*Engine, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	local := cfg
	local.DataDir = dataDir
	e := &Engine{
		idx:    index.NewMemoryIndex(tok),
		writer: checkpoint.NewWriter(dataDir, cfg.CheckpointKeep),
		cfg:    local,
		logger: slog.Default().With("component", "indexer", "data_dir", dataDir),
	}

	st, name, err := checkpoint.LoadLatest(dataDir)
	if err != nil {
		return nil, fmt.Errorf("recovering checkpoint: %w", err)
	}
	if st != nil {
		e.idx.Restore(st)
		e.lastSaved = e.idx.Snapshot().Version()
		e.logger.Info("checkpoint restored",
			"checkpoint", name,
			"documents", len(st.Docs),
			"terms", len(st.Terms),
			"lifetime_indexed", st.LifetimeIndexed,
		)
	}
	return e, nil
}

// IndexDocument adds or replaces a document.
func (e *Engine) IndexDocument(docID string, fields map[string]string) error {
	if err := e.idx.IndexDocument(docID, fields); err != nil {
		return err
	}
	metrics.DocumentsIndexed.Inc()
	e.logger.Debug("document indexed", "doc_id", docID, "fields", len(fields))
	return nil
}

// RemoveDocument drops a document's postings. Unknown ids are a no-op.
func (e *Engine) RemoveDocument(docID string) {
	e.idx.RemoveDocument(docID)
	metrics.DocumentsRemoved.Inc()
	e.logger.Debug("document removed", "doc_id", docID)
}

// Snapshot returns the current immutable index view.
func (e *Engine) Snapshot() *index.Snapshot {
	return e.idx.Snapshot()
}

// Stats summarises the current snapshot.
func (e *Engine) Stats() index.Stats {
	return e.idx.Snapshot().Stats()
}

// Checkpoint persists the current snapshot if anything changed since the
// last checkpoint. An index that never held a document is not persisted.
func (e *Engine) Checkpoint() error {
	e.ckptMu.Lock()
	defer e.ckptMu.Unlock()

	snap := e.idx.Snapshot()
	if snap.LifetimeIndexed() == 0 {
		return nil
	}
	if snap.Version() == e.lastSaved {
		return nil
	}

	start := time.Now()
	name, err := e.writer.Write(snap.State())
	if err != nil {
		metrics.CheckpointsFailed.Inc()
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	e.lastSaved = snap.Version()
	metrics.CheckpointsWritten.Inc()
	metrics.CheckpointDuration.Observe(time.Since(start).Seconds())
	e.logger.Info("checkpoint written",
		"checkpoint", name,
		"documents", snap.DocCount(),
		"took", time.Since(start),
	)
	return nil
}

// StartCheckpointLoop checkpoints on a ticker until ctx is cancelled, then
// takes one final checkpoint.
func (e *Engine) StartCheckpointLoop(ctx context.Context) {
	interval := e.cfg.CheckpointInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				if err := e.Checkpoint(); err != nil {
					e.logger.Error("final checkpoint failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := e.Checkpoint(); err != nil {
					e.logger.Error("periodic checkpoint failed", "error", err)
				}
			}
		}
	}()
}

// Close takes a final checkpoint.
func (e *Engine) Close() error {
	return e.Checkpoint()
}
