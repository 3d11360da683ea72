package shard

import (
	"context"
	"fmt"
	"testing"

	"github.com/openfts/openfts/internal/indexer/tokenizer"
	"github.com/openfts/openfts/pkg/config"
)

func newTestRouter(t *testing.T, numShards int) *Router {
	t.Helper()
	tok, err := tokenizer.New(tokenizer.Config{})
	if err != nil {
		t.Fatalf("tokenizer.New: %v", err)
	}
	cfg := config.IndexerConfig{
		DataDir:        t.TempDir(),
		NumShards:      numShards,
		CheckpointKeep: 1,
	}
	r, err := NewRouter(cfg, tok)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestForIsStable(t *testing.T) {
	for _, id := range []string{"a", "doc-42", "f47ac10b-58cc-4372-a567-0e02b2c3d479"} {
		first := For(id, 8)
		for i := 0; i < 10; i++ {
			if got := For(id, 8); got != first {
				t.Fatalf("For(%q) unstable: %d then %d", id, first, got)
			}
		}
		if first < 0 || first >= 8 {
			t.Errorf("For(%q, 8) = %d, out of range", id, first)
		}
	}
	if got := For("anything", 1); got != 0 {
		t.Errorf("For with one shard = %d, want 0", got)
	}
}

func TestDocumentLivesOnExactlyOneShard(t *testing.T) {
	r := newTestRouter(t, 4)

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("doc-%d", i)
		if _, err := r.IndexDocument(id, map[string]string{"title": "penne arrabiata"}); err != nil {
			t.Fatalf("IndexDocument(%q): %v", id, err)
		}
	}

	total := 0
	for _, s := range r.Stats() {
		total += s.Documents
	}
	if total != 50 {
		t.Errorf("documents across shards = %d, want 50", total)
	}

	holders := 0
	for _, snap := range r.Snapshots() {
		if snap.DocLength("doc-7") > 0 {
			holders++
		}
	}
	if holders != 1 {
		t.Errorf("doc-7 held by %d shards, want exactly 1", holders)
	}
}

func TestIndexRemoveAgreeOnShard(t *testing.T) {
	r := newTestRouter(t, 4)

	in, err := r.IndexDocument("doc-9", map[string]string{"title": "tomato soup"})
	if err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	out := r.RemoveDocument("doc-9")
	if in != out {
		t.Errorf("index routed to shard %d but remove to %d", in, out)
	}
	for i, snap := range r.Snapshots() {
		if snap.DocCount() != 0 {
			t.Errorf("shard %d still holds documents after removal", i)
		}
	}
}

type sliceSource []struct {
	id     string
	fields map[string]string
}

func (s sliceSource) ScanDocuments(ctx context.Context, fn func(string, map[string]string) error) error {
	for _, d := range s {
		if err := fn(d.id, d.fields); err != nil {
			return err
		}
	}
	return nil
}

func TestRebuildAllSkipsInvalidDocuments(t *testing.T) {
	r := newTestRouter(t, 2)

	src := sliceSource{
		{"1", map[string]string{"title": "penne arrabiata"}},
		{"2", map[string]string{"title": "   "}}, // rejected, not fatal
		{"3", map[string]string{"title": "spaghetti carbonara"}},
	}
	indexed, err := r.RebuildAll(context.Background(), src)
	if err != nil {
		t.Fatalf("RebuildAll: %v", err)
	}
	if indexed != 2 {
		t.Errorf("RebuildAll indexed %d, want 2", indexed)
	}
}

func TestCheckpointAllAndRecover(t *testing.T) {
	tok, err := tokenizer.New(tokenizer.Config{})
	if err != nil {
		t.Fatalf("tokenizer.New: %v", err)
	}
	cfg := config.IndexerConfig{
		DataDir:        t.TempDir(),
		NumShards:      3,
		CheckpointKeep: 1,
	}

	r, err := NewRouter(cfg, tok)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("doc-%d", i)
		if _, err := r.IndexDocument(id, map[string]string{"title": "penne pasta"}); err != nil {
			t.Fatalf("IndexDocument: %v", err)
		}
	}
	if err := r.CheckpointAll(context.Background()); err != nil {
		t.Fatalf("CheckpointAll: %v", err)
	}
	r.Close()

	recovered, err := NewRouter(cfg, tok)
	if err != nil {
		t.Fatalf("NewRouter (recover): %v", err)
	}
	defer recovered.Close()

	total := 0
	for _, s := range recovered.Stats() {
		total += s.Documents
	}
	if total != 12 {
		t.Errorf("recovered %d documents, want 12", total)
	}
}
