// Package store persists documents in PostgreSQL. The document row is the
// system of record; the search index only ever holds data derived from it,
// so a full index rebuild is a scan over this table.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openfts/openfts/internal/ingestion"
	apperrors "github.com/openfts/openfts/pkg/errors"
	"github.com/openfts/openfts/pkg/postgres"
)

// Schema creates the documents table. Applied at service start; CREATE IF
// NOT EXISTS keeps it idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
    id           UUID PRIMARY KEY,
    fields       JSONB       NOT NULL,
    content_hash TEXT        NOT NULL,
    content_size INTEGER     NOT NULL,
    shard_id     INTEGER     NOT NULL,
    status       TEXT        NOT NULL DEFAULT 'pending',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    indexed_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status);
CREATE INDEX IF NOT EXISTS idx_documents_shard ON documents (shard_id);
`

// Document is one stored document row.
type Document struct {
	ID          string            `json:"id"`
	Fields      map[string]string `json:"fields"`
	ContentHash string            `json:"content_hash"`
	ContentSize int               `json:"content_size"`
	ShardID     int               `json:"shard_id"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	IndexedAt   *time.Time        `json:"indexed_at,omitempty"`
}

// Store wraps the postgres client with document operations.
type Store struct {
	client *postgres.Client
	logger *slog.Logger
}

// New creates a Store over an existing postgres client.
func New(client *postgres.Client) *Store {
	return &Store{
		client: client,
		logger: slog.Default().With("component", "document-store"),
	}
}

// EnsureSchema applies the documents schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("applying documents schema: %w", err)
	}
	return nil
}

// Upsert inserts or replaces a document row, resetting status to pending.
func (s *Store) Upsert(ctx context.Context, doc Document) error {
	fields, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("marshaling fields: %w", err)
	}
	const q = `
INSERT INTO documents (id, fields, content_hash, content_size, shard_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now(), now())
ON CONFLICT (id) DO UPDATE SET
    fields       = EXCLUDED.fields,
    content_hash = EXCLUDED.content_hash,
    content_size = EXCLUDED.content_size,
    shard_id     = EXCLUDED.shard_id,
    status       = EXCLUDED.status,
    updated_at   = now()`
	_, err = s.client.DB.ExecContext(ctx, q,
		doc.ID, fields, doc.ContentHash, doc.ContentSize, doc.ShardID, ingestion.StatusPending)
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.ID, err)
	}
	return nil
}

// Get fetches one document, including deleted ones (status reports it).
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	const q = `
SELECT id, fields, content_hash, content_size, shard_id, status, created_at, updated_at, indexed_at
FROM documents WHERE id = $1`
	row := s.client.DB.QueryRowContext(ctx, q, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching document %s: %w", id, err)
	}
	return doc, nil
}

// List returns non-deleted documents, newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, fields, content_hash, content_size, shard_id, status, created_at, updated_at, indexed_at
FROM documents WHERE status != $1
ORDER BY updated_at DESC LIMIT $2 OFFSET $3`
	rows, err := s.client.DB.QueryContext(ctx, q, ingestion.StatusDeleted, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// MarkDeleted tombstones a document instead of deleting the row, so the
// deletion survives for audit and replay.
func (s *Store) MarkDeleted(ctx context.Context, id string) error {
	const q = `UPDATE documents SET status = $1, updated_at = now() WHERE id = $2`
	res, err := s.client.DB.ExecContext(ctx, q, ingestion.StatusDeleted, id)
	if err != nil {
		return fmt.Errorf("marking document %s deleted: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
	}
	return nil
}

// UpdateStatus records an indexing outcome. Indexed documents also get
// their indexed_at timestamp set.
func (s *Store) UpdateStatus(ctx context.Context, id, status string) error {
	var q string
	if status == ingestion.StatusIndexed {
		q = `UPDATE documents SET status = $1, indexed_at = now(), updated_at = now() WHERE id = $2`
	} else {
		q = `UPDATE documents SET status = $1, updated_at = now() WHERE id = $2`
	}
	if _, err := s.client.DB.ExecContext(ctx, q, status, id); err != nil {
		return fmt.Errorf("updating status of document %s: %w", id, err)
	}
	return nil
}

// ScanDocuments streams every non-deleted document through fn, in stable id
// order. It implements the index rebuild source.
func (s *Store) ScanDocuments(ctx context.Context, fn func(docID string, fields map[string]string) error) error {
	const q = `SELECT id, fields FROM documents WHERE status != $1 ORDER BY id`
	rows, err := s.client.DB.QueryContext(ctx, q, ingestion.StatusDeleted)
	if err != nil {
		return fmt.Errorf("scanning documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("scanning document row: %w", err)
		}
		var fields map[string]string
		if err := json.Unmarshal(raw, &fields); err != nil {
			s.logger.Warn("skipping document with malformed fields", "doc_id", id, "error", err)
			continue
		}
		if err := fn(id, fields); err != nil {
			return err
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var raw []byte
	var indexedAt sql.NullTime
	err := row.Scan(&doc.ID, &raw, &doc.ContentHash, &doc.ContentSize,
		&doc.ShardID, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt, &indexedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &doc.Fields); err != nil {
		return nil, fmt.Errorf("decoding fields of document %s: %w", doc.ID, err)
	}
	if indexedAt.Valid {
		doc.IndexedAt = &indexedAt.Time
	}
	return &doc, nil
}
