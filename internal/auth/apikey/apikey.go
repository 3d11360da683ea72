// Package apikey provides SHA-256-based API key validation against
// PostgreSQL. Raw keys are generated with crypto/rand and only their
// hash is stored. Successful validations are cached in memory for a
// short TTL so the hot path does not hit the database per request.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openfts/openfts/pkg/postgres"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

// Schema creates the api_keys table. Safe to run on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    key_hash   TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    rate_limit INTEGER NOT NULL DEFAULT 100,
    is_active  BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ
);
`

// cacheTTL bounds how long a revoked key keeps working.
const cacheTTL = 30 * time.Second

// KeyInfo holds metadata about a validated API key.
type KeyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	RateLimit int        `json:"rate_limit"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type cachedKey struct {
	info    KeyInfo
	expires time.Time
}

// Validator validates API keys against the api_keys table.
type Validator struct {
	db     *postgres.Client
	mu     sync.RWMutex
	cache  map[string]cachedKey
	logger *slog.Logger
}

func NewValidator(db *postgres.Client) *Validator {
	return &Validator{
		db:     db,
		cache:  make(map[string]cachedKey),
		logger: slog.Default().With("component", "apikey-validator"),
	}
}

// EnsureSchema creates the api_keys table if it does not exist.
func (v *Validator) EnsureSchema(ctx context.Context) error {
	if _, err := v.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating api_keys schema: %w", err)
	}
	return nil
}

// Validate checks a raw API key. It returns KeyInfo on success, or
// ErrInvalidKey / ErrExpiredKey. Hits are cached for cacheTTL.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	hash := HashKey(rawKey)

	v.mu.RLock()
	cached, ok := v.cache[hash]
	v.mu.RUnlock()
	if ok && time.Now().Before(cached.expires) {
		if cached.info.ExpiresAt != nil && cached.info.ExpiresAt.Before(time.Now()) {
			return nil, ErrExpiredKey
		}
		info := cached.info
		return &info, nil
	}

	var info KeyInfo
	var expiresAt sql.NullTime
	err := v.db.DB.QueryRowContext(ctx,
		`SELECT id, name, rate_limit, is_active, created_at, expires_at
		 FROM api_keys
		 WHERE key_hash = $1 AND is_active = true`,
		hash,
	).Scan(&info.ID, &info.Name, &info.RateLimit, &info.IsActive, &info.CreatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	if expiresAt.Valid {
		if expiresAt.Time.Before(time.Now()) {
			return nil, ErrExpiredKey
		}
		info.ExpiresAt = &expiresAt.Time
	}

	v.mu.Lock()
	v.cache[hash] = cachedKey{info: info, expires: time.Now().Add(cacheTTL)}
	v.mu.Unlock()

	return &info, nil
}

// CreateKey generates a key, stores its hash, and returns the raw key.
// The raw key cannot be retrieved again.
func (v *Validator) CreateKey(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, error) {
	rawKey := generateRawKey()
	hash := HashKey(rawKey)

	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	_, err := v.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, name, rate_limit, expires_at) VALUES ($1, $2, $3, $4)`,
		hash, name, rateLimit, expiry,
	)
	if err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}
	v.logger.Info("api key created", "name", name, "rate_limit", rateLimit)
	return rawKey, nil
}

// RevokeKey deactivates a key and drops it from the cache.
func (v *Validator) RevokeKey(ctx context.Context, rawKey string) error {
	hash := HashKey(rawKey)

	result, err := v.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE key_hash = $1`,
		hash,
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInvalidKey
	}

	v.mu.Lock()
	delete(v.cache, hash)
	v.mu.Unlock()

	v.logger.Info("api key revoked")
	return nil
}

// ListKeys returns all active keys without hashes.
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := v.db.DB.QueryContext(ctx,
		`SELECT id, name, rate_limit, is_active, created_at, expires_at
		 FROM api_keys WHERE is_active = true ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		var k KeyInfo
		var expiresAt sql.NullTime
		if err := rows.Scan(&k.ID, &k.Name, &k.RateLimit, &k.IsActive, &k.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// HashKey returns the SHA-256 hex digest of a raw API key.
func HashKey(raw string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(raw)))
}

func generateRawKey() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return "ofts_" + hex.EncodeToString(b)
}
