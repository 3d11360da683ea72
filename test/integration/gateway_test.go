// Package integration verifies the gateway wiring end to end: real router,
// middleware chain, and API-key storage against a live PostgreSQL, with the
// upstream services replaced by httptest backends.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/openfts/openfts/internal/auth/apikey"
	"github.com/openfts/openfts/internal/auth/ratelimit"
	gwhandler "github.com/openfts/openfts/internal/gateway/handler"
	"github.com/openfts/openfts/internal/gateway/router"
	"github.com/openfts/openfts/internal/ingestion/store"
	"github.com/openfts/openfts/pkg/config"
	"github.com/openfts/openfts/pkg/postgres"
)

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	db, err := postgres.New(testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "openfts_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "openfts"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// newGatewayServer builds a gateway over dummy upstream backends. The
// returned validator is the one wired into the auth middleware, so key
// revocations in tests invalidate its cache immediately.
func newGatewayServer(t *testing.T, db *postgres.Client) (*httptest.Server, *apikey.Validator) {
	t.Helper()

	ingestionBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"document_id": "doc-1",
			"status":      "PENDING",
			"shard_id":    0,
		})
	}))
	t.Cleanup(ingestionBackend.Close)

	searchBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"query":      r.URL.Query().Get("q"),
			"total_hits": 0,
			"results":    []any{},
		})
	}))
	t.Cleanup(searchBackend.Close)

	validator := apikey.NewValidator(db)
	if err := validator.EnsureSchema(t.Context()); err != nil {
		t.Fatalf("ensuring api key schema: %v", err)
	}
	limiter := ratelimit.New(time.Minute)
	t.Cleanup(limiter.Close)

	h := gwhandler.New(ingestionBackend.URL, searchBackend.URL, searchBackend.URL, store.New(db), validator, nil)
	srv := httptest.NewServer(router.New(h, validator, limiter))
	t.Cleanup(srv.Close)
	return srv, validator
}

// TestHealthEndpoint verifies the gateway health check is reachable
// without an API key.
func TestHealthEndpoint(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv, _ := newGatewayServer(t, db)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", body["status"])
	}
}

// TestUnauthenticatedRequestRejected verifies that API endpoints reject
// requests carrying no API key.
func TestUnauthenticatedRequestRejected(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv, _ := newGatewayServer(t, db)

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/search?q=test"},
		{"GET", "/api/v1/documents"},
		{"GET", "/api/v1/analytics"},
	}
	for _, ep := range endpoints {
		req, _ := http.NewRequest(ep.method, srv.URL+ep.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: request failed: %v", ep.method, ep.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", ep.method, ep.path, resp.StatusCode)
		}
	}
}

// TestAPIKeyLifecycle creates a key, searches with it, revokes it, and
// verifies the revoked key no longer authenticates.
func TestAPIKeyLifecycle(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv, validator := newGatewayServer(t, db)

	rawKey, err := validator.CreateKey(t.Context(), "integration-test", 100, nil)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}

	req, _ := http.NewRequest("GET", srv.URL+"/api/v1/search?q=hello", nil)
	req.Header.Set("X-API-Key", rawKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("search request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	if err := validator.RevokeKey(t.Context(), rawKey); err != nil {
		t.Fatalf("revoking key: %v", err)
	}

	req2, _ := http.NewRequest("GET", srv.URL+"/api/v1/search?q=hello", nil)
	req2.Header.Set("X-API-Key", rawKey)
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("search request after revoke failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after revoke, got %d", resp2.StatusCode)
	}
}

// TestDocumentIngestProxy verifies document ingestion is proxied through
// the gateway to the ingestion backend.
func TestDocumentIngestProxy(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv, validator := newGatewayServer(t, db)

	rawKey, err := validator.CreateKey(t.Context(), "ingest-test", 100, nil)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}

	payload := map[string]any{
		"fields": map[string]string{
			"title": "Test Document",
			"body":  "This is a test document for integration testing.",
		},
	}
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequest("POST", srv.URL+"/api/v1/documents", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", rawKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ingest request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, respBody)
	}
}

// TestRateLimiting verifies the gateway enforces per-key rate limits.
func TestRateLimiting(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv, validator := newGatewayServer(t, db)

	rawKey, err := validator.CreateKey(t.Context(), "ratelimit-test", 2, nil)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest("GET", srv.URL+"/api/v1/search?q=test", nil)
		req.Header.Set("X-API-Key", rawKey)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	req, _ := http.NewRequest("GET", srv.URL+"/api/v1/search?q=test", nil)
	req.Header.Set("X-API-Key", rawKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("rate limit request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.StatusCode)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
