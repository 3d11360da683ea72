// Package handler implements the API gateway endpoints. Writes and
// searches proxy to the backing services; document metadata is read
// straight from PostgreSQL, and index administration goes over the
// searcher's internal RPC interface.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/openfts/openfts/internal/auth/apikey"
	"github.com/openfts/openfts/internal/ingestion/store"
	apperrors "github.com/openfts/openfts/pkg/errors"
	"github.com/openfts/openfts/pkg/grpc"
	"github.com/openfts/openfts/pkg/proto"
)

// IndexAdmin exposes the searcher's internal index operations. Satisfied
// by *grpc.Client; nil disables the admin index endpoints.
type IndexAdmin interface {
	Call(method string, params any, result any) error
}

type Handler struct {
	ingestionProxy *httputil.ReverseProxy
	searchProxy    *httputil.ReverseProxy
	analyticsProxy *httputil.ReverseProxy
	documents      *store.Store
	keys           *apikey.Validator
	indexAdmin     IndexAdmin
	logger         *slog.Logger
}

func New(ingestionURL, searcherURL, analyticsURL string, documents *store.Store, keys *apikey.Validator, indexAdmin IndexAdmin) *Handler {
	return &Handler{
		ingestionProxy: newProxy(ingestionURL),
		searchProxy:    newProxy(searcherURL),
		analyticsProxy: newProxy(analyticsURL),
		documents:      documents,
		keys:           keys,
		indexAdmin:     indexAdmin,
		logger:         slog.Default().With("component", "gateway-handler"),
	}
}

func newProxy(target string) *httputil.ReverseProxy {
	u, err := url.Parse(target)
	if err != nil {
		slog.Default().Error("invalid proxy target", "target", target, "error", err)
		u = &url.URL{Scheme: "http", Host: "localhost"}
	}
	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		slog.Default().Error("proxy error", "target", target, "path", r.URL.Path, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "upstream unavailable"})
	}
	return proxy
}

// Write operations go to the ingestion service.

func (h *Handler) ProxyIngest(w http.ResponseWriter, r *http.Request) {
	h.ingestionProxy.ServeHTTP(w, r)
}

// Queries go to the searcher.

func (h *Handler) ProxySearch(w http.ResponseWriter, r *http.Request) {
	h.searchProxy.ServeHTTP(w, r)
}

func (h *Handler) ProxySuggest(w http.ResponseWriter, r *http.Request) {
	h.searchProxy.ServeHTTP(w, r)
}

func (h *Handler) ProxyCache(w http.ResponseWriter, r *http.Request) {
	h.searchProxy.ServeHTTP(w, r)
}

func (h *Handler) ProxyAnalytics(w http.ResponseWriter, r *http.Request) {
	h.analyticsProxy.ServeHTTP(w, r)
}

// GetDocument reads one document's metadata and fields from PostgreSQL.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "document id is required")
		return
	}
	doc, err := h.documents.Get(r.Context(), id)
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		h.writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to fetch document", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to fetch document")
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// ListDocuments returns a page of document metadata, newest first.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := parseQueryInt(r, "limit", 20, 100)
	offset := parseQueryInt(r, "offset", 0, 1<<30)

	docs, err := h.documents.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list documents", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"count":     len(docs),
		"limit":     limit,
		"offset":    offset,
	})
}

// IndexStats handles GET /admin/index/stats over the searcher RPC.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	var resp proto.StatsResponse
	if !h.callIndex(w, "index.stats", &proto.StatsRequest{}, &resp) {
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// IndexCheckpoint handles POST /admin/index/checkpoint.
func (h *Handler) IndexCheckpoint(w http.ResponseWriter, r *http.Request) {
	var resp proto.CheckpointResponse
	if !h.callIndex(w, "index.checkpoint", &proto.CheckpointRequest{}, &resp) {
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// IndexRebuild handles POST /admin/index/rebuild. The searcher re-reads
// every live document from the store; this can take a while on a large
// corpus.
func (h *Handler) IndexRebuild(w http.ResponseWriter, r *http.Request) {
	var resp proto.RebuildResponse
	if !h.callIndex(w, "index.rebuild", &proto.RebuildRequest{}, &resp) {
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) callIndex(w http.ResponseWriter, method string, params, result any) bool {
	if h.indexAdmin == nil {
		h.writeError(w, http.StatusServiceUnavailable, "index administration is not configured")
		return false
	}
	if err := h.indexAdmin.Call(method, params, result); err != nil {
		h.logger.Error("index rpc failed", "method", method, "error", err)
		h.writeError(w, http.StatusBadGateway, "index operation failed")
		return false
	}
	return true
}

// CreateAPIKey mints a key and returns the raw value exactly once.
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		RateLimit int    `json:"rate_limit"`
		ExpiresIn string `json:"expires_in,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.RateLimit <= 0 {
		req.RateLimit = 100
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid expires_in duration")
			return
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	key, err := h.keys.CreateKey(r.Context(), req.Name, req.RateLimit, expiresAt)
	if err != nil {
		h.logger.Error("failed to create api key", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create api key")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{
		"api_key": key,
		"name":    req.Name,
		"message": "store this key securely, it cannot be retrieved again",
	})
}

func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListKeys(r.Context())
	if err != nil {
		h.logger.Error("failed to list api keys", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list api keys")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"keys": keys, "count": len(keys)})
}

// RevokeAPIKey deactivates the key presented in the request body.
func (h *Handler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		h.writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	if err := h.keys.RevokeKey(r.Context(), req.Key); err != nil {
		if errors.Is(err, apikey.ErrInvalidKey) {
			h.writeError(w, http.StatusNotFound, "key not found")
			return
		}
		h.logger.Error("failed to revoke api key", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to revoke api key")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "gateway"})
}

func parseQueryInt(r *http.Request, name string, fallback, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 || parsed > max {
		return fallback
	}
	return parsed
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

var _ IndexAdmin = (*grpc.Client)(nil)
