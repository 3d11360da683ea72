// Package handler exposes the ingestion HTTP API: document create, upsert,
// delete, fetch, and list.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/openfts/openfts/internal/ingestion"
	"github.com/openfts/openfts/internal/ingestion/publisher"
	"github.com/openfts/openfts/internal/ingestion/store"
	"github.com/openfts/openfts/internal/ingestion/validator"
	apperrors "github.com/openfts/openfts/pkg/errors"
	"github.com/openfts/openfts/pkg/logger"
)

type Handler struct {
	publisher *publisher.Publisher
	store     *store.Store
	logger    *slog.Logger
}

func New(pub *publisher.Publisher, st *store.Store) *Handler {
	return &Handler{
		publisher: pub,
		store:     st,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Create handles POST /documents.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAndValidate(w, r)
	if !ok {
		return
	}
	resp, err := h.publisher.Create(r.Context(), req)
	if err != nil {
		h.writeAppError(w, r, "create failed", err)
		return
	}
	logger.FromContext(r.Context()).Info("document created",
		"doc_id", resp.DocumentID, "shard_id", resp.ShardID)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// Upsert handles PUT /documents/{id}.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	id := h.documentID(w, r)
	if id == "" {
		return
	}
	req, ok := h.decodeAndValidate(w, r)
	if !ok {
		return
	}
	resp, err := h.publisher.Upsert(r.Context(), id, req)
	if err != nil {
		h.writeAppError(w, r, "upsert failed", err)
		return
	}
	logger.FromContext(r.Context()).Info("document upserted",
		"doc_id", resp.DocumentID, "shard_id", resp.ShardID)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// Delete handles DELETE /documents/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := h.documentID(w, r)
	if id == "" {
		return
	}
	resp, err := h.publisher.Delete(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, "delete failed", err)
		return
	}
	logger.FromContext(r.Context()).Info("document deleted", "doc_id", id)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// Get handles GET /documents/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := h.documentID(w, r)
	if id == "" {
		return
	}
	doc, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeAppError(w, r, "fetch failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// List handles GET /documents?limit=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	docs, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.writeAppError(w, r, "list failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"count":     len(docs),
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// documentID extracts the trailing path element. Writes a 400 and returns
// "" when the path carries no id.
func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) string {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	id := parts[len(parts)-1]
	if id == "" || id == "documents" {
		h.writeError(w, http.StatusBadRequest, "missing document id")
		return ""
	}
	return id
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request) (*ingestion.IngestRequest, bool) {
	var req ingestion.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if err := validator.ValidateIngestRequest(&req); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return nil, false
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &req, true
}

func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := apperrors.HTTPStatusCode(err)
	logger.FromContext(r.Context()).Error(msg, "error", err, "status_code", status)
	if status == http.StatusNotFound {
		h.writeError(w, status, "document not found")
		return
	}
	h.writeError(w, status, msg)
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
