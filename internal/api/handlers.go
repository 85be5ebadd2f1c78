package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/studiokit/studiokit/internal/store"
	syncpkg "github.com/studiokit/studiokit/internal/sync"
	"github.com/studiokit/studiokit/internal/types"
	"github.com/studiokit/studiokit/internal/validation"
)

// Handler implements the local control API. The process serves a
// single owner; ownerID scopes every cache read and enqueued mutation.
type Handler struct {
	store        *store.CacheStore
	orchestrator *syncpkg.Orchestrator
	ownerID      string
	version      string
}

// NewHandler creates a new Handler.
func NewHandler(s *store.CacheStore, o *syncpkg.Orchestrator, ownerID, version string) *Handler {
	return &Handler{
		store:        s,
		orchestrator: o,
		ownerID:      ownerID,
		version:      version,
	}
}

// HealthResponse is the GET /api/v1/health body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Online  bool   `json:"online"`
}

// SyncStatusResponse is the GET /api/v1/sync/status body.
type SyncStatusResponse struct {
	Online            bool       `json:"online"`
	PendingOperations int        `json:"pending_operations"`
	LastPullTime      *time.Time `json:"last_pull_time"`
}

// OperationRequest is the POST /api/v1/operations body.
type OperationRequest struct {
	Type       string          `json:"type"`
	Collection string          `json:"collection"`
	TargetID   string          `json:"target_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// CollectionResponse is the GET /api/v1/collections/{collection} body.
type CollectionResponse struct {
	Collection string            `json:"collection"`
	Count      int               `json:"count"`
	Rows       []json.RawMessage `json:"rows"`
}

// Health returns the process health and connectivity state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: h.version,
		Online:  h.orchestrator.Online(),
	})
}

// SyncStatus handles GET /api/v1/sync/status.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := h.orchestrator.PendingOperationsCount(r.Context())
	if err != nil {
		slog.Error("pending count failed", "error", err)
		MapSyncError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SyncStatusResponse{
		Online:            h.orchestrator.Online(),
		PendingOperations: pending,
		LastPullTime:      h.orchestrator.LastPullTime(),
	})
}

// SyncPull handles POST /api/v1/sync/pull. The pull runs to completion
// before the response is written.
func (h *Handler) SyncPull(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.PullNow(r.Context(), h.ownerID); err != nil {
		MapSyncError(w, r, err)
		return
	}

	pending, err := h.orchestrator.PendingOperationsCount(r.Context())
	if err != nil {
		MapSyncError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SyncStatusResponse{
		Online:            true,
		PendingOperations: pending,
		LastPullTime:      h.orchestrator.LastPullTime(),
	})
}

// SyncDrain handles POST /api/v1/sync/drain and reports the pass
// outcome.
func (h *Handler) SyncDrain(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orchestrator.DrainNow(r.Context())
	if err != nil {
		MapSyncError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// CreateOperation handles POST /api/v1/operations: one local mutation,
// applied speculatively and queued for replay.
func (h *Handler) CreateOperation(w http.ResponseWriter, r *http.Request) {
	var req OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	var c validation.Collector
	c.Add(validation.ValidateRequired("type", req.Type))
	c.Add(validation.ValidateEnum("type", req.Type,
		[]string{string(types.OpInsert), string(types.OpUpdate), string(types.OpDelete)}))
	c.Add(validation.ValidateRequired("collection", req.Collection))
	collectionNames := make([]string, len(types.Collections))
	for i, col := range types.Collections {
		collectionNames[i] = string(col)
	}
	c.Add(validation.ValidateEnum("collection", req.Collection, collectionNames))
	if req.Type != string(types.OpDelete) {
		c.Add(validation.ValidateJSONObject("payload", req.Payload))
	}
	if req.Type != string(types.OpInsert) {
		c.Add(validation.ValidateRequired("target_id", req.TargetID))
	}
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", c.Errors())
		return
	}

	op, err := h.orchestrator.Enqueue(r.Context(),
		types.OpType(req.Type), types.Collection(req.Collection),
		h.ownerID, req.Payload, req.TargetID)
	if err != nil {
		slog.Error("enqueue failed",
			"error", err,
			"op_type", req.Type,
			"collection", req.Collection,
		)
		MapSyncError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, op)
}

// ListCollection handles GET /api/v1/collections/{collection} and
// returns the cached rows for the owner, speculative writes included.
func (h *Handler) ListCollection(w http.ResponseWriter, r *http.Request) {
	collection := types.Collection(chi.URLParam(r, "collection"))
	if !collection.Valid() {
		WriteProblem(w, r, http.StatusNotFound, fmt.Sprintf("Unknown collection %q", collection))
		return
	}

	rows, err := h.store.ListRows(r.Context(), collection, h.ownerID)
	if err != nil {
		slog.Error("list collection failed", "collection", string(collection), "error", err)
		MapSyncError(w, r, err)
		return
	}

	payloads := make([]json.RawMessage, len(rows))
	for i, row := range rows {
		payloads[i] = row.Payload
	}

	writeJSON(w, http.StatusOK, CollectionResponse{
		Collection: string(collection),
		Count:      len(rows),
		Rows:       payloads,
	})
}

// ClearData handles DELETE /api/v1/data, the logout path: every cached
// row and queued operation for the owner is removed.
func (h *Handler) ClearData(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.ClearAll(r.Context(), h.ownerID); err != nil {
		slog.Error("clear data failed", "error", err)
		MapSyncError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
