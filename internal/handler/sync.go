package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tmorriss/larder/internal/model"
	"github.com/tmorriss/larder/internal/store"
)

// SyncHandler serves the health, data, and sync endpoints.
type SyncHandler struct {
	snapshots *store.SnapshotStore
	logger    *slog.Logger
}

func NewSyncHandler(snapshots *store.SnapshotStore, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{snapshots: snapshots, logger: logger}
}

// Health responds to connectivity probes. Clients treat a timeout here as
// "offline", not as an error.
func (h *SyncHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// GetData returns the full authoritative snapshot.
func (h *SyncHandler) GetData(w http.ResponseWriter, r *http.Request) {
	data, updatedAt, err := h.snapshots.Get()
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no data found")
		return
	}
	if err != nil {
		h.logger.Error("get data", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get data")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":      data,
		"updatedAt": updatedAt,
	})
}

type syncRequest struct {
	Data       *model.AppData `json:"data"`
	LastSynced *time.Time     `json:"lastSynced"`
}

// Sync runs one reconciliation round against the client's snapshot.
// Malformed input fails the whole call; a merge is never partially
// applied.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Data == nil {
		writeError(w, http.StatusBadRequest, "missing data")
		return
	}
	if err := req.Data.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid snapshot: "+err.Error())
		return
	}

	merged, updatedAt, err := h.snapshots.Sync(req.Data, req.LastSynced)
	if err != nil {
		h.logger.Error("sync", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to sync data")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":      merged,
		"updatedAt": updatedAt,
	})
}
