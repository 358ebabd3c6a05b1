package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tmorriss/larder/internal/model"
	"github.com/tmorriss/larder/internal/share"
	"github.com/tmorriss/larder/internal/store"
)

// ShareHandler serves the capability-link endpoints.
type ShareHandler struct {
	registry *share.Registry
	logger   *slog.Logger
}

func NewShareHandler(registry *share.Registry, logger *slog.Logger) *ShareHandler {
	return &ShareHandler{registry: registry, logger: logger}
}

type generateRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Generate issues (idempotently) a share token for one list or recipe.
func (h *ShareHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Type == "" || req.ID == "" {
		writeError(w, http.StatusBadRequest, "missing type or id")
		return
	}
	if !model.ValidShareType(req.Type) {
		writeError(w, http.StatusBadRequest, "unknown share type")
		return
	}

	token, err := h.registry.Issue(req.Type, req.ID)
	if err != nil {
		h.logger.Error("issue share token", "type", req.Type, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate share token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Get resolves a share link and returns the live entity.
func (h *ShareHandler) Get(w http.ResponseWriter, r *http.Request) {
	shareType := r.PathValue("type")
	token := r.PathValue("token")

	entity, itemID, err := h.registry.Read(shareType, token)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "share link not found")
		return
	}
	if err != nil {
		h.logger.Error("read shared entity", "type", shareType, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get shared item")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": entity,
		"id":   itemID,
	})
}

type shareUpdateRequest struct {
	Data json.RawMessage `json:"data"`
}

// Update replaces the shared entity and broadcasts the new value to the
// share's relay room.
func (h *ShareHandler) Update(w http.ResponseWriter, r *http.Request) {
	shareType := r.PathValue("type")
	token := r.PathValue("token")

	var req shareUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Data) == 0 {
		writeError(w, http.StatusBadRequest, "missing data")
		return
	}

	err := h.registry.Write(shareType, token, req.Data)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "share link not found")
	case errors.Is(err, share.ErrInvalidEntity):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error("update shared entity", "type", shareType, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update shared item")
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
