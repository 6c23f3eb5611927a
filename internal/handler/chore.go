package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/chorechart/internal/model"
	"github.com/dukerupert/chorechart/internal/store"
	"github.com/dukerupert/chorechart/internal/websocket"
)

type ChoreHandler struct {
	store  *store.ChoreStore
	hub    websocket.Broadcaster
	logger *slog.Logger
}

func NewChoreHandler(s *store.ChoreStore, hub websocket.Broadcaster, logger *slog.Logger) *ChoreHandler {
	return &ChoreHandler{store: s, hub: hub, logger: logger.With("component", "chore_handler")}
}

type choreRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Frequency   model.Frequency `json:"frequency"`
}

func (req *choreRequest) validate() error {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if req.Frequency == "" {
		req.Frequency = model.FrequencyDaily
	}
	return model.Chore{Title: req.Title, Description: req.Description, Frequency: req.Frequency}.Validate()
}

func (h *ChoreHandler) List(w http.ResponseWriter, r *http.Request) {
	chores, err := h.store.List()
	if err != nil {
		requestLogger(h.logger, r).Error("list chores", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list chores")
		return
	}
	if chores == nil {
		chores = []model.Chore{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"v": model.SchemaVersion, "chores": chores})
}

func (h *ChoreHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req choreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := req.validate(); err != nil {
		writeInputError(w, err)
		return
	}

	c, err := h.store.Create(req.Title, req.Description, req.Frequency)
	if err != nil {
		requestLogger(h.logger, r).Error("create chore", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create chore")
		return
	}

	broadcast(h.hub, websocket.NewMessage(websocket.EntityChore, websocket.ActionCreated, c.ID, nil))
	writeJSON(w, http.StatusCreated, c)
}

func (h *ChoreHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.store.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get chore")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "chore not found")
		return
	}

	var req choreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := req.validate(); err != nil {
		writeInputError(w, err)
		return
	}

	c, err := h.store.Update(id, req.Title, req.Description, req.Frequency)
	if err != nil {
		requestLogger(h.logger, r).Error("update chore", "chore_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update chore")
		return
	}

	broadcast(h.hub, websocket.NewMessage(websocket.EntityChore, websocket.ActionUpdated, id, nil))
	writeJSON(w, http.StatusOK, c)
}

// Delete removes the chore and, through the foreign key, every assignment of it.
func (h *ChoreHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.store.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get chore")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "chore not found")
		return
	}

	if err := h.store.Delete(id); err != nil {
		requestLogger(h.logger, r).Error("delete chore", "chore_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete chore")
		return
	}

	broadcast(h.hub, websocket.NewMessage(websocket.EntityChore, websocket.ActionDeleted, id, nil))
	w.WriteHeader(http.StatusNoContent)
}
