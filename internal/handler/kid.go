package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/chorechart/internal/avatar"
	"github.com/dukerupert/chorechart/internal/model"
	"github.com/dukerupert/chorechart/internal/storage"
	"github.com/dukerupert/chorechart/internal/store"
	"github.com/dukerupert/chorechart/internal/websocket"
)

// AssetDeleter removes an uploaded photo from the asset store.
type AssetDeleter interface {
	Delete(ctx context.Context, assetID string) error
}

type KidHandler struct {
	store    *store.KidStore
	resolver *avatar.Resolver
	assets   AssetDeleter
	hub      websocket.Broadcaster
	logger   *slog.Logger
}

func NewKidHandler(s *store.KidStore, resolver *avatar.Resolver, assets AssetDeleter, hub websocket.Broadcaster, logger *slog.Logger) *KidHandler {
	return &KidHandler{store: s, resolver: resolver, assets: assets, hub: hub, logger: logger.With("component", "kid_handler")}
}

type kidRequest struct {
	Name            string `json:"name"`
	PhotoRef        string `json:"photo_ref"`
	IsDefaultAvatar bool   `json:"is_default_avatar"`
}

type kidResponse struct {
	model.Kid
	PhotoURL string `json:"photo_url"`
}

func (h *KidHandler) withPhotos(ctx context.Context, kids []model.Kid) []kidResponse {
	out := make([]kidResponse, len(kids))
	for i, res := range h.resolver.ResolveAll(ctx, kids) {
		out[i] = kidResponse{Kid: kids[i], PhotoURL: res.URL}
	}
	return out
}

func (h *KidHandler) List(w http.ResponseWriter, r *http.Request) {
	kids, err := h.store.List()
	if err != nil {
		requestLogger(h.logger, r).Error("list kids", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list kids")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"v": model.SchemaVersion, "kids": h.withPhotos(r.Context(), kids)})
}

// validate trims the request and settles the photo fields.
func (h *KidHandler) validate(req *kidRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.PhotoRef, req.IsDefaultAvatar = h.resolver.NormalizeSelection(req.PhotoRef, req.IsDefaultAvatar)
	return model.Kid{Name: req.Name, PhotoRef: req.PhotoRef, IsDefaultAvatar: req.IsDefaultAvatar}.Validate()
}

func (h *KidHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req kidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.validate(&req); err != nil {
		writeInputError(w, err)
		return
	}

	exists, err := h.store.NameExists(req.Name, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check name")
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "a kid with that name already exists")
		return
	}

	kid, err := h.store.Create(req.Name, req.PhotoRef, req.IsDefaultAvatar)
	if err != nil {
		requestLogger(h.logger, r).Error("create kid", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create kid")
		return
	}

	broadcast(h.hub, websocket.NewMessage(websocket.EntityKid, websocket.ActionCreated, kid.ID, nil))
	writeJSON(w, http.StatusCreated, kidResponse{Kid: *kid, PhotoURL: h.resolver.Resolve(r.Context(), *kid)})
}

func (h *KidHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.store.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get kid")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "kid not found")
		return
	}

	var req kidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.validate(&req); err != nil {
		writeInputError(w, err)
		return
	}

	exists, err := h.store.NameExists(req.Name, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check name")
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "a kid with that name already exists")
		return
	}

	kid, err := h.store.Update(id, req.Name, req.PhotoRef, req.IsDefaultAvatar)
	if err != nil {
		requestLogger(h.logger, r).Error("update kid", "kid_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update kid")
		return
	}

	if existing.PhotoRef != kid.PhotoRef {
		h.removeAsset(context.WithoutCancel(r.Context()), requestLogger(h.logger, r), *existing)
	}

	broadcast(h.hub, websocket.NewMessage(websocket.EntityKid, websocket.ActionUpdated, id, nil).ForKid(id))
	writeJSON(w, http.StatusOK, kidResponse{Kid: *kid, PhotoURL: h.resolver.Resolve(r.Context(), *kid)})
}

func (h *KidHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.store.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get kid")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "kid not found")
		return
	}

	if err := h.store.Delete(id); err != nil {
		requestLogger(h.logger, r).Error("delete kid", "kid_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete kid")
		return
	}
	h.removeAsset(context.WithoutCancel(r.Context()), requestLogger(h.logger, r), *existing)

	broadcast(h.hub, websocket.NewMessage(websocket.EntityKid, websocket.ActionDeleted, id, nil).ForKid(id))
	w.WriteHeader(http.StatusNoContent)
}

// Photo returns the display URL for one kid. It always answers with a URL.
func (h *KidHandler) Photo(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	kid, err := h.store.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get kid")
		return
	}
	if kid == nil {
		writeError(w, http.StatusNotFound, "kid not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"v":      model.SchemaVersion,
		"kid_id": kid.ID,
		"url":    h.resolver.Resolve(r.Context(), *kid),
	})
}

// removeAsset deletes the uploaded photo of kid, if it had one. Failures are
// logged only; the kid record is already gone or changed.
func (h *KidHandler) removeAsset(ctx context.Context, logger *slog.Logger, kid model.Kid) {
	if h.assets == nil || kid.IsDefaultAvatar || kid.PhotoRef == "" || h.resolver.IsBuiltin(kid.PhotoRef) {
		return
	}
	err := h.assets.Delete(ctx, kid.PhotoRef)
	switch {
	case err == nil:
		logger.Info("photo asset removed", "kid_id", kid.ID, "asset_id", kid.PhotoRef)
	case errors.Is(err, storage.ErrNotConfigured):
	default:
		logger.Warn("remove photo asset", "kid_id", kid.ID, "asset_id", kid.PhotoRef, "error", err)
	}
}
