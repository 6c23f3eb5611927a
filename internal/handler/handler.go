package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/chorechart/internal/chore"
	"github.com/dukerupert/chorechart/internal/middleware"
	"github.com/dukerupert/chorechart/internal/model"
	"github.com/dukerupert/chorechart/internal/websocket"
)

func parseIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("id must be positive")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"v": model.SchemaVersion, "error": msg})
}

// writeInputError maps validation failures to 400 with the field named.
func writeInputError(w http.ResponseWriter, err error) {
	var ve *chore.ValidationError
	var me *model.MalformedError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]any{"v": model.SchemaVersion, "error": ve.Error(), "field": ve.Field})
	case errors.As(err, &me):
		writeJSON(w, http.StatusBadRequest, map[string]any{"v": model.SchemaVersion, "error": me.Error(), "field": me.Field})
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func broadcast(hub websocket.Broadcaster, msg websocket.Message) {
	if hub != nil {
		hub.Broadcast(msg)
	}
}

// requestLogger tags logger with the request id set by middleware.RequestLogger.
func requestLogger(logger *slog.Logger, r *http.Request) *slog.Logger {
	if id := middleware.RequestID(r.Context()); id != "" {
		return logger.With("request_id", id)
	}
	return logger
}
