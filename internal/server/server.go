package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorechart/internal/avatar"
	"github.com/dukerupert/chorechart/internal/chore"
	"github.com/dukerupert/chorechart/internal/config"
	"github.com/dukerupert/chorechart/internal/database"
	"github.com/dukerupert/chorechart/internal/handler"
	"github.com/dukerupert/chorechart/internal/middleware"
	"github.com/dukerupert/chorechart/internal/model"
	"github.com/dukerupert/chorechart/internal/storage"
	"github.com/dukerupert/chorechart/internal/store"
	ws "github.com/dukerupert/chorechart/internal/websocket"
)

type Server struct {
	db       *sql.DB
	hub      *ws.Hub
	kidH     *handler.KidHandler
	choreH   *handler.ChoreHandler
	assignH  *handler.AssignmentHandler
	resolver *avatar.Resolver
	logger   *slog.Logger
}

// New wires stores, the assignment engine and the photo resolver onto db.
// assets may be nil when no bucket is configured.
func New(db *sql.DB, cfg *config.Config, assets *storage.Assets, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger)

	kidStore := store.NewKidStore(db)
	choreStore := store.NewChoreStore(db)
	assignmentStore := store.NewAssignmentStore(db)

	var urls avatar.AssetURLResolver
	var deleter handler.AssetDeleter
	if assets != nil {
		urls, deleter = assets, assets
	}
	resolver := avatar.NewResolver(cfg.Avatar, urls, logger.With("component", "avatar"))
	writer := chore.NewBatchWriter(assignmentStore, cfg.BatchConcurrency, logger.With("component", "batch"))

	return &Server{
		db:       db,
		hub:      hub,
		kidH:     handler.NewKidHandler(kidStore, resolver, deleter, hub, logger),
		choreH:   handler.NewChoreHandler(choreStore, hub, logger),
		assignH:  handler.NewAssignmentHandler(assignmentStore, kidStore, choreStore, writer, resolver, hub, cfg.Location, logger),
		resolver: resolver,
		logger:   logger,
	}
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, nil))

	// Kids
	mux.HandleFunc("GET /api/kids", s.kidH.List)
	mux.HandleFunc("POST /api/kids", s.kidH.Create)
	mux.HandleFunc("PUT /api/kids/{id}", s.kidH.Update)
	mux.HandleFunc("DELETE /api/kids/{id}", s.kidH.Delete)
	mux.HandleFunc("GET /api/kids/{id}/photo", s.kidH.Photo)

	// Chores
	mux.HandleFunc("GET /api/chores", s.choreH.List)
	mux.HandleFunc("POST /api/chores", s.choreH.Create)
	mux.HandleFunc("PUT /api/chores/{id}", s.choreH.Update)
	mux.HandleFunc("DELETE /api/chores/{id}", s.choreH.Delete)

	// Assignments and progress
	mux.HandleFunc("GET /api/assign/options", s.assignH.Options)
	mux.HandleFunc("POST /api/assignments/batch", s.assignH.Batch)
	mux.HandleFunc("POST /api/assignments/{id}/toggle", s.assignH.Toggle)
	mux.HandleFunc("GET /api/kids/progress", s.assignH.Dashboard)
	mux.HandleFunc("GET /api/kids/{id}/progress", s.assignH.KidProgress)
	mux.HandleFunc("GET /api/kids/{id}/assignments", s.assignH.KidAssignments)

	httpLogger := s.logger.With("component", "http")
	return middleware.RequestLogger(httpLogger)(middleware.Recover(httpLogger)(mux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	version, err := database.Version(ctx, s.db)
	if err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"v":          model.SchemaVersion,
		"status":     status,
		"db_version": version,
		"clients":    s.hub.ClientCount(),
	})
}
