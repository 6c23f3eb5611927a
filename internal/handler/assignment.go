package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukerupert/chorechart/internal/avatar"
	"github.com/dukerupert/chorechart/internal/chore"
	"github.com/dukerupert/chorechart/internal/model"
	"github.com/dukerupert/chorechart/internal/store"
	"github.com/dukerupert/chorechart/internal/websocket"
)

type AssignmentHandler struct {
	assignments *store.AssignmentStore
	updater     chore.Updater
	kids        *store.KidStore
	chores      *store.ChoreStore
	writer      *chore.BatchWriter
	resolver    *avatar.Resolver
	hub         websocket.Broadcaster
	loc         *time.Location
	logger      *slog.Logger
	now         func() time.Time

	batching atomic.Bool

	mu       sync.Mutex
	toggling map[int64]struct{}
}

func NewAssignmentHandler(
	as *store.AssignmentStore,
	ks *store.KidStore,
	cs *store.ChoreStore,
	writer *chore.BatchWriter,
	resolver *avatar.Resolver,
	hub websocket.Broadcaster,
	loc *time.Location,
	logger *slog.Logger,
) *AssignmentHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AssignmentHandler{
		assignments: as,
		updater:     as,
		kids:        ks,
		chores:      cs,
		writer:      writer,
		resolver:    resolver,
		hub:         hub,
		loc:         loc,
		logger:      logger.With("component", "assignment_handler"),
		now:         time.Now,
		toggling:    make(map[int64]struct{}),
	}
}

type batchRequest struct {
	KidIDs   []int64 `json:"kid_ids"`
	ChoreIDs []int64 `json:"chore_ids"`
	Date     string  `json:"date"`
}

type batchFailure struct {
	KidID   int64  `json:"kid_id"`
	ChoreID int64  `json:"chore_id"`
	Error   string `json:"error"`
}

type batchResponse struct {
	Version      int                `json:"v"`
	Outcome      chore.Outcome      `json:"outcome"`
	Total        int                `json:"total"`
	SuccessCount int                `json:"success_count"`
	Created      []model.Assignment `json:"created"`
	Failures     []batchFailure     `json:"failures"`
	chore.Summary
}

// Batch assigns every selected chore to every selected kid for one date.
// Only one batch runs at a time; a second submit while one is in flight is
// refused rather than queued.
func (h *AssignmentHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	reqs, err := chore.Expand(req.KidIDs, req.ChoreIDs, req.Date, h.loc)
	if err != nil {
		writeInputError(w, err)
		return
	}

	if !h.batching.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "an assignment batch is already in progress")
		return
	}
	defer h.batching.Store(false)

	// A client that goes away mid-batch must not cut the batch short.
	res := h.writer.WriteAll(context.WithoutCancel(r.Context()), reqs)
	requestLogger(h.logger, r).Info("assignment batch",
		"total", res.Total,
		"succeeded", res.SuccessCount,
		"outcome", res.Outcome(),
	)

	resp := batchResponse{
		Version:      model.SchemaVersion,
		Outcome:      res.Outcome(),
		Total:        res.Total,
		SuccessCount: res.SuccessCount,
		Created:      res.Created,
		Failures:     make([]batchFailure, 0, len(res.Failures)),
		Summary:      res.Summary(),
	}
	if resp.Created == nil {
		resp.Created = []model.Assignment{}
	}
	for _, f := range res.Failures {
		resp.Failures = append(resp.Failures, batchFailure{KidID: f.Request.KidID, ChoreID: f.Request.ChoreID, Error: f.Message()})
	}

	status := http.StatusCreated
	if resp.Outcome == chore.OutcomeFailure {
		status = http.StatusInternalServerError
	} else {
		broadcast(h.hub, websocket.NewMessage(websocket.EntityAssignment, websocket.ActionBatch, 0, map[string]any{
			"kid_ids": uniqueKids(res.Created),
			"created": res.SuccessCount,
		}))
	}
	writeJSON(w, status, resp)
}

func uniqueKids(assignments []model.Assignment) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, a := range assignments {
		if !seen[a.KidID] {
			seen[a.KidID] = true
			ids = append(ids, a.KidID)
		}
	}
	return ids
}

// claim marks id as being toggled. It reports false when another request
// already holds it.
func (h *AssignmentHandler) claim(id int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.toggling[id]; busy {
		return false
	}
	h.toggling[id] = struct{}{}
	return true
}

func (h *AssignmentHandler) release(id int64) {
	h.mu.Lock()
	delete(h.toggling, id)
	h.mu.Unlock()
}

type toggleResponse struct {
	Version int `json:"v"`
	chore.ToggleOutcome
	Assignment model.Assignment `json:"assignment"`
}

// Toggle flips one assignment between pending and done. The kid's progress
// for that day is recomputed against the local board both on confirm and on
// rollback.
func (h *AssignmentHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	a, err := h.assignments.GetByID(r.Context(), id)
	if err != nil {
		requestLogger(h.logger, r).Error("get assignment", "assignment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get assignment")
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "assignment not found")
		return
	}

	if !h.claim(id) {
		writeError(w, http.StatusConflict, chore.ErrToggleInFlight.Error())
		return
	}
	defer h.release(id)

	window := chore.DayWindow(a.Date, h.loc)
	day, err := h.assignments.List(r.Context(), store.AssignmentFilter{KidID: &a.KidID, Window: &window})
	if err != nil {
		requestLogger(h.logger, r).Error("list assignments", "kid_id", a.KidID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load assignments")
		return
	}

	rec := chore.NewReconciler(chore.NewBoard(day, &window), h.updater, requestLogger(h.logger, r))
	outcome, err := rec.Toggle(context.WithoutCancel(r.Context()), id)
	switch {
	case errors.Is(err, chore.ErrUnknownAssignment):
		writeError(w, http.StatusNotFound, "assignment not found")
		return
	case errors.Is(err, chore.ErrToggleInFlight):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to toggle assignment")
		return
	}

	current, _ := rec.Board().Get(id)
	resp := toggleResponse{Version: model.SchemaVersion, ToggleOutcome: outcome, Assignment: current}
	if outcome.Result == chore.ResultReverted {
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	broadcast(h.hub, websocket.NewMessage(websocket.EntityAssignment, websocket.ActionToggled, id, map[string]any{
		"status":  outcome.Status,
		"percent": outcome.Progress.Percent,
	}).ForKid(a.KidID))
	writeJSON(w, http.StatusOK, resp)
}

// window reads ?date= or ?start=&end= and defaults to today.
func (h *AssignmentHandler) window(r *http.Request) (chore.Window, error) {
	q := r.URL.Query()
	start, end := q.Get("start"), q.Get("end")
	if start == "" && end == "" {
		if date := q.Get("date"); date != "" {
			d, err := chore.ParseDate(date, h.loc)
			if err != nil {
				return chore.Window{}, err
			}
			return chore.DayWindow(d, h.loc), nil
		}
		return chore.DayWindow(h.now(), h.loc), nil
	}
	if start == "" || end == "" {
		return chore.Window{}, &chore.ValidationError{Field: "window", Reason: "start and end must be given together"}
	}
	s, err := parseBound("start", start, h.loc)
	if err != nil {
		return chore.Window{}, err
	}
	e, err := parseBound("end", end, h.loc)
	if err != nil {
		return chore.Window{}, err
	}
	if e.Before(s) {
		return chore.Window{}, &chore.ValidationError{Field: "window", Reason: "end is before start"}
	}
	return chore.Window{Start: chore.DayWindow(s, h.loc).Start, End: chore.DayWindow(e, h.loc).End}, nil
}

func parseBound(field, value string, loc *time.Location) (time.Time, error) {
	t, err := chore.ParseDate(value, loc)
	var ve *chore.ValidationError
	if errors.As(err, &ve) {
		return time.Time{}, &chore.ValidationError{Field: field, Reason: ve.Reason}
	}
	return t, err
}

// KidProgress reports one kid's completion for a day or date range.
func (h *AssignmentHandler) KidProgress(w http.ResponseWriter, r *http.Request) {
	kid, ok := h.kidFromPath(w, r)
	if !ok {
		return
	}
	window, err := h.window(r)
	if err != nil {
		writeInputError(w, err)
		return
	}

	list, err := h.assignments.List(r.Context(), store.AssignmentFilter{KidID: &kid.ID, Window: &window})
	if err != nil {
		requestLogger(h.logger, r).Error("list assignments", "kid_id", kid.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load assignments")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Version int `json:"v"`
		chore.Progress
	}{model.SchemaVersion, chore.ProgressFor(list, kid.ID, &window)})
}

type dashboardRow struct {
	Kid      model.Kid      `json:"kid"`
	PhotoURL string         `json:"photo_url"`
	Progress chore.Progress `json:"progress"`
}

// Dashboard lists every kid with their photo and completion for the day.
func (h *AssignmentHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	window, err := h.window(r)
	if err != nil {
		writeInputError(w, err)
		return
	}

	kids, err := h.kids.List()
	if err != nil {
		requestLogger(h.logger, r).Error("list kids", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list kids")
		return
	}
	list, err := h.assignments.List(r.Context(), store.AssignmentFilter{Window: &window})
	if err != nil {
		requestLogger(h.logger, r).Error("list assignments", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load assignments")
		return
	}

	byKid := chore.ProgressByKid(list, &window)
	photos := h.resolver.ResolveAll(r.Context(), kids)
	rows := make([]dashboardRow, len(kids))
	for i, k := range kids {
		p, ok := byKid[k.ID]
		if !ok {
			p = chore.Progress{KidID: k.ID, Window: &window}
		}
		rows[i] = dashboardRow{Kid: k, PhotoURL: photos[i].URL, Progress: p}
	}

	writeJSON(w, http.StatusOK, map[string]any{"v": model.SchemaVersion, "window": window, "kids": rows})
}

type kidAssignment struct {
	model.Assignment
	ChoreTitle       string `json:"chore_title"`
	ChoreDescription string `json:"chore_description"`
}

// KidAssignments lists a kid's assignments for a day with chore details.
func (h *AssignmentHandler) KidAssignments(w http.ResponseWriter, r *http.Request) {
	kid, ok := h.kidFromPath(w, r)
	if !ok {
		return
	}
	window, err := h.window(r)
	if err != nil {
		writeInputError(w, err)
		return
	}

	list, err := h.assignments.List(r.Context(), store.AssignmentFilter{KidID: &kid.ID, Window: &window})
	if err != nil {
		requestLogger(h.logger, r).Error("list assignments", "kid_id", kid.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load assignments")
		return
	}

	choreIDs := make([]int64, 0, len(list))
	for _, a := range list {
		choreIDs = append(choreIDs, a.ChoreID)
	}
	chores, err := h.chores.ListByIDs(choreIDs)
	if err != nil {
		requestLogger(h.logger, r).Error("list chores", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load chores")
		return
	}

	rows := make([]kidAssignment, 0, len(list))
	for _, a := range list {
		c := chores[a.ChoreID]
		rows = append(rows, kidAssignment{Assignment: a, ChoreTitle: c.Title, ChoreDescription: c.Description})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"v":           model.SchemaVersion,
		"kid":         kid,
		"photo_url":   h.resolver.Resolve(r.Context(), *kid),
		"progress":    chore.ProgressFor(list, kid.ID, &window),
		"assignments": rows,
	})
}

// Options returns the kids and chores to choose from when assigning.
func (h *AssignmentHandler) Options(w http.ResponseWriter, r *http.Request) {
	kids, err := h.kids.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list kids")
		return
	}
	chores, err := h.chores.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list chores")
		return
	}
	if kids == nil {
		kids = []model.Kid{}
	}
	if chores == nil {
		chores = []model.Chore{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"v":      model.SchemaVersion,
		"today":  chore.NormalizeDate(h.now(), h.loc).Format(time.DateOnly),
		"kids":   kids,
		"chores": chores,
	})
}

func (h *AssignmentHandler) kidFromPath(w http.ResponseWriter, r *http.Request) (*model.Kid, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	kid, err := h.kids.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get kid")
		return nil, false
	}
	if kid == nil {
		writeError(w, http.StatusNotFound, "kid not found")
		return nil, false
	}
	return kid, true
}
