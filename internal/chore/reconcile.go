package chore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/chorechart/internal/model"
)

// Updater writes a status change for one assignment.
type Updater interface {
	UpdateAssignmentStatus(ctx context.Context, id int64, status model.AssignmentStatus) (*model.Assignment, error)
}

// Board owns the locally visible assignments for one view (a kid's day, the
// household dashboard). Every status change recomputes progress before the
// lock is released, so statuses and percentages never disagree.
type Board struct {
	mu          sync.Mutex
	window      *Window
	assignments []model.Assignment
	index       map[int64]int
	inFlight    map[int64]struct{}
}

func NewBoard(assignments []model.Assignment, window *Window) *Board {
	b := &Board{
		window:      window,
		assignments: make([]model.Assignment, len(assignments)),
		index:       make(map[int64]int, len(assignments)),
		inFlight:    make(map[int64]struct{}),
	}
	copy(b.assignments, assignments)
	for i, a := range b.assignments {
		b.index[a.ID] = i
	}
	return b
}

// ApplyOptimistic flips the status of id locally and marks it in flight.
// It returns the status before the flip and the kid's recomputed progress.
func (b *Board) ApplyOptimistic(id int64) (model.AssignmentStatus, Progress, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, ok := b.index[id]
	if !ok {
		return "", Progress{}, ErrUnknownAssignment
	}
	if _, busy := b.inFlight[id]; busy {
		return "", Progress{}, ErrToggleInFlight
	}

	prev := b.assignments[i].Status
	b.assignments[i].Status = prev.Toggle()
	b.inFlight[id] = struct{}{}
	return prev, ProgressFor(b.assignments, b.assignments[i].KidID, b.window), nil
}

// Confirm settles an optimistic change. When the store echoed the record
// back, the local copy is replaced with it.
func (b *Board) Confirm(id int64, remote *model.Assignment) Progress {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.inFlight, id)
	i, ok := b.index[id]
	if !ok {
		return Progress{}
	}
	if remote != nil && remote.ID == id && remote.Status.Valid() {
		b.assignments[i] = *remote
	}
	return ProgressFor(b.assignments, b.assignments[i].KidID, b.window)
}

// Revert restores prev on id and recomputes.
func (b *Board) Revert(id int64, prev model.AssignmentStatus) Progress {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.inFlight, id)
	i, ok := b.index[id]
	if !ok {
		return Progress{}
	}
	b.assignments[i].Status = prev
	return ProgressFor(b.assignments, b.assignments[i].KidID, b.window)
}

func (b *Board) Progress(kidID int64) Progress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ProgressFor(b.assignments, kidID, b.window)
}

func (b *Board) ProgressByKid() map[int64]Progress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ProgressByKid(b.assignments, b.window)
}

func (b *Board) Get(id int64) (model.Assignment, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.index[id]
	if !ok {
		return model.Assignment{}, false
	}
	return b.assignments[i], true
}

// Assignments returns a copy of the local collection.
func (b *Board) Assignments() []model.Assignment {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Assignment, len(b.assignments))
	copy(out, b.assignments)
	return out
}

type Result string

const (
	ResultConfirmed Result = "confirmed"
	ResultReverted  Result = "reverted"
)

type ToggleOutcome struct {
	AssignmentID int64                  `json:"assignment_id"`
	Result       Result                 `json:"status"`
	Status       model.AssignmentStatus `json:"assignment_status"`
	Reason       string                 `json:"reason,omitempty"`
	Progress     Progress               `json:"progress"`
}

// Reconciler toggles assignment statuses optimistically against a Board and
// rolls back when the store rejects the change.
type Reconciler struct {
	board   *Board
	updater Updater
	logger  *slog.Logger
}

func NewReconciler(board *Board, updater Updater, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{board: board, updater: updater, logger: logger}
}

func (r *Reconciler) Board() *Board {
	return r.board
}

// Toggle flips one assignment. A store failure is not an error: the local
// change is undone and the outcome is ResultReverted with the reason. An
// error is returned only when nothing was changed (unknown id, toggle
// already in flight).
//
// The store write is not cancelled with ctx, so the local board always
// settles to what the store holds.
func (r *Reconciler) Toggle(ctx context.Context, id int64) (ToggleOutcome, error) {
	ctx = context.WithoutCancel(ctx)
	prev, _, err := r.board.ApplyOptimistic(id)
	if err != nil {
		return ToggleOutcome{}, err
	}
	next := prev.Toggle()

	remote, err := r.update(ctx, id, next)
	if err != nil {
		progress := r.board.Revert(id, prev)
		r.logger.Warn("assignment toggle reverted", "assignment_id", id, "status", prev, "error", err)
		return ToggleOutcome{
			AssignmentID: id,
			Result:       ResultReverted,
			Status:       prev,
			Reason:       err.Error(),
			Progress:     progress,
		}, nil
	}

	progress := r.board.Confirm(id, remote)
	status := next
	if a, ok := r.board.Get(id); ok {
		status = a.Status
	}
	r.logger.Debug("assignment toggle confirmed", "assignment_id", id, "status", status)
	return ToggleOutcome{
		AssignmentID: id,
		Result:       ResultConfirmed,
		Status:       status,
		Progress:     progress,
	}, nil
}

func (r *Reconciler) update(ctx context.Context, id int64, status model.AssignmentStatus) (a *model.Assignment, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			a = nil
			err = &RemoteWriteError{Op: "update", AssignmentID: id, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	a, err = r.updater.UpdateAssignmentStatus(ctx, id, status)
	if err != nil {
		return nil, &RemoteWriteError{Op: "update", AssignmentID: id, Err: err}
	}
	return a, nil
}
