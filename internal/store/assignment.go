package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/chorechart/internal/chore"
	"github.com/dukerupert/chorechart/internal/model"
)

var ErrAssignmentNotFound = errors.New("assignment not found")

// AssignmentStore is the persistent side of the assignment engine: it
// implements chore.Creator and chore.Updater.
type AssignmentStore struct {
	db *sql.DB
}

func NewAssignmentStore(db *sql.DB) *AssignmentStore {
	return &AssignmentStore{db: db}
}

// AssignmentFilter narrows List. Nil fields match everything.
type AssignmentFilter struct {
	KidID  *int64
	Window *chore.Window
}

const assignmentCols = `id, kid_id, chore_id, date, status, dedup_key, created_at, updated_at`

func scanAssignment(scanner interface{ Scan(...any) error }) (*model.Assignment, error) {
	var a model.Assignment
	var dedupKey sql.NullString
	err := scanner.Scan(&a.ID, &a.KidID, &a.ChoreID, &a.Date, &a.Status, &dedupKey, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if dedupKey.Valid {
		a.DedupKey = dedupKey.String
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAssignment inserts one assignment. A request whose dedup key is
// already stored returns the existing row instead of a duplicate.
func (s *AssignmentStore) CreateAssignment(ctx context.Context, req chore.Request) (*model.Assignment, error) {
	candidate := model.Assignment{KidID: req.KidID, ChoreID: req.ChoreID, Date: req.Date, Status: req.Status}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	var dedupKey sql.NullString
	if req.DedupKey != "" {
		dedupKey = sql.NullString{String: req.DedupKey, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (kid_id, chore_id, date, status, dedup_key) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(dedup_key) DO NOTHING`,
		req.KidID, req.ChoreID, req.Date.UTC(), req.Status, dedupKey,
	)
	if err != nil {
		return nil, fmt.Errorf("insert assignment: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return s.getByDedupKey(ctx, req.DedupKey)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// UpdateAssignmentStatus sets the status of one assignment.
func (s *AssignmentStore) UpdateAssignmentStatus(ctx context.Context, id int64, status model.AssignmentStatus) (*model.Assignment, error) {
	if !status.Valid() {
		return nil, &model.MalformedError{Entity: "assignment", Field: "status", Reason: "must be pending or done, got " + string(status)}
	}

	result, err := s.db.ExecContext(ctx, `UPDATE assignments SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return nil, fmt.Errorf("update assignment status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrAssignmentNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *AssignmentStore) GetByID(ctx context.Context, id int64) (*model.Assignment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (s *AssignmentStore) getByDedupKey(ctx context.Context, key string) (*model.Assignment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE dedup_key = ?`, key)
	a, err := scanAssignment(row)
	if err != nil {
		return nil, fmt.Errorf("get assignment by dedup key: %w", err)
	}
	return a, nil
}

// List returns assignments matching filter ordered by date then id.
func (s *AssignmentStore) List(ctx context.Context, filter AssignmentFilter) ([]model.Assignment, error) {
	var where []string
	var args []any
	if filter.KidID != nil {
		where = append(where, "kid_id = ?")
		args = append(args, *filter.KidID)
	}
	if filter.Window != nil {
		where = append(where, "date >= ? AND date <= ?")
		args = append(args, filter.Window.Start.UTC(), filter.Window.End.UTC())
	}

	query := `SELECT ` + assignmentCols + ` FROM assignments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}
