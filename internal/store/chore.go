package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/chorechart/internal/model"
)

type ChoreStore struct {
	db *sql.DB
}

func NewChoreStore(db *sql.DB) *ChoreStore {
	return &ChoreStore{db: db}
}

func scanChore(scanner interface{ Scan(...any) error }) (*model.Chore, error) {
	var c model.Chore
	if err := scanner.Scan(&c.ID, &c.Title, &c.Description, &c.Frequency, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

const choreCols = `id, title, description, frequency, created_at, updated_at`

func (s *ChoreStore) Create(title, description string, frequency model.Frequency) (*model.Chore, error) {
	result, err := s.db.Exec(
		`INSERT INTO chores (title, description, frequency) VALUES (?, ?, ?)`,
		title, description, frequency,
	)
	if err != nil {
		return nil, fmt.Errorf("insert chore: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ChoreStore) GetByID(id int64) (*model.Chore, error) {
	row := s.db.QueryRow(`SELECT `+choreCols+` FROM chores WHERE id = ?`, id)
	c, err := scanChore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore: %w", err)
	}
	return c, nil
}

func (s *ChoreStore) List() ([]model.Chore, error) {
	rows, err := s.db.Query(`SELECT ` + choreCols + ` FROM chores ORDER BY title ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}
	defer rows.Close()

	var chores []model.Chore
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chore: %w", err)
		}
		chores = append(chores, *c)
	}
	return chores, rows.Err()
}

// ListByIDs returns the chores keyed by id. Unknown ids are skipped.
func (s *ChoreStore) ListByIDs(ids []int64) (map[int64]model.Chore, error) {
	out := make(map[int64]model.Chore, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.Query(
		`SELECT `+choreCols+` FROM chores WHERE id IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list chores by id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chore: %w", err)
		}
		out[c.ID] = *c
	}
	return out, rows.Err()
}

func (s *ChoreStore) Update(id int64, title, description string, frequency model.Frequency) (*model.Chore, error) {
	_, err := s.db.Exec(
		`UPDATE chores SET title = ?, description = ?, frequency = ? WHERE id = ?`,
		title, description, frequency, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update chore: %w", err)
	}
	return s.GetByID(id)
}

// Delete removes the chore and every assignment of it.
func (s *ChoreStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM chores WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chore: %w", err)
	}
	return nil
}
