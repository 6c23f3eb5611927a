package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/chorechart/internal/model"
)

type KidStore struct {
	db *sql.DB
}

func NewKidStore(db *sql.DB) *KidStore {
	return &KidStore{db: db}
}

const kidCols = `id, name, photo_ref, is_default_avatar, created_at, updated_at`

func scanKid(scanner interface{ Scan(...any) error }) (*model.Kid, error) {
	var k model.Kid
	if err := scanner.Scan(&k.ID, &k.Name, &k.PhotoRef, &k.IsDefaultAvatar, &k.CreatedAt, &k.UpdatedAt); err != nil {
		return nil, err
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *KidStore) Create(name, photoRef string, isDefaultAvatar bool) (*model.Kid, error) {
	result, err := s.db.Exec(
		"INSERT INTO kids (name, photo_ref, is_default_avatar) VALUES (?, ?, ?)",
		name, photoRef, isDefaultAvatar,
	)
	if err != nil {
		return nil, fmt.Errorf("insert kid: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(id)
}

func (s *KidStore) List() ([]model.Kid, error) {
	rows, err := s.db.Query("SELECT " + kidCols + " FROM kids ORDER BY name ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("query kids: %w", err)
	}
	defer rows.Close()

	var kids []model.Kid
	for rows.Next() {
		k, err := scanKid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan kid: %w", err)
		}
		kids = append(kids, *k)
	}
	return kids, rows.Err()
}

func (s *KidStore) GetByID(id int64) (*model.Kid, error) {
	row := s.db.QueryRow("SELECT "+kidCols+" FROM kids WHERE id = ?", id)
	k, err := scanKid(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query kid: %w", err)
	}
	return k, nil
}

func (s *KidStore) Update(id int64, name, photoRef string, isDefaultAvatar bool) (*model.Kid, error) {
	_, err := s.db.Exec(
		"UPDATE kids SET name = ?, photo_ref = ?, is_default_avatar = ? WHERE id = ?",
		name, photoRef, isDefaultAvatar, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update kid: %w", err)
	}
	return s.GetByID(id)
}

// Delete removes the kid; their assignments go with them.
func (s *KidStore) Delete(id int64) error {
	_, err := s.db.Exec("DELETE FROM kids WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete kid: %w", err)
	}
	return nil
}

func (s *KidStore) NameExists(name string, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM kids WHERE name = ? AND id != ?",
		name, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check name exists: %w", err)
	}
	return count > 0, nil
}
