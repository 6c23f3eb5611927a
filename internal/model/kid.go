package model

import "time"

// Kid is a child profile. PhotoRef is a built-in avatar path when
// IsDefaultAvatar is set, otherwise an asset-store object key.
type Kid struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	PhotoRef        string    `json:"photo_ref"`
	IsDefaultAvatar bool      `json:"is_default_avatar"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (k Kid) Validate() error {
	if k.ID < 0 {
		return &MalformedError{Entity: "kid", Field: "id", Reason: "must not be negative"}
	}
	if k.Name == "" {
		return &MalformedError{Entity: "kid", Field: "name", Reason: "is required"}
	}
	if k.IsDefaultAvatar && k.PhotoRef == "" {
		return &MalformedError{Entity: "kid", Field: "photo_ref", Reason: "default avatar without a path"}
	}
	return nil
}
