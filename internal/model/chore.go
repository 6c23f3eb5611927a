package model

import "time"

// Frequency is informational; nothing schedules assignments from it.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

func (f Frequency) Valid() bool {
	return f == FrequencyDaily || f == FrequencyWeekly
}

type Chore struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Frequency   Frequency `json:"frequency"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c Chore) Validate() error {
	if c.ID < 0 {
		return &MalformedError{Entity: "chore", Field: "id", Reason: "must not be negative"}
	}
	if c.Title == "" {
		return &MalformedError{Entity: "chore", Field: "title", Reason: "is required"}
	}
	if !c.Frequency.Valid() {
		return &MalformedError{Entity: "chore", Field: "frequency", Reason: "must be daily or weekly"}
	}
	return nil
}
