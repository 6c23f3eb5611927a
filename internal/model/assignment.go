package model

import "time"

type AssignmentStatus string

const (
	StatusPending AssignmentStatus = "pending"
	StatusDone    AssignmentStatus = "done"
)

func (s AssignmentStatus) Valid() bool {
	return s == StatusPending || s == StatusDone
}

// Toggle returns the opposite status. Anything that is not done toggles to done.
func (s AssignmentStatus) Toggle() AssignmentStatus {
	if s == StatusDone {
		return StatusPending
	}
	return StatusDone
}

// Assignment ties a kid to a chore on one day. Date is the normalized
// start-of-day instant the assignment was created with.
type Assignment struct {
	ID        int64            `json:"id"`
	KidID     int64            `json:"kid_id"`
	ChoreID   int64            `json:"chore_id"`
	Date      time.Time        `json:"date"`
	Status    AssignmentStatus `json:"status"`
	DedupKey  string           `json:"dedup_key,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (a Assignment) Validate() error {
	if a.KidID <= 0 {
		return &MalformedError{Entity: "assignment", Field: "kid_id", Reason: "is required"}
	}
	if a.ChoreID <= 0 {
		return &MalformedError{Entity: "assignment", Field: "chore_id", Reason: "is required"}
	}
	if a.Date.IsZero() {
		return &MalformedError{Entity: "assignment", Field: "date", Reason: "is required"}
	}
	if !a.Status.Valid() {
		return &MalformedError{Entity: "assignment", Field: "status", Reason: "must be pending or done, got " + string(a.Status)}
	}
	return nil
}
