package chore

import (
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/chorechart/internal/model"
)

const dateLayout = "2006-01-02"

// Request is one assignment to create.
type Request struct {
	KidID    int64                  `json:"kid_id"`
	ChoreID  int64                  `json:"chore_id"`
	Date     time.Time              `json:"date"`
	Status   model.AssignmentStatus `json:"status"`
	DedupKey string                 `json:"dedup_key,omitempty"`
}

// Expand builds the kid × chore cross product for a single day. Inputs are
// validated up front; on error no requests are returned.
func Expand(kidIDs, choreIDs []int64, date string, loc *time.Location) ([]Request, error) {
	kids, err := uniqueIDs("kid_ids", kidIDs)
	if err != nil {
		return nil, err
	}
	if len(kids) == 0 {
		return nil, &ValidationError{Field: "kid_ids", Reason: "no kids selected"}
	}
	chores, err := uniqueIDs("chore_ids", choreIDs)
	if err != nil {
		return nil, err
	}
	if len(chores) == 0 {
		return nil, &ValidationError{Field: "chore_ids", Reason: "no chores selected"}
	}
	day, err := ParseDate(date, loc)
	if err != nil {
		return nil, err
	}

	reqs := make([]Request, 0, len(kids)*len(chores))
	for _, kidID := range kids {
		for _, choreID := range chores {
			reqs = append(reqs, Request{
				KidID:   kidID,
				ChoreID: choreID,
				Date:    day,
				Status:  model.StatusPending,
			})
		}
	}
	return reqs, nil
}

// ParseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp and
// returns the normalized start of that day in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &ValidationError{Field: "date", Reason: "assignment date is missing"}
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return NormalizeDate(t, loc), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: "expected YYYY-MM-DD or RFC 3339, got " + s}
	}
	return NormalizeDate(t, loc), nil
}

// NormalizeDate maps t to midnight of its calendar day in loc. Assignment
// dates are written and queried through this, so both sides agree on the
// instant.
func NormalizeDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func uniqueIDs(field string, ids []int64) ([]int64, error) {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, &ValidationError{Field: field, Reason: fmt.Sprintf("invalid id %d", id)}
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
