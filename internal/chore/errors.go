package chore

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownAssignment = errors.New("assignment not found")
	ErrToggleInFlight    = errors.New("assignment toggle already in flight")
)

// ValidationError rejects an assignment selection before any work is done.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RemoteWriteError is a single failed create or status update.
type RemoteWriteError struct {
	Op           string
	AssignmentID int64
	Err          error
}

func (e *RemoteWriteError) Error() string {
	if e.AssignmentID != 0 {
		return fmt.Sprintf("%s assignment %d: %v", e.Op, e.AssignmentID, e.Err)
	}
	return fmt.Sprintf("%s assignment: %v", e.Op, e.Err)
}

func (e *RemoteWriteError) Unwrap() error {
	return e.Err
}
