package model

import "fmt"

// SchemaVersion is stamped on every JSON envelope the API writes.
const SchemaVersion = 1

// MalformedError reports a record that violates the data model, either read
// back from the database or decoded from a request body.
type MalformedError struct {
	Entity string
	Field  string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s: %s %s", e.Entity, e.Field, e.Reason)
}
