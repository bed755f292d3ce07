package notification

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a notification record does not exist.
	ErrNotFound = errors.New("notification not found")

	// ErrAlreadyExists is returned when creating a record with an id that is already stored.
	ErrAlreadyExists = errors.New("notification already exists")
)

// ValidationError collects per-field submission problems. It is returned
// before anything is persisted or enqueued, and is never retried.
type ValidationError map[string][]string

// Add appends a message for the given field.
func (e ValidationError) Add(field, message string) {
	e[field] = append(e[field], message)
}

func (e ValidationError) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(e[f], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
