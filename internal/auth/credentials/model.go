package credentials

import (
	"fmt"
	"strings"
	"time"
)

// User is a local account row. Roles and profile claims live in their
// own tables and are loaded on demand.
type User struct {
	ID             string
	Username       string
	Email          string
	EmailConfirmed bool
	CreatedAt      time.Time
}

// FieldError describes a single rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries the structured field errors surfaced to the
// registration caller. It is the only error type whose content reaches
// the HTTP response.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}
