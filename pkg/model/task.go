package model

import (
	"errors"
	"fmt"
	"time"
)

// Status is the kanban column a task sits in.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Statuses lists every valid status in board order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// DefaultTitle is shown for tasks stored without a title.
const DefaultTitle = "Untitled"

var ErrInvalidStatus = errors.New("invalid task status")

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ParseStatus validates a status string. An empty string is todo.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusTodo, nil
	}
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// Task is a to-do item backed by a single calendar event.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Labels      []string   `json:"labels"`
	Due         *time.Time `json:"due"`
	Updated     time.Time  `json:"updated"`
}

// ClampProgress keeps a percentage within [0, 100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// DueDate returns the due date as YYYY-MM-DD in the zone Due carries, or ""
// when there is none.
func (t Task) DueDate() string {
	if t.Due == nil {
		return ""
	}
	return t.Due.Format(time.DateOnly)
}
