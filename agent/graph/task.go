package graph

import (
	"strings"
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Note is one entry in a task's append-only description log.
type Note struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Task is an atomic workflow step. Tasks are never deleted and their note
// log is append-only.
type Task struct {
	ID        string     `json:"id"`
	Subject   string     `json:"subject"`
	Status    TaskStatus `json:"status"`
	Notes     []Note     `json:"notes,omitempty"`
	DependsOn []string   `json:"depends_on,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Description flattens the note log into a single readable string.
func (t *Task) Description() string {
	if t == nil || len(t.Notes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(t.Notes))
	for _, n := range t.Notes {
		parts = append(parts, n.Text)
	}
	return strings.Join(parts, "\n")
}

func (t *Task) dependsOn(id string) bool {
	for _, dep := range t.DependsOn {
		if dep == id {
			return true
		}
	}
	return false
}
