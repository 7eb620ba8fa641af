// Package state implements the session scratchpad: a designated task inside
// the task graph whose note log holds named variables. The interface looks
// mutable (SetVariable / ReadState) but history is never rewritten; current
// values are a last-write-wins reduction over the append-only log.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	graphx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/graph"
)

// Var names a tracked session variable.
type Var string

const (
	VarCustomer   Var = "CUSTOMER"
	VarIntent     Var = "INTENT"
	VarOrder      Var = "ORDER"
	VarTicketID   Var = "TICKET_ID"
	VarConfidence Var = "CONFIDENCE"
	VarRetryCount Var = "RETRY_COUNT"
	VarPriority   Var = "PRIORITY"
)

// TrackerSubject is the subject of the designated tracker task.
const TrackerSubject = "Session state"

var (
	ErrNoTracker        = errors.New("graph has no tracker task")
	ErrRetryCountLowers = errors.New("retry count may not decrease")
)

// Entry is one audited write to the variable log.
type Entry struct {
	Name  Var       `json:"name"`
	Value string    `json:"value"`
	At    time.Time `json:"-"`
}

// Tracker wraps a graph's designated state task. It is exempt from
// dependency rules and writable at any point in the interaction.
type Tracker struct {
	graph *graphx.TaskGraph
}

// Ensure returns the graph's tracker, creating the designated task on first
// use. Exactly one tracker exists per session.
func Ensure(g *graphx.TaskGraph, now time.Time) (*Tracker, error) {
	if g == nil {
		return nil, errors.New("nil task graph")
	}
	if g.TrackerID != "" {
		if _, ok := g.Get(g.TrackerID); ok {
			return &Tracker{graph: g}, nil
		}
		return nil, fmt.Errorf("%w: stale tracker id %s", ErrNoTracker, g.TrackerID)
	}

	task := g.CreateTask(TrackerSubject, "", now)
	g.TrackerID = task.ID
	return &Tracker{graph: g}, nil
}

// Open wraps an existing tracker without creating one.
func Open(g *graphx.TaskGraph) (*Tracker, error) {
	if g == nil || g.TrackerID == "" {
		return nil, ErrNoTracker
	}
	if _, ok := g.Get(g.TrackerID); !ok {
		return nil, fmt.Errorf("%w: stale tracker id %s", ErrNoTracker, g.TrackerID)
	}
	return &Tracker{graph: g}, nil
}

// TaskID returns the id of the designated tracker task.
func (t *Tracker) TaskID() string {
	return t.graph.TrackerID
}

// SetVariable appends a new entry; it never mutates history. Writing the
// same value twice is harmless.
func (t *Tracker) SetVariable(name Var, value string, now time.Time) error {
	if name == "" {
		return errors.New("variable name is empty")
	}
	payload, err := json.Marshal(Entry{Name: name, Value: value})
	if err != nil {
		return fmt.Errorf("marshal state entry: %w", err)
	}
	return t.graph.AppendNote(t.graph.TrackerID, string(payload), now)
}

// SetRetryCount guards the monotonic retry counter.
func (t *Tracker) SetRetryCount(n int, now time.Time) error {
	if n < t.RetryCount() {
		return fmt.Errorf("%w: %d < %d", ErrRetryCountLowers, n, t.RetryCount())
	}
	return t.SetVariable(VarRetryCount, strconv.Itoa(n), now)
}

// ReadState reduces the log to the current value of every variable.
func (t *Tracker) ReadState() map[Var]string {
	out := make(map[Var]string)
	for _, e := range t.entries() {
		out[e.Name] = e.Value
	}
	return out
}

// Get returns the current value of one variable.
func (t *Tracker) Get(name Var) (string, bool) {
	var (
		value string
		found bool
	)
	for _, e := range t.entries() {
		if e.Name == name {
			value = e.Value
			found = true
		}
	}
	return value, found
}

// History returns every recorded write for a variable, oldest first.
func (t *Tracker) History(name Var) []Entry {
	var out []Entry
	for _, e := range t.entries() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// RetryCount parses RETRY_COUNT, defaulting to zero.
func (t *Tracker) RetryCount() int {
	raw, ok := t.Get(VarRetryCount)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Snapshot returns the current state keyed by plain strings, for handing to
// collaborators.
func (t *Tracker) Snapshot() map[string]string {
	st := t.ReadState()
	out := make(map[string]string, len(st))
	for k, v := range st {
		out[string(k)] = v
	}
	return out
}

func (t *Tracker) entries() []Entry {
	task, ok := t.graph.Get(t.graph.TrackerID)
	if !ok {
		return nil
	}
	entries := make([]Entry, 0, len(task.Notes))
	for _, note := range task.Notes {
		var e Entry
		if err := json.Unmarshal([]byte(note.Text), &e); err != nil || e.Name == "" {
			// Not a variable entry; free-text notes are allowed on the
			// tracker like any other task.
			continue
		}
		e.At = note.At
		entries = append(entries, e)
	}
	return entries
}
