package graph

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrUnknownTask            = errors.New("unknown task")
	ErrCycleDetected          = errors.New("dependency cycle detected")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrDependencyNotSatisfied = errors.New("dependency not satisfied")
)

// TaskGraph is the per-session task DAG and the single source of truth for
// "what step are we on". It is append-only: tasks are created, annotated and
// advanced, never removed. The graph's eventual shape is not known up front;
// tasks and edges are added reactively as branch decisions are made, so every
// mutation must leave a state that Resume can recover from.
type TaskGraph struct {
	SessionID string           `json:"session_id"`
	Tasks     map[string]*Task `json:"tasks"`
	Order     []string         `json:"order"`
	TrackerID string           `json:"tracker_id,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func NewTaskGraph(sessionID string, now time.Time) *TaskGraph {
	return &TaskGraph{
		SessionID: sessionID,
		Tasks:     make(map[string]*Task, 8),
		UpdatedAt: now.UTC(),
	}
}

func (g *TaskGraph) Touch(now time.Time) {
	g.UpdatedAt = now.UTC()
}

// EnsureMaps makes sure g.Tasks is initialized after deserialization.
func (g *TaskGraph) EnsureMaps() {
	if g.Tasks == nil {
		g.Tasks = make(map[string]*Task, 8)
	}
}

// Get returns a task by id.
func (g *TaskGraph) Get(taskID string) (*Task, bool) {
	if g == nil || g.Tasks == nil {
		return nil, false
	}
	t, ok := g.Tasks[taskID]
	return t, ok
}

// CreateTask allocates the next sequential id and adds a pending task with no
// dependencies. A non-empty description seeds the note log.
func (g *TaskGraph) CreateTask(subject, description string, now time.Time) *Task {
	g.EnsureMaps()

	task := &Task{
		ID:        g.nextID(),
		Subject:   subject,
		Status:    StatusPending,
		CreatedAt: now.UTC(),
	}
	if description != "" {
		task.Notes = []Note{{Text: description, At: now.UTC()}}
	}

	g.Tasks[task.ID] = task
	g.Order = append(g.Order, task.ID)
	g.Touch(now)
	return task
}

func (g *TaskGraph) nextID() string {
	n := len(g.Order) + 1
	for {
		id := strconv.Itoa(n)
		if _, exists := g.Tasks[id]; !exists {
			return id
		}
		n++
	}
}

// AddDependency records that taskID cannot start until dependsOnID completes.
// Adding an edge that would close a cycle is rejected; duplicate edges are
// no-ops.
func (g *TaskGraph) AddDependency(taskID, dependsOnID string) error {
	task, ok := g.Get(taskID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if _, ok := g.Get(dependsOnID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, dependsOnID)
	}
	if taskID == dependsOnID {
		return fmt.Errorf("%w: %s depends on itself", ErrCycleDetected, taskID)
	}
	if task.dependsOn(dependsOnID) {
		return nil
	}
	// The edge task->dependsOn closes a cycle iff task is already reachable
	// from dependsOn along existing dependency edges.
	if g.reachable(dependsOnID, taskID) {
		return fmt.Errorf("%w: %s -> %s", ErrCycleDetected, taskID, dependsOnID)
	}

	task.DependsOn = append(task.DependsOn, dependsOnID)
	return nil
}

func (g *TaskGraph) reachable(fromID, targetID string) bool {
	visited := make(map[string]bool, len(g.Tasks))
	stack := []string{fromID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == targetID {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		if t, ok := g.Tasks[id]; ok {
			stack = append(stack, t.DependsOn...)
		}
	}
	return false
}

// SetStatus advances a task. Legal transitions are pending->in_progress
// (gated on every dependency being completed) and in_progress->completed.
// The tracker task is exempt from the dependency gate.
func (g *TaskGraph) SetStatus(taskID string, status TaskStatus, now time.Time) error {
	task, ok := g.Get(taskID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %s -> %q", ErrInvalidTransition, task.Status, status)
	}

	switch {
	case task.Status == StatusPending && status == StatusInProgress:
		if taskID != g.TrackerID {
			for _, dep := range task.DependsOn {
				depTask, ok := g.Get(dep)
				if !ok {
					return fmt.Errorf("%w: %s", ErrUnknownTask, dep)
				}
				if depTask.Status != StatusCompleted {
					return fmt.Errorf("%w: task %s waits on %s (%s)", ErrDependencyNotSatisfied, taskID, dep, depTask.Status)
				}
			}
		}
	case task.Status == StatusInProgress && status == StatusCompleted:
		// unconditional
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, status)
	}

	task.Status = status
	g.Touch(now)
	return nil
}

// AppendNote appends to a task's note log without affecting its status.
func (g *TaskGraph) AppendNote(taskID, text string, now time.Time) error {
	task, ok := g.Get(taskID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	task.Notes = append(task.Notes, Note{Text: text, At: now.UTC()})
	g.Touch(now)
	return nil
}

// ListTasks returns tasks in creation order.
func (g *TaskGraph) ListTasks() []*Task {
	if g == nil {
		return nil
	}
	tasks := make([]*Task, 0, len(g.Order))
	for _, id := range g.Order {
		if t, ok := g.Tasks[id]; ok {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

// Resume is the deterministic recovery point: the earliest-created task that
// is pending or in_progress with every dependency completed. The tracker task
// is bookkeeping, never a workflow step, and is skipped. The second return is
// false when the interaction is finished or stalled.
func (g *TaskGraph) Resume() (string, bool) {
	if g == nil {
		return "", false
	}
	for _, id := range g.Order {
		if id == g.TrackerID {
			continue
		}
		task, ok := g.Tasks[id]
		if !ok {
			continue
		}
		if task.Status != StatusPending && task.Status != StatusInProgress {
			continue
		}
		ready := true
		for _, dep := range task.DependsOn {
			depTask, ok := g.Tasks[dep]
			if !ok || depTask.Status != StatusCompleted {
				ready = false
				break
			}
		}
		if ready {
			return id, true
		}
	}
	return "", false
}

// Validate checks the structural invariants a persisted graph must satisfy:
// map/order consistency, known statuses, resolvable dependency edges, and
// acyclicity.
func (g *TaskGraph) Validate() error {
	if g == nil {
		return errors.New("nil task graph")
	}
	if g.SessionID == "" {
		return errors.New("task graph has empty session id")
	}
	if len(g.Order) != len(g.Tasks) {
		return fmt.Errorf("order/tasks mismatch: %d vs %d", len(g.Order), len(g.Tasks))
	}
	for _, id := range g.Order {
		task, ok := g.Tasks[id]
		if !ok {
			return fmt.Errorf("%w: order references %s", ErrUnknownTask, id)
		}
		if !task.Status.Valid() {
			return fmt.Errorf("task %s has invalid status %q", id, task.Status)
		}
		for _, dep := range task.DependsOn {
			if _, ok := g.Tasks[dep]; !ok {
				return fmt.Errorf("%w: task %s depends on %s", ErrUnknownTask, id, dep)
			}
		}
	}
	if g.TrackerID != "" {
		if _, ok := g.Tasks[g.TrackerID]; !ok {
			return fmt.Errorf("%w: tracker %s", ErrUnknownTask, g.TrackerID)
		}
	}
	return g.checkAcyclic()
}

func (g *TaskGraph) checkAcyclic() error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Tasks))

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = grey
		task := g.Tasks[id]
		for _, dep := range task.DependsOn {
			switch color[dep] {
			case grey:
				return fmt.Errorf("%w: via %s -> %s", ErrCycleDetected, id, dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, id := range g.Order {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clone returns a deep copy, so stores can hand out graphs without aliasing
// their internal state.
func (g *TaskGraph) Clone() *TaskGraph {
	if g == nil {
		return nil
	}
	out := &TaskGraph{
		SessionID: g.SessionID,
		Tasks:     make(map[string]*Task, len(g.Tasks)),
		Order:     append([]string(nil), g.Order...),
		TrackerID: g.TrackerID,
		UpdatedAt: g.UpdatedAt,
	}
	for id, t := range g.Tasks {
		cp := *t
		cp.Notes = append([]Note(nil), t.Notes...)
		cp.DependsOn = append([]string(nil), t.DependsOn...)
		out.Tasks[id] = &cp
	}
	return out
}
