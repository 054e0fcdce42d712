package workflow

import (
	"encoding/json"

	"github.com/demml/potatohead-go/agent"
)

// TaskList is the task graph: an insertion-ordered map from id to
// shared-mutable task plus a topological execution order rebuilt on each
// insertion. Tasks reference each other by id only; the list is the single
// owner of task handles.
type TaskList struct {
	tasks          map[string]*agent.Task
	insertionOrder []string
	executionOrder []string
}

// NewTaskList creates an empty task list.
func NewTaskList() *TaskList {
	return &TaskList{tasks: map[string]*agent.Task{}}
}

// AddTask validates and inserts a task. Its id must be new, it must not
// depend on itself, and every dependency must already be present.
func (l *TaskList) AddTask(t *agent.Task) error {
	id := t.ID()
	if _, exists := l.tasks[id]; exists {
		return &TaskAlreadyExistsError{TaskID: id}
	}
	for _, dep := range t.Dependencies() {
		if dep == id {
			return &TaskDependsOnItselfError{TaskID: id}
		}
		if _, ok := l.tasks[dep]; !ok {
			return &DependencyNotFoundError{TaskID: id, Dependency: dep}
		}
	}
	l.tasks[id] = t
	l.insertionOrder = append(l.insertionOrder, id)
	l.rebuildExecutionOrder()
	return nil
}

// Get returns the task with the given id.
func (l *TaskList) Get(id string) (*agent.Task, bool) {
	t, ok := l.tasks[id]
	return t, ok
}

// Len returns the number of tasks.
func (l *TaskList) Len() int { return len(l.tasks) }

// TaskIDs returns the task ids in insertion order.
func (l *TaskList) TaskIDs() []string {
	return append([]string(nil), l.insertionOrder...)
}

// ExecutionOrder returns the topological order, dependencies first.
func (l *TaskList) ExecutionOrder() []string {
	return append([]string(nil), l.executionOrder...)
}

// rebuildExecutionOrder runs a depth-first topological sort over the
// insertion order. Insertion validation keeps the graph acyclic, but a
// visiting guard protects against cycles smuggled in through
// deserialization.
func (l *TaskList) rebuildExecutionOrder() {
	visited := map[string]bool{}
	visiting := map[string]bool{}
	order := make([]string, 0, len(l.tasks))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] || visiting[id] {
			return
		}
		visiting[id] = true
		if t, ok := l.tasks[id]; ok {
			for _, dep := range t.Dependencies() {
				visit(dep)
			}
		}
		visiting[id] = false
		visited[id] = true
		order = append(order, id)
	}
	for _, id := range l.insertionOrder {
		visit(id)
	}
	l.executionOrder = order
}

// GetReadyTasks returns the pending tasks whose every dependency is
// completed.
func (l *TaskList) GetReadyTasks() []*agent.Task {
	var ready []*agent.Task
	for _, id := range l.executionOrder {
		t := l.tasks[id]
		if t.Status() != agent.StatusPending {
			continue
		}
		ok := true
		for _, dep := range t.Dependencies() {
			depTask, exists := l.tasks[dep]
			if !exists || depTask.Status() != agent.StatusCompleted {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, t)
		}
	}
	return ready
}

// ResetFailedTasks moves every failed task back to pending, charging one
// retry each. A task past its retry budget stays failed and aborts with
// MaxRetriesExceededError.
func (l *TaskList) ResetFailedTasks() error {
	for _, id := range l.executionOrder {
		_, exceeded := l.tasks[id].PrepareRetry()
		if exceeded {
			return &MaxRetriesExceededError{TaskID: id}
		}
	}
	return nil
}

// PendingCount returns the number of pending tasks.
func (l *TaskList) PendingCount() int {
	n := 0
	for _, t := range l.tasks {
		if t.Status() == agent.StatusPending {
			n++
		}
	}
	return n
}

// AllCompleted reports whether every task is completed.
func (l *TaskList) AllCompleted() bool {
	for _, t := range l.tasks {
		if t.Status() != agent.StatusCompleted {
			return false
		}
	}
	return true
}

// Clone deep-copies the list; every task is cloned with a fresh lock.
func (l *TaskList) Clone() *TaskList {
	nl := &TaskList{
		tasks:          make(map[string]*agent.Task, len(l.tasks)),
		insertionOrder: append([]string(nil), l.insertionOrder...),
		executionOrder: append([]string(nil), l.executionOrder...),
	}
	for id, t := range l.tasks {
		nl.tasks[id] = t.Clone()
	}
	return nl
}

// ExecutionPlan groups task ids into dispatch levels: each level's
// dependencies are all satisfied by earlier levels. A cycle yields a
// partial plan with the cyclic ids omitted.
func (l *TaskList) ExecutionPlan() [][]string {
	emitted := map[string]bool{}
	var plan [][]string
	for len(emitted) < len(l.tasks) {
		var level []string
		for _, id := range l.insertionOrder {
			if emitted[id] {
				continue
			}
			ready := true
			for _, dep := range l.tasks[id].Dependencies() {
				if !emitted[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			break
		}
		for _, id := range level {
			emitted[id] = true
		}
		plan = append(plan, level)
	}
	return plan
}

type taskListJSON struct {
	Tasks          map[string]*agent.Task `json:"tasks"`
	ExecutionOrder []string               `json:"execution_order"`
	InsertionOrder []string               `json:"insertion_order,omitempty"`
}

// MarshalJSON encodes the persistence form.
func (l *TaskList) MarshalJSON() ([]byte, error) {
	return json.Marshal(taskListJSON{
		Tasks:          l.tasks,
		ExecutionOrder: l.executionOrder,
		InsertionOrder: l.insertionOrder,
	})
}

// UnmarshalJSON decodes the persistence form, rebuilding the execution
// order from the decoded graph.
func (l *TaskList) UnmarshalJSON(data []byte) error {
	var raw taskListJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.tasks = raw.Tasks
	if l.tasks == nil {
		l.tasks = map[string]*agent.Task{}
	}
	l.insertionOrder = raw.InsertionOrder
	if len(l.insertionOrder) == 0 {
		l.insertionOrder = raw.ExecutionOrder
	}
	l.rebuildExecutionOrder()
	return nil
}
