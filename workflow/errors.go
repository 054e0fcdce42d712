package workflow

import "fmt"

// TaskAlreadyExistsError reports an insertion with a duplicate task id.
type TaskAlreadyExistsError struct {
	TaskID string
}

func (e *TaskAlreadyExistsError) Error() string {
	return fmt.Sprintf("task %q already exists", e.TaskID)
}

// TaskDependsOnItselfError reports a task listing itself as a dependency.
type TaskDependsOnItselfError struct {
	TaskID string
}

func (e *TaskDependsOnItselfError) Error() string {
	return fmt.Sprintf("task %q depends on itself", e.TaskID)
}

// DependencyNotFoundError reports a dependency on a task id that has not
// been inserted. Dependencies must be added before their dependents.
type DependencyNotFoundError struct {
	TaskID     string
	Dependency string
}

func (e *DependencyNotFoundError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.TaskID, e.Dependency)
}

// MaxRetriesExceededError aborts a run when a task fails past its retry
// budget.
type MaxRetriesExceededError struct {
	TaskID string
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("task %q exceeded its retry budget", e.TaskID)
}

// AgentNotFoundError reports a task referencing an unregistered agent.
type AgentNotFoundError struct {
	AgentID string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("no agent registered with id %q", e.AgentID)
}
