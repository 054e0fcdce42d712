package workflow

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventStatus is the lifecycle stage an event records.
type EventStatus string

const (
	EventStarted   EventStatus = "started"
	EventCompleted EventStatus = "completed"
	EventFailed    EventStatus = "failed"
)

// EventDetails carries the execution summary of one task attempt.
type EventDetails struct {
	Model    string        `json:"model,omitempty"`
	Response string        `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// TaskEvent is one record of the event tracker. A task's event is created
// when the task starts and updated in place when it completes or fails;
// retried attempts reuse the same record.
type TaskEvent struct {
	ID         string       `json:"id"`
	WorkflowID string       `json:"workflow_id"`
	TaskID     string       `json:"task_id"`
	Status     EventStatus  `json:"status"`
	Timestamp  time.Time    `json:"timestamp"`
	UpdatedAt  time.Time    `json:"updated_at"`
	Details    EventDetails `json:"details"`
}

// EventTracker records task lifecycle events of one workflow run. Appends
// take an exclusive lock; snapshots take a read lock.
type EventTracker struct {
	mu         sync.RWMutex
	workflowID string
	events     map[string]*TaskEvent
}

// NewEventTracker creates a tracker for one workflow run.
func NewEventTracker(workflowID string) *EventTracker {
	return &EventTracker{
		workflowID: workflowID,
		events:     map[string]*TaskEvent{},
	}
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// RecordStarted opens the event record of a task attempt.
func (t *EventTracker) RecordStarted(taskID, model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	t.events[taskID] = &TaskEvent{
		ID:         newEventID(),
		WorkflowID: t.workflowID,
		TaskID:     taskID,
		Status:     EventStarted,
		Timestamp:  now,
		UpdatedAt:  now,
		Details:    EventDetails{Model: model},
	}
}

// RecordCompleted closes a task's event record with its response text.
func (t *EventTracker) RecordCompleted(taskID, response string) {
	t.update(taskID, EventCompleted, func(e *TaskEvent) {
		e.Details.Response = response
		e.Details.Error = ""
	})
}

// RecordFailed closes a task's event record with its error.
func (t *EventTracker) RecordFailed(taskID, errMsg string) {
	t.update(taskID, EventFailed, func(e *TaskEvent) {
		e.Details.Error = errMsg
	})
}

func (t *EventTracker) update(taskID string, status EventStatus, fn func(*TaskEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.events[taskID]
	if !ok {
		e = &TaskEvent{
			ID:         newEventID(),
			WorkflowID: t.workflowID,
			TaskID:     taskID,
			Timestamp:  time.Now().UTC(),
		}
		t.events[taskID] = e
	}
	e.Status = status
	e.UpdatedAt = time.Now().UTC()
	e.Details.Duration = e.UpdatedAt.Sub(e.Timestamp)
	fn(e)
}

// Events returns a snapshot ordered by start time, then task id.
func (t *EventTracker) Events() []TaskEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TaskEvent, 0, len(t.events))
	for _, e := range t.events {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Reset drops every recorded event.
func (t *EventTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = map[string]*TaskEvent{}
}
