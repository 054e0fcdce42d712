package agent

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/demml/potatohead-go/prompt"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// DefaultMaxRetries bounds automatic retries of a failed task.
const DefaultMaxRetries = 3

// Task is one unit of work in a workflow: a prompt bound to an agent, with
// dependencies on other tasks by id. Tasks are shared-mutable; every state
// access goes through the task's own lock, so no lock ever spans more than
// one task.
type Task struct {
	mu sync.RWMutex

	id           string
	agentID      string
	prompt       *prompt.Prompt
	dependencies []string
	status       Status
	retryCount   int
	maxRetries   int
	result       *Response
}

// TaskOptions configures task construction.
type TaskOptions struct {
	// ID overrides the generated task id.
	ID string
	// Dependencies lists upstream task ids.
	Dependencies []string
	// MaxRetries overrides DefaultMaxRetries.
	MaxRetries int
}

// WithTaskID overrides the generated task id.
func WithTaskID(id string) func(*TaskOptions) {
	return func(o *TaskOptions) { o.ID = id }
}

// WithDependencies lists upstream task ids.
func WithDependencies(ids ...string) func(*TaskOptions) {
	return func(o *TaskOptions) { o.Dependencies = append(o.Dependencies, ids...) }
}

// WithMaxRetries overrides the retry budget.
func WithMaxRetries(n int) func(*TaskOptions) {
	return func(o *TaskOptions) { o.MaxRetries = n }
}

// NewTask creates a pending task for the given agent and prompt.
func NewTask(agentID string, p *prompt.Prompt, optFns ...func(*TaskOptions)) *Task {
	opts := TaskOptions{MaxRetries: DefaultMaxRetries}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	return &Task{
		id:           opts.ID,
		agentID:      agentID,
		prompt:       p,
		dependencies: opts.Dependencies,
		status:       StatusPending,
		maxRetries:   opts.MaxRetries,
	}
}

// ID returns the task id.
func (t *Task) ID() string { return t.id }

// AgentID returns the id of the agent that executes the task.
func (t *Task) AgentID() string { return t.agentID }

// Dependencies returns a copy of the upstream task ids.
func (t *Task) Dependencies() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.dependencies...)
}

// Prompt returns the task's prompt. The engine mutates it only under the
// task lock during execution; callers should read it after the run.
func (t *Task) Prompt() *prompt.Prompt {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.prompt
}

// Status returns the current lifecycle state.
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// RetryCount returns how many times the task has been reset after failure.
func (t *Task) RetryCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.retryCount
}

// MaxRetries returns the retry budget.
func (t *Task) MaxRetries() int { return t.maxRetries }

// Result returns the agent response of a completed task, or nil.
func (t *Task) Result() *Response {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result
}

// SetRunning marks the task as dispatched.
func (t *Task) SetRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusRunning
}

// Complete stores the result and marks the task completed. Both writes
// happen under one exclusive lock so readers observe them together.
func (t *Task) Complete(res *Response) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusCompleted
	t.result = res
}

// Fail marks the task failed.
func (t *Task) Fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusFailed
}

// PrepareRetry resets a failed task back to pending, charging one retry.
// It reports exceeded=true, leaving the task failed, when the increment
// passes the retry budget.
func (t *Task) PrepareRetry() (retried, exceeded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusFailed {
		return false, false
	}
	t.retryCount++
	if t.retryCount > t.maxRetries {
		return false, true
	}
	t.status = StatusPending
	return true, false
}

// Clone deep-copies the task with a fresh lock. The prompt is deep-cloned
// so the copy's execution never mutates the original.
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &Task{
		id:           t.id,
		agentID:      t.agentID,
		prompt:       t.prompt.Clone(),
		dependencies: append([]string(nil), t.dependencies...),
		status:       t.status,
		retryCount:   t.retryCount,
		maxRetries:   t.maxRetries,
		result:       t.result,
	}
}

type taskJSON struct {
	ID           string          `json:"id"`
	AgentID      string          `json:"agent_id"`
	Prompt       *prompt.Prompt  `json:"prompt"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Status       Status          `json:"status"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	Result       json.RawMessage `json:"result,omitempty"`
}

// MarshalJSON encodes the persistence form.
func (t *Task) MarshalJSON() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	raw := taskJSON{
		ID:           t.id,
		AgentID:      t.agentID,
		Prompt:       t.prompt,
		Dependencies: t.dependencies,
		Status:       t.status,
		RetryCount:   t.retryCount,
		MaxRetries:   t.maxRetries,
	}
	if t.result != nil {
		enc, err := json.Marshal(t.result)
		if err != nil {
			return nil, err
		}
		raw.Result = enc
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes the persistence form.
func (t *Task) UnmarshalJSON(data []byte) error {
	var raw taskJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.id = raw.ID
	t.agentID = raw.AgentID
	t.prompt = raw.Prompt
	t.dependencies = raw.Dependencies
	t.status = raw.Status
	t.retryCount = raw.RetryCount
	t.maxRetries = raw.MaxRetries
	t.result = nil
	if len(raw.Result) > 0 {
		var res Response
		if err := json.Unmarshal(raw.Result, &res); err != nil {
			return err
		}
		t.result = &res
	}
	return nil
}

// Response is the outcome of one task execution.
type Response struct {
	TaskID   string
	Response prompt.ChatResponse
}

type responseJSON struct {
	TaskID   string          `json:"task_id"`
	Provider prompt.Provider `json:"provider"`
	Response json.RawMessage `json:"response"`
}

// MarshalJSON records the provider tag so the vendor response can be
// decoded back into the right wire shape.
func (r *Response) MarshalJSON() ([]byte, error) {
	enc, err := json.Marshal(r.Response)
	if err != nil {
		return nil, err
	}
	return json.Marshal(responseJSON{
		TaskID:   r.TaskID,
		Provider: r.Response.Provider(),
		Response: enc,
	})
}

// UnmarshalJSON decodes the provider-tagged response.
func (r *Response) UnmarshalJSON(data []byte) error {
	provider, err := prompt.ParseProvider(gjson.GetBytes(data, "provider").String())
	if err != nil {
		return err
	}
	var raw responseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	resp, err := prompt.UnmarshalChatResponse(raw.Response, provider)
	if err != nil {
		return err
	}
	r.TaskID = raw.TaskID
	r.Response = resp
	return nil
}

// StructuredOutput returns the response's structured JSON payload, or
// false when none exists.
func (r *Response) StructuredOutput() (json.RawMessage, bool) {
	if r == nil || r.Response == nil {
		return nil, false
	}
	return r.Response.StructuredData()
}
