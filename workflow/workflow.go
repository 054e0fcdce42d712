// Package workflow schedules dependent agent tasks as a level-synchronous
// DAG: each iteration dispatches every ready task concurrently, waits for
// all of them, then recomputes readiness. Results flow downstream as
// assistant messages and as parameter bindings extracted from structured
// outputs.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/demml/potatohead-go/agent"
	"github.com/demml/potatohead-go/logging"
	"github.com/demml/potatohead-go/prompt"
	"github.com/demml/potatohead-go/provider"
)

// Workflow is a template of agents and dependent tasks. Run never mutates
// the template: execution happens on a deep clone with a fresh id and
// event tracker, and the clone is returned for inspection.
type Workflow struct {
	// ID identifies the workflow; clones get a fresh one.
	ID string
	// Name labels the workflow in logs and persistence.
	Name string

	taskList      *TaskList
	agents        map[string]*agent.Agent
	tracker       *EventTracker
	globalContext map[string]any
	logger        logging.Logger
}

// Options configures workflow construction.
type Options struct {
	// ID overrides the generated workflow id.
	ID string
	// GlobalContext supplies parameter bindings applied to every task.
	GlobalContext map[string]any
	// Logger receives run diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// WithWorkflowID overrides the generated workflow id.
func WithWorkflowID(id string) func(*Options) {
	return func(o *Options) { o.ID = id }
}

// WithGlobalContext supplies parameter bindings applied to every task.
func WithGlobalContext(values map[string]any) func(*Options) {
	return func(o *Options) { o.GlobalContext = values }
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}

// New creates an empty workflow.
func New(name string, optFns ...func(*Options)) *Workflow {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ID == "" {
		opts.ID = newWorkflowID()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Workflow{
		ID:            opts.ID,
		Name:          name,
		taskList:      NewTaskList(),
		agents:        map[string]*agent.Agent{},
		tracker:       NewEventTracker(opts.ID),
		globalContext: opts.GlobalContext,
		logger:        opts.Logger,
	}
}

func newWorkflowID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// RegisterAgent makes an agent available to tasks by its id.
func (w *Workflow) RegisterAgent(a *agent.Agent) {
	w.agents[a.ID] = a
}

// Agent returns a registered agent.
func (w *Workflow) Agent(id string) (*agent.Agent, bool) {
	a, ok := w.agents[id]
	return a, ok
}

// AddTask validates and inserts a task into the graph.
func (w *Workflow) AddTask(t *agent.Task) error {
	return w.taskList.AddTask(t)
}

// Task returns a task by id.
func (w *Workflow) Task(id string) (*agent.Task, bool) {
	return w.taskList.Get(id)
}

// TaskList exposes the underlying graph.
func (w *Workflow) TaskList() *TaskList { return w.taskList }

// Events returns the event tracker snapshot of the last run on this
// workflow value. Template workflows have no events; read them from the
// clone returned by Run.
func (w *Workflow) Events() []TaskEvent { return w.tracker.Events() }

// EventTracker exposes the tracker of this workflow value.
func (w *Workflow) EventTracker() *EventTracker { return w.tracker }

// PendingCount returns the number of pending tasks.
func (w *Workflow) PendingCount() int { return w.taskList.PendingCount() }

// TaskNames returns the task ids in insertion order.
func (w *Workflow) TaskNames() []string { return w.taskList.TaskIDs() }

// IsComplete reports whether every task is completed.
func (w *Workflow) IsComplete() bool { return w.taskList.AllCompleted() }

// ExecutionPlan returns the static dispatch levels of the graph.
func (w *Workflow) ExecutionPlan() [][]string { return w.taskList.ExecutionPlan() }

// clone deep-copies the workflow for execution: fresh id, fresh tracker,
// deep-cloned tasks with fresh locks. Agents are immutable and shared.
func (w *Workflow) clone() *Workflow {
	id := newWorkflowID()
	agents := make(map[string]*agent.Agent, len(w.agents))
	for k, v := range w.agents {
		agents[k] = v
	}
	return &Workflow{
		ID:            id,
		Name:          w.Name,
		taskList:      w.taskList.Clone(),
		agents:        agents,
		tracker:       NewEventTracker(id),
		globalContext: w.globalContext,
		logger:        w.logger,
	}
}

// Run executes the workflow on a deep clone and returns the clone. The run
// aborts with MaxRetriesExceededError when a task fails past its budget. A
// stall, where no task is ready but pending tasks remain, returns the
// partial clone without error; callers inspect task statuses.
func (w *Workflow) Run(ctx context.Context) (*Workflow, error) {
	clone := w.clone()
	w.logger.Info("starting workflow run", "workflow", w.Name, "run_id", clone.ID, "tasks", clone.taskList.Len())
	start := time.Now()

	for {
		if err := clone.taskList.ResetFailedTasks(); err != nil {
			w.logger.Error("workflow run aborted", "workflow", w.Name, "run_id", clone.ID, "error", err)
			return clone, err
		}
		if clone.taskList.AllCompleted() {
			break
		}
		ready := clone.taskList.GetReadyTasks()
		if len(ready) == 0 {
			if clone.taskList.PendingCount() > 0 {
				w.logger.Warn("workflow stalled with pending tasks; dependency cycle likely",
					"workflow", w.Name, "run_id", clone.ID, "pending", clone.taskList.PendingCount())
			}
			break
		}

		var wg sync.WaitGroup
		for _, t := range ready {
			wg.Add(1)
			go func(t *agent.Task) {
				defer wg.Done()
				clone.dispatch(ctx, t)
			}(t)
		}
		wg.Wait()
	}

	w.logger.Info("workflow run finished",
		"workflow", w.Name, "run_id", clone.ID, "duration", time.Since(start), "complete", clone.IsComplete())
	return clone, nil
}

// dispatch executes one ready task: mark running, gather dependency
// context, hand off to the agent, record the outcome.
func (w *Workflow) dispatch(ctx context.Context, t *agent.Task) {
	t.SetRunning()
	w.tracker.RecordStarted(t.ID(), t.Prompt().Model)

	contextMessages, parameterContext, err := w.buildContext(t)
	if err != nil {
		w.failTask(t, err)
		return
	}

	a, ok := w.agents[t.AgentID()]
	if !ok {
		w.failTask(t, &AgentNotFoundError{AgentID: t.AgentID()})
		return
	}

	res, err := a.ExecuteTaskWithContext(ctx, t, contextMessages, parameterContext, w.globalContext)
	if err != nil {
		w.failTask(t, err)
		return
	}
	t.Complete(res)
	w.tracker.RecordCompleted(t.ID(), res.Response.Content())
	w.logger.Debug("task completed", "task_id", t.ID())
}

// buildContext projects each completed dependency into an assistant message
// and, when its structured output is a JSON object, into parameter
// bindings. Later dependencies overwrite earlier ones on key clash.
func (w *Workflow) buildContext(t *agent.Task) (map[string][]prompt.Message, map[string]any, error) {
	contextMessages := map[string][]prompt.Message{}
	parameterContext := map[string]any{}
	for _, dep := range t.Dependencies() {
		depTask, ok := w.taskList.Get(dep)
		if !ok {
			continue
		}
		res := depTask.Result()
		if res == nil {
			continue
		}
		msg, err := res.Response.ToMessage(prompt.RoleAssistant)
		if err != nil {
			return nil, nil, fmt.Errorf("project result of task %q: %w", dep, err)
		}
		contextMessages[dep] = []prompt.Message{msg}

		if raw, ok := res.StructuredOutput(); ok && gjson.ParseBytes(raw).IsObject() {
			var values map[string]any
			if err := json.Unmarshal(raw, &values); err == nil {
				for k, v := range values {
					parameterContext[k] = v
				}
			}
		}
	}
	return contextMessages, parameterContext, nil
}

func (w *Workflow) failTask(t *agent.Task, err error) {
	t.Fail()
	w.tracker.RecordFailed(t.ID(), err.Error())
	w.logger.Warn("task failed", "task_id", t.ID(), "error", err)
}

// ExecutePrompt runs a bare prompt through a registered agent, outside the
// task graph.
func (w *Workflow) ExecutePrompt(ctx context.Context, agentID string, p *prompt.Prompt) (*agent.Response, error) {
	a, ok := w.agents[agentID]
	if !ok {
		return nil, &AgentNotFoundError{AgentID: agentID}
	}
	return a.ExecutePrompt(ctx, p)
}

type workflowJSON struct {
	ID       string                  `json:"id"`
	Name     string                  `json:"name"`
	TaskList *TaskList               `json:"task_list"`
	Agents   map[string]*agent.Agent `json:"agents"`
}

// MarshalJSON encodes the persistence form. Agents serialize without their
// clients.
func (w *Workflow) MarshalJSON() ([]byte, error) {
	return json.Marshal(workflowJSON{
		ID:       w.ID,
		Name:     w.Name,
		TaskList: w.taskList,
		Agents:   w.agents,
	})
}

// UnmarshalJSON decodes the persistence form. Deserialized agents carry no
// client; call ResetAgents before running.
func (w *Workflow) UnmarshalJSON(data []byte) error {
	var raw workflowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	w.ID = raw.ID
	w.Name = raw.Name
	w.taskList = raw.TaskList
	if w.taskList == nil {
		w.taskList = NewTaskList()
	}
	w.agents = raw.Agents
	if w.agents == nil {
		w.agents = map[string]*agent.Agent{}
	}
	w.tracker = NewEventTracker(w.ID)
	w.logger = logging.NoOpLogger{}
	return nil
}

// ResetAgents rebuilds the provider clients of deserialized agents.
func (w *Workflow) ResetAgents(ctx context.Context, optFns ...func(*provider.Options)) error {
	for id, a := range w.agents {
		if err := a.ResetClient(ctx, optFns...); err != nil {
			return fmt.Errorf("reset agent %q: %w", id, err)
		}
	}
	return nil
}
