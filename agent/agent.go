// Package agent pairs provider-bound executors with the tasks they run. An
// agent owns a client for one provider and an optional system-instruction
// prefix; a task binds a prompt to an agent and to its upstream
// dependencies.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/demml/potatohead-go/internal/util"
	"github.com/demml/potatohead-go/logging"
	"github.com/demml/potatohead-go/prompt"
	"github.com/demml/potatohead-go/provider"
)

// Agent executes tasks against one provider. Agents are immutable after
// construction and safe to share across concurrent task executions.
type Agent struct {
	// ID identifies the agent within a workflow.
	ID string

	provider          prompt.Provider
	client            provider.Client
	systemInstruction []prompt.Message
	tools             []prompt.ToolDefinition
	maxIterations     int
	logger            logging.Logger
}

// Options configures agent construction.
type Options struct {
	// ID overrides the generated agent id.
	ID string
	// SystemInstruction messages are prepended to every executed prompt.
	SystemInstruction []prompt.Message
	// SystemText adds bare system-instruction strings.
	SystemText []string
	// Tools declares the agent's tool registry. Tools are advertised on
	// requests; no invocation loop runs them.
	Tools []prompt.ToolDefinition
	// MaxIterations reserves the budget for a future tool-use loop.
	MaxIterations int
	// Client overrides provider-based client construction, mainly for
	// tests.
	Client provider.Client
	// ClientOptions are forwarded to provider client construction.
	ClientOptions []func(*provider.Options)
	// Logger receives execution diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// WithID overrides the generated agent id.
func WithID(id string) func(*Options) {
	return func(o *Options) { o.ID = id }
}

// WithSystemInstruction prepends system messages to every executed prompt.
func WithSystemInstruction(msgs ...prompt.Message) func(*Options) {
	return func(o *Options) { o.SystemInstruction = append(o.SystemInstruction, msgs...) }
}

// WithSystemText adds bare system-instruction strings.
func WithSystemText(texts ...string) func(*Options) {
	return func(o *Options) { o.SystemText = append(o.SystemText, texts...) }
}

// WithTools declares the agent's tool registry.
func WithTools(tools ...prompt.ToolDefinition) func(*Options) {
	return func(o *Options) { o.Tools = append(o.Tools, tools...) }
}

// WithClient overrides provider-based client construction.
func WithClient(c provider.Client) func(*Options) {
	return func(o *Options) { o.Client = c }
}

// WithClientOptions forwards options to provider client construction.
func WithClientOptions(optFns ...func(*provider.Options)) func(*Options) {
	return func(o *Options) { o.ClientOptions = append(o.ClientOptions, optFns...) }
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}

// New builds an agent for a provider, constructing its client unless one is
// injected.
func New(ctx context.Context, p prompt.Provider, optFns ...func(*Options)) (*Agent, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.ID == "" {
		opts.ID = newAgentID()
	}

	client := opts.Client
	if client == nil {
		var err error
		client, err = provider.New(ctx, p, opts.ClientOptions...)
		if err != nil {
			return nil, err
		}
	}

	system := make([]prompt.Message, 0, len(opts.SystemText)+len(opts.SystemInstruction))
	for _, text := range opts.SystemText {
		system = append(system, prompt.NewSystemInstruction(p, text))
	}
	system = append(system, opts.SystemInstruction...)

	return &Agent{
		ID:                opts.ID,
		provider:          p,
		client:            client,
		systemInstruction: system,
		tools:             opts.Tools,
		maxIterations:     opts.MaxIterations,
		logger:            opts.Logger,
	}, nil
}

func newAgentID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Provider returns the agent's provider.
func (a *Agent) Provider() prompt.Provider { return a.provider }

// SystemInstruction returns the agent's system-instruction prefix.
func (a *Agent) SystemInstruction() []prompt.Message { return a.systemInstruction }

// ExecuteTaskWithContext runs the task's prompt after weaving in upstream
// context. Under the task's write lock it, in order, inserts dependency
// messages before the first non-system message, binds recognized parameters
// from parameterContext and then globalContext into user messages, and
// prepends the agent's system instructions. The mutated prompt stays on the
// task; a clone is sent to the provider after the lock is released.
func (a *Agent) ExecuteTaskWithContext(
	ctx context.Context,
	task *Task,
	contextMessages map[string][]prompt.Message,
	parameterContext map[string]any,
	globalContext map[string]any,
) (*Response, error) {
	if a.client == nil {
		return nil, provider.ErrProviderUndefined
	}

	task.mu.Lock()
	p := task.prompt
	if err := appendDependencyContext(p, task.dependencies, contextMessages); err != nil {
		task.mu.Unlock()
		return nil, err
	}
	bindContext(p, parameterContext, globalContext)
	if err := a.prependSystemInstructions(p); err != nil {
		task.mu.Unlock()
		return nil, err
	}
	call := p.Clone()
	taskID := task.id
	task.mu.Unlock()

	a.logger.Debug("executing task", "task_id", taskID, "agent_id", a.ID, "model", call.Model)
	resp, err := a.client.GenerateContent(ctx, call)
	if err != nil {
		return nil, err
	}
	return &Response{TaskID: taskID, Response: resp}, nil
}

// ExecuteTask runs the task without upstream context.
func (a *Agent) ExecuteTask(ctx context.Context, task *Task) (*Response, error) {
	return a.ExecuteTaskWithContext(ctx, task, nil, nil, nil)
}

// ExecutePrompt runs a bare prompt with the agent's system instructions
// prepended. The response id stands in for the task id.
func (a *Agent) ExecutePrompt(ctx context.Context, p *prompt.Prompt) (*Response, error) {
	if a.client == nil {
		return nil, provider.ErrProviderUndefined
	}
	call := p.Clone()
	if err := a.prependSystemInstructions(call); err != nil {
		return nil, err
	}
	resp, err := a.client.GenerateContent(ctx, call)
	if err != nil {
		return nil, err
	}
	return &Response{TaskID: resp.ID(), Response: resp}, nil
}

// appendDependencyContext inserts dependency messages immediately before
// the prompt's first non-system message. The insertion index is computed
// once and held constant, so each insert lands directly before the original
// first user message. Dependency messages are converted to the prompt's
// provider first.
func appendDependencyContext(p *prompt.Prompt, dependencies []string, contextMessages map[string][]prompt.Message) error {
	if len(dependencies) == 0 || len(contextMessages) == 0 {
		return nil
	}
	cursor := -1
	for i, m := range p.Request.Messages() {
		if !prompt.IsSystemMessage(m) {
			cursor = i
			break
		}
	}
	for _, dep := range dependencies {
		msgs, ok := contextMessages[dep]
		if !ok {
			continue
		}
		converted := make([]prompt.Message, 0, len(msgs))
		for _, m := range msgs {
			cm, err := prompt.ConvertMessage(m, p.Provider)
			if err != nil {
				return fmt.Errorf("convert context message from task %q: %w", dep, err)
			}
			converted = append(converted, cm)
		}
		if cursor < 0 {
			if err := p.Request.InsertMessages(len(p.Request.Messages()), converted); err != nil {
				return err
			}
			continue
		}
		if err := p.Request.InsertMessages(cursor, converted); err != nil {
			return err
		}
	}
	return nil
}

// bindContext binds recognized parameters into user messages, parameter
// context first, then global context. Values bind as their canonical JSON
// encoding.
func bindContext(p *prompt.Prompt, parameterContext, globalContext map[string]any) {
	if len(p.Parameters) == 0 {
		return
	}
	bind := func(name string, value any) {
		encoded := util.StringifyValue(value)
		for _, m := range p.Request.Messages() {
			if prompt.IsUserMessage(m) {
				m.BindMut(name, encoded)
			}
		}
	}
	for _, name := range p.Parameters {
		if value, ok := parameterContext[name]; ok {
			bind(name, value)
		}
		if value, ok := globalContext[name]; ok {
			bind(name, value)
		}
	}
}

func (a *Agent) prependSystemInstructions(p *prompt.Prompt) error {
	if len(a.systemInstruction) == 0 {
		return nil
	}
	converted := make([]prompt.Message, 0, len(a.systemInstruction))
	for _, m := range a.systemInstruction {
		cm, err := prompt.ConvertMessage(m, p.Provider)
		if err != nil {
			return fmt.Errorf("convert system instruction: %w", err)
		}
		converted = append(converted, cm)
	}
	return p.Request.PrependSystemInstructions(converted)
}

type agentJSON struct {
	ID                string            `json:"id"`
	Provider          prompt.Provider   `json:"provider"`
	SystemInstruction []json.RawMessage `json:"system_instruction,omitempty"`
}

// MarshalJSON encodes the agent without its client.
func (a *Agent) MarshalJSON() ([]byte, error) {
	system := make([]json.RawMessage, 0, len(a.systemInstruction))
	for _, m := range a.systemInstruction {
		enc, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		system = append(system, enc)
	}
	return json.Marshal(agentJSON{
		ID:                a.ID,
		Provider:          a.provider,
		SystemInstruction: system,
	})
}

// UnmarshalJSON decodes an agent with a nil client. Execution fails with
// ErrProviderUndefined until ResetClient rebuilds one.
func (a *Agent) UnmarshalJSON(data []byte) error {
	var raw agentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.ID = raw.ID
	a.provider = raw.Provider
	a.client = nil
	a.logger = logging.NoOpLogger{}
	a.systemInstruction = make([]prompt.Message, 0, len(raw.SystemInstruction))
	for _, rm := range raw.SystemInstruction {
		m, err := prompt.UnmarshalMessage(rm, raw.Provider)
		if err != nil {
			return err
		}
		a.systemInstruction = append(a.systemInstruction, m)
	}
	return nil
}

// ResetClient rebuilds the provider client of a deserialized agent.
func (a *Agent) ResetClient(ctx context.Context, optFns ...func(*provider.Options)) error {
	client, err := provider.New(ctx, a.provider, optFns...)
	if err != nil {
		return err
	}
	a.client = client
	return nil
}
