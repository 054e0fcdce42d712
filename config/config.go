// Package config loads workflow definitions from YAML and materializes
// them into runnable workflows. Environment references in the file use the
// ${env:VAR} form; plain ${name} placeholders are left for prompt binding.
package config

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/demml/potatohead-go/agent"
	"github.com/demml/potatohead-go/logging"
	"github.com/demml/potatohead-go/prompt"
	"github.com/demml/potatohead-go/provider"
	"github.com/demml/potatohead-go/workflow"
)

// AgentConfig declares one agent of a workflow definition.
type AgentConfig struct {
	ID       string   `yaml:"id"`
	Provider string   `yaml:"provider"`
	System   []string `yaml:"system,omitempty"`
}

// TaskConfig declares one task of a workflow definition.
type TaskConfig struct {
	ID         string   `yaml:"id"`
	Agent      string   `yaml:"agent"`
	Model      string   `yaml:"model"`
	Prompt     string   `yaml:"prompt"`
	System     []string `yaml:"system,omitempty"`
	DependsOn  []string `yaml:"depends_on,omitempty"`
	MaxRetries *int     `yaml:"max_retries,omitempty"`
	Output     string   `yaml:"output,omitempty"` // "", "score"
}

// Config is a declarative workflow definition.
type Config struct {
	Name          string         `yaml:"name"`
	GlobalContext map[string]any `yaml:"global_context,omitempty"`
	Agents        []AgentConfig  `yaml:"agents"`
	Tasks         []TaskConfig   `yaml:"tasks"`
}

// envRefPattern matches ${env:VAR} environment references. Plain ${name}
// placeholders belong to prompt parameter binding and must survive loading.
var envRefPattern = regexp.MustCompile(`\$\{env:([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses a workflow definition, expanding ${env:VAR}
// environment references first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := envRefPattern.ReplaceAllStringFunc(string(data), func(ref string) string {
		name := envRefPattern.FindStringSubmatch(ref)[1]
		return os.Getenv(name)
	})
	return Parse([]byte(expanded))
}

// Parse parses a workflow definition.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("workflow %q declares no agents", c.Name)
	}
	agents := map[string]bool{}
	for _, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent without id in workflow %q", c.Name)
		}
		if agents[a.ID] {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		agents[a.ID] = true
		if _, err := prompt.ParseProvider(a.Provider); err != nil {
			return fmt.Errorf("agent %q: %w", a.ID, err)
		}
	}
	// Tasks must be declared after their dependencies, matching the
	// insertion rule of the task graph.
	tasks := map[string]bool{}
	for _, t := range c.Tasks {
		if t.ID == "" {
			return fmt.Errorf("task without id in workflow %q", c.Name)
		}
		if tasks[t.ID] {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		if !agents[t.Agent] {
			return fmt.Errorf("task %q references unknown agent %q", t.ID, t.Agent)
		}
		if t.Model == "" {
			return fmt.Errorf("task %q declares no model", t.ID)
		}
		if t.Prompt == "" {
			return fmt.Errorf("task %q declares no prompt", t.ID)
		}
		if t.Output != "" && t.Output != "score" {
			return fmt.Errorf("task %q: unknown output %q", t.ID, t.Output)
		}
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				return fmt.Errorf("task %q depends on itself", t.ID)
			}
			if !tasks[dep] {
				return fmt.Errorf("task %q depends on undeclared task %q", t.ID, dep)
			}
		}
		tasks[t.ID] = true
	}
	return nil
}

// Plan computes the dispatch levels of the definition without materializing
// agents or clients. Each level's dependencies are satisfied by earlier
// levels.
func (c *Config) Plan() [][]string {
	emitted := map[string]bool{}
	var plan [][]string
	for len(emitted) < len(c.Tasks) {
		var level []string
		for _, t := range c.Tasks {
			if emitted[t.ID] {
				continue
			}
			ready := true
			for _, dep := range t.DependsOn {
				if !emitted[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, t.ID)
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

// BuildOptions configures workflow materialization.
type BuildOptions struct {
	// Logger is attached to the workflow and its agents.
	Logger logging.Logger
	// ClientOptions are forwarded to provider client construction.
	ClientOptions []func(*provider.Options)
	// GlobalContext is merged over the definition's global context.
	GlobalContext map[string]any
}

// Build materializes the definition: agents get provider clients, tasks get
// prompts, and everything is registered on a workflow in declaration order.
func (c *Config) Build(ctx context.Context, optFns ...func(*BuildOptions)) (*workflow.Workflow, error) {
	opts := BuildOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	globalContext := map[string]any{}
	for k, v := range c.GlobalContext {
		globalContext[k] = v
	}
	for k, v := range opts.GlobalContext {
		globalContext[k] = v
	}

	wfOpts := []func(*workflow.Options){workflow.WithGlobalContext(globalContext)}
	if opts.Logger != nil {
		wfOpts = append(wfOpts, workflow.WithLogger(opts.Logger))
	}
	wf := workflow.New(c.Name, wfOpts...)

	providers := map[string]prompt.Provider{}
	for _, ac := range c.Agents {
		p, err := prompt.ParseProvider(ac.Provider)
		if err != nil {
			return nil, err
		}
		providers[ac.ID] = p

		agentOpts := []func(*agent.Options){
			agent.WithID(ac.ID),
			agent.WithSystemText(ac.System...),
			agent.WithClientOptions(opts.ClientOptions...),
		}
		if opts.Logger != nil {
			agentOpts = append(agentOpts, agent.WithLogger(opts.Logger))
		}
		a, err := agent.New(ctx, p, agentOpts...)
		if err != nil {
			return nil, fmt.Errorf("build agent %q: %w", ac.ID, err)
		}
		wf.RegisterAgent(a)
	}

	for _, tc := range c.Tasks {
		promptOpts := []func(*prompt.Options){prompt.WithSystemText(tc.System...)}
		if tc.Output == "score" {
			promptOpts = append(promptOpts, prompt.WithOutput(prompt.ScoreOutput{}))
		}
		p, err := prompt.NewFromText(providers[tc.Agent], tc.Model, tc.Prompt, promptOpts...)
		if err != nil {
			return nil, fmt.Errorf("build prompt for task %q: %w", tc.ID, err)
		}

		taskOpts := []func(*agent.TaskOptions){
			agent.WithTaskID(tc.ID),
			agent.WithDependencies(tc.DependsOn...),
		}
		if tc.MaxRetries != nil {
			taskOpts = append(taskOpts, agent.WithMaxRetries(*tc.MaxRetries))
		}
		if err := wf.AddTask(agent.NewTask(tc.Agent, p, taskOpts...)); err != nil {
			return nil, fmt.Errorf("add task %q: %w", tc.ID, err)
		}
	}
	return wf, nil
}
