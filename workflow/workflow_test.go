package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demml/potatohead-go/agent"
	"github.com/demml/potatohead-go/prompt"
	anthropicwire "github.com/demml/potatohead-go/wire/anthropic"
	openaiwire "github.com/demml/potatohead-go/wire/openai"
)

// scriptedClient replays responses task by task. Scripts are keyed on the
// text of the last conversation message so concurrent dispatch stays
// deterministic.
type scriptedClient struct {
	mu       sync.Mutex
	provider prompt.Provider
	respond  func(p *prompt.Prompt) (prompt.ChatResponse, error)
	calls    []*prompt.Prompt
}

func (c *scriptedClient) Provider() prompt.Provider { return c.provider }

func (c *scriptedClient) GenerateContent(_ context.Context, p *prompt.Prompt) (prompt.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, p)
	return c.respond(p)
}

func openAIText(id, text string) *prompt.OpenAIResponse {
	return &prompt.OpenAIResponse{ChatResponse: openaiwire.ChatResponse{
		ID: id,
		Choices: []openaiwire.Choice{{
			Message: openaiwire.ResponseMessage{Role: "assistant", Content: &text},
		}},
	}}
}

func anthropicText(id, text string) *prompt.AnthropicResponse {
	return &prompt.AnthropicResponse{ChatResponse: anthropicwire.ChatResponse{
		ID:   id,
		Role: "assistant",
		Content: []anthropicwire.ResponseBlock{
			anthropicwire.ResponseTextBlock{Type: "text", Text: text},
		},
	}}
}

func echoClient(p prompt.Provider) *scriptedClient {
	n := 0
	c := &scriptedClient{provider: p}
	c.respond = func(pr *prompt.Prompt) (prompt.ChatResponse, error) {
		n++
		msgs := pr.Request.Messages()
		last := msgs[len(msgs)-1].Text()
		if p == prompt.ProviderAnthropic {
			return anthropicText(fmt.Sprintf("m%d", n), "answer to: "+last), nil
		}
		return openAIText(fmt.Sprintf("r%d", n), "answer to: "+last), nil
	}
	return c
}

func mustAgent(t *testing.T, id string, client *scriptedClient) *agent.Agent {
	t.Helper()
	a, err := agent.New(context.Background(), client.provider,
		agent.WithID(id), agent.WithClient(client))
	require.NoError(t, err)
	return a
}

func mustPrompt(t *testing.T, p prompt.Provider, text string, optFns ...func(*prompt.Options)) *prompt.Prompt {
	t.Helper()
	pr, err := prompt.NewFromText(p, "gpt-4o", text, optFns...)
	require.NoError(t, err)
	return pr
}

func TestRunChain(t *testing.T) {
	client := echoClient(prompt.ProviderOpenAI)
	wf := New("chain")
	wf.RegisterAgent(mustAgent(t, "a1", client))
	require.NoError(t, wf.AddTask(agent.NewTask("a1", mustPrompt(t, prompt.ProviderOpenAI, "outline it"), agent.WithTaskID("t1"))))
	require.NoError(t, wf.AddTask(agent.NewTask("a1", mustPrompt(t, prompt.ProviderOpenAI, "draft it"),
		agent.WithTaskID("t2"), agent.WithDependencies("t1"))))

	run, err := wf.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, run.IsComplete())
	assert.NotEqual(t, wf.ID, run.ID)

	// The template is untouched.
	tt, _ := wf.Task("t2")
	assert.Equal(t, agent.StatusPending, tt.Status())
	assert.Len(t, tt.Prompt().Request.Messages(), 1)

	// The executed clone carries the woven prompt: dependency context plus
	// the original user message.
	rt, ok := run.Task("t2")
	require.True(t, ok)
	msgs := rt.Prompt().Request.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, prompt.RoleAssistant, msgs[0].Role())
	assert.Equal(t, "answer to: outline it", msgs[0].Text())
	assert.Equal(t, "draft it", msgs[1].Text())

	events := run.Events()
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, EventCompleted, e.Status)
		assert.Equal(t, run.ID, e.WorkflowID)
	}
}

func TestRunFanIn(t *testing.T) {
	client := echoClient(prompt.ProviderOpenAI)
	wf := New("fan-in")
	wf.RegisterAgent(mustAgent(t, "a1", client))
	require.NoError(t, wf.AddTask(agent.NewTask("a1", mustPrompt(t, prompt.ProviderOpenAI, "benefits"), agent.WithTaskID("a"))))
	require.NoError(t, wf.AddTask(agent.NewTask("a1", mustPrompt(t, prompt.ProviderOpenAI, "drawbacks"), agent.WithTaskID("b"))))
	require.NoError(t, wf.AddTask(agent.NewTask("a1", mustPrompt(t, prompt.ProviderOpenAI, "combine"),
		agent.WithTaskID("c"), agent.WithDependencies("a", "b"))))

	run, err := wf.Run(context.Background())
	require.NoError(t, err)
	require.True(t, run.IsComplete())

	rt, _ := run.Task("c")
	msgs := rt.Prompt().Request.Messages()
	require.Len(t, msgs, 3)
	// Both upstream answers precede the task's own user message.
	assert.Equal(t, "combine", msgs[2].Text())
	texts := []string{msgs[0].Text(), msgs[1].Text()}
	assert.ElementsMatch(t, []string{"answer to: benefits", "answer to: drawbacks"}, texts)
}

func TestRunVendorSwitch(t *testing.T) {
	openaiClient := echoClient(prompt.ProviderOpenAI)
	anthropicClient := echoClient(prompt.ProviderAnthropic)

	wf := New("switch")
	wf.RegisterAgent(mustAgent(t, "oa", openaiClient))
	wf.RegisterAgent(mustAgent(t, "an", anthropicClient))

	require.NoError(t, wf.AddTask(agent.NewTask("oa", mustPrompt(t, prompt.ProviderOpenAI, "research"), agent.WithTaskID("t1"))))
	p2, err := prompt.NewFromText(prompt.ProviderAnthropic, "claude-sonnet-4-5", "summarize")
	require.NoError(t, err)
	require.NoError(t, wf.AddTask(agent.NewTask("an", p2,
		agent.WithTaskID("t2"), agent.WithDependencies("t1"))))

	run, err := wf.Run(context.Background())
	require.NoError(t, err)
	require.True(t, run.IsComplete())

	// The OpenAI answer was converted into the downstream Anthropic format.
	rt, _ := run.Task("t2")
	msgs := rt.Prompt().Request.Messages()
	require.Len(t, msgs, 2)
	converted, ok := msgs[0].(*prompt.AnthropicMessage)
	require.True(t, ok)
	assert.Equal(t, prompt.RoleAssistant, converted.Role())
	assert.Equal(t, "answer to: research", converted.Text())
}

func TestRunBindsStructuredOutputs(t *testing.T) {
	n := 0
	client := &scriptedClient{provider: prompt.ProviderOpenAI}
	client.respond = func(pr *prompt.Prompt) (prompt.ChatResponse, error) {
		n++
		if n == 1 {
			return openAIText("r1", `{"score":3,"reason":"ok"}`), nil
		}
		return openAIText("r2", "noted"), nil
	}

	wf := New("scored")
	wf.RegisterAgent(mustAgent(t, "a1", client))
	require.NoError(t, wf.AddTask(agent.NewTask("a1",
		mustPrompt(t, prompt.ProviderOpenAI, "rate it", prompt.WithOutput(prompt.ScoreOutput{})),
		agent.WithTaskID("review"))))
	require.NoError(t, wf.AddTask(agent.NewTask("a1",
		mustPrompt(t, prompt.ProviderOpenAI, "Score was ${score} because ${reason}."),
		agent.WithTaskID("followup"), agent.WithDependencies("review"))))

	run, err := wf.Run(context.Background())
	require.NoError(t, err)
	require.True(t, run.IsComplete())

	rt, _ := run.Task("followup")
	msgs := rt.Prompt().Request.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, `Score was 3 because "ok".`, msgs[1].Text())
}

func TestRunGlobalContextBinding(t *testing.T) {
	client := echoClient(prompt.ProviderOpenAI)
	wf := New("global", WithGlobalContext(map[string]any{"audience": "operators"}))
	wf.RegisterAgent(mustAgent(t, "a1", client))
	require.NoError(t, wf.AddTask(agent.NewTask("a1",
		mustPrompt(t, prompt.ProviderOpenAI, "Explain for ${audience}."),
		agent.WithTaskID("t1"))))

	run, err := wf.Run(context.Background())
	require.NoError(t, err)

	rt, _ := run.Task("t1")
	assert.Equal(t, `Explain for "operators".`, rt.Prompt().Request.Messages()[0].Text())
}

func TestRunRetriesToSuccess(t *testing.T) {
	n := 0
	client := &scriptedClient{provider: prompt.ProviderOpenAI}
	client.respond = func(pr *prompt.Prompt) (prompt.ChatResponse, error) {
		n++
		if n == 1 {
			return nil, fmt.Errorf("transient failure")
		}
		return openAIText("r1", "recovered"), nil
	}

	wf := New("retry")
	wf.RegisterAgent(mustAgent(t, "a1", client))
	require.NoError(t, wf.AddTask(agent.NewTask("a1",
		mustPrompt(t, prompt.ProviderOpenAI, "try it"),
		agent.WithTaskID("t1"), agent.WithMaxRetries(1))))

	run, err := wf.Run(context.Background())
	require.NoError(t, err)
	require.True(t, run.IsComplete())

	rt, _ := run.Task("t1")
	assert.Equal(t, 1, rt.RetryCount())
	assert.Equal(t, "recovered", rt.Result().Response.Content())
}

func TestRunRetryExhaustion(t *testing.T) {
	client := &scriptedClient{provider: prompt.ProviderOpenAI}
	client.respond = func(pr *prompt.Prompt) (prompt.ChatResponse, error) {
		return nil, fmt.Errorf("always down")
	}

	wf := New("exhaust")
	wf.RegisterAgent(mustAgent(t, "a1", client))
	require.NoError(t, wf.AddTask(agent.NewTask("a1",
		mustPrompt(t, prompt.ProviderOpenAI, "try it"),
		agent.WithTaskID("t1"), agent.WithMaxRetries(1))))

	run, err := wf.Run(context.Background())
	var mrErr *MaxRetriesExceededError
	require.ErrorAs(t, err, &mrErr)
	assert.Equal(t, "t1", mrErr.TaskID)

	// The partial clone is still returned for inspection. The exceeding
	// increment is charged, so the count sits one past the budget.
	require.NotNil(t, run)
	rt, _ := run.Task("t1")
	assert.Equal(t, agent.StatusFailed, rt.Status())
	assert.Equal(t, 2, rt.RetryCount())

	events := run.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventFailed, events[0].Status)
	assert.Contains(t, events[0].Details.Error, "always down")
}

func TestRunMissingAgentFailsTask(t *testing.T) {
	wf := New("orphan")
	require.NoError(t, wf.AddTask(agent.NewTask("ghost",
		mustPrompt(t, prompt.ProviderOpenAI, "hello"),
		agent.WithTaskID("t1"), agent.WithMaxRetries(0))))

	run, err := wf.Run(context.Background())
	var mrErr *MaxRetriesExceededError
	require.ErrorAs(t, err, &mrErr)

	events := run.Events()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Details.Error, "ghost")
}

func TestRunStallsOnCycle(t *testing.T) {
	// Insertion validation forbids cycles, but persisted workflows can carry
	// them; they surface as a stalled run, not an error.
	ta := newTask(t, "a", "b")
	tb := newTask(t, "b", "a")
	rawA, err := json.Marshal(ta)
	require.NoError(t, err)
	rawB, err := json.Marshal(tb)
	require.NoError(t, err)

	data := fmt.Sprintf(`{
		"id": "wf-cycle",
		"name": "cyclic",
		"task_list": {"tasks": {"a": %s, "b": %s}, "execution_order": ["a", "b"]},
		"agents": {}
	}`, rawA, rawB)

	var wf Workflow
	require.NoError(t, json.Unmarshal([]byte(data), &wf))

	run, err := wf.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, run.IsComplete())

	ra, _ := run.Task("a")
	rb, _ := run.Task("b")
	assert.Equal(t, agent.StatusPending, ra.Status())
	assert.Equal(t, agent.StatusPending, rb.Status())
	assert.Empty(t, run.Events())
}

func TestExecutePromptThroughWorkflow(t *testing.T) {
	client := echoClient(prompt.ProviderOpenAI)
	wf := New("direct")
	wf.RegisterAgent(mustAgent(t, "a1", client))

	res, err := wf.ExecutePrompt(context.Background(), "a1", mustPrompt(t, prompt.ProviderOpenAI, "ping"))
	require.NoError(t, err)
	assert.Equal(t, "answer to: ping", res.Response.Content())

	_, err = wf.ExecutePrompt(context.Background(), "nope", mustPrompt(t, prompt.ProviderOpenAI, "ping"))
	var nfErr *AgentNotFoundError
	assert.ErrorAs(t, err, &nfErr)
}

func TestWorkflowJSONRoundTrip(t *testing.T) {
	client := echoClient(prompt.ProviderOpenAI)
	wf := New("persisted", WithWorkflowID("wf-1"))
	wf.RegisterAgent(mustAgent(t, "a1", client))
	require.NoError(t, wf.AddTask(agent.NewTask("a1", mustPrompt(t, prompt.ProviderOpenAI, "hello"), agent.WithTaskID("t1"))))

	data, err := json.Marshal(wf)
	require.NoError(t, err)

	var decoded Workflow
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "wf-1", decoded.ID)
	assert.Equal(t, "persisted", decoded.Name)
	assert.Equal(t, []string{"t1"}, decoded.TaskNames())

	a, ok := decoded.Agent("a1")
	require.True(t, ok)
	assert.Equal(t, prompt.ProviderOpenAI, a.Provider())

	// Deserialized agents have no client until rebound.
	_, err = decoded.Run(context.Background())
	var mrErr *MaxRetriesExceededError
	assert.ErrorAs(t, err, &mrErr)
}

func TestExecutionPlanOnWorkflow(t *testing.T) {
	wf := New("plan")
	require.NoError(t, wf.AddTask(newTask(t, "a")))
	require.NoError(t, wf.AddTask(newTask(t, "b", "a")))

	plan := wf.ExecutionPlan()
	require.Len(t, plan, 2)
	assert.Equal(t, []string{"a"}, plan[0])
	assert.Equal(t, []string{"b"}, plan[1])
}
