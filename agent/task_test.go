package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demml/potatohead-go/prompt"
	anthropicwire "github.com/demml/potatohead-go/wire/anthropic"
	openaiwire "github.com/demml/potatohead-go/wire/openai"
)

func testPrompt(t *testing.T) *prompt.Prompt {
	t.Helper()
	p, err := prompt.NewFromText(prompt.ProviderOpenAI, "gpt-4o", "Rate ${subject}.")
	require.NoError(t, err)
	return p
}

func textResponse(id, text string) *prompt.OpenAIResponse {
	return &prompt.OpenAIResponse{ChatResponse: openaiwire.ChatResponse{
		ID: id,
		Choices: []openaiwire.Choice{{
			Message: openaiwire.ResponseMessage{Role: "assistant", Content: &text},
		}},
	}}
}

func anthropicTextResponse(id, text string) *prompt.AnthropicResponse {
	return &prompt.AnthropicResponse{ChatResponse: anthropicwire.ChatResponse{
		ID:   id,
		Role: "assistant",
		Content: []anthropicwire.ResponseBlock{
			anthropicwire.ResponseTextBlock{Type: "text", Text: text},
		},
	}}
}

func TestNewTaskDefaults(t *testing.T) {
	task := NewTask("writer", testPrompt(t))

	assert.NotEmpty(t, task.ID())
	assert.Equal(t, "writer", task.AgentID())
	assert.Equal(t, StatusPending, task.Status())
	assert.Equal(t, DefaultMaxRetries, task.MaxRetries())
	assert.Zero(t, task.RetryCount())
	assert.Nil(t, task.Result())
}

func TestTaskLifecycle(t *testing.T) {
	task := NewTask("writer", testPrompt(t), WithTaskID("t1"))

	task.SetRunning()
	assert.Equal(t, StatusRunning, task.Status())

	res := &Response{TaskID: "t1", Response: textResponse("r1", "done")}
	task.Complete(res)
	assert.Equal(t, StatusCompleted, task.Status())
	assert.Same(t, res, task.Result())
}

func TestPrepareRetry(t *testing.T) {
	task := NewTask("writer", testPrompt(t), WithMaxRetries(1))

	// Non-failed tasks are untouched.
	retried, exceeded := task.PrepareRetry()
	assert.False(t, retried)
	assert.False(t, exceeded)
	assert.Zero(t, task.RetryCount())

	task.Fail()
	retried, exceeded = task.PrepareRetry()
	assert.True(t, retried)
	assert.False(t, exceeded)
	assert.Equal(t, 1, task.RetryCount())
	assert.Equal(t, StatusPending, task.Status())

	// The increment past the budget is still charged and the task stays
	// failed.
	task.Fail()
	retried, exceeded = task.PrepareRetry()
	assert.False(t, retried)
	assert.True(t, exceeded)
	assert.Equal(t, 2, task.RetryCount())
	assert.Equal(t, StatusFailed, task.Status())
}

func TestTaskCloneIsIndependent(t *testing.T) {
	task := NewTask("writer", testPrompt(t), WithTaskID("t1"), WithDependencies("t0"))
	task.Fail()

	clone := task.Clone()
	assert.Equal(t, task.ID(), clone.ID())
	assert.Equal(t, StatusFailed, clone.Status())
	assert.Equal(t, []string{"t0"}, clone.Dependencies())

	require.NoError(t, clone.Prompt().BindMut("subject", "it"))
	assert.Equal(t, "Rate ${subject}.", task.Prompt().Request.Messages()[0].Text())
}

func TestTaskJSONRoundTrip(t *testing.T) {
	task := NewTask("writer", testPrompt(t), WithTaskID("t1"), WithDependencies("t0"))
	task.Complete(&Response{TaskID: "t1", Response: textResponse("r1", "done")})

	data, err := json.Marshal(task)
	require.NoError(t, err)

	var decoded Task
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "t1", decoded.ID())
	assert.Equal(t, "writer", decoded.AgentID())
	assert.Equal(t, []string{"t0"}, decoded.Dependencies())
	assert.Equal(t, StatusCompleted, decoded.Status())
	require.NotNil(t, decoded.Result())
	assert.Equal(t, "done", decoded.Result().Response.Content())
}

func TestResponseStructuredOutput(t *testing.T) {
	res := &Response{TaskID: "t1", Response: textResponse("r1", `{"score":4}`)}
	data, ok := res.StructuredOutput()
	require.True(t, ok)
	assert.JSONEq(t, `{"score":4}`, string(data))

	var nilRes *Response
	_, ok = nilRes.StructuredOutput()
	assert.False(t, ok)
}
