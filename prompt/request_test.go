package prompt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func floatPtr(f float64) *float64 { return &f }

func TestOpenAIRequestBody(t *testing.T) {
	settings := &OpenAIChatSettings{}
	settings.Temperature = floatPtr(0.2)
	p, err := NewFromText(ProviderOpenAI, "gpt-4o", "hello", WithSettings(settings))
	require.NoError(t, err)

	body, err := p.Request.RequestBody()
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "gpt-4o", parsed.Get("model").String())
	assert.Equal(t, int64(1), parsed.Get("messages.#").Int())
	assert.Equal(t, 0.2, parsed.Get("temperature").Float())
	assert.False(t, parsed.Get("response_format").Exists())
}

func TestOpenAIRequestBodyStructuredOutput(t *testing.T) {
	p, err := NewFromText(ProviderOpenAI, "gpt-4o", "rate this", WithOutput(ScoreOutput{}))
	require.NoError(t, err)

	body, err := p.Request.RequestBody()
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "json_schema", parsed.Get("response_format.type").String())
	assert.Equal(t, "Score", parsed.Get("response_format.json_schema.name").String())
	assert.True(t, parsed.Get("response_format.json_schema.strict").Bool())
	assert.True(t, parsed.Get("response_format.json_schema.schema.properties.score").Exists())
}

func TestRequestBodyOmitsExtraBody(t *testing.T) {
	settings := &OpenAIChatSettings{}
	settings.Settings.ExtraBody = json.RawMessage(`{"custom":"x"}`)
	p, err := NewFromText(ProviderOpenAI, "gpt-4o", "hello", WithSettings(settings))
	require.NoError(t, err)

	body, err := p.Request.RequestBody()
	require.NoError(t, err)

	// Clients merge extra_body separately; the flattened body never carries
	// the key itself.
	assert.False(t, gjson.GetBytes(body, "extra_body").Exists())
	assert.False(t, gjson.GetBytes(body, "custom").Exists())
	assert.Equal(t, json.RawMessage(`{"custom":"x"}`), p.Request.ExtraBody())
}

func TestAnthropicRequestBody(t *testing.T) {
	p, err := NewFromText(ProviderAnthropic, "claude-sonnet-4-5", "hello",
		WithSystemText("be brief"))
	require.NoError(t, err)

	body, err := p.Request.RequestBody()
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "claude-sonnet-4-5", parsed.Get("model").String())
	assert.Equal(t, int64(4096), parsed.Get("max_tokens").Int())
	assert.Equal(t, "be brief", parsed.Get("system.0.text").String())
	assert.Equal(t, "user", parsed.Get("messages.0.role").String())
}

func TestAnthropicRequestBodyStructuredOutput(t *testing.T) {
	p, err := NewFromText(ProviderAnthropic, "claude-sonnet-4-5", "rate this",
		WithOutput(ScoreOutput{}))
	require.NoError(t, err)

	body, err := p.Request.RequestBody()
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "json_schema", parsed.Get("output_format.type").String())
	assert.True(t, parsed.Get("output_format.schema.properties.score").Exists())
}

func TestGeminiRequestBody(t *testing.T) {
	p, err := NewFromText(ProviderGemini, "gemini-2.0-flash", "hello",
		WithSystemText("be brief"))
	require.NoError(t, err)

	body, err := p.Request.RequestBody()
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "hello", parsed.Get("contents.0.parts.0.text").String())
	assert.Equal(t, "be brief", parsed.Get("system_instruction.parts.0.text").String())
	// The model rides in the URL, never the body.
	assert.False(t, parsed.Get("model").Exists())
}

func TestGeminiRequestBodyStructuredOutput(t *testing.T) {
	p, err := NewFromText(ProviderGemini, "gemini-2.0-flash", "rate this",
		WithOutput(ScoreOutput{}))
	require.NoError(t, err)

	body, err := p.Request.RequestBody()
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "application/json", parsed.Get("generationConfig.responseMimeType").String())
	assert.True(t, parsed.Get("generationConfig.responseJsonSchema.properties.score").Exists())

	// Applying the schema must not leak into the stored settings.
	req := p.Request.(*GeminiRequest)
	assert.Nil(t, req.Settings().GenerationConfig)
}

func TestGeminiSingleSystemInstruction(t *testing.T) {
	_, err := New(ProviderGemini, "gemini-2.0-flash",
		[]Message{NewUserMessage(ProviderGemini, "hi")},
		WithSystemText("one", "two"))
	assert.ErrorIs(t, err, ErrTooManySystemInstructions)
}

func TestGeminiSystemInstructionReplaced(t *testing.T) {
	p, err := NewFromText(ProviderGemini, "gemini-2.0-flash", "hello",
		WithSystemText("first"))
	require.NoError(t, err)

	// Filling the occupied slot replaces it rather than erroring, so
	// repeated prepends (one per execution attempt) stay legal.
	err = p.Request.PrependSystemInstructions(
		[]Message{NewSystemInstruction(ProviderGemini, "second")})
	require.NoError(t, err)

	sys := p.Request.SystemInstructions()
	require.Len(t, sys, 1)

	body, err := p.Request.RequestBody()
	require.NoError(t, err)
	assert.Equal(t, "second", gjson.GetBytes(body, "system_instruction.parts.0.text").String())
}

func TestAddToolsPerVendorShape(t *testing.T) {
	tool := ToolDefinition{
		Name:        "lookup",
		Description: "Look something up",
		Parameters:  map[string]any{"type": "object"},
	}

	openaiPrompt, err := NewFromText(ProviderOpenAI, "gpt-4o", "hi", WithTools(tool))
	require.NoError(t, err)
	body, err := openaiPrompt.Request.RequestBody()
	require.NoError(t, err)
	assert.Equal(t, "function", gjson.GetBytes(body, "tools.0.type").String())
	assert.Equal(t, "lookup", gjson.GetBytes(body, "tools.0.function.name").String())

	anthropicPrompt, err := NewFromText(ProviderAnthropic, "claude-sonnet-4-5", "hi", WithTools(tool))
	require.NoError(t, err)
	body, err = anthropicPrompt.Request.RequestBody()
	require.NoError(t, err)
	assert.Equal(t, "lookup", gjson.GetBytes(body, "tools.0.name").String())
	assert.True(t, gjson.GetBytes(body, "tools.0.input_schema").Exists())

	geminiPrompt, err := NewFromText(ProviderGemini, "gemini-2.0-flash", "hi", WithTools(tool))
	require.NoError(t, err)
	body, err = geminiPrompt.Request.RequestBody()
	require.NoError(t, err)
	assert.Equal(t, "lookup", gjson.GetBytes(body, "tools.0.functionDeclarations.0.name").String())
}

func TestInsertMessagesValidatesVariant(t *testing.T) {
	p, err := NewFromText(ProviderOpenAI, "gpt-4o", "hi")
	require.NoError(t, err)

	err = p.Request.InsertMessages(0, []Message{NewUserMessage(ProviderAnthropic, "nope")})
	assert.Error(t, err)

	err = p.Request.InsertMessages(5, []Message{NewUserMessage(ProviderOpenAI, "ok")})
	assert.Error(t, err)
}

func TestRequestCloneIsDeep(t *testing.T) {
	p, err := NewFromText(ProviderAnthropic, "claude-sonnet-4-5", "Rate ${x}.")
	require.NoError(t, err)

	c := p.Request.Clone()
	c.Messages()[0].BindMut("x", "it")

	assert.Equal(t, "Rate ${x}.", p.Request.Messages()[0].Text())
	assert.Equal(t, "Rate it.", c.Messages()[0].Text())
}
