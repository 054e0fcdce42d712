package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	anthropicwire "github.com/demml/potatohead-go/wire/anthropic"
)

func TestExtractVariables(t *testing.T) {
	m := NewUserMessage(ProviderOpenAI, "Summarize ${topic} for ${audience}, focusing on ${topic}.")
	assert.Equal(t, []string{"topic", "audience"}, ExtractVariables(m))

	plain := NewUserMessage(ProviderOpenAI, "no placeholders here")
	assert.Empty(t, ExtractVariables(plain))
}

func TestBindLeavesOriginal(t *testing.T) {
	m := NewUserMessage(ProviderAnthropic, "Rate ${subject}.")

	bound := Bind(m, "subject", "the abstract")
	assert.Equal(t, "Rate the abstract.", bound.Text())
	assert.Equal(t, "Rate ${subject}.", m.Text())
}

func TestBindMutUnknownNameIsNoOp(t *testing.T) {
	m := NewUserMessage(ProviderGemini, "Rate ${subject}.")
	m.BindMut("other", "x")
	assert.Equal(t, "Rate ${subject}.", m.Text())
}

func TestIsSystemMessage(t *testing.T) {
	assert.True(t, IsSystemMessage(NewSystemInstruction(ProviderOpenAI, "be brief")))
	assert.True(t, IsSystemMessage(NewSystemInstruction(ProviderAnthropic, "be brief")))
	assert.True(t, IsSystemMessage(NewSystemInstruction(ProviderGemini, "be brief")))
	assert.False(t, IsSystemMessage(NewUserMessage(ProviderOpenAI, "hi")))
}

func TestConvertMessageAcrossProviders(t *testing.T) {
	src := NewUserMessage(ProviderOpenAI, "hello")

	converted, err := ConvertMessage(src, ProviderAnthropic)
	require.NoError(t, err)
	am, ok := converted.(*AnthropicMessage)
	require.True(t, ok)
	assert.Equal(t, RoleUser, am.Role())
	assert.Equal(t, "hello", am.Text())

	converted, err = ConvertMessage(src, ProviderGemini)
	require.NoError(t, err)
	gc, ok := converted.(*GeminiContent)
	require.True(t, ok)
	assert.Equal(t, "hello", gc.Text())
}

func TestConvertMessageSameProviderUnchanged(t *testing.T) {
	src := NewUserMessage(ProviderOpenAI, "hello")
	converted, err := ConvertMessage(src, ProviderOpenAI)
	require.NoError(t, err)
	assert.Same(t, src, converted)

	// Gemini and Vertex share a wire format.
	g := NewUserMessage(ProviderGemini, "hello")
	converted, err = ConvertMessage(g, ProviderVertex)
	require.NoError(t, err)
	assert.Same(t, g, converted)
}

func TestConvertRoleGeminiModel(t *testing.T) {
	src := NewOpenAIMessage(RoleAssistant, "earlier answer")

	converted, err := ConvertMessage(src, ProviderGemini)
	require.NoError(t, err)
	assert.Equal(t, RoleModel, converted.Role())

	back, err := ConvertMessage(converted, ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, back.Role())
}

func TestConvertMessageNonTextFails(t *testing.T) {
	m := &AnthropicMessage{Message: anthropicwire.Message{
		Role: "user",
		Content: []anthropicwire.ContentBlock{
			anthropicwire.NewTextBlock("look at this"),
			anthropicwire.ImageBlock{Type: "image"},
		},
	}}

	_, err := ConvertMessage(m, ProviderOpenAI)
	var cerr *UnsupportedConversionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ProviderAnthropic, cerr.From)
	assert.Equal(t, ProviderOpenAI, cerr.To)
}

func TestSystemMessagesFromAnthropic(t *testing.T) {
	m := &AnthropicMessage{Message: anthropicwire.Message{
		Role: "assistant",
		Content: []anthropicwire.ContentBlock{
			anthropicwire.NewTextBlock("first"),
			anthropicwire.NewTextBlock("second"),
		},
	}}

	system, err := SystemMessagesFromAnthropic(m)
	require.NoError(t, err)
	require.Len(t, system, 2)
	assert.Equal(t, "first", system[0].Text())
	assert.Equal(t, "second", system[1].Text())
}

func TestUnmarshalMessageAnthropicShapes(t *testing.T) {
	conv, err := UnmarshalMessage([]byte(`{"role":"user","content":[{"type":"text","text":"hi"}]}`), ProviderAnthropic)
	require.NoError(t, err)
	_, ok := conv.(*AnthropicMessage)
	assert.True(t, ok)

	system, err := UnmarshalMessage([]byte(`{"type":"text","text":"be brief"}`), ProviderAnthropic)
	require.NoError(t, err)
	sm, ok := system.(*AnthropicSystemMessage)
	require.True(t, ok)
	assert.Equal(t, "be brief", sm.Text())
}
