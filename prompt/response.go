package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	anthropicwire "github.com/demml/potatohead-go/wire/anthropic"
	googlewire "github.com/demml/potatohead-go/wire/google"
	openaiwire "github.com/demml/potatohead-go/wire/openai"
)

// TokenUsage normalizes token accounting across providers.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// TokenLogProb is one emitted token with its log probability.
type TokenLogProb struct {
	Token   string  `json:"token"`
	LogProb float64 `json:"logprob"`
}

// ChatResponse is the closed union of provider response shapes, normalized
// behind one accessor set.
type ChatResponse interface {
	isChatResponse()

	// Provider returns the response's provider family.
	Provider() Provider
	// ID returns the provider-assigned response id.
	ID() string
	// Content returns the primary text content, or empty.
	Content() string
	// Usage returns normalized token accounting.
	Usage() TokenUsage
	// DigitLogProbs returns emitted-token log probabilities filtered to
	// single ASCII digits.
	DigitLogProbs() []TokenLogProb
	// StructuredData returns the response's JSON payload: the text content
	// when it parses as an object or array, otherwise the arguments of the
	// first tool call. The second result is false when neither exists.
	StructuredData() (json.RawMessage, bool)
	// ToMessage re-expresses the response as a conversation message for a
	// follow-up request in the same provider format.
	ToMessage(role Role) (Message, error)
	// IsEmpty reports whether the response carries no usable payload.
	IsEmpty() bool
}

func structuredText(content string) (json.RawMessage, bool) {
	if content == "" {
		return nil, false
	}
	parsed := gjson.Parse(content)
	if !parsed.IsObject() && !parsed.IsArray() {
		return nil, false
	}
	if !json.Valid([]byte(content)) {
		return nil, false
	}
	return json.RawMessage(content), true
}

// OpenAIResponse wraps a chat-completions response.
type OpenAIResponse struct {
	openaiwire.ChatResponse
}

func (*OpenAIResponse) isChatResponse() {}

func (r *OpenAIResponse) Provider() Provider { return ProviderOpenAI }

func (r *OpenAIResponse) ID() string { return r.ChatResponse.ID }

func (r *OpenAIResponse) Usage() TokenUsage {
	u := r.ChatResponse.Usage
	return TokenUsage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}

func (r *OpenAIResponse) DigitLogProbs() []TokenLogProb {
	var out []TokenLogProb
	for _, lc := range r.ChatResponse.DigitLogProbs() {
		out = append(out, TokenLogProb{Token: lc.Token, LogProb: lc.LogProb})
	}
	return out
}

func (r *OpenAIResponse) StructuredData() (json.RawMessage, bool) {
	if data, ok := structuredText(r.Content()); ok {
		return data, true
	}
	if len(r.Choices) > 0 && len(r.Choices[0].Message.ToolCalls) > 0 {
		args := r.Choices[0].Message.ToolCalls[0].Function.Arguments
		if json.Valid([]byte(args)) {
			return json.RawMessage(args), true
		}
	}
	return nil, false
}

func (r *OpenAIResponse) ToMessage(role Role) (Message, error) {
	if r.IsEmpty() {
		return nil, &EmptyResponseError{Provider: ProviderOpenAI}
	}
	return NewOpenAIMessage(role, r.Content()), nil
}

func (r *OpenAIResponse) IsEmpty() bool {
	if len(r.Choices) == 0 {
		return true
	}
	_, structured := r.StructuredData()
	return r.Content() == "" && !structured
}

// AnthropicResponse wraps a Messages response.
type AnthropicResponse struct {
	anthropicwire.ChatResponse
}

func (*AnthropicResponse) isChatResponse() {}

func (r *AnthropicResponse) Provider() Provider { return ProviderAnthropic }

func (r *AnthropicResponse) ID() string { return r.ChatResponse.ID }

func (r *AnthropicResponse) Content() string { return r.TextContent() }

func (r *AnthropicResponse) Usage() TokenUsage {
	u := r.ChatResponse.Usage
	return TokenUsage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.InputTokens + u.OutputTokens,
	}
}

// DigitLogProbs returns nil; the Messages API exposes no log probabilities.
func (r *AnthropicResponse) DigitLogProbs() []TokenLogProb { return nil }

func (r *AnthropicResponse) StructuredData() (json.RawMessage, bool) {
	if data, ok := structuredText(r.Content()); ok {
		return data, true
	}
	for _, block := range r.ChatResponse.Content {
		if tu, ok := block.(anthropicwire.ResponseToolUseBlock); ok {
			return tu.Input, true
		}
	}
	return nil, false
}

// ToMessage converts every response block to its request form. Blocks that
// have no request form, such as errored web search results, fail the
// conversion.
func (r *AnthropicResponse) ToMessage(role Role) (Message, error) {
	if r.IsEmpty() {
		return nil, &EmptyResponseError{Provider: ProviderAnthropic}
	}
	blocks := make([]anthropicwire.ContentBlock, 0, len(r.ChatResponse.Content))
	for _, block := range r.ChatResponse.Content {
		rb, err := anthropicwire.ToRequestBlock(block)
		if err != nil {
			return nil, fmt.Errorf("convert response block: %w", err)
		}
		blocks = append(blocks, rb)
	}
	return &AnthropicMessage{Message: anthropicwire.Message{Role: role.String(), Content: blocks}}, nil
}

func (r *AnthropicResponse) IsEmpty() bool { return len(r.ChatResponse.Content) == 0 }

// GeminiResponse wraps a generateContent response shared by Gemini and
// Vertex.
type GeminiResponse struct {
	googlewire.GenerateContentResponse
}

func (*GeminiResponse) isChatResponse() {}

func (r *GeminiResponse) Provider() Provider { return ProviderGemini }

func (r *GeminiResponse) ID() string { return r.ResponseID }

func (r *GeminiResponse) Content() string { return r.TextContent() }

func (r *GeminiResponse) Usage() TokenUsage {
	if r.UsageMetadata == nil {
		return TokenUsage{}
	}
	return TokenUsage{
		InputTokens:  r.UsageMetadata.PromptTokenCount,
		OutputTokens: r.UsageMetadata.CandidatesTokenCount,
		TotalTokens:  r.UsageMetadata.TotalTokenCount,
	}
}

func (r *GeminiResponse) DigitLogProbs() []TokenLogProb {
	var out []TokenLogProb
	for _, c := range r.GenerateContentResponse.DigitLogProbs() {
		lp := 0.0
		if c.LogProbability != nil {
			lp = *c.LogProbability
		}
		out = append(out, TokenLogProb{Token: c.Token, LogProb: lp})
	}
	return out
}

func (r *GeminiResponse) StructuredData() (json.RawMessage, bool) {
	if data, ok := structuredText(r.Content()); ok {
		return data, true
	}
	if len(r.Candidates) > 0 {
		for _, part := range r.Candidates[0].Content.Parts {
			if fc, ok := part.Data.(googlewire.FunctionCallData); ok && len(fc.Args) > 0 {
				return fc.Args, true
			}
		}
	}
	return nil, false
}

// ToMessage reuses the first candidate's content verbatim; the model role
// already marks it as a model turn.
func (r *GeminiResponse) ToMessage(role Role) (Message, error) {
	if r.IsEmpty() {
		return nil, &EmptyResponseError{Provider: ProviderGemini}
	}
	content := r.Candidates[0].Content.Clone()
	if content.Role == "" {
		content.Role = convertRole(role, ProviderGemini).String()
	}
	return &GeminiContent{Content: content}, nil
}

func (r *GeminiResponse) IsEmpty() bool {
	return len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0
}

// UnmarshalChatResponse decodes a response body in the given provider's
// format.
func UnmarshalChatResponse(data []byte, p Provider) (ChatResponse, error) {
	switch {
	case p == ProviderAnthropic:
		var r AnthropicResponse
		if err := json.Unmarshal(data, &r.ChatResponse); err != nil {
			return nil, err
		}
		return &r, nil
	case p.IsGoogleFamily():
		var r GeminiResponse
		if err := json.Unmarshal(data, &r.GenerateContentResponse); err != nil {
			return nil, err
		}
		return &r, nil
	default:
		var r OpenAIResponse
		if err := json.Unmarshal(data, &r.ChatResponse); err != nil {
			return nil, err
		}
		return &r, nil
	}
}
