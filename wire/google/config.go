package google

import "encoding/json"

// ThinkingConfig tunes extended thinking.
type ThinkingConfig struct {
	IncludeThoughts *bool  `json:"includeThoughts,omitempty"`
	ThinkingBudget  *int   `json:"thinkingBudget,omitempty"`
	ThinkingLevel   string `json:"thinkingLevel,omitempty"`
}

// SafetySetting configures one harm category threshold.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
	Method    string `json:"method,omitempty"`
}

// GenerationConfig is the generationConfig block of a request.
type GenerationConfig struct {
	StopSequences      []string        `json:"stopSequences,omitempty"`
	ResponseMimeType   string          `json:"responseMimeType,omitempty"`
	ResponseJSONSchema json.RawMessage `json:"responseJsonSchema,omitempty"`
	ResponseModalities []string        `json:"responseModalities,omitempty"`
	CandidateCount     *int            `json:"candidateCount,omitempty"`
	MaxOutputTokens    *int            `json:"maxOutputTokens,omitempty"`
	Temperature        *float64        `json:"temperature,omitempty"`
	TopP               *float64        `json:"topP,omitempty"`
	TopK               *int            `json:"topK,omitempty"`
	PresencePenalty    *float64        `json:"presencePenalty,omitempty"`
	FrequencyPenalty   *float64        `json:"frequencyPenalty,omitempty"`
	Seed               *int            `json:"seed,omitempty"`
	ResponseLogProbs   *bool           `json:"responseLogprobs,omitempty"`
	LogProbs           *int            `json:"logprobs,omitempty"`
	ThinkingConfig     *ThinkingConfig `json:"thinkingConfig,omitempty"`
	MediaResolution    string          `json:"mediaResolution,omitempty"`
	AudioTimestamp     *bool           `json:"audioTimestamp,omitempty"`
}

// FunctionDeclaration declares one callable function of a tool.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Tool is one entry of the request tools array.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
}

// FunctionCallingConfig steers function calling mode.
type FunctionCallingConfig struct {
	Mode                 string   `json:"mode,omitempty"`
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

// ToolConfig configures tool behavior for the whole request.
type ToolConfig struct {
	FunctionCallingConfig *FunctionCallingConfig `json:"functionCallingConfig,omitempty"`
}

// Settings carries every tunable generateContent parameter outside the
// contents and systemInstruction fields. Fields are flattened into the
// request body.
type Settings struct {
	Labels           map[string]string `json:"labels,omitempty"`
	ToolConfig       *ToolConfig       `json:"toolConfig,omitempty"`
	SafetySettings   []SafetySetting   `json:"safetySettings,omitempty"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
	CachedContent    string            `json:"cachedContent,omitempty"`
	Tools            []Tool            `json:"tools,omitempty"`

	// ExtraBody is shallow-merged into the serialized request; its keys
	// override fields already present.
	ExtraBody json.RawMessage `json:"extra_body,omitempty"`
}

// ConfigureStructuredOutput switches the response to JSON constrained by
// schema, creating the generation config when absent.
func (s *Settings) ConfigureStructuredOutput(schema json.RawMessage) {
	if s.GenerationConfig == nil {
		s.GenerationConfig = &GenerationConfig{}
	}
	s.GenerationConfig.ResponseMimeType = "application/json"
	s.GenerationConfig.ResponseJSONSchema = schema
}
