package openai

// ToolCallFunction names the function and raw arguments of a tool call.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ResponseMessage is the assistant message of a choice.
type ResponseMessage struct {
	Role      string     `json:"role"`
	Content   *string    `json:"content"`
	Refusal   *string    `json:"refusal,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// TopLogProb is one alternative token with its log probability.
type TopLogProb struct {
	Token   string  `json:"token"`
	LogProb float64 `json:"logprob"`
	Bytes   []int   `json:"bytes,omitempty"`
}

// LogProbContent is the log probability record for one emitted token.
type LogProbContent struct {
	Token       string       `json:"token"`
	LogProb     float64      `json:"logprob"`
	Bytes       []int        `json:"bytes,omitempty"`
	TopLogProbs []TopLogProb `json:"top_logprobs,omitempty"`
}

// LogProbs wraps the per-token log probability records of a choice.
type LogProbs struct {
	Content []LogProbContent `json:"content,omitempty"`
	Refusal []LogProbContent `json:"refusal,omitempty"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
	LogProbs     *LogProbs       `json:"logprobs,omitempty"`
}

// TokenDetails breaks prompt/completion token counts down by category.
type TokenDetails struct {
	AudioTokens              int `json:"audio_tokens,omitempty"`
	CachedTokens             int `json:"cached_tokens,omitempty"`
	ReasoningTokens          int `json:"reasoning_tokens,omitempty"`
	AcceptedPredictionTokens int `json:"accepted_prediction_tokens,omitempty"`
	RejectedPredictionTokens int `json:"rejected_prediction_tokens,omitempty"`
}

// Usage is the token accounting block of a response.
type Usage struct {
	PromptTokens            int           `json:"prompt_tokens"`
	CompletionTokens        int           `json:"completion_tokens"`
	TotalTokens             int           `json:"total_tokens"`
	PromptTokensDetails     *TokenDetails `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *TokenDetails `json:"completion_tokens_details,omitempty"`
}

// ChatResponse is the chat-completion response body.
type ChatResponse struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	Choices           []Choice `json:"choices"`
	Usage             Usage    `json:"usage"`
	ServiceTier       string   `json:"service_tier,omitempty"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`
}

// Content returns the text of the first choice, or empty.
func (r ChatResponse) Content() string {
	if len(r.Choices) == 0 || r.Choices[0].Message.Content == nil {
		return ""
	}
	return *r.Choices[0].Message.Content
}

// DigitLogProbs returns the token/logprob pairs of the first choice filtered
// to tokens that are a single ASCII digit. Score-weighted interpretation of
// structured outputs consumes these.
func (r ChatResponse) DigitLogProbs() []LogProbContent {
	if len(r.Choices) == 0 || r.Choices[0].LogProbs == nil {
		return nil
	}
	var out []LogProbContent
	for _, lc := range r.Choices[0].LogProbs.Content {
		if len(lc.Token) == 1 && lc.Token[0] >= '0' && lc.Token[0] <= '9' {
			out = append(out, lc)
		}
	}
	return out
}
