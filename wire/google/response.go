package google

// ModalityTokenCount breaks token usage down by modality.
type ModalityTokenCount struct {
	Modality   string `json:"modality,omitempty"`
	TokenCount int    `json:"tokenCount,omitempty"`
}

// UsageMetadata is the token accounting block of a response.
type UsageMetadata struct {
	PromptTokenCount        int                  `json:"promptTokenCount,omitempty"`
	CandidatesTokenCount    int                  `json:"candidatesTokenCount,omitempty"`
	ToolUsePromptTokenCount int                  `json:"toolUsePromptTokenCount,omitempty"`
	ThoughtsTokenCount      int                  `json:"thoughtsTokenCount,omitempty"`
	TotalTokenCount         int                  `json:"totalTokenCount,omitempty"`
	CachedContentTokenCount int                  `json:"cachedContentTokenCount,omitempty"`
	PromptTokensDetails     []ModalityTokenCount `json:"promptTokensDetails,omitempty"`
	CandidatesTokensDetails []ModalityTokenCount `json:"candidatesTokensDetails,omitempty"`
	TrafficType             string               `json:"trafficType,omitempty"`
}

// SafetyRating is one harm category probability of a candidate.
type SafetyRating struct {
	Category    string   `json:"category,omitempty"`
	Probability string   `json:"probability,omitempty"`
	Severity    string   `json:"severity,omitempty"`
	Score       *float64 `json:"probabilityScore,omitempty"`
	Blocked     *bool    `json:"blocked,omitempty"`
}

// LogProbsCandidate is one token with its log probability.
type LogProbsCandidate struct {
	Token          string   `json:"token,omitempty"`
	TokenID        *int     `json:"tokenId,omitempty"`
	LogProbability *float64 `json:"logProbability,omitempty"`
}

// TopCandidates lists alternatives for one decoding step.
type TopCandidates struct {
	Candidates []LogProbsCandidate `json:"candidates,omitempty"`
}

// LogProbsResult carries per-step log probabilities of a candidate.
type LogProbsResult struct {
	TopCandidates    []TopCandidates     `json:"topCandidates,omitempty"`
	ChosenCandidates []LogProbsCandidate `json:"chosenCandidates,omitempty"`
}

// PromptFeedback reports prompt-level blocking.
type PromptFeedback struct {
	BlockReason        string         `json:"blockReason,omitempty"`
	BlockReasonMessage string         `json:"blockReasonMessage,omitempty"`
	SafetyRatings      []SafetyRating `json:"safetyRatings,omitempty"`
}

// Candidate is one generation alternative.
type Candidate struct {
	Index            int             `json:"index"`
	Content          Content         `json:"content"`
	AvgLogProbs      *float64        `json:"avgLogprobs,omitempty"`
	LogProbsResult   *LogProbsResult `json:"logprobsResult,omitempty"`
	FinishReason     string          `json:"finishReason,omitempty"`
	FinishMessage    string          `json:"finishMessage,omitempty"`
	SafetyRatings    []SafetyRating  `json:"safetyRatings,omitempty"`
}

// GenerateContentResponse is the generateContent response body.
type GenerateContentResponse struct {
	Candidates     []Candidate     `json:"candidates"`
	ModelVersion   string          `json:"modelVersion,omitempty"`
	CreateTime     string          `json:"createTime,omitempty"`
	ResponseID     string          `json:"responseId,omitempty"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *UsageMetadata  `json:"usageMetadata,omitempty"`
}

// TextContent returns the text of the first candidate's first text part, or
// empty.
func (r GenerateContentResponse) TextContent() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0].Content.Text()
}

// DigitLogProbs returns the chosen token/logprob pairs of the first
// candidate filtered to tokens that are a single ASCII digit.
func (r GenerateContentResponse) DigitLogProbs() []LogProbsCandidate {
	if len(r.Candidates) == 0 || r.Candidates[0].LogProbsResult == nil {
		return nil
	}
	var out []LogProbsCandidate
	for _, c := range r.Candidates[0].LogProbsResult.ChosenCandidates {
		if len(c.Token) == 1 && c.Token[0] >= '0' && c.Token[0] <= '9' {
			out = append(out, c)
		}
	}
	return out
}
