package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// ResponseBlock is the closed union of response content blocks.
type ResponseBlock interface {
	isResponseBlock()
}

// ResponseTextBlock is a text block of a response, optionally cited.
type ResponseTextBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Citations json.RawMessage `json:"citations,omitempty"`
}

func (ResponseTextBlock) isResponseBlock() {}

// ResponseThinkingBlock carries extended-thinking output.
type ResponseThinkingBlock struct {
	Type      string `json:"type"`
	Thinking  string `json:"thinking"`
	Signature string `json:"signature,omitempty"`
}

func (ResponseThinkingBlock) isResponseBlock() {}

// ResponseRedactedThinkingBlock carries redacted thinking output.
type ResponseRedactedThinkingBlock struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func (ResponseRedactedThinkingBlock) isResponseBlock() {}

// ResponseToolUseBlock is a tool invocation emitted by the model.
type ResponseToolUseBlock struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (ResponseToolUseBlock) isResponseBlock() {}

// ResponseServerToolUseBlock is a server-side tool invocation.
type ResponseServerToolUseBlock struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (ResponseServerToolUseBlock) isResponseBlock() {}

// WebSearchResult is one result inside a web search tool result block.
type WebSearchResult struct {
	Type             string `json:"type"`
	EncryptedContent string `json:"encrypted_content"`
	Title            string `json:"title"`
	URL              string `json:"url"`
	PageAge          string `json:"page_age,omitempty"`
}

// ResponseWebSearchToolResultBlock wraps web search tool results. Content is
// either a result array or an error object; it is kept raw and interpreted on
// demand.
type ResponseWebSearchToolResultBlock struct {
	Type      string          `json:"type"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
}

func (ResponseWebSearchToolResultBlock) isResponseBlock() {}

// Results decodes the content as a result list. It returns false when the
// content carries an error object instead.
func (b ResponseWebSearchToolResultBlock) Results() ([]WebSearchResult, bool) {
	if !gjson.ParseBytes(b.Content).IsArray() {
		return nil, false
	}
	var results []WebSearchResult
	if err := json.Unmarshal(b.Content, &results); err != nil {
		return nil, false
	}
	return results, true
}

// UnmarshalResponseBlock decodes one response content block by its "type" tag.
func UnmarshalResponseBlock(data []byte) (ResponseBlock, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("decode response block: %w", err)
	}
	switch tag.Type {
	case TypeText:
		var b ResponseTextBlock
		return b, json.Unmarshal(data, &b)
	case TypeThinking:
		var b ResponseThinkingBlock
		return b, json.Unmarshal(data, &b)
	case TypeRedactedThinking:
		var b ResponseRedactedThinkingBlock
		return b, json.Unmarshal(data, &b)
	case TypeToolUse:
		var b ResponseToolUseBlock
		return b, json.Unmarshal(data, &b)
	case TypeServerToolUse:
		var b ResponseServerToolUseBlock
		return b, json.Unmarshal(data, &b)
	case "web_search_tool_result":
		var b ResponseWebSearchToolResultBlock
		return b, json.Unmarshal(data, &b)
	default:
		return nil, fmt.Errorf("unknown response block type %q", tag.Type)
	}
}

// ToRequestBlock converts a response content block into the request block
// used to replay it in a follow-up conversation turn. Citations keep only the
// first entry, matching the singular citation of the request shape. Web
// search tool results collapse to their first result; an error result is not
// convertible.
func ToRequestBlock(block ResponseBlock) (ContentBlock, error) {
	switch b := block.(type) {
	case ResponseTextBlock:
		return TextBlock{Type: b.Type, Text: b.Text, Citations: firstCitation(b.Citations)}, nil
	case ResponseThinkingBlock:
		return ThinkingBlock{Type: b.Type, Thinking: b.Thinking, Signature: b.Signature}, nil
	case ResponseRedactedThinkingBlock:
		return RedactedThinkingBlock{Type: b.Type, Data: b.Data}, nil
	case ResponseToolUseBlock:
		return ToolUseBlock{Type: b.Type, ID: b.ID, Name: b.Name, Input: b.Input}, nil
	case ResponseServerToolUseBlock:
		return ServerToolUseBlock{Type: b.Type, ID: b.ID, Name: b.Name, Input: b.Input}, nil
	case ResponseWebSearchToolResultBlock:
		results, ok := b.Results()
		if !ok {
			return nil, fmt.Errorf("web search tool result carries an error, not convertible")
		}
		if len(results) == 0 {
			return nil, fmt.Errorf("web search tool result must contain at least one result")
		}
		first := results[0]
		return WebSearchResultBlock{
			Type:             first.Type,
			EncryptedContent: first.EncryptedContent,
			Title:            first.Title,
			URL:              first.URL,
			PageAge:          first.PageAge,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported response block %T", block)
	}
}

func firstCitation(citations json.RawMessage) json.RawMessage {
	parsed := gjson.ParseBytes(citations)
	if !parsed.IsArray() {
		return nil
	}
	arr := parsed.Array()
	if len(arr) == 0 {
		return nil
	}
	return json.RawMessage(arr[0].Raw)
}

// Usage is the token accounting block of a response.
type Usage struct {
	InputTokens              int    `json:"input_tokens"`
	OutputTokens             int    `json:"output_tokens"`
	CacheCreationInputTokens *int   `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     *int   `json:"cache_read_input_tokens,omitempty"`
	ServiceTier              string `json:"service_tier,omitempty"`
}

// ChatResponse is the Messages response body.
type ChatResponse struct {
	ID           string          `json:"id"`
	Model        string          `json:"model"`
	Role         string          `json:"role"`
	StopReason   string          `json:"stop_reason,omitempty"`
	StopSequence string          `json:"stop_sequence,omitempty"`
	Type         string          `json:"type"`
	Usage        Usage           `json:"usage"`
	Content      []ResponseBlock `json:"content"`
}

// UnmarshalJSON decodes the polymorphic content array.
func (r *ChatResponse) UnmarshalJSON(data []byte) error {
	type alias ChatResponse
	var raw struct {
		alias
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = ChatResponse(raw.alias)
	r.Content = make([]ResponseBlock, 0, len(raw.Content))
	for _, rc := range raw.Content {
		block, err := UnmarshalResponseBlock(rc)
		if err != nil {
			return err
		}
		r.Content = append(r.Content, block)
	}
	return nil
}

// TextContent returns the text of the first text block, or empty.
func (r ChatResponse) TextContent() string {
	for _, block := range r.Content {
		if tb, ok := block.(ResponseTextBlock); ok {
			return tb.Text
		}
	}
	return ""
}
