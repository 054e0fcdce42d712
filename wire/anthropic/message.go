// Package anthropic models the Anthropic Messages wire format. The structs
// here serialize to the exact request and response bodies exchanged with the
// API; transport and authentication live in the provider package.
package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Block type tags.
const (
	TypeText             = "text"
	TypeImage            = "image"
	TypeDocument         = "document"
	TypeThinking         = "thinking"
	TypeRedactedThinking = "redacted_thinking"
	TypeToolUse          = "tool_use"
	TypeToolResult       = "tool_result"
	TypeServerToolUse    = "server_tool_use"
	TypeWebSearchResult  = "web_search_result"
	TypeSearchResult     = "search_result"
)

// CacheControl marks a block as cacheable.
type CacheControl struct {
	Type string `json:"type"`          // "ephemeral"
	TTL  string `json:"ttl,omitempty"` // "5m" or "1h"
}

// ImageSource is the tagged source of an image block ("base64" or "url").
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// DocumentSource is the tagged source of a document block ("base64", "url",
// "text" or "content").
type DocumentSource struct {
	Type      string          `json:"type"`
	MediaType string          `json:"media_type,omitempty"`
	Data      string          `json:"data,omitempty"`
	URL       string          `json:"url,omitempty"`
	Content   []ContentBlock  `json:"content,omitempty"`
	Citations json.RawMessage `json:"citations,omitempty"`
}

// ContentBlock is the closed union of request content blocks.
type ContentBlock interface {
	isContentBlock()
	blockType() string
}

// TextBlock is a plain text block.
type TextBlock struct {
	Type         string          `json:"type"`
	Text         string          `json:"text"`
	CacheControl *CacheControl   `json:"cache_control,omitempty"`
	Citations    json.RawMessage `json:"citations,omitempty"`
}

// NewTextBlock creates a text content block.
func NewTextBlock(text string) TextBlock {
	return TextBlock{Type: TypeText, Text: text}
}

func (TextBlock) isContentBlock()     {}
func (b TextBlock) blockType() string { return TypeText }

// ImageBlock attaches an image.
type ImageBlock struct {
	Type         string        `json:"type"`
	Source       ImageSource   `json:"source"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

func (ImageBlock) isContentBlock()     {}
func (b ImageBlock) blockType() string { return TypeImage }

// DocumentBlock attaches a document.
type DocumentBlock struct {
	Type         string         `json:"type"`
	Source       DocumentSource `json:"source"`
	CacheControl *CacheControl  `json:"cache_control,omitempty"`
	Title        string         `json:"title,omitempty"`
	Context      string         `json:"context,omitempty"`
}

func (DocumentBlock) isContentBlock()     {}
func (b DocumentBlock) blockType() string { return TypeDocument }

// ThinkingBlock carries extended-thinking content.
type ThinkingBlock struct {
	Type      string `json:"type"`
	Thinking  string `json:"thinking"`
	Signature string `json:"signature,omitempty"`
}

func (ThinkingBlock) isContentBlock()     {}
func (b ThinkingBlock) blockType() string { return TypeThinking }

// RedactedThinkingBlock carries redacted thinking data.
type RedactedThinkingBlock struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func (RedactedThinkingBlock) isContentBlock()     {}
func (b RedactedThinkingBlock) blockType() string { return TypeRedactedThinking }

// ToolUseBlock is a tool invocation requested by the model.
type ToolUseBlock struct {
	Type         string          `json:"type"`
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Input        json.RawMessage `json:"input"`
	CacheControl *CacheControl   `json:"cache_control,omitempty"`
}

func (ToolUseBlock) isContentBlock()     {}
func (b ToolUseBlock) blockType() string { return TypeToolUse }

// ToolResultBlock reports the outcome of a tool invocation.
type ToolResultBlock struct {
	Type         string         `json:"type"`
	ToolUseID    string         `json:"tool_use_id"`
	Content      []ContentBlock `json:"content,omitempty"`
	IsError      *bool          `json:"is_error,omitempty"`
	CacheControl *CacheControl  `json:"cache_control,omitempty"`
}

func (ToolResultBlock) isContentBlock()     {}
func (b ToolResultBlock) blockType() string { return TypeToolResult }

// ServerToolUseBlock is a server-side tool invocation.
type ServerToolUseBlock struct {
	Type         string          `json:"type"`
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Input        json.RawMessage `json:"input"`
	CacheControl *CacheControl   `json:"cache_control,omitempty"`
}

func (ServerToolUseBlock) isContentBlock()     {}
func (b ServerToolUseBlock) blockType() string { return TypeServerToolUse }

// WebSearchResultBlock is one web search result.
type WebSearchResultBlock struct {
	Type             string `json:"type"`
	EncryptedContent string `json:"encrypted_content"`
	Title            string `json:"title"`
	URL              string `json:"url"`
	PageAge          string `json:"page_age,omitempty"`
}

func (WebSearchResultBlock) isContentBlock()     {}
func (b WebSearchResultBlock) blockType() string { return TypeWebSearchResult }

// SearchResultBlock is a caller-supplied search result.
type SearchResultBlock struct {
	Type         string          `json:"type"`
	Title        string          `json:"title"`
	Content      []ContentBlock  `json:"content"`
	Source       string          `json:"source"`
	CacheControl *CacheControl   `json:"cache_control,omitempty"`
	Citations    json.RawMessage `json:"citations,omitempty"`
}

func (SearchResultBlock) isContentBlock()     {}
func (b SearchResultBlock) blockType() string { return TypeSearchResult }

// UnmarshalContentBlock decodes one content block by its "type" tag.
func UnmarshalContentBlock(data []byte) (ContentBlock, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("decode content block: %w", err)
	}
	switch tag.Type {
	case TypeText:
		var b TextBlock
		return b, json.Unmarshal(data, &b)
	case TypeImage:
		var b ImageBlock
		return b, json.Unmarshal(data, &b)
	case TypeDocument:
		var b DocumentBlock
		return b, json.Unmarshal(data, &b)
	case TypeThinking:
		var b ThinkingBlock
		return b, json.Unmarshal(data, &b)
	case TypeRedactedThinking:
		var b RedactedThinkingBlock
		return b, json.Unmarshal(data, &b)
	case TypeToolUse:
		var b ToolUseBlock
		return b, json.Unmarshal(data, &b)
	case TypeToolResult:
		var b ToolResultBlock
		return b, json.Unmarshal(data, &b)
	case TypeServerToolUse:
		var b ServerToolUseBlock
		return b, json.Unmarshal(data, &b)
	case TypeWebSearchResult:
		var b WebSearchResultBlock
		return b, json.Unmarshal(data, &b)
	case TypeSearchResult:
		var b SearchResultBlock
		return b, json.Unmarshal(data, &b)
	default:
		return nil, fmt.Errorf("unknown content block type %q", tag.Type)
	}
}

// Message is one entry of the request messages array. Roles are restricted to
// user and assistant on the wire; system content lives in the top-level
// system field.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// NewMessage creates a message with a single text block.
func NewMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{NewTextBlock(text)}}
}

// UnmarshalJSON decodes the polymorphic content array.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string            `json:"role"`
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = make([]ContentBlock, 0, len(raw.Content))
	for _, rc := range raw.Content {
		block, err := UnmarshalContentBlock(rc)
		if err != nil {
			return err
		}
		m.Content = append(m.Content, block)
	}
	return nil
}

// BindMut replaces every occurrence of ${name} in text blocks with value.
// Non-text blocks are untouched.
func (m *Message) BindMut(name, value string) {
	placeholder := "${" + name + "}"
	for i, block := range m.Content {
		if tb, ok := block.(TextBlock); ok {
			tb.Text = strings.ReplaceAll(tb.Text, placeholder, value)
			m.Content[i] = tb
		}
	}
}

// Bind returns a bound copy of the message.
func (m Message) Bind(name, value string) Message {
	nm := m.Clone()
	nm.BindMut(name, value)
	return nm
}

// Clone deep-copies the message.
func (m Message) Clone() Message {
	nm := m
	nm.Content = make([]ContentBlock, len(m.Content))
	copy(nm.Content, m.Content)
	return nm
}

// Text returns the text of the first text block, or empty.
func (m Message) Text() string {
	for _, block := range m.Content {
		if tb, ok := block.(TextBlock); ok {
			return tb.Text
		}
	}
	return ""
}

// TextFragments returns the text of every text block in order.
func (m Message) TextFragments() []string {
	var out []string
	for _, block := range m.Content {
		if tb, ok := block.(TextBlock); ok {
			out = append(out, tb.Text)
		}
	}
	return out
}

// SystemMessage is a single text block used in the top-level system field.
// Anthropic carries system instructions outside the messages array.
type SystemMessage struct {
	TextBlock
}

// NewSystemMessage creates a system text block.
func NewSystemMessage(text string) SystemMessage {
	return SystemMessage{TextBlock: NewTextBlock(text)}
}

// BindMut replaces every occurrence of ${name} in the block text with value.
func (m *SystemMessage) BindMut(name, value string) {
	m.Text = strings.ReplaceAll(m.Text, "${"+name+"}", value)
}

// Metadata identifies the request originator.
type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

// Tool declares a callable tool.
type Tool struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	InputSchema  map[string]any `json:"input_schema"`
	CacheControl *CacheControl  `json:"cache_control,omitempty"`
}

// ThinkingConfig enables extended thinking.
type ThinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens *int   `json:"budget_tokens,omitempty"`
}

// ToolChoice steers tool selection ("auto", "any", "tool", "none").
type ToolChoice struct {
	Type                   string `json:"type"`
	DisableParallelToolUse *bool  `json:"disable_parallel_tool_use,omitempty"`
	Name                   string `json:"name,omitempty"`
}

// DefaultMaxTokens is applied when settings omit max_tokens, which the
// Messages API requires.
const DefaultMaxTokens = 4096

// Settings carries every tunable Messages parameter. Fields are flattened
// into the request body alongside model, messages and system.
type Settings struct {
	MaxTokens     int             `json:"max_tokens"`
	Metadata      *Metadata       `json:"metadata,omitempty"`
	ServiceTier   string          `json:"service_tier,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        *bool           `json:"stream,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	Thinking      *ThinkingConfig `json:"thinking,omitempty"`
	ToolChoice    *ToolChoice     `json:"tool_choice,omitempty"`
	Tools         []Tool          `json:"tools,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`

	// ExtraBody is shallow-merged into the serialized request; its keys
	// override fields already present.
	ExtraBody json.RawMessage `json:"extra_body,omitempty"`
}

// DefaultSettings returns settings with the required max_tokens populated.
func DefaultSettings() Settings {
	return Settings{MaxTokens: DefaultMaxTokens}
}
