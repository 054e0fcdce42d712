// Package openai models the OpenAI Chat Completions wire format. The structs
// here serialize to the exact request and response bodies exchanged with the
// API; transport and authentication live in the provider package.
package openai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContentPart is the closed union of message content parts. Implementations
// are TextPart, ImagePart, AudioPart and FilePart.
type ContentPart interface {
	isContentPart()
	partType() string
}

// TextPart is a plain text content part.
type TextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewTextPart creates a text content part.
func NewTextPart(text string) TextPart {
	return TextPart{Type: "text", Text: text}
}

func (TextPart) isContentPart()    {}
func (p TextPart) partType() string { return "text" }

// ImageURL carries the url and optional detail level of an image part.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ImagePart references an image by url or data-url.
type ImagePart struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

// NewImagePart creates an image content part.
func NewImagePart(url, detail string) ImagePart {
	return ImagePart{Type: "image_url", ImageURL: ImageURL{URL: url, Detail: detail}}
}

func (ImagePart) isContentPart()    {}
func (p ImagePart) partType() string { return "image_url" }

// InputAudio carries base64 audio data and its format.
type InputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

// AudioPart carries inline audio input.
type AudioPart struct {
	Type       string     `json:"type"`
	InputAudio InputAudio `json:"input_audio"`
}

func (AudioPart) isContentPart()    {}
func (p AudioPart) partType() string { return "input_audio" }

// FileContent references an uploaded or inline file.
type FileContent struct {
	FileData string `json:"file_data,omitempty"`
	FileID   string `json:"file_id,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// FilePart attaches a file to a message.
type FilePart struct {
	Type string      `json:"type"`
	File FileContent `json:"file"`
}

func (FilePart) isContentPart()    {}
func (p FilePart) partType() string { return "file" }

// UnmarshalContentPart decodes one content part by its "type" tag.
func UnmarshalContentPart(data []byte) (ContentPart, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("decode content part: %w", err)
	}
	switch tag.Type {
	case "text":
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case "image_url":
		var p ImagePart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case "input_audio":
		var p AudioPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case "file":
		var p FilePart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown content part type %q", tag.Type)
	}
}

// ChatMessage is one entry of the request messages array.
type ChatMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
	Name    string        `json:"name,omitempty"`
}

// NewChatMessage creates a message with a single text part.
func NewChatMessage(role, text string) ChatMessage {
	return ChatMessage{Role: role, Content: []ContentPart{NewTextPart(text)}}
}

// UnmarshalJSON decodes the polymorphic content array.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string            `json:"role"`
		Content []json.RawMessage `json:"content"`
		Name    string            `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Name = raw.Name
	m.Content = make([]ContentPart, 0, len(raw.Content))
	for _, rc := range raw.Content {
		part, err := UnmarshalContentPart(rc)
		if err != nil {
			return err
		}
		m.Content = append(m.Content, part)
	}
	return nil
}

// BindMut replaces every occurrence of ${name} in text parts with value.
// Non-text parts are untouched.
func (m *ChatMessage) BindMut(name, value string) {
	placeholder := "${" + name + "}"
	for i, part := range m.Content {
		if tp, ok := part.(TextPart); ok {
			tp.Text = strings.ReplaceAll(tp.Text, placeholder, value)
			m.Content[i] = tp
		}
	}
}

// Bind returns a bound copy of the message.
func (m ChatMessage) Bind(name, value string) ChatMessage {
	nm := m.Clone()
	nm.BindMut(name, value)
	return nm
}

// Clone deep-copies the message.
func (m ChatMessage) Clone() ChatMessage {
	nm := m
	nm.Content = make([]ContentPart, len(m.Content))
	copy(nm.Content, m.Content)
	return nm
}

// Text returns the text of the first text content part, or empty.
func (m ChatMessage) Text() string {
	for _, part := range m.Content {
		if tp, ok := part.(TextPart); ok {
			return tp.Text
		}
	}
	return ""
}

// TextFragments returns the text of every text content part in order.
func (m ChatMessage) TextFragments() []string {
	var out []string
	for _, part := range m.Content {
		if tp, ok := part.(TextPart); ok {
			out = append(out, tp.Text)
		}
	}
	return out
}

// FunctionDef describes a callable function for tool use.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Strict      *bool          `json:"strict,omitempty"`
}

// Tool is a tool entry in the request body.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// Audio configures audio output.
type Audio struct {
	Format string `json:"format"`
	Voice  string `json:"voice"`
}

// StreamOptions tunes streaming responses.
type StreamOptions struct {
	IncludeObfuscation *bool `json:"include_obfuscation,omitempty"`
	IncludeUsage       *bool `json:"include_usage,omitempty"`
}

// Settings carries every tunable chat-completion parameter. Fields are
// flattened into the request body alongside model and messages.
type Settings struct {
	Temperature         *float64          `json:"temperature,omitempty"`
	TopP                *float64          `json:"top_p,omitempty"`
	MaxCompletionTokens *int              `json:"max_completion_tokens,omitempty"`
	FrequencyPenalty    *float64          `json:"frequency_penalty,omitempty"`
	PresencePenalty     *float64          `json:"presence_penalty,omitempty"`
	Seed                *int64            `json:"seed,omitempty"`
	LogProbs            *bool             `json:"logprobs,omitempty"`
	TopLogProbs         *int              `json:"top_logprobs,omitempty"`
	LogitBias           map[string]int    `json:"logit_bias,omitempty"`
	N                   *int              `json:"n,omitempty"`
	Stop                []string          `json:"stop,omitempty"`
	Stream              *bool             `json:"stream,omitempty"`
	StreamOptions       *StreamOptions    `json:"stream_options,omitempty"`
	Tools               []Tool            `json:"tools,omitempty"`
	ToolChoice          any               `json:"tool_choice,omitempty"`
	ParallelToolCalls   *bool             `json:"parallel_tool_calls,omitempty"`
	Audio               *Audio            `json:"audio,omitempty"`
	Modalities          []string          `json:"modalities,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	ServiceTier         string            `json:"service_tier,omitempty"`
	Store               *bool             `json:"store,omitempty"`
	ReasoningEffort     string            `json:"reasoning_effort,omitempty"`

	// ExtraBody is shallow-merged into the serialized request; its keys
	// override fields already present.
	ExtraBody json.RawMessage `json:"extra_body,omitempty"`
}
