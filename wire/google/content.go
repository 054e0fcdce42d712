// Package google models the Gemini generateContent wire format shared by the
// Gemini API and Vertex AI. The structs here serialize to the exact request
// and response bodies exchanged with the API; transport and authentication
// live in the provider package.
package google

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Blob is inline media data.
type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// FileData references uploaded media by uri.
type FileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

// FunctionCall is a function invocation emitted by the model.
type FunctionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// FunctionResponse reports the outcome of a function invocation.
type FunctionResponse struct {
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response,omitempty"`
}

// ExecutableCode is model-generated code for execution.
type ExecutableCode struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// CodeExecutionResult reports executed code output.
type CodeExecutionResult struct {
	Outcome string `json:"outcome"`
	Output  string `json:"output,omitempty"`
}

// VideoMetadata bounds video input by offsets.
type VideoMetadata struct {
	StartOffset string   `json:"startOffset,omitempty"`
	EndOffset   string   `json:"endOffset,omitempty"`
	FPS         *float64 `json:"fps,omitempty"`
}

// PartData is the closed union of part payloads. Exactly one variant is set
// per part and serializes under its own key (text, inlineData, fileData,
// functionCall, functionResponse, executableCode, codeExecutionResult).
type PartData interface {
	isPartData()
	dataKey() string
}

// TextData is a plain text payload.
type TextData string

func (TextData) isPartData()     {}
func (TextData) dataKey() string { return "text" }

// InlineData wraps a Blob payload.
type InlineData Blob

func (InlineData) isPartData()     {}
func (InlineData) dataKey() string { return "inlineData" }

// FileRef wraps a FileData payload.
type FileRef FileData

func (FileRef) isPartData()     {}
func (FileRef) dataKey() string { return "fileData" }

// FunctionCallData wraps a FunctionCall payload.
type FunctionCallData FunctionCall

func (FunctionCallData) isPartData()     {}
func (FunctionCallData) dataKey() string { return "functionCall" }

// FunctionResponseData wraps a FunctionResponse payload.
type FunctionResponseData FunctionResponse

func (FunctionResponseData) isPartData()     {}
func (FunctionResponseData) dataKey() string { return "functionResponse" }

// ExecutableCodeData wraps an ExecutableCode payload.
type ExecutableCodeData ExecutableCode

func (ExecutableCodeData) isPartData()     {}
func (ExecutableCodeData) dataKey() string { return "executableCode" }

// CodeExecutionResultData wraps a CodeExecutionResult payload.
type CodeExecutionResultData CodeExecutionResult

func (CodeExecutionResultData) isPartData()     {}
func (CodeExecutionResultData) dataKey() string { return "codeExecutionResult" }

// Part is one ordered element of a content message. The data payload is
// flattened into the part object under its variant key.
type Part struct {
	Thought          *bool          `json:"thought,omitempty"`
	ThoughtSignature string         `json:"thoughtSignature,omitempty"`
	VideoMetadata    *VideoMetadata `json:"videoMetadata,omitempty"`
	Data             PartData       `json:"-"`
}

// NewTextPart creates a part carrying plain text.
func NewTextPart(text string) Part {
	return Part{Data: TextData(text)}
}

// MarshalJSON flattens the data payload under its variant key.
func (p Part) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if p.Thought != nil {
		out["thought"] = *p.Thought
	}
	if p.ThoughtSignature != "" {
		out["thoughtSignature"] = p.ThoughtSignature
	}
	if p.VideoMetadata != nil {
		out["videoMetadata"] = p.VideoMetadata
	}
	if p.Data != nil {
		out[p.Data.dataKey()] = p.Data
	}
	return json.Marshal(out)
}

// UnmarshalJSON resolves the variant key back into the data payload.
func (p *Part) UnmarshalJSON(data []byte) error {
	var raw struct {
		Thought             *bool                    `json:"thought"`
		ThoughtSignature    string                   `json:"thoughtSignature"`
		VideoMetadata       *VideoMetadata           `json:"videoMetadata"`
		Text                *string                  `json:"text"`
		InlineData          *InlineData              `json:"inlineData"`
		FileData            *FileRef                 `json:"fileData"`
		FunctionCall        *FunctionCallData        `json:"functionCall"`
		FunctionResponse    *FunctionResponseData    `json:"functionResponse"`
		ExecutableCode      *ExecutableCodeData      `json:"executableCode"`
		CodeExecutionResult *CodeExecutionResultData `json:"codeExecutionResult"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Thought = raw.Thought
	p.ThoughtSignature = raw.ThoughtSignature
	p.VideoMetadata = raw.VideoMetadata
	switch {
	case raw.Text != nil:
		p.Data = TextData(*raw.Text)
	case raw.InlineData != nil:
		p.Data = *raw.InlineData
	case raw.FileData != nil:
		p.Data = *raw.FileData
	case raw.FunctionCall != nil:
		p.Data = *raw.FunctionCall
	case raw.FunctionResponse != nil:
		p.Data = *raw.FunctionResponse
	case raw.ExecutableCode != nil:
		p.Data = *raw.ExecutableCode
	case raw.CodeExecutionResult != nil:
		p.Data = *raw.CodeExecutionResult
	default:
		return fmt.Errorf("part carries no recognized payload")
	}
	return nil
}

// Text returns the text payload, or empty for non-text parts.
func (p Part) Text() string {
	if t, ok := p.Data.(TextData); ok {
		return string(t)
	}
	return ""
}

// IsText reports whether the part carries a text payload.
func (p Part) IsText() bool {
	_, ok := p.Data.(TextData)
	return ok
}

// Content is one message of the contents array. Role is user or model.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// NewContent creates a content message with a single text part.
func NewContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{NewTextPart(text)}}
}

// BindMut replaces every occurrence of ${name} in text parts with value.
// Non-text parts are untouched.
func (c *Content) BindMut(name, value string) {
	placeholder := "${" + name + "}"
	for i, part := range c.Parts {
		if t, ok := part.Data.(TextData); ok {
			part.Data = TextData(strings.ReplaceAll(string(t), placeholder, value))
			c.Parts[i] = part
		}
	}
}

// Bind returns a bound copy of the content.
func (c Content) Bind(name, value string) Content {
	nc := c.Clone()
	nc.BindMut(name, value)
	return nc
}

// Clone deep-copies the content.
func (c Content) Clone() Content {
	nc := c
	nc.Parts = make([]Part, len(c.Parts))
	copy(nc.Parts, c.Parts)
	return nc
}

// Text returns the text of the first text part, or empty.
func (c Content) Text() string {
	for _, part := range c.Parts {
		if part.IsText() {
			return part.Text()
		}
	}
	return ""
}

// TextFragments returns the text of every text part in order.
func (c Content) TextFragments() []string {
	var out []string
	for _, part := range c.Parts {
		if part.IsText() {
			out = append(out, part.Text())
		}
	}
	return out
}
