package prompt

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	anthropicwire "github.com/demml/potatohead-go/wire/anthropic"
	googlewire "github.com/demml/potatohead-go/wire/google"
	openaiwire "github.com/demml/potatohead-go/wire/openai"
)

// DefaultSchemaName labels structured-output response formats whose schema
// carries no title.
const DefaultSchemaName = "StructuredOutput"

// ErrTooManySystemInstructions is returned when a Gemini request would carry
// more than one system instruction. The generateContent API has a single
// systemInstruction slot.
var ErrTooManySystemInstructions = errors.New("gemini requests accept a single system instruction")

// ProviderRequest is the closed union of vendor request shapes. A request
// owns the conversation messages, system instructions, settings and the
// optional structured-output schema, and serializes itself to the exact
// body POSTed to the vendor.
type ProviderRequest interface {
	isProviderRequest()

	// Provider returns the request's provider family.
	Provider() Provider
	// ModelID returns the model identifier.
	ModelID() string
	// Messages returns the conversation messages in order. The returned
	// slice aliases the request; element mutation through BindMut is
	// visible to the request.
	Messages() []Message
	// SetMessages replaces the conversation messages.
	SetMessages(msgs []Message) error
	// InsertMessages inserts messages at index i of the conversation.
	InsertMessages(i int, msgs []Message) error
	// SystemInstructions returns the system-instruction messages.
	SystemInstructions() []Message
	// PrependSystemInstructions places msgs before existing system
	// instructions.
	PrependSystemInstructions(msgs []Message) error
	// ResponseJSONSchema returns the structured-output schema, or nil.
	ResponseJSONSchema() json.RawMessage
	// SetResponseJSONSchema constrains the response to the JSON schema. The
	// schema's title, when present, names the response format.
	SetResponseJSONSchema(schema json.RawMessage)
	// AddTools declares callable tools in the vendor's tool shape.
	AddTools(tools []ToolDefinition)
	// ExtraBody returns the raw JSON object merged over the request body.
	ExtraBody() json.RawMessage
	// RequestBody serializes the request to its vendor wire body.
	RequestBody() ([]byte, error)
	// Clone deep-copies the request.
	Clone() ProviderRequest
}

func schemaName(schema json.RawMessage) string {
	if title := gjson.GetBytes(schema, "title"); title.Exists() {
		return title.String()
	}
	return DefaultSchemaName
}

// cloneSettings deep-copies a settings struct through its JSON form.
func cloneSettings[T any](s T) T {
	b, err := json.Marshal(s)
	if err != nil {
		return s
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return s
	}
	return out
}

func cloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

func insertMessages(dst []Message, i int, msgs []Message) ([]Message, error) {
	if i < 0 || i > len(dst) {
		return nil, fmt.Errorf("message index %d out of range [0,%d]", i, len(dst))
	}
	out := make([]Message, 0, len(dst)+len(msgs))
	out = append(out, dst[:i]...)
	out = append(out, msgs...)
	out = append(out, dst[i:]...)
	return out, nil
}

// flattenBody merges the core request fields over the JSON form of the
// settings struct. The extra_body key never reaches the wire; clients merge
// it separately.
func flattenBody(core map[string]any, settings any) ([]byte, error) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("serialize settings: %w", err)
	}
	body := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("flatten settings: %w", err)
	}
	delete(body, "extra_body")
	for k, v := range core {
		enc, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("serialize request field %q: %w", k, err)
		}
		body[k] = enc
	}
	return json.Marshal(body)
}

// OpenAIRequest is a chat-completions request. System instructions are
// developer-role messages at the head of the conversation.
type OpenAIRequest struct {
	model    string
	messages []Message
	settings OpenAIChatSettings
	schema   json.RawMessage
}

// NewOpenAIRequest builds a chat-completions request. Every message must be
// an OpenAI message.
func NewOpenAIRequest(model string, msgs []Message, settings *OpenAIChatSettings) (*OpenAIRequest, error) {
	r := &OpenAIRequest{model: model}
	if settings != nil {
		r.settings = *settings
	}
	if err := r.SetMessages(msgs); err != nil {
		return nil, err
	}
	return r, nil
}

func (*OpenAIRequest) isProviderRequest() {}

func (r *OpenAIRequest) Provider() Provider { return ProviderOpenAI }

func (r *OpenAIRequest) ModelID() string { return r.model }

func (r *OpenAIRequest) Messages() []Message { return r.messages }

func (r *OpenAIRequest) SetMessages(msgs []Message) error {
	for _, m := range msgs {
		if _, ok := m.(*OpenAIMessage); !ok {
			return fmt.Errorf("openai request requires openai messages, got %T", m)
		}
	}
	r.messages = msgs
	return nil
}

func (r *OpenAIRequest) InsertMessages(i int, msgs []Message) error {
	for _, m := range msgs {
		if _, ok := m.(*OpenAIMessage); !ok {
			return fmt.Errorf("openai request requires openai messages, got %T", m)
		}
	}
	out, err := insertMessages(r.messages, i, msgs)
	if err != nil {
		return err
	}
	r.messages = out
	return nil
}

func (r *OpenAIRequest) SystemInstructions() []Message {
	var out []Message
	for _, m := range r.messages {
		if IsSystemMessage(m) {
			out = append(out, m)
		}
	}
	return out
}

func (r *OpenAIRequest) PrependSystemInstructions(msgs []Message) error {
	return r.InsertMessages(0, msgs)
}

func (r *OpenAIRequest) ResponseJSONSchema() json.RawMessage { return r.schema }

func (r *OpenAIRequest) SetResponseJSONSchema(schema json.RawMessage) { r.schema = schema }

func (r *OpenAIRequest) AddTools(tools []ToolDefinition) {
	for _, t := range tools {
		r.settings.Tools = append(r.settings.Tools, openaiwire.Tool{
			Type: "function",
			Function: openaiwire.FunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
}

// Settings exposes the request's generation settings for mutation.
func (r *OpenAIRequest) Settings() *OpenAIChatSettings { return &r.settings }

func (r *OpenAIRequest) ExtraBody() json.RawMessage { return r.settings.Settings.ExtraBody }

func (r *OpenAIRequest) RequestBody() ([]byte, error) {
	core := map[string]any{
		"model":    r.model,
		"messages": r.messages,
	}
	if len(r.schema) > 0 {
		core["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName(r.schema),
				"schema": r.schema,
				"strict": true,
			},
		}
	}
	return flattenBody(core, r.settings.Settings)
}

func (r *OpenAIRequest) Clone() ProviderRequest {
	return &OpenAIRequest{
		model:    r.model,
		messages: cloneMessages(r.messages),
		settings: OpenAIChatSettings{Settings: cloneSettings(r.settings.Settings)},
		schema:   r.schema,
	}
}

type openAIRequestJSON struct {
	Model          string              `json:"model"`
	Messages       []json.RawMessage   `json:"messages"`
	Settings       openaiwire.Settings `json:"settings"`
	ResponseSchema json.RawMessage     `json:"response_json_schema,omitempty"`
}

// MarshalJSON encodes the persistence form, with settings nested rather
// than flattened.
func (r *OpenAIRequest) MarshalJSON() ([]byte, error) {
	msgs := make([]json.RawMessage, 0, len(r.messages))
	for _, m := range r.messages {
		enc, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, enc)
	}
	return json.Marshal(openAIRequestJSON{
		Model:          r.model,
		Messages:       msgs,
		Settings:       r.settings.Settings,
		ResponseSchema: r.schema,
	})
}

// UnmarshalJSON decodes the persistence form.
func (r *OpenAIRequest) UnmarshalJSON(data []byte) error {
	var raw openAIRequestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.model = raw.Model
	r.settings = OpenAIChatSettings{Settings: raw.Settings}
	r.schema = raw.ResponseSchema
	r.messages = make([]Message, 0, len(raw.Messages))
	for _, rm := range raw.Messages {
		m, err := UnmarshalMessage(rm, ProviderOpenAI)
		if err != nil {
			return err
		}
		r.messages = append(r.messages, m)
	}
	return nil
}

// AnthropicRequest is a Messages request. System instructions live in the
// top-level system field as text blocks.
type AnthropicRequest struct {
	model    string
	messages []Message
	system   []Message
	settings AnthropicChatSettings
	schema   json.RawMessage
}

// NewAnthropicRequest builds a Messages request. Conversation messages must
// be Anthropic messages; system messages must be system text blocks.
func NewAnthropicRequest(model string, msgs, system []Message, settings *AnthropicChatSettings) (*AnthropicRequest, error) {
	r := &AnthropicRequest{model: model}
	if settings != nil {
		r.settings = *settings
	} else {
		r.settings = AnthropicChatSettings{Settings: anthropicwire.DefaultSettings()}
	}
	if r.settings.MaxTokens == 0 {
		r.settings.MaxTokens = anthropicwire.DefaultMaxTokens
	}
	if err := r.SetMessages(msgs); err != nil {
		return nil, err
	}
	if err := r.PrependSystemInstructions(system); err != nil {
		return nil, err
	}
	return r, nil
}

func (*AnthropicRequest) isProviderRequest() {}

func (r *AnthropicRequest) Provider() Provider { return ProviderAnthropic }

func (r *AnthropicRequest) ModelID() string { return r.model }

func (r *AnthropicRequest) Messages() []Message { return r.messages }

func (r *AnthropicRequest) SetMessages(msgs []Message) error {
	for _, m := range msgs {
		if _, ok := m.(*AnthropicMessage); !ok {
			return fmt.Errorf("anthropic request requires anthropic messages, got %T", m)
		}
	}
	r.messages = msgs
	return nil
}

func (r *AnthropicRequest) InsertMessages(i int, msgs []Message) error {
	for _, m := range msgs {
		if _, ok := m.(*AnthropicMessage); !ok {
			return fmt.Errorf("anthropic request requires anthropic messages, got %T", m)
		}
	}
	out, err := insertMessages(r.messages, i, msgs)
	if err != nil {
		return err
	}
	r.messages = out
	return nil
}

func (r *AnthropicRequest) SystemInstructions() []Message { return r.system }

func (r *AnthropicRequest) PrependSystemInstructions(msgs []Message) error {
	prepended := make([]Message, 0, len(msgs)+len(r.system))
	for _, m := range msgs {
		switch v := m.(type) {
		case *AnthropicSystemMessage:
			prepended = append(prepended, v)
		case *AnthropicMessage:
			coerced, err := SystemMessagesFromAnthropic(v)
			if err != nil {
				return err
			}
			for _, sm := range coerced {
				prepended = append(prepended, sm)
			}
		default:
			return fmt.Errorf("anthropic system instructions require anthropic messages, got %T", m)
		}
	}
	r.system = append(prepended, r.system...)
	return nil
}

func (r *AnthropicRequest) ResponseJSONSchema() json.RawMessage { return r.schema }

func (r *AnthropicRequest) SetResponseJSONSchema(schema json.RawMessage) { r.schema = schema }

func (r *AnthropicRequest) AddTools(tools []ToolDefinition) {
	for _, t := range tools {
		r.settings.Tools = append(r.settings.Tools, anthropicwire.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
}

// Settings exposes the request's generation settings for mutation.
func (r *AnthropicRequest) Settings() *AnthropicChatSettings { return &r.settings }

func (r *AnthropicRequest) ExtraBody() json.RawMessage { return r.settings.Settings.ExtraBody }

func (r *AnthropicRequest) RequestBody() ([]byte, error) {
	core := map[string]any{
		"model":    r.model,
		"messages": r.messages,
	}
	if len(r.system) > 0 {
		core["system"] = r.system
	}
	if len(r.schema) > 0 {
		core["output_format"] = map[string]any{
			"type":   "json_schema",
			"schema": r.schema,
		}
	}
	return flattenBody(core, r.settings.Settings)
}

func (r *AnthropicRequest) Clone() ProviderRequest {
	return &AnthropicRequest{
		model:    r.model,
		messages: cloneMessages(r.messages),
		system:   cloneMessages(r.system),
		settings: AnthropicChatSettings{Settings: cloneSettings(r.settings.Settings)},
		schema:   r.schema,
	}
}

type anthropicRequestJSON struct {
	Model          string                 `json:"model"`
	Messages       []json.RawMessage      `json:"messages"`
	System         []json.RawMessage      `json:"system,omitempty"`
	Settings       anthropicwire.Settings `json:"settings"`
	ResponseSchema json.RawMessage        `json:"response_json_schema,omitempty"`
}

// MarshalJSON encodes the persistence form, with settings nested rather
// than flattened.
func (r *AnthropicRequest) MarshalJSON() ([]byte, error) {
	enc := func(msgs []Message) ([]json.RawMessage, error) {
		out := make([]json.RawMessage, 0, len(msgs))
		for _, m := range msgs {
			b, err := json.Marshal(m)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		return out, nil
	}
	msgs, err := enc(r.messages)
	if err != nil {
		return nil, err
	}
	system, err := enc(r.system)
	if err != nil {
		return nil, err
	}
	return json.Marshal(anthropicRequestJSON{
		Model:          r.model,
		Messages:       msgs,
		System:         system,
		Settings:       r.settings.Settings,
		ResponseSchema: r.schema,
	})
}

// UnmarshalJSON decodes the persistence form.
func (r *AnthropicRequest) UnmarshalJSON(data []byte) error {
	var raw anthropicRequestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.model = raw.Model
	r.settings = AnthropicChatSettings{Settings: raw.Settings}
	r.schema = raw.ResponseSchema
	r.messages = make([]Message, 0, len(raw.Messages))
	for _, rm := range raw.Messages {
		m, err := UnmarshalMessage(rm, ProviderAnthropic)
		if err != nil {
			return err
		}
		r.messages = append(r.messages, m)
	}
	r.system = make([]Message, 0, len(raw.System))
	for _, rm := range raw.System {
		m, err := UnmarshalMessage(rm, ProviderAnthropic)
		if err != nil {
			return err
		}
		r.system = append(r.system, m)
	}
	return nil
}

// GeminiRequest is a generateContent request shared by Gemini and Vertex.
// The model travels in the endpoint URL, not the body. At most one system
// instruction is carried.
type GeminiRequest struct {
	model             string
	contents          []Message
	systemInstruction Message
	settings          GoogleChatSettings
	schema            json.RawMessage
}

// NewGeminiRequest builds a generateContent request. Contents must be
// Gemini content messages; at most one system instruction is accepted.
func NewGeminiRequest(model string, contents, system []Message, settings *GoogleChatSettings) (*GeminiRequest, error) {
	r := &GeminiRequest{model: model}
	if settings != nil {
		r.settings = *settings
	}
	if err := r.SetMessages(contents); err != nil {
		return nil, err
	}
	if err := r.PrependSystemInstructions(system); err != nil {
		return nil, err
	}
	return r, nil
}

func (*GeminiRequest) isProviderRequest() {}

func (r *GeminiRequest) Provider() Provider { return ProviderGemini }

func (r *GeminiRequest) ModelID() string { return r.model }

func (r *GeminiRequest) Messages() []Message { return r.contents }

func (r *GeminiRequest) SetMessages(msgs []Message) error {
	for _, m := range msgs {
		if _, ok := m.(*GeminiContent); !ok {
			return fmt.Errorf("gemini request requires gemini contents, got %T", m)
		}
	}
	r.contents = msgs
	return nil
}

func (r *GeminiRequest) InsertMessages(i int, msgs []Message) error {
	for _, m := range msgs {
		if _, ok := m.(*GeminiContent); !ok {
			return fmt.Errorf("gemini request requires gemini contents, got %T", m)
		}
	}
	out, err := insertMessages(r.contents, i, msgs)
	if err != nil {
		return err
	}
	r.contents = out
	return nil
}

func (r *GeminiRequest) SystemInstructions() []Message {
	if r.systemInstruction == nil {
		return nil
	}
	return []Message{r.systemInstruction}
}

// PrependSystemInstructions fills the single systemInstruction slot,
// replacing any instruction already present. More than one instruction per
// call is an error.
func (r *GeminiRequest) PrependSystemInstructions(msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) > 1 {
		return ErrTooManySystemInstructions
	}
	m, ok := msgs[0].(*GeminiContent)
	if !ok {
		return fmt.Errorf("gemini system instruction requires gemini content, got %T", msgs[0])
	}
	r.systemInstruction = m
	return nil
}

func (r *GeminiRequest) ResponseJSONSchema() json.RawMessage { return r.schema }

func (r *GeminiRequest) SetResponseJSONSchema(schema json.RawMessage) { r.schema = schema }

func (r *GeminiRequest) AddTools(tools []ToolDefinition) {
	decls := make([]googlewire.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, googlewire.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	r.settings.Tools = append(r.settings.Tools, googlewire.Tool{FunctionDeclarations: decls})
}

// Settings exposes the request's generation settings for mutation.
func (r *GeminiRequest) Settings() *GoogleChatSettings { return &r.settings }

func (r *GeminiRequest) ExtraBody() json.RawMessage { return r.settings.Settings.ExtraBody }

func (r *GeminiRequest) RequestBody() ([]byte, error) {
	core := map[string]any{
		"contents": r.contents,
	}
	if r.systemInstruction != nil {
		core["system_instruction"] = r.systemInstruction
	}
	settings := r.settings.Settings
	if len(r.schema) > 0 {
		settings = cloneSettings(settings)
		settings.ConfigureStructuredOutput(r.schema)
	}
	return flattenBody(core, settings)
}

func (r *GeminiRequest) Clone() ProviderRequest {
	nr := &GeminiRequest{
		model:    r.model,
		contents: cloneMessages(r.contents),
		settings: GoogleChatSettings{Settings: cloneSettings(r.settings.Settings)},
		schema:   r.schema,
	}
	if r.systemInstruction != nil {
		nr.systemInstruction = r.systemInstruction.Clone()
	}
	return nr
}

type geminiRequestJSON struct {
	Model             string              `json:"model"`
	Contents          []json.RawMessage   `json:"contents"`
	SystemInstruction json.RawMessage     `json:"system_instruction,omitempty"`
	Settings          googlewire.Settings `json:"settings"`
	ResponseSchema    json.RawMessage     `json:"response_json_schema,omitempty"`
}

// MarshalJSON encodes the persistence form, with settings nested rather
// than flattened.
func (r *GeminiRequest) MarshalJSON() ([]byte, error) {
	contents := make([]json.RawMessage, 0, len(r.contents))
	for _, m := range r.contents {
		enc, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		contents = append(contents, enc)
	}
	raw := geminiRequestJSON{
		Model:          r.model,
		Contents:       contents,
		Settings:       r.settings.Settings,
		ResponseSchema: r.schema,
	}
	if r.systemInstruction != nil {
		enc, err := json.Marshal(r.systemInstruction)
		if err != nil {
			return nil, err
		}
		raw.SystemInstruction = enc
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes the persistence form.
func (r *GeminiRequest) UnmarshalJSON(data []byte) error {
	var raw geminiRequestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.model = raw.Model
	r.settings = GoogleChatSettings{Settings: raw.Settings}
	r.schema = raw.ResponseSchema
	r.contents = make([]Message, 0, len(raw.Contents))
	for _, rm := range raw.Contents {
		m, err := UnmarshalMessage(rm, ProviderGemini)
		if err != nil {
			return err
		}
		r.contents = append(r.contents, m)
	}
	r.systemInstruction = nil
	if len(raw.SystemInstruction) > 0 {
		m, err := UnmarshalMessage(raw.SystemInstruction, ProviderGemini)
		if err != nil {
			return err
		}
		r.systemInstruction = m
	}
	return nil
}

// UnmarshalRequest decodes a persisted request in the given provider's
// format.
func UnmarshalRequest(data []byte, p Provider) (ProviderRequest, error) {
	switch {
	case p == ProviderAnthropic:
		var r AnthropicRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return &r, nil
	case p.IsGoogleFamily():
		var r GeminiRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return &r, nil
	default:
		var r OpenAIRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}
}
