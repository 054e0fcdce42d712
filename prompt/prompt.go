package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	potatohead "github.com/demml/potatohead-go"
	"github.com/demml/potatohead-go/internal/util"
)

// Options configures prompt construction.
type Options struct {
	// System carries system-instruction messages in any provider format;
	// they are converted alongside the conversation messages.
	System []Message
	// SystemText carries bare system-instruction strings.
	SystemText []string
	// Settings tunes generation; it must match the prompt's provider.
	Settings ModelSettings
	// Output declares the structured output the prompt expects.
	Output OutputType
	// Tools declares callable tools.
	Tools []ToolDefinition
	// Version labels the prompt for persistence and event records.
	// Defaults to the library Version so serialized prompts carry their
	// origin.
	Version string
}

// WithSystem adds system-instruction messages.
func WithSystem(msgs ...Message) func(*Options) {
	return func(o *Options) { o.System = append(o.System, msgs...) }
}

// WithSystemText adds bare system-instruction strings.
func WithSystemText(texts ...string) func(*Options) {
	return func(o *Options) { o.SystemText = append(o.SystemText, texts...) }
}

// WithSettings attaches generation settings.
func WithSettings(s ModelSettings) func(*Options) {
	return func(o *Options) { o.Settings = s }
}

// WithOutput declares the expected structured output.
func WithOutput(output OutputType) func(*Options) {
	return func(o *Options) { o.Output = output }
}

// WithTools declares callable tools.
func WithTools(tools ...ToolDefinition) func(*Options) {
	return func(o *Options) { o.Tools = append(o.Tools, tools...) }
}

// WithVersion labels the prompt version.
func WithVersion(v string) func(*Options) {
	return func(o *Options) { o.Version = v }
}

// Prompt is a reusable specification of one model call: the request in the
// provider's wire format, the placeholder parameters found in its text, and
// the expected response classification.
type Prompt struct {
	Provider     Provider
	Model        string
	Version      string
	Parameters   []string
	ResponseType ResponseType
	Request      ProviderRequest
}

// New builds a prompt for the given provider and model. Conversation
// messages may arrive in any provider format and are converted; system
// instructions from the options are converted likewise, with Anthropic
// conversation-shaped instructions coerced into top-level system blocks.
func New(provider Provider, model string, messages []Message, optFns ...func(o *Options)) (*Prompt, error) {
	opts := Options{Version: potatohead.Version}
	for _, fn := range optFns {
		fn(&opts)
	}
	if provider == ProviderUndefined {
		return nil, fmt.Errorf("prompt requires a provider")
	}
	if err := ValidateSettings(opts.Settings, provider); err != nil {
		return nil, err
	}

	converted := make([]Message, 0, len(messages))
	for _, m := range messages {
		cm, err := ConvertMessage(m, provider)
		if err != nil {
			return nil, err
		}
		converted = append(converted, cm)
	}

	system := make([]Message, 0, len(opts.System)+len(opts.SystemText))
	for _, text := range opts.SystemText {
		system = append(system, NewSystemInstruction(provider, text))
	}
	for _, m := range opts.System {
		cm, err := ConvertMessage(m, provider)
		if err != nil {
			return nil, err
		}
		system = append(system, cm)
	}

	req, err := buildRequest(provider, model, converted, system, opts.Settings)
	if err != nil {
		return nil, err
	}

	p := &Prompt{
		Provider:     provider,
		Model:        model,
		Version:      opts.Version,
		ResponseType: ResponseTypeNone,
		Request:      req,
	}
	if opts.Output != nil {
		schema, err := json.Marshal(opts.Output.Schema())
		if err != nil {
			return nil, fmt.Errorf("serialize output schema: %w", err)
		}
		req.SetResponseJSONSchema(schema)
		p.ResponseType = opts.Output.ResponseType()
	}
	if len(opts.Tools) > 0 {
		req.AddTools(opts.Tools)
	}
	p.Parameters = p.extractParameters()
	return p, nil
}

// NewFromText builds a single user-message prompt from bare text.
func NewFromText(provider Provider, model, text string, optFns ...func(o *Options)) (*Prompt, error) {
	return New(provider, model, []Message{NewUserMessage(provider, text)}, optFns...)
}

func buildRequest(provider Provider, model string, messages, system []Message, settings ModelSettings) (ProviderRequest, error) {
	switch {
	case provider == ProviderAnthropic:
		var s *AnthropicChatSettings
		if settings != nil {
			s = settings.(*AnthropicChatSettings)
		}
		return NewAnthropicRequest(model, messages, system, s)
	case provider.IsGoogleFamily():
		var s *GoogleChatSettings
		if settings != nil {
			s = settings.(*GoogleChatSettings)
		}
		return NewGeminiRequest(model, messages, system, s)
	default:
		var s *OpenAIChatSettings
		if settings != nil {
			s = settings.(*OpenAIChatSettings)
		}
		req, err := NewOpenAIRequest(model, messages, s)
		if err != nil {
			return nil, err
		}
		if err := req.PrependSystemInstructions(system); err != nil {
			return nil, err
		}
		return req, nil
	}
}

func (p *Prompt) extractParameters() []string {
	var names []string
	seen := map[string]struct{}{}
	collect := func(msgs []Message) {
		for _, m := range msgs {
			for _, name := range ExtractVariables(m) {
				if _, ok := seen[name]; ok {
					continue
				}
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	collect(p.Request.SystemInstructions())
	collect(p.Request.Messages())
	return names
}

// BindMut replaces ${name} with value across every conversation message and
// system instruction.
func (p *Prompt) BindMut(name, value string) error {
	if name == "" {
		return ErrNoBindArguments
	}
	for _, m := range p.Request.Messages() {
		m.BindMut(name, value)
	}
	for _, m := range p.Request.SystemInstructions() {
		m.BindMut(name, value)
	}
	return nil
}

// Bind returns a deep-cloned prompt with ${name} replaced by value.
func (p *Prompt) Bind(name, value string) (*Prompt, error) {
	if name == "" {
		return nil, ErrNoBindArguments
	}
	np := p.Clone()
	if err := np.BindMut(name, value); err != nil {
		return nil, err
	}
	return np, nil
}

// BindMapMut binds every entry of values. Non-string values are bound as
// their canonical JSON encoding; strings keep their quotes.
func (p *Prompt) BindMapMut(values map[string]any) error {
	if len(values) == 0 {
		return ErrNoBindArguments
	}
	for name, value := range values {
		if err := p.BindMut(name, util.StringifyValue(value)); err != nil {
			return err
		}
	}
	return nil
}

// BindMap returns a deep-cloned prompt with every entry of values bound.
func (p *Prompt) BindMap(values map[string]any) (*Prompt, error) {
	if len(values) == 0 {
		return nil, ErrNoBindArguments
	}
	np := p.Clone()
	if err := np.BindMapMut(values); err != nil {
		return nil, err
	}
	return np, nil
}

// Clone deep-copies the prompt.
func (p *Prompt) Clone() *Prompt {
	np := *p
	np.Request = p.Request.Clone()
	np.Parameters = append([]string(nil), p.Parameters...)
	return &np
}

type promptJSON struct {
	Provider     Provider        `json:"provider"`
	Model        string          `json:"model"`
	Version      string          `json:"version,omitempty"`
	Parameters   []string        `json:"parameters,omitempty"`
	ResponseType ResponseType    `json:"response_type"`
	Request      json.RawMessage `json:"request"`
}

// MarshalJSON encodes the persistence form.
func (p *Prompt) MarshalJSON() ([]byte, error) {
	req, err := json.Marshal(p.Request)
	if err != nil {
		return nil, err
	}
	return json.Marshal(promptJSON{
		Provider:     p.Provider,
		Model:        p.Model,
		Version:      p.Version,
		Parameters:   p.Parameters,
		ResponseType: p.ResponseType,
		Request:      req,
	})
}

// UnmarshalJSON decodes the persistence form. The provider is read first so
// the request can be decoded in the right wire format.
func (p *Prompt) UnmarshalJSON(data []byte) error {
	provider, err := ParseProvider(gjson.GetBytes(data, "provider").String())
	if err != nil {
		return err
	}
	var raw promptJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	req, err := UnmarshalRequest(raw.Request, provider)
	if err != nil {
		return err
	}
	p.Provider = provider
	p.Model = raw.Model
	p.Version = raw.Version
	p.Parameters = raw.Parameters
	p.ResponseType = raw.ResponseType
	p.Request = req
	return nil
}
