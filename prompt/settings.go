package prompt

import (
	"encoding/json"

	anthropicwire "github.com/demml/potatohead-go/wire/anthropic"
	googlewire "github.com/demml/potatohead-go/wire/google"
	openaiwire "github.com/demml/potatohead-go/wire/openai"
)

// ModelSettings is the closed union of per-provider generation settings.
// Settings are flattened into the request body alongside model and messages.
type ModelSettings interface {
	isModelSettings()

	// Provider returns the family the settings belong to.
	Provider() Provider
	// ExtraBody returns the raw JSON object merged over the request body.
	ExtraBody() json.RawMessage
}

// OpenAIChatSettings tunes a chat-completions request.
type OpenAIChatSettings struct {
	openaiwire.Settings
}

func (*OpenAIChatSettings) isModelSettings() {}

func (s *OpenAIChatSettings) Provider() Provider { return ProviderOpenAI }

func (s *OpenAIChatSettings) ExtraBody() json.RawMessage { return s.Settings.ExtraBody }

// AnthropicChatSettings tunes a Messages request.
type AnthropicChatSettings struct {
	anthropicwire.Settings
}

func (*AnthropicChatSettings) isModelSettings() {}

func (s *AnthropicChatSettings) Provider() Provider { return ProviderAnthropic }

func (s *AnthropicChatSettings) ExtraBody() json.RawMessage { return s.Settings.ExtraBody }

// GoogleChatSettings tunes a generateContent request for Gemini or Vertex.
type GoogleChatSettings struct {
	googlewire.Settings
}

func (*GoogleChatSettings) isModelSettings() {}

func (s *GoogleChatSettings) Provider() Provider { return ProviderGemini }

func (s *GoogleChatSettings) ExtraBody() json.RawMessage { return s.Settings.ExtraBody }

// DefaultSettings returns the provider's default settings. Anthropic carries
// a required max_tokens, defaulted to anthropicwire.DefaultMaxTokens.
func DefaultSettings(p Provider) ModelSettings {
	switch {
	case p == ProviderAnthropic:
		return &AnthropicChatSettings{Settings: anthropicwire.DefaultSettings()}
	case p.IsGoogleFamily():
		return &GoogleChatSettings{}
	default:
		return &OpenAIChatSettings{}
	}
}

// ValidateSettings checks that settings match the prompt's provider family.
func ValidateSettings(s ModelSettings, p Provider) error {
	if s == nil {
		return nil
	}
	sp := s.Provider()
	if sp == p || (sp.IsGoogleFamily() && p.IsGoogleFamily()) {
		return nil
	}
	return &ProviderMismatchError{Settings: sp, Prompt: p}
}
