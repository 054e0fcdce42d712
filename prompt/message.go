package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"

	anthropicwire "github.com/demml/potatohead-go/wire/anthropic"
	googlewire "github.com/demml/potatohead-go/wire/google"
	openaiwire "github.com/demml/potatohead-go/wire/openai"
)

// Message is the closed union of provider message formats. Each variant
// wraps the wire shape of one provider family; conversions between families
// are text-only and explicit.
type Message interface {
	isMessage()

	// Role returns the author role of the message.
	Role() Role
	// Text returns the first text fragment, or empty.
	Text() string
	// TextFragments returns every text fragment in order.
	TextFragments() []string
	// BindMut replaces ${name} with value in every text fragment.
	BindMut(name, value string)
	// Clone deep-copies the message.
	Clone() Message
}

var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExtractVariables returns the distinct ${...} placeholder names appearing
// in the message's text fragments, in first-occurrence order.
func ExtractVariables(m Message) []string {
	var names []string
	seen := map[string]struct{}{}
	for _, frag := range m.TextFragments() {
		for _, match := range varPattern.FindAllStringSubmatch(frag, -1) {
			if _, ok := seen[match[1]]; ok {
				continue
			}
			seen[match[1]] = struct{}{}
			names = append(names, match[1])
		}
	}
	return names
}

// Bind returns a deep-cloned message with ${name} replaced by value.
func Bind(m Message, name, value string) Message {
	c := m.Clone()
	c.BindMut(name, value)
	return c
}

// IsSystemMessage reports whether the message carries system instructions:
// a dedicated system variant, or a system/developer role.
func IsSystemMessage(m Message) bool {
	if _, ok := m.(*AnthropicSystemMessage); ok {
		return true
	}
	r := m.Role()
	return r == RoleSystem || r == RoleDeveloper
}

// IsUserMessage reports whether the message has the user role.
func IsUserMessage(m Message) bool { return m.Role() == RoleUser }

// OpenAIMessage is a chat-completions message.
type OpenAIMessage struct {
	openaiwire.ChatMessage
}

// NewOpenAIMessage creates an OpenAI message with a single text part.
func NewOpenAIMessage(role Role, text string) *OpenAIMessage {
	return &OpenAIMessage{ChatMessage: openaiwire.NewChatMessage(role.String(), text)}
}

func (*OpenAIMessage) isMessage() {}

func (m *OpenAIMessage) Role() Role { return Role(m.ChatMessage.Role) }

func (m *OpenAIMessage) Clone() Message {
	return &OpenAIMessage{ChatMessage: m.ChatMessage.Clone()}
}

// AnthropicMessage is a Messages-API conversation message.
type AnthropicMessage struct {
	anthropicwire.Message
}

// NewAnthropicMessage creates an Anthropic message with a single text block.
func NewAnthropicMessage(role Role, text string) *AnthropicMessage {
	return &AnthropicMessage{Message: anthropicwire.NewMessage(role.String(), text)}
}

func (*AnthropicMessage) isMessage() {}

func (m *AnthropicMessage) Role() Role { return Role(m.Message.Role) }

func (m *AnthropicMessage) Clone() Message {
	return &AnthropicMessage{Message: m.Message.Clone()}
}

// AnthropicSystemMessage is a top-level system text block. It has no
// conversation role of its own; Role reports system.
type AnthropicSystemMessage struct {
	anthropicwire.SystemMessage
}

// NewAnthropicSystemMessage creates a system text block.
func NewAnthropicSystemMessage(text string) *AnthropicSystemMessage {
	return &AnthropicSystemMessage{SystemMessage: anthropicwire.NewSystemMessage(text)}
}

func (*AnthropicSystemMessage) isMessage() {}

func (m *AnthropicSystemMessage) Role() Role { return RoleSystem }

func (m *AnthropicSystemMessage) Text() string { return m.SystemMessage.Text }

func (m *AnthropicSystemMessage) TextFragments() []string {
	return []string{m.SystemMessage.Text}
}

func (m *AnthropicSystemMessage) Clone() Message {
	c := *m
	return &c
}

// GeminiContent is a generateContent message shared by Gemini and Vertex.
type GeminiContent struct {
	googlewire.Content
}

// NewGeminiContent creates a Gemini content message with a single text part.
func NewGeminiContent(role Role, text string) *GeminiContent {
	return &GeminiContent{Content: googlewire.NewContent(role.String(), text)}
}

func (*GeminiContent) isMessage() {}

func (m *GeminiContent) Role() Role { return Role(m.Content.Role) }

func (m *GeminiContent) Clone() Message {
	return &GeminiContent{Content: m.Content.Clone()}
}

// NewUserMessage creates a user message in the provider's native format.
func NewUserMessage(p Provider, text string) Message {
	return newTextMessage(p, RoleUser, text)
}

// NewSystemInstruction creates a system-instruction message in the
// provider's native format.
func NewSystemInstruction(p Provider, text string) Message {
	if p == ProviderAnthropic {
		return NewAnthropicSystemMessage(text)
	}
	return newTextMessage(p, RoleDeveloper, text)
}

func newTextMessage(p Provider, role Role, text string) Message {
	switch {
	case p == ProviderAnthropic:
		return NewAnthropicMessage(role, text)
	case p.IsGoogleFamily():
		return NewGeminiContent(role, text)
	default:
		return NewOpenAIMessage(role, text)
	}
}

// SystemMessagesFromAnthropic coerces an assistant-role message into
// top-level system text blocks, one per text fragment. Non-text blocks are
// not coercible.
func SystemMessagesFromAnthropic(m *AnthropicMessage) ([]*AnthropicSystemMessage, error) {
	frags := m.TextFragments()
	if len(frags) != len(m.Message.Content) {
		return nil, &UnsupportedConversionError{
			From:   ProviderAnthropic,
			To:     ProviderAnthropic,
			Reason: "system instructions must be text blocks",
		}
	}
	out := make([]*AnthropicSystemMessage, 0, len(frags))
	for _, frag := range frags {
		out = append(out, NewAnthropicSystemMessage(frag))
	}
	return out, nil
}

// ConvertMessage re-expresses a message in the target provider's format.
// Conversion onto the message's own family returns the message unchanged.
// Only text content converts; any other part kind fails with
// UnsupportedConversionError.
func ConvertMessage(m Message, target Provider) (Message, error) {
	converted, err := convertMessage(m, target)
	if err == ErrCantConvertSelf {
		return m, nil
	}
	return converted, err
}

func convertMessage(m Message, target Provider) (Message, error) {
	source := messageProvider(m)
	if source.IsGoogleFamily() && target.IsGoogleFamily() {
		return nil, ErrCantConvertSelf
	}
	if source == target {
		return nil, ErrCantConvertSelf
	}

	frags, total := textParts(m)
	if len(frags) != total {
		return nil, &UnsupportedConversionError{
			From:   source,
			To:     target,
			Reason: "only text content converts between providers",
		}
	}
	role := convertRole(m.Role(), target)

	switch {
	case target == ProviderAnthropic:
		if _, ok := m.(*AnthropicSystemMessage); ok {
			return nil, ErrCantConvertSelf
		}
		blocks := make([]anthropicwire.ContentBlock, 0, len(frags))
		for _, frag := range frags {
			blocks = append(blocks, anthropicwire.NewTextBlock(frag))
		}
		return &AnthropicMessage{Message: anthropicwire.Message{Role: role.String(), Content: blocks}}, nil
	case target.IsGoogleFamily():
		parts := make([]googlewire.Part, 0, len(frags))
		for _, frag := range frags {
			parts = append(parts, googlewire.NewTextPart(frag))
		}
		return &GeminiContent{Content: googlewire.Content{Role: role.String(), Parts: parts}}, nil
	case target == ProviderOpenAI:
		parts := make([]openaiwire.ContentPart, 0, len(frags))
		for _, frag := range frags {
			parts = append(parts, openaiwire.NewTextPart(frag))
		}
		return &OpenAIMessage{ChatMessage: openaiwire.ChatMessage{Role: role.String(), Content: parts}}, nil
	default:
		return nil, fmt.Errorf("cannot convert message to provider %q", target)
	}
}

func messageProvider(m Message) Provider {
	switch m.(type) {
	case *OpenAIMessage:
		return ProviderOpenAI
	case *AnthropicMessage, *AnthropicSystemMessage:
		return ProviderAnthropic
	case *GeminiContent:
		return ProviderGemini
	default:
		return ProviderUndefined
	}
}

// textParts returns the text fragments and the total part count, so callers
// can detect non-text content.
func textParts(m Message) ([]string, int) {
	frags := m.TextFragments()
	switch v := m.(type) {
	case *OpenAIMessage:
		return frags, len(v.Content)
	case *AnthropicMessage:
		return frags, len(v.Message.Content)
	case *AnthropicSystemMessage:
		return frags, 1
	case *GeminiContent:
		return frags, len(v.Parts)
	default:
		return frags, len(frags)
	}
}

// convertRole maps the assistant role onto Gemini's model role and back.
func convertRole(r Role, target Provider) Role {
	if target.IsGoogleFamily() {
		if r == RoleAssistant {
			return RoleModel
		}
		return r
	}
	if r == RoleModel {
		return RoleAssistant
	}
	return r
}

// UnmarshalMessage decodes one message in the given provider's wire format.
// Anthropic payloads are disambiguated by shape: conversation messages carry
// a role, system text blocks carry a type tag.
func UnmarshalMessage(data []byte, p Provider) (Message, error) {
	switch {
	case p == ProviderAnthropic:
		if gjson.GetBytes(data, "role").Exists() {
			var m AnthropicMessage
			if err := json.Unmarshal(data, &m.Message); err != nil {
				return nil, err
			}
			return &m, nil
		}
		var m AnthropicSystemMessage
		if err := json.Unmarshal(data, &m.SystemMessage); err != nil {
			return nil, err
		}
		return &m, nil
	case p.IsGoogleFamily():
		var m GeminiContent
		if err := json.Unmarshal(data, &m.Content); err != nil {
			return nil, err
		}
		return &m, nil
	default:
		var m OpenAIMessage
		if err := json.Unmarshal(data, &m.ChatMessage); err != nil {
			return nil, err
		}
		return &m, nil
	}
}
