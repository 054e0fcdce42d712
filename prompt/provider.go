// Package prompt holds the provider-agnostic invocation model: the Message
// union over per-vendor wire formats, the Prompt specification of a single
// model call, the ProviderRequest union that serializes to vendor wire
// bodies, and the ChatResponse union that normalizes vendor responses.
//
// Vendor dispatch is implemented as closed tagged unions, not open
// polymorphism: the provider set is bounded and conversions are N x N, so
// adding a provider is a deliberate three-place edit (message, request,
// response).
package prompt

import (
	"fmt"
	"strings"
)

// Provider identifies a model vendor backend. Gemini, Google and Vertex
// share the Gemini message and request shapes but differ in endpoint
// construction. ProviderUndefined is a sentinel used after deserialization
// before a client has been re-bound.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
	ProviderGemini    Provider = "gemini"
	ProviderVertex    Provider = "vertex"
	ProviderUndefined Provider = "undefined"
)

// ParseProvider resolves a provider from its string form, case-insensitive.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return ProviderOpenAI, nil
	case "anthropic":
		return ProviderAnthropic, nil
	case "google":
		return ProviderGoogle, nil
	case "gemini":
		return ProviderGemini, nil
	case "vertex":
		return ProviderVertex, nil
	case "undefined", "":
		return ProviderUndefined, nil
	default:
		return ProviderUndefined, fmt.Errorf("unknown provider %q", s)
	}
}

// IsGoogleFamily reports whether the provider uses the Gemini wire shape.
func (p Provider) IsGoogleFamily() bool {
	return p == ProviderGoogle || p == ProviderGemini || p == ProviderVertex
}

// SystemRole returns the role assigned to bare system-instruction strings
// for this provider. Anthropic parses system strings as assistant messages
// which prompt construction then coerces into dedicated system text blocks.
func (p Provider) SystemRole() Role {
	if p == ProviderAnthropic {
		return RoleAssistant
	}
	return RoleDeveloper
}

// Role is a message author role with its canonical string form.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleDeveloper Role = "developer"
	RoleTool      Role = "tool"
	RoleModel     Role = "model"
	RoleSystem    Role = "system"
)

// String returns the canonical wire form of the role.
func (r Role) String() string { return string(r) }
