// Package provider implements the network clients that execute prompts
// against model vendors. OpenAI and Anthropic ride on their official SDK
// transports with pre-serialized bodies; Gemini and Vertex use a plain HTTP
// client, with Vertex authenticating through Google application default
// credentials.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/demml/potatohead-go/internal/util"
	"github.com/demml/potatohead-go/logging"
	"github.com/demml/potatohead-go/prompt"
)

// DefaultTimeout bounds one provider round trip for the HTTP-backed
// clients.
const DefaultTimeout = 30 * time.Second

// ErrProviderUndefined is returned when a client is requested for the
// undefined provider sentinel, typically a deserialized agent that has not
// been re-bound.
var ErrProviderUndefined = errors.New("provider is undefined; rebind the agent to a concrete provider")

// Client executes a prompt against one model vendor.
type Client interface {
	// Provider returns the vendor the client talks to.
	Provider() prompt.Provider
	// GenerateContent sends the prompt's request and decodes the vendor
	// response.
	GenerateContent(ctx context.Context, p *prompt.Prompt) (prompt.ChatResponse, error)
}

// Options configures client construction. Zero values fall back to
// environment-based defaults.
type Options struct {
	// APIKey overrides the environment API key.
	APIKey string
	// BaseURL overrides the vendor endpoint, mainly for tests.
	BaseURL string
	// HTTPClient overrides the transport of the HTTP-backed clients.
	HTTPClient *http.Client
	// Logger receives per-call diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
	// ProjectID overrides the Vertex project.
	ProjectID string
	// Location overrides the Vertex location.
	Location string
}

// WithAPIKey overrides the environment API key.
func WithAPIKey(key string) func(*Options) {
	return func(o *Options) { o.APIKey = key }
}

// WithBaseURL overrides the vendor endpoint.
func WithBaseURL(url string) func(*Options) {
	return func(o *Options) { o.BaseURL = url }
}

// WithHTTPClient overrides the HTTP transport.
func WithHTTPClient(c *http.Client) func(*Options) {
	return func(o *Options) { o.HTTPClient = c }
}

// WithLogger attaches a logger to the client.
func WithLogger(l logging.Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}

// WithProject sets the Vertex project id.
func WithProject(projectID string) func(*Options) {
	return func(o *Options) { o.ProjectID = projectID }
}

// WithLocation sets the Vertex location.
func WithLocation(location string) func(*Options) {
	return func(o *Options) { o.Location = location }
}

func buildOptions(optFns []func(*Options)) Options {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return opts
}

// New builds the client for a provider.
func New(ctx context.Context, p prompt.Provider, optFns ...func(*Options)) (Client, error) {
	switch {
	case p == prompt.ProviderOpenAI:
		return NewOpenAIClient(optFns...)
	case p == prompt.ProviderAnthropic:
		return NewAnthropicClient(optFns...)
	case p == prompt.ProviderVertex:
		return NewVertexClient(ctx, optFns...)
	case p.IsGoogleFamily():
		return NewGeminiClient(optFns...)
	case p == prompt.ProviderUndefined:
		return nil, ErrProviderUndefined
	default:
		return nil, fmt.Errorf("no client for provider %q", p)
	}
}

// MissingAuthError reports that no credential source was found for a
// provider.
type MissingAuthError struct {
	Provider prompt.Provider
	EnvVars  []string
}

func (e *MissingAuthError) Error() string {
	return fmt.Sprintf("missing %s credentials: set %s", e.Provider, strings.Join(e.EnvVars, " or "))
}

// CompletionError reports a non-success status from a provider endpoint.
type CompletionError struct {
	Provider   prompt.Provider
	StatusCode int
	Body       string
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("%s completion failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// requestBody serializes the prompt's request for its provider family and
// merges any extra body over it.
func requestBody(p *prompt.Prompt, family prompt.Provider) ([]byte, error) {
	rp := p.Request.Provider()
	if rp != family && !(rp.IsGoogleFamily() && family.IsGoogleFamily()) {
		return nil, &prompt.ProviderMismatchError{Settings: rp, Prompt: family}
	}
	body, err := p.Request.RequestBody()
	if err != nil {
		return nil, fmt.Errorf("serialize request: %w", err)
	}
	return util.MergeExtraBody(body, p.Request.ExtraBody())
}
