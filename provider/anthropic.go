package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/demml/potatohead-go/logging"
	"github.com/demml/potatohead-go/prompt"
	anthropicwire "github.com/demml/potatohead-go/wire/anthropic"
)

// structuredOutputsBeta gates the output_format field of the Messages API.
const structuredOutputsBeta = "structured-outputs-2025-11-13"

// AnthropicClient executes prompts against the Messages API. The official
// SDK supplies transport, retries and the anthropic-version header; request
// bodies are pre-serialized by the prompt layer.
type AnthropicClient struct {
	client anthropic.Client
	logger logging.Logger
}

// NewAnthropicClient builds a Messages client. The API key is taken from
// the options or ANTHROPIC_API_KEY; ANTHROPIC_API_URL overrides the
// endpoint.
func NewAnthropicClient(optFns ...func(*Options)) (*AnthropicClient, error) {
	opts := buildOptions(optFns)
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, &MissingAuthError{Provider: prompt.ProviderAnthropic, EnvVars: []string{"ANTHROPIC_API_KEY"}}
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("ANTHROPIC_API_URL")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &AnthropicClient{
		client: anthropic.NewClient(clientOpts...),
		logger: opts.Logger,
	}, nil
}

// Provider returns the Anthropic provider tag.
func (c *AnthropicClient) Provider() prompt.Provider { return prompt.ProviderAnthropic }

// GenerateContent POSTs the prompt's serialized body to v1/messages. A
// structured-output schema adds the beta header that enables output_format.
func (c *AnthropicClient) GenerateContent(ctx context.Context, p *prompt.Prompt) (prompt.ChatResponse, error) {
	body, err := requestBody(p, prompt.ProviderAnthropic)
	if err != nil {
		return nil, err
	}

	var reqOpts []option.RequestOption
	if len(p.Request.ResponseJSONSchema()) > 0 {
		reqOpts = append(reqOpts, option.WithHeader("anthropic-beta", structuredOutputsBeta))
	}

	c.logger.Debug("sending anthropic completion", "model", p.Model)
	start := time.Now()
	var res anthropicwire.ChatResponse
	if err := c.client.Post(ctx, "v1/messages", json.RawMessage(body), &res, reqOpts...); err != nil {
		c.logger.Error("anthropic completion failed", "model", p.Model, "error", err)
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}
	c.logger.Debug("anthropic completion succeeded",
		"model", p.Model,
		"duration", time.Since(start),
		"output_tokens", res.Usage.OutputTokens,
	)
	return &prompt.AnthropicResponse{ChatResponse: res}, nil
}
