package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/demml/potatohead-go/logging"
	"github.com/demml/potatohead-go/prompt"
	openaiwire "github.com/demml/potatohead-go/wire/openai"
)

// OpenAIClient executes prompts against the Chat Completions API. The
// official SDK supplies transport, retries and auth headers; request bodies
// are pre-serialized by the prompt layer.
type OpenAIClient struct {
	client openai.Client
	logger logging.Logger
}

// NewOpenAIClient builds a Chat Completions client. The API key is taken
// from the options or OPENAI_API_KEY; OPENAI_API_URL overrides the
// endpoint.
func NewOpenAIClient(optFns ...func(*Options)) (*OpenAIClient, error) {
	opts := buildOptions(optFns)
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, &MissingAuthError{Provider: prompt.ProviderOpenAI, EnvVars: []string{"OPENAI_API_KEY"}}
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_API_URL")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &OpenAIClient{
		client: openai.NewClient(clientOpts...),
		logger: opts.Logger,
	}, nil
}

// Provider returns the OpenAI provider tag.
func (c *OpenAIClient) Provider() prompt.Provider { return prompt.ProviderOpenAI }

// GenerateContent POSTs the prompt's serialized body to chat/completions.
func (c *OpenAIClient) GenerateContent(ctx context.Context, p *prompt.Prompt) (prompt.ChatResponse, error) {
	body, err := requestBody(p, prompt.ProviderOpenAI)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("sending openai completion", "model", p.Model)
	start := time.Now()
	var res openaiwire.ChatResponse
	if err := c.client.Post(ctx, "chat/completions", json.RawMessage(body), &res); err != nil {
		c.logger.Error("openai completion failed", "model", p.Model, "error", err)
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	c.logger.Debug("openai completion succeeded",
		"model", p.Model,
		"duration", time.Since(start),
		"total_tokens", res.Usage.TotalTokens,
	)
	return &prompt.OpenAIResponse{ChatResponse: res}, nil
}
