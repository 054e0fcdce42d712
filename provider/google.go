package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/demml/potatohead-go/logging"
	"github.com/demml/potatohead-go/prompt"
	googlewire "github.com/demml/potatohead-go/wire/google"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	vertexScope           = "https://www.googleapis.com/auth/cloud-platform"
	vertexDefaultLocation = "us-central1"
)

// GeminiClient executes prompts against the Gemini generateContent API
// using API-key authentication.
type GeminiClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	logger     logging.Logger
}

// NewGeminiClient builds a Gemini client. The API key is taken from the
// options, GEMINI_API_KEY or GOOGLE_API_KEY; GEMINI_API_URL overrides the
// endpoint.
func NewGeminiClient(optFns ...func(*Options)) (*GeminiClient, error) {
	opts := buildOptions(optFns)
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, &MissingAuthError{Provider: prompt.ProviderGemini, EnvVars: []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}}
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("GEMINI_API_URL")
	}
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &GeminiClient{
		httpClient: httpClient,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     opts.Logger,
	}, nil
}

// Provider returns the Gemini provider tag.
func (c *GeminiClient) Provider() prompt.Provider { return prompt.ProviderGemini }

// GenerateContent POSTs the prompt's serialized body to the model's
// generateContent endpoint.
func (c *GeminiClient) GenerateContent(ctx context.Context, p *prompt.Prompt) (prompt.ChatResponse, error) {
	body, err := requestBody(p, prompt.ProviderGemini)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, p.Model)
	headers := http.Header{"x-goog-api-key": []string{c.apiKey}}
	return postGenerateContent(ctx, c.httpClient, c.logger, prompt.ProviderGemini, url, headers, body, p.Model)
}

// VertexClient executes prompts against Vertex AI generateContent using
// Google application default credentials.
type VertexClient struct {
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	projectID   string
	location    string
	baseURL     string
	logger      logging.Logger
}

// NewVertexClient builds a Vertex client from application default
// credentials. The project comes from the options, GOOGLE_CLOUD_PROJECT or
// the credentials; the location from the options or GOOGLE_CLOUD_LOCATION,
// defaulting to us-central1.
func NewVertexClient(ctx context.Context, optFns ...func(*Options)) (*VertexClient, error) {
	opts := buildOptions(optFns)
	creds, err := google.FindDefaultCredentials(ctx, vertexScope)
	if err != nil {
		return nil, &MissingAuthError{Provider: prompt.ProviderVertex, EnvVars: []string{"GOOGLE_APPLICATION_CREDENTIALS"}}
	}

	projectID := opts.ProjectID
	if projectID == "" {
		projectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if projectID == "" {
		projectID = creds.ProjectID
	}
	if projectID == "" {
		return nil, fmt.Errorf("vertex requires a project id: set GOOGLE_CLOUD_PROJECT or use WithProject")
	}

	location := opts.Location
	if location == "" {
		location = os.Getenv("GOOGLE_CLOUD_LOCATION")
	}
	if location == "" {
		location = vertexDefaultLocation
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1beta1", location)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	return &VertexClient{
		httpClient:  httpClient,
		tokenSource: creds.TokenSource,
		projectID:   projectID,
		location:    location,
		baseURL:     strings.TrimRight(baseURL, "/"),
		logger:      opts.Logger,
	}, nil
}

// Provider returns the Vertex provider tag.
func (c *VertexClient) Provider() prompt.Provider { return prompt.ProviderVertex }

// GenerateContent POSTs the prompt's serialized body to the publisher model
// endpoint with a bearer token from the credential source.
func (c *VertexClient) GenerateContent(ctx context.Context, p *prompt.Prompt) (prompt.ChatResponse, error) {
	body, err := requestBody(p, prompt.ProviderVertex)
	if err != nil {
		return nil, err
	}
	token, err := c.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("vertex token: %w", err)
	}
	url := fmt.Sprintf("%s/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
		c.baseURL, c.projectID, c.location, p.Model)
	headers := http.Header{"Authorization": []string{"Bearer " + token.AccessToken}}
	return postGenerateContent(ctx, c.httpClient, c.logger, prompt.ProviderVertex, url, headers, body, p.Model)
}

func postGenerateContent(ctx context.Context, client *http.Client, logger logging.Logger, p prompt.Provider, url string, headers http.Header, body []byte, model string) (prompt.ChatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", p, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	logger.Debug("sending generateContent request", "provider", string(p), "model", model)
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		logger.Error("generateContent request failed", "provider", string(p), "model", model, "error", err)
		return nil, fmt.Errorf("%s completion: %w", p, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", p, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Error("generateContent returned error status",
			"provider", string(p), "model", model, "status", resp.StatusCode)
		return nil, &CompletionError{Provider: p, StatusCode: resp.StatusCode, Body: string(payload)}
	}

	var res googlewire.GenerateContentResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", p, err)
	}
	logger.Debug("generateContent succeeded", "provider", string(p), "model", model, "duration", time.Since(start))
	return &prompt.GeminiResponse{GenerateContentResponse: res}, nil
}
