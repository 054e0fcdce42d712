package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/demml/potatohead-go/prompt"
	googlewire "github.com/demml/potatohead-go/wire/google"
)

func geminiHandler(t *testing.T, capture *capturedRequest, status int, payload string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		capture.path = r.URL.Path
		capture.apiKey = r.Header.Get("x-goog-api-key")
		capture.body = body
		w.WriteHeader(status)
		w.Write([]byte(payload))
	}
}

type capturedRequest struct {
	path   string
	apiKey string
	body   []byte
}

const geminiResponsePayload = `{
	"responseId": "resp-1",
	"modelVersion": "gemini-2.5-flash",
	"candidates": [
		{"content": {"role": "model", "parts": [{"text": "hello"}]}, "finishReason": "STOP"}
	],
	"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 2, "totalTokenCount": 6}
}`

func TestGeminiGenerateContent(t *testing.T) {
	var captured capturedRequest
	srv := httptest.NewServer(geminiHandler(t, &captured, http.StatusOK, geminiResponsePayload))
	defer srv.Close()

	client, err := NewGeminiClient(WithAPIKey("test-key"), WithBaseURL(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, prompt.ProviderGemini, client.Provider())

	p, err := prompt.NewFromText(prompt.ProviderGemini, "gemini-2.5-flash", "say hello")
	require.NoError(t, err)

	res, err := client.GenerateContent(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "/models/gemini-2.5-flash:generateContent", captured.path)
	assert.Equal(t, "test-key", captured.apiKey)
	assert.Equal(t, "say hello", gjson.GetBytes(captured.body, "contents.0.parts.0.text").String())
	assert.False(t, gjson.GetBytes(captured.body, "model").Exists())

	assert.Equal(t, "resp-1", res.ID())
	assert.Equal(t, "hello", res.Content())
	assert.Equal(t, 6, res.Usage().TotalTokens)
}

func TestGeminiGenerateContentErrorStatus(t *testing.T) {
	var captured capturedRequest
	srv := httptest.NewServer(geminiHandler(t, &captured, http.StatusTooManyRequests, `{"error": "quota"}`))
	defer srv.Close()

	client, err := NewGeminiClient(WithAPIKey("test-key"), WithBaseURL(srv.URL))
	require.NoError(t, err)

	p, err := prompt.NewFromText(prompt.ProviderGemini, "gemini-2.5-flash", "say hello")
	require.NoError(t, err)

	_, err = client.GenerateContent(context.Background(), p)
	var compErr *CompletionError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, prompt.ProviderGemini, compErr.Provider)
	assert.Equal(t, http.StatusTooManyRequests, compErr.StatusCode)
	assert.Contains(t, compErr.Body, "quota")
}

func TestGeminiMergesExtraBody(t *testing.T) {
	var captured capturedRequest
	srv := httptest.NewServer(geminiHandler(t, &captured, http.StatusOK, geminiResponsePayload))
	defer srv.Close()

	client, err := NewGeminiClient(WithAPIKey("test-key"), WithBaseURL(srv.URL))
	require.NoError(t, err)

	extra, err := json.Marshal(map[string]any{"safetySettings": []any{}})
	require.NoError(t, err)
	p, err := prompt.NewFromText(prompt.ProviderGemini, "gemini-2.5-flash", "hi",
		prompt.WithSettings(&prompt.GoogleChatSettings{Settings: googlewire.Settings{ExtraBody: extra}}))
	require.NoError(t, err)

	_, err = client.GenerateContent(context.Background(), p)
	require.NoError(t, err)

	assert.True(t, gjson.GetBytes(captured.body, "safetySettings").Exists())
	assert.False(t, gjson.GetBytes(captured.body, "extra_body").Exists())
}

func TestGeminiRejectsForeignRequest(t *testing.T) {
	client, err := NewGeminiClient(WithAPIKey("test-key"))
	require.NoError(t, err)

	p, err := prompt.NewFromText(prompt.ProviderOpenAI, "gpt-4o", "hi")
	require.NoError(t, err)

	_, err = client.GenerateContent(context.Background(), p)
	var mismatch *prompt.ProviderMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestNewGeminiClientMissingKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	_, err := NewGeminiClient()
	var authErr *MissingAuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, prompt.ProviderGemini, authErr.Provider)
	assert.Contains(t, authErr.Error(), "GEMINI_API_KEY")
}
