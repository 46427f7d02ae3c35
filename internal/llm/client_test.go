package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acharya-agent/backend/pkg/retry"
)

func newTestServer(t *testing.T, reply func(req openai.ChatCompletionRequest) (int, string)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		status, content := reply(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":{"message":"unavailable","type":"server_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
			},
			Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTranslate(t *testing.T) {
	var seen openai.ChatCompletionRequest
	server := newTestServer(t, func(req openai.ChatCompletionRequest) (int, string) {
		seen = req
		return http.StatusOK, "  \"മായ എന്താണ്\" "
	})

	names := map[string]string{"en": "English", "ml": "Malayalam"}
	c := NewClient(Config{APIKey: "test", BaseURL: server.URL + "/v1", Model: "test-model"},
		WithLanguageNames(func(code string) string { return names[code] }))

	out, err := c.Translate(context.Background(), "what is maya", "en", "ml")
	require.NoError(t, err)
	assert.Equal(t, "മായ എന്താണ്", out)
	assert.Equal(t, "llm", c.Name())

	require.Len(t, seen.Messages, 2)
	assert.Contains(t, seen.Messages[0].Content, "from English to Malayalam")
	assert.Equal(t, "what is maya", seen.Messages[1].Content)
	assert.Equal(t, "test-model", seen.Model)
}

func TestCompleteRetries(t *testing.T) {
	calls := 0
	server := newTestServer(t, func(openai.ChatCompletionRequest) (int, string) {
		calls++
		if calls == 1 {
			return http.StatusServiceUnavailable, ""
		}
		return http.StatusOK, "ok"
	})

	c := NewClient(Config{APIKey: "test", BaseURL: server.URL + "/v1", Model: "m"},
		WithRetry(retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond}))

	resp, err := c.Complete(context.Background(), CompletionRequest{SystemPrompt: "s", UserPrompt: "u"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 13, resp.Usage.TotalTokens)
	assert.Equal(t, 2, calls)
}

func TestCompleteFailure(t *testing.T) {
	server := newTestServer(t, func(openai.ChatCompletionRequest) (int, string) {
		return http.StatusInternalServerError, ""
	})

	c := NewClient(Config{APIKey: "test", BaseURL: server.URL + "/v1", Model: "m"},
		WithRetry(retry.Config{MaxAttempts: 1}))

	_, err := c.Translate(context.Background(), "hello", "en", "ml")
	assert.ErrorContains(t, err, "failed to translate")
}
