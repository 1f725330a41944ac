package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "silent-partners/backend/pkg/errors"
)

// fakeCompletionServer answers /v1/chat/completions with the given statuses
// in order, then with content.
func fakeCompletionServer(t *testing.T, content string, statuses ...int) (*httptest.Server, *int32, *map[string]interface{}) {
	t.Helper()
	var calls int32
	lastRequest := map[string]interface{}{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		n := atomic.AddInt32(&calls, 1)

		_ = json.NewDecoder(r.Body).Decode(&lastRequest)
		w.Header().Set("Content-Type", "application/json")

		if int(n) <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			_, _ = w.Write([]byte(`{"error":{"message":"upstream failure","type":"server_error"}}`))
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   lastRequest["model"],
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]interface{}{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]interface{}{"prompt_tokens": 100, "completion_tokens": 50, "total_tokens": 150},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &lastRequest
}

func TestLLMAdapter_CompleteJSON(t *testing.T) {
	srv, calls, last := fakeCompletionServer(t, `{"entities":[]}`)

	a := NewLLMAdapter(srv.URL+"/v1", "test-key", "gpt-4.1-mini")
	out, err := a.CompleteJSON(context.Background(), "system", "user", "")
	require.NoError(t, err)

	assert.Equal(t, `{"entities":[]}`, out.Content)
	assert.Equal(t, "gpt-4.1-mini", out.Model)
	assert.Equal(t, 150, out.TotalTokens)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	assert.Equal(t, "gpt-4.1-mini", (*last)["model"])
	assert.InDelta(t, 0.3, (*last)["temperature"], 1e-6)
	format, ok := (*last)["response_format"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

func TestLLMAdapter_ModelOverride(t *testing.T) {
	srv, _, last := fakeCompletionServer(t, `{}`)

	a := NewLLMAdapter(srv.URL+"/v1", "test-key", "gpt-4.1-mini")
	out, err := a.CompleteJSON(context.Background(), "s", "u", "gpt-4.1-nano")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-nano", out.Model)
	assert.Equal(t, "gpt-4.1-nano", (*last)["model"])

	a.SetModel("gemini-2.5-flash")
	assert.Equal(t, "gemini-2.5-flash", a.GetModel())
	a.SetModel("")
	assert.Equal(t, "gemini-2.5-flash", a.GetModel())
}

func TestLLMAdapter_RetriesServerErrors(t *testing.T) {
	srv, calls, _ := fakeCompletionServer(t, `{"ok":true}`, http.StatusInternalServerError, http.StatusBadGateway)

	a := NewLLMAdapter(srv.URL+"/v1", "test-key", "gpt-4.1-mini")
	a.SetRetryPolicy(3, time.Millisecond)

	out, err := a.CompleteJSON(context.Background(), "s", "u", "")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out.Content)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestLLMAdapter_DoesNotRetryClientErrors(t *testing.T) {
	srv, calls, _ := fakeCompletionServer(t, `{}`, http.StatusBadRequest)

	a := NewLLMAdapter(srv.URL+"/v1", "test-key", "gpt-4.1-mini")
	a.SetRetryPolicy(3, time.Millisecond)

	_, err := a.CompleteJSON(context.Background(), "s", "u", "")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	var llmErr *apperrors.ErrLLMFailed
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, 1, llmErr.Attempts)
	assert.False(t, llmErr.Retryable)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeLLM))
}

func TestLLMAdapter_GivesUpAfterMaxRetries(t *testing.T) {
	srv, calls, _ := fakeCompletionServer(t, `{}`,
		http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusServiceUnavailable)

	a := NewLLMAdapter(srv.URL+"/v1", "test-key", "gpt-4.1-mini")
	a.SetRetryPolicy(2, time.Millisecond)

	_, err := a.CompleteJSON(context.Background(), "s", "u", "")
	var llmErr *apperrors.ErrLLMFailed
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, 2, llmErr.Attempts)
	assert.True(t, llmErr.Retryable)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestLLMAdapter_EmptyContent(t *testing.T) {
	srv, _, _ := fakeCompletionServer(t, "")

	a := NewLLMAdapter(srv.URL+"/v1", "test-key", "gpt-4.1-mini")
	_, err := a.CompleteJSON(context.Background(), "s", "u", "")
	assert.ErrorIs(t, err, apperrors.ErrLLMNoResponse)
}

// TestLLMAdapter_Live requires OPENAI_API_KEY and network access
func TestLLMAdapter_Live(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	a := NewLLMAdapter("https://api.openai.com/v1", key, "gpt-4.1-mini")
	out, err := a.CompleteJSON(context.Background(),
		"You are a helpful assistant. Always return valid JSON.",
		`Return {"greeting": "<one short sentence>"}`, "")
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out.Content), &parsed))
	assert.NotEmpty(t, parsed["greeting"])
}
