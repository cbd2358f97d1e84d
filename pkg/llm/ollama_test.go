package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fathomdata/fathom/pkg/fault"
)

func TestOllamaComplete(t *testing.T) {
	var gotSystem, gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotSystem, _ = req["system"].(string)
		gotPrompt, _ = req["prompt"].(string)
		require.Equal(t, false, req["stream"])

		_ = json.NewEncoder(w).Encode(map[string]any{"response": "```go\nfunc Run() {}\n```"})
	}))
	defer server.Close()

	c := NewOllamaClient(server.URL, "qwen2.5-coder")
	out, err := c.Complete(context.Background(), "you are an analyst", "count the users")
	require.NoError(t, err)
	require.Contains(t, out, "func Run()")
	require.Equal(t, "you are an analyst", gotSystem)
	require.Equal(t, "count the users", gotPrompt)
}

func TestOllamaCompleteServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	c := NewOllamaClient(server.URL, "missing-model")
	_, err := c.Complete(context.Background(), "system", "prompt")
	require.Error(t, err)
	require.Equal(t, fault.KindGeneration, fault.KindOf(err))
	require.Contains(t, err.Error(), "model not found")
}

func TestOllamaCompleteEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": ""})
	}))
	defer server.Close()

	c := NewOllamaClient(server.URL, "qwen2.5-coder")
	_, err := c.Complete(context.Background(), "system", "prompt")
	require.Error(t, err)
	require.Equal(t, fault.KindGeneration, fault.KindOf(err))
}

func TestOllamaDefaultBaseURL(t *testing.T) {
	c := NewOllamaClient("", "m")
	require.Equal(t, defaultOllamaURL, c.baseURL)
}
