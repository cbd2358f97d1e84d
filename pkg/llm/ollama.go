package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/fathomdata/fathom/pkg/fault"
	"github.com/fathomdata/fathom/pkg/metrics"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaClient implements Client against a local Ollama server. Useful for
// offline development; cache options are accepted and ignored.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClient creates a client for the given model. An empty baseURL
// falls back to the default local endpoint.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaClient{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Complete sends a prompt to Ollama and returns the response text.
func (c *OllamaClient) Complete(ctx context.Context, systemPrompt, userPrompt string, _ ...CompleteOption) (string, error) {
	reqBody := map[string]any{
		"model":  c.model,
		"prompt": userPrompt,
		"system": systemPrompt,
		"stream": false,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fault.Wrap(fault.KindGeneration, err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fault.Wrap(fault.KindGeneration, err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordLLMRequest("ollama", time.Since(start), err)
	if err != nil {
		return "", fault.Wrap(fault.KindGeneration, err, "ollama request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fault.Wrap(fault.KindGeneration, err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", fault.New(fault.KindGeneration, "ollama error: %s", string(body))
	}

	var ollamaResp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return "", fault.Wrap(fault.KindGeneration, err, "failed to parse response")
	}
	if ollamaResp.Response == "" {
		return "", fault.New(fault.KindGeneration, "empty response from ollama")
	}

	return ollamaResp.Response, nil
}
