// Package llm defines the completion interface consumed by the agent and
// provides Anthropic and Ollama backed implementations. Retry policy lives
// in the agent's recovery loop, never here.
package llm

import "context"

// CompleteOptions holds options for a completion call.
type CompleteOptions struct {
	CacheSystemPrompt bool // Enable prompt caching for the system prompt
}

// CompleteOption is a functional option for Complete.
type CompleteOption func(*CompleteOptions)

// WithCacheControl marks the system prompt as cacheable. The generation
// system prompt (instructions + schema) is large and identical across
// retries, so caching it cuts cost on recovery rounds.
func WithCacheControl() CompleteOption {
	return func(o *CompleteOptions) {
		o.CacheSystemPrompt = true
	}
}

// Client is the interface for interacting with an LLM.
type Client interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts ...CompleteOption) (string, error)
}
