package llm

import (
	"context"
	"log/slog"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/fathomdata/fathom/pkg/fault"
	"github.com/fathomdata/fathom/pkg/metrics"
)

// AnthropicClient implements Client using the Anthropic API.
type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       *slog.Logger
}

// NewAnthropicClient creates a new Anthropic-backed client. The API key is
// read from the environment by the SDK.
func NewAnthropicClient(log *slog.Logger, model anthropic.Model, maxTokens int64) *AnthropicClient {
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return &AnthropicClient{
		client:    anthropic.NewClient(),
		model:     model,
		maxTokens: maxTokens,
		log:       log,
	}
}

// Complete sends a prompt to Claude and returns the response text.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string, opts ...CompleteOption) (string, error) {
	options := &CompleteOptions{}
	for _, opt := range opts {
		opt(options)
	}

	system := []anthropic.TextBlockParam{
		{Type: "text", Text: systemPrompt},
	}
	if options.CacheSystemPrompt {
		system[0].CacheControl = anthropic.NewCacheControlEphemeralParam()
	}

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	duration := time.Since(start)
	metrics.RecordLLMRequest("anthropic", duration, err)

	if err != nil {
		if c.log != nil {
			c.log.Error("llm: anthropic call failed", "duration", duration, "error", err)
		}
		return "", fault.Wrap(fault.KindGeneration, err, "anthropic API error")
	}
	if c.log != nil {
		c.log.Debug("llm: anthropic call completed", "duration", duration, "stopReason", msg.StopReason)
	}
	metrics.RecordLLMTokens("anthropic", msg.Usage.InputTokens, msg.Usage.OutputTokens)

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", fault.New(fault.KindGeneration, "no text content in response")
}
