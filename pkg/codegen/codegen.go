// Package codegen turns a natural-language question into a runnable Go
// snippet via the LLM, then extracts and validates the code from the
// model's response.
package codegen

import (
	"context"
	"go/parser"
	"go/token"
	"log/slog"
	"strings"

	"github.com/fathomdata/fathom/pkg/fault"
	"github.com/fathomdata/fathom/pkg/llm"
)

// Generated is the outcome of one generation call. Raw is the full model
// response, Code the extracted and validated snippet.
type Generated struct {
	Raw  string
	Code string
}

// Generator drives the LLM and post-processes its output.
type Generator struct {
	llm llm.Client
	log *slog.Logger
}

// New creates a Generator. llm must not be nil.
func New(client llm.Client, log *slog.Logger) *Generator {
	return &Generator{llm: client, log: log}
}

// Generate asks the LLM for code. The system prompt carries the schema
// and instructions and is identical across retries of the same question,
// so it is marked cacheable.
func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string) (*Generated, error) {
	response, err := g.llm.Complete(ctx, systemPrompt, userPrompt, llm.WithCacheControl())
	if err != nil {
		return nil, fault.Wrap(fault.KindGeneration, err, "LLM completion failed")
	}

	code, err := ExtractCode(response)
	if err != nil {
		return nil, err
	}
	if err := Validate(code); err != nil {
		return nil, err
	}

	if g.log != nil {
		g.log.Debug("generated code", "bytes", len(code))
	}
	return &Generated{Raw: response, Code: code}, nil
}

// ExtractCode pulls the Go snippet out of a model response. It prefers a
// ```go fenced block, falls back to any fenced block, and as a last
// resort accepts the whole response when it looks like Go.
func ExtractCode(response string) (string, error) {
	response = strings.TrimSpace(response)

	if code := extractFenced(response, "```go"); code != "" {
		return code, nil
	}
	if code := extractFenced(response, "```golang"); code != "" {
		return code, nil
	}
	if code := extractFenced(response, "```"); code != "" && looksLikeGo(code) {
		return code, nil
	}
	if looksLikeGo(response) {
		return response, nil
	}

	return "", fault.New(fault.KindGeneration, "no code block found in response")
}

func extractFenced(response, fence string) string {
	start := strings.Index(response, fence)
	if start == -1 {
		return ""
	}
	start += len(fence)
	// Skip to the end of the fence line.
	if nl := strings.IndexByte(response[start:], '\n'); nl != -1 {
		start += nl + 1
	}
	end := strings.Index(response[start:], "```")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(response[start : start+end])
}

func looksLikeGo(text string) bool {
	for _, marker := range []string{"func Run(", "func Run ("} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// Validate parses the snippet and checks the entry point contract. A
// snippet that fails here never reaches the runner.
func Validate(code string) error {
	src := code
	if !strings.Contains(src, "package ") {
		src = "package main\n\n" + src
	}

	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, "snippet.go", src, parser.AllErrors); err != nil {
		return fault.Wrap(fault.KindGeneration, err, "generated code does not parse")
	}
	if !strings.Contains(code, "func Run(") {
		return fault.New(fault.KindGeneration, "generated code does not define Run")
	}
	return nil
}
