// Package prompts holds the LLM prompt templates and builders. Templates
// live in embedded markdown files so they can be reviewed and edited
// without touching Go code.
package prompts

import (
	"fmt"
	"strings"
)

// Prompts contains the templates loaded from the embedded files.
type Prompts struct {
	Chat              string // System prompt for code generation
	CorrectError      string // Corrective prompt after an execution failure
	CorrectOutputType string // Corrective prompt after a wrong result type
}

// Load reads all templates from the embedded filesystem.
func Load() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Chat, err = loadTemplate("CHAT.md"); err != nil {
		return nil, fmt.Errorf("failed to load CHAT: %w", err)
	}
	if p.CorrectError, err = loadTemplate("CORRECT_ERROR.md"); err != nil {
		return nil, fmt.Errorf("failed to load CORRECT_ERROR: %w", err)
	}
	if p.CorrectOutputType, err = loadTemplate("CORRECT_OUTPUT_TYPE.md"); err != nil {
		return nil, fmt.Errorf("failed to load CORRECT_OUTPUT_TYPE: %w", err)
	}

	return p, nil
}

func loadTemplate(path string) (string, error) {
	data, err := templatesFS.ReadFile("templates/" + path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// BuildSystem renders the chat system prompt with the schema of the
// available data sources and optional retrieved context (conversation
// history, similar past question/answer pairs, reference docs).
func (p *Prompts) BuildSystem(schema, context string) string {
	out := strings.Replace(p.Chat, "{{SCHEMA}}", schema, 1)
	if context != "" {
		context = "# Context\n\n" + context
	}
	return strings.TrimSpace(strings.Replace(out, "{{CONTEXT}}", context, 1))
}

// BuildCorrectError renders the generic regeneration prompt from the
// failing code and the failure text.
func (p *Prompts) BuildCorrectError(code, errText string) string {
	out := strings.Replace(p.CorrectError, "{{CODE}}", code, 1)
	return strings.Replace(out, "{{ERROR}}", errText, 1)
}

// BuildCorrectOutputType renders the type-mismatch regeneration prompt.
func (p *Prompts) BuildCorrectOutputType(code, errText, expectedType string) string {
	out := strings.Replace(p.CorrectOutputType, "{{CODE}}", code, 1)
	out = strings.Replace(out, "{{ERROR}}", errText, 1)
	return strings.ReplaceAll(out, "{{EXPECTED_TYPE}}", expectedType)
}
