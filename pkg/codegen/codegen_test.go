package codegen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fathomdata/fathom/pkg/fault"
	"github.com/fathomdata/fathom/pkg/llm"
)

const goodCode = "func Run() (map[string]any, error) {\n\treturn map[string]any{\"type\": \"string\", \"value\": \"ok\"}, nil\n}"

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Complete(ctx context.Context, system, user string, opts ...llm.CompleteOption) (string, error) {
	return s.response, s.err
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "go fenced block",
			response: "Here you go:\n```go\n" + goodCode + "\n```\nHope that helps.",
			want:     goodCode,
		},
		{
			name:     "golang fenced block",
			response: "```golang\n" + goodCode + "\n```",
			want:     goodCode,
		},
		{
			name:     "generic fenced block containing Run",
			response: "```\n" + goodCode + "\n```",
			want:     goodCode,
		},
		{
			name:     "bare code without fences",
			response: goodCode,
			want:     goodCode,
		},
		{
			name:     "prose only",
			response: "I cannot answer that question.",
			wantErr:  true,
		},
		{
			name:     "generic fence without Run",
			response: "```\nSELECT 1\n```",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractCode(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				require.Equal(t, fault.KindGeneration, fault.KindOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(goodCode))

	err := Validate("func Run() (map[string]any, error) { return nil,")
	require.Error(t, err)
	require.Equal(t, fault.KindGeneration, fault.KindOf(err))

	err = Validate("func Helper() int { return 1 }")
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not define Run")
}

func TestGenerate(t *testing.T) {
	g := New(&stubLLM{response: "```go\n" + goodCode + "\n```"}, nil)

	gen, err := g.Generate(context.Background(), "system", "user")
	require.NoError(t, err)
	require.Equal(t, goodCode, gen.Code)
	require.Contains(t, gen.Raw, "```go")
}

func TestGenerateWrapsLLMFailure(t *testing.T) {
	g := New(&stubLLM{err: errors.New("rate limited")}, nil)

	_, err := g.Generate(context.Background(), "system", "user")
	require.Error(t, err)
	require.Equal(t, fault.KindGeneration, fault.KindOf(err))
	require.True(t, fault.Retryable(err))
}
