package prompts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	p, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, p.Chat)
	require.NotEmpty(t, p.CorrectError)
	require.NotEmpty(t, p.CorrectOutputType)
}

func TestBuildSystem(t *testing.T) {
	p, err := Load()
	require.NoError(t, err)

	schema := "Table users:\n  id (BIGINT)"
	out := p.BuildSystem(schema, "")
	require.Contains(t, out, schema)
	require.Contains(t, out, "ExecuteSQLQuery")
	require.NotContains(t, out, "{{SCHEMA}}")
	require.NotContains(t, out, "{{CONTEXT}}")

	withContext := p.BuildSystem(schema, "User: earlier question")
	require.Contains(t, withContext, "# Context")
	require.Contains(t, withContext, "earlier question")
}

func TestBuildCorrectError(t *testing.T) {
	p, err := Load()
	require.NoError(t, err)

	out := p.BuildCorrectError("func Run() {}", "index out of range")
	require.Contains(t, out, "func Run() {}")
	require.Contains(t, out, "index out of range")
	require.NotContains(t, out, "{{CODE}}")
	require.NotContains(t, out, "{{ERROR}}")
}

func TestBuildCorrectOutputType(t *testing.T) {
	p, err := Load()
	require.NoError(t, err)

	out := p.BuildCorrectOutputType("func Run() {}", "got string", "number")
	require.Contains(t, out, `"number"`)
	require.Contains(t, out, "got string")
	require.NotContains(t, out, "{{EXPECTED_TYPE}}")
}
