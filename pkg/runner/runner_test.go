package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fathomdata/fathom/pkg/datasource"
	"github.com/fathomdata/fathom/pkg/fault"
)

func queryEnv(t *testing.T, lastSQL *string) Environment {
	t.Helper()
	return Environment{
		QueryFuncName: QueryFunc(func(sql string) (*datasource.QueryResult, error) {
			if lastSQL != nil {
				*lastSQL = sql
			}
			return &datasource.QueryResult{
				SQL:     sql,
				Columns: []string{"n"},
				Rows:    []map[string]any{{"n": int64(2)}},
				Count:   1,
			}, nil
		}),
	}
}

func TestRunExecutesSnippet(t *testing.T) {
	r := New(nil)
	var lastSQL string

	code := `
import "fathom/data"

func Run() (map[string]any, error) {
	res, err := data.ExecuteSQLQuery("SELECT count(*) AS n FROM people")
	if err != nil {
		return nil, err
	}
	return map[string]any{"type": "dataframe", "value": res}, nil
}`

	result, err := r.Run(context.Background(), code, queryEnv(t, &lastSQL))
	require.NoError(t, err)
	require.Equal(t, "SELECT count(*) AS n FROM people", lastSQL)
	require.Equal(t, "dataframe", result.Value["type"])

	qr, ok := result.Value["value"].(*datasource.QueryResult)
	require.True(t, ok)
	require.Equal(t, 1, qr.Count)
}

func TestRunAllowsWhitelistedStdlib(t *testing.T) {
	r := New(nil)

	code := `
import (
	"fmt"
	"strings"
)

func Run() (map[string]any, error) {
	s := strings.ToUpper(fmt.Sprintf("%d apples", 3))
	return map[string]any{"type": "string", "value": s}, nil
}`

	result, err := r.Run(context.Background(), code, Environment{})
	require.NoError(t, err)
	require.Equal(t, "3 APPLES", result.Value["value"])
}

func TestRunRejectsForbiddenImports(t *testing.T) {
	r := New(nil)

	code := `
import "os/exec"

func Run() (map[string]any, error) {
	return nil, nil
}`

	_, err := r.Run(context.Background(), code, Environment{})
	require.Error(t, err)
	require.Equal(t, fault.KindExecution, fault.KindOf(err))
	require.Contains(t, err.Error(), "os/exec")
}

func TestRunSnippetErrorKeepsFaultKind(t *testing.T) {
	r := New(nil)
	env := Environment{
		QueryFuncName: QueryFunc(func(sql string) (*datasource.QueryResult, error) {
			return nil, fault.New(fault.KindDispatch, "unknown table %q in query", "ghosts")
		}),
	}

	code := `
import "fathom/data"

func Run() (map[string]any, error) {
	_, err := data.ExecuteSQLQuery("SELECT * FROM ghosts")
	return nil, err
}`

	_, err := r.Run(context.Background(), code, env)
	require.Error(t, err)
	require.Equal(t, fault.KindDispatch, fault.KindOf(err))
	require.False(t, fault.Retryable(err))
}

func TestRunPlainSnippetErrorBecomesExecutionFault(t *testing.T) {
	r := New(nil)

	code := `
import "errors"

func Run() (map[string]any, error) {
	return nil, errors.New("division by zero")
}`

	_, err := r.Run(context.Background(), code, Environment{})
	require.Error(t, err)
	require.Equal(t, fault.KindExecution, fault.KindOf(err))
	require.Contains(t, err.Error(), "division by zero")
	require.True(t, fault.Retryable(err))
}

func TestRunMissingEntryPoint(t *testing.T) {
	r := New(nil)

	_, err := r.Run(context.Background(), "func Helper() {}", Environment{})
	require.Error(t, err)
	require.Equal(t, fault.KindExecution, fault.KindOf(err))
}

func TestRunWrongEntrySignature(t *testing.T) {
	r := New(nil)

	_, err := r.Run(context.Background(), "func Run() int { return 1 }", Environment{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "wrong signature")
}

func TestRunNilResult(t *testing.T) {
	r := New(nil)

	_, err := r.Run(context.Background(), "func Run() (map[string]any, error) { return nil, nil }", Environment{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no result")
}

func TestParseImports(t *testing.T) {
	code := `
import "fmt"

import (
	"strings"
	j "encoding/json"
)

func Run() (map[string]any, error) { return nil, nil }`

	require.ElementsMatch(t, []string{"fmt", "strings", "encoding/json"}, parseImports(code))
}
