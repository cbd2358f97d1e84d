// Package datasource defines the tabular data sources the agent can answer
// questions over: in-memory tables loaded into the embedded engine, and
// query-capable sources that run SQL natively against their own backend.
package datasource

import (
	"context"
	"fmt"
	"strings"
)

// Column describes one column of a table.
type Column struct {
	Name string
	Type string
}

// Table is an in-memory tabular value keyed by its declared name.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// QueryResult holds the result of a SQL dispatch.
type QueryResult struct {
	SQL     string
	Columns []string
	Rows    []map[string]any
	Count   int
}

// Source is a registered tabular data source. Names must be unique across
// the sources registered on one agent; the router keys its table mapping
// by them.
type Source interface {
	// Name returns the declared logical table name.
	Name() string
	// Describe returns the source's schema for prompt construction.
	Describe(ctx context.Context) (*Table, error)
}

// NativeQuerier is a source able to execute SQL natively against its own
// backend. At most one native querier may take part in a single dispatch.
type NativeQuerier interface {
	Source
	// TableExpression returns the backend expression the logical name
	// rewrites to (for example a schema-qualified table name).
	TableExpression() string
	// RunQuery executes the rewritten SQL against the backend.
	RunQuery(ctx context.Context, sql string) (*QueryResult, error)
}

// Loadable is a source whose contents are registered into the embedded
// engine before the rewritten SQL runs there.
type Loadable interface {
	Source
	// Load returns the source's tabular contents.
	Load(ctx context.Context) (*Table, error)
}

// FileBacked is an optional refinement of Loadable for sources the embedded
// engine can ingest directly from disk without materializing rows in Go.
type FileBacked interface {
	Loadable
	// Path returns the on-disk location of the data file.
	Path() string
}

// FormatSchema renders a table's schema as text for the generation prompt,
// one column per line, matching the layout the models were prompted with.
func FormatSchema(t *Table) string {
	var sb strings.Builder
	sb.WriteString(t.Name + ":\n")
	for _, col := range t.Columns {
		sb.WriteString(fmt.Sprintf("  - %s (%s)\n", col.Name, col.Type))
	}
	return sb.String()
}
