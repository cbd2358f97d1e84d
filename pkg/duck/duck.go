// Package duck wraps an embedded in-process DuckDB instance. The query
// router registers in-memory tables here and runs rewritten SQL over them
// when no native executor takes the call.
package duck

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/fathomdata/fathom/pkg/datasource"
	"github.com/fathomdata/fathom/pkg/fault"
	"github.com/fathomdata/fathom/pkg/metrics"
)

const (
	registerMaxElapsed   = 5 * time.Second
	registerInitialDelay = 50 * time.Millisecond
)

// Engine is an embedded analytical engine over an in-memory DuckDB
// database. One engine serves many dispatches; registration and query for
// a single dispatch are serialized by the caller holding Lock.
type Engine struct {
	log *slog.Logger
	db  *sql.DB
	mu  sync.Mutex
}

// NewEngine opens an in-memory DuckDB database.
func NewEngine(log *slog.Logger) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	return &Engine{log: log, db: db}, nil
}

// Close releases the underlying database.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Lock serializes one dispatch's register+query sequence. Unlock with the
// returned function.
func (e *Engine) Lock() func() {
	e.mu.Lock()
	return e.mu.Unlock
}

// Register makes a table available under its name, replacing any previous
// registration. Transient registration conflicts are retried with
// exponential backoff.
func (e *Engine) Register(ctx context.Context, table *datasource.Table) error {
	ddl := createTableDDL(table)

	op := func() error {
		if _, err := e.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
		return e.insertRows(ctx, table)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = registerInitialDelay
	policy.MaxElapsedTime = registerMaxElapsed

	err := backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isTransient(err) {
			if e.log != nil {
				e.log.Warn("duck: transient registration failure, retrying", "table", table.Name, "error", err)
			}
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return fault.Wrap(fault.KindDispatch, err, "failed to register table %q", table.Name)
	}

	if e.log != nil {
		e.log.Debug("duck: registered table", "table", table.Name, "rows", len(table.Rows))
	}
	return nil
}

// RegisterCSV registers a CSV file as a view so DuckDB ingests it directly.
func (e *Engine) RegisterCSV(ctx context.Context, name, path string) error {
	stmt := fmt.Sprintf(
		`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_csv_auto(%s)`,
		quoteIdent(name), quoteLiteral(path),
	)
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fault.Wrap(fault.KindDispatch, err, "failed to register csv %q", name)
	}
	return nil
}

// Query runs SQL over the registered tables.
func (e *Engine) Query(ctx context.Context, query string) (*datasource.QueryResult, error) {
	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		metrics.RecordQuery("duckdb", time.Since(start), err)
		return nil, fault.Wrap(fault.KindDispatch, err, "duckdb rejected query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		metrics.RecordQuery("duckdb", time.Since(start), err)
		return nil, fault.Wrap(fault.KindDispatch, err, "failed to get columns")
	}

	var resultRows []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			metrics.RecordQuery("duckdb", time.Since(start), err)
			return nil, fault.Wrap(fault.KindDispatch, err, "failed to scan row")
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			default:
				row[col] = values[i]
			}
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		metrics.RecordQuery("duckdb", time.Since(start), err)
		return nil, fault.Wrap(fault.KindDispatch, err, "error iterating rows")
	}
	metrics.RecordQuery("duckdb", time.Since(start), nil)

	return &datasource.QueryResult{
		SQL:     query,
		Columns: columns,
		Rows:    resultRows,
		Count:   len(resultRows),
	}, nil
}

func (e *Engine) insertRows(ctx context.Context, table *datasource.Table) error {
	if len(table.Rows) == 0 {
		return nil
	}

	placeholders := make([]string, len(table.Columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(table.Name), strings.Join(placeholders, ", "))

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer prepared.Close()

	for _, row := range table.Rows {
		if _, err := prepared.ExecContext(ctx, row...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func createTableDDL(table *datasource.Table) string {
	cols := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		typ := c.Type
		if typ == "" {
			typ = "VARCHAR"
		}
		cols[i] = fmt.Sprintf("%s %s", quoteIdent(c.Name), typ)
	}
	return fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", quoteIdent(table.Name), strings.Join(cols, ", "))
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Transaction conflict") ||
		strings.Contains(msg, "Conflict on") ||
		strings.Contains(msg, "lock")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
