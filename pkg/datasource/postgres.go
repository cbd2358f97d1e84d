package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fathomdata/fathom/pkg/fault"
	"github.com/fathomdata/fathom/pkg/metrics"
)

// PostgresSource is a query-capable source backed by a Postgres table.
// Rewritten SQL that elects this source as executor runs on the database
// itself rather than in the embedded engine.
type PostgresSource struct {
	name   string
	schema string
	table  string
	pool   *pgxpool.Pool
}

// NewPostgresSource registers the schema-qualified table under the logical
// name. An empty schema defaults to public.
func NewPostgresSource(pool *pgxpool.Pool, name, schema, table string) *PostgresSource {
	if schema == "" {
		schema = "public"
	}
	return &PostgresSource{name: name, schema: schema, table: table, pool: pool}
}

func (s *PostgresSource) Name() string { return s.name }

func (s *PostgresSource) TableExpression() string {
	return fmt.Sprintf("%s.%s", s.schema, s.table)
}

func (s *PostgresSource) Describe(ctx context.Context) (*Table, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, s.schema, s.table)
	if err != nil {
		return nil, fault.Wrap(fault.KindDispatch, err, "failed to describe postgres source %q", s.name)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fault.Wrap(fault.KindDispatch, err, "failed to scan column for %q", s.name)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindDispatch, err, "failed to read columns for %q", s.name)
	}

	return &Table{Name: s.name, Columns: cols}, nil
}

// RunQuery executes the rewritten SQL against Postgres.
func (s *PostgresSource) RunQuery(ctx context.Context, sql string) (*QueryResult, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		metrics.RecordQuery("postgres", time.Since(start), err)
		return nil, fault.Wrap(fault.KindDispatch, err, "postgres rejected query")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var resultRows []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			metrics.RecordQuery("postgres", time.Since(start), err)
			return nil, fault.Wrap(fault.KindDispatch, err, "failed to read postgres row")
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		metrics.RecordQuery("postgres", time.Since(start), err)
		return nil, fault.Wrap(fault.KindDispatch, err, "error iterating postgres rows")
	}
	metrics.RecordQuery("postgres", time.Since(start), nil)

	return &QueryResult{
		SQL:     sql,
		Columns: columns,
		Rows:    resultRows,
		Count:   len(resultRows),
	}, nil
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	default:
		return v
	}
}
