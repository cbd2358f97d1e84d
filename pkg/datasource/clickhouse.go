package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/fathomdata/fathom/pkg/fault"
	"github.com/fathomdata/fathom/pkg/metrics"
)

// ClickHouseSource is a query-capable source backed by a ClickHouse table.
type ClickHouseSource struct {
	name     string
	database string
	table    string
	conn     driver.Conn
}

// NewClickHouseSource registers the database-qualified table under the
// logical name.
func NewClickHouseSource(conn driver.Conn, name, database, table string) *ClickHouseSource {
	return &ClickHouseSource{name: name, database: database, table: table, conn: conn}
}

func (s *ClickHouseSource) Name() string { return s.name }

func (s *ClickHouseSource) TableExpression() string {
	return fmt.Sprintf("%s.%s", s.database, s.table)
}

func (s *ClickHouseSource) Describe(ctx context.Context) (*Table, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT name, type
		FROM system.columns
		WHERE database = ? AND table = ?
		ORDER BY position
	`, s.database, s.table)
	if err != nil {
		return nil, fault.Wrap(fault.KindDispatch, err, "failed to describe clickhouse source %q", s.name)
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

// RunQuery executes the rewritten SQL against ClickHouse.
func (s *ClickHouseSource) RunQuery(ctx context.Context, sql string) (*QueryResult, error) {
	start := time.Now()
	rows, err := s.conn.Query(ctx, sql)
	if err != nil {
		metrics.RecordQuery("clickhouse", time.Since(start), err)
		return nil, fault.Wrap(fault.KindDispatch, err, "clickhouse rejected query")
	}
	defer rows.Close()

	colTypes := rows.ColumnTypes()
	columns := rows.Columns()

	var resultRows []map[string]any
	for rows.Next() {
		values := make([]any, len(colTypes))
		for i, ct := range colTypes {
			values[i] = newScanTarget(ct.ScanType())
		}
		if err := rows.Scan(values...); err != nil {
			metrics.RecordQuery("clickhouse", time.Since(start), err)
			return nil, fault.Wrap(fault.KindDispatch, err, "failed to read clickhouse row")
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = dereference(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		metrics.RecordQuery("clickhouse", time.Since(start), err)
		return nil, fault.Wrap(fault.KindDispatch, err, "error iterating clickhouse rows")
	}
	metrics.RecordQuery("clickhouse", time.Since(start), nil)

	return &QueryResult{
		SQL:     sql,
		Columns: columns,
		Rows:    resultRows,
		Count:   len(resultRows),
	}, nil
}
