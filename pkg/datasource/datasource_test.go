package datasource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVSourceName(t *testing.T) {
	src := NewCSVSource("", "/data/monthly_sales.csv")
	require.Equal(t, "monthly_sales", src.Name())

	named := NewCSVSource("sales", "/data/export-final.csv")
	require.Equal(t, "sales", named.Name())
}

func TestCSVSourceDescribe(t *testing.T) {
	path := writeCSV(t, "name,age,city\nada,36,london\ngrace,45,new york\n")
	src := NewCSVSource("people", path)

	table, err := src.Describe(context.Background())
	require.NoError(t, err)
	require.Equal(t, "people", table.Name)
	require.Len(t, table.Columns, 3)
	require.Equal(t, Column{Name: "name", Type: "VARCHAR"}, table.Columns[0])
	require.Equal(t, Column{Name: "age", Type: "DOUBLE"}, table.Columns[1])
	require.Equal(t, Column{Name: "city", Type: "VARCHAR"}, table.Columns[2])
}

func TestCSVSourceLoad(t *testing.T) {
	path := writeCSV(t, "name,age\nada,36\ngrace,45\n")
	src := NewCSVSource("people", path)

	table, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	require.Equal(t, []any{"ada", "36"}, table.Rows[0])
}

func TestCSVSourceMissingFile(t *testing.T) {
	src := NewCSVSource("nope", "/does/not/exist.csv")
	_, err := src.Describe(context.Background())
	require.Error(t, err)
	_, err = src.Load(context.Background())
	require.Error(t, err)
}

func TestFormatSchema(t *testing.T) {
	table := &Table{
		Name: "people",
		Columns: []Column{
			{Name: "name", Type: "VARCHAR"},
			{Name: "age", Type: "DOUBLE"},
		},
	}
	out := FormatSchema(table)
	require.Equal(t, "people:\n  - name (VARCHAR)\n  - age (DOUBLE)\n", out)
}

// countingSource counts Describe calls to observe schema caching.
type countingSource struct {
	name  string
	calls int
}

func (s *countingSource) Name() string { return s.name }

func (s *countingSource) Describe(_ context.Context) (*Table, error) {
	s.calls++
	return &Table{Name: s.name, Columns: []Column{{Name: "id", Type: "BIGINT"}}}, nil
}

func TestDescriberCachesSchemas(t *testing.T) {
	d := NewDescriber(nil, time.Minute)
	defer d.Stop()

	src := &countingSource{name: "users"}
	ctx := context.Background()

	first, err := d.Describe(ctx, []Source{src})
	require.NoError(t, err)
	require.Contains(t, first, "users")
	require.Equal(t, 1, src.calls)

	second, err := d.Describe(ctx, []Source{src})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, src.calls)

	d.Invalidate("users")
	_, err = d.Describe(ctx, []Source{src})
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)
}

func TestDescriberEmptySources(t *testing.T) {
	d := NewDescriber(nil, time.Minute)
	defer d.Stop()

	out, err := d.Describe(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, out)
}
