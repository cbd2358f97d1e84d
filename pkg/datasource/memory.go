package datasource

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fathomdata/fathom/pkg/fault"
)

// MemorySource holds a table directly in memory. It is loaded into the
// embedded engine on each dispatch that references it.
type MemorySource struct {
	table *Table
}

// NewMemorySource wraps a table as a source. The table name becomes the
// logical source name.
func NewMemorySource(table *Table) *MemorySource {
	return &MemorySource{table: table}
}

func (s *MemorySource) Name() string { return s.table.Name }

func (s *MemorySource) Describe(_ context.Context) (*Table, error) {
	return &Table{Name: s.table.Name, Columns: s.table.Columns}, nil
}

func (s *MemorySource) Load(_ context.Context) (*Table, error) {
	return s.table, nil
}

// CSVSource is a file-backed source the embedded engine ingests straight
// from disk. The logical name defaults to the file's base name.
type CSVSource struct {
	name string
	path string
}

// NewCSVSource creates a CSV source. An empty name derives the logical name
// from the file name.
func NewCSVSource(name, path string) *CSVSource {
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &CSVSource{name: name, path: path}
}

func (s *CSVSource) Name() string { return s.name }
func (s *CSVSource) Path() string { return s.path }

// Describe reads the header row and samples a handful of records to infer
// column types for the prompt. The embedded engine does its own inference
// when it ingests the file.
func (s *CSVSource) Describe(_ context.Context) (*Table, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, err, "failed to open csv source %q", s.name)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, err, "failed to read csv header for %q", s.name)
	}

	types := make([]string, len(header))
	for i := range types {
		types[i] = "VARCHAR"
	}
	// Sample up to 20 rows for a rough numeric/text split.
	for sampled := 0; sampled < 20; sampled++ {
		rec, err := r.Read()
		if err != nil {
			break
		}
		for i, v := range rec {
			if i >= len(types) || v == "" {
				continue
			}
			if _, err := strconv.ParseFloat(v, 64); err == nil {
				types[i] = "DOUBLE"
			}
		}
	}

	cols := make([]Column, len(header))
	for i, h := range header {
		cols[i] = Column{Name: h, Type: types[i]}
	}
	return &Table{Name: s.name, Columns: cols}, nil
}

// Load materializes the CSV as string rows. Used only when a dispatch falls
// back to row-wise registration; the duck engine prefers Path-based ingest.
func (s *CSVSource) Load(_ context.Context) (*Table, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, err, "failed to open csv source %q", s.name)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, err, "failed to read csv source %q", s.name)
	}
	if len(records) == 0 {
		return nil, fault.New(fault.KindConfiguration, "csv source %q is empty", s.name)
	}

	cols := make([]Column, len(records[0]))
	for i, h := range records[0] {
		cols[i] = Column{Name: h, Type: "VARCHAR"}
	}
	rows := make([][]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		rows = append(rows, row)
	}

	return &Table{Name: s.name, Columns: cols, Rows: rows}, nil
}
