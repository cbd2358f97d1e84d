package response

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/fathomdata/fathom/pkg/datasource"
)

// maxRenderRows caps table output so a huge result does not flood the
// terminal.
const maxRenderRows = 50

// RenderTable formats a query result as an ASCII table.
func RenderTable(qr *datasource.QueryResult) string {
	if qr == nil || len(qr.Columns) == 0 {
		return "(no rows)"
	}

	var sb strings.Builder
	table := tablewriter.NewWriter(&sb)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(qr.Columns)

	shown := qr.Rows
	if len(shown) > maxRenderRows {
		shown = shown[:maxRenderRows]
	}
	for _, row := range shown {
		cells := make([]string, len(qr.Columns))
		for i, col := range qr.Columns {
			cells[i] = formatCell(row[col])
		}
		table.Append(cells)
	}
	table.Render()

	if len(qr.Rows) > maxRenderRows {
		fmt.Fprintf(&sb, "... %d more rows\n", len(qr.Rows)-maxRenderRows)
	}
	return sb.String()
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	switch t := v.(type) {
	case float64:
		return fmt.Sprintf("%g", t)
	case float32:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(v)
	}
}
