package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
)

// ResultSet is a query result ready for rendering.
type ResultSet struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// Table writes rows in the renderer's effective mode.
func (r *Renderer) Table(rs ResultSet) error {
	if r.EffectiveMode() == ModeJSON {
		rows := rs.Rows
		if rows == nil {
			rows = []map[string]any{}
		}
		return r.JSON(rows)
	}

	if len(rs.Rows) == 0 && r.EffectiveMode() != ModeCSV {
		r.Println("(0 rows)")
		return nil
	}

	t := table.NewWriter()
	header := make(table.Row, len(rs.Columns))
	for i, col := range rs.Columns {
		header[i] = col
	}
	t.AppendHeader(header)
	for _, result := range rs.Rows {
		row := make(table.Row, len(rs.Columns))
		for i, col := range rs.Columns {
			row[i] = FormatValue(result[col])
		}
		t.AppendRow(row)
	}

	switch r.EffectiveMode() {
	case ModeCSV:
		r.Println(t.RenderCSV())
		return nil
	case ModeMarkdown:
		r.Println(t.RenderMarkdown())
	default:
		t.SetStyle(table.StyleLight)
		r.Println(t.Render())
	}
	r.Printf("(%d rows)\n", len(rs.Rows))
	return nil
}

// Count formats n with a singular or plural noun.
func Count(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
