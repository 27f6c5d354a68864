package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(mode Mode) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewRenderer(&out, &errOut, mode), &out, &errOut
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"", ModeAuto, false},
		{"auto", ModeAuto, false},
		{"text", ModeText, false},
		{"md", ModeMarkdown, false},
		{"markdown", ModeMarkdown, false},
		{"json", ModeJSON, false},
		{"csv", ModeCSV, false},
		{"yaml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEffectiveMode(t *testing.T) {
	r, _, _ := newTestRenderer(ModeAuto)
	assert.False(t, r.IsTTY())
	assert.Equal(t, ModeMarkdown, r.EffectiveMode(), "auto falls back to markdown off a terminal")

	r, _, _ = newTestRenderer(ModeJSON)
	assert.Equal(t, ModeJSON, r.EffectiveMode())
}

func TestHeader_Markdown(t *testing.T) {
	r, out, _ := newTestRenderer(ModeMarkdown)
	r.Header(2, "Blocks")
	assert.Equal(t, "## Blocks\n\n", out.String())
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "# Title\n", FormatHeader(0, "Title"))
	assert.Equal(t, "###### Deep\n", FormatHeader(9, "Deep"))
	assert.Equal(t, "- **Blocks:** 3", FormatKeyValue("Blocks", "3"))
	assert.Equal(t, "```sql\nSELECT 1\n```", FormatCode("sql", "SELECT 1\n"))
	assert.Equal(t, "NULL", FormatValue(nil))
	assert.Equal(t, "42", FormatValue(42))
	assert.Equal(t, "1 block", Count(1, "block"))
	assert.Equal(t, "2 blocks", Count(2, "block"))
}

func TestTable(t *testing.T) {
	rs := ResultSet{
		Columns: []string{"id", "name"},
		Rows: []map[string]any{
			{"id": int64(1), "name": "ada"},
			{"id": int64(2), "name": nil},
		},
	}

	t.Run("markdown", func(t *testing.T) {
		r, out, _ := newTestRenderer(ModeMarkdown)
		require.NoError(t, r.Table(rs))
		assert.Contains(t, out.String(), "| id | name |")
		assert.Contains(t, out.String(), "| 2 | NULL |")
		assert.Contains(t, out.String(), "(2 rows)")
	})

	t.Run("csv", func(t *testing.T) {
		r, out, _ := newTestRenderer(ModeCSV)
		require.NoError(t, r.Table(rs))
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "id,name", lines[0])
		assert.Equal(t, "1,ada", lines[1])
	})

	t.Run("json", func(t *testing.T) {
		r, out, _ := newTestRenderer(ModeJSON)
		require.NoError(t, r.Table(rs))
		var rows []map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
		require.Len(t, rows, 2)
		assert.Equal(t, "ada", rows[0]["name"])
	})

	t.Run("text", func(t *testing.T) {
		r, out, _ := newTestRenderer(ModeText)
		require.NoError(t, r.Table(rs))
		assert.Contains(t, out.String(), "ada")
		assert.Contains(t, out.String(), "┌")
	})

	t.Run("empty", func(t *testing.T) {
		r, out, _ := newTestRenderer(ModeMarkdown)
		require.NoError(t, r.Table(ResultSet{Columns: []string{"id"}}))
		assert.Equal(t, "(0 rows)\n", out.String())

		r, out, _ = newTestRenderer(ModeJSON)
		require.NoError(t, r.Table(ResultSet{Columns: []string{"id"}}))
		assert.Equal(t, "[]\n", out.String())
	})
}

func TestMessages(t *testing.T) {
	r, out, errOut := newTestRenderer(ModeText)
	r.Success("compiled")
	r.StatusLine("users.sql", "failed", "line 3")
	r.Warning("no templates")
	r.Error("boom")

	assert.Contains(t, out.String(), "✓ compiled")
	assert.Contains(t, out.String(), "✗ users.sql line 3")
	assert.Contains(t, errOut.String(), "! no templates")
	assert.Contains(t, errOut.String(), "✗ boom")
}
