package template

import (
	"errors"
	"strings"
	"testing"

	"github.com/leapstack-labs/blocksql/internal/guard"
	starctx "github.com/leapstack-labs/blocksql/internal/starlark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() *starctx.ExecutionContext {
	params, err := starctx.ParamsToStarlark(map[string]any{
		"schema": "analytics",
		"table":  "users",
		"env":    "dev",
		"config": map[string]any{"limit": 10},
	})
	if err != nil {
		panic(err)
	}
	return starctx.NewExecutionContext(params)
}

func TestRenderer_Expressions(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain text", "SELECT * FROM users", "SELECT * FROM users"},
		{"simple expression", `SELECT * FROM {{ schema }}.users`, "SELECT * FROM analytics.users"},
		{"multiple expressions", `{{ schema }}.{{ table }}`, "analytics.users"},
		{"env variable", `{{ env }}`, "dev"},
		{"dict access", `LIMIT {{ config["limit"] }}`, "LIMIT 10"},
		{"string concatenation", `{{ schema + "." + table }}`, "analytics.users"},
		{"guard", `WHERE name = {{ guards.string("O'Neil") }}`, "WHERE name = 'O''Neil'"},
		{"comment dropped", `SELECT 1{# trailing #}`, "SELECT 1"},
		{"integer expression", `{{ 1 + 2 }}`, "3"},
		{"boolean expression", `{{ True }}`, "True"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newTestContext()
			result, err := RenderString(tt.input, "test.sql", ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestRenderer_ForLoop(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		containsAll []string // for cases where exact match is hard due to whitespace
	}{
		{
			name:     "inline loop",
			input:    `{* for x in [1, 2, 3]: *}{{ x }}{* endfor *}`,
			expected: "123",
		},
		{
			name:     "empty loop",
			input:    `before{* for x in []: *}{{ x }}{* endfor *}after`,
			expected: "beforeafter",
		},
		{
			name: "loop with list",
			input: `SELECT
{* for col in ["id", "name", "email"]: *}
    {{ col }},
{* endfor *}
FROM users`,
			containsAll: []string{"id", "name", "email"},
		},
		{
			name: "nested loop",
			input: `{* for i in [0, 1, 2]: *}
{* for j in [0, 1]: *}
({{ i }}, {{ j }})
{* endfor *}
{* endfor *}`,
			containsAll: []string{"(0, 0)", "(0, 1)", "(1, 0)", "(1, 1)", "(2, 0)", "(2, 1)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newTestContext()
			result, err := RenderString(tt.input, "test.sql", ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.expected != "" && result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}

			for _, s := range tt.containsAll {
				if !strings.Contains(result, s) {
					t.Errorf("expected result to contain %q, got %q", s, result)
				}
			}
		})
	}
}

func TestRenderer_IfStatement(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"if true", `{* if env == "dev": *}DEV{* endif *}`, "DEV"},
		{"if false", `{* if env == "prod": *}PROD{* endif *}`, ""},
		{"if-else true branch", `{* if env == "dev": *}DEV{* else: *}NOT_DEV{* endif *}`, "DEV"},
		{"if-else false branch", `{* if env == "prod": *}PROD{* else: *}NOT_PROD{* endif *}`, "NOT_PROD"},
		{"if-elif-else", `{* if env == "prod": *}PROD{* elif env == "dev": *}DEV{* else: *}OTHER{* endif *}`, "DEV"},
		{"nested for-if", `{* for x in [1, 2, 3]: *}{* if x > 1: *}{{ x }}{* endif *}{* endfor *}`, "23"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newTestContext()
			result, err := RenderString(tt.input, "test.sql", ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestRenderer_TruthyFalsy(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		expected  string
	}{
		{"True", `True`, "yes"},
		{"False", `False`, "no"},
		{"1", `1`, "yes"},
		{"0", `0`, "no"},
		{"empty string", `""`, "no"},
		{"non-empty string", `"hello"`, "yes"},
		{"empty list", `[]`, "no"},
		{"non-empty list", `[1]`, "yes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := `{* if ` + tt.condition + `: *}yes{* else: *}no{* endif *}`
			ctx := newTestContext()

			result, err := RenderString(input, "test.sql", ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestRenderer_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"undefined variable", `{{ undefined_variable }}`},
		{"undefined iterator", `{* for x in undefined: *}{{ x }}{* endfor *}`},
		{"undefined condition", `{* if undefined: *}yes{* endif *}`},
		{"non-iterable for", `{* for x in 42: *}{{ x }}{* endfor *}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newTestContext()
			_, err := RenderString(tt.input, "test.sql", ctx)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestRenderer_FullExample(t *testing.T) {
	input := `SELECT
{* for col in ["id", "name", "created_at"]: *}
    {{ col }},
{* endfor *}
{* if env == "prod": *}
    updated_at
{* else: *}
    *
{* endif *}
FROM {{ schema }}.users`

	ctx := newTestContext()

	result, err := RenderString(input, "test.sql", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Should contain all column names
	for _, col := range []string{"id", "name", "created_at"} {
		if !strings.Contains(result, col) {
			t.Errorf("expected result to contain %q", col)
		}
	}

	// Should contain * since env is "dev"
	if !strings.Contains(result, "*") {
		t.Error("expected result to contain '*' for dev env")
	}

	// Should not contain "updated_at" since env is "dev"
	if strings.Contains(result, "updated_at") {
		t.Error("expected result NOT to contain 'updated_at' for dev env")
	}

	// Should have correct table reference
	if !strings.Contains(result, "analytics.users") {
		t.Error("expected result to contain 'analytics.users'")
	}
}

func TestRenderer_SQLBlockDefault(t *testing.T) {
	input := `{* sql q *}
  SELECT *
  FROM {{ table }}
{* endsql *}`

	result, err := RenderString(input, "q.sql", newTestContext())
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users", result)
}

func TestRenderer_SQLBlockHandler(t *testing.T) {
	input := `{* sql q, note = "reads " + table *}SELECT {{ 1 + 1 }}{* endsql *}|{* sql c, cond_for = q *}x{* endsql *}`

	tmpl, err := ParseString(input, "q.sql")
	require.NoError(t, err)

	type seen struct{ name, body, note string }
	var calls []seen
	r := NewRenderer(newTestContext(), WithBlockHandler(func(b *SQLBlock, body, note string) (string, error) {
		calls = append(calls, seen{b.Name, body, note})
		return "<" + b.Name + ">", nil
	}))

	result, err := r.Render(tmpl)
	require.NoError(t, err)
	assert.Equal(t, "<q>|<c>", result)
	assert.Equal(t, []seen{
		{"q", "SELECT 2", "reads users"},
		{"c", "x", ""},
	}, calls)
}

func TestRenderer_SQLBlockHandlerError(t *testing.T) {
	tmpl, err := ParseString(`{* sql q *}x{* endsql *}`, "q.sql")
	require.NoError(t, err)

	boom := errors.New("boom")
	r := NewRenderer(newTestContext(), WithBlockHandler(func(*SQLBlock, string, string) (string, error) {
		return "", boom
	}))

	_, err = r.Render(tmpl)
	require.ErrorIs(t, err, boom)

	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, 1, renderErr.Position().Line)
}

func TestRenderer_GuardErrorInChain(t *testing.T) {
	_, err := RenderString("\n{{ guards.integer(table) }}", "q.sql", newTestContext())
	require.Error(t, err)

	var guardErr *guard.Error
	require.True(t, errors.As(err, &guardErr), "expected *guard.Error, got %v", err)
	assert.Equal(t, "integer", guardErr.Guard)
	assert.True(t, strings.HasPrefix(err.Error(), "q.sql:2:1:"), "got %q", err.Error())
}

func TestRenderer_CompilePass(t *testing.T) {
	input := `SELECT * FROM users
{* if active_cond: *}WHERE {{ active_cond }}{* endif *}
{* for c in extra: *}, {{ c }}{* endfor *}
LIMIT {{ guards.integer(limit) }}`

	ctx := starctx.NewExecutionContext(nil, starctx.WithCompilePass())
	result, err := RenderString(input, "lenient.sql", ctx)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users LIMIT", CollapseSpace(result))
}

func TestCollapseSpace(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t", CollapseSpace("  SELECT *\n\t FROM   t \n"))
	assert.Equal(t, "", CollapseSpace(" \n\t "))
}
